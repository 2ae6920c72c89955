/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tasksphere/internal/backup"
)

// optionsArg parses an optional options argument; absent selects every type.
func optionsArg(args []string, i int) (backup.Options, error) {
	if len(args) <= i {
		return backup.DefaultOptions(), nil
	}
	return backup.ParseOptions([]byte(args[i]))
}

func newCreateBackupCmd(a *app) *cobra.Command {
	var store bool
	cmd := &cobra.Command{
		Use:   "create_backup [json_options]",
		Short: "Print a base64 zip archive of the selected collections with its manifest",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := optionsArg(args, 0)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("store") {
				store = a.cfg.Backup.StoreByDefault
			}
			svc, err := a.backupService(cmd.Context(), nil)
			if err != nil {
				return a.printJSON(backup.CreateResponse(nil, err))
			}
			return a.printJSON(backup.CreateResponse(svc.Create(cmd.Context(), opts, store)))
		},
	}
	cmd.Flags().BoolVar(&store, "store", false, "Also put the archive to the configured backup target")
	return cmd
}

func newRestoreBackupCmd(a *app) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "restore_backup <base64_archive> [json_options] | --from <key> [json_options]",
		Short: "Restore the selected collections from an archive",
		Args: func(cmd *cobra.Command, args []string) error {
			if from != "" {
				return cobra.MaximumNArgs(1)(cmd, args)
			}
			if len(args) == 0 {
				return errors.New("restore_backup requires a base64 archive or --from <key>")
			}
			return cobra.RangeArgs(1, 2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			optIdx := 1
			if from != "" {
				optIdx = 0
			}
			opts, err := optionsArg(args, optIdx)
			if err != nil {
				return err
			}
			svc, err := a.backupService(cmd.Context(), nil)
			if err != nil {
				return a.printJSON(backup.RestoreResponse(nil, err))
			}
			if from != "" {
				return a.printJSON(backup.RestoreResponse(svc.RestoreFrom(cmd.Context(), from, opts)))
			}
			data, err := backup.DecodeArchive(args[0])
			if err != nil {
				return a.printJSON(backup.RestoreResponse(nil, err))
			}
			return a.printJSON(backup.RestoreResponse(svc.Restore(cmd.Context(), data, opts)))
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Restore the archive stored under this key in the backup target")
	return cmd
}

func newListBackupsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list_backups",
		Short: "List archives stored in the configured backup target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.backupService(cmd.Context(), nil)
			if err != nil {
				return err
			}
			infos, err := svc.List(cmd.Context())
			if err != nil {
				return err
			}
			return a.printJSON(infos)
		},
	}
}

func newBackupHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "backup_history",
		Short: "Print recent backup and restore events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			l, err := a.openLedger()
			if err != nil {
				return err
			}
			evs, err := l.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return a.printJSON(evs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of events")
	return cmd
}
