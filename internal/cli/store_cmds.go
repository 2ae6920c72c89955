/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"tasksphere/internal/domain"
)

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <entity_type> [id]",
		Short: "Print every record of a type, or the record with the given id (null when absent)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			et, err := domain.ParseEntityType(args[0])
			if err != nil {
				return err
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				recs, err := st.GetAll(et)
				if err != nil {
					return err
				}
				if recs == nil {
					recs = []*domain.Record{}
				}
				return a.printJSON(recs)
			}
			rec, ok, err := st.GetByID(et, args[1])
			if err != nil {
				return err
			}
			if !ok {
				return a.printJSON(nil)
			}
			return a.printJSON(rec)
		},
	}
}

func newCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create <entity_type> <json_object>",
		Short: "Append a record, generating id and timestamps",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			et, err := domain.ParseEntityType(args[0])
			if err != nil {
				return err
			}
			rec, err := domain.ParseRecord([]byte(args[1]))
			if err != nil {
				return fmt.Errorf("invalid record: %w", err)
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			out, err := st.Create(et, rec)
			if err != nil {
				return err
			}
			return a.printJSON(out)
		},
	}
}

func newUpdateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "update <entity_type> <id> <json_object>",
		Short: "Shallow-merge fields into a record (null when the id is absent)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			et, err := domain.ParseEntityType(args[0])
			if err != nil {
				return err
			}
			partial, err := domain.ParseRecord([]byte(args[2]))
			if err != nil {
				return fmt.Errorf("invalid record: %w", err)
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			out, ok, err := st.Update(et, args[1], partial)
			if err != nil {
				return err
			}
			if !ok {
				return a.printJSON(nil)
			}
			return a.printJSON(out)
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <entity_type> <id>",
		Short: "Remove the record with the given id; prints true or false",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			et, err := domain.ParseEntityType(args[0])
			if err != nil {
				return err
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			ok, err := st.Delete(et, args[1])
			if err != nil {
				return err
			}
			return a.printBool(ok)
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print all five collections as one JSON object",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			all, err := st.ExportAll()
			if err != nil {
				return err
			}
			return a.printJSON(all)
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <json_object>",
		Short: "Replace the collections named in the document; prints true or false",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err == nil {
				err = st.ImportAll([]byte(args[0]))
			}
			if err != nil {
				a.logger().Error("import failed", slog.Any("err", err))
				return a.printBool(false)
			}
			return a.printBool(true)
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every collection file; prints true or false",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err == nil {
				err = st.ClearAll()
			}
			if err != nil {
				a.logger().Error("clear failed", slog.Any("err", err))
				return a.printBool(false)
			}
			return a.printBool(true)
		},
	}
}
