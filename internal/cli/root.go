/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package cli implements the per-invocation command surface. Every command prints exactly one
// result line on stdout, or one diagnostic line on stderr with a non-zero exit.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"tasksphere/internal/crash"
)

// NewRootCmd returns the root cobra command for the tasksphere CLI.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd, _ := newRoot(stdout, stderr)
	return cmd
}

func newRoot(stdout, stderr io.Writer) (*cobra.Command, *app) {
	a := &app{stdout: stdout, stderr: stderr}
	cmd := &cobra.Command{
		Use:           "tasksphere",
		Short:         "File-backed task data store with zip backup and restore",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
		RunE: func(*cobra.Command, []string) error {
			return errors.New("usage: tasksphere <operation> [args...]")
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	addGlobalFlags(cmd, a)

	cmd.AddCommand(
		newGetCmd(a),
		newCreateCmd(a),
		newUpdateCmd(a),
		newDeleteCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newClearCmd(a),
		newCreateBackupCmd(a),
		newRestoreBackupCmd(a),
		newListBackupsCmd(a),
		newBackupHistoryCmd(a),
		newSecretCmd(a),
		newServeCmd(a),
		newVersionCmd(a),
	)
	return cmd, a
}

// Execute runs the CLI with the process stdio and returns the exit code.
func Execute() int {
	return run(os.Args[1:], os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	root, a := newRoot(stdout, stderr)
	defer crash.Recover(a.DataDir)
	if args == nil {
		// cobra reads os.Args for a nil slice
		args = []string{}
	}
	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		a.logger().Error("command failed", slog.Any("err", err))
		a.close()
		_, _ = fmt.Fprintf(stderr, "Error: %s\n", oneLine(err.Error()))
		return 1
	}
	return 0
}
