/* Copyright 2025 Jotline Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package status

import (
	"github.com/jotline/jotline/pkg/cli/context"
	"github.com/jotline/jotline/pkg/cli/infra"
	"github.com/jotline/jotline/pkg/cli/log"
	"github.com/jotline/jotline/pkg/cli/output"
	"github.com/jotline/jotline/pkg/cli/queue"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var historyFlag bool

var example = `
 * Show the queued changes waiting for a sync
 jot status

 * Include recently finished operations
 jot status --history
`

// NewCmd returns a new status command
func NewCmd(ctx context.JotCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "status",
		Short:   "Show unsynced changes",
		Aliases: []string{"st"},
		Example: example,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.BoolVar(&historyFlag, "history", false, "show recently finished operations")

	return cmd
}

func newRun(ctx context.JotCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		policy := queue.RetryPolicy{
			MaxRetries:  ctx.MaxRetries,
			BackoffBase: ctx.BackoffBase,
			BackoffMax:  ctx.BackoffMax,
		}

		ops, err := queue.PendingOperations(ctx.DB, "")
		if err != nil {
			return errors.Wrap(err, "getting queued operations")
		}

		if len(ops) == 0 {
			log.Info("all changes are synced\n")
		} else {
			var terminalCount int
			for _, op := range ops {
				terminal := queue.IsTerminal(op, policy)
				if terminal {
					terminalCount++
				}

				output.OperationLine(op, terminal)
			}

			log.Infof("%d operation(s) waiting for a sync\n", len(ops)-terminalCount)
			if terminalCount > 0 {
				log.Warnf("%d operation(s) failed and will not be retried. Edit and save the note again to requeue.\n", terminalCount)
			}
		}

		if historyFlag {
			entries, err := queue.RecentHistory(ctx.DB, ctx.HistoryLimit)
			if err != nil {
				return errors.Wrap(err, "getting operation history")
			}

			if len(entries) > 0 {
				log.Plain("\nrecently finished:\n")
			}
			for _, e := range entries {
				log.Plainf("%-8s %-10s note %s\n", e.Kind, e.Status, e.NoteUUID)
			}
		}

		return nil
	}
}
