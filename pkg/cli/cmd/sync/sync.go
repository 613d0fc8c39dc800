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

package sync

import (
	stdctx "context"
	"os"
	"os/signal"

	"github.com/jotline/jotline/pkg/cli/client"
	"github.com/jotline/jotline/pkg/cli/consts"
	"github.com/jotline/jotline/pkg/cli/context"
	"github.com/jotline/jotline/pkg/cli/database"
	"github.com/jotline/jotline/pkg/cli/infra"
	"github.com/jotline/jotline/pkg/cli/log"
	"github.com/jotline/jotline/pkg/cli/queue"
	"github.com/jotline/jotline/pkg/cli/upgrade"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
  jot sync

  # sync continuously, pushing local changes as they are saved
  jot sync --watch`

var isFullSync bool
var isWatch bool
var apiEndpointFlag string

// NewCmd returns a new sync command
func NewCmd(ctx context.JotCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sync",
		Aliases: []string{"s"},
		Short:   "Sync notes with the server",
		Example: example,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.BoolVarP(&isFullSync, "full", "f", false, "pull the full list of changes instead of only those since the last sync.")
	f.BoolVarP(&isWatch, "watch", "w", false, "keep running and sync whenever local changes are saved, plus on a periodic schedule.")
	f.StringVar(&apiEndpointFlag, "apiEndpoint", "", "API endpoint to connect to (defaults to value in config)")

	return cmd
}

func newRun(ctx context.JotCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		if apiEndpointFlag != "" {
			ctx.APIEndpoint = apiEndpointFlag
		}

		if ctx.SessionKey == "" {
			log.Error("not logged in. please run `jot login`\n")
			return nil
		}

		if isWatch {
			return watch(ctx)
		}

		reqCtx, stop := signal.NotifyContext(stdctx.Background(), os.Interrupt)
		defer stop()

		if err := run(reqCtx, ctx, isFullSync); err != nil {
			return err
		}

		if err := upgrade.Check(ctx); err != nil {
			log.Error(errors.Wrap(err, "automatically checking updates").Error())
		}

		return nil
	}
}

// run performs one sync pass: drain the operation queue against the server,
// then pull and merge remote changes
func run(reqCtx stdctx.Context, ctx context.JotCtx, full bool) error {
	summary, err := push(reqCtx, ctx)
	if err != nil {
		return errors.Wrap(err, "sending local changes")
	}

	if err := pull(reqCtx, ctx, full); err != nil {
		return errors.Wrap(err, "receiving remote changes")
	}

	if err := queue.TruncateHistory(ctx.DB, ctx.HistoryLimit); err != nil {
		return errors.Wrap(err, "truncating operation history")
	}

	log.Successf("success. sent %d changes.\n", summary.Completed)

	if summary.Rescheduled > 0 {
		log.Warnf("%d changes could not be sent and will be retried. run `jot status` for detail.\n", summary.Rescheduled)
	}
	if summary.TerminalFailed > 0 {
		log.Warnf("%d changes failed permanently. run `jot status` for detail.\n", summary.TerminalFailed)
	}

	return nil
}

func push(reqCtx stdctx.Context, ctx context.JotCtx) (queue.DrainSummary, error) {
	log.Info("sending local changes.")
	log.DebugNewline()

	events := make(chan queue.Event, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)

		for ev := range events {
			switch ev.Kind {
			case queue.EventCompleted:
				log.Debug("sent operation %s for note %s\n", ev.OperationUUID, ev.NoteUUID)
			case queue.EventIDRewritten:
				log.Debug("note assigned server id %s\n", ev.NoteUUID)
			case queue.EventFailed:
				log.Debug("operation %s failed (%s). rescheduled.\n", ev.OperationUUID, ev.ErrorType)
			case queue.EventTerminal:
				log.Debug("operation %s failed permanently (%s)\n", ev.OperationUUID, ev.ErrorType)
			}
		}
	}()

	c := queue.NewCoordinator(ctx.DB, newRemote(ctx), ctx.Clock, queue.NewRewriter(ctx.DB, ctx.AttachmentsDir()), queue.Config{
		Policy: queue.RetryPolicy{
			MaxRetries:  ctx.MaxRetries,
			BackoffBase: ctx.BackoffBase,
			BackoffMax:  ctx.BackoffMax,
		},
		AttemptTimeout: ctx.AttemptTimeout,
		Events:         events,
	})

	summary, err := c.Drain(reqCtx)
	close(events)
	<-done
	if err != nil {
		return summary, errors.Wrap(err, "draining the operation queue")
	}

	log.Plain(" done.\n")

	return summary, nil
}

func pull(reqCtx stdctx.Context, ctx context.JotCtx, full bool) error {
	var since int64
	if !full {
		s, err := getLastSyncAt(ctx.DB)
		if err != nil {
			return err
		}
		since = s
	}

	log.Info("receiving remote changes.")
	log.DebugNewline()
	log.Debug("getting changes since %d\n", since)

	resp, err := client.GetChanges(ctx, reqCtx, since)
	if err != nil {
		return errors.Wrap(err, "getting changes from the server")
	}

	log.Debug("received %d changes\n", len(resp.Notes))

	tx, err := ctx.DB.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning a transaction")
	}

	for _, note := range resp.Notes {
		if err := applyChange(ctx, tx, note); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "applying remote change for note %s", note.UUID)
		}
	}

	if err := database.UpsertSystem(tx, consts.SystemLastSyncAt, resp.CurrentTime); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "saving last sync time")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing remote changes")
	}

	log.Plain(" done.\n")

	return nil
}

func getLastSyncAt(db *database.DB) (int64, error) {
	var ret int64

	if err := database.GetSystem(db, consts.SystemLastSyncAt, &ret); err != nil {
		return ret, errors.Wrap(err, "querying last sync time")
	}

	return ret, nil
}
