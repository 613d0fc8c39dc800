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

package remove

import (
	"strconv"

	"github.com/jotline/jotline/pkg/cli/context"
	"github.com/jotline/jotline/pkg/cli/database"
	"github.com/jotline/jotline/pkg/cli/infra"
	"github.com/jotline/jotline/pkg/cli/log"
	"github.com/jotline/jotline/pkg/cli/queue"
	"github.com/jotline/jotline/pkg/cli/ui"
	"github.com/jotline/jotline/pkg/cli/utils"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var yesFlag bool

var example = `
  * Remove a note by id
  jot remove 3

  * Skip the confirmation prompt
  jot remove 3 -y
`

// NewCmd returns a new remove command
func NewCmd(ctx context.JotCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove <note id>",
		Short:   "Remove a note",
		Aliases: []string{"rm", "d"},
		Example: example,
		PreRunE: preRun,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.BoolVarP(&yesFlag, "yes", "y", false, "remove without asking for confirmation")

	return cmd
}

func preRun(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("incorrect number of argument")
	}

	return nil
}

func getNote(ctx context.JotCtx, target string) (database.Note, error) {
	if utils.IsNumber(target) {
		rowID, err := strconv.Atoi(target)
		if err != nil {
			return database.Note{}, errors.Wrap(err, "parsing note id")
		}

		return database.GetNoteByRowID(ctx.DB, rowID)
	}

	return database.GetNote(ctx.DB, target)
}

func newRun(ctx context.JotCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		note, err := getNote(ctx, args[0])
		if err != nil {
			return errors.Wrap(err, "finding the note")
		}
		if note.Deleted {
			return errors.New("the note is already removed")
		}

		if !yesFlag {
			ok, err := ui.Confirm("remove this note?", false)
			if err != nil {
				return errors.Wrap(err, "getting confirmation")
			}
			if !ok {
				log.Plain("aborted\n")
				return nil
			}
		}

		if err := removeNote(ctx, note); err != nil {
			return errors.Wrap(err, "removing the note")
		}

		log.Successf("removed note %d\n", note.RowID)

		return nil
	}
}

// removeNote marks the note deleted and queues the delete in one
// transaction. The row stays until the server confirms so the deletion
// survives a crash before the next sync.
func removeNote(ctx context.JotCtx, note database.Note) error {
	isLocalID, err := noteHasLocalID(ctx.DB, note.UUID)
	if err != nil {
		return errors.Wrap(err, "checking the note id state")
	}

	ts := ctx.Clock.Now().Unix()

	op, err := queue.NewOperation(queue.KindDelete, note.UUID, "", ts, isLocalID, ctx.Clock.Now())
	if err != nil {
		return errors.Wrap(err, "constructing the operation")
	}

	tx, err := ctx.DB.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning a transaction")
	}

	note.Deleted = true
	note.EditedOn = ts
	if err := note.Update(tx); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "marking the note deleted")
	}

	if err := queue.Enqueue(tx, op); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "queueing the note deletion")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing a transaction")
	}

	return nil
}

func noteHasLocalID(db *database.DB, noteUUID string) (bool, error) {
	ops, err := queue.ForNote(db, noteUUID)
	if err != nil {
		return false, errors.Wrapf(err, "getting operations for note %s", noteUUID)
	}

	for _, op := range ops {
		if op.IsLocalID {
			return true, nil
		}
	}

	return false, nil
}
