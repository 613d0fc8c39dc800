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

package edit

import (
	"os"
	"strconv"

	"github.com/jotline/jotline/pkg/cli/client"
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

var contentFlag string

var example = `
  * Edit a note by id
  jot edit 3

  * Edit a note without launching an editor
  jot edit 3 -c "new content"
`

// NewCmd returns a new edit command
func NewCmd(ctx context.JotCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "edit <note id>",
		Short:   "Edit a note",
		Aliases: []string{"e"},
		Example: example,
		PreRunE: preRun,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.StringVarP(&contentFlag, "content", "c", "", "a new content for the note")

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

func getContent(ctx context.JotCtx, note database.Note, locks ui.EditLocks) (string, error) {
	if contentFlag != "" {
		return contentFlag, nil
	}

	fpath, err := ui.GetTmpContentPath(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting temporarily content file path")
	}

	// hold the lock while the editor is open so a concurrent sync does not
	// overwrite the note mid-edit
	if err := locks.Acquire(note.UUID); err != nil {
		return "", errors.Wrap(err, "locking the note")
	}
	defer func() {
		if err := locks.Release(note.UUID); err != nil {
			log.Error(errors.Wrap(err, "unlocking the note").Error())
		}
	}()

	if err := os.WriteFile(fpath, []byte(note.Body), 0644); err != nil {
		return "", errors.Wrap(err, "preparing the content file")
	}

	c, err := ui.GetEditorInput(ctx, fpath)
	if err != nil {
		return "", errors.Wrap(err, "getting editor input")
	}

	return c, nil
}

func newRun(ctx context.JotCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		note, err := getNote(ctx, args[0])
		if err != nil {
			return errors.Wrap(err, "finding the note")
		}
		if note.Deleted {
			return errors.New("the note is deleted")
		}

		locks := ui.NewEditLocks(ctx.EditLockDir())

		content, err := getContent(ctx, note, locks)
		if err != nil {
			return errors.Wrap(err, "getting content")
		}
		if content == note.Body {
			log.Plain("no change\n")
			return nil
		}

		ts := ctx.Clock.Now().Unix()
		if err := saveEdit(ctx, note, content, ts); err != nil {
			return errors.Wrap(err, "saving the edit")
		}

		log.Successf("edited note %d\n", note.RowID)

		return nil
	}
}

// saveEdit persists the new body and queues the update in one transaction.
// A repeated edit before a sync collapses into the already queued update.
func saveEdit(ctx context.JotCtx, note database.Note, content string, ts int64) error {
	isLocalID, err := noteHasLocalID(ctx.DB, note.UUID)
	if err != nil {
		return errors.Wrap(err, "checking the note id state")
	}

	payload, err := client.NotePayload{Body: content, AddedOn: note.AddedOn, EditedOn: ts}.Serialize()
	if err != nil {
		return errors.Wrap(err, "serializing the payload")
	}

	op, err := queue.NewOperation(queue.KindUpdate, note.UUID, payload, ts, isLocalID, ctx.Clock.Now())
	if err != nil {
		return errors.Wrap(err, "constructing the operation")
	}

	tx, err := ctx.DB.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning a transaction")
	}

	note.Body = content
	note.EditedOn = ts
	note.Conflicted = false
	if err := note.Update(tx); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "updating the note")
	}

	if err := queue.Enqueue(tx, op); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "queueing the note update")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing a transaction")
	}

	return nil
}

// noteHasLocalID reports whether the note still carries a temporary id,
// which is the case while its create has not reached the server
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
