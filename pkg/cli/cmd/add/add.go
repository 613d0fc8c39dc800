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

package add

import (
	"os"

	"github.com/jotline/jotline/pkg/cli/client"
	"github.com/jotline/jotline/pkg/cli/context"
	"github.com/jotline/jotline/pkg/cli/database"
	"github.com/jotline/jotline/pkg/cli/infra"
	"github.com/jotline/jotline/pkg/cli/log"
	"github.com/jotline/jotline/pkg/cli/output"
	"github.com/jotline/jotline/pkg/cli/queue"
	"github.com/jotline/jotline/pkg/cli/ui"
	"github.com/jotline/jotline/pkg/cli/upgrade"
	"github.com/jotline/jotline/pkg/cli/utils"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var contentFlag string

var example = `
 * Open an editor to write content
 jot add

 * Skip the editor by providing content directly
 jot add -c "time is a part of the commit hash"

 * Send stdin content to a note
 echo "a branch is just a pointer to a commit" | jot add
 # or
 jot add << EOF
 pull is fetch with a merge
 EOF`

// NewCmd returns a new add command
func NewCmd(ctx context.JotCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Add a new note",
		Aliases: []string{"a", "n", "new"},
		Example: example,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.StringVarP(&contentFlag, "content", "c", "", "The new content for the note")

	return cmd
}

func getContent(ctx context.JotCtx) (string, error) {
	if contentFlag != "" {
		return contentFlag, nil
	}

	// check for piped content
	fInfo, _ := os.Stdin.Stat()
	if fInfo.Mode()&os.ModeCharDevice == 0 {
		c, err := ui.ReadStdInput()
		if err != nil {
			return "", errors.Wrap(err, "getting piped input")
		}
		return c, nil
	}

	fpath, err := ui.GetTmpContentPath(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting temporarily content file path")
	}

	c, err := ui.GetEditorInput(ctx, fpath)
	if err != nil {
		return "", errors.Wrap(err, "getting editor input")
	}

	return c, nil
}

func newRun(ctx context.JotCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		content, err := getContent(ctx)
		if err != nil {
			return errors.Wrap(err, "getting content")
		}
		if content == "" {
			return errors.New("empty content")
		}

		ts := ctx.Clock.Now().Unix()
		note, err := writeNote(ctx, content, ts)
		if err != nil {
			return errors.Wrap(err, "writing note")
		}

		log.Successf("added note %d\n", note.RowID)

		pendingCount, err := queue.PendingCount(ctx.DB, note.UUID)
		if err != nil {
			return errors.Wrap(err, "counting queued changes")
		}
		output.NoteInfo(note, pendingCount)

		if err := upgrade.Check(ctx); err != nil {
			log.Error(errors.Wrap(err, "automatically checking updates").Error())
		}

		return nil
	}
}

// writeNote saves the note under a temporary uuid and queues the create in
// the same transaction, so a saved note never misses its queue entry
func writeNote(ctx context.JotCtx, content string, ts int64) (database.Note, error) {
	noteUUID, err := utils.GenerateUUID()
	if err != nil {
		return database.Note{}, errors.Wrap(err, "generating uuid")
	}

	payload, err := client.NotePayload{Body: content, AddedOn: ts, EditedOn: ts}.Serialize()
	if err != nil {
		return database.Note{}, errors.Wrap(err, "serializing the payload")
	}

	op, err := queue.NewOperation(queue.KindCreate, noteUUID, payload, ts, true, ctx.Clock.Now())
	if err != nil {
		return database.Note{}, errors.Wrap(err, "constructing the operation")
	}

	tx, err := ctx.DB.Begin()
	if err != nil {
		return database.Note{}, errors.Wrap(err, "beginning a transaction")
	}

	n := database.NewNote(noteUUID, content, ts, 0, false, false)
	if err := n.Insert(tx); err != nil {
		tx.Rollback()
		return database.Note{}, errors.Wrap(err, "creating the note")
	}

	if err := queue.Enqueue(tx, op); err != nil {
		tx.Rollback()
		return database.Note{}, errors.Wrap(err, "queueing the note creation")
	}

	if err := tx.Commit(); err != nil {
		return database.Note{}, errors.Wrap(err, "committing a transaction")
	}

	ret, err := database.GetNote(ctx.DB, noteUUID)
	if err != nil {
		return database.Note{}, errors.Wrap(err, "getting the note")
	}

	return ret, nil
}
