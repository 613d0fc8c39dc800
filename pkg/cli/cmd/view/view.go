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

package view

import (
	"strconv"

	"github.com/jotline/jotline/pkg/cli/context"
	"github.com/jotline/jotline/pkg/cli/database"
	"github.com/jotline/jotline/pkg/cli/infra"
	"github.com/jotline/jotline/pkg/cli/output"
	"github.com/jotline/jotline/pkg/cli/queue"
	"github.com/jotline/jotline/pkg/cli/utils"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var contentOnlyFlag bool

var example = `
 * List all notes
 jot view

 * View a note by id
 jot view 12

 * Print only the content of a note
 jot view 12 --content-only
`

// NewCmd returns a new view command
func NewCmd(ctx context.JotCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "view [note id]",
		Short:   "List notes or view a note",
		Aliases: []string{"v", "ls"},
		Example: example,
		PreRunE: preRun,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.BoolVar(&contentOnlyFlag, "content-only", false, "print the note content only")

	return cmd
}

func preRun(cmd *cobra.Command, args []string) error {
	if len(args) > 1 {
		return errors.New("incorrect number of argument")
	}

	return nil
}

func newRun(ctx context.JotCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			if err := printNotes(ctx); err != nil {
				return errors.Wrap(err, "listing notes")
			}

			return nil
		}

		if err := printNote(ctx, args[0]); err != nil {
			return errors.Wrap(err, "viewing note")
		}

		return nil
	}
}

func printNotes(ctx context.JotCtx) error {
	notes, err := database.ListNotes(ctx.DB)
	if err != nil {
		return errors.Wrap(err, "getting notes")
	}

	for _, note := range notes {
		pendingCount, err := queue.PendingCount(ctx.DB, note.UUID)
		if err != nil {
			return errors.Wrapf(err, "counting queued changes for note %s", note.UUID)
		}

		output.NoteLine(note, pendingCount)
	}

	return nil
}

func printNote(ctx context.JotCtx, target string) error {
	var note database.Note
	var err error

	if utils.IsNumber(target) {
		var rowID int
		rowID, err = strconv.Atoi(target)
		if err != nil {
			return errors.Wrap(err, "parsing note id")
		}

		note, err = database.GetNoteByRowID(ctx.DB, rowID)
	} else {
		note, err = database.GetNote(ctx.DB, target)
	}
	if err != nil {
		return errors.Wrap(err, "finding the note")
	}

	if contentOnlyFlag {
		output.NoteContent(note)
		return nil
	}

	pendingCount, err := queue.PendingCount(ctx.DB, note.UUID)
	if err != nil {
		return errors.Wrap(err, "counting queued changes")
	}

	output.NoteInfo(note, pendingCount)

	return nil
}
