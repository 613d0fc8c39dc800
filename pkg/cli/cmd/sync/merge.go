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
	"database/sql"
	"strings"

	"github.com/jotline/jotline/pkg/cli/client"
	"github.com/jotline/jotline/pkg/cli/context"
	"github.com/jotline/jotline/pkg/cli/database"
	"github.com/jotline/jotline/pkg/cli/log"
	"github.com/jotline/jotline/pkg/cli/queue"
	"github.com/jotline/jotline/pkg/cli/ui"
	"github.com/jotline/jotline/pkg/cli/utils/diff"
	"github.com/pkg/errors"
)

const (
	conflictLocal   = "<<<<<<< local"
	conflictDivider = "======="
	conflictServer  = ">>>>>>> server"
)

// applyChange merges one remote note change into the local database inside
// the given transaction. A note that is open for editing, or that has a
// pending local change at least as new as the remote one, is left untouched;
// the local side wins until it is pushed. A remote change that is newer than
// every pending local change supersedes them: the stale operations are
// retired and both versions are kept in the body between conflict markers.
func applyChange(ctx context.JotCtx, tx *database.DB, remoteNote client.RespNote) error {
	guard := queue.NewGuard(tx, ui.NewEditLocks(ctx.EditLockDir()))

	reason, err := guard.Reason(remoteNote.UUID, remoteNote.EditedOn)
	if err != nil {
		return errors.Wrap(err, "checking if the remote change can be applied")
	}

	switch reason {
	case queue.SkipActivelyEditing:
		log.Debug("skipping remote change for note %s: being edited\n", remoteNote.UUID)
		return nil
	case queue.SkipPendingLocalChanges:
		log.Debug("skipping remote change for note %s: newer local change pending\n", remoteNote.UUID)
		return nil
	}

	stale, err := queue.PendingOperations(tx, remoteNote.UUID)
	if err != nil {
		return errors.Wrap(err, "getting stale operations for the note")
	}

	if remoteNote.Deleted {
		return expungeNote(tx, remoteNote.UUID, stale, ctx.Clock.Now().Unix())
	}

	localNote, err := database.GetNote(tx, remoteNote.UUID)
	if errors.Cause(err) == sql.ErrNoRows {
		note := database.NewNote(remoteNote.UUID, remoteNote.Body, remoteNote.CreatedAt.Unix(), remoteNote.EditedOn, false, false)
		if err := note.Insert(tx); err != nil {
			return errors.Wrapf(err, "inserting note %s", remoteNote.UUID)
		}

		return nil
	} else if err != nil {
		return errors.Wrapf(err, "getting local note %s", remoteNote.UUID)
	}

	body := remoteNote.Body
	conflicted := false

	// the remote change outran a local edit that was saved but never made it
	// to the server. keep both versions and let the user resolve.
	if len(stale) > 0 && localNote.Body != remoteNote.Body {
		body = markConflict(localNote.Body, remoteNote.Body)
		conflicted = true

		log.Debug("note %s conflicted: remote change superseded %d local operations\n", remoteNote.UUID, len(stale))
	}

	if err := retireOperations(tx, stale, ctx.Clock.Now().Unix()); err != nil {
		return err
	}

	localNote.Body = body
	localNote.EditedOn = remoteNote.EditedOn
	localNote.Deleted = false
	localNote.Conflicted = conflicted
	if err := localNote.Update(tx); err != nil {
		return errors.Wrapf(err, "updating note %s", remoteNote.UUID)
	}

	return nil
}

// expungeNote hard-deletes a note that was deleted in the server, retiring
// any stale operations that still reference it
func expungeNote(tx *database.DB, noteUUID string, stale []queue.Operation, now int64) error {
	if err := retireOperations(tx, stale, now); err != nil {
		return err
	}

	note := database.Note{UUID: noteUUID}
	if err := note.Expunge(tx); err != nil {
		return errors.Wrapf(err, "expunging note %s", noteUUID)
	}

	return nil
}

// retireOperations removes superseded operations from the live queue and
// records them in the history
func retireOperations(tx *database.DB, ops []queue.Operation, now int64) error {
	for _, op := range ops {
		if err := queue.MarkCompleted(tx, op.UUID); err != nil {
			return errors.Wrapf(err, "retiring operation %s", op.UUID)
		}

		op.Status = queue.StatusCompleted
		op.LastError = ""
		op.ErrorType = ""
		if err := queue.Archive(tx, op, now); err != nil {
			return errors.Wrapf(err, "archiving operation %s", op.UUID)
		}
	}

	return nil
}

// markConflict joins the local and remote versions of a note body into a
// single body with conflict markers around the differing regions
func markConflict(local, server string) string {
	diffs := diff.Do(local, server)

	var b strings.Builder

	i := 0
	for i < len(diffs) {
		d := diffs[i]

		if d.Type == diff.DiffEqual {
			b.WriteString(d.Text)
			i++
			continue
		}

		// collect one run of consecutive non-equal diffs into a single block
		var localText, serverText strings.Builder
		for i < len(diffs) && diffs[i].Type != diff.DiffEqual {
			switch diffs[i].Type {
			case diff.DiffDelete:
				localText.WriteString(diffs[i].Text)
			case diff.DiffInsert:
				serverText.WriteString(diffs[i].Text)
			}
			i++
		}

		b.WriteString(conflictLocal)
		b.WriteString("\n")
		b.WriteString(ensureTrailingNewline(localText.String()))
		b.WriteString(conflictDivider)
		b.WriteString("\n")
		b.WriteString(ensureTrailingNewline(serverText.String()))
		b.WriteString(conflictServer)
		b.WriteString("\n")
	}

	return b.String()
}

func ensureTrailingNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}

	return s + "\n"
}
