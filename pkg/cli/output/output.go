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

// Package output provides functions to print informations on the terminal
// in a consistent manner
package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/jotline/jotline/pkg/cli/database"
	"github.com/jotline/jotline/pkg/cli/log"
	"github.com/jotline/jotline/pkg/cli/queue"
)

// NoteInfo prints a note information
func NoteInfo(note database.Note, pendingCount int) {
	log.Infof("created at: %s\n", time.Unix(note.AddedOn, 0).Format("Jan 2, 2006 3:04pm (MST)"))
	if note.EditedOn != 0 {
		log.Infof("updated at: %s\n", time.Unix(note.EditedOn, 0).Format("Jan 2, 2006 3:04pm (MST)"))
	}
	log.Infof("note id: %d\n", note.RowID)
	log.Infof("note uuid: %s\n", note.UUID)
	if pendingCount > 0 {
		log.Infof("unsynced changes: %d\n", pendingCount)
	}
	if note.Conflicted {
		log.Warnf("this note has conflict markers from a sync\n")
	}

	fmt.Printf("\n------------------------content------------------------\n")
	fmt.Printf("%s", note.Body)
	fmt.Printf("\n-------------------------------------------------------\n")
}

// NoteContent prints the raw content of a note
func NoteContent(note database.Note) {
	fmt.Printf("%s", note.Body)
}

// NoteLine prints a one-line summary of a note for a listing, with a badge
// for unsynced or conflicted state
func NoteLine(note database.Note, pendingCount int) {
	badge := ""
	if note.Conflicted {
		badge = log.ColorRed.Sprint(" (conflict)")
	} else if pendingCount > 0 {
		badge = log.ColorYellow.Sprint(" (unsynced)")
	}

	body := note.Body
	if idx := strings.Index(body, "\n"); idx != -1 {
		body = body[:idx] + " [---More---]"
	}

	log.Plainf("(%s) %s%s\n", log.ColorYellow.Sprintf("%d", note.RowID), body, badge)
}

// OperationLine prints a one-line summary of a queued operation
func OperationLine(op queue.Operation, terminal bool) {
	var state string
	switch {
	case terminal:
		state = log.ColorRed.Sprint("failed")
	case op.Status == queue.StatusFailed:
		state = log.ColorYellow.Sprintf("retry %d", op.RetryCount)
	default:
		state = log.ColorGray.Sprint("pending")
	}

	line := fmt.Sprintf("%-8s %-10s note %s", op.Kind, state, op.NoteUUID)
	if op.LastError != "" {
		line = fmt.Sprintf("%s: %s", line, op.LastError)
	}

	log.Plainf("%s\n", line)
}
