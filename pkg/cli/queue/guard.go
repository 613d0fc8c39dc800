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

package queue

import (
	"github.com/jotline/jotline/pkg/cli/database"
	"github.com/pkg/errors"
)

// EditingOracle answers whether a note is currently open for editing locally
type EditingOracle interface {
	IsEditing(noteUUID string) bool
}

// SkipReason explains why a remote update must not be applied locally
type SkipReason string

// Skip reasons
const (
	// SkipNone means the remote update can be applied
	SkipNone SkipReason = ""
	// SkipActivelyEditing means the note is open for editing locally
	SkipActivelyEditing SkipReason = "actively-editing"
	// SkipPendingLocalChanges means an unsynced local change is at least as
	// new as the remote one
	SkipPendingLocalChanges SkipReason = "pending-local-changes"
)

// Guard decides whether an incoming remote update is allowed to overwrite a
// note that has unsynced local state. It is last-writer-wins at note
// granularity, with an actively-editing veto.
type Guard struct {
	db     *database.DB
	oracle EditingOracle
}

// NewGuard returns a Guard reading queue state from the given database
func NewGuard(db *database.DB, oracle EditingOracle) Guard {
	return Guard{db: db, oracle: oracle}
}

// Reason returns why the remote update with the given timestamp must be
// skipped, or SkipNone if it should be applied. The first matching rule
// wins: a note being actively edited is never overwritten, regardless of
// timestamps; otherwise a pending local change that is newer than or
// concurrent with the remote one takes precedence.
func (g Guard) Reason(noteUUID string, cloudTime int64) (SkipReason, error) {
	if g.oracle != nil && g.oracle.IsEditing(noteUUID) {
		return SkipActivelyEditing, nil
	}

	ops, err := ForNote(g.db, noteUUID)
	if err != nil {
		return SkipNone, errors.Wrapf(err, "getting pending operations for note %s", noteUUID)
	}

	for _, op := range ops {
		localTime := op.LocalSaveTS
		if localTime == 0 {
			localTime = op.CreatedAt
		}

		if localTime >= cloudTime {
			return SkipPendingLocalChanges, nil
		}
	}

	return SkipNone, nil
}

// ShouldSkip reports whether the remote update with the given timestamp must
// not be applied locally
func (g Guard) ShouldSkip(noteUUID string, cloudTime int64) (bool, error) {
	reason, err := g.Reason(noteUUID, cloudTime)
	if err != nil {
		return false, err
	}

	return reason != SkipNone, nil
}
