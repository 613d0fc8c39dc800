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

// HistoryEntry is an immutable snapshot of a finished operation
type HistoryEntry struct {
	OperationUUID string
	Kind          Kind
	NoteUUID      string
	Payload       string
	CreatedAt     int64
	Status        Status
	RetryCount    int
	LastError     string
	ErrorType     ErrorType
	CompletedAt   int64
}

// Archive snapshots the operation into the history table and deletes it
// from the live table. Both writes must happen in the same transaction so
// that an operation is never both live and archived, or neither.
func Archive(tx *database.DB, op Operation, completedAt int64) error {
	if !tx.InTransaction() {
		return errors.New("archiving requires a transaction")
	}

	_, err := tx.Exec(`INSERT OR REPLACE INTO operation_history
		(operation_uuid, kind, note_uuid, payload, created_at, status, retry_count, last_error, error_type, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.UUID, op.Kind, op.NoteUUID, op.Payload, op.CreatedAt, op.Status, op.RetryCount, op.LastError, op.ErrorType, completedAt)
	if err != nil {
		return errors.Wrapf(err, "archiving operation %s", op.UUID)
	}

	if _, err := tx.Exec("DELETE FROM operations WHERE uuid = ?", op.UUID); err != nil {
		return errors.Wrapf(err, "deleting the archived operation %s", op.UUID)
	}

	return nil
}

// RecentHistory returns the most recent history entries up to the given limit
func RecentHistory(db *database.DB, limit int) ([]HistoryEntry, error) {
	rows, err := db.Query(`SELECT operation_uuid, kind, note_uuid, payload, created_at, status, retry_count, last_error, error_type, completed_at
		FROM operation_history ORDER BY completed_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying operation history")
	}
	defer rows.Close()

	var ret []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		err := rows.Scan(&e.OperationUUID, &e.Kind, &e.NoteUUID, &e.Payload, &e.CreatedAt, &e.Status,
			&e.RetryCount, &e.LastError, &e.ErrorType, &e.CompletedAt)
		if err != nil {
			return nil, errors.Wrap(err, "scanning a history row")
		}

		ret = append(ret, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating history rows")
	}

	return ret, nil
}

// TruncateHistory deletes all but the most recent keep entries
func TruncateHistory(db *database.DB, keep int) error {
	_, err := db.Exec(`DELETE FROM operation_history WHERE rowid NOT IN
		(SELECT rowid FROM operation_history ORDER BY completed_at DESC, rowid DESC LIMIT ?)`, keep)
	if err != nil {
		return errors.Wrap(err, "truncating operation history")
	}

	return nil
}
