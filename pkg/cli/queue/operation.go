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

// Package queue implements the durable queue of pending note mutations and
// the machinery that reconciles them with the server: the operation records,
// the temporary-to-permanent id rewrite, the sync guard and the coordinator
// that drains the queue.
package queue

import (
	"time"

	"github.com/jotline/jotline/pkg/cli/database"
	"github.com/jotline/jotline/pkg/cli/utils"
	"github.com/pkg/errors"
)

// Kind is the kind of mutation an operation performs
type Kind string

// Operation kinds
const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Status is the lifecycle state of an operation. Processing is transient and
// never persisted mid-execution.
type Status string

// Operation statuses
const (
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
	StatusCompleted Status = "completed"
)

// Default priorities per kind. Higher is more urgent. Callers may override
// the priority at enqueue time.
const (
	PriorityDelete = 30
	PriorityCreate = 20
	PriorityUpdate = 10
)

// DefaultPriority returns the default priority for the given operation kind
func DefaultPriority(kind Kind) int {
	switch kind {
	case KindDelete:
		return PriorityDelete
	case KindCreate:
		return PriorityCreate
	default:
		return PriorityUpdate
	}
}

// Operation is a durable intent to mutate one note in the server
type Operation struct {
	UUID        string
	Kind        Kind
	NoteUUID    string
	Payload     string
	CreatedAt   int64
	LocalSaveTS int64
	Status      Status
	Priority    int
	RetryCount  int
	NextRetryAt int64
	LastError   string
	ErrorType   ErrorType
	IsLocalID   bool
}

// NewOperation constructs a pending operation with a fresh uuid
func NewOperation(kind Kind, noteUUID, payload string, localSaveTS int64, isLocalID bool, now time.Time) (Operation, error) {
	id, err := utils.GenerateUUID()
	if err != nil {
		return Operation{}, errors.Wrap(err, "generating operation uuid")
	}

	return Operation{
		UUID:        id,
		Kind:        kind,
		NoteUUID:    noteUUID,
		Payload:     payload,
		CreatedAt:   now.Unix(),
		LocalSaveTS: localSaveTS,
		Status:      StatusPending,
		Priority:    DefaultPriority(kind),
		IsLocalID:   isLocalID,
	}, nil
}

const operationColumns = "uuid, kind, note_uuid, payload, created_at, local_save_ts, status, priority, retry_count, next_retry_at, last_error, error_type, is_local_id"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOperation(row rowScanner) (Operation, error) {
	var op Operation
	err := row.Scan(&op.UUID, &op.Kind, &op.NoteUUID, &op.Payload, &op.CreatedAt, &op.LocalSaveTS,
		&op.Status, &op.Priority, &op.RetryCount, &op.NextRetryAt, &op.LastError, &op.ErrorType, &op.IsLocalID)
	if err != nil {
		return op, errors.Wrap(err, "scanning an operation row")
	}

	return op, nil
}

func queryOperations(db *database.DB, query string, args ...interface{}) ([]Operation, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying operations")
	}
	defer rows.Close()

	var ret []Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}

		ret = append(ret, op)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating operation rows")
	}

	return ret, nil
}

// Enqueue persists the given operation. A fresh save coalesces into an
// existing live record for the same (note, kind) pair, superseding any
// failed state so the user can retry by simply saving again. The original
// createdAt and priority are kept so the queue position is preserved.
func Enqueue(db *database.DB, op Operation) error {
	var existingUUID string
	err := db.QueryRow("SELECT uuid FROM operations WHERE note_uuid = ? AND kind = ? AND status != ?",
		op.NoteUUID, op.Kind, StatusCompleted).Scan(&existingUUID)
	if err != nil && err != errNoRows {
		return errors.Wrap(err, "checking for an existing operation")
	}

	if existingUUID != "" {
		_, err = db.Exec("UPDATE operations SET payload = ?, local_save_ts = ?, status = ?, retry_count = 0, next_retry_at = 0, last_error = '', error_type = '' WHERE uuid = ?",
			op.Payload, op.LocalSaveTS, StatusPending, existingUUID)
		if err != nil {
			return errors.Wrapf(err, "coalescing into operation %s", existingUUID)
		}

		return nil
	}

	_, err = db.Exec("INSERT INTO operations ("+operationColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		op.UUID, op.Kind, op.NoteUUID, op.Payload, op.CreatedAt, op.LocalSaveTS,
		op.Status, op.Priority, op.RetryCount, op.NextRetryAt, op.LastError, op.ErrorType, op.IsLocalID)
	if err != nil {
		return errors.Wrapf(err, "inserting operation %s", op.UUID)
	}

	return nil
}

// DequeueReady returns the operations eligible for execution at the given
// time: pending or retryable-failed records whose backoff has elapsed,
// ordered by priority and then insertion order so that equal-priority
// operations drain first-in-first-out.
func DequeueReady(db *database.DB, now time.Time, maxRetries int) ([]Operation, error) {
	return queryOperations(db,
		"SELECT "+operationColumns+` FROM operations
		WHERE (status = ? OR (status = ? AND retry_count < ? AND error_type != ?))
			AND (next_retry_at = 0 OR next_retry_at <= ?)
		ORDER BY priority DESC, created_at ASC, rowid ASC`,
		StatusPending, StatusFailed, maxRetries, ErrorValidation, now.Unix())
}

// ForNote returns all live operations targeting the given note
func ForNote(db *database.DB, noteUUID string) ([]Operation, error) {
	return queryOperations(db,
		"SELECT "+operationColumns+" FROM operations WHERE note_uuid = ? ORDER BY priority DESC, created_at ASC, rowid ASC",
		noteUUID)
}

// PendingOperations returns all live operations, or those for one note if
// noteUUID is non-empty. Terminal failures are included so the caller can
// surface them.
func PendingOperations(db *database.DB, noteUUID string) ([]Operation, error) {
	if noteUUID != "" {
		return ForNote(db, noteUUID)
	}

	return queryOperations(db,
		"SELECT "+operationColumns+" FROM operations ORDER BY priority DESC, created_at ASC, rowid ASC")
}

// PendingCount returns the number of live operations, scoped to one note if
// noteUUID is non-empty
func PendingCount(db *database.DB, noteUUID string) (int, error) {
	var count int
	var err error
	if noteUUID == "" {
		err = db.QueryRow("SELECT count(*) FROM operations").Scan(&count)
	} else {
		err = db.QueryRow("SELECT count(*) FROM operations WHERE note_uuid = ?", noteUUID).Scan(&count)
	}
	if err != nil {
		return 0, errors.Wrap(err, "counting operations")
	}

	return count, nil
}

// MarkCompleted transitions the operation to completed
func MarkCompleted(db *database.DB, uuid string) error {
	_, err := db.Exec("UPDATE operations SET status = ?, next_retry_at = 0, last_error = '', error_type = '' WHERE uuid = ?",
		StatusCompleted, uuid)
	if err != nil {
		return errors.Wrapf(err, "marking operation %s completed", uuid)
	}

	return nil
}

// MarkFailed records a failed attempt on the operation, computing the next
// retry time from the policy. Validation failures and operations past the
// retry ceiling become terminal: they keep no retry schedule and are never
// dequeued again. The given operation is updated in place.
func MarkFailed(db *database.DB, op *Operation, message string, errType ErrorType, p RetryPolicy, now time.Time) error {
	delay := p.Delay(op.RetryCount)

	op.RetryCount++
	op.Status = StatusFailed
	op.LastError = message
	op.ErrorType = errType

	if errType == ErrorValidation || op.RetryCount >= p.MaxRetries {
		op.NextRetryAt = 0
	} else {
		op.NextRetryAt = now.Add(delay).Unix()
	}

	_, err := db.Exec("UPDATE operations SET status = ?, retry_count = ?, next_retry_at = ?, last_error = ?, error_type = ? WHERE uuid = ?",
		op.Status, op.RetryCount, op.NextRetryAt, op.LastError, op.ErrorType, op.UUID)
	if err != nil {
		return errors.Wrapf(err, "marking operation %s failed", op.UUID)
	}

	return nil
}

// IsTerminal reports whether the operation will no longer be retried
// automatically and requires user action
func IsTerminal(op Operation, p RetryPolicy) bool {
	if op.Status != StatusFailed {
		return false
	}

	return op.ErrorType == ErrorValidation || op.RetryCount >= p.MaxRetries
}

// RewriteNoteUUID updates the note uuid on every operation referencing the
// old id and clears the local-id flag. It must run inside the same
// transaction that rewrites the note row itself.
func RewriteNoteUUID(tx *database.DB, oldUUID, newUUID string) error {
	if !tx.InTransaction() {
		return errors.New("note uuid rewrite requires a transaction")
	}

	_, err := tx.Exec("UPDATE operations SET note_uuid = ?, is_local_id = ? WHERE note_uuid = ?", newUUID, false, oldUUID)
	if err != nil {
		return errors.Wrapf(err, "rewriting operations from note %s to %s", oldUUID, newUUID)
	}

	return nil
}
