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
	"fmt"
	"testing"
	"time"

	"github.com/jotline/jotline/pkg/assert"
	"github.com/jotline/jotline/pkg/cli/database"
	"github.com/pkg/errors"
)

func TestArchive(t *testing.T) {
	// set up
	db := database.InitTestMemoryDB(t)

	t0 := time.Unix(1000, 0)
	op := mustEnqueue(t, db, mustNewOperation(t, KindCreate, "note-1", "hello", 0, true, t0))
	op.Status = StatusCompleted

	// execute
	tx, err := db.Begin()
	if err != nil {
		t.Fatal(errors.Wrap(err, "beginning transaction"))
	}
	if err := Archive(tx, op, 2000); err != nil {
		t.Fatal(errors.Wrap(err, "archiving"))
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(errors.Wrap(err, "committing"))
	}

	// test
	count, err := PendingCount(db, "")
	if err != nil {
		t.Fatal(errors.Wrap(err, "counting operations"))
	}
	assert.Equal(t, count, 0, "the live record should be deleted")

	entries, err := RecentHistory(db, 10)
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting history"))
	}
	assert.Equal(t, len(entries), 1, "history count mismatch")
	assert.Equal(t, entries[0].OperationUUID, op.UUID, "operation uuid mismatch")
	assert.Equal(t, entries[0].Kind, KindCreate, "kind mismatch")
	assert.Equal(t, entries[0].Status, StatusCompleted, "status mismatch")
	assert.Equal(t, entries[0].CompletedAt, int64(2000), "completed_at mismatch")
}

func TestArchive_requiresTransaction(t *testing.T) {
	// set up
	db := database.InitTestMemoryDB(t)

	op := mustEnqueue(t, db, mustNewOperation(t, KindCreate, "note-1", "hello", 0, true, time.Unix(1000, 0)))

	// execute
	err := Archive(db, op, 2000)

	// test
	assert.NotEqual(t, err, nil, "archiving outside a transaction should fail")

	count, err := PendingCount(db, "")
	if err != nil {
		t.Fatal(errors.Wrap(err, "counting operations"))
	}
	assert.Equal(t, count, 1, "the live record should be untouched")
}

func TestArchive_rollback(t *testing.T) {
	// set up
	db := database.InitTestMemoryDB(t)

	op := mustEnqueue(t, db, mustNewOperation(t, KindCreate, "note-1", "hello", 0, true, time.Unix(1000, 0)))

	// execute
	tx, err := db.Begin()
	if err != nil {
		t.Fatal(errors.Wrap(err, "beginning transaction"))
	}
	if err := Archive(tx, op, 2000); err != nil {
		t.Fatal(errors.Wrap(err, "archiving"))
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(errors.Wrap(err, "rolling back"))
	}

	// test: neither side of the move happened
	count, err := PendingCount(db, "")
	if err != nil {
		t.Fatal(errors.Wrap(err, "counting operations"))
	}
	assert.Equal(t, count, 1, "the live record should survive the rollback")

	entries, err := RecentHistory(db, 10)
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting history"))
	}
	assert.Equal(t, len(entries), 0, "no history entry should survive the rollback")
}

func TestRecentHistory_ordering(t *testing.T) {
	// set up
	db := database.InitTestMemoryDB(t)

	t0 := time.Unix(1000, 0)
	for i := 0; i < 3; i++ {
		op := mustEnqueue(t, db, mustNewOperation(t, KindUpdate, fmt.Sprintf("note-%d", i), "", 0, false, t0))
		op.Status = StatusCompleted

		tx, err := db.Begin()
		if err != nil {
			t.Fatal(errors.Wrap(err, "beginning transaction"))
		}
		if err := Archive(tx, op, int64(2000+i)); err != nil {
			t.Fatal(errors.Wrap(err, "archiving"))
		}
		if err := tx.Commit(); err != nil {
			t.Fatal(errors.Wrap(err, "committing"))
		}
	}

	// execute
	entries, err := RecentHistory(db, 2)
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting history"))
	}

	// test
	assert.Equal(t, len(entries), 2, "the limit should apply")
	assert.Equal(t, entries[0].NoteUUID, "note-2", "the newest entry should come first")
	assert.Equal(t, entries[1].NoteUUID, "note-1", "ordering mismatch")
}

func TestTruncateHistory(t *testing.T) {
	// set up
	db := database.InitTestMemoryDB(t)

	t0 := time.Unix(1000, 0)
	for i := 0; i < 5; i++ {
		op := mustEnqueue(t, db, mustNewOperation(t, KindUpdate, fmt.Sprintf("note-%d", i), "", 0, false, t0))
		op.Status = StatusCompleted

		tx, err := db.Begin()
		if err != nil {
			t.Fatal(errors.Wrap(err, "beginning transaction"))
		}
		if err := Archive(tx, op, int64(2000+i)); err != nil {
			t.Fatal(errors.Wrap(err, "archiving"))
		}
		if err := tx.Commit(); err != nil {
			t.Fatal(errors.Wrap(err, "committing"))
		}
	}

	// execute
	if err := TruncateHistory(db, 2); err != nil {
		t.Fatal(errors.Wrap(err, "truncating"))
	}

	// test
	entries, err := RecentHistory(db, 10)
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting history"))
	}
	assert.Equal(t, len(entries), 2, "only the most recent entries should remain")
	assert.Equal(t, entries[0].NoteUUID, "note-4", "the newest entry should remain")
	assert.Equal(t, entries[1].NoteUUID, "note-3", "the second newest entry should remain")
}
