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
	"strings"
	"testing"
	"time"

	"github.com/jotline/jotline/pkg/assert"
	"github.com/jotline/jotline/pkg/cli/client"
	"github.com/jotline/jotline/pkg/cli/context"
	"github.com/jotline/jotline/pkg/cli/database"
	"github.com/jotline/jotline/pkg/cli/queue"
	"github.com/pkg/errors"
)

func mustApplyChange(t *testing.T, ctx context.JotCtx, remoteNote client.RespNote) {
	t.Helper()

	tx, err := ctx.DB.Begin()
	if err != nil {
		t.Fatal(errors.Wrap(err, "beginning a transaction"))
	}

	if err := applyChange(ctx, tx, remoteNote); err != nil {
		tx.Rollback()
		t.Fatal(errors.Wrap(err, "applying change"))
	}

	if err := tx.Commit(); err != nil {
		t.Fatal(errors.Wrap(err, "committing"))
	}
}

func mustGetNote(t *testing.T, db *database.DB, uuid string) database.Note {
	t.Helper()

	note, err := database.GetNote(db, uuid)
	if err != nil {
		t.Fatal(errors.Wrapf(err, "getting note %s", uuid))
	}

	return note
}

func countNotes(t *testing.T, db *database.DB, uuid string) int {
	t.Helper()

	var count int
	database.MustScan(t, "counting notes",
		db.QueryRow("SELECT count(*) FROM notes WHERE uuid = ?", uuid), &count)

	return count
}

func TestApplyChange_insertsNewNote(t *testing.T) {
	// set up
	ctx := context.InitTestCtx(t)
	ctx.DB = database.InitTestMemoryDB(t)

	// execute
	mustApplyChange(t, ctx, client.RespNote{
		UUID:      "srv-1",
		CreatedAt: time.Unix(1500, 0),
		Body:      "from the server",
		EditedOn:  1500,
	})

	// test
	note := mustGetNote(t, ctx.DB, "srv-1")
	assert.Equal(t, note.Body, "from the server", "body mismatch")
	assert.Equal(t, note.AddedOn, int64(1500), "added_on mismatch")
	assert.Equal(t, note.EditedOn, int64(1500), "edited_on mismatch")
	assert.Equal(t, note.Conflicted, false, "conflicted mismatch")
}

func TestApplyChange_updatesCleanNote(t *testing.T) {
	// set up
	ctx := context.InitTestCtx(t)
	ctx.DB = database.InitTestMemoryDB(t)

	note := database.NewNote("srv-1", "old body", 100, 100, false, false)
	if err := note.Insert(ctx.DB); err != nil {
		t.Fatal(errors.Wrap(err, "inserting note"))
	}

	// execute
	mustApplyChange(t, ctx, client.RespNote{
		UUID:      "srv-1",
		CreatedAt: time.Unix(100, 0),
		Body:      "new body",
		EditedOn:  1500,
	})

	// test
	got := mustGetNote(t, ctx.DB, "srv-1")
	assert.Equal(t, got.Body, "new body", "body mismatch")
	assert.Equal(t, got.EditedOn, int64(1500), "edited_on mismatch")
	assert.Equal(t, got.Conflicted, false, "conflicted mismatch")
}

func TestApplyChange_pendingLocalNewerWins(t *testing.T) {
	// set up
	ctx := context.InitTestCtx(t)
	ctx.DB = database.InitTestMemoryDB(t)

	note := database.NewNote("srv-1", "local body", 100, 2000, false, false)
	if err := note.Insert(ctx.DB); err != nil {
		t.Fatal(errors.Wrap(err, "inserting note"))
	}

	op, err := queue.NewOperation(queue.KindUpdate, "srv-1", "local body", 2000, false, time.Unix(2000, 0))
	if err != nil {
		t.Fatal(errors.Wrap(err, "constructing operation"))
	}
	if err := queue.Enqueue(ctx.DB, op); err != nil {
		t.Fatal(errors.Wrap(err, "enqueueing operation"))
	}

	// execute
	mustApplyChange(t, ctx, client.RespNote{
		UUID:      "srv-1",
		CreatedAt: time.Unix(100, 0),
		Body:      "remote body",
		EditedOn:  1500,
	})

	// test
	got := mustGetNote(t, ctx.DB, "srv-1")
	assert.Equal(t, got.Body, "local body", "local body should have been kept")
	assert.Equal(t, got.Conflicted, false, "conflicted mismatch")

	ops, err := queue.PendingOperations(ctx.DB, "srv-1")
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting pending operations"))
	}
	assert.Equal(t, len(ops), 1, "pending operation should have been kept")
}

func TestApplyChange_staleLocalConflicts(t *testing.T) {
	// set up
	ctx := context.InitTestCtx(t)
	ctx.DB = database.InitTestMemoryDB(t)

	note := database.NewNote("srv-1", "local body\n", 100, 1000, false, false)
	if err := note.Insert(ctx.DB); err != nil {
		t.Fatal(errors.Wrap(err, "inserting note"))
	}

	op, err := queue.NewOperation(queue.KindUpdate, "srv-1", "local body\n", 1000, false, time.Unix(1000, 0))
	if err != nil {
		t.Fatal(errors.Wrap(err, "constructing operation"))
	}
	if err := queue.Enqueue(ctx.DB, op); err != nil {
		t.Fatal(errors.Wrap(err, "enqueueing operation"))
	}

	// execute
	mustApplyChange(t, ctx, client.RespNote{
		UUID:      "srv-1",
		CreatedAt: time.Unix(100, 0),
		Body:      "remote body\n",
		EditedOn:  1500,
	})

	// test
	got := mustGetNote(t, ctx.DB, "srv-1")
	assert.Equal(t, got.Conflicted, true, "note should have been marked conflicted")
	assert.Equal(t, strings.Contains(got.Body, conflictLocal), true, "body should contain the local marker")
	assert.Equal(t, strings.Contains(got.Body, "local body"), true, "body should contain the local version")
	assert.Equal(t, strings.Contains(got.Body, conflictDivider), true, "body should contain the divider")
	assert.Equal(t, strings.Contains(got.Body, "remote body"), true, "body should contain the remote version")
	assert.Equal(t, strings.Contains(got.Body, conflictServer), true, "body should contain the server marker")

	ops, err := queue.PendingOperations(ctx.DB, "srv-1")
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting pending operations"))
	}
	assert.Equal(t, len(ops), 0, "stale operation should have been retired")

	entries, err := queue.RecentHistory(ctx.DB, 10)
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting history"))
	}
	assert.Equal(t, len(entries), 1, "retired operation should have been archived")
}

func TestApplyChange_staleLocalSameBody(t *testing.T) {
	// set up
	ctx := context.InitTestCtx(t)
	ctx.DB = database.InitTestMemoryDB(t)

	note := database.NewNote("srv-1", "same body", 100, 1000, false, false)
	if err := note.Insert(ctx.DB); err != nil {
		t.Fatal(errors.Wrap(err, "inserting note"))
	}

	op, err := queue.NewOperation(queue.KindUpdate, "srv-1", "same body", 1000, false, time.Unix(1000, 0))
	if err != nil {
		t.Fatal(errors.Wrap(err, "constructing operation"))
	}
	if err := queue.Enqueue(ctx.DB, op); err != nil {
		t.Fatal(errors.Wrap(err, "enqueueing operation"))
	}

	// execute
	mustApplyChange(t, ctx, client.RespNote{
		UUID:      "srv-1",
		CreatedAt: time.Unix(100, 0),
		Body:      "same body",
		EditedOn:  1500,
	})

	// test
	got := mustGetNote(t, ctx.DB, "srv-1")
	assert.Equal(t, got.Body, "same body", "body mismatch")
	assert.Equal(t, got.Conflicted, false, "identical bodies should not conflict")

	ops, err := queue.PendingOperations(ctx.DB, "srv-1")
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting pending operations"))
	}
	assert.Equal(t, len(ops), 0, "stale operation should have been retired")
}

func TestApplyChange_remoteDelete(t *testing.T) {
	// set up
	ctx := context.InitTestCtx(t)
	ctx.DB = database.InitTestMemoryDB(t)

	note := database.NewNote("srv-1", "to be deleted", 100, 100, false, false)
	if err := note.Insert(ctx.DB); err != nil {
		t.Fatal(errors.Wrap(err, "inserting note"))
	}

	// execute
	mustApplyChange(t, ctx, client.RespNote{
		UUID:     "srv-1",
		Deleted:  true,
		EditedOn: 1500,
	})

	// test
	assert.Equal(t, countNotes(t, ctx.DB, "srv-1"), 0, "note should have been expunged")
}

func TestApplyChange_remoteDeleteMissingNote(t *testing.T) {
	// set up
	ctx := context.InitTestCtx(t)
	ctx.DB = database.InitTestMemoryDB(t)

	// execute
	mustApplyChange(t, ctx, client.RespNote{
		UUID:     "srv-unknown",
		Deleted:  true,
		EditedOn: 1500,
	})

	// test
	assert.Equal(t, countNotes(t, ctx.DB, "srv-unknown"), 0, "no note should exist")
}

func TestMarkConflict(t *testing.T) {
	// execute
	got := markConflict("shared\nlocal line\n", "shared\nserver line\n")

	// test
	expected := "shared\n" +
		conflictLocal + "\n" +
		"local line\n" +
		conflictDivider + "\n" +
		"server line\n" +
		conflictServer + "\n"
	assert.Equal(t, got, expected, "merged body mismatch")
}
