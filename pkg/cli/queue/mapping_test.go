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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jotline/jotline/pkg/assert"
	"github.com/jotline/jotline/pkg/cli/database"
	"github.com/pkg/errors"
)

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(errors.Wrap(err, "preparing directory"))
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(errors.Wrap(err, "writing file"))
	}
}

func mustReadFile(t *testing.T, path string) string {
	t.Helper()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(errors.Wrap(err, "reading file"))
	}

	return string(b)
}

func TestRewriterRun(t *testing.T) {
	// set up
	db := database.InitTestMemoryDB(t)
	attachmentsDir := t.TempDir()

	note := database.NewNote("tmp-1", "hello", 100, 100, false, false)
	if err := note.Insert(db); err != nil {
		t.Fatal(errors.Wrap(err, "inserting note"))
	}

	t0 := time.Unix(1000, 0)
	pending := mustEnqueue(t, db, mustNewOperation(t, KindUpdate, "tmp-1", "hello again", 0, true, t0))
	mustWriteFile(t, filepath.Join(attachmentsDir, "tmp-1", "photo.png"), "image bytes")

	r := NewRewriter(db, attachmentsDir)

	// execute
	if err := r.Run("tmp-1", "srv-9", t0); err != nil {
		t.Fatal(errors.Wrap(err, "running the rewrite"))
	}

	// test
	exists, err := database.NoteExists(db, "tmp-1")
	if err != nil {
		t.Fatal(errors.Wrap(err, "checking note"))
	}
	assert.Equal(t, exists, false, "the temporary note row should be gone")

	got, err := database.GetNote(db, "srv-9")
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting the rewritten note"))
	}
	assert.Equal(t, got.Body, "hello", "the note body should be untouched")

	ops, err := ForNote(db, "srv-9")
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting operations"))
	}
	assert.Equal(t, len(ops), 1, "the queue entry should follow the note")
	assert.Equal(t, ops[0].UUID, pending.UUID, "operation identity should be preserved")
	assert.Equal(t, ops[0].IsLocalID, false, "the local-id flag should be cleared")

	content := mustReadFile(t, filepath.Join(attachmentsDir, "srv-9", "photo.png"))
	assert.Equal(t, content, "image bytes", "the attachment should follow the note")

	// the finished mapping is purged
	var count int
	database.MustScan(t, "counting mappings",
		db.QueryRow("SELECT count(*) FROM id_mappings"), &count)
	assert.Equal(t, count, 0, "completed mappings should be purged")
}

func TestRewriterRun_idempotent(t *testing.T) {
	// set up
	db := database.InitTestMemoryDB(t)
	attachmentsDir := t.TempDir()

	note := database.NewNote("tmp-1", "hello", 100, 100, false, false)
	if err := note.Insert(db); err != nil {
		t.Fatal(errors.Wrap(err, "inserting note"))
	}

	t0 := time.Unix(1000, 0)
	r := NewRewriter(db, attachmentsDir)

	// execute: run the same rewrite twice, as a crash between completion and
	// purge would cause
	if err := r.Run("tmp-1", "srv-9", t0); err != nil {
		t.Fatal(errors.Wrap(err, "running the rewrite"))
	}
	if err := r.Run("tmp-1", "srv-9", t0); err != nil {
		t.Fatal(errors.Wrap(err, "re-running the rewrite"))
	}

	// test
	got, err := database.GetNote(db, "srv-9")
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting the rewritten note"))
	}
	assert.Equal(t, got.Body, "hello", "body mismatch")

	var count int
	database.MustScan(t, "counting notes",
		db.QueryRow("SELECT count(*) FROM notes"), &count)
	assert.Equal(t, count, 1, "the re-run should not duplicate the note")
}

func TestRewriterResumeIncomplete(t *testing.T) {
	// set up: a mapping recorded but never rewritten, as a crash right after
	// the server create would leave behind
	db := database.InitTestMemoryDB(t)
	attachmentsDir := t.TempDir()

	note := database.NewNote("tmp-1", "hello", 100, 100, false, false)
	if err := note.Insert(db); err != nil {
		t.Fatal(errors.Wrap(err, "inserting note"))
	}
	mustEnqueue(t, db, mustNewOperation(t, KindUpdate, "tmp-1", "hello again", 0, true, time.Unix(1000, 0)))

	if err := RecordMapping(db, "tmp-1", "srv-9", EntityNote, time.Unix(1000, 0)); err != nil {
		t.Fatal(errors.Wrap(err, "recording mapping"))
	}

	r := NewRewriter(db, attachmentsDir)

	// execute
	if err := r.ResumeIncomplete(); err != nil {
		t.Fatal(errors.Wrap(err, "resuming"))
	}

	// test
	exists, err := database.NoteExists(db, "srv-9")
	if err != nil {
		t.Fatal(errors.Wrap(err, "checking note"))
	}
	assert.Equal(t, exists, true, "the note should be rewritten to the server id")

	ops, err := ForNote(db, "srv-9")
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting operations"))
	}
	assert.Equal(t, len(ops), 1, "the queue entry should be rewritten")

	var count int
	database.MustScan(t, "counting mappings",
		db.QueryRow("SELECT count(*) FROM id_mappings"), &count)
	assert.Equal(t, count, 0, "the resumed mapping should be purged")
}

func TestRewriterRun_attachmentDirMerge(t *testing.T) {
	// set up: directories under both ids, with one colliding file name
	db := database.InitTestMemoryDB(t)
	attachmentsDir := t.TempDir()

	note := database.NewNote("tmp-1", "hello", 100, 100, false, false)
	if err := note.Insert(db); err != nil {
		t.Fatal(errors.Wrap(err, "inserting note"))
	}

	mustWriteFile(t, filepath.Join(attachmentsDir, "tmp-1", "a.png"), "local a")
	mustWriteFile(t, filepath.Join(attachmentsDir, "tmp-1", "b.png"), "local b")
	mustWriteFile(t, filepath.Join(attachmentsDir, "srv-9", "a.png"), "existing a")

	r := NewRewriter(db, attachmentsDir)

	// execute
	if err := r.Run("tmp-1", "srv-9", time.Unix(1000, 0)); err != nil {
		t.Fatal(errors.Wrap(err, "running the rewrite"))
	}

	// test
	assert.Equal(t, mustReadFile(t, filepath.Join(attachmentsDir, "srv-9", "a.png")), "existing a",
		"the pre-existing file should win the collision")
	assert.Equal(t, mustReadFile(t, filepath.Join(attachmentsDir, "srv-9", "b.png")), "local b",
		"the non-colliding file should be merged in")

	_, err := os.Stat(filepath.Join(attachmentsDir, "tmp-1"))
	assert.Equal(t, os.IsNotExist(err), true, "the source directory should be removed after the merge")
}

func TestLookupMapping(t *testing.T) {
	// set up
	db := database.InitTestMemoryDB(t)

	if err := RecordMapping(db, "tmp-1", "srv-9", EntityNote, time.Unix(1000, 0)); err != nil {
		t.Fatal(errors.Wrap(err, "recording mapping"))
	}

	// execute
	serverUUID, ok, err := LookupMapping(db, "tmp-1")
	if err != nil {
		t.Fatal(errors.Wrap(err, "looking up"))
	}
	_, missing, err := LookupMapping(db, "tmp-2")
	if err != nil {
		t.Fatal(errors.Wrap(err, "looking up"))
	}

	// test
	assert.Equal(t, ok, true, "the recorded mapping should be found")
	assert.Equal(t, serverUUID, "srv-9", "server uuid mismatch")
	assert.Equal(t, missing, false, "an unknown local id should not be found")
}
