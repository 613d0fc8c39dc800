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
	"time"

	"github.com/jotline/jotline/pkg/cli/database"
	"github.com/jotline/jotline/pkg/cli/log"
	"github.com/jotline/jotline/pkg/cli/utils"
	"github.com/pkg/errors"
)

// Entity types for id mappings
const (
	EntityNote   = "note"
	EntityFolder = "folder"
)

// Mapping records a temporary, locally generated id and the permanent id
// the server assigned for it. It is deleted only after every dependent
// reference has been rewritten, so an interrupted rewrite can be resumed.
type Mapping struct {
	LocalUUID  string
	ServerUUID string
	EntityType string
	CreatedAt  int64
	Completed  bool
}

// RecordMapping persists a mapping from a local id to a server id. It is
// idempotent: recording the same local id twice overwrites the row.
func RecordMapping(db *database.DB, localUUID, serverUUID, entityType string, now time.Time) error {
	_, err := db.Exec("INSERT OR REPLACE INTO id_mappings (local_uuid, server_uuid, entity_type, created_at, completed) VALUES (?, ?, ?, ?, ?)",
		localUUID, serverUUID, entityType, now.Unix(), false)
	if err != nil {
		return errors.Wrapf(err, "recording id mapping %s -> %s", localUUID, serverUUID)
	}

	return nil
}

// LookupMapping returns the server id mapped to the given local id
func LookupMapping(db *database.DB, localUUID string) (string, bool, error) {
	var serverUUID string
	err := db.QueryRow("SELECT server_uuid FROM id_mappings WHERE local_uuid = ?", localUUID).Scan(&serverUUID)
	if err == errNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "looking up id mapping for %s", localUUID)
	}

	return serverUUID, true, nil
}

// IncompleteMappings returns the mappings whose rewrite has not finished
func IncompleteMappings(db *database.DB) ([]Mapping, error) {
	rows, err := db.Query("SELECT local_uuid, server_uuid, entity_type, created_at, completed FROM id_mappings WHERE completed = ?", false)
	if err != nil {
		return nil, errors.Wrap(err, "querying incomplete id mappings")
	}
	defer rows.Close()

	var ret []Mapping
	for rows.Next() {
		var m Mapping
		if err := rows.Scan(&m.LocalUUID, &m.ServerUUID, &m.EntityType, &m.CreatedAt, &m.Completed); err != nil {
			return nil, errors.Wrap(err, "scanning an id mapping row")
		}

		ret = append(ret, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating id mapping rows")
	}

	return ret, nil
}

// MarkMappingCompleted marks the mapping as fully rewritten
func MarkMappingCompleted(db *database.DB, localUUID string) error {
	_, err := db.Exec("UPDATE id_mappings SET completed = ? WHERE local_uuid = ?", true, localUUID)
	if err != nil {
		return errors.Wrapf(err, "marking id mapping %s completed", localUUID)
	}

	return nil
}

// PurgeCompletedMappings deletes mappings that have been fully rewritten
func PurgeCompletedMappings(db *database.DB) error {
	_, err := db.Exec("DELETE FROM id_mappings WHERE completed = ?", true)
	if err != nil {
		return errors.Wrap(err, "purging completed id mappings")
	}

	return nil
}

// Rewriter replaces a temporary note id with the permanent one everywhere
// it is referenced: the note row, the operation queue and the note's
// attachment directory.
type Rewriter struct {
	db             *database.DB
	attachmentsDir string
}

// NewRewriter returns a Rewriter writing to the given database and
// attachments directory
func NewRewriter(db *database.DB, attachmentsDir string) Rewriter {
	return Rewriter{db: db, attachmentsDir: attachmentsDir}
}

// Run executes the full rewrite for one newly created note: it records the
// mapping, rewrites every reference, and marks the mapping completed. Every
// step is safe to repeat, so a crash at any point is recovered by
// ResumeIncomplete.
func (r Rewriter) Run(localUUID, serverUUID string, now time.Time) error {
	if err := RecordMapping(r.db, localUUID, serverUUID, EntityNote, now); err != nil {
		return errors.Wrap(err, "recording the mapping")
	}

	if err := r.rewrite(localUUID, serverUUID); err != nil {
		return errors.Wrap(err, "rewriting references")
	}

	if err := MarkMappingCompleted(r.db, localUUID); err != nil {
		return errors.Wrap(err, "marking the mapping completed")
	}

	if err := PurgeCompletedMappings(r.db); err != nil {
		return errors.Wrap(err, "purging completed mappings")
	}

	return nil
}

// ResumeIncomplete re-runs the rewrite for any mapping that was interrupted
// before completion, e.g. by a crash
func (r Rewriter) ResumeIncomplete() error {
	mappings, err := IncompleteMappings(r.db)
	if err != nil {
		return errors.Wrap(err, "getting incomplete mappings")
	}

	for _, m := range mappings {
		log.Debug("resuming id rewrite %s -> %s\n", m.LocalUUID, m.ServerUUID)

		if err := r.rewrite(m.LocalUUID, m.ServerUUID); err != nil {
			return errors.Wrapf(err, "resuming rewrite for %s", m.LocalUUID)
		}

		if err := MarkMappingCompleted(r.db, m.LocalUUID); err != nil {
			return errors.Wrapf(err, "marking mapping %s completed", m.LocalUUID)
		}
	}

	if err := PurgeCompletedMappings(r.db); err != nil {
		return errors.Wrap(err, "purging completed mappings")
	}

	return nil
}

func (r Rewriter) rewrite(localUUID, serverUUID string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning a transaction")
	}

	if err := rewriteNoteRow(tx, localUUID, serverUUID); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "rewriting the note row")
	}

	if err := RewriteNoteUUID(tx, localUUID, serverUUID); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "rewriting queue entries")
	}

	// The directory move happens before commit. If it fails the transaction
	// rolls back; if the commit fails afterwards the mapping stays
	// incomplete and the re-run finds the directory already moved.
	if r.attachmentsDir != "" {
		if err := mergeAttachmentDir(r.attachmentsDir, localUUID, serverUUID); err != nil {
			tx.Rollback()
			return errors.Wrap(err, "moving the attachment directory")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}

	return nil
}

// rewriteNoteRow updates the note's primary key. When a row with the
// permanent id already exists the rewrite ran before; any leftover row under
// the temporary id is dropped instead of overwriting the rewritten one.
func rewriteNoteRow(tx *database.DB, localUUID, serverUUID string) error {
	var count int
	if err := tx.QueryRow("SELECT count(*) FROM notes WHERE uuid = ?", serverUUID).Scan(&count); err != nil {
		return errors.Wrapf(err, "checking for a note with uuid %s", serverUUID)
	}

	if count > 0 {
		if _, err := tx.Exec("DELETE FROM notes WHERE uuid = ?", localUUID); err != nil {
			return errors.Wrapf(err, "dropping the leftover note %s", localUUID)
		}

		return nil
	}

	if _, err := tx.Exec("UPDATE notes SET uuid = ? WHERE uuid = ?", serverUUID, localUUID); err != nil {
		return errors.Wrapf(err, "updating note uuid from %s to %s", localUUID, serverUUID)
	}

	return nil
}

// mergeAttachmentDir renames the attachment directory keyed by the old id.
// If a directory under the new id already exists, the contents are merged;
// on a file name collision the pre-existing file wins and the duplicate is
// discarded.
func mergeAttachmentDir(attachmentsDir, localUUID, serverUUID string) error {
	src := filepath.Join(attachmentsDir, localUUID)
	dest := filepath.Join(attachmentsDir, serverUUID)

	ok, err := utils.FileExists(src)
	if err != nil {
		return errors.Wrapf(err, "checking the attachment directory at %s", src)
	}
	if !ok {
		return nil
	}

	destExists, err := utils.FileExists(dest)
	if err != nil {
		return errors.Wrapf(err, "checking the attachment directory at %s", dest)
	}

	if !destExists {
		if err := os.Rename(src, dest); err != nil {
			return errors.Wrapf(err, "renaming %s to %s", src, dest)
		}

		return nil
	}

	if err := mergeDirs(src, dest); err != nil {
		return errors.Wrapf(err, "merging %s into %s", src, dest)
	}

	if err := os.RemoveAll(src); err != nil {
		return errors.Wrapf(err, "removing the merged directory %s", src)
	}

	return nil
}

func mergeDirs(src, dest string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return errors.Wrap(err, "reading the directory listing")
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		destPath := filepath.Join(dest, entry.Name())

		if entry.IsDir() {
			ok, err := utils.FileExists(destPath)
			if err != nil {
				return errors.Wrapf(err, "checking %s", destPath)
			}
			if !ok {
				if err := os.Rename(srcPath, destPath); err != nil {
					return errors.Wrapf(err, "renaming %s", srcPath)
				}
				continue
			}

			if err := mergeDirs(srcPath, destPath); err != nil {
				return errors.Wrapf(err, "merging %s", srcPath)
			}
			continue
		}

		ok, err := utils.FileExists(destPath)
		if err != nil {
			return errors.Wrapf(err, "checking %s", destPath)
		}
		if ok {
			// the pre-existing file wins
			continue
		}

		if err := utils.CopyFile(srcPath, destPath); err != nil {
			return errors.Wrapf(err, "copying %s", srcPath)
		}
	}

	return nil
}
