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

package database

import (
	"database/sql"

	"github.com/pkg/errors"
)

// Note represents a note
type Note struct {
	RowID      int    `json:"rowid"`
	UUID       string `json:"uuid"`
	Body       string `json:"content"`
	AddedOn    int64  `json:"added_on"`
	EditedOn   int64  `json:"edited_on"`
	Deleted    bool   `json:"deleted"`
	Conflicted bool   `json:"conflicted"`
}

// NewNote constructs a note with the given data
func NewNote(uuid, body string, addedOn, editedOn int64, deleted, conflicted bool) Note {
	return Note{
		UUID:       uuid,
		Body:       body,
		AddedOn:    addedOn,
		EditedOn:   editedOn,
		Deleted:    deleted,
		Conflicted: conflicted,
	}
}

// GetNote retrieves the note with the given uuid
func GetNote(db *DB, uuid string) (Note, error) {
	var ret Note

	err := db.QueryRow("SELECT id, uuid, body, added_on, edited_on, deleted, conflicted FROM notes WHERE uuid = ?", uuid).
		Scan(&ret.RowID, &ret.UUID, &ret.Body, &ret.AddedOn, &ret.EditedOn, &ret.Deleted, &ret.Conflicted)
	if err != nil {
		return ret, errors.Wrapf(err, "getting note %s", uuid)
	}

	return ret, nil
}

// GetNoteByRowID retrieves the note with the given rowid
func GetNoteByRowID(db *DB, rowID int) (Note, error) {
	var ret Note

	err := db.QueryRow("SELECT id, uuid, body, added_on, edited_on, deleted, conflicted FROM notes WHERE id = ?", rowID).
		Scan(&ret.RowID, &ret.UUID, &ret.Body, &ret.AddedOn, &ret.EditedOn, &ret.Deleted, &ret.Conflicted)
	if err != nil {
		return ret, errors.Wrapf(err, "getting note %d", rowID)
	}

	return ret, nil
}

// ListNotes returns the notes that are not locally deleted, newest first
func ListNotes(db *DB) ([]Note, error) {
	rows, err := db.Query("SELECT id, uuid, body, added_on, edited_on, deleted, conflicted FROM notes WHERE deleted = ? ORDER BY added_on DESC, id DESC", false)
	if err != nil {
		return nil, errors.Wrap(err, "querying notes")
	}
	defer rows.Close()

	var ret []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.RowID, &n.UUID, &n.Body, &n.AddedOn, &n.EditedOn, &n.Deleted, &n.Conflicted); err != nil {
			return nil, errors.Wrap(err, "scanning a note row")
		}

		ret = append(ret, n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating note rows")
	}

	return ret, nil
}

// NoteExists checks if a note with the given uuid exists
func NoteExists(db *DB, uuid string) (bool, error) {
	var count int
	if err := db.QueryRow("SELECT count(*) FROM notes WHERE uuid = ?", uuid).Scan(&count); err != nil {
		return false, errors.Wrapf(err, "counting notes with uuid %s", uuid)
	}

	return count > 0, nil
}

// ErrNoteNotFound is an error for a note lookup that matched no row
var ErrNoteNotFound = sql.ErrNoRows

// Insert inserts a new note
func (n Note) Insert(db *DB) error {
	_, err := db.Exec("INSERT INTO notes (uuid, body, added_on, edited_on, deleted, conflicted) VALUES (?, ?, ?, ?, ?, ?)",
		n.UUID, n.Body, n.AddedOn, n.EditedOn, n.Deleted, n.Conflicted)

	if err != nil {
		return errors.Wrapf(err, "inserting note with uuid %s", n.UUID)
	}

	return nil
}

// Update updates the note with the given data
func (n Note) Update(db *DB) error {
	_, err := db.Exec("UPDATE notes SET body = ?, added_on = ?, edited_on = ?, deleted = ?, conflicted = ? WHERE uuid = ?",
		n.Body, n.AddedOn, n.EditedOn, n.Deleted, n.Conflicted, n.UUID)

	if err != nil {
		return errors.Wrapf(err, "updating the note with uuid %s", n.UUID)
	}

	return nil
}

// UpdateUUID updates the uuid of a note
func (n *Note) UpdateUUID(db *DB, newUUID string) error {
	_, err := db.Exec("UPDATE notes SET uuid = ? WHERE uuid = ?", newUUID, n.UUID)

	if err != nil {
		return errors.Wrapf(err, "updating note uuid from '%s' to '%s'", n.UUID, newUUID)
	}

	n.UUID = newUUID

	return nil
}

// Expunge hard-deletes the note from the database
func (n Note) Expunge(db *DB) error {
	_, err := db.Exec("DELETE FROM notes WHERE uuid = ?", n.UUID)
	if err != nil {
		return errors.Wrap(err, "expunging a note locally")
	}

	return nil
}
