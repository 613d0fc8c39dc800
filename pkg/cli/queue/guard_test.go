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
	"testing"
	"time"

	"github.com/jotline/jotline/pkg/assert"
	"github.com/jotline/jotline/pkg/cli/database"
	"github.com/pkg/errors"
)

type fakeOracle struct {
	editing map[string]bool
}

func (o fakeOracle) IsEditing(noteUUID string) bool {
	return o.editing[noteUUID]
}

func TestGuardReason(t *testing.T) {
	testCases := []struct {
		name        string
		editing     bool
		localSaveTS int64
		createdAt   int64
		cloudTime   int64
		expected    SkipReason
	}{
		{
			name:      "actively editing wins regardless of timestamps",
			editing:   true,
			cloudTime: 9999,
			expected:  SkipActivelyEditing,
		},
		{
			name:        "pending local change newer than remote",
			localSaveTS: 2000,
			cloudTime:   1500,
			expected:    SkipPendingLocalChanges,
		},
		{
			name:        "pending local change concurrent with remote",
			localSaveTS: 1500,
			cloudTime:   1500,
			expected:    SkipPendingLocalChanges,
		},
		{
			name:        "remote newer than pending local change",
			localSaveTS: 1000,
			cloudTime:   1500,
			expected:    SkipNone,
		},
		{
			name:      "created_at stands in when local_save_ts is absent",
			createdAt: 2000,
			cloudTime: 1500,
			expected:  SkipPendingLocalChanges,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// set up
			db := database.InitTestMemoryDB(t)

			createdAt := tc.createdAt
			if createdAt == 0 {
				createdAt = 100
			}

			op := mustNewOperation(t, KindUpdate, "note-1", "draft", tc.localSaveTS, false, time.Unix(createdAt, 0))
			mustEnqueue(t, db, op)

			oracle := fakeOracle{editing: map[string]bool{}}
			if tc.editing {
				oracle.editing["note-1"] = true
			}

			guard := NewGuard(db, oracle)

			// execute
			got, err := guard.Reason("note-1", tc.cloudTime)
			if err != nil {
				t.Fatal(errors.Wrap(err, "getting the skip reason"))
			}

			// test
			assert.Equal(t, got, tc.expected, "skip reason mismatch")
		})
	}
}

func TestGuardReason_noPendingOperations(t *testing.T) {
	// set up
	db := database.InitTestMemoryDB(t)
	guard := NewGuard(db, fakeOracle{editing: map[string]bool{}})

	// execute
	got, err := guard.Reason("note-1", 1500)
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting the skip reason"))
	}

	// test
	assert.Equal(t, got, SkipNone, "a note with no local state should accept the remote update")
}

func TestGuardShouldSkip(t *testing.T) {
	// set up
	db := database.InitTestMemoryDB(t)

	mustEnqueue(t, db, mustNewOperation(t, KindUpdate, "note-1", "draft", 2000, false, time.Unix(100, 0)))

	guard := NewGuard(db, nil)

	// execute
	skip, err := guard.ShouldSkip("note-1", 1500)
	if err != nil {
		t.Fatal(errors.Wrap(err, "checking the guard"))
	}
	apply, err := guard.ShouldSkip("note-1", 3000)
	if err != nil {
		t.Fatal(errors.Wrap(err, "checking the guard"))
	}

	// test
	assert.Equal(t, skip, true, "a stale remote update should be skipped")
	assert.Equal(t, apply, false, "a newer remote update should be applied")
}
