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

package client

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// NotePayload is the body of a note mutation. It is serialized when the
// mutation is queued and sent to the server verbatim when the queue drains,
// so it captures the note as it was at save time.
type NotePayload struct {
	Body     string `json:"content"`
	AddedOn  int64  `json:"added_on"`
	EditedOn int64  `json:"edited_on"`
}

// Serialize returns the JSON representation of the payload
func (p NotePayload) Serialize() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", errors.Wrap(err, "marshalling note payload")
	}

	return string(b), nil
}

// ParseNotePayload deserializes a payload produced by Serialize
func ParseNotePayload(s string) (NotePayload, error) {
	var ret NotePayload
	if err := json.Unmarshal([]byte(s), &ret); err != nil {
		return ret, errors.Wrap(err, "unmarshalling note payload")
	}

	return ret, nil
}
