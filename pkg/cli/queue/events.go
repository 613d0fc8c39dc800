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

// EventKind identifies what happened to an operation
type EventKind string

// Event kinds
const (
	EventCompleted   EventKind = "completed"
	EventFailed      EventKind = "failed"
	EventTerminal    EventKind = "terminal-failed"
	EventIDRewritten EventKind = "id-rewritten"
)

// Event is a typed notification about a state change in the queue. Events
// are delivered to the channel given to the coordinator; only the components
// that subscribe see them.
type Event struct {
	Kind          EventKind
	NoteUUID      string
	OperationUUID string
	ErrorType     ErrorType
}

// publish delivers an event without blocking. A slow or absent consumer
// never stalls the drain loop.
func publish(ch chan<- Event, ev Event) {
	if ch == nil {
		return
	}

	select {
	case ch <- ev:
	default:
	}
}
