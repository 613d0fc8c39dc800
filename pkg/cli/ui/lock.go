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

package ui

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/jotline/jotline/pkg/cli/log"
	"github.com/jotline/jotline/pkg/cli/utils"
	"github.com/pkg/errors"
)

// EditLocks marks notes that are open in an editor so that a concurrent sync
// never overwrites a note mid-edit. A lock is a file named after the note
// uuid, holding the pid of the process that took it, so a lock left behind
// by a crashed process can be detected and cleared.
type EditLocks struct {
	dir string
}

// NewEditLocks returns an EditLocks rooted at the given directory
func NewEditLocks(dir string) EditLocks {
	return EditLocks{dir: dir}
}

func (l EditLocks) path(noteUUID string) string {
	return filepath.Join(l.dir, noteUUID)
}

// Acquire marks the note as being edited by the current process
func (l EditLocks) Acquire(noteUUID string) error {
	if err := utils.EnsureDir(l.dir); err != nil {
		return errors.Wrap(err, "preparing the lock directory")
	}

	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(l.path(noteUUID), []byte(pid), 0644); err != nil {
		return errors.Wrapf(err, "writing the lock file for note %s", noteUUID)
	}

	return nil
}

// Release clears the editing mark for the note. Releasing a note that is
// not locked is a no-op.
func (l EditLocks) Release(noteUUID string) error {
	err := os.Remove(l.path(noteUUID))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing the lock file for note %s", noteUUID)
	}

	return nil
}

// IsEditing reports whether the note is locked by a live process. A lock
// whose owner is gone is cleared on the way.
func (l EditLocks) IsEditing(noteUUID string) bool {
	b, err := os.ReadFile(l.path(noteUUID))
	if err != nil {
		return false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		// an unreadable lock is treated as stale
		l.clearStale(noteUUID)
		return false
	}

	if pid == os.Getpid() || processAlive(pid) {
		return true
	}

	l.clearStale(noteUUID)
	return false
}

func (l EditLocks) clearStale(noteUUID string) {
	if err := os.Remove(l.path(noteUUID)); err != nil && !os.IsNotExist(err) {
		log.Debug("removing stale lock for %s: %s\n", noteUUID, err)
	}
}

// processAlive reports whether a process with the given pid exists. Signal 0
// performs the existence check without delivering anything.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}

	return err == syscall.EPERM
}
