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

// Package context defines jotline context
package context

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/jotline/jotline/pkg/cli/consts"
	"github.com/jotline/jotline/pkg/cli/database"
	"github.com/jotline/jotline/pkg/clock"
)

// Paths contain directory definitions
type Paths struct {
	Home   string
	Config string
	Data   string
	Cache  string
}

// JotCtx is a context holding the information of the current runtime
type JotCtx struct {
	Paths              Paths
	APIEndpoint        string
	Version            string
	DB                 *database.DB
	SessionKey         string
	SessionKeyExpiry   int64
	Editor             string
	Clock              clock.Clock
	EnableUpgradeCheck bool
	HTTPClient         *http.Client

	// Tunables for the operation queue
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	HistoryLimit   int
	AttemptTimeout time.Duration
}

// AttachmentsDir returns the directory holding per-note attachment directories
func (c JotCtx) AttachmentsDir() string {
	return filepath.Join(c.Paths.Data, consts.JotlineDirName, consts.AttachmentsDirName)
}

// EditLockDir returns the directory holding editing lock files
func (c JotCtx) EditLockDir() string {
	return filepath.Join(c.Paths.Cache, consts.JotlineDirName, consts.EditLockDirName)
}

// Redact replaces private information from the context with a set of
// placeholder values.
func Redact(ctx JotCtx) JotCtx {
	var sessionKey string
	if ctx.SessionKey != "" {
		sessionKey = "1"
	} else {
		sessionKey = "0"
	}
	ctx.SessionKey = sessionKey

	return ctx
}
