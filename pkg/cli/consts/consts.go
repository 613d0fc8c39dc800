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

// Package consts provides definitions of constants
package consts

var (
	// JotlineDirName is the name of the directory containing jotline files
	JotlineDirName = "jotline"
	// JotlineDBFileName is a filename for the jotline SQLite database
	JotlineDBFileName = "jotline.db"
	// AttachmentsDirName is the name of the directory holding per-note attachments
	AttachmentsDirName = "attachments"
	// EditLockDirName is the name of the directory holding editing lock files
	EditLockDirName = "editing"
	// TmpContentFileBase is the base for the filename for a temporary content
	TmpContentFileBase = "JOTLINE_TMPCONTENT"
	// TmpContentFileExt is the extension for the temporary content file
	TmpContentFileExt = "md"
	// ConfigFilename is the name of the config file
	ConfigFilename = "jotlinerc"
	// EnvFilename is the name of the optional env override file
	EnvFilename = "env"

	// SystemSchema is the key for schema in the system table
	SystemSchema = "schema"
	// SystemLastSyncAt is the timestamp of the server at the last sync
	SystemLastSyncAt = "last_sync_time"
	// SystemLastUpgrade is the timestamp at which the system most recently checked for an upgrade
	SystemLastUpgrade = "last_upgrade"
	// SystemSessionKey is the session key
	SystemSessionKey = "session_token"
	// SystemSessionKeyExpiry is the timestamp at which the session key will expire
	SystemSessionKeyExpiry = "session_token_expiry"
)
