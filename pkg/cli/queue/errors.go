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
	stdctx "context"
	"database/sql"
	"net"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

var errNoRows = sql.ErrNoRows

// ErrorType is a coarse classification of an execution failure. Retry logic
// branches on the type, never on the message.
type ErrorType string

// Error classifications
const (
	ErrorNetwork    ErrorType = "network"
	ErrorValidation ErrorType = "validation"
	ErrorConflict   ErrorType = "conflict"
	ErrorUnknown    ErrorType = "unknown"
)

// statusCoder is implemented by errors that carry an HTTP status code from
// the server, such as the client package's HTTPError.
type statusCoder interface {
	HTTPStatusCode() int
}

// Classify determines the error type of a remote execution failure.
// Transport errors and timeouts are retryable; a server-rejected payload is
// terminal; an explicit conflict is deferred to the next sync pass.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorUnknown
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.HTTPStatusCode()
		switch {
		case code == http.StatusConflict:
			return ErrorConflict
		case code >= 400 && code < 500:
			return ErrorValidation
		default:
			return ErrorNetwork
		}
	}

	if errors.Is(err, stdctx.DeadlineExceeded) {
		return ErrorNetwork
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ErrorNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorNetwork
	}

	return ErrorUnknown
}

// Retryable reports whether a failure of the given type should be
// rescheduled with backoff. Conflicts stay queued: the next sync pass either
// discards the stale operation or the retry succeeds once local state wins.
func Retryable(t ErrorType) bool {
	switch t {
	case ErrorNetwork, ErrorConflict, ErrorUnknown:
		return true
	default:
		return false
	}
}
