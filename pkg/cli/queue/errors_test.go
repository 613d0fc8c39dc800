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
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/jotline/jotline/pkg/assert"
	"github.com/pkg/errors"
)

type statusErr struct {
	code int
}

func (e statusErr) Error() string {
	return fmt.Sprintf("server responded with %d", e.code)
}

func (e statusErr) HTTPStatusCode() int {
	return e.code
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected ErrorType
	}{
		{
			name:     "conflict",
			err:      statusErr{code: 409},
			expected: ErrorConflict,
		},
		{
			name:     "bad request",
			err:      statusErr{code: 400},
			expected: ErrorValidation,
		},
		{
			name:     "unprocessable entity",
			err:      statusErr{code: 422},
			expected: ErrorValidation,
		},
		{
			name:     "server error",
			err:      statusErr{code: 502},
			expected: ErrorNetwork,
		},
		{
			name:     "wrapped status code",
			err:      errors.Wrap(statusErr{code: 404}, "updating the note"),
			expected: ErrorValidation,
		},
		{
			name:     "deadline exceeded",
			err:      stdctx.DeadlineExceeded,
			expected: ErrorNetwork,
		},
		{
			name:     "wrapped deadline exceeded",
			err:      errors.Wrap(stdctx.DeadlineExceeded, "executing request"),
			expected: ErrorNetwork,
		},
		{
			name:     "transport error",
			err:      &url.Error{Op: "Post", URL: "http://localhost", Err: errors.New("connection refused")},
			expected: ErrorNetwork,
		},
		{
			name:     "dns error",
			err:      &net.DNSError{Err: "no such host", Name: "api.example.com"},
			expected: ErrorNetwork,
		},
		{
			name:     "anything else",
			err:      errors.New("boom"),
			expected: ErrorUnknown,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)

			assert.Equal(t, got, tc.expected, "classification mismatch")
		})
	}
}

func TestRetryable(t *testing.T) {
	testCases := []struct {
		errType  ErrorType
		expected bool
	}{
		{errType: ErrorNetwork, expected: true},
		{errType: ErrorConflict, expected: true},
		{errType: ErrorUnknown, expected: true},
		{errType: ErrorValidation, expected: false},
	}

	for _, tc := range testCases {
		got := Retryable(tc.errType)

		assert.Equal(t, got, tc.expected, "retryable mismatch")
	}
}
