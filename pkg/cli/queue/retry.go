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

import "time"

// RetryPolicy controls how failed operations are rescheduled
type RetryPolicy struct {
	// MaxRetries is the number of failed attempts after which an operation
	// becomes terminal
	MaxRetries int
	// BackoffBase is the delay after the first failure
	BackoffBase time.Duration
	// BackoffMax caps the exponential backoff
	BackoffMax time.Duration
}

// DefaultRetryPolicy returns the default retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  5,
		BackoffBase: 2 * time.Second,
		BackoffMax:  5 * time.Minute,
	}
}

// Delay returns the backoff delay for the given number of prior failed
// attempts: base * 2^retryCount, capped at BackoffMax.
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	if retryCount > 30 {
		return p.BackoffMax
	}

	d := p.BackoffBase << uint(retryCount)
	if d > p.BackoffMax || d <= 0 {
		return p.BackoffMax
	}

	return d
}
