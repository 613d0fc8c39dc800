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

package context

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jotline/jotline/pkg/clock"
	"github.com/pkg/errors"
)

// InitTestCtx initializes a test context with temporary directories
func InitTestCtx(t *testing.T) JotCtx {
	t.Helper()

	root := t.TempDir()

	paths := Paths{
		Home:   root,
		Config: filepath.Join(root, "config"),
		Data:   filepath.Join(root, "data"),
		Cache:  filepath.Join(root, "cache"),
	}

	for _, dir := range []string{paths.Config, paths.Data, paths.Cache} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(errors.Wrap(err, "creating test directory"))
		}
	}

	clk := clock.NewMock()
	clk.SetNow(time.Unix(1000, 0))

	return JotCtx{
		Paths:          paths,
		Version:        "0.0.0-test",
		Clock:          clk,
		MaxRetries:     5,
		BackoffBase:    2 * time.Second,
		BackoffMax:     5 * time.Minute,
		HistoryLimit:   500,
		AttemptTimeout: 30 * time.Second,
	}
}
