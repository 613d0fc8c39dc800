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

package sync

import (
	stdctx "context"

	"github.com/jotline/jotline/pkg/cli/client"
	"github.com/jotline/jotline/pkg/cli/context"
	"github.com/pkg/errors"
)

// remote adapts the http client to the interface the queue coordinator
// executes operations against
type remote struct {
	ctx context.JotCtx
}

func newRemote(ctx context.JotCtx) remote {
	return remote{ctx: ctx}
}

func (r remote) CreateNote(reqCtx stdctx.Context, payload string) (string, error) {
	resp, err := client.CreateNote(r.ctx, reqCtx, payload)
	if err != nil {
		return "", errors.Wrap(err, "creating a note in the server")
	}

	return resp.Result.UUID, nil
}

func (r remote) UpdateNote(reqCtx stdctx.Context, noteUUID, payload string) error {
	_, err := client.UpdateNote(r.ctx, reqCtx, noteUUID, payload)
	if err != nil {
		return errors.Wrap(err, "updating a note in the server")
	}

	return nil
}

func (r remote) DeleteNote(reqCtx stdctx.Context, noteUUID string) error {
	_, err := client.DeleteNote(r.ctx, reqCtx, noteUUID)
	if err != nil {
		return errors.Wrap(err, "deleting a note in the server")
	}

	return nil
}
