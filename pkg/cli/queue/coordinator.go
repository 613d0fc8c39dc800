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
	"sync"
	"time"

	"github.com/jotline/jotline/pkg/cli/database"
	"github.com/jotline/jotline/pkg/cli/log"
	"github.com/jotline/jotline/pkg/clock"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Remote executes operations against the note service. The coordinator
// treats it as a black box beyond error classification.
type Remote interface {
	// CreateNote creates a note and returns its permanent, server-assigned uuid
	CreateNote(ctx stdctx.Context, payload string) (string, error)
	UpdateNote(ctx stdctx.Context, noteUUID, payload string) error
	DeleteNote(ctx stdctx.Context, noteUUID string) error
}

// Config holds the tunables of a coordinator
type Config struct {
	Policy RetryPolicy
	// AttemptTimeout bounds a single remote execution attempt. Expiry is
	// treated as a network failure.
	AttemptTimeout time.Duration
	// MaxParallelNotes bounds how many notes drain concurrently. Operations
	// belonging to the same note always run sequentially.
	MaxParallelNotes int
	// Events, if set, receives typed notifications about queue state changes
	Events chan<- Event
}

// Coordinator drains the operation queue: it dequeues ready operations,
// executes them against the remote service, runs the id rewrite on a
// successful create, archives finished records and reschedules failures.
type Coordinator struct {
	db       *database.DB
	remote   Remote
	clock    clock.Clock
	rewriter Rewriter
	cfg      Config
}

// NewCoordinator returns a coordinator with defaults applied for any
// zero-valued config field
func NewCoordinator(db *database.DB, remote Remote, clk clock.Clock, rewriter Rewriter, cfg Config) *Coordinator {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.Policy.MaxRetries == 0 {
		cfg.Policy = DefaultRetryPolicy()
	}
	if cfg.AttemptTimeout == 0 {
		cfg.AttemptTimeout = 30 * time.Second
	}
	if cfg.MaxParallelNotes == 0 {
		cfg.MaxParallelNotes = 4
	}

	return &Coordinator{
		db:       db,
		remote:   remote,
		clock:    clk,
		rewriter: rewriter,
		cfg:      cfg,
	}
}

// DrainSummary reports what a drain pass did
type DrainSummary struct {
	Completed      int
	Rescheduled    int
	TerminalFailed int
}

// Drain executes one pass over the ready operations. Notes drain in
// parallel up to the configured limit; operations for the same note run
// strictly in order. Cancelling the context stops the pass and leaves any
// unexecuted operation pending with its retry count unchanged.
func (c *Coordinator) Drain(ctx stdctx.Context) (DrainSummary, error) {
	var summary DrainSummary
	var mu sync.Mutex

	// recover any id rewrite interrupted by a crash before touching the queue
	if err := c.rewriter.ResumeIncomplete(); err != nil {
		return summary, errors.Wrap(err, "resuming interrupted id rewrites")
	}

	ops, err := DequeueReady(c.db, c.clock.Now(), c.cfg.Policy.MaxRetries)
	if err != nil {
		return summary, errors.Wrap(err, "dequeuing ready operations")
	}

	log.Debug("draining %d operations\n", len(ops))

	var order []string
	byNote := map[string][]Operation{}
	for _, op := range ops {
		if _, ok := byNote[op.NoteUUID]; !ok {
			order = append(order, op.NoteUUID)
		}
		byNote[op.NoteUUID] = append(byNote[op.NoteUUID], op)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxParallelNotes)

	for _, noteUUID := range order {
		noteOps := byNote[noteUUID]
		g.Go(func() error {
			return c.drainNote(gctx, noteOps, &summary, &mu)
		})
	}

	if err := g.Wait(); err != nil {
		return summary, errors.Wrap(err, "draining operations")
	}

	return summary, nil
}

func (c *Coordinator) drainNote(ctx stdctx.Context, ops []Operation, summary *DrainSummary, mu *sync.Mutex) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// A delete targeting a still-temporary id means the note was created and
	// deleted locally without ever reaching the server. The whole set
	// cancels out without a remote call.
	if hasUnsyncedDelete(ops) {
		return c.cancelOut(ops[0].NoteUUID, summary, mu)
	}

	for i := range ops {
		if err := ctx.Err(); err != nil {
			return err
		}

		op := ops[i]

		serverUUID, execErr := c.execute(ctx, op)
		if execErr != nil {
			if ctx.Err() != nil {
				// cancelled mid-flight; success was never confirmed, so the
				// record stays pending with no bookkeeping
				return ctx.Err()
			}

			// stop draining this note so the remaining operations are not
			// applied out of order
			return c.recordFailure(&op, execErr, summary, mu)
		}

		if op.Kind == KindCreate && serverUUID != "" {
			if err := c.rewriter.Run(op.NoteUUID, serverUUID, c.clock.Now()); err != nil {
				return errors.Wrapf(err, "rewriting ids for note %s", op.NoteUUID)
			}

			publish(c.cfg.Events, Event{Kind: EventIDRewritten, NoteUUID: serverUUID, OperationUUID: op.UUID})

			oldUUID := op.NoteUUID
			op.NoteUUID = serverUUID
			op.IsLocalID = false
			for j := i + 1; j < len(ops); j++ {
				if ops[j].NoteUUID == oldUUID {
					ops[j].NoteUUID = serverUUID
					ops[j].IsLocalID = false
				}
			}
		}

		if op.Kind == KindDelete {
			note := database.Note{UUID: op.NoteUUID}
			if err := note.Expunge(c.db); err != nil {
				return errors.Wrapf(err, "expunging the deleted note %s", op.NoteUUID)
			}
		}

		if err := c.archive(op); err != nil {
			return err
		}

		mu.Lock()
		summary.Completed++
		mu.Unlock()

		publish(c.cfg.Events, Event{Kind: EventCompleted, NoteUUID: op.NoteUUID, OperationUUID: op.UUID})

		// a confirmed delete supersedes anything still queued for the note;
		// executing it would fail against a note that no longer exists
		if op.Kind == KindDelete {
			return c.retireRemaining(op.NoteUUID, summary, mu)
		}
	}

	return nil
}

func (c *Coordinator) execute(ctx stdctx.Context, op Operation) (string, error) {
	attemptCtx, cancel := stdctx.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	switch op.Kind {
	case KindCreate:
		return c.remote.CreateNote(attemptCtx, op.Payload)
	case KindUpdate:
		return "", c.remote.UpdateNote(attemptCtx, op.NoteUUID, op.Payload)
	case KindDelete:
		return "", c.remote.DeleteNote(attemptCtx, op.NoteUUID)
	default:
		return "", errors.Errorf("unknown operation kind %s", op.Kind)
	}
}

func (c *Coordinator) recordFailure(op *Operation, execErr error, summary *DrainSummary, mu *sync.Mutex) error {
	errType := Classify(execErr)

	if err := MarkFailed(c.db, op, execErr.Error(), errType, c.cfg.Policy, c.clock.Now()); err != nil {
		return errors.Wrapf(err, "recording the failure of operation %s", op.UUID)
	}

	if IsTerminal(*op, c.cfg.Policy) {
		log.Debug("operation %s failed terminally (%s): %s\n", op.UUID, errType, execErr)

		mu.Lock()
		summary.TerminalFailed++
		mu.Unlock()

		publish(c.cfg.Events, Event{Kind: EventTerminal, NoteUUID: op.NoteUUID, OperationUUID: op.UUID, ErrorType: errType})

		return nil
	}

	log.Debug("operation %s failed (%s), retry %d at %d: %s\n", op.UUID, errType, op.RetryCount, op.NextRetryAt, execErr)

	mu.Lock()
	summary.Rescheduled++
	mu.Unlock()

	publish(c.cfg.Events, Event{Kind: EventFailed, NoteUUID: op.NoteUUID, OperationUUID: op.UUID, ErrorType: errType})

	return nil
}

func (c *Coordinator) archive(op Operation) error {
	tx, err := c.db.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning a transaction")
	}

	if err := MarkCompleted(tx, op.UUID); err != nil {
		tx.Rollback()
		return err
	}

	op.Status = StatusCompleted
	op.LastError = ""
	op.ErrorType = ""

	if err := Archive(tx, op, c.clock.Now().Unix()); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}

	return nil
}

// retireRemaining archives every operation still queued for the note as
// completed. It runs after a delete is confirmed by the server, when the
// queued operations have nothing left to apply to. Like cancelOut it covers
// operations outside the current batch, such as failures still in backoff.
func (c *Coordinator) retireRemaining(noteUUID string, summary *DrainSummary, mu *sync.Mutex) error {
	all, err := ForNote(c.db, noteUUID)
	if err != nil {
		return errors.Wrapf(err, "getting operations for note %s", noteUUID)
	}

	if len(all) == 0 {
		return nil
	}

	log.Debug("retiring %d operations superseded by the delete of note %s\n", len(all), noteUUID)

	tx, err := c.db.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning a transaction")
	}

	completedAt := c.clock.Now().Unix()
	for _, op := range all {
		op.Status = StatusCompleted
		op.LastError = ""
		op.ErrorType = ""

		if err := Archive(tx, op, completedAt); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}

	mu.Lock()
	summary.Completed += len(all)
	mu.Unlock()

	for _, op := range all {
		publish(c.cfg.Events, Event{Kind: EventCompleted, NoteUUID: op.NoteUUID, OperationUUID: op.UUID})
	}

	return nil
}

func hasUnsyncedDelete(ops []Operation) bool {
	for _, op := range ops {
		if op.Kind == KindDelete && op.IsLocalID {
			return true
		}
	}

	return false
}

// cancelOut archives every live operation for the note as completed and
// expunges the local row. It covers operations outside the current batch as
// well, such as failures still in backoff.
func (c *Coordinator) cancelOut(noteUUID string, summary *DrainSummary, mu *sync.Mutex) error {
	all, err := ForNote(c.db, noteUUID)
	if err != nil {
		return errors.Wrapf(err, "getting operations for note %s", noteUUID)
	}

	log.Debug("cancelling %d unsynced operations for locally deleted note %s\n", len(all), noteUUID)

	tx, err := c.db.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning a transaction")
	}

	completedAt := c.clock.Now().Unix()
	for _, op := range all {
		op.Status = StatusCompleted
		op.LastError = ""
		op.ErrorType = ""

		if err := Archive(tx, op, completedAt); err != nil {
			tx.Rollback()
			return err
		}
	}

	note := database.Note{UUID: noteUUID}
	if err := note.Expunge(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}

	mu.Lock()
	summary.Completed += len(all)
	mu.Unlock()

	for _, op := range all {
		publish(c.cfg.Events, Event{Kind: EventCompleted, NoteUUID: op.NoteUUID, OperationUUID: op.UUID})
	}

	return nil
}
