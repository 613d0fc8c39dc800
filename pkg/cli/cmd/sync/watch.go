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
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/jotline/jotline/pkg/cli/consts"
	"github.com/jotline/jotline/pkg/cli/context"
	"github.com/jotline/jotline/pkg/cli/log"
	"github.com/pkg/errors"
	"github.com/radovskyb/watcher"
	"github.com/robfig/cron"
)

const (
	// watchPollInterval is how often the database file is polled for writes
	watchPollInterval = 500 * time.Millisecond
	// watchSchedule is the fallback schedule: a sync runs this often even if
	// no local change is observed, picking up remote changes
	watchSchedule = "@every 5m"
)

// watch runs an initial sync and then keeps syncing: once whenever the local
// database file changes, and periodically on a schedule. It blocks until
// interrupted.
func watch(ctx context.JotCtx) error {
	reqCtx, stop := signal.NotifyContext(stdctx.Background(), os.Interrupt)
	defer stop()

	dbPath := filepath.Join(ctx.Paths.Data, consts.JotlineDirName, consts.JotlineDBFileName)

	w := watcher.New()
	w.SetMaxEvents(1)
	w.FilterOps(watcher.Write, watcher.Create)
	if err := w.Add(dbPath); err != nil {
		return errors.Wrapf(err, "watching %s", dbPath)
	}
	defer w.Close()

	// triggers carries at most one pending sync request. Bursts of file
	// events collapse into a single pass.
	triggers := make(chan struct{}, 1)
	requestSync := func() {
		select {
		case triggers <- struct{}{}:
		default:
		}
	}

	go func() {
		for {
			select {
			case <-w.Event:
				requestSync()
			case err := <-w.Error:
				log.Errorf("watching database file: %s\n", err)
			case <-w.Closed:
				return
			}
		}
	}()

	go func() {
		if err := w.Start(watchPollInterval); err != nil {
			log.Errorf("starting database file watcher: %s\n", err)
		}
	}()

	schedule := cron.New()
	if err := schedule.AddFunc(watchSchedule, requestSync); err != nil {
		return errors.Wrap(err, "scheduling periodic sync")
	}
	schedule.Start()
	defer schedule.Stop()

	log.Infof("watching for changes. press ctrl-c to stop.\n")

	if err := run(reqCtx, ctx, isFullSync); err != nil {
		log.Errorf("syncing: %s\n", err)
	}
	drainTriggers(triggers)

	for {
		select {
		case <-reqCtx.Done():
			log.Infof("stopping\n")
			return nil
		case <-triggers:
			if err := run(reqCtx, ctx, false); err != nil {
				if reqCtx.Err() != nil {
					log.Infof("stopping\n")
					return nil
				}

				log.Errorf("syncing: %s\n", err)
			}

			// the sync itself writes the database. discard the event it caused.
			drainTriggers(triggers)
		}
	}
}

func drainTriggers(triggers chan struct{}) {
	select {
	case <-triggers:
	default:
	}
}
