/* Copyright 2025 Dnote Authors
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

// Package engine assembles the sync components run by the daemon
package engine

import (
	"context"
	"time"

	"github.com/dnote/herplog/pkg/cli/database"
	"github.com/dnote/herplog/pkg/cli/network"
	"github.com/dnote/herplog/pkg/cli/queue"
	"github.com/dnote/herplog/pkg/cli/scheduler"
	"github.com/dnote/herplog/pkg/cli/state"
	"github.com/dnote/herplog/pkg/cli/statusserver"
	"github.com/dnote/herplog/pkg/cli/syncer"
	"github.com/dnote/herplog/pkg/cli/wake"
	"github.com/dnote/herplog/pkg/clock"
	"github.com/dnote/herplog/pkg/log"
	"github.com/pkg/errors"
)

// Gateway is the remote used by the engine
type Gateway interface {
	syncer.Gateway
	network.Prober
}

// Params are the parameters of an engine
type Params struct {
	DB      *database.DB
	Gateway Gateway
	Clock   clock.Clock
	Sync    syncer.Config

	// SyncInterval is the period of the timer trigger
	SyncInterval  time.Duration
	ProbeInterval time.Duration
	// WakeDir is the spool directory of wake markers. Empty disables the
	// wake listener.
	WakeDir          string
	WakePollInterval time.Duration
	// StatusAddr is the listen address of the status server. Empty
	// disables the server.
	StatusAddr string
}

// Engine runs sync passes in the background and publishes their state
type Engine struct {
	db        *database.DB
	syncer    *syncer.Syncer
	publisher *state.Publisher
	scheduler *scheduler.Scheduler
	monitor   *network.Monitor
	listener  *wake.Listener
	status    *statusserver.Server
}

// New returns a new engine
func New(p Params) *Engine {
	e := &Engine{db: p.DB}

	e.syncer = syncer.New(p.DB, p.Gateway, p.Clock, p.Sync)
	e.publisher = state.NewPublisher(p.DB, e.syncer)
	e.syncer.SetObserver(e.publisher)

	e.monitor = network.New(p.Gateway, p.ProbeInterval, e.onNetworkChange)

	e.scheduler = scheduler.New(scheduler.Params{
		Syncer:   e.syncer,
		Clock:    p.Clock,
		Interval: p.SyncInterval,
		IsOnline: e.monitor.Online,
		Probe:    e.probe,
	})

	if p.WakeDir != "" {
		e.listener = wake.NewListener(p.WakeDir, p.WakePollInterval, func() {
			e.scheduler.Trigger(scheduler.ReasonWake)
		})
	}

	if p.StatusAddr != "" {
		e.status = statusserver.New(p.StatusAddr, e)
	}

	return e
}

func (e *Engine) probe(ctx context.Context) bool {
	online := e.monitor.Init(ctx)
	e.publisher.SetOnline(online)

	return online
}

func (e *Engine) onNetworkChange(online bool) {
	e.publisher.SetOnline(online)
	e.scheduler.OnNetworkChange(online)
}

// Start recovers the operations interrupted by a previous crash and starts
// every component. Cancelling ctx does not interrupt a pass; call Stop.
func (e *Engine) Start(ctx context.Context) error {
	n, err := queue.RecoverInFlight(e.db)
	if err != nil {
		return database.Wrap(err, "recovering in-flight operations")
	}
	if n > 0 {
		log.WithFields(log.Fields{"operations": n}).Info("recovered in-flight operations")
	}

	if err := e.publisher.Refresh(); err != nil {
		return errors.Wrap(err, "loading the sync state")
	}

	if e.status != nil {
		if err := e.status.Start(); err != nil {
			return errors.Wrap(err, "starting the status server")
		}
	}

	e.monitor.Start(ctx)
	e.scheduler.Start(ctx)

	// The listener drains leftover markers on start, so the scheduler must
	// already know the network state.
	if e.listener != nil {
		if err := e.listener.Start(); err != nil {
			e.monitor.Stop()
			e.scheduler.Stop()
			e.stopStatus(ctx)
			return errors.Wrap(err, "starting the wake listener")
		}
	}

	return nil
}

func (e *Engine) stopStatus(ctx context.Context) {
	if e.status == nil {
		return
	}

	if err := e.status.Shutdown(ctx); err != nil {
		log.ErrorWrap(err, "stopping the status server")
	}
}

// Stop stops every component. It waits for the pass in progress.
func (e *Engine) Stop(ctx context.Context) {
	if e.listener != nil {
		e.listener.Stop()
	}
	e.monitor.Stop()
	e.scheduler.Stop()
	e.stopStatus(ctx)
}

// StatusAddr returns the address of the status server, or an empty string
// if it is disabled
func (e *Engine) StatusAddr() string {
	if e.status == nil {
		return ""
	}

	return e.status.Addr()
}

// State returns the current sync state
func (e *Engine) State() state.SyncState {
	return e.publisher.State()
}

// Subscribe subscribes to the sync state
func (e *Engine) Subscribe() (<-chan state.SyncState, func()) {
	return e.publisher.Subscribe()
}

// TriggerSync requests a pass
func (e *Engine) TriggerSync() bool {
	return e.scheduler.TriggerSync()
}

// RetryFailed resets the failed operations and requests a pass
func (e *Engine) RetryFailed() (int64, error) {
	n, err := e.scheduler.RetryFailed()
	if err != nil {
		return 0, err
	}

	if err := e.publisher.Refresh(); err != nil {
		return n, errors.Wrap(err, "refreshing the sync state")
	}

	return n, nil
}

// Refresh recomputes the sync state from the local store
func (e *Engine) Refresh() error {
	return e.publisher.Refresh()
}
