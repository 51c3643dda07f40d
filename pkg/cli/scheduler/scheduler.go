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

// Package scheduler decides when sync passes run
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/dnote/herplog/pkg/cli/syncer"
	"github.com/dnote/herplog/pkg/clock"
	"github.com/dnote/herplog/pkg/log"
	"github.com/robfig/cron"
)

// DefaultInterval is the default period of the timer trigger
const DefaultInterval = 30 * time.Second

// Reason is the cause of a trigger
type Reason string

const (
	// ReasonStartup is the trigger fired once when the scheduler starts
	ReasonStartup Reason = "startup"
	// ReasonOnline is the trigger fired when the network comes back
	ReasonOnline Reason = "online"
	// ReasonTimer is the periodic trigger
	ReasonTimer Reason = "timer"
	// ReasonManual is a trigger requested by the user
	ReasonManual Reason = "manual"
	// ReasonWake is a trigger requested by a background wake marker
	ReasonWake Reason = "wake"
	// ReasonRetry is the trigger fired when a backoff delay elapses
	ReasonRetry Reason = "retry"
)

// State is the state of the scheduler
type State int

const (
	// Idle means no pass is running or scheduled
	Idle State = iota
	// Scheduled means a retry is waiting for its backoff delay
	Scheduled
	// Running means a pass is in progress
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scheduled:
		return "scheduled"
	case Running:
		return "running"
	}

	return "unknown"
}

// Syncer runs sync passes
type Syncer interface {
	PerformFullSync(ctx context.Context) (syncer.Result, error)
	RetryFailed() (int64, error)
	Suppressed() bool
	SetRetryHook(fn func(delay time.Duration))
}

// Params are the parameters of a scheduler
type Params struct {
	Syncer Syncer
	Clock  clock.Clock
	// Interval is the period of the timer trigger. Zero disables the timer.
	Interval time.Duration
	// IsOnline reports the last known network state
	IsOnline func() bool
	// Probe checks the network once and reports whether it is reachable
	Probe func(ctx context.Context) bool
}

// Scheduler serializes sync passes and fires them on triggers
type Scheduler struct {
	syncer   Syncer
	clock    clock.Clock
	interval time.Duration
	isOnline func() bool
	probe    func(ctx context.Context) bool

	cron *cron.Cron
	wg   sync.WaitGroup

	mu         sync.Mutex
	ctx        context.Context
	state      State
	stopped    bool
	backoff    clock.Timer
	retryDelay time.Duration
}

// New returns a new scheduler. It installs itself as the retry hook of
// the syncer.
func New(p Params) *Scheduler {
	s := &Scheduler{
		syncer:   p.Syncer,
		clock:    p.Clock,
		interval: p.Interval,
		isOnline: p.IsOnline,
		probe:    p.Probe,
		ctx:      context.Background(),
	}

	if s.isOnline == nil {
		s.isOnline = func() bool { return true }
	}

	p.Syncer.SetRetryHook(s.scheduleRetry)

	return s
}

// Start starts the timer and fires the startup trigger if the network is
// reachable. Passes do not inherit the cancellation of ctx; call Stop to
// shut down.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = context.WithoutCancel(ctx)
	s.mu.Unlock()

	if s.interval > 0 {
		s.cron = cron.New()
		s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
			s.Tick()
		}))
		s.cron.Start()
	}

	online := s.isOnline()
	if s.probe != nil {
		online = s.probe(ctx)
	}
	if online {
		s.Trigger(ReasonStartup)
	}
}

// Stop stops the timers and waits for the pass in progress to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.stopBackoff()
	s.mu.Unlock()

	if s.cron != nil {
		s.cron.Stop()
	}

	s.wg.Wait()
}

// State returns the current state
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Tick fires the timer trigger
func (s *Scheduler) Tick() bool {
	return s.Trigger(ReasonTimer)
}

// TriggerSync requests a pass on behalf of the user
func (s *Scheduler) TriggerSync() bool {
	return s.Trigger(ReasonManual)
}

// RetryFailed resets the failed operations and the retry counter, then
// requests a pass
func (s *Scheduler) RetryFailed() (int64, error) {
	n, err := s.syncer.RetryFailed()
	if err != nil {
		return 0, err
	}

	s.Trigger(ReasonManual)

	return n, nil
}

// OnNetworkChange is the callback for network transitions
func (s *Scheduler) OnNetworkChange(online bool) {
	if online {
		s.Trigger(ReasonOnline)
	}
}

// Trigger starts a pass for the given reason unless the current state
// forbids it. It reports whether a pass was started.
func (s *Scheduler) Trigger(reason Reason) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := log.WithFields(log.Fields{"reason": reason, "state": s.state.String()})

	if s.stopped || s.state == Running {
		logger.Debug("trigger ignored")
		return false
	}
	if !s.isOnline() {
		logger.Debug("trigger ignored while offline")
		return false
	}
	if reason != ReasonManual && s.syncer.Suppressed() {
		logger.Debug("trigger ignored while automatic sync is suppressed")
		return false
	}
	if s.state == Scheduled && (reason == ReasonTimer || reason == ReasonWake) {
		logger.Debug("trigger ignored while backing off")
		return false
	}

	s.stopBackoff()
	s.state = Running
	ctx := s.ctx

	s.wg.Add(1)
	go s.run(ctx, reason)

	return true
}

func (s *Scheduler) run(ctx context.Context, reason Reason) {
	defer s.wg.Done()

	log.WithFields(log.Fields{"reason": reason}).Debug("sync pass starting")

	if _, err := s.syncer.PerformFullSync(ctx); err != nil {
		log.WithFields(log.Fields{"reason": reason}).Debug("sync pass ended with an error")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delay := s.retryDelay
	s.retryDelay = 0

	if delay > 0 && !s.stopped {
		s.backoff = s.clock.AfterFunc(delay, func() {
			s.Trigger(ReasonRetry)
		})
		s.state = Scheduled

		log.WithFields(log.Fields{"delayMs": delay.Milliseconds()}).Info("sync retry scheduled")
		return
	}

	s.state = Idle
}

// scheduleRetry is the retry hook of the syncer. It is called from within
// a pass, so the timer is armed when the pass returns.
func (s *Scheduler) scheduleRetry(delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.retryDelay = delay
}

// stopBackoff must be called with mu held
func (s *Scheduler) stopBackoff() {
	if s.backoff != nil {
		s.backoff.Stop()
		s.backoff = nil
	}
}
