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

// Package syncer implements the sync pass: pushing queued local operations
// to the remote, then pulling remote changes into the local mirrors.
package syncer

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dnote/herplog/pkg/cli/client"
	"github.com/dnote/herplog/pkg/cli/consts"
	"github.com/dnote/herplog/pkg/cli/database"
	"github.com/dnote/herplog/pkg/cli/queue"
	"github.com/dnote/herplog/pkg/clock"
	"github.com/dnote/herplog/pkg/log"
	"github.com/pkg/errors"
)

// ErrOperationsFailed is an error for a pass in which some operations
// failed transiently
var ErrOperationsFailed = errors.New("some operations failed to sync")

// Gateway is the remote the syncer talks to
type Gateway interface {
	SendOperation(ctx context.Context, op queue.Operation) (client.Entity, error)
	FetchChangesSince(ctx context.Context, entityType string, since int64) (client.Changes, error)
}

// Observer is notified of the progress of sync passes
type Observer interface {
	SyncStarted()
	// QueueChanged is called after each operation of a pass is confirmed,
	// rejected or marked failed
	QueueChanged()
	SyncFinished(result Result, err error)
}

// Config is the configuration of the syncer
type Config struct {
	EntityTypes []string
	// BatchSize is the number of operations claimed from the queue at a time
	BatchSize int
	// MaxOperationsPerPass bounds the number of operations sent in one pass
	MaxOperationsPerPass int
	// MaxRetries is the number of consecutive failed passes after which
	// automatic passes are suppressed
	MaxRetries int
	// MaxOperationRetries is the number of failed send attempts after which
	// an operation waits for a manual retry
	MaxOperationRetries int
	BaseDelay           time.Duration
	MaxDelay            time.Duration
}

// DefaultConfig returns the default configuration for the given entity types
func DefaultConfig(entityTypes []string) Config {
	return Config{
		EntityTypes:          entityTypes,
		BatchSize:            10,
		MaxOperationsPerPass: 50,
		MaxRetries:           5,
		MaxOperationRetries:  queue.MaxOperationRetries,
		BaseDelay:            time.Second,
		MaxDelay:             5 * time.Minute,
	}
}

// withDefaults fills the unset tunables with their default values
func (c Config) withDefaults() Config {
	d := DefaultConfig(c.EntityTypes)

	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxOperationsPerPass <= 0 {
		c.MaxOperationsPerPass = d.MaxOperationsPerPass
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.MaxOperationRetries <= 0 {
		c.MaxOperationRetries = d.MaxOperationRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}

	return c
}

// Rejection is an operation that the remote definitively rejected
type Rejection struct {
	OperationID string
	EntityType  string
	EntityID    string
	Operation   string
	StatusCode  int
	Reason      string
}

// Message returns a message describing the rejection for users
func (r Rejection) Message() string {
	return fmt.Sprintf("%s of %s %s was rejected by the server: %s", r.Operation, r.EntityType, r.EntityID, r.Reason)
}

// Result is the outcome of a sync pass
type Result struct {
	// Skipped is true if the pass did not run because another was in progress
	Skipped bool
	// Pushed is the number of operations the remote confirmed
	Pushed int
	// Failed is the number of operations that failed transiently
	Failed     int
	Rejections []Rejection
	// Merged is the number of mirrors overwritten by the remote copy
	Merged int
	// Expunged is the number of mirrors removed because of remote tombstones
	Expunged int
	// Deferred is the number of remote changes not merged because the entity
	// has outstanding local operations
	Deferred   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Syncer runs sync passes. At most one pass runs at a time.
type Syncer struct {
	db      *database.DB
	gateway Gateway
	clock   clock.Clock
	config  Config

	running atomic.Bool

	mu         sync.Mutex
	retryCount int
	retryHook  func(delay time.Duration)
	observer   Observer
}

// New returns a new syncer
func New(db *database.DB, gateway Gateway, c clock.Clock, config Config) *Syncer {
	config = config.withDefaults()

	return &Syncer{
		db:      db,
		gateway: gateway,
		clock:   c,
		config:  config,
	}
}

// SetRetryHook sets the function called with the backoff delay after a
// failed pass that is still under the retry ceiling
func (s *Syncer) SetRetryHook(fn func(delay time.Duration)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.retryHook = fn
}

// SetObserver sets the observer of sync passes
func (s *Syncer) SetObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.observer = o
}

func (s *Syncer) getObserver() Observer {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.observer
}

func (s *Syncer) queueChanged() {
	if o := s.getObserver(); o != nil {
		o.QueueChanged()
	}
}

// Running reports whether a pass is in progress
func (s *Syncer) Running() bool {
	return s.running.Load()
}

// RetryCount returns the number of consecutive failed passes
func (s *Syncer) RetryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryCount
}

// Suppressed reports whether automatic passes are suspended because too
// many consecutive passes failed
func (s *Syncer) Suppressed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryCount >= s.config.MaxRetries
}

// Delay returns the backoff delay before the retry that follows the given
// number of consecutive failures
func Delay(config Config, failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}

	d := config.BaseDelay
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= config.MaxDelay {
			return config.MaxDelay
		}
	}

	if d > config.MaxDelay {
		return config.MaxDelay
	}

	return d
}

// PerformFullSync runs one pass: push, then pull. If a pass is already in
// progress it returns immediately with a skipped result.
func (s *Syncer) PerformFullSync(ctx context.Context) (Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		log.Debug("sync pass already in progress")
		return Result{Skipped: true}, nil
	}
	defer s.running.Store(false)

	observer := s.getObserver()
	if observer != nil {
		observer.SyncStarted()
	}

	result := Result{StartedAt: s.clock.Now()}

	err := s.push(ctx, &result)
	if err == nil {
		err = s.pull(ctx, &result)
	}
	if err == nil && result.Failed > 0 {
		err = errors.Wrapf(ErrOperationsFailed, "%d transient failures", result.Failed)
	}

	result.FinishedAt = s.clock.Now()
	s.finish(result, err)

	if observer != nil {
		observer.SyncFinished(result, err)
	}

	return result, err
}

func (s *Syncer) finish(result Result, passErr error) {
	fields := log.Fields{
		"pushed":     result.Pushed,
		"failed":     result.Failed,
		"rejected":   len(result.Rejections),
		"merged":     result.Merged,
		"expunged":   result.Expunged,
		"deferred":   result.Deferred,
		"durationMs": result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
	}

	for _, r := range result.Rejections {
		log.WithFields(log.Fields{
			"entityType": r.EntityType,
			"entityId":   r.EntityID,
			"operation":  r.Operation,
			"statusCode": r.StatusCode,
		}).Warn(r.Message())
	}

	if passErr == nil {
		s.mu.Lock()
		s.retryCount = 0
		s.mu.Unlock()

		if err := s.saveSuccess(result.FinishedAt); err != nil {
			log.ErrorWrap(err, "saving sync state")
		}

		log.WithFields(fields).Info("sync pass completed")
		return
	}

	s.mu.Lock()
	s.retryCount++
	count := s.retryCount
	hook := s.retryHook
	s.mu.Unlock()

	if err := s.saveFailure(passErr); err != nil {
		log.ErrorWrap(err, "saving sync state")
	}

	fields["retryCount"] = count
	log.WithFields(fields).ErrorWrap(passErr, "sync pass failed")

	if count >= s.config.MaxRetries {
		log.WithFields(log.Fields{"retryCount": count}).Warn("automatic sync suppressed until a manual retry")
		return
	}

	if hook != nil {
		hook(Delay(s.config, count))
	}
}

func (s *Syncer) saveSuccess(at time.Time) error {
	return database.RunInTx(s.db, func(tx *database.DB) error {
		if err := database.UpsertSystem(tx, consts.SystemLastSyncAt, strconv.FormatInt(at.Unix(), 10)); err != nil {
			return err
		}

		return database.DeleteSystem(tx, consts.SystemLastSyncError)
	})
}

func (s *Syncer) saveFailure(passErr error) error {
	return database.UpsertSystem(s.db, consts.SystemLastSyncError, passErr.Error())
}

// RetryFailed gives every failed operation a fresh retry budget and lifts
// the suppression of automatic passes. It returns the number of operations
// reset.
func (s *Syncer) RetryFailed() (int64, error) {
	n, err := queue.RetryAllFailed(s.db)
	if err != nil {
		return 0, database.Wrap(err, "resetting failed operations")
	}

	s.mu.Lock()
	s.retryCount = 0
	s.mu.Unlock()

	log.WithFields(log.Fields{"operations": n}).Info("failed operations reset")

	return n, nil
}
