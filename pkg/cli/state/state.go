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

// Package state publishes the derived sync state to observers such as the
// status command and the local status server
package state

import (
	"database/sql"
	"sync"

	"github.com/dnote/herplog/pkg/cli/consts"
	"github.com/dnote/herplog/pkg/cli/database"
	"github.com/dnote/herplog/pkg/cli/queue"
	"github.com/dnote/herplog/pkg/cli/syncer"
	"github.com/dnote/herplog/pkg/log"
	"github.com/pkg/errors"
)

// Indicator is a summary of the sync state for users
type Indicator string

const (
	// IndicatorOfflinePending means local changes wait for the network
	IndicatorOfflinePending Indicator = "offline-pending"
	// IndicatorFailures means some changes failed to sync and may need a manual retry
	IndicatorFailures Indicator = "failures"
	// IndicatorSyncing means changes are being synced
	IndicatorSyncing Indicator = "syncing"
	// IndicatorSynced means everything is synced
	IndicatorSynced Indicator = "synced"
)

// SyncState is the state of synchronization derived from the local store
// and the sync passes. It is never a source of truth.
type SyncState struct {
	IsOnline          bool     `json:"isOnline"`
	IsSyncing         bool     `json:"isSyncing"`
	PendingCount      int      `json:"pendingCount"`
	FailedCount       int      `json:"failedCount"`
	LastSyncTimestamp int64    `json:"lastSyncTimestamp"`
	SyncError         string   `json:"syncError"`
	ConflictCount     int      `json:"conflictCount"`
	RetrySuppressed   bool     `json:"retrySuppressed"`
	Rejections        []string `json:"rejections"`
}

// Indicator derives the indicator of the state
func (s SyncState) Indicator() Indicator {
	if !s.IsOnline && s.PendingCount+s.FailedCount > 0 {
		return IndicatorOfflinePending
	}
	if s.IsOnline && (s.FailedCount > 0 || s.RetrySuppressed || s.SyncError != "") {
		return IndicatorFailures
	}
	if s.IsSyncing || (s.IsOnline && s.PendingCount > 0) {
		return IndicatorSyncing
	}

	return IndicatorSynced
}

// Suppressor reports whether automatic sync passes are suppressed
type Suppressor interface {
	Suppressed() bool
}

// Publisher owns the sync state and broadcasts every change to subscribers
type Publisher struct {
	db         *database.DB
	suppressor Suppressor

	mu     sync.Mutex
	state  SyncState
	loaded bool
	subs   map[int]chan SyncState
	nextID int
}

// NewPublisher returns a new publisher. suppressor may be nil.
func NewPublisher(db *database.DB, suppressor Suppressor) *Publisher {
	return &Publisher{
		db:         db,
		suppressor: suppressor,
		state:      SyncState{Rejections: []string{}},
		subs:       map[int]chan SyncState{},
	}
}

func copyState(s SyncState) SyncState {
	ret := s
	ret.Rejections = append([]string{}, s.Rejections...)

	return ret
}

// State returns the current state
func (p *Publisher) State() SyncState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return copyState(p.state)
}

// Subscribe returns a channel that receives every new state, starting with
// the current one, and a function to unsubscribe. A subscriber that falls
// behind only sees the newest state.
func (p *Publisher) Subscribe() (<-chan SyncState, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++

	ch := make(chan SyncState, 1)
	ch <- copyState(p.state)
	p.subs[id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()

			delete(p.subs, id)
			close(ch)
		})
	}

	return ch, unsubscribe
}

// update applies fn to the state and broadcasts the result
func (p *Publisher) update(fn func(s *SyncState)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fn(&p.state)
	if p.suppressor != nil {
		p.state.RetrySuppressed = p.suppressor.Suppressed()
	}

	for _, ch := range p.subs {
		s := copyState(p.state)

		select {
		case ch <- s:
		default:
			// drop the stale state that the subscriber has not read
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

type counts struct {
	pending     int
	failed      int
	conflicts   int
	lastSyncAt  int64
	lastSyncErr string
}

func (p *Publisher) loadCounts() (counts, error) {
	var ret counts
	var err error

	if ret.pending, err = queue.CountPending(p.db); err != nil {
		return ret, err
	}
	if ret.failed, err = queue.CountFailed(p.db); err != nil {
		return ret, err
	}
	if ret.conflicts, err = database.CountConflicts(p.db); err != nil {
		return ret, err
	}
	if ret.lastSyncAt, err = database.GetSystemInt64(p.db, consts.SystemLastSyncAt); err != nil {
		return ret, err
	}

	err = database.GetSystem(p.db, consts.SystemLastSyncError, &ret.lastSyncErr)
	if err != nil && err != sql.ErrNoRows {
		return ret, err
	}

	return ret, nil
}

// Refresh recomputes the counts from the local store. The outcome of the
// last pass is read from the store only on the first refresh; afterwards it
// is tracked through SyncFinished.
func (p *Publisher) Refresh() error {
	c, err := p.loadCounts()
	if err != nil {
		return database.Wrap(errors.Wrap(err, "loading sync state"), "refreshing state")
	}

	p.update(func(s *SyncState) {
		s.PendingCount = c.pending
		s.FailedCount = c.failed
		s.ConflictCount = c.conflicts

		if !p.loaded {
			s.LastSyncTimestamp = c.lastSyncAt
			s.SyncError = c.lastSyncErr
			p.loaded = true
		}
	})

	return nil
}

// SetOnline records the network state
func (p *Publisher) SetOnline(online bool) {
	p.update(func(s *SyncState) {
		s.IsOnline = online
	})
}

// SyncStarted implements syncer.Observer
func (p *Publisher) SyncStarted() {
	p.update(func(s *SyncState) {
		s.IsSyncing = true
	})
}

// QueueChanged implements syncer.Observer
func (p *Publisher) QueueChanged() {
	if err := p.Refresh(); err != nil {
		log.ErrorWrap(err, "refreshing the state after a queue change")
	}
}

// SyncFinished implements syncer.Observer
func (p *Publisher) SyncFinished(result syncer.Result, passErr error) {
	rejections := []string{}
	for _, r := range result.Rejections {
		rejections = append(rejections, r.Message())
	}

	p.update(func(s *SyncState) {
		s.IsSyncing = false
		s.Rejections = rejections
		if passErr != nil {
			s.SyncError = passErr.Error()
		} else {
			s.SyncError = ""
			s.LastSyncTimestamp = result.FinishedAt.Unix()
		}
	})

	if err := p.Refresh(); err != nil {
		p.update(func(s *SyncState) {
			s.SyncError = err.Error()
		})
	}
}
