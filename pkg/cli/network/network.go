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

// Package network tracks whether the remote is reachable
package network

import (
	"context"
	"sync"
	"time"

	"github.com/dnote/herplog/pkg/log"
)

// DefaultProbeInterval is the default period between two probes
const DefaultProbeInterval = 10 * time.Second

// Prober checks the reachability of the remote
type Prober interface {
	Health(ctx context.Context) error
}

// Monitor probes the remote periodically and reports transitions
type Monitor struct {
	prober   Prober
	interval time.Duration
	onChange func(online bool)

	mu     sync.Mutex
	online bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a new monitor. The network is considered offline until the
// first probe succeeds.
func New(prober Prober, interval time.Duration, onChange func(online bool)) *Monitor {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}

	return &Monitor{
		prober:   prober,
		interval: interval,
		onChange: onChange,
	}
}

// Online returns the last known state
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.online
}

// Init probes once and records the result without reporting a transition
func (m *Monitor) Init(ctx context.Context) bool {
	online := m.check(ctx)

	m.mu.Lock()
	m.online = online
	m.mu.Unlock()

	log.WithFields(log.Fields{"online": online}).Info("network state initialized")

	return online
}

// Probe checks the remote once and reports the result, calling onChange
// if the state changed
func (m *Monitor) Probe(ctx context.Context) bool {
	online := m.check(ctx)
	m.SetOnline(online)

	return online
}

// SetOnline forces the network state
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()

	if !changed {
		return
	}

	log.WithFields(log.Fields{"online": online}).Info("network state changed")

	if m.onChange != nil {
		m.onChange(online)
	}
}

func (m *Monitor) check(ctx context.Context) bool {
	if err := m.prober.Health(ctx); err != nil {
		log.WithFields(log.Fields{"error": err.Error()}).Debug("health probe failed")
		return false
	}

	return true
}

// Start probes the remote every interval until Stop is called
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Probe(ctx)
			}
		}
	}()
}

// Stop stops the probes and waits for the probe in progress
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}

	m.cancel()
	<-m.done
}
