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

// Package clock provides an abstract layer over the standard time package
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock is an interface to the standard library time.
// It is used to implement a real or a mock clock. The latter is used in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a handle to a function scheduled with AfterFunc.
// *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

type clock struct{}

func (c *clock) Now() time.Time {
	return time.Now()
}

func (c *clock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Mock is a mock instance of clock. Functions scheduled with AfterFunc run
// only when the mock time is moved past their deadline with Add.
type Mock struct {
	mu          sync.RWMutex
	currentTime time.Time
	timers      []*mockTimer
}

type mockTimer struct {
	mock     *Mock
	deadline time.Time
	fn       func()
	done     bool
}

// Stop prevents the timer from firing. It returns false if the timer has
// already fired or been stopped.
func (t *mockTimer) Stop() bool {
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()

	if t.done {
		return false
	}

	t.done = true
	t.mock.removeTimer(t)

	return true
}

// removeTimer must be called with mu held
func (c *Mock) removeTimer(target *mockTimer) {
	for i, t := range c.timers {
		if t == target {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return
		}
	}
}

// SetNow sets the current time for the mock clock
func (c *Mock) SetNow(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTime = t
}

// Now returns the current time
func (c *Mock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentTime
}

// AfterFunc schedules f to run once the mock time reaches now+d
func (c *Mock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &mockTimer{
		mock:     c,
		deadline: c.currentTime.Add(d),
		fn:       f,
	}
	c.timers = append(c.timers, t)

	return t
}

// Add advances the mock time by d and synchronously runs, in deadline
// order, every timer that became due.
func (c *Mock) Add(d time.Duration) {
	c.mu.Lock()
	c.currentTime = c.currentTime.Add(d)

	var due, rest []*mockTimer
	for _, t := range c.timers {
		if t.deadline.After(c.currentTime) {
			rest = append(rest, t)
		} else {
			t.done = true
			due = append(due, t)
		}
	}
	c.timers = rest
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})
	for _, t := range due {
		t.fn()
	}
}

// PendingTimers returns the number of timers that have neither fired nor
// been stopped
func (c *Mock) PendingTimers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.timers)
}

// New returns an instance of a real clock
func New() Clock {
	return &clock{}
}

// NewMock returns an instance of a mock clock
func NewMock() *Mock {
	return &Mock{
		currentTime: time.Date(2009, time.November, 10, 23, 0, 0, 0, time.UTC),
	}
}
