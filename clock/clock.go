// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package clock abstracts the one timing primitive the façade's background
// flush loop waits on, so tests can fire the ticker on demand instead of
// sleeping through a real interval.
package clock

import (
	"sync"
	"time"
)

// Clock hands out timer channels. The flush loop only ever needs After;
// Now exists so log lines and tests can agree on what time it is.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// RealClock delegates to the time package.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SimulatedClock is a Clock whose time stands still until a test moves it.
// After calls register a deadline; Advance and SetTime deliver on every
// deadline the new time has reached.
type SimulatedClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []waiter
}

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

var (
	_ Clock = RealClock{}
	_ Clock = (*SimulatedClock)(nil)
)

// NewSimulatedClock returns a SimulatedClock frozen at start.
func NewSimulatedClock(start time.Time) *SimulatedClock {
	return &SimulatedClock{now: start}
}

func (sc *SimulatedClock) Now() time.Time {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.now
}

// After returns a channel that receives the simulated time once it has
// been advanced by at least d. A non-positive d fires immediately, like
// time.After on an elapsed deadline.
func (sc *SimulatedClock) After(d time.Duration) <-chan time.Time {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- sc.now
		return ch
	}
	sc.waiters = append(sc.waiters, waiter{deadline: sc.now.Add(d), ch: ch})
	return ch
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline the new time has reached.
func (sc *SimulatedClock) Advance(d time.Duration) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.now = sc.now.Add(d)
	sc.fireLocked()
}

// SetTime jumps the clock to t, firing waiters the same way Advance does.
// Moving the clock backward fires nothing.
func (sc *SimulatedClock) SetTime(t time.Time) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.now = t
	sc.fireLocked()
}

func (sc *SimulatedClock) fireLocked() {
	kept := sc.waiters[:0]
	for _, w := range sc.waiters {
		if w.deadline.After(sc.now) {
			kept = append(kept, w)
			continue
		}
		w.ch <- w.deadline
	}
	sc.waiters = kept
}
