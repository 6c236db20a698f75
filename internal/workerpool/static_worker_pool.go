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

// Package workerpool runs the façade's background jobs (the periodic
// flush-all ticker and the final shutdown flush) on a small fixed set of
// goroutines. Jobs only ever call public, already-locking entry points,
// so the pool never participates in the lock order itself.
package workerpool

import (
	"errors"
	"sync"
)

// job is a unit of background work. It must not itself block on another
// job completing, and must acquire locks only through the packages' public
// APIs (never reach into cache/inode/freemap internals directly).
type job func()

// StaticWorkerPool runs two independent queues: priority (for the final
// shutdown flush, which must not starve behind routine background work)
// and normal (for the periodic ticker). Each queue gets its own fixed
// goroutine count, fixed at construction, hence "static".
type StaticWorkerPool struct {
	priorityJobs chan job
	normalJobs   chan job
	wg           sync.WaitGroup
	stopOnce     sync.Once
}

// NewStaticWorkerPool starts priorityWorker goroutines draining the
// priority queue and normalWorker goroutines draining the normal queue. At
// least one of the two must be non-zero, or there would be nowhere for
// Schedule/SchedulePriority's jobs to run.
func NewStaticWorkerPool(priorityWorker, normalWorker uint32) (*StaticWorkerPool, error) {
	if priorityWorker == 0 && normalWorker == 0 {
		return nil, errors.New("workerpool: at least one priority or normal worker is required")
	}

	p := &StaticWorkerPool{
		priorityJobs: make(chan job, 64),
		normalJobs:   make(chan job, 64),
	}

	for i := uint32(0); i < priorityWorker; i++ {
		p.wg.Add(1)
		go p.drain(p.priorityJobs)
	}
	for i := uint32(0); i < normalWorker; i++ {
		p.wg.Add(1)
		go p.drain(p.normalJobs)
	}

	return p, nil
}

func (p *StaticWorkerPool) drain(queue chan job) {
	defer p.wg.Done()
	for j := range queue {
		j()
	}
}

// Schedule enqueues j on the normal queue. It panics if called after Stop.
func (p *StaticWorkerPool) Schedule(j func()) {
	p.normalJobs <- j
}

// SchedulePriority enqueues j on the priority queue. It panics if called
// after Stop.
func (p *StaticWorkerPool) SchedulePriority(j func()) {
	p.priorityJobs <- j
}

// Stop closes both queues and waits for every in-flight and already-queued
// job to finish. It is safe to call on a nil pool (the result of a failed
// NewStaticWorkerPool), and safe to call more than once.
func (p *StaticWorkerPool) Stop() {
	if p == nil {
		return
	}
	p.stopOnce.Do(func() {
		close(p.priorityJobs)
		close(p.normalJobs)
	})
	p.wg.Wait()
}
