// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"sync"
	"time"

	"github.com/agentbay/agentbay-go/pkg/logger"
)

// boundedQueue is a FIFO with a hard capacity and a timed lock. At
// capacity the oldest event is dropped to make room; a lock that cannot
// be acquired within the budget drops the incoming event instead of
// blocking the caller.
type boundedQueue struct {
	sem      chan struct{}
	budget   time.Duration
	capacity int
	events   []Event
}

func newBoundedQueue(capacity int, budget time.Duration) *boundedQueue {
	return &boundedQueue{
		sem:      make(chan struct{}, 1),
		budget:   budget,
		capacity: capacity,
	}
}

// acquire takes the queue lock within the budget.
func (q *boundedQueue) acquire() bool {
	timer := time.NewTimer(q.budget)
	defer timer.Stop()
	select {
	case q.sem <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

func (q *boundedQueue) release() {
	<-q.sem
}

func (q *boundedQueue) push(event Event) {
	if !q.acquire() {
		logger.Warnf("telemetry queue lock busy for %v, dropping event %s", q.budget, event.EventID)
		return
	}
	defer q.release()

	if len(q.events) >= q.capacity {
		logger.Warnf("telemetry queue full, dropping oldest event %s", q.events[0].EventID)
		q.events = q.events[1:]
	}
	q.events = append(q.events, event)
}

// snapshot empties the queue and returns its contents. The lock is held
// only for the swap, never during delivery I/O.
func (q *boundedQueue) snapshot() []Event {
	if !q.acquire() {
		return nil
	}
	defer q.release()

	events := q.events
	q.events = nil
	return events
}

func (q *boundedQueue) len() int {
	if !q.acquire() {
		return 0
	}
	defer q.release()
	return len(q.events)
}

// spanState chains trace and span ids per (bizIndex, extra) key.
type spanState struct {
	mu       sync.Mutex
	traceIDs map[string]string
	parents  map[string]string
}

func newSpanState() *spanState {
	return &spanState{
		traceIDs: make(map[string]string),
		parents:  make(map[string]string),
	}
}

// next returns the trace, span, and parent span ids for the next event of
// the keyed chain, updating the stored parent to the new span.
func (s *spanState) next(bizIndex, extra string, isStart bool) (traceID, spanID, parentID string) {
	key := bizIndex + "|" + extra

	s.mu.Lock()
	defer s.mu.Unlock()

	if isStart {
		delete(s.traceIDs, key)
		delete(s.parents, key)
	}

	traceID = s.traceIDs[key]
	if traceID == "" {
		traceID = newTraceID()
		s.traceIDs[key] = traceID
	}

	spanID = newSpanID()
	parentID = s.parents[key]
	if parentID == "" {
		// The first span of a chain is its own parent.
		parentID = spanID
	}
	s.parents[key] = spanID
	return traceID, spanID, parentID
}
