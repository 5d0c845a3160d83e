// Package quota counts governed calls per conversation thread and per run.
package quota

import "sync"

// Tracker holds thread-scoped and run-scoped call counters.
//
// Thread counters live until ForgetThread; run counters until EndRun.
// The host decides both lifecycles. Tracker is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	threads map[string]int
	runs    map[string]int
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		threads: make(map[string]int),
		runs:    make(map[string]int),
	}
}

// RecordCall increments both counters and returns their new values.
func (t *Tracker) RecordCall(threadID, runID string) (threadCount, runCount int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.threads[threadID]++
	t.runs[runID]++
	return t.threads[threadID], t.runs[runID]
}

// Counts returns the current counters without changing them.
func (t *Tracker) Counts(threadID, runID string) (threadCount, runCount int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.threads[threadID], t.runs[runID]
}

// EndRun drops the counter of a finished run.
func (t *Tracker) EndRun(runID string) {
	t.mu.Lock()
	delete(t.runs, runID)
	t.mu.Unlock()
}

// ForgetThread drops the counter of a thread the host no longer retains.
func (t *Tracker) ForgetThread(threadID string) {
	t.mu.Lock()
	delete(t.threads, threadID)
	t.mu.Unlock()
}

// Exceeds reports whether either count is above its limit.
// A limit of zero or less means unlimited.
func Exceeds(threadCount, runCount, threadLimit, runLimit int) bool {
	if threadLimit > 0 && threadCount > threadLimit {
		return true
	}
	return runLimit > 0 && runCount > runLimit
}
