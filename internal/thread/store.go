// Package thread keeps conversation histories in memory for the life of the
// process.
package thread

import (
	"sync"
	"time"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// Store maps thread ids to their message history. It is safe for concurrent
// use; callers always get copies.
type Store struct {
	mu      sync.RWMutex
	threads map[string]*domain.Thread
	now     func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{threads: make(map[string]*domain.Thread), now: time.Now}
}

// History returns a copy of the thread's messages, or nil for an unknown
// thread.
func (s *Store) History(threadID string) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[threadID]
	if !ok {
		return nil
	}
	return domain.CloneMessages(t.Messages)
}

// Get returns a copy of the thread.
func (s *Store) Get(threadID string) (domain.Thread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[threadID]
	if !ok {
		return domain.Thread{}, false
	}
	out := *t
	out.Messages = domain.CloneMessages(t.Messages)
	return out, true
}

// Replace sets the thread's history.
func (s *Store) Replace(threadID string, messages []domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[threadID] = &domain.Thread{
		ThreadID:  threadID,
		Messages:  domain.CloneMessages(messages),
		UpdatedAt: s.now(),
	}
}

// Delete drops the thread and reports whether it existed.
func (s *Store) Delete(threadID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.threads[threadID]
	delete(s.threads, threadID)
	return ok
}

// IdleSince returns the ids of threads not updated since cutoff.
func (s *Store) IdleSince(cutoff time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, t := range s.threads {
		if t.UpdatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len returns the number of threads.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}
