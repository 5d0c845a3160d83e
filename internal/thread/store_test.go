package thread

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

func TestStore_ReplaceAndHistory(t *testing.T) {
	s := NewStore()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	assert.Nil(t, s.History("t1"))

	msgs := []domain.Message{domain.UserMessage("hi"), domain.AssistantMessage("hello")}
	s.Replace("t1", msgs)
	msgs[0].Content = "mutated"

	got := s.History("t1")
	require.Len(t, got, 2)
	assert.Equal(t, "hi", got[0].Content)

	got[1].Content = "also mutated"
	assert.Equal(t, "hello", s.History("t1")[1].Content)

	thread, ok := s.Get("t1")
	require.True(t, ok)
	assert.Equal(t, "t1", thread.ThreadID)
	assert.Equal(t, fixed, thread.UpdatedAt)
	assert.Equal(t, 1, s.Len())
}

func TestStore_Delete(t *testing.T) {
	s := NewStore()
	s.Replace("t1", []domain.Message{domain.UserMessage("hi")})

	assert.True(t, s.Delete("t1"))
	assert.False(t, s.Delete("t1"))
	_, ok := s.Get("t1")
	assert.False(t, ok)
}

func TestStore_Concurrent(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("t%d", i%4)
			s.Replace(id, []domain.Message{domain.UserMessage(id)})
			_ = s.History(id)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, s.Len())
}

func TestStore_IdleSince(t *testing.T) {
	s := NewStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return base }
	s.Replace("old", nil)
	s.now = func() time.Time { return base.Add(time.Hour) }
	s.Replace("new", nil)

	assert.Equal(t, []string{"old"}, s.IdleSince(base.Add(time.Minute)))
	assert.Empty(t, s.IdleSince(base))
}
