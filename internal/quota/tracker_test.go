package quota

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordCallCountsThreadAcrossRuns(t *testing.T) {
	tr := NewTracker()

	for i := 1; i <= 3; i++ {
		threadCount, runCount := tr.RecordCall("t1", "r1")
		assert.Equal(t, i, threadCount)
		assert.Equal(t, i, runCount)
	}

	threadCount, runCount := tr.RecordCall("t1", "r2")
	assert.Equal(t, 4, threadCount)
	assert.Equal(t, 1, runCount)

	threadCount, runCount = tr.RecordCall("t2", "r3")
	assert.Equal(t, 1, threadCount)
	assert.Equal(t, 1, runCount)
}

func TestEndRunAndForgetThread(t *testing.T) {
	tr := NewTracker()
	tr.RecordCall("t1", "r1")
	tr.RecordCall("t1", "r1")

	tr.EndRun("r1")
	threadCount, runCount := tr.Counts("t1", "r1")
	assert.Equal(t, 2, threadCount)
	assert.Equal(t, 0, runCount)

	tr.ForgetThread("t1")
	threadCount, _ = tr.Counts("t1", "r1")
	assert.Equal(t, 0, threadCount)
}

func TestExceeds(t *testing.T) {
	tests := []struct {
		thread, run, threadLimit, runLimit int
		want                               bool
	}{
		{thread: 10, run: 10, threadLimit: 10, runLimit: 10, want: false},
		{thread: 11, run: 1, threadLimit: 10, runLimit: 10, want: true},
		{thread: 1, run: 11, threadLimit: 10, runLimit: 10, want: true},
		{thread: 100, run: 100, threadLimit: 0, runLimit: 0, want: false},
		{thread: 100, run: 3, threadLimit: 0, runLimit: 2, want: true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d of %d/%d", tt.thread, tt.run, tt.threadLimit, tt.runLimit), func(t *testing.T) {
			assert.Equal(t, tt.want, Exceeds(tt.thread, tt.run, tt.threadLimit, tt.runLimit))
		})
	}
}

func TestRecordCallConcurrent(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr.RecordCall("shared", fmt.Sprintf("r%d", i%5))
		}(i)
	}
	wg.Wait()

	threadCount, runCount := tr.Counts("shared", "r0")
	assert.Equal(t, 50, threadCount)
	assert.Equal(t, 10, runCount)
}
