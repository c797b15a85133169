package jobqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingWorker struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (w *countingWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.starts++
}

func (w *countingWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stops++
}

func TestManager_StartStop(t *testing.T) {
	w := &countingWorker{}
	m := NewManager(w)

	assert.False(t, m.IsRunning())
	m.Start()
	m.Start()
	assert.True(t, m.IsRunning())

	m.Stop()
	m.Stop()
	assert.False(t, m.IsRunning())
	assert.Equal(t, 1, w.starts)
	assert.Equal(t, 1, w.stops)

	// restartable
	m.Start()
	m.Stop()
	assert.Equal(t, 2, w.starts)
}

func TestManager_SchedulePeriodic(t *testing.T) {
	m := NewManager(nil)

	var runs atomic.Int32
	m.SchedulePeriodic("counter", 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	var failures atomic.Int32
	m.SchedulePeriodic("failing", 10*time.Millisecond, func(ctx context.Context) error {
		failures.Add(1)
		return errors.New("database unavailable")
	})

	m.Start()
	defer m.Stop()

	assert.True(t, WaitForCondition(func() bool { return runs.Load() >= 3 }, 2*time.Second))
	assert.True(t, WaitForCondition(func() bool { return failures.Load() >= 2 }, 2*time.Second),
		"a failing task keeps running on later ticks")
}

func TestManager_StopCancelsTaskContext(t *testing.T) {
	m := NewManager(nil)
	started := make(chan struct{})
	var once sync.Once
	m.SchedulePeriodic("blocking", 5*time.Millisecond, func(ctx context.Context) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return ctx.Err()
	})

	m.Start()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestManager_RunTaskOnce(t *testing.T) {
	m := NewManager(nil)
	called := false
	m.SchedulePeriodic("cleanup", time.Hour, func(ctx context.Context) error {
		called = true
		return nil
	})

	require.NoError(t, m.RunTaskOnce(context.Background(), "cleanup"))
	assert.True(t, called)
	assert.Error(t, m.RunTaskOnce(context.Background(), "missing"))
}
