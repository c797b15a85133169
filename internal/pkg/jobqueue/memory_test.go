package jobqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptedHandler fails the first failures attempts.
type scriptedHandler struct {
	mu        sync.Mutex
	failures  int
	calls     int
	exhausted []error
}

func (h *scriptedHandler) Handle(ctx context.Context, job *Job) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.calls <= h.failures {
		return errors.New("downstream unavailable")
	}
	return nil
}

func (h *scriptedHandler) Exhausted(ctx context.Context, job *Job, lastErr error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exhausted = append(h.exhausted, lastErr)
}

func newTestMemoryQueue(h Handler, clock *fakeClock) *MemoryQueue {
	reg := NewRegistry()
	reg.Register(JobTypeProcessWebhookEvent, h)
	return NewMemoryQueue(reg, MemoryOptions{
		MaxRetries:     3,
		RetryBaseDelay: time.Minute,
		Now:            clock.Now,
	})
}

func enqueueWebhookJob(t *testing.T, q Scheduler) *Job {
	t.Helper()
	job, err := q.Enqueue(context.Background(), JobTypeProcessWebhookEvent,
		WebhookEventJobPayload{EventID: "evt-1"}.ToMap(), 0)
	require.NoError(t, err)
	return job
}

func TestMemoryQueue_Success(t *testing.T) {
	clock := newFakeClock()
	h := &scriptedHandler{}
	q := newTestMemoryQueue(h, clock)
	enqueueWebhookJob(t, q)

	assert.Equal(t, 1, q.RunDue(context.Background()))
	assert.Equal(t, 1, h.calls)
	assert.Equal(t, 0, q.Pending())

	jobs := q.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, JobStatusCompleted, jobs[0].Status)
}

func TestMemoryQueue_RetriesWithLinearBackoff(t *testing.T) {
	clock := newFakeClock()
	h := &scriptedHandler{failures: 2}
	q := newTestMemoryQueue(h, clock)
	enqueueWebhookJob(t, q)
	ctx := context.Background()

	assert.Equal(t, 1, q.RunDue(ctx))
	assert.Equal(t, 1, h.calls)

	// first retry waits one base delay
	clock.Advance(59 * time.Second)
	assert.Equal(t, 0, q.RunDue(ctx))
	clock.Advance(time.Second)
	assert.Equal(t, 1, q.RunDue(ctx))
	assert.Equal(t, 2, h.calls)

	// second retry waits two base delays
	clock.Advance(time.Minute)
	assert.Equal(t, 0, q.RunDue(ctx))
	clock.Advance(time.Minute)
	assert.Equal(t, 1, q.RunDue(ctx))
	assert.Equal(t, 3, h.calls)

	assert.Equal(t, 0, q.Pending())
	assert.Empty(t, h.exhausted)
	assert.Equal(t, JobStatusCompleted, q.Jobs()[0].Status)
}

func TestMemoryQueue_Exhaustion(t *testing.T) {
	clock := newFakeClock()
	h := &scriptedHandler{failures: 100}
	q := newTestMemoryQueue(h, clock)
	enqueueWebhookJob(t, q)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		q.RunDue(ctx)
		clock.Advance(5 * time.Minute)
	}

	assert.Equal(t, 4, h.calls, "first attempt plus three retries")
	require.Len(t, h.exhausted, 1)
	assert.EqualError(t, h.exhausted[0], "downstream unavailable")

	job := q.Jobs()[0]
	assert.Equal(t, JobStatusExhausted, job.Status)
	assert.Equal(t, "downstream unavailable", job.ErrorMsg)
}

func TestMemoryQueue_DelayedJob(t *testing.T) {
	clock := newFakeClock()
	h := &scriptedHandler{}
	q := newTestMemoryQueue(h, clock)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, JobTypeProcessWebhookEvent, WebhookEventJobPayload{EventID: "evt-1"}.ToMap(), 30*time.Second)
	require.NoError(t, err)

	assert.Equal(t, 0, q.RunDue(ctx))
	assert.Equal(t, 1, q.Pending())

	clock.Advance(30 * time.Second)
	assert.Equal(t, 1, q.RunDue(ctx))
	assert.Equal(t, 1, h.calls)
}

func TestMemoryQueue_UnknownJobType(t *testing.T) {
	q := NewMemoryQueue(nil, MemoryOptions{})
	_, err := q.Enqueue(context.Background(), JobType("image_processing"), nil, 0)
	assert.ErrorIs(t, err, ErrUnknownJobType)
}

func TestMemoryQueue_NoHandlerIsRetriedThenExhausted(t *testing.T) {
	clock := newFakeClock()
	q := NewMemoryQueue(NewRegistry(), MemoryOptions{MaxRetries: 0, Now: clock.Now})
	enqueueWebhookJob(t, q)

	q.RunDue(context.Background())
	job := q.Jobs()[0]
	assert.Equal(t, JobStatusExhausted, job.Status)
	assert.Contains(t, job.ErrorMsg, ErrNoHandler.Error())
}

func TestMemoryQueue_HandlerPanicIsAFailure(t *testing.T) {
	clock := newFakeClock()
	h := HandlerFunc(func(ctx context.Context, job *Job) error {
		panic("nil event")
	})
	q := newTestMemoryQueue(h, clock)
	enqueueWebhookJob(t, q)

	assert.NotPanics(t, func() { q.RunDue(context.Background()) })
	job := q.Jobs()[0]
	assert.Equal(t, JobStatusRetrying, job.Status)
	assert.Contains(t, job.ErrorMsg, "handler panic")
}

func TestMemoryQueue_Drain(t *testing.T) {
	clock := newFakeClock()
	h := &scriptedHandler{}
	q := newTestMemoryQueue(h, clock)
	for i := 0; i < 3; i++ {
		enqueueWebhookJob(t, q)
	}

	assert.Equal(t, 3, q.Drain(context.Background()))
	assert.Equal(t, 3, h.calls)
}

func TestMemoryQueue_ConcurrentRunDueRunsEachJobOnce(t *testing.T) {
	clock := newFakeClock()
	h := &scriptedHandler{}
	q := newTestMemoryQueue(h, clock)
	for i := 0; i < 20; i++ {
		enqueueWebhookJob(t, q)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			q.RunDue(context.Background())
		}()
		go func() {
			defer wg.Done()
			for _, job := range q.Jobs() {
				_ = job.Status
			}
			_ = q.Pending()
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, h.calls)
	assert.Equal(t, 0, q.Pending())
	for _, job := range q.Jobs() {
		assert.Equal(t, JobStatusCompleted, job.Status)
	}
}
