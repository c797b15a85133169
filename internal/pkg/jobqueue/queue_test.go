package jobqueue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQueue_Defaults(t *testing.T) {
	q := NewQueue(nil, nil, Options{Workers: 0, MaxRetries: -1})
	assert.Equal(t, 3, q.opts.Workers)
	assert.Equal(t, DefaultMaxRetries, q.opts.MaxRetries)
	assert.Equal(t, DefaultRetryBaseDelay, q.opts.RetryBaseDelay)
	assert.False(t, q.IsRunning())
}

func TestQueue_EnqueueUnknownType(t *testing.T) {
	q := NewQueue(nil, nil, Options{})
	_, err := q.Enqueue(context.Background(), JobType("nope"), nil, 0)
	assert.ErrorIs(t, err, ErrUnknownJobType)
}

func TestQueue_EnqueueImmediateAndDelayed(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueue(client, NewRegistry(), Options{MaxRetries: 3})
	ctx := context.Background()

	now, err := q.Enqueue(ctx, JobTypeProcessWebhookEvent, WebhookEventJobPayload{EventID: "a"}.ToMap(), 0)
	require.NoError(t, err)
	later, err := q.Enqueue(ctx, JobTypeProcessWebhookEvent, WebhookEventJobPayload{EventID: "b"}.ToMap(), time.Hour)
	require.NoError(t, err)

	size, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	delayed, err := q.GetDelayedSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), delayed)

	stored, err := q.GetJob(ctx, now.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", stored.Payload["event_id"])

	moved, err := q.PromoteDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, moved)

	moved, err = q.PromoteDue(ctx, later.RunAt.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	size, err = q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)

	stats, err := q.GetJobStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats[JobStatusPending])
}

func TestQueue_WorkersProcessJobs(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)

	var handled atomic.Int32
	reg := NewRegistry()
	reg.Register(JobTypeProcessWebhookEvent, HandlerFunc(func(ctx context.Context, job *Job) error {
		handled.Add(1)
		return nil
	}))

	q := NewQueue(client, reg, Options{Workers: 2, MaxRetries: 3, PromoteInterval: 20 * time.Millisecond})
	q.Start()
	defer q.Stop()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(ctx, JobTypeProcessWebhookEvent, WebhookEventJobPayload{EventID: "x"}.ToMap(), 0)
		require.NoError(t, err)
	}
	_, err := q.Enqueue(ctx, JobTypeProcessWebhookEvent, WebhookEventJobPayload{EventID: "y"}.ToMap(), 50*time.Millisecond)
	require.NoError(t, err)

	assert.True(t, WaitForCondition(func() bool { return handled.Load() == 4 }, 5*time.Second))
	assert.True(t, WaitForCondition(func() bool {
		stats, err := q.GetJobStats(ctx)
		return err == nil && stats[JobStatusCompleted] == 4
	}, 5*time.Second))
}

func TestQueue_FailedJobGoesToDelayedSet(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)

	reg := NewRegistry()
	reg.Register(JobTypeProcessWebhookEvent, HandlerFunc(func(ctx context.Context, job *Job) error {
		return assert.AnError
	}))
	q := NewQueue(client, reg, Options{MaxRetries: 3, RetryBaseDelay: time.Hour})
	ctx := context.Background()

	job, err := q.Enqueue(ctx, JobTypeProcessWebhookEvent, WebhookEventJobPayload{EventID: "x"}.ToMap(), 0)
	require.NoError(t, err)

	dequeued, err := q.dequeueJob(ctx)
	require.NoError(t, err)
	q.processJob(ctx, dequeued)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusRetrying, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)

	delayed, err := q.GetDelayedSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), delayed)

	processing, err := q.GetProcessingSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), processing)
}

func TestQueue_RecoverStuck(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueue(client, NewRegistry(), Options{})
	ctx := context.Background()

	job, err := q.Enqueue(ctx, JobTypeProcessWebhookEvent, WebhookEventJobPayload{EventID: "x"}.ToMap(), 0)
	require.NoError(t, err)

	dequeued, err := q.dequeueJob(ctx)
	require.NoError(t, err)
	dequeued.MarkAsProcessing(time.Now().Add(-time.Hour))
	q.updateJob(ctx, dequeued)

	recovered, err := q.RecoverStuck(ctx, 10*time.Minute, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, stored.Status)

	size, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
}
