package jobqueue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/PayHook/internal/pkg/metrics"
)

// MemoryQueue is an in-process Scheduler for tests. Jobs only run when
// RunDue is called, which makes retry timing deterministic with an
// injected clock. It is safe for concurrent use.
type MemoryQueue struct {
	mu         sync.Mutex
	jobs       map[string]*Job
	runner     *runner
	maxRetries int
	now        func() time.Time
}

var _ Scheduler = (*MemoryQueue)(nil)

type MemoryOptions struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
	Now            func() time.Time
	Metrics        *metrics.Metrics
}

func NewMemoryQueue(registry *Registry, opts MemoryOptions) *MemoryQueue {
	if registry == nil {
		registry = NewRegistry()
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &MemoryQueue{
		jobs: make(map[string]*Job),
		runner: &runner{
			registry:       registry,
			retryBaseDelay: opts.RetryBaseDelay,
			metrics:        opts.Metrics,
			now:            opts.Now,
		},
		maxRetries: opts.MaxRetries,
		now:        opts.Now,
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, jobType JobType, payload map[string]interface{}, delay time.Duration) (*Job, error) {
	if !jobType.IsKnown() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJobType, jobType)
	}
	job := newJob(uuid.New().String(), jobType, payload, q.maxRetries, q.now(), delay)

	q.mu.Lock()
	q.jobs[job.ID] = job
	q.mu.Unlock()

	log.Debugf("[JobQueue] Enqueued in-memory job %s (Type: %s, Delay: %s)", job.ID, job.Type, delay)
	return job.clone(), nil
}

// RunDue runs every job whose run time has come, oldest first, and returns
// how many attempts were made. Retries land back in the queue with a future
// run time and are not picked up by the same call.
func (q *MemoryQueue) RunDue(ctx context.Context) int {
	now := q.now()

	// Claim due jobs under the lock and run private copies, so readers and
	// concurrent RunDue calls never see a job mid-update.
	q.mu.Lock()
	var due []*Job
	for _, job := range q.jobs {
		if q.isWaiting(job) && !job.RunAt.After(now) {
			due = append(due, job.clone())
			job.MarkAsProcessing(now)
		}
	}
	q.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].RunAt.Equal(due[j].RunAt) {
			return due[i].CreatedAt.Before(due[j].CreatedAt)
		}
		return due[i].RunAt.Before(due[j].RunAt)
	})

	for _, job := range due {
		q.runner.run(ctx, job)

		q.mu.Lock()
		q.jobs[job.ID] = job
		q.mu.Unlock()
	}
	return len(due)
}

// Drain calls RunDue until nothing is due at the current clock time.
func (q *MemoryQueue) Drain(ctx context.Context) int {
	total := 0
	for {
		n := q.RunDue(ctx)
		if n == 0 {
			return total
		}
		total += n
	}
}

func (q *MemoryQueue) isWaiting(job *Job) bool {
	switch job.Status {
	case JobStatusPending, JobStatusDelayed, JobStatusRetrying:
		return true
	}
	return false
}

// Jobs returns a snapshot of all jobs, in no particular order.
func (q *MemoryQueue) Jobs() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		out = append(out, job.clone())
	}
	return out
}

// Pending returns how many jobs are waiting to run, due or not.
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, job := range q.jobs {
		if q.isWaiting(job) {
			n++
		}
	}
	return n
}

func (j *Job) clone() *Job {
	c := *j
	return &c
}
