package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayHook/internal/pkg/metrics"
)

// Scheduler is what producers depend on to hand work to the workers.
type Scheduler interface {
	Enqueue(ctx context.Context, jobType JobType, payload map[string]interface{}, delay time.Duration) (*Job, error)
}

// Handler runs one attempt of a job. A non-nil error schedules a retry
// until the job's retries are used up.
type Handler interface {
	Handle(ctx context.Context, job *Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *Job) error

func (f HandlerFunc) Handle(ctx context.Context, job *Job) error {
	return f(ctx, job)
}

// ExhaustedHandler is implemented by handlers that need to close out a job
// whose last allowed attempt failed.
type ExhaustedHandler interface {
	Exhausted(ctx context.Context, job *Job, lastErr error)
}

// Registry maps job types to handlers. It is shared by every queue
// implementation so retry behavior is identical in production and tests.
type Registry struct {
	mu       sync.RWMutex
	handlers map[JobType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[JobType]Handler)}
}

// Register binds h to jobType, replacing any previous handler.
func (r *Registry) Register(jobType JobType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = h
}

func (r *Registry) handler(jobType JobType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// outcome of one job attempt
type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeRetry
	outcomeExhausted
)

// runner holds the retry policy shared by Queue and MemoryQueue.
type runner struct {
	registry       *Registry
	retryBaseDelay time.Duration
	metrics        *metrics.Metrics
	now            func() time.Time
}

// run executes one attempt and updates the job in place. For outcomeRetry
// job.RunAt holds the time of the next attempt.
func (r *runner) run(ctx context.Context, job *Job) outcome {
	job.MarkAsProcessing(r.now())

	var err error
	if h, ok := r.registry.handler(job.Type); ok {
		err = r.safeHandle(ctx, h, job)
	} else {
		err = fmt.Errorf("%w: %s", ErrNoHandler, job.Type)
	}

	if err == nil {
		log.Infof("[JobQueue] Job %s completed successfully", job.ID)
		job.MarkAsCompleted(r.now())
		r.metrics.JobResult(string(job.Type), metrics.ResultCompleted)
		return outcomeCompleted
	}

	log.Errorf("[JobQueue] Job %s failed: %v", job.ID, err)
	job.MarkAsFailed(r.now(), err.Error())

	if job.IsRetryable() {
		delay := job.RetryDelay(r.retryBaseDelay)
		log.Infof("[JobQueue] Retrying job %s in %s (Retry %d/%d)", job.ID, delay, job.RetryCount, job.MaxRetries)
		job.MarkAsRetrying(r.now(), r.now().Add(delay))
		r.metrics.JobResult(string(job.Type), metrics.ResultRetried)
		return outcomeRetry
	}

	log.Errorf("[JobQueue] Job %s permanently failed after %d retries", job.ID, job.RetryCount-1)
	job.MarkAsExhausted(r.now())
	r.metrics.JobResult(string(job.Type), metrics.ResultExhausted)
	if h, ok := r.registry.handler(job.Type); ok {
		if eh, ok := h.(ExhaustedHandler); ok {
			eh.Exhausted(ctx, job, err)
		}
	}
	return outcomeExhausted
}

// safeHandle turns a handler panic into an attempt failure so a bad event
// cannot take a worker down.
func (r *runner) safeHandle(ctx context.Context, h Handler, job *Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return h.Handle(ctx, job)
}
