package jobqueue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeProcessWebhookEvent JobType = "process_webhook_event"
)

// KnownJobTypes lists the job types a scheduler accepts.
var KnownJobTypes = []JobType{
	JobTypeProcessWebhookEvent,
}

// IsKnown reports whether t is a job type this service schedules.
func (t JobType) IsKnown() bool {
	for _, known := range KnownJobTypes {
		if t == known {
			return true
		}
	}
	return false
}

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusDelayed    JobStatus = "delayed"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
	JobStatusExhausted  JobStatus = "exhausted"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	RunAt       time.Time              `json:"run_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

var (
	ErrUnknownJobType = errors.New("unknown job type")
	ErrNoHandler      = errors.New("no handler registered for job type")
)

// WebhookEventJobPayload carries only the event id; the processor reloads
// the event from the store under a row lock.
type WebhookEventJobPayload struct {
	EventID string `json:"event_id"`
}

// ToMap converts the payload to a map for storage
func (p WebhookEventJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"event_id": p.EventID,
	}
}

// WebhookEventJobPayloadFromMap creates a payload from a map
func WebhookEventJobPayloadFromMap(data map[string]interface{}) (*WebhookEventJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload WebhookEventJobPayload
	if err := json.Unmarshal(jsonData, &payload); err != nil {
		return nil, err
	}
	if payload.EventID == "" {
		return nil, fmt.Errorf("payload has no event_id")
	}
	return &payload, nil
}

// IsRetryable checks if the job can be retried. MaxRetries counts retries
// after the first attempt, so a job runs at most MaxRetries+1 times.
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount <= j.MaxRetries
}

// RetryDelay is the linear backoff before the next attempt.
func (j *Job) RetryDelay(base time.Duration) time.Duration {
	return base * time.Duration(j.RetryCount)
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing(now time.Time) {
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted(now time.Time) {
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(now time.Time, errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = now
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying schedules the job for another attempt at runAt.
func (j *Job) MarkAsRetrying(now, runAt time.Time) {
	j.Status = JobStatusRetrying
	j.UpdatedAt = now
	j.RunAt = runAt
}

// MarkAsExhausted closes a job that ran out of retries.
func (j *Job) MarkAsExhausted(now time.Time) {
	j.Status = JobStatusExhausted
	j.UpdatedAt = now
}

func newJob(id string, jobType JobType, payload map[string]interface{}, maxRetries int, now time.Time, delay time.Duration) *Job {
	status := JobStatusPending
	if delay > 0 {
		status = JobStatusDelayed
	}
	return &Job{
		ID:         id,
		Type:       jobType,
		Status:     status,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
		RunAt:      now.Add(delay),
		RetryCount: 0,
		MaxRetries: maxRetries,
	}
}
