package queue

import (
	"context"
	"sync"
	"time"

	"healthconnect/internal/util"
)

// MemoryQueue records enqueued jobs without delivering them. It backs tests
// and local runs without Redis.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs []MailJob
	err  error
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job MailJob) (JobStatus, error) {
	if err := validateJob(job); err != nil {
		return JobStatus{}, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return JobStatus{}, q.err
	}
	q.jobs = append(q.jobs, job)
	now := time.Now().UTC()
	return JobStatus{ID: util.NewID(), Kind: job.Kind, Status: StatusQueued, CreatedAt: now, UpdatedAt: now}, nil
}

// Jobs returns a copy of everything enqueued so far.
func (q *MemoryQueue) Jobs() []MailJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]MailJob, len(q.jobs))
	copy(out, q.jobs)
	return out
}

// FailWith makes subsequent Enqueue calls return err. Pass nil to recover.
func (q *MemoryQueue) FailWith(err error) {
	q.mu.Lock()
	q.err = err
	q.mu.Unlock()
}
