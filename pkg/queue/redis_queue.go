// Package queue carries outbound mail jobs over a Redis stream consumer group
// so request handlers never wait on SMTP.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"healthconnect/internal/util"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Mail job kinds.
const (
	KindPasswordReset  = "password_reset"
	KindRefillReminder = "refill_reminder"
	KindNotification   = "notification"
)

// MailJob is one message to deliver.
type MailJob struct {
	Kind    string `json:"kind"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// JobStatus tracks delivery of a MailJob. The mail body is never written to
// the status hash.
type JobStatus struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Handler delivers one job. A returned error schedules a retry.
type Handler func(ctx context.Context, id string, job MailJob, attempt int) error

// Enqueuer is the producer side used by the services.
type Enqueuer interface {
	Enqueue(ctx context.Context, job MailJob) (JobStatus, error)
}

type RedisMailQueue struct {
	client       *redis.Client
	stream       string
	group        string
	consumerBase string
	jobTTL       time.Duration
	maxRetries   int
	block        time.Duration
	claimIdle    time.Duration
	retryDelay   time.Duration
	maxLen       int64
	readCount    int64
	claimCount   int64
	logger       *slog.Logger
	once         sync.Once
}

type RedisQueueConfig struct {
	Client     *redis.Client
	Stream     string
	Group      string
	Consumer   string
	JobTTL     time.Duration
	MaxRetries int
	Block      time.Duration
	ClaimIdle  time.Duration
	RetryDelay time.Duration
	MaxLen     int64
	ReadCount  int64
	ClaimCount int64
	Logger     *slog.Logger
}

func NewRedisMailQueue(cfg RedisQueueConfig) (*RedisMailQueue, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		return nil, errors.New("queue stream required")
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "mailer"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	jobTTL := cfg.JobTTL
	if jobTTL <= 0 {
		jobTTL = 24 * time.Hour
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	claimIdle := cfg.ClaimIdle
	if claimIdle <= 0 {
		claimIdle = 30 * time.Second
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	readCount := cfg.ReadCount
	if readCount <= 0 {
		readCount = 10
	}
	claimCount := cfg.ClaimCount
	if claimCount <= 0 {
		claimCount = 10
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RedisMailQueue{
		client:       cfg.Client,
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		jobTTL:       jobTTL,
		maxRetries:   maxRetries,
		block:        block,
		claimIdle:    claimIdle,
		retryDelay:   retryDelay,
		maxLen:       maxLen,
		readCount:    readCount,
		claimCount:   claimCount,
		logger:       logger.With("queue", stream),
	}, nil
}

func (q *RedisMailQueue) Enqueue(ctx context.Context, job MailJob) (JobStatus, error) {
	if err := validateJob(job); err != nil {
		return JobStatus{}, err
	}
	q.ensureGroup(ctx)
	now := time.Now().UTC()
	status := JobStatus{
		ID:        util.NewID(),
		Kind:      job.Kind,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.writeStatus(ctx, status); err != nil {
		return JobStatus{}, err
	}
	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: messageValues(status.ID, job),
	}).Err(); err != nil {
		return JobStatus{}, err
	}
	return status, nil
}

func (q *RedisMailQueue) GetJob(ctx context.Context, jobID string) (JobStatus, bool, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return JobStatus{}, false, nil
	}
	data, err := q.client.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return JobStatus{}, false, err
	}
	if len(data) == 0 {
		return JobStatus{}, false, nil
	}
	return decodeJobStatus(jobID, data), true, nil
}

// Start launches concurrency consumers that run until ctx is cancelled. The
// returned WaitGroup completes once every consumer has exited.
func (q *RedisMailQueue) Start(ctx context.Context, concurrency int, handler Handler) *sync.WaitGroup {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.ensureGroup(ctx)
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.consumeLoop(ctx, consumer, handler)
		}()
	}
	return &wg
}

func (q *RedisMailQueue) ensureGroup(ctx context.Context) {
	q.once.Do(func() {
		// Start from the beginning so jobs enqueued before the first consumer
		// are delivered.
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			q.logger.Warn("queue_group_create_failed", "err", err)
		}
	})
}

func (q *RedisMailQueue) consumeLoop(ctx context.Context, consumer string, handler Handler) {
	for {
		if ctx.Err() != nil {
			return
		}
		if msgs, err := q.claimPending(ctx, consumer); err == nil {
			for _, msg := range msgs {
				q.handleMessage(ctx, msg, handler)
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    q.readCount,
			Block:    q.block,
		}).Result()
		if err != nil {
			if err != redis.Nil && ctx.Err() == nil {
				q.logger.Warn("queue_read_failed", "consumer", consumer, "err", err)
				sleepCtx(ctx, q.retryDelay)
			}
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, handler)
			}
		}
	}
}

func (q *RedisMailQueue) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.claimCount,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (q *RedisMailQueue) handleMessage(ctx context.Context, msg redis.XMessage, handler Handler) {
	jobID, job, ok := parseMessage(msg)
	if !ok {
		q.logger.Warn("queue_message_malformed", "msg_id", msg.ID)
		q.ackAndDel(ctx, msg.ID)
		return
	}
	status, err := q.markProcessing(ctx, jobID, job.Kind)
	if err != nil {
		q.logger.Error("queue_status_write_failed", "job_id", jobID, "err", err)
		return
	}
	err = handler(ctx, jobID, job, status.Attempts)
	if err == nil {
		_ = q.mark(ctx, jobID, StatusDone, "")
		q.ackAndDel(ctx, msg.ID)
		return
	}
	if status.Attempts >= q.maxRetries {
		q.logger.Error("mail_job_failed", "job_id", jobID, "kind", job.Kind, "attempts", status.Attempts, "err", err)
		_ = q.mark(ctx, jobID, StatusFailed, err.Error())
		q.ackAndDel(ctx, msg.ID)
		return
	}
	q.logger.Warn("mail_job_retry", "job_id", jobID, "kind", job.Kind, "attempts", status.Attempts, "err", err)
	_ = q.mark(ctx, jobID, StatusQueued, err.Error())
	if !sleepCtx(ctx, q.retryDelay) {
		return
	}
	if err := q.requeueAndAck(ctx, msg.ID, jobID, job); err != nil {
		q.logger.Error("queue_requeue_failed", "job_id", jobID, "err", err)
	}
}

func (q *RedisMailQueue) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

func (q *RedisMailQueue) requeueAndAck(ctx context.Context, msgID, jobID string, job MailJob) error {
	pipe := q.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: messageValues(jobID, job),
	})
	pipe.XAck(ctx, q.stream, q.group, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisMailQueue) markProcessing(ctx context.Context, jobID, kind string) (JobStatus, error) {
	job, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return JobStatus{}, err
	}
	if job.ID == "" {
		job = JobStatus{ID: jobID}
	}
	job.Kind = kind
	job.Attempts++
	job.Status = StatusProcessing
	job.UpdatedAt = time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.UpdatedAt
	}
	if err := q.writeStatus(ctx, job); err != nil {
		return JobStatus{}, err
	}
	return job, nil
}

func (q *RedisMailQueue) mark(ctx context.Context, jobID, status, errMsg string) error {
	job, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.Status = status
	job.ErrorMessage = errMsg
	job.UpdatedAt = time.Now().UTC()
	return q.writeStatus(ctx, job)
}

func (q *RedisMailQueue) writeStatus(ctx context.Context, job JobStatus) error {
	key := q.jobKey(job.ID)
	payload := map[string]any{
		"id":        job.ID,
		"kind":      job.Kind,
		"status":    job.Status,
		"error":     job.ErrorMessage,
		"attempts":  strconv.Itoa(job.Attempts),
		"createdAt": job.CreatedAt.Format(time.RFC3339Nano),
		"updatedAt": job.UpdatedAt.Format(time.RFC3339Nano),
	}
	if err := q.client.HSet(ctx, key, payload).Err(); err != nil {
		return err
	}
	_ = q.client.Expire(ctx, key, q.jobTTL).Err()
	return nil
}

func (q *RedisMailQueue) jobKey(jobID string) string {
	return fmt.Sprintf("job:%s:%s", q.stream, jobID)
}

func validateJob(job MailJob) error {
	switch {
	case strings.TrimSpace(job.Kind) == "":
		return errors.New("mail job kind required")
	case strings.TrimSpace(job.To) == "":
		return errors.New("mail job recipient required")
	case strings.TrimSpace(job.Subject) == "":
		return errors.New("mail job subject required")
	}
	return nil
}

func messageValues(jobID string, job MailJob) map[string]any {
	return map[string]any{
		"job_id":  jobID,
		"kind":    job.Kind,
		"to":      job.To,
		"subject": job.Subject,
		"body":    job.Body,
	}
}

func parseMessage(msg redis.XMessage) (string, MailJob, bool) {
	str := func(key string) string {
		v, _ := msg.Values[key].(string)
		return v
	}
	jobID := str("job_id")
	job := MailJob{Kind: str("kind"), To: str("to"), Subject: str("subject"), Body: str("body")}
	if jobID == "" || validateJob(job) != nil {
		return "", MailJob{}, false
	}
	return jobID, job, true
}

func decodeJobStatus(jobID string, data map[string]string) JobStatus {
	job := JobStatus{ID: jobID, Kind: data["kind"], Status: data["status"], ErrorMessage: data["error"]}
	if n, err := strconv.Atoi(data["attempts"]); err == nil {
		job.Attempts = n
	}
	if t, err := time.Parse(time.RFC3339Nano, data["createdAt"]); err == nil {
		job.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, data["updatedAt"]); err == nil {
		job.UpdatedAt = t
	}
	return job
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
