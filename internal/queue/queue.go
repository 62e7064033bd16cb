// Package queue hands retrain requests to the external job runner over
// Redis. The learning core enqueues; the runner dequeues, reports progress,
// and posts its result back through the retrain-completed callback.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/cloudguardai/learning/internal/models"
)

const (
	RetrainJobsQueue      = "cloudguard:jobs:retrain"
	RetrainJobsProcessing = "cloudguard:jobs:processing"
	RetrainJobsCompleted  = "cloudguard:jobs:completed"
	RetrainJobsFailed     = "cloudguard:jobs:failed"
	JobProgressPrefix     = "cloudguard:job:progress:"
)

const maxAttempts = 3

type Config struct {
	Addr     string
	Password string
	DB       int
}

type Queue struct {
	client *redis.Client
}

func New(cfg Config) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Job is one retrain request.
type Job struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Reason    string    `json:"reason"`
	Samples   int       `json:"samples"`
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
	Attempts  int       `json:"attempts"`
}

// JobProgress tracks one job's execution for the status API.
type JobProgress struct {
	JobID       uuid.UUID            `json:"job_id"`
	Status      models.RetrainStatus `json:"status"`
	Errors      []string             `json:"errors,omitempty"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	UpdatedAt   time.Time            `json:"updated_at"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
	WorkerID    string               `json:"worker_id,omitempty"`
}

// EnqueueRetrainJob queues a retrain request, biased by priority so urgent
// drift-triggered retrains jump ahead of volume-triggered ones.
func (q *Queue) EnqueueRetrainJob(ctx context.Context, job *Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Type == "" {
		job.Type = "model_retrain"
	}
	job.CreatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}

	score := float64(time.Now().Unix()) - float64(job.Priority*1000)

	if err := q.client.ZAdd(ctx, RetrainJobsQueue, redis.Z{
		Score:  score,
		Member: string(data),
	}).Err(); err != nil {
		return fmt.Errorf("enqueueing job: %w", err)
	}

	progress := &JobProgress{
		JobID:  job.ID,
		Status: models.RetrainStatusPending,
	}
	if err := q.UpdateProgress(ctx, progress); err != nil {
		return fmt.Errorf("initializing progress: %w", err)
	}

	return nil
}

// DequeueJob pops the highest-priority pending job for a worker, or nil
// when the queue is empty.
func (q *Queue) DequeueJob(ctx context.Context, workerID string) (*Job, error) {
	results, err := q.client.ZPopMin(ctx, RetrainJobsQueue, 1).Result()
	if err != nil {
		return nil, fmt.Errorf("dequeuing job: %w", err)
	}

	if len(results) == 0 {
		return nil, nil
	}

	var job Job
	if err := json.Unmarshal([]byte(results[0].Member.(string)), &job); err != nil {
		return nil, fmt.Errorf("unmarshaling job: %w", err)
	}

	data, _ := json.Marshal(job)
	if err := q.client.SAdd(ctx, RetrainJobsProcessing, string(data)).Err(); err != nil {
		q.client.ZAdd(ctx, RetrainJobsQueue, redis.Z{
			Score:  results[0].Score,
			Member: results[0].Member,
		})
		return nil, fmt.Errorf("marking job as processing: %w", err)
	}

	now := time.Now()
	progress := &JobProgress{
		JobID:     job.ID,
		Status:    models.RetrainStatusRunning,
		StartedAt: &now,
		WorkerID:  workerID,
	}
	_ = q.UpdateProgress(ctx, progress)

	return &job, nil
}

// CompleteJob retires a job into the completed or failed set.
func (q *Queue) CompleteJob(ctx context.Context, job *Job, success bool) error {
	data, _ := json.Marshal(job)

	q.client.SRem(ctx, RetrainJobsProcessing, string(data))

	targetSet := RetrainJobsCompleted
	status := models.RetrainStatusCompleted
	if !success {
		targetSet = RetrainJobsFailed
		status = models.RetrainStatusFailed
	}

	if err := q.client.SAdd(ctx, targetSet, string(data)).Err(); err != nil {
		return fmt.Errorf("marking job complete: %w", err)
	}

	now := time.Now()
	progress, _ := q.GetProgress(ctx, job.ID)
	if progress == nil {
		progress = &JobProgress{JobID: job.ID}
	}
	progress.Status = status
	progress.CompletedAt = &now
	_ = q.UpdateProgress(ctx, progress)

	return nil
}

// RequeueJob puts a failed attempt back with backoff, failing the job for
// good after maxAttempts.
func (q *Queue) RequeueJob(ctx context.Context, job *Job, errorMsg string) error {
	data, _ := json.Marshal(job)

	q.client.SRem(ctx, RetrainJobsProcessing, string(data))

	job.Attempts++

	if job.Attempts >= maxAttempts {
		return q.CompleteJob(ctx, job, false)
	}

	newData, _ := json.Marshal(job)
	backoff := time.Duration(job.Attempts*30) * time.Second
	score := float64(time.Now().Add(backoff).Unix())

	if err := q.client.ZAdd(ctx, RetrainJobsQueue, redis.Z{
		Score:  score,
		Member: string(newData),
	}).Err(); err != nil {
		return fmt.Errorf("requeuing job: %w", err)
	}

	progress, _ := q.GetProgress(ctx, job.ID)
	if progress == nil {
		progress = &JobProgress{JobID: job.ID}
	}
	progress.Status = models.RetrainStatusPending
	progress.Errors = append(progress.Errors, errorMsg)
	_ = q.UpdateProgress(ctx, progress)

	return nil
}

func (q *Queue) UpdateProgress(ctx context.Context, progress *JobProgress) error {
	progress.UpdatedAt = time.Now()
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshaling progress: %w", err)
	}

	key := JobProgressPrefix + progress.JobID.String()
	if err := q.client.Set(ctx, key, string(data), 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("updating progress: %w", err)
	}

	return nil
}

func (q *Queue) GetProgress(ctx context.Context, jobID uuid.UUID) (*JobProgress, error) {
	key := JobProgressPrefix + jobID.String()
	data, err := q.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting progress: %w", err)
	}

	var progress JobProgress
	if err := json.Unmarshal([]byte(data), &progress); err != nil {
		return nil, fmt.Errorf("unmarshaling progress: %w", err)
	}

	return &progress, nil
}

// PendingJobs reports how many retrain requests are waiting. Used to keep
// the scheduler from piling up duplicate requests.
func (q *Queue) PendingJobs(ctx context.Context) (int64, error) {
	pending, err := q.client.ZCard(ctx, RetrainJobsQueue).Result()
	if err != nil {
		return 0, fmt.Errorf("counting pending jobs: %w", err)
	}
	return pending, nil
}

func (q *Queue) GetQueueStats(ctx context.Context) (map[string]int64, error) {
	stats := make(map[string]int64)

	pending, _ := q.client.ZCard(ctx, RetrainJobsQueue).Result()
	processing, _ := q.client.SCard(ctx, RetrainJobsProcessing).Result()
	completed, _ := q.client.SCard(ctx, RetrainJobsCompleted).Result()
	failed, _ := q.client.SCard(ctx, RetrainJobsFailed).Result()

	stats["pending"] = pending
	stats["processing"] = processing
	stats["completed"] = completed
	stats["failed"] = failed

	return stats, nil
}
