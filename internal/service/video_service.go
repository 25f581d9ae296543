package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/promptmotion/api/internal/model"
	"github.com/promptmotion/api/internal/storage"
	"github.com/promptmotion/api/internal/store"
)

const TaskTypeVideo = "video:generate"

// VideoJobPayload is the task body carried through the queue.
type VideoJobPayload struct {
	JobID  string `json:"job_id"`
	Prompt string `json:"prompt"`
}

// JobRunner executes a generation job synchronously. It is the dispatch
// path when no queue is configured; the worker package provides the
// implementation either way.
type JobRunner interface {
	Run(ctx context.Context, jobID, prompt string)
}

// VideoService accepts generation requests and answers status polls. The
// pipeline itself runs out of band; this service only creates the job
// record and hands the work off.
type VideoService struct {
	store       store.JobStore
	staging     *storage.Staging
	asynqClient *asynq.Client
	runner      JobRunner
}

// NewVideoService creates a video job service. asynqClient may be nil, in
// which case jobs run on an in-process goroutine via runner.
func NewVideoService(jobStore store.JobStore, staging *storage.Staging, asynqClient *asynq.Client, runner JobRunner) *VideoService {
	return &VideoService{
		store:       jobStore,
		staging:     staging,
		asynqClient: asynqClient,
		runner:      runner,
	}
}

// StartGeneration registers a new job and dispatches it. The previous
// published asset is cleared first so a poll during generation cannot be
// answered with a stale video.
func (s *VideoService) StartGeneration(ctx context.Context, prompt string) (*model.Job, error) {
	if err := s.staging.ClearPublished(); err != nil {
		log.Printf("Warning: failed to clear published asset: %v", err)
	}

	job := &model.Job{
		ID:        uuid.New().String(),
		Prompt:    prompt,
		Status:    model.JobStatusProcessing,
		Message:   "Video generation started",
		CreatedAt: time.Now(),
	}
	if err := s.store.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	if s.asynqClient != nil {
		task, err := newVideoTask(job.ID, prompt)
		if err != nil {
			return nil, fmt.Errorf("failed to create task: %w", err)
		}
		_, err = s.asynqClient.Enqueue(task,
			asynq.Queue("video"),
			asynq.MaxRetry(0),
			asynq.Retention(store.Retention),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to enqueue task: %w", err)
		}
		return job, nil
	}

	go s.runner.Run(context.Background(), job.ID, prompt)
	return job, nil
}

// GetStatus returns the stored record for a job id.
func (s *VideoService) GetStatus(ctx context.Context, jobID string) (*model.Job, error) {
	return s.store.Get(ctx, jobID)
}

func newVideoTask(jobID, prompt string) (*asynq.Task, error) {
	data, err := json.Marshal(VideoJobPayload{JobID: jobID, Prompt: prompt})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeVideo, data), nil
}
