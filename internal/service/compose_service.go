package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/videoweave/api/internal/compose"
	"github.com/videoweave/api/internal/model"
)

// TaskTypeCompose is the asynq task type carrying a composition job id.
const TaskTypeCompose = "compose:render"

var (
	// ErrForbidden means the caller's owner id does not match the job's.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidStateForCancel means the job is already terminal or a
	// cancellation is already pending.
	ErrInvalidStateForCancel = errors.New("invalid state for cancel")
	// ErrNotReady means the job has no output artifact yet.
	ErrNotReady = errors.New("job output not ready")
)

// SpecResolver resolves every media reference of a spec. Implemented by
// media.Resolver.
type SpecResolver interface {
	ResolveSpec(ctx context.Context, spec *model.CompositionSpec) (map[string]*model.MediaDescriptor, error)
}

// Enqueuer hands a job id to the dispatch queue.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, jobID string) error
}

// AsynqEnqueuer queues jobs through asynq.
type AsynqEnqueuer struct {
	client *asynq.Client
}

func NewAsynqEnqueuer(client *asynq.Client) *AsynqEnqueuer {
	return &AsynqEnqueuer{client: client}
}

func (e *AsynqEnqueuer) EnqueueJob(ctx context.Context, jobID string) error {
	payload, err := json.Marshal(map[string]string{"jobId": jobID})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskTypeCompose, payload)
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.Queue("compose"),
		asynq.MaxRetry(3),
		asynq.Retention(24*time.Hour),
	)
	return err
}

// ComposeService is the job lifecycle engine's front door: it compiles
// submissions into render plans, owns the job state machine from the API
// side, and enforces per-owner isolation on every read and transition.
type ComposeService struct {
	validator *compose.Validator
	compiler  *compose.Compiler
	resolver  SpecResolver
	jobs      JobStore
	queue     Enqueuer
}

func NewComposeService(validator *compose.Validator, compiler *compose.Compiler, resolver SpecResolver, jobs JobStore, queue Enqueuer) *ComposeService {
	return &ComposeService{
		validator: validator,
		compiler:  compiler,
		resolver:  resolver,
		jobs:      jobs,
		queue:     queue,
	}
}

// Submit validates, resolves and compiles a spec, then creates a PENDING job
// and enqueues it. Any validation, resolution or compilation error aborts
// before a job exists.
func (s *ComposeService) Submit(ctx context.Context, owner string, spec *model.CompositionSpec) (*model.SubmitResponse, error) {
	validated, err := s.validator.Validate(spec)
	if err != nil {
		return nil, err
	}

	media, err := s.resolver.ResolveSpec(ctx, validated)
	if err != nil {
		return nil, err
	}

	plan, err := s.compiler.Compile(validated, media)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &model.Job{
		ID:        uuid.New().String(),
		Owner:     owner,
		Status:    model.JobStatusPending,
		Spec:      validated,
		Plan:      plan,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}

	if err := s.queue.EnqueueJob(ctx, job.ID); err != nil {
		// The job record exists but will never run; record the failure so the
		// caller does not poll a job that cannot progress.
		s.failUnqueued(ctx, job.ID, err)
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	return &model.SubmitResponse{
		JobID:         job.ID,
		Status:        job.Status,
		Message:       fmt.Sprintf("composition %q queued for processing", validated.Title),
		EstimatedTime: plan.EstimatedTime,
		Warnings:      plan.Warnings,
		CreatedAt:     now,
	}, nil
}

func (s *ComposeService) failUnqueued(ctx context.Context, jobID string, cause error) {
	MutateJob(ctx, s.jobs, jobID, func(job *model.Job) error {
		now := time.Now().UTC()
		job.Status = model.JobStatusFailed
		job.Error = &model.JobError{Kind: "QueueError", Message: cause.Error()}
		job.CompletedAt = &now
		return nil
	})
}

// GetStatus returns the job snapshot for its owner.
func (s *ComposeService) GetStatus(ctx context.Context, owner, jobID string) (*model.JobStatusResponse, error) {
	job, err := s.ownedJob(ctx, owner, jobID)
	if err != nil {
		return nil, err
	}
	return job.Snapshot(), nil
}

// List returns the owner's jobs, newest first, optionally filtered by status.
func (s *ComposeService) List(ctx context.Context, owner string, status model.JobStatus, limit, offset int) ([]*model.JobStatusResponse, error) {
	jobs, err := s.jobs.List(ctx, owner)
	if err != nil {
		return nil, err
	}

	out := make([]*model.JobStatusResponse, 0, limit)
	skipped := 0
	for _, job := range jobs {
		if status != "" && job.Status != status {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, job.Snapshot())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Cancel requests cancellation. A PENDING job becomes CANCELLED immediately;
// a PROCESSING job gets its cancel flag set and the worker honours it at the
// next stage boundary. Terminal jobs, and jobs already flagged, reject with
// ErrInvalidStateForCancel, so under concurrent cancels exactly one wins.
func (s *ComposeService) Cancel(ctx context.Context, owner, jobID string) (*model.CancelResponse, error) {
	if _, err := s.ownedJob(ctx, owner, jobID); err != nil {
		return nil, err
	}

	job, err := MutateJob(ctx, s.jobs, jobID, func(job *model.Job) error {
		if job.Owner != owner {
			return ErrForbidden
		}
		if job.Status.Terminal() || job.CancelRequested {
			return ErrInvalidStateForCancel
		}
		if job.Status == model.JobStatusPending {
			now := time.Now().UTC()
			job.Status = model.JobStatusCancelled
			job.CompletedAt = &now
		}
		job.CancelRequested = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	msg := "cancellation requested; the job stops at the next stage boundary"
	if job.Status == model.JobStatusCancelled {
		msg = "job cancelled"
	}
	return &model.CancelResponse{JobID: job.ID, Status: job.Status, Message: msg}, nil
}

// Output returns the artifact path of a completed job. Fails with ErrNotReady
// until the job reaches COMPLETED.
func (s *ComposeService) Output(ctx context.Context, owner, jobID string) (string, error) {
	job, err := s.ownedJob(ctx, owner, jobID)
	if err != nil {
		return "", err
	}
	if job.Status != model.JobStatusCompleted || job.OutputPath == "" {
		return "", fmt.Errorf("%w: status is %s", ErrNotReady, job.Status)
	}
	return job.OutputPath, nil
}

// QueueStatus reports the owner's job counts and the global queue picture.
func (s *ComposeService) QueueStatus(ctx context.Context, owner string) (*model.QueueStatusResponse, error) {
	all, err := s.jobs.List(ctx, "")
	if err != nil {
		return nil, err
	}

	var resp model.QueueStatusResponse
	for _, job := range all {
		tally(&resp.GlobalQueue, job.Status)
		if job.Owner == owner {
			tally(&resp.UserJobs, job.Status)
		}
	}
	return &resp, nil
}

func tally(c *model.JobCounts, status model.JobStatus) {
	switch status {
	case model.JobStatusPending:
		c.Pending++
	case model.JobStatusProcessing:
		c.Processing++
	case model.JobStatusCompleted:
		c.Completed++
	case model.JobStatusFailed:
		c.Failed++
	case model.JobStatusCancelled:
		c.Cancelled++
	}
	c.Total++
}

func (s *ComposeService) ownedJob(ctx context.Context, owner, jobID string) (*model.Job, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Owner != owner {
		return nil, ErrForbidden
	}
	return job, nil
}
