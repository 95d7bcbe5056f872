package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"

	"github.com/videoweave/api/internal/engine"
	"github.com/videoweave/api/internal/model"
	"github.com/videoweave/api/internal/service"
)

// maxStageAttempts bounds retries of a single stage. Attempts are persisted on
// the stage, so the budget holds across process restarts.
const maxStageAttempts = 3

// errAlreadyHandled means another actor moved the job out of PENDING before
// this worker claimed it. The task is consumed without running anything.
var errAlreadyHandled = errors.New("job already handled")

// Notifier pushes live job updates to subscribers. Implemented by
// websocket.Hub; a nil Notifier disables pushes.
type Notifier interface {
	BroadcastProgress(jobID string, progress float64, status model.JobStatus, stage string)
	BroadcastComplete(jobID, outputPath string)
	BroadcastError(jobID, code, message string)
}

// ComposeWorker executes render plans. One task maps to one job; stages run
// strictly in plan order, progress is the weight share of completed stages,
// and a requested cancellation is honoured at the next stage boundary.
type ComposeWorker struct {
	jobs         service.JobStore
	engine       engine.Engine
	hub          Notifier
	workRoot     string
	outputDir    string
	stageTimeout time.Duration
	backoff      func(attempt int) time.Duration
}

func NewComposeWorker(jobs service.JobStore, eng engine.Engine, hub Notifier, workRoot, outputDir string, stageTimeout time.Duration) *ComposeWorker {
	return &ComposeWorker{
		jobs:         jobs,
		engine:       eng,
		hub:          hub,
		workRoot:     workRoot,
		outputDir:    outputDir,
		stageTimeout: stageTimeout,
		backoff:      defaultBackoff,
	}
}

func defaultBackoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

// ProcessTask handles one compose task end to end.
func (w *ComposeWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal task payload: %w", err)
	}
	jobID := payload.JobID
	log.Printf("Starting compose job: %s", jobID)

	job, err := w.claim(ctx, jobID)
	if errors.Is(err, errAlreadyHandled) {
		log.Printf("Compose job %s no longer pending, skipping", jobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim job %s: %w", jobID, err)
	}

	workDir := filepath.Join(w.workRoot, jobID)
	plan := job.Plan

	doneWeight := 0
	var artifact string
	for i := range plan.Stages {
		stageID := plan.Stages[i].ID

		cancelled, err := w.stopIfCancelRequested(ctx, jobID)
		if err != nil {
			return err
		}
		if cancelled {
			log.Printf("Compose job %s cancelled at stage %s", jobID, stageID)
			return nil
		}

		artifact, err = w.runStage(ctx, jobID, workDir, stageID)
		if err != nil {
			// The job record already carries the failure; the task is done.
			return nil
		}

		doneWeight += plan.Stages[i].Weight
		progress := float64(doneWeight) / float64(plan.TotalWeight) * 100
		w.setProgress(ctx, jobID, progress)
	}

	outputPath, err := w.publishOutput(jobID, artifact)
	if err != nil {
		w.failJob(ctx, jobID, "OutputError", err.Error())
		return nil
	}

	if err := w.complete(ctx, jobID, outputPath); err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	log.Printf("Compose job %s completed: %s", jobID, outputPath)
	return nil
}

// claim moves the job from PENDING to PROCESSING. Any other current status
// means the job was cancelled or picked up elsewhere.
func (w *ComposeWorker) claim(ctx context.Context, jobID string) (*model.Job, error) {
	return service.MutateJob(ctx, w.jobs, jobID, func(job *model.Job) error {
		if job.Status != model.JobStatusPending {
			return errAlreadyHandled
		}
		now := time.Now().UTC()
		job.Status = model.JobStatusProcessing
		job.StartedAt = &now
		return nil
	})
}

// stopIfCancelRequested finalizes the job as CANCELLED when the cancel flag is
// set, freezing progress at its current value.
func (w *ComposeWorker) stopIfCancelRequested(ctx context.Context, jobID string) (bool, error) {
	job, err := w.jobs.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	if !job.CancelRequested {
		return false, nil
	}

	job, err = service.MutateJob(ctx, w.jobs, jobID, func(job *model.Job) error {
		if job.Status.Terminal() {
			return errAlreadyHandled
		}
		now := time.Now().UTC()
		job.Status = model.JobStatusCancelled
		job.CompletedAt = &now
		return nil
	})
	if errors.Is(err, errAlreadyHandled) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if w.hub != nil {
		w.hub.BroadcastProgress(jobID, job.Progress, model.JobStatusCancelled, "")
	}
	return true, nil
}

// runStage executes one stage, retrying transient failures with backoff until
// the persisted attempt budget runs out. Permanent failures and budget
// exhaustion fail the job; the returned error then just ends the task.
func (w *ComposeWorker) runStage(ctx context.Context, jobID, workDir, stageID string) (string, error) {
	for {
		job, err := service.MutateJob(ctx, w.jobs, jobID, func(job *model.Job) error {
			stage := job.Plan.StageByID(stageID)
			if stage == nil {
				return fmt.Errorf("stage %s missing from plan", stageID)
			}
			stage.Attempts++
			job.CurrentStage = stageID
			return nil
		})
		if err != nil {
			w.failJob(ctx, jobID, "StateError", err.Error())
			return "", err
		}

		stage := job.Plan.StageByID(stageID)
		if w.hub != nil {
			w.hub.BroadcastProgress(jobID, job.Progress, job.Status, stageID)
		}

		stageCtx := ctx
		var cancel context.CancelFunc
		if w.stageTimeout > 0 {
			stageCtx, cancel = context.WithTimeout(ctx, w.stageTimeout)
		}
		artifact, err := w.engine.Execute(stageCtx, workDir, stage)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return artifact, nil
		}

		if !engine.IsTransient(err) {
			log.Printf("Compose job %s stage %s failed permanently: %v", jobID, stageID, err)
			w.failJob(ctx, jobID, "RenderError", err.Error())
			return "", err
		}
		if stage.Attempts >= maxStageAttempts {
			log.Printf("Compose job %s stage %s exhausted %d attempts: %v", jobID, stageID, stage.Attempts, err)
			w.failJob(ctx, jobID, "RenderError",
				fmt.Sprintf("stage %s failed after %d attempts: %v", stageID, stage.Attempts, err))
			return "", err
		}

		delay := w.backoff(stage.Attempts)
		log.Printf("Compose job %s stage %s attempt %d failed, retrying in %s: %v",
			jobID, stageID, stage.Attempts, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			w.failJob(ctx, jobID, "RenderError", ctx.Err().Error())
			return "", ctx.Err()
		}
	}
}

func (w *ComposeWorker) setProgress(ctx context.Context, jobID string, progress float64) {
	job, err := service.MutateJob(ctx, w.jobs, jobID, func(job *model.Job) error {
		if job.Status.Terminal() {
			return errAlreadyHandled
		}
		job.Progress = progress
		return nil
	})
	if err != nil {
		if !errors.Is(err, errAlreadyHandled) {
			log.Printf("Failed to update progress for job %s: %v", jobID, err)
		}
		return
	}
	if w.hub != nil {
		w.hub.BroadcastProgress(jobID, job.Progress, job.Status, job.CurrentStage)
	}
}

// publishOutput moves the final artifact into the served output directory
// under the job id.
func (w *ComposeWorker) publishOutput(jobID, artifact string) (string, error) {
	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return "", err
	}
	outputPath := filepath.Join(w.outputDir, jobID+filepath.Ext(artifact))
	if err := os.Rename(artifact, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}

func (w *ComposeWorker) complete(ctx context.Context, jobID, outputPath string) error {
	_, err := service.MutateJob(ctx, w.jobs, jobID, func(job *model.Job) error {
		if job.Status.Terminal() {
			return errAlreadyHandled
		}
		now := time.Now().UTC()
		job.Status = model.JobStatusCompleted
		job.Progress = 100
		job.OutputPath = outputPath
		job.CurrentStage = ""
		job.CompletedAt = &now
		return nil
	})
	if errors.Is(err, errAlreadyHandled) {
		return nil
	}
	if err != nil {
		return err
	}
	if w.hub != nil {
		w.hub.BroadcastComplete(jobID, outputPath)
	}
	return nil
}

func (w *ComposeWorker) failJob(ctx context.Context, jobID, kind, message string) {
	_, err := service.MutateJob(ctx, w.jobs, jobID, func(job *model.Job) error {
		if job.Status.Terminal() {
			return errAlreadyHandled
		}
		now := time.Now().UTC()
		job.Status = model.JobStatusFailed
		job.Error = &model.JobError{Kind: kind, Message: message}
		job.CompletedAt = &now
		return nil
	})
	if err != nil {
		if !errors.Is(err, errAlreadyHandled) {
			log.Printf("Failed to mark job %s as failed: %v", jobID, err)
		}
		return
	}
	if w.hub != nil {
		w.hub.BroadcastError(jobID, kind, message)
	}
}
