package model

import "time"

// JobError is the recorded cause of a failed job: a stable kind plus a
// human-readable message.
type JobError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Job is the tracked unit of asynchronous work executing one render plan.
// Version implements optimistic concurrency: every store write checks it and
// bumps it, so a writer holding a stale snapshot is rejected instead of
// silently overwriting a cancel or a progress update.
type Job struct {
	ID              string           `json:"id"`
	Owner           string           `json:"owner"`
	Status          JobStatus        `json:"status"`
	Progress        float64          `json:"progress"`
	Version         int64            `json:"version"`
	Spec            *CompositionSpec `json:"spec,omitempty"`
	Plan            *RenderPlan      `json:"plan,omitempty"`
	CurrentStage    string           `json:"currentStage,omitempty"`
	CancelRequested bool             `json:"cancelRequested"`
	Error           *JobError        `json:"error,omitempty"`
	OutputPath      string           `json:"outputPath,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
	StartedAt       *time.Time       `json:"startedAt,omitempty"`
	CompletedAt     *time.Time       `json:"completedAt,omitempty"`
}

// SubmitResponse is returned on job submission.
type SubmitResponse struct {
	JobID         string    `json:"job_id"`
	Status        JobStatus `json:"status"`
	Message       string    `json:"message"`
	EstimatedTime int       `json:"estimated_time"`
	Warnings      []string  `json:"warnings,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// JobStatusResponse is the read-only job snapshot handed to the HTTP layer.
type JobStatusResponse struct {
	JobID        string     `json:"job_id"`
	Status       JobStatus  `json:"status"`
	Progress     float64    `json:"progress"`
	CurrentStage string     `json:"current_stage,omitempty"`
	Error        *JobError  `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// CancelResponse acknowledges a cancellation request.
type CancelResponse struct {
	JobID   string    `json:"job_id"`
	Status  JobStatus `json:"status"`
	Message string    `json:"message"`
}

// QueueStatusResponse reports per-owner and global queue counts.
type QueueStatusResponse struct {
	UserJobs    JobCounts `json:"user_jobs"`
	GlobalQueue JobCounts `json:"global_queue"`
}

// JobCounts groups jobs by status.
type JobCounts struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	Total      int `json:"total"`
}

// Snapshot converts a job into its external read model.
func (j *Job) Snapshot() *JobStatusResponse {
	return &JobStatusResponse{
		JobID:        j.ID,
		Status:       j.Status,
		Progress:     j.Progress,
		CurrentStage: j.CurrentStage,
		Error:        j.Error,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
	}
}
