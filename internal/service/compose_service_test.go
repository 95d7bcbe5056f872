package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/videoweave/api/internal/compose"
	"github.com/videoweave/api/internal/media"
	"github.com/videoweave/api/internal/model"
)

// fakeResolver serves descriptors from a fixed map, or fails everything with
// a scripted error.
type fakeResolver struct {
	files map[string]*model.MediaDescriptor
	err   error
}

func (r *fakeResolver) ResolveSpec(ctx context.Context, spec *model.CompositionSpec) (map[string]*model.MediaDescriptor, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.files, nil
}

type fakeEnqueuer struct {
	mu     sync.Mutex
	jobIDs []string
	err    error
}

func (e *fakeEnqueuer) EnqueueJob(ctx context.Context, jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.jobIDs = append(e.jobIDs, jobID)
	return nil
}

func (e *fakeEnqueuer) enqueued() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.jobIDs...)
}

func testSpec() *model.CompositionSpec {
	d1, d2, td := 5.0, 10.0, 1.0
	return &model.CompositionSpec{
		Title: "test",
		Scenes: []model.Scene{
			{ID: "s1", Media: model.Media{Type: model.MediaTypeImage, Source: "file-s1"}, Duration: &d1},
			{ID: "s2", Media: model.Media{Type: model.MediaTypeVideo, Source: "file-s2"}, Duration: &d2},
		},
		Transitions: []model.Transition{
			{FromScene: "s1", ToScene: "s2", Type: model.TransitionFade, Duration: &td},
		},
	}
}

func testFiles() map[string]*model.MediaDescriptor {
	return map[string]*model.MediaDescriptor{
		"file-s1": {Source: "file-s1", Path: "/media/s1.jpg", Type: model.MediaTypeImage, Size: 1024},
		"file-s2": {Source: "file-s2", Path: "/media/s2.mp4", Type: model.MediaTypeVideo, Size: 2048, Duration: 12},
	}
}

func newTestService(t *testing.T, resolver SpecResolver, queue Enqueuer) (*ComposeService, *MemoryJobStore) {
	t.Helper()
	validator := compose.NewValidator(5.0)
	store := NewMemoryJobStore()
	svc := NewComposeService(validator, compose.NewCompiler(validator), resolver, store, queue)
	return svc, store
}

func TestSubmitCreatesPendingJobAndEnqueues(t *testing.T) {
	queue := &fakeEnqueuer{}
	svc, store := newTestService(t, &fakeResolver{files: testFiles()}, queue)

	resp, err := svc.Submit(context.Background(), "alice", testSpec())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp.Status != model.JobStatusPending {
		t.Errorf("status = %s, want pending", resp.Status)
	}
	if resp.EstimatedTime <= 0 {
		t.Errorf("estimated time = %d, want positive", resp.EstimatedTime)
	}

	job, err := store.Get(context.Background(), resp.JobID)
	if err != nil {
		t.Fatalf("stored job: %v", err)
	}
	if job.Owner != "alice" {
		t.Errorf("owner = %q, want alice", job.Owner)
	}
	if job.Plan == nil || len(job.Plan.Stages) == 0 {
		t.Fatal("job has no compiled plan")
	}
	if got := queue.enqueued(); len(got) != 1 || got[0] != resp.JobID {
		t.Errorf("enqueued = %v, want [%s]", got, resp.JobID)
	}
}

func TestSubmitRejectsInvalidSpecWithoutJob(t *testing.T) {
	queue := &fakeEnqueuer{}
	svc, store := newTestService(t, &fakeResolver{files: testFiles()}, queue)

	spec := testSpec()
	spec.Scenes[1].ID = "s1"
	_, err := svc.Submit(context.Background(), "alice", spec)
	if se, ok := compose.AsSpecError(err); !ok || se.Kind != compose.KindDuplicateSceneID {
		t.Fatalf("err = %v, want DuplicateSceneId", err)
	}

	jobs, _ := store.List(context.Background(), "")
	if len(jobs) != 0 {
		t.Errorf("jobs created on invalid spec: %d", len(jobs))
	}
	if len(queue.enqueued()) != 0 {
		t.Error("task enqueued on invalid spec")
	}
}

func TestSubmitRejectsUnresolvableMediaWithoutJob(t *testing.T) {
	resolver := &fakeResolver{err: &media.ResolutionError{
		Kind: media.KindNotFound, Source: "file-s2", Message: "no such upload",
	}}
	queue := &fakeEnqueuer{}
	svc, store := newTestService(t, resolver, queue)

	_, err := svc.Submit(context.Background(), "alice", testSpec())
	if re, ok := media.AsResolutionError(err); !ok || re.Kind != media.KindNotFound {
		t.Fatalf("err = %v, want NotFound resolution error", err)
	}

	jobs, _ := store.List(context.Background(), "")
	if len(jobs) != 0 {
		t.Errorf("jobs created on unresolvable media: %d", len(jobs))
	}
}

func TestSubmitEnqueueFailureFailsJob(t *testing.T) {
	queue := &fakeEnqueuer{err: errors.New("redis down")}
	svc, store := newTestService(t, &fakeResolver{files: testFiles()}, queue)

	_, err := svc.Submit(context.Background(), "alice", testSpec())
	if err == nil {
		t.Fatal("expected enqueue error")
	}

	jobs, _ := store.List(context.Background(), "alice")
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want the failed record", len(jobs))
	}
	if jobs[0].Status != model.JobStatusFailed {
		t.Errorf("status = %s, want failed", jobs[0].Status)
	}
}

func submitJob(t *testing.T, svc *ComposeService, owner string) string {
	t.Helper()
	resp, err := svc.Submit(context.Background(), owner, testSpec())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return resp.JobID
}

func TestGetStatusEnforcesOwnership(t *testing.T) {
	svc, _ := newTestService(t, &fakeResolver{files: testFiles()}, &fakeEnqueuer{})
	jobID := submitJob(t, svc, "alice")

	if _, err := svc.GetStatus(context.Background(), "alice", jobID); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if _, err := svc.GetStatus(context.Background(), "mallory", jobID); !errors.Is(err, ErrForbidden) {
		t.Errorf("foreign read err = %v, want ErrForbidden", err)
	}
	if _, err := svc.GetStatus(context.Background(), "alice", "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("missing job err = %v, want ErrJobNotFound", err)
	}
}

func TestCancelPendingJobIsImmediate(t *testing.T) {
	svc, store := newTestService(t, &fakeResolver{files: testFiles()}, &fakeEnqueuer{})
	jobID := submitJob(t, svc, "alice")

	resp, err := svc.Cancel(context.Background(), "alice", jobID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if resp.Status != model.JobStatusCancelled {
		t.Errorf("status = %s, want cancelled", resp.Status)
	}

	job, _ := store.Get(context.Background(), jobID)
	if job.CompletedAt == nil {
		t.Error("cancelled job missing completion time")
	}
}

func TestCancelProcessingJobSetsFlag(t *testing.T) {
	svc, store := newTestService(t, &fakeResolver{files: testFiles()}, &fakeEnqueuer{})
	jobID := submitJob(t, svc, "alice")
	if _, err := MutateJob(context.Background(), store, jobID, func(job *model.Job) error {
		job.Status = model.JobStatusProcessing
		return nil
	}); err != nil {
		t.Fatalf("move to processing: %v", err)
	}

	resp, err := svc.Cancel(context.Background(), "alice", jobID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if resp.Status != model.JobStatusProcessing {
		t.Errorf("status = %s, want still processing", resp.Status)
	}

	job, _ := store.Get(context.Background(), jobID)
	if !job.CancelRequested {
		t.Error("cancel flag not set")
	}

	// A second cancel against the flagged job is rejected.
	if _, err := svc.Cancel(context.Background(), "alice", jobID); !errors.Is(err, ErrInvalidStateForCancel) {
		t.Errorf("second cancel err = %v, want ErrInvalidStateForCancel", err)
	}
}

func TestCancelTerminalJobRejected(t *testing.T) {
	svc, store := newTestService(t, &fakeResolver{files: testFiles()}, &fakeEnqueuer{})
	jobID := submitJob(t, svc, "alice")
	if _, err := MutateJob(context.Background(), store, jobID, func(job *model.Job) error {
		job.Status = model.JobStatusCompleted
		return nil
	}); err != nil {
		t.Fatalf("move to completed: %v", err)
	}

	if _, err := svc.Cancel(context.Background(), "alice", jobID); !errors.Is(err, ErrInvalidStateForCancel) {
		t.Errorf("err = %v, want ErrInvalidStateForCancel", err)
	}
}

func TestConcurrentCancelsExactlyOneWins(t *testing.T) {
	svc, _ := newTestService(t, &fakeResolver{files: testFiles()}, &fakeEnqueuer{})
	jobID := submitJob(t, svc, "alice")

	const callers = 8
	var wg sync.WaitGroup
	results := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Cancel(context.Background(), "alice", jobID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrInvalidStateForCancel):
		default:
			t.Errorf("unexpected cancel error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("winning cancels = %d, want exactly 1", wins)
	}
}

func TestListFiltersAndPaginates(t *testing.T) {
	svc, store := newTestService(t, &fakeResolver{files: testFiles()}, &fakeEnqueuer{})
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, submitJob(t, svc, "alice"))
	}
	submitJob(t, svc, "bob")
	if _, err := MutateJob(context.Background(), store, ids[0], func(job *model.Job) error {
		job.Status = model.JobStatusCompleted
		return nil
	}); err != nil {
		t.Fatalf("move to completed: %v", err)
	}

	all, err := svc.List(context.Background(), "alice", "", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("alice jobs = %d, want 5", len(all))
	}

	completed, err := svc.List(context.Background(), "alice", model.JobStatusCompleted, 0, 0)
	if err != nil {
		t.Fatalf("list completed: %v", err)
	}
	if len(completed) != 1 || completed[0].JobID != ids[0] {
		t.Errorf("completed filter = %+v, want only %s", completed, ids[0])
	}

	page, err := svc.List(context.Background(), "alice", "", 2, 2)
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page) != 2 {
		t.Errorf("page size = %d, want 2", len(page))
	}
}

func TestOutputNotReadyUntilCompleted(t *testing.T) {
	svc, store := newTestService(t, &fakeResolver{files: testFiles()}, &fakeEnqueuer{})
	jobID := submitJob(t, svc, "alice")

	if _, err := svc.Output(context.Background(), "alice", jobID); !errors.Is(err, ErrNotReady) {
		t.Fatalf("pending output err = %v, want ErrNotReady", err)
	}

	if _, err := MutateJob(context.Background(), store, jobID, func(job *model.Job) error {
		job.Status = model.JobStatusCompleted
		job.OutputPath = "/outputs/" + jobID + ".mp4"
		return nil
	}); err != nil {
		t.Fatalf("complete job: %v", err)
	}

	path, err := svc.Output(context.Background(), "alice", jobID)
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	if path != "/outputs/"+jobID+".mp4" {
		t.Errorf("path = %q", path)
	}
}

func TestQueueStatusCounts(t *testing.T) {
	svc, store := newTestService(t, &fakeResolver{files: testFiles()}, &fakeEnqueuer{})
	a1 := submitJob(t, svc, "alice")
	submitJob(t, svc, "alice")
	submitJob(t, svc, "bob")
	if _, err := MutateJob(context.Background(), store, a1, func(job *model.Job) error {
		job.Status = model.JobStatusFailed
		return nil
	}); err != nil {
		t.Fatalf("fail job: %v", err)
	}

	status, err := svc.QueueStatus(context.Background(), "alice")
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	if status.UserJobs.Total != 2 || status.UserJobs.Pending != 1 || status.UserJobs.Failed != 1 {
		t.Errorf("user counts = %+v", status.UserJobs)
	}
	if status.GlobalQueue.Total != 3 || status.GlobalQueue.Pending != 2 {
		t.Errorf("global counts = %+v", status.GlobalQueue)
	}
}

func TestJobStoreRejectsStaleWrite(t *testing.T) {
	store := NewMemoryJobStore()
	job := &model.Job{ID: "j1", Owner: "alice", Status: model.JobStatusPending, CreatedAt: time.Now().UTC()}
	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, _ := store.Get(context.Background(), "j1")
	second, _ := store.Get(context.Background(), "j1")

	first.Progress = 10
	if err := store.Update(context.Background(), first); err != nil {
		t.Fatalf("first update: %v", err)
	}

	second.Progress = 20
	if err := store.Update(context.Background(), second); !errors.Is(err, ErrStaleJobVersion) {
		t.Fatalf("stale update err = %v, want ErrStaleJobVersion", err)
	}

	current, _ := store.Get(context.Background(), "j1")
	if current.Progress != 10 {
		t.Errorf("progress = %v, want the first writer's 10", current.Progress)
	}
}
