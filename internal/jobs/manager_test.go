package jobs

import (
	"context"
	"errors"
	"testing"
	"time"
)

func waitForStatus(t *testing.T, m *Manager, jobID, status string) *Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job := m.GetJob(jobID)
		if job != nil && job.Status == status {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job := m.GetJob(jobID)
	if job == nil {
		t.Fatalf("job %s disappeared while waiting for %s", jobID, status)
	}
	t.Fatalf("job %s stuck in %s, wanted %s", jobID, job.Status, status)
	return nil
}

func TestJobCompletes(t *testing.T) {
	m := NewManager()
	jobID := m.CreateJob(1, "steam")

	if job := m.GetJob(jobID); job == nil || job.Status != StatusPending {
		t.Fatalf("new job should be pending, got %+v", job)
	}

	err := m.StartJob(jobID, func(ctx context.Context, progress func(total, synced, failed int)) (any, error) {
		progress(10, 4, 1)
		return "done", nil
	})
	if err != nil {
		t.Fatalf("start job: %v", err)
	}

	job := waitForStatus(t, m, jobID, StatusCompleted)
	if job.Result != "done" {
		t.Fatalf("expected result carried through, got %v", job.Result)
	}
	if job.Progress != 100 {
		t.Fatalf("completed job should be at 100%%, got %d", job.Progress)
	}
	if job.CompletedAt == nil || job.StartedAt == nil {
		t.Fatal("expected timestamps to be set")
	}
}

func TestJobFailure(t *testing.T) {
	m := NewManager()
	jobID := m.CreateJob(1, "")

	err := m.StartJob(jobID, func(ctx context.Context, progress func(total, synced, failed int)) (any, error) {
		return nil, errors.New("platform exploded")
	})
	if err != nil {
		t.Fatalf("start job: %v", err)
	}

	job := waitForStatus(t, m, jobID, StatusFailed)
	if job.Error != "platform exploded" {
		t.Fatalf("expected error message, got %q", job.Error)
	}
}

func TestJobPanicBecomesFailure(t *testing.T) {
	m := NewManager()
	jobID := m.CreateJob(1, "")

	err := m.StartJob(jobID, func(ctx context.Context, progress func(total, synced, failed int)) (any, error) {
		panic("boom")
	})
	if err != nil {
		t.Fatalf("start job: %v", err)
	}

	job := waitForStatus(t, m, jobID, StatusFailed)
	if job.Error == "" {
		t.Fatal("expected panic to surface as job error")
	}
}

func TestJobCancellation(t *testing.T) {
	m := NewManager()
	jobID := m.CreateJob(1, "")

	started := make(chan struct{})
	err := m.StartJob(jobID, func(ctx context.Context, progress func(total, synced, failed int)) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if err != nil {
		t.Fatalf("start job: %v", err)
	}

	<-started
	if !m.CancelJob(jobID) {
		t.Fatal("expected cancel to be accepted for a running job")
	}
	waitForStatus(t, m, jobID, StatusCancelled)
}

func TestCancelNonRunningJob(t *testing.T) {
	m := NewManager()
	jobID := m.CreateJob(1, "")
	if m.CancelJob(jobID) {
		t.Fatal("pending job should not be cancellable")
	}
	if m.CancelJob("no-such-job") {
		t.Fatal("unknown job should not be cancellable")
	}
}

func TestStartJobRejectsNonPending(t *testing.T) {
	m := NewManager()
	jobID := m.CreateJob(1, "")

	noop := func(ctx context.Context, progress func(total, synced, failed int)) (any, error) {
		return nil, nil
	}
	if err := m.StartJob(jobID, noop); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := m.StartJob(jobID, noop); err == nil {
		t.Fatal("second start should fail")
	}
	if err := m.StartJob("no-such-job", noop); err == nil {
		t.Fatal("starting an unknown job should fail")
	}
}

func TestUserJobsNewestFirst(t *testing.T) {
	m := NewManager()

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, m.CreateJob(5, ""))
		time.Sleep(2 * time.Millisecond)
	}
	m.CreateJob(6, "") // other user

	list := m.UserJobs(5, 10)
	if len(list) != 3 {
		t.Fatalf("expected 3 jobs for user 5, got %d", len(list))
	}
	if list[0].ID != ids[2] || list[2].ID != ids[0] {
		t.Fatal("expected newest-first ordering")
	}

	if got := m.UserJobs(5, 2); len(got) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(got))
	}
}

func TestEvictionKeepsActiveJobs(t *testing.T) {
	m := NewManager()
	m.maxJobs = 10

	// Fill with terminal jobs.
	for i := 0; i < 10; i++ {
		id := m.CreateJob(1, "")
		m.mu.Lock()
		m.jobs[id].Status = StatusCompleted
		m.mu.Unlock()
	}
	// One running job that must survive eviction.
	runningID := m.CreateJob(2, "")
	m.mu.Lock()
	m.jobs[runningID].Status = StatusRunning
	m.mu.Unlock()

	// Push over the cap to trigger eviction.
	m.CreateJob(3, "")

	if m.GetJob(runningID) == nil {
		t.Fatal("running job was evicted")
	}
	m.mu.Lock()
	count := len(m.jobs)
	m.mu.Unlock()
	if count > m.maxJobs {
		t.Fatalf("eviction left %d jobs, cap is %d", count, m.maxJobs)
	}
}

func TestGetJobReturnsCopy(t *testing.T) {
	m := NewManager()
	jobID := m.CreateJob(1, "")

	job := m.GetJob(jobID)
	job.Status = StatusFailed

	if fresh := m.GetJob(jobID); fresh.Status != StatusPending {
		t.Fatal("mutating a returned job should not affect the manager's copy")
	}
}
