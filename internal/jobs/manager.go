// Package jobs tracks background library-sync jobs in memory. Jobs are
// not persisted; a restart forgets them, which matches how long a sync
// result stays interesting.
package jobs

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job execution states.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// MaxJobs caps the in-memory job map. When the cap is hit, the oldest
// terminal jobs are evicted down to half the cap.
const MaxJobs = 1000

// Job is one tracked sync run. Reads get copies; the manager goroutine
// is the only writer after start.
type Job struct {
	ID       string `json:"job_id"`
	UserID   int64  `json:"user_id"`
	Platform string `json:"platform,omitempty"`
	Status   string `json:"status"`

	// Progress is 0..100; the counters mirror the sync summary.
	Progress    int `json:"progress"`
	TotalGames  int `json:"total_games"`
	SyncedGames int `json:"synced_games"`
	FailedGames int `json:"failed_games"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Error  string `json:"error,omitempty"`
	Result any    `json:"result,omitempty"`
}

func (j *Job) terminal() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// WorkFunc is the job body. It receives a cancelable context and a
// progress sink, and returns the value stored as the job result.
type WorkFunc func(ctx context.Context, progress func(total, synced, failed int)) (any, error)

// Manager is a mutex-guarded in-memory job registry.
type Manager struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	cancels map[string]context.CancelFunc
	maxJobs int
}

func NewManager() *Manager {
	return &Manager{
		jobs:    make(map[string]*Job),
		cancels: make(map[string]context.CancelFunc),
		maxJobs: MaxJobs,
	}
}

// CreateJob registers a pending job and returns its ID.
func (m *Manager) CreateJob(userID int64, platform string) string {
	job := &Job{
		ID:        uuid.New().String(),
		UserID:    userID,
		Platform:  platform,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.evictLocked()
	m.mu.Unlock()

	log.Printf("[Jobs] Created job %s for user %d (platform=%q)", job.ID, userID, platform)
	return job.ID
}

// StartJob launches a pending job's work in a goroutine. The work runs
// under a cancelable context detached from the caller's request.
func (m *Manager) StartJob(jobID string, work WorkFunc) error {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("job %s not found", jobID)
	}
	if job.Status != StatusPending {
		m.mu.Unlock()
		return fmt.Errorf("job %s is %s, not pending", jobID, job.Status)
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	job.Status = StatusRunning
	job.StartedAt = &now
	m.cancels[jobID] = cancel
	m.mu.Unlock()

	go m.run(ctx, jobID, work)
	log.Printf("[Jobs] Started job %s", jobID)
	return nil
}

func (m *Manager) run(ctx context.Context, jobID string, work WorkFunc) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Jobs] Job %s panicked: %v", jobID, r)
			m.finish(jobID, StatusFailed, nil, fmt.Sprintf("panic: %v", r))
		}
	}()

	result, err := work(ctx, func(total, synced, failed int) {
		m.updateProgress(jobID, total, synced, failed)
	})

	switch {
	case ctx.Err() != nil:
		m.finish(jobID, StatusCancelled, nil, "")
	case err != nil:
		m.finish(jobID, StatusFailed, nil, err.Error())
	default:
		m.finish(jobID, StatusCompleted, result, "")
	}
}

func (m *Manager) finish(jobID, status string, result any, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return
	}
	if cancel, ok := m.cancels[jobID]; ok {
		cancel()
		delete(m.cancels, jobID)
	}

	now := time.Now()
	job.Status = status
	job.CompletedAt = &now
	job.Error = errMsg
	job.Result = result
	if status == StatusCompleted {
		job.Progress = 100
	}
	log.Printf("[Jobs] Job %s finished: %s", jobID, status)
}

func (m *Manager) updateProgress(jobID string, total, synced, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || job.terminal() {
		return
	}
	job.TotalGames = total
	job.SyncedGames = synced
	job.FailedGames = failed
	if total > 0 {
		pct := (synced + failed) * 100 / total
		if pct > 100 {
			pct = 100
		}
		job.Progress = pct
	}
}

// GetJob returns a copy of a job, or nil when unknown.
func (m *Manager) GetJob(jobID string) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil
	}
	cp := *job
	return &cp
}

// UserJobs lists a user's jobs, newest first.
func (m *Manager) UserJobs(userID int64, limit int) []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Job
	for _, job := range m.jobs {
		if job.UserID == userID {
			cp := *job
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// CancelJob asks a running job to stop. The job flips to cancelled when
// its work observes the context. Returns false for unknown or
// non-running jobs.
func (m *Manager) CancelJob(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || job.Status != StatusRunning {
		return false
	}
	cancel, ok := m.cancels[jobID]
	if !ok {
		return false
	}
	cancel()
	log.Printf("[Jobs] Cancel requested for job %s", jobID)
	return true
}

// evictLocked drops the oldest terminal jobs once the cap is exceeded.
// Pending and running jobs are never evicted. Caller holds the mutex.
func (m *Manager) evictLocked() {
	if len(m.jobs) <= m.maxJobs {
		return
	}

	byAge := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		byAge = append(byAge, job)
	}
	sort.Slice(byAge, func(i, j int) bool {
		return byAge[i].CreatedAt.Before(byAge[j].CreatedAt)
	})

	target := len(m.jobs) - m.maxJobs/2
	removed := 0
	for _, job := range byAge {
		if removed >= target {
			break
		}
		if job.terminal() {
			delete(m.jobs, job.ID)
			removed++
		}
	}
	if removed > 0 {
		log.Printf("[Jobs] Evicted %d finished jobs", removed)
	}
}
