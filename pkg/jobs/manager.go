package jobs

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"base-scraper/pkg/models"
)

// Scope identifies what a job scrapes: either a category/level listing or
// one ad-hoc detail URL.
type Scope struct {
	Category models.HallCategory `json:"category,omitempty"`
	Level    int                 `json:"level,omitempty"`
	AdHocURL string              `json:"adHocUrl,omitempty"`
}

// IsAdHoc reports whether the scope targets a single detail URL
func (s Scope) IsAdHoc() bool {
	return s.AdHocURL != ""
}

// Key returns the coalescing key: concurrent requests for the same scope
// attach to the in-flight job instead of spawning duplicate work
func (s Scope) Key() string {
	if s.IsAdHoc() {
		return "url:" + s.AdHocURL
	}
	return fmt.Sprintf("%s:%d", s.Category, s.Level)
}

// Job is one orchestration run. Jobs live in memory for the lifetime of
// the process; a restart loses all job history. This is a lightweight
// fire-and-forget mechanism, not durable job tracking.
type Job struct {
	ID               string                 `json:"id"`
	Scope            Scope                  `json:"scope"`
	State            models.JobState        `json:"state"`
	TotalTargets     int                    `json:"totalTargets"`
	ScrapedCount     int                    `json:"scrapedCount"`
	ProgressPercent  int                    `json:"progressPercent"`
	SkippedNoLink    int                    `json:"skippedNoLink"`
	CollectedRecords []models.ScrapedRecord `json:"collectedRecords"`
	PerURLErrors     []models.URLError      `json:"perUrlErrors"`
	StartedAt        time.Time              `json:"startedAt"`
	CompletedAt      time.Time              `json:"completedAt,omitempty"`
	FailureReason    string                 `json:"failureReason,omitempty"`
	PersistError     string                 `json:"persistError,omitempty"`
}

// Manager owns the in-memory job table. All mutation goes through Manager
// methods under its lock; readers get snapshot copies.
type Manager struct {
	jobs    map[string]*Job
	byScope map[string]string // scope key -> job ID for active jobs
	mu      sync.RWMutex
}

// NewManager creates a Manager
func NewManager() *Manager {
	return &Manager{
		jobs:    make(map[string]*Job),
		byScope: make(map[string]string),
	}
}

// Create registers a new job in state running, or returns the existing
// active job for the same scope (created=false).
func (m *Manager) Create(scope Scope) (job Job, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existingID, exists := m.byScope[scope.Key()]; exists {
		if existing := m.jobs[existingID]; existing != nil && existing.State.Active() {
			return snapshot(existing), false
		}
	}

	j := &Job{
		ID:               uuid.New().String(),
		Scope:            scope,
		State:            models.JobStateRunning,
		StartedAt:        time.Now(),
		CollectedRecords: []models.ScrapedRecord{},
		PerURLErrors:     []models.URLError{},
	}
	m.jobs[j.ID] = j
	m.byScope[scope.Key()] = j.ID
	return snapshot(j), true
}

// Get returns a snapshot of a job by ID
func (m *Manager) Get(jobID string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return snapshot(j), true
}

// List returns snapshots of all known jobs, newest first
func (m *Manager) List() []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, snapshot(j))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.After(out[k].StartedAt) })
	return out
}

// SetFetchingList moves a job into the discovery state
func (m *Manager) SetFetchingList(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[jobID]; ok && !j.State.Terminal() {
		j.State = models.JobStateFetchingList
	}
}

// BeginScraping records the discovered target count and moves the job into
// the scraping state
func (m *Manager) BeginScraping(jobID string, totalTargets int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[jobID]; ok && !j.State.Terminal() {
		j.State = models.JobStateScraping
		j.TotalTargets = totalTargets
	}
}

// RecordSuccess appends a collected record and advances progress
func (m *Manager) RecordSuccess(jobID string, rec models.ScrapedRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[jobID]; ok {
		j.CollectedRecords = append(j.CollectedRecords, rec)
		m.advance(j)
	}
}

// RecordSkip counts a target whose page had no deep link (not an error,
// never persisted) and advances progress
func (m *Manager) RecordSkip(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[jobID]; ok {
		j.SkippedNoLink++
		m.advance(j)
	}
}

// RecordError appends a per-target failure and advances progress. A single
// target's failure never aborts the job.
func (m *Manager) RecordError(jobID, targetURL, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[jobID]; ok {
		j.PerURLErrors = append(j.PerURLErrors, models.URLError{URL: targetURL, Message: message})
		m.advance(j)
	}
}

// advance increments the processed count and recomputes progress.
// Caller must hold m.mu.
func (m *Manager) advance(j *Job) {
	j.ScrapedCount++
	if j.TotalTargets > 0 {
		j.ProgressPercent = int(math.Round(float64(j.ScrapedCount) / float64(j.TotalTargets) * 100))
	}
}

// Complete moves a job to its terminal completed state. persistError is
// non-empty when the scrape itself succeeded but saving the results
// failed, so operators can tell data loss apart from a failed scrape.
func (m *Manager) Complete(jobID, persistError string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[jobID]; ok && !j.State.Terminal() {
		j.State = models.JobStateCompleted
		j.CompletedAt = time.Now()
		j.PersistError = persistError
		delete(m.byScope, j.Scope.Key())
	}
}

// Fail moves a job to its terminal failed state
func (m *Manager) Fail(jobID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[jobID]; ok && !j.State.Terminal() {
		j.State = models.JobStateFailed
		j.FailureReason = reason
		j.CompletedAt = time.Now()
		delete(m.byScope, j.Scope.Key())
	}
}

// CollectedRecords returns a copy of a job's accumulated records
func (m *Manager) CollectedRecords(jobID string) []models.ScrapedRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil
	}
	out := make([]models.ScrapedRecord, len(j.CollectedRecords))
	copy(out, j.CollectedRecords)
	return out
}

// snapshot copies a job, including its slices, so callers can read it
// without holding the manager lock
func snapshot(j *Job) Job {
	cp := *j
	cp.CollectedRecords = make([]models.ScrapedRecord, len(j.CollectedRecords))
	copy(cp.CollectedRecords, j.CollectedRecords)
	cp.PerURLErrors = make([]models.URLError, len(j.PerURLErrors))
	copy(cp.PerURLErrors, j.PerURLErrors)
	return cp
}
