package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-indexer/internal/aggregate"
	"github.com/kozaktomas/face-indexer/internal/constants"
	"github.com/kozaktomas/face-indexer/internal/pipeline"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IndexJob is one full indexing run started through the API.
type IndexJob struct {
	mu        sync.RWMutex
	cancel    context.CancelFunc
	listeners []chan JobEvent

	ID          string             `json:"id"`
	Bucket      string             `json:"bucket"`
	Prefix      string             `json:"prefix"`
	Status      JobStatus          `json:"status"`
	Progress    map[int]int        `json:"progress"` // partition -> percent
	Error       string             `json:"error,omitempty"`
	StartedAt   time.Time          `json:"startedAt"`
	CompletedAt *time.Time         `json:"completedAt,omitempty"`
	Summary     *aggregate.Summary `json:"summary,omitempty"`
}

// snapshot returns a copy safe to encode while the job runs.
func (j *IndexJob) snapshot() *IndexJob {
	j.mu.RLock()
	defer j.mu.RUnlock()
	progress := make(map[int]int, len(j.Progress))
	for k, v := range j.Progress {
		progress[k] = v
	}
	return &IndexJob{
		ID:          j.ID,
		Bucket:      j.Bucket,
		Prefix:      j.Prefix,
		Status:      j.Status,
		Progress:    progress,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Summary:     j.Summary,
	}
}

func (j *IndexJob) report(p pipeline.Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress[p.Partition] = p.Progress
	j.broadcast(JobEvent{Type: "progress", Partition: p.Partition, Progress: p.Progress, Status: j.Status})
}

// broadcast sends to every listener without blocking. Callers hold j.mu.
func (j *IndexJob) broadcast(event JobEvent) {
	for _, ch := range j.listeners {
		select {
		case ch <- event:
		default:
		}
	}
}

// addListener subscribes to job events. It returns nil once the job has finished.
func (j *IndexJob) addListener() chan JobEvent {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.CompletedAt != nil {
		return nil
	}
	ch := make(chan JobEvent, constants.JobEventBuffer)
	j.listeners = append(j.listeners, ch)
	return ch
}

func (j *IndexJob) removeListener(ch chan JobEvent) {
	if ch == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	for i, l := range j.listeners {
		if l == ch {
			j.listeners = append(j.listeners[:i], j.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

func (j *IndexJob) finish(summary *aggregate.Summary, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	j.CompletedAt = &now
	switch {
	case j.Status == JobStatusCancelled:
	case err != nil:
		j.Status = JobStatusFailed
		j.Error = err.Error()
	default:
		j.Status = JobStatusCompleted
		j.Summary = summary
	}
	j.broadcast(JobEvent{Type: string(j.Status), Status: j.Status, Error: j.Error})
	for _, ch := range j.listeners {
		close(ch)
	}
	j.listeners = nil
}

// Cancel stops a running job.
func (j *IndexJob) Cancel() {
	j.mu.Lock()
	if j.Status == JobStatusRunning {
		j.Status = JobStatusCancelled
	}
	j.mu.Unlock()
	if j.cancel != nil {
		j.cancel()
	}
}

// JobManager tracks async indexing jobs. The oldest finished jobs are
// forgotten once more than constants.MaxTrackedJobs are known.
type JobManager struct {
	jobs map[string]*IndexJob
	mu   sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{jobs: make(map[string]*IndexJob)}
}

func (m *JobManager) add(job *IndexJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	if len(m.jobs) <= constants.MaxTrackedJobs {
		return
	}
	finished := make([]*IndexJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		if s := j.snapshot(); s.CompletedAt != nil {
			finished = append(finished, s)
		}
	}
	sort.Slice(finished, func(a, b int) bool { return finished[a].StartedAt.Before(finished[b].StartedAt) })
	for _, j := range finished[:max(0, len(m.jobs)-constants.MaxTrackedJobs)] {
		delete(m.jobs, j.ID)
	}
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *IndexJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// ListJobs returns all jobs, newest first.
func (m *JobManager) ListJobs() []*IndexJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]*IndexJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job.snapshot())
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].StartedAt.After(jobs[b].StartedAt) })
	return jobs
}

// PipelineRunner runs a complete indexing job.
type PipelineRunner interface {
	RunWithProgress(ctx context.Context, req pipeline.Request, onProgress func(pipeline.Progress)) (*aggregate.Summary, error)
}

// JobsHandler starts and tracks full indexing runs.
type JobsHandler struct {
	manager *JobManager
	runner  PipelineRunner
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewJobsHandler(manager *JobManager, runner PipelineRunner, logger *zap.Logger) *JobsHandler {
	return &JobsHandler{manager: manager, runner: runner, logger: logger}
}

// Start handles POST /api/v1/jobs.
func (h *JobsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Bucket == "" {
		respondError(w, http.StatusBadRequest, "bucket is required")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &IndexJob{
		cancel:    cancel,
		ID:        uuid.NewString(),
		Bucket:    req.Bucket,
		Prefix:    req.Prefix,
		Status:    JobStatusRunning,
		Progress:  make(map[int]int),
		StartedAt: time.Now(),
	}
	h.manager.add(job)
	accepted := job.snapshot()

	h.wg.Go(func() {
		defer cancel()
		summary, err := h.runner.RunWithProgress(ctx, req, job.report)
		if err != nil {
			h.logger.Error("indexing job failed", zap.String("job_id", job.ID), zap.Error(err))
		}
		job.finish(summary, err)
	})

	respondJSON(w, http.StatusAccepted, accepted)
}

// Status handles GET /api/v1/jobs/{jobId}.
func (h *JobsHandler) Status(w http.ResponseWriter, r *http.Request) {
	job := h.manager.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job.snapshot())
}

// List handles GET /api/v1/jobs.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.manager.ListJobs())
}

// Cancel handles DELETE /api/v1/jobs/{jobId}.
func (h *JobsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job := h.manager.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	job.Cancel()
	respondJSON(w, http.StatusOK, job.snapshot())
}

// Events handles GET /api/v1/jobs/{jobId}/events as a server-sent event stream.
func (h *JobsHandler) Events(w http.ResponseWriter, r *http.Request) {
	job := h.manager.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	streamJobEvents(w, r, job)
}

// Wait blocks until every started job has finished.
func (h *JobsHandler) Wait() {
	h.wg.Wait()
}
