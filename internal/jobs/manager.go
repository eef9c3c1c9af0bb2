package jobs

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/pagemend/pagemend/internal/config"
	"github.com/pagemend/pagemend/internal/observability"
	"github.com/pagemend/pagemend/internal/pipeline"
	"github.com/pagemend/pagemend/internal/pubsub"
)

// Runner executes a repair run. *pipeline.Pipeline satisfies this.
type Runner interface {
	Run(ctx context.Context, pdfData []byte, reporter pipeline.Reporter) (*pipeline.Result, error)
}

// RunnerFactory builds a runner for one job's options. Uploads may
// override batch size, concurrency, or language per job.
type RunnerFactory func(opts pipeline.Options) Runner

// Manager tracks repair jobs in memory, runs them asynchronously, and
// publishes their progress on the pub/sub bus. Finished jobs stay
// queryable until the retention sweeper removes them.
type Manager struct {
	newRunner      RunnerFactory
	bus            pubsub.PubSub
	metrics        *observability.Metrics
	retention      time.Duration
	progressBuffer int

	mu   sync.RWMutex
	jobs map[uuid.UUID]*Job

	cron *cron.Cron
	wg   sync.WaitGroup
}

// defaultProgressBuffer bounds a job's progress queue when no size is
// configured.
const defaultProgressBuffer = 100

// NewManager creates a job manager. metrics may be nil. progressBuffer
// bounds each job's progress event queue; values below 1 fall back to
// the default.
func NewManager(newRunner RunnerFactory, bus pubsub.PubSub, metrics *observability.Metrics, cfg config.JobsConfig, progressBuffer int) *Manager {
	if progressBuffer < 1 {
		progressBuffer = defaultProgressBuffer
	}
	return &Manager{
		newRunner:      newRunner,
		bus:            bus,
		metrics:        metrics,
		retention:      cfg.Retention,
		progressBuffer: progressBuffer,
		jobs:           make(map[uuid.UUID]*Job),
		cron:           cron.New(),
	}
}

// Start launches the retention sweeper.
func (m *Manager) Start() error {
	_, err := m.cron.AddFunc("@every 1m", m.sweep)
	if err != nil {
		return err
	}
	m.cron.Start()
	log.Info().Dur("retention", m.retention).Msg("Job manager started")
	return nil
}

// Stop halts the sweeper and waits for running jobs to settle. Jobs are
// not cancelled; callers wanting a fast shutdown cancel them first.
func (m *Manager) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.wg.Wait()
	log.Info().Msg("Job manager stopped")
}

// Submit registers a new repair job and starts it asynchronously.
func (m *Manager) Submit(filename string, pdfData []byte, opts pipeline.Options) Snapshot {
	runCtx, cancel := context.WithCancel(context.Background())

	job := &Job{
		ID:        uuid.New(),
		Filename:  filename,
		Status:    StatusPending,
		CreatedAt: time.Now(),
		cancel:    cancel,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordUpload(int64(len(pdfData)))
	}

	m.wg.Add(1)
	go m.run(runCtx, job.ID, pdfData, opts)

	log.Info().
		Str("job_id", job.ID.String()).
		Str("filename", filename).
		Int("bytes", len(pdfData)).
		Msg("Repair job submitted")

	return m.snapshotOf(job.ID)
}

// Get returns the current view of a job.
func (m *Manager) Get(id uuid.UUID) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return job.snapshot(), nil
}

// Result returns the repair result of a completed or cancelled job.
func (m *Manager) Result(id uuid.UUID) (*pipeline.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !job.Status.terminal() {
		return nil, ErrNotFinished
	}
	return job.result, nil
}

// Cancel requests cooperative cancellation of a pending or running job.
// The job settles asynchronously with the completed prefix of its pages.
func (m *Manager) Cancel(id uuid.UUID) error {
	m.mu.RLock()
	job, ok := m.jobs[id]
	var cancel func()
	if ok && !job.Status.terminal() {
		cancel = job.cancel
	}
	m.mu.RUnlock()

	if !ok {
		return ErrNotFound
	}
	if cancel == nil {
		return ErrAlreadyFinished
	}

	cancel()
	log.Info().Str("job_id", id.String()).Msg("Repair job cancellation requested")
	return nil
}

// Delete removes a job record. Running jobs are cancelled first.
func (m *Manager) Delete(id uuid.UUID) error {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if ok {
		delete(m.jobs, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	if !job.Status.terminal() {
		job.cancel()
	}
	return nil
}

// List returns all jobs, newest first.
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Snapshot, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, job.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// run executes the pipeline for one job and settles its terminal status.
func (m *Manager) run(ctx context.Context, id uuid.UUID, pdfData []byte, opts pipeline.Options) {
	defer m.wg.Done()

	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	job.Status = StatusRunning
	job.StartedAt = time.Now()
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.JobStarted()
		defer m.metrics.JobDone()
	}
	m.publishStatus(id, StatusRunning)

	// Progress is folded and published off the pipeline's goroutines so a
	// slow pub/sub backend never stalls extraction or correction. The
	// reporter's bounded buffer drops the oldest event when full.
	reporter := pipeline.NewChannelReporter(m.progressBuffer)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for e := range reporter.Events() {
			m.onProgress(id, e)
		}
	}()

	res, err := m.newRunner(opts).Run(ctx, pdfData, reporter)

	reporter.Close()
	<-drained

	m.settle(id, res, err)
}

// onProgress folds a pipeline event into the job record and republishes
// it on the job's channel.
func (m *Manager) onProgress(id uuid.UUID, e pipeline.ProgressEvent) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	job.Stage = e.Stage
	job.TotalPages = e.TotalPages
	if e.Stage == pipeline.StageCorrecting {
		job.ProcessedPages++
	}
	event := Event{
		Type:           "progress",
		JobID:          id,
		Stage:          e.Stage,
		PageIndex:      e.PageIndex,
		TotalPages:     e.TotalPages,
		ProcessedPages: job.ProcessedPages,
	}
	m.mu.Unlock()

	m.publish(id, event)
}

// settle records the terminal status of a run and publishes it.
func (m *Manager) settle(id uuid.UUID, res *pipeline.Result, err error) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return
	}

	job.FinishedAt = time.Now()
	switch {
	case err != nil:
		job.Status = StatusFailed
		job.Error = err.Error()
	case res.Canceled:
		job.Status = StatusCancelled
		job.result = res
		job.Degraded = res.Degraded
	default:
		job.Status = StatusCompleted
		job.result = res
		job.Degraded = res.Degraded
	}

	status := job.Status
	duration := job.FinishedAt.Sub(job.StartedAt)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordJobFinished(string(status), duration)
		if res != nil {
			for _, page := range res.Pages {
				switch {
				case page.Failed:
					m.metrics.RecordPage("failed")
				case page.Degraded:
					m.metrics.RecordPage("degraded")
				case page.Done:
					m.metrics.RecordPage("corrected")
				}
			}
		}
	}

	logEvent := log.Info()
	if err != nil {
		logEvent = log.Error().Err(err)
	}
	logEvent.
		Str("job_id", id.String()).
		Str("status", string(status)).
		Dur("duration", duration).
		Msg("Repair job settled")

	m.publishStatus(id, status)
}

func (m *Manager) publishStatus(id uuid.UUID, status Status) {
	m.publish(id, Event{Type: "status", JobID: id, Status: status})
}

func (m *Manager) publish(id uuid.UUID, event Event) {
	if m.bus == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := m.bus.Publish(context.Background(), pubsub.JobChannel(id.String()), payload); err != nil {
		log.Warn().Err(err).Str("job_id", id.String()).Msg("Failed to publish job event")
	}
}

// sweep removes finished jobs past the retention window.
func (m *Manager) sweep() {
	if m.retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-m.retention)

	m.mu.Lock()
	removed := 0
	for id, job := range m.jobs {
		if job.Status.terminal() && job.FinishedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("Swept expired repair jobs")
	}
}

func (m *Manager) snapshotOf(id uuid.UUID) Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if job, ok := m.jobs[id]; ok {
		return job.snapshot()
	}
	return Snapshot{}
}
