package farez

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for the Batch runner.
const (
	// Metrics.
	BatchJobsTotal     = metricz.Key("batch.jobs.total")
	BatchPassedTotal   = metricz.Key("batch.passed.total")
	BatchErroredTotal  = metricz.Key("batch.errored.total")
	BatchWorkersMax    = metricz.Key("batch.workers.max")
	BatchWorkersActive = metricz.Key("batch.workers.active")
	BatchQueueWaitMs   = metricz.Key("batch.queue.wait.ms")
	BatchDurationMs    = metricz.Key("batch.duration.ms")

	// Spans.
	BatchRunSpan = tracez.Key("batch.run")
	BatchJobSpan = tracez.Key("batch.job")

	// Tags.
	BatchTagJobCount    = tracez.Tag("batch.job_count")
	BatchTagWorkerCount = tracez.Tag("batch.worker_count")
	BatchTagJob         = tracez.Tag("batch.job")
	BatchTagPassed      = tracez.Tag("batch.passed")
	BatchTagError       = tracez.Tag("batch.error")

	// Hook event keys.
	BatchEventJobComplete = hookz.Key("batch.job_complete")
	BatchEventAllComplete = hookz.Key("batch.all_complete")
)

// Job is one independent unit of validation, typically a whole booking
// flow for one test case. Run returns every report it produced.
type Job struct {
	Name Name
	Run  func(ctx context.Context) ([]*Report, error)
}

// JobResult is the outcome of one Job.
type JobResult struct {
	Name     Name
	Reports  []*Report
	Err      error
	Duration time.Duration
}

// Passed reports whether the job ran without host error and every report
// passed.
func (r JobResult) Passed() bool {
	if r.Err != nil {
		return false
	}
	for _, report := range r.Reports {
		if !report.Passed() {
			return false
		}
	}
	return true
}

// BatchEvent is emitted when a job finishes and when the whole batch is
// done.
type BatchEvent struct {
	Timestamp  time.Time
	Result     *JobResult
	TotalJobs  int
	PassedJobs int
	Duration   time.Duration
}

// Batch runs independent jobs with at most a fixed number in flight. Each
// job gets its own goroutine once a worker slot is free; results come back
// in job order. Jobs share nothing through the Batch, so anything they
// share (an Engine, a SnapshotStore) must be safe for concurrent use.
//
//nolint:govet // fieldalignment: readability over packing
type Batch struct {
	sem     chan struct{}
	clock   clockz.Clock
	metrics *metricz.Registry
	tracer  *tracez.Tracer
	hooks   *hookz.Hooks[BatchEvent]
	workers int
	mu      sync.RWMutex
}

// NewBatch creates a Batch with the given worker count. Counts below one
// are raised to one.
func NewBatch(workers int) *Batch {
	if workers <= 0 {
		workers = 1
	}
	metrics := metricz.New()
	metrics.Counter(BatchJobsTotal)
	metrics.Counter(BatchPassedTotal)
	metrics.Counter(BatchErroredTotal)
	metrics.Gauge(BatchWorkersMax).Set(float64(workers))
	metrics.Gauge(BatchWorkersActive)
	metrics.Gauge(BatchQueueWaitMs)
	metrics.Gauge(BatchDurationMs)

	return &Batch{
		sem:     make(chan struct{}, workers),
		clock:   clockz.RealClock,
		metrics: metrics,
		tracer:  tracez.New(),
		hooks:   hookz.New[BatchEvent](),
		workers: workers,
	}
}

// WithClock sets a custom clock for testing.
func (b *Batch) WithClock(clock clockz.Clock) *Batch {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clock = clock
	return b
}

// Workers returns the worker count.
func (b *Batch) Workers() int {
	return b.workers
}

// Run executes every job and waits for all of them. A job still waiting
// for a slot when ctx is done is not started; its result carries the
// context error.
func (b *Batch) Run(ctx context.Context, jobs ...Job) []JobResult {
	b.mu.RLock()
	clock := b.clock
	b.mu.RUnlock()

	start := clock.Now()
	ctx, span := b.tracer.StartSpan(ctx, BatchRunSpan)
	span.SetTag(BatchTagJobCount, fmt.Sprintf("%d", len(jobs)))
	span.SetTag(BatchTagWorkerCount, fmt.Sprintf("%d", b.workers))
	defer span.Finish()

	results := make([]JobResult, len(jobs))
	var active int64
	var activeMu sync.Mutex
	var wg sync.WaitGroup

	for i, job := range jobs {
		b.metrics.Counter(BatchJobsTotal).Inc()
		queued := clock.Now()
		select {
		case b.sem <- struct{}{}:
		case <-ctx.Done():
			results[i] = JobResult{Name: job.Name, Err: ctx.Err()}
			b.metrics.Counter(BatchErroredTotal).Inc()
			continue
		}
		b.metrics.Gauge(BatchQueueWaitMs).Set(float64(clock.Since(queued).Milliseconds()))

		activeMu.Lock()
		active++
		b.metrics.Gauge(BatchWorkersActive).Set(float64(active))
		activeMu.Unlock()

		wg.Add(1)
		go func(i int, job Job) {
			defer wg.Done()
			defer func() {
				<-b.sem
				activeMu.Lock()
				active--
				b.metrics.Gauge(BatchWorkersActive).Set(float64(active))
				activeMu.Unlock()
			}()
			results[i] = b.runJob(ctx, clock, job)
		}(i, job)
	}
	wg.Wait()

	passed := 0
	for i := range results {
		if results[i].Passed() {
			passed++
		}
	}
	elapsed := clock.Since(start)
	b.metrics.Gauge(BatchDurationMs).Set(float64(elapsed.Milliseconds()))
	span.SetTag(BatchTagPassed, fmt.Sprintf("%d", passed))

	_ = b.hooks.Emit(ctx, BatchEventAllComplete, BatchEvent{ //nolint:errcheck
		Timestamp:  clock.Now(),
		TotalJobs:  len(jobs),
		PassedJobs: passed,
		Duration:   elapsed,
	})
	return results
}

func (b *Batch) runJob(ctx context.Context, clock clockz.Clock, job Job) (result JobResult) {
	start := clock.Now()
	ctx, span := b.tracer.StartSpan(ctx, BatchJobSpan)
	span.SetTag(BatchTagJob, job.Name)
	defer span.Finish()

	var reports []*Report
	var err error
	func() {
		defer recoverFromPanic(&reports, &err, job.Name, reports)
		reports, err = job.Run(ctx)
	}()

	result = JobResult{Name: job.Name, Reports: reports, Err: err, Duration: clock.Since(start)}
	if err != nil {
		b.metrics.Counter(BatchErroredTotal).Inc()
		span.SetTag(BatchTagError, err.Error())
	}
	if result.Passed() {
		b.metrics.Counter(BatchPassedTotal).Inc()
	}
	span.SetTag(BatchTagPassed, fmt.Sprintf("%t", result.Passed()))

	_ = b.hooks.Emit(ctx, BatchEventJobComplete, BatchEvent{ //nolint:errcheck
		Timestamp: clock.Now(),
		Result:    &result,
		TotalJobs: 1,
		Duration:  result.Duration,
	})
	return result
}

// Metrics returns the metrics registry.
func (b *Batch) Metrics() *metricz.Registry {
	return b.metrics
}

// Tracer returns the tracer.
func (b *Batch) Tracer() *tracez.Tracer {
	return b.tracer
}

// OnJobComplete registers a handler called after each job.
func (b *Batch) OnJobComplete(handler func(context.Context, BatchEvent) error) error {
	_, err := b.hooks.Hook(BatchEventJobComplete, handler)
	return err
}

// OnAllComplete registers a handler called once every job has finished.
func (b *Batch) OnAllComplete(handler func(context.Context, BatchEvent) error) error {
	_, err := b.hooks.Hook(BatchEventAllComplete, handler)
	return err
}

// Close releases the tracer and hook resources.
func (b *Batch) Close() error {
	b.tracer.Close()
	b.hooks.Close()
	return nil
}
