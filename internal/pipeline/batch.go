package pipeline

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"facturas/internal/logger"
	"facturas/pkg/models"
)

// Job is one document queued for batch processing.
type Job struct {
	Path string
}

// JobResult pairs a processed document with its record and report. Err is
// set only for I/O failures before the pipeline ran; pipeline-level problems
// land in the report instead.
type JobResult struct {
	Path   string
	Record *models.InvoiceRecord
	Report *models.ValidationReport
	Err    error
}

// Queue runs pipeline jobs on a fixed worker pool. Results are delivered on
// the channel passed to Enqueue's companion Results method; callers drain it
// until Shutdown closes it.
type Queue struct {
	pipe    *Pipeline
	workers int
	timeout time.Duration

	jobs    chan Job
	results chan JobResult
	wg      sync.WaitGroup
	once    sync.Once

	mu     sync.Mutex
	closed bool

	log zerolog.Logger
}

// QueueOption tunes a Queue.
type QueueOption func(*Queue)

// WithWorkers sets the worker count.
func WithWorkers(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithJobTimeout bounds each document's processing time.
func WithJobTimeout(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// NewQueue creates the pool and starts its workers.
func NewQueue(pipe *Pipeline, opts ...QueueOption) *Queue {
	q := &Queue{
		pipe:    pipe,
		workers: 4,
		timeout: 3 * time.Minute,
		jobs:    make(chan Job, 256),
		results: make(chan JobResult, 256),
		log:     logger.WithComponent("batch-queue"),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.log.Debug().Int("worker_id", workerID).Msg("Worker started")

				for job := range q.jobs {
					q.results <- q.runJob(workerID, job)
				}

				q.log.Debug().Int("worker_id", workerID).Msg("Worker stopped")
			}(i + 1)
		}
	})
}

func (q *Queue) runJob(workerID int, job Job) JobResult {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	file, err := os.Open(job.Path)
	if err != nil {
		q.log.Error().
			Err(err).
			Int("worker_id", workerID).
			Str("path", job.Path).
			Msg("Cannot open document")
		return JobResult{Path: job.Path, Err: err}
	}
	defer file.Close()

	record, report := q.pipe.Process(ctx, job.Path, file)

	q.log.Info().
		Int("worker_id", workerID).
		Str("path", job.Path).
		Bool("passed", report.Passed).
		Msg("Batch document processed")

	return JobResult{Path: job.Path, Record: record, Report: report}
}

// Enqueue queues one document. Enqueueing after Shutdown is a no-op. A full
// queue blocks, applying backpressure to the producer.
func (q *Queue) Enqueue(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.log.Warn().Str("path", job.Path).Msg("Cannot enqueue: queue is shutting down")
		return
	}
	q.jobs <- job
}

// Results returns the delivery channel. It is closed after Shutdown drains
// the workers.
func (q *Queue) Results() <-chan JobResult {
	return q.results
}

// Shutdown stops intake, waits for in-flight jobs, then closes the results
// channel. The context bounds the wait.
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(q.results)
		close(done)
	}()

	select {
	case <-ctx.Done():
		q.log.Warn().Msg("Shutdown interrupted by context")
	case <-done:
		q.log.Info().Msg("Queue drained, shutdown complete")
	}
}
