package downloader

import (
	"context"
	"fmt"
	"sync"

	"xmediagrab/pkg/logger"
)

// Job is one URL to fetch, numbered by discovery order starting at 1
type Job struct {
	Index int
	URL   string
}

// ProcessFunc handles a single job
type ProcessFunc func(ctx context.Context, job Job) FileResult

// WorkerPool manages concurrent download workers
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan FileResult
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	process     ProcessFunc
	logger      logger.Logger
}

// NewWorkerPool creates a pool whose workers stop when ctx is done
func NewWorkerPool(ctx context.Context, numWorkers int, process ProcessFunc, log logger.Logger) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan FileResult, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		process:     process,
		logger:      log,
	}
}

// Start launches all workers
func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the queue, waits for the workers and closes Results.
// Call it once after the last Submit.
func (wp *WorkerPool) Stop() {
	// Close job queue to signal no more jobs will be added
	close(wp.jobQueue)

	// Wait for all workers to finish processing remaining jobs
	wp.wg.Wait()

	// Close result queue
	close(wp.resultQueue)

	// Cancel context
	wp.cancel()

	wp.logger.Debug("Worker pool stopped")
}

// Submit adds a job to the queue
func (wp *WorkerPool) Submit(job Job) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down: %w", wp.ctx.Err())
	}
}

// Results returns the channel of finished jobs. It must be drained.
func (wp *WorkerPool) Results() <-chan FileResult {
	return wp.resultQueue
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		// Check if context is cancelled
		select {
		case <-wp.ctx.Done():
			wp.logger.DebugWithFields("Worker stopping, context cancelled", map[string]interface{}{
				"worker_id": id,
			})
			return
		default:
		}

		// Process the job
		result := wp.process(wp.ctx, job)

		// results are always delivered so the caller can account for them
		wp.resultQueue <- result
	}
}

// GetQueueSize returns the current number of jobs in the queue
func (wp *WorkerPool) GetQueueSize() int {
	return len(wp.jobQueue)
}
