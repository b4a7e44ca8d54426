package downloader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"mediakeeper/pkg/logger"
	"mediakeeper/pkg/ratelimit"
)

// DownloadJob is one media item to acquire. Index is the item's position in
// listing order and is carried through to the result.
type DownloadJob struct {
	Index    int
	URL      string
	Filename string
}

// DownloadResult is the outcome of one job. Skipped means the file was
// already present and nothing was fetched.
type DownloadResult struct {
	Job      DownloadJob
	Added    bool
	Skipped  bool
	Path     string
	Error    error
	Duration time.Duration
	Size     int
}

// MediaFetcher downloads a binary asset
type MediaFetcher interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// MediaStorage is the dedup-aware destination of downloaded files
type MediaStorage interface {
	Exists(filename string) bool
	Save(r io.Reader, filename string) (string, error)
}

// WorkerPool manages concurrent download workers
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan DownloadJob
	resultQueue chan DownloadResult
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	client      MediaFetcher
	storage     MediaStorage
	rateLimiter ratelimit.Limiter
	logger      logger.Logger

	// OnResult, when set, is called from the worker for every finished job
	OnResult func(DownloadResult)
}

// NewWorkerPool creates a new download worker pool bound to ctx
func NewWorkerPool(
	ctx context.Context,
	numWorkers int,
	client MediaFetcher,
	storage MediaStorage,
	rateLimiter ratelimit.Limiter,
	log logger.Logger,
) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan DownloadJob, numWorkers*2),
		resultQueue: make(chan DownloadResult, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		client:      client,
		storage:     storage,
		rateLimiter: rateLimiter,
		logger:      log,
	}
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the job queue, waits for in-flight jobs and closes Results
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()
}

// Submit adds a new download job to the queue
func (wp *WorkerPool) Submit(job DownloadJob) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down: %w", wp.ctx.Err())
	}
}

// Results returns the result channel for consuming download results
func (wp *WorkerPool) Results() <-chan DownloadResult {
	return wp.resultQueue
}

// Run submits jobs, waits for all of them and returns the results indexed
// like jobs, independent of completion order.
func (wp *WorkerPool) Run(jobs []DownloadJob) []DownloadResult {
	wp.Start()

	go func() {
		defer wp.Stop()
		for _, job := range jobs {
			if err := wp.Submit(job); err != nil {
				return
			}
		}
	}()

	position := make(map[int]int, len(jobs))
	for i, job := range jobs {
		position[job.Index] = i
	}

	results := make([]DownloadResult, len(jobs))
	seen := make([]bool, len(jobs))
	for res := range wp.Results() {
		if i, ok := position[res.Job.Index]; ok {
			results[i] = res
			seen[i] = true
		}
	}

	for i := range jobs {
		if !seen[i] {
			results[i] = DownloadResult{Job: jobs[i], Error: fmt.Errorf("download not attempted: %w", context.Canceled)}
		}
	}
	return results
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		if wp.ctx.Err() != nil {
			return
		}

		result := wp.processJob(job, id)
		if wp.OnResult != nil {
			wp.OnResult(result)
		}

		select {
		case wp.resultQueue <- result:
		case <-wp.ctx.Done():
			return
		}
	}
}

func (wp *WorkerPool) processJob(job DownloadJob, workerID int) DownloadResult {
	start := time.Now()
	result := DownloadResult{Job: job}

	if wp.storage.Exists(job.Filename) {
		result.Skipped = true
		result.Duration = time.Since(start)
		return result
	}

	if wp.rateLimiter != nil {
		if err := wp.rateLimiter.Wait(wp.ctx); err != nil {
			result.Error = err
			result.Duration = time.Since(start)
			return result
		}
	}

	data, err := wp.client.Download(wp.ctx, job.URL)
	if err != nil {
		result.Error = fmt.Errorf("download failed: %w", err)
		result.Duration = time.Since(start)
		wp.logger.WarnWithFields("Worker failed to download media", map[string]interface{}{
			"worker_id": workerID,
			"filename":  job.Filename,
			"url":       job.URL,
			"error":     err.Error(),
		})
		return result
	}
	result.Size = len(data)

	path, err := wp.storage.Save(bytes.NewReader(data), job.Filename)
	if err != nil {
		result.Error = fmt.Errorf("save failed: %w", err)
		result.Duration = time.Since(start)
		wp.logger.ErrorWithFields("Worker failed to save media", map[string]interface{}{
			"worker_id": workerID,
			"filename":  job.Filename,
			"error":     err.Error(),
			"size":      result.Size,
		})
		return result
	}

	result.Added = true
	result.Path = path
	result.Duration = time.Since(start)

	wp.logger.DebugWithFields("Worker completed job", map[string]interface{}{
		"worker_id": workerID,
		"filename":  job.Filename,
		"size":      result.Size,
		"duration":  result.Duration,
	})
	return result
}

// GetQueueSize returns the current number of jobs in the queue
func (wp *WorkerPool) GetQueueSize() int {
	return len(wp.jobQueue)
}
