package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"artifactpush/internal/metrics"

	"go.uber.org/zap"
)

// TaskExecutor runs one task to its terminal outcome
type TaskExecutor interface {
	Attempt(ctx context.Context, task UploadTask) UploadResult
}

// Tracker receives per-task progress events; it must be safe for concurrent use
type Tracker interface {
	MarkActive(key string)
	MarkInactive(key string)
	RecordCompletion(success bool, bytes int64, retries int)
}

// Pool runs upload tasks on a fixed number of workers
type Pool struct {
	size     int
	executor TaskExecutor
	tracker  Tracker
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewPool creates a new worker pool
func NewPool(
	size int,
	executor TaskExecutor,
	tracker Tracker,
	metricsCollector *metrics.Collector,
	logger *zap.Logger,
) *Pool {
	return &Pool{
		size:     max(size, 1),
		executor: executor,
		tracker:  tracker,
		metrics:  metricsCollector,
		logger:   logger,
	}
}

// Run processes every task exactly once and returns results in task order.
// Cancellation is checked each time a worker claims a task; tasks claimed
// after ctx is done are settled as failed without being attempted.
func (p *Pool) Run(ctx context.Context, tasks []UploadTask) []UploadResult {
	results := make([]UploadResult, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	var cursor atomic.Int64
	var wg sync.WaitGroup

	workers := min(p.size, len(tasks))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go p.worker(ctx, i, tasks, results, &cursor, &wg)
	}

	wg.Wait()
	return results
}

func (p *Pool) worker(
	ctx context.Context,
	id int,
	tasks []UploadTask,
	results []UploadResult,
	cursor *atomic.Int64,
	wg *sync.WaitGroup,
) {
	defer wg.Done()

	logger := p.logger.With(zap.Int("worker_id", id))
	logger.Debug("Worker started")

	for {
		idx := int(cursor.Add(1) - 1)
		if idx >= len(tasks) {
			logger.Debug("Worker finished - no more tasks")
			return
		}

		task := tasks[idx]
		if err := ctx.Err(); err != nil {
			results[idx] = p.cancelled(task, err)
			continue
		}

		results[idx] = p.process(ctx, task)
	}
}

func (p *Pool) process(ctx context.Context, task UploadTask) UploadResult {
	p.tracker.MarkActive(task.RemoteKey)
	p.metrics.IncInflight()

	// Claimed tasks run to their terminal outcome; cancellation only stops new claims.
	result := p.executor.Attempt(context.WithoutCancel(ctx), task)

	p.metrics.DecInflight()
	p.metrics.ObserveUpload(result.Success, result.Size, result.Retries(), result.Duration)

	var bytes int64
	if result.Success {
		bytes = result.Size
	}
	p.tracker.RecordCompletion(result.Success, bytes, result.Retries())
	p.tracker.MarkInactive(task.RemoteKey)

	return result
}

func (p *Pool) cancelled(task UploadTask, err error) UploadResult {
	p.metrics.ObserveUpload(false, 0, 0, 0)
	p.tracker.RecordCompletion(false, 0, 0)

	return UploadResult{
		LocalPath: task.LocalPath,
		RemoteKey: task.RemoteKey,
		Size:      task.Size,
		Err:       &TransferError{Key: task.RemoteKey, Fatal: true, Err: errors.Join(ErrCancelled, err)},
	}
}
