package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"artifactpush/internal/config"
	"artifactpush/internal/metrics"
	"artifactpush/internal/progress"
	"artifactpush/internal/storage"
	"artifactpush/internal/worker"

	"go.uber.org/zap"
)

var (
	// ErrBuildFailed means the surrounding build failed and nothing was uploaded
	ErrBuildFailed = errors.New("build failed, skipping upload")

	// ErrBatchFailed means at least one file failed and fail-on-error is set
	ErrBatchFailed = errors.New("upload batch failed")
)

// LocalFS is the local filesystem the runner reads from
type LocalFS interface {
	Stat(path string) (int64, error)
	Remove(path string) error
}

// Options configures one batch run
type Options struct {
	Prefix      string
	OutputRoot  string
	Worker      worker.Config
	FailOnError bool
	BuildFailed bool
}

// Validate checks numeric bounds before anything starts
func (o Options) Validate() error {
	switch {
	case o.Worker.Concurrency < 1:
		return &config.ValidationError{Field: "concurrency", Reason: "must be at least 1"}
	case o.Worker.Retries < 1:
		return &config.ValidationError{Field: "retries", Reason: "must be at least 1"}
	case o.Worker.MultipartThreshold <= 0:
		return &config.ValidationError{Field: "multipart_threshold", Reason: "must be positive"}
	case o.Worker.PartSize <= 0:
		return &config.ValidationError{Field: "part_size", Reason: "must be positive"}
	}
	return nil
}

// Runner uploads one batch of candidate files
type Runner struct {
	opts         Options
	client       storage.Client
	local        LocalFS
	metrics      *metrics.Collector
	tracker      *progress.Aggregator
	executorOpts []worker.ExecutorOption
	logger       *zap.Logger
}

// RunnerOption customizes a Runner
type RunnerOption func(*Runner)

// WithTracker reports progress into an existing aggregator
func WithTracker(tracker *progress.Aggregator) RunnerOption {
	return func(r *Runner) {
		r.tracker = tracker
	}
}

// WithExecutorOptions forwards options to the retry executor
func WithExecutorOptions(opts ...worker.ExecutorOption) RunnerOption {
	return func(r *Runner) {
		r.executorOpts = append(r.executorOpts, opts...)
	}
}

// NewRunner creates a new batch runner
func NewRunner(
	opts Options,
	client storage.Client,
	local LocalFS,
	metricsCollector *metrics.Collector,
	logger *zap.Logger,
	runnerOpts ...RunnerOption,
) *Runner {
	r := &Runner{
		opts:    opts,
		client:  client,
		local:   local,
		metrics: metricsCollector,
		logger:  logger,
	}
	for _, opt := range runnerOpts {
		opt(r)
	}
	return r
}

// Run uploads every candidate and returns the summary and per-candidate results
// in candidate order. The whole batch is drained before pass/fail is decided.
func (r *Runner) Run(ctx context.Context, candidates []string) (*Summary, []worker.UploadResult, error) {
	if err := r.opts.Validate(); err != nil {
		return nil, nil, err
	}
	if r.opts.BuildFailed {
		return nil, nil, ErrBuildFailed
	}

	start := time.Now()
	tracker := r.tracker
	if tracker == nil {
		tracker = progress.NewAggregator()
	}

	builder := NewTaskBuilder(r.local, r.opts.Prefix, r.opts.Worker.Concurrency, r.logger)
	built := builder.Build(candidates)

	tracker.SetTotals(int64(len(candidates)), built.TotalBytes)
	for range built.StatFailures {
		r.metrics.IncStatFailed()
		tracker.RecordCompletion(false, 0, 0)
	}

	r.logger.Info("Starting upload",
		zap.String("output_root", r.opts.OutputRoot),
		zap.String("prefix", r.opts.Prefix),
		zap.Int("candidates", len(candidates)),
		zap.Int("tasks", len(built.Tasks)),
		zap.Int("stat_failures", len(built.StatFailures)),
		zap.String("total_size", progress.FormatBytes(built.TotalBytes)),
		zap.Int("concurrency", r.opts.Worker.Concurrency),
	)

	executor := worker.NewExecutor(r.opts.Worker, r.client, r.local, r.logger, r.executorOpts...)
	pool := worker.NewPool(r.opts.Worker.Concurrency, executor, tracker, r.metrics, r.logger)
	transfer := pool.Run(ctx, built.Tasks)

	results := Collect(len(candidates), built, transfer)
	summary := Summarize(results, time.Since(start))
	r.logSummary(summary)

	if summary.Failed(r.opts.FailOnError) {
		return &summary, results, fmt.Errorf("%w: %d of %d files failed", ErrBatchFailed, summary.FailedCount, len(results))
	}
	return &summary, results, nil
}

func (r *Runner) logSummary(s Summary) {
	for _, item := range s.FailedItems {
		r.logger.Error("File not uploaded",
			zap.String("path", item.LocalPath),
			zap.String("key", item.RemoteKey),
			zap.Int("attempts", item.Attempts),
			zap.String("error", item.Error),
		)
	}

	r.logger.Info("Upload completed",
		zap.Int("succeeded", s.SuccessCount),
		zap.Int("failed", s.FailedCount),
		zap.Int("retries", s.TotalRetries),
		zap.String("total_size", progress.FormatBytes(s.TotalBytes)),
		zap.Float64("elapsed_seconds", s.ElapsedSeconds),
	)
}
