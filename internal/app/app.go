package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"artifactpush/internal/batch"
	"artifactpush/internal/config"
	"artifactpush/internal/history"
	"artifactpush/internal/localfs"
	"artifactpush/internal/metrics"
	"artifactpush/internal/progress"
	"artifactpush/internal/storage"
	"artifactpush/internal/worker"

	"go.uber.org/zap"
)

// Uploader represents the main upload application
type Uploader struct {
	cfg     *config.Config
	logger  *zap.Logger
	local   *localfs.FS
	client  storage.Client
	history history.Store
	metrics *metrics.Collector
}

// New creates a new uploader instance
func New(cfg *config.Config, logger *zap.Logger) (*Uploader, error) {
	local := localfs.NewOS(cfg.Upload.OutputRoot)

	client, err := storage.NewMinIOClient(storage.Config{
		Endpoint:  cfg.Target.Endpoint,
		AccessKey: cfg.Target.AccessKey,
		SecretKey: cfg.Target.SecretKey,
		Secure:    cfg.Target.Secure,
		Region:    cfg.Target.Region,
		Bucket:    cfg.Target.Bucket,
	}, local.Billy())
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	var store history.Store
	if cfg.Upload.History != "" {
		store, err = history.NewSQLiteStore(cfg.Upload.History)
		if err != nil {
			return nil, fmt.Errorf("failed to create history store: %w", err)
		}
	}

	return NewWithClient(cfg, logger, local, client, store), nil
}

// NewWithClient assembles an uploader from existing collaborators
func NewWithClient(cfg *config.Config, logger *zap.Logger, local *localfs.FS, client storage.Client, store history.Store) *Uploader {
	return &Uploader{
		cfg:     cfg,
		logger:  logger,
		local:   local,
		client:  client,
		history: store,
		metrics: metrics.New(),
	}
}

// Options maps the configuration onto batch options
func Options(cfg *config.Config, buildFailed bool) batch.Options {
	u := cfg.Upload
	return batch.Options{
		Prefix:     u.Prefix,
		OutputRoot: u.OutputRoot,
		Worker: worker.Config{
			MultipartThreshold: u.MultipartThreshold,
			PartSize:           u.PartSize,
			Concurrency:        u.Concurrency,
			Retries:            u.Retries,
			RetryBackoff:       u.RetryBackoff(),
			Timeout:            u.Timeout,
			Overwrite:          u.Overwrite,
			NoCache:            u.NoCache,
			AutoDelete:         u.AutoDelete,
			StorageClass:       u.StorageClass,
			ACL:                u.ACL,
		},
		FailOnError: u.FailOnError,
		BuildFailed: buildFailed,
	}
}

// Run uploads the output root. buildFailed short-circuits before anything is listed.
func (u *Uploader) Run(ctx context.Context, buildFailed bool, runnerOpts ...batch.RunnerOption) (*batch.Summary, error) {
	if buildFailed {
		u.logger.Warn("Build failed, skipping upload")
		return nil, batch.ErrBuildFailed
	}

	u.logger.Info("Starting upload run",
		zap.String("bucket", u.cfg.Target.Bucket),
		zap.String("prefix", u.cfg.Upload.Prefix),
		zap.String("output_root", u.cfg.Upload.OutputRoot),
		zap.Int("concurrency", u.cfg.Upload.Concurrency),
	)

	if u.cfg.MetricsAddr != "" {
		go func() {
			if err := u.metrics.StartServer(ctx, u.cfg.MetricsAddr); err != nil {
				u.logger.Error("Failed to start metrics server", zap.Error(err))
			}
		}()
	}

	candidates, err := NewFileLister(u.local, u.logger).List(u.cfg.Upload.Include)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	tracker := progress.NewAggregator()
	var display *progress.Display
	if u.cfg.Upload.ShowProgress && len(candidates) > 0 && progress.IsTerminalSupported() {
		display = progress.NewDisplay(tracker, os.Stdout, 2*time.Second)
		display.Start()
	}

	runID := history.NewRunID()
	startedAt := time.Now()

	opts := append([]batch.RunnerOption{batch.WithTracker(tracker)}, runnerOpts...)
	runner := batch.NewRunner(Options(u.cfg, false), u.client, u.local, u.metrics, u.logger.With(zap.String("run_id", runID)), opts...)
	summary, results, runErr := runner.Run(ctx, candidates)

	if display != nil {
		display.Stop()
	}

	if summary != nil {
		u.saveHistory(runID, startedAt, summary, results)
	}

	if u.cfg.Upload.AutoDelete && u.cfg.Upload.PruneEmptyDirs {
		u.pruneEmptyDirs()
	}

	return summary, runErr
}

func (u *Uploader) saveHistory(runID string, startedAt time.Time, summary *batch.Summary, results []worker.UploadResult) {
	if u.history == nil {
		return
	}

	run := &history.Run{
		ID:           runID,
		Bucket:       u.cfg.Target.Bucket,
		Prefix:       u.cfg.Upload.Prefix,
		StartedAt:    startedAt,
		FinishedAt:   time.Now(),
		Succeeded:    summary.SuccessCount,
		Failed:       summary.FailedCount,
		TotalBytes:   summary.TotalBytes,
		TotalRetries: summary.TotalRetries,
	}

	records := make([]*history.Record, 0, len(results))
	for _, r := range results {
		status := history.StatusFailed
		if r.Success {
			status = history.StatusUploaded
		}
		records = append(records, &history.Record{
			LocalPath: r.LocalPath,
			RemoteKey: r.RemoteKey,
			Size:      r.Size,
			Status:    status,
			Attempts:  r.Attempts,
			LastError: r.Error(),
		})
	}

	if err := u.history.SaveRun(run, records); err != nil {
		u.logger.Error("Failed to save upload history", zap.String("run_id", runID), zap.Error(err))
	}
}

func (u *Uploader) pruneEmptyDirs() {
	removed, err := u.local.PruneEmptyDirs()
	if err != nil {
		u.logger.Warn("Failed to prune empty directories",
			zap.String("cleanup", "prune"),
			zap.Error(err),
		)
	}
	if len(removed) > 0 {
		u.logger.Info("Pruned empty directories", zap.Int("count", len(removed)))
	}
}

// Close cleans up resources
func (u *Uploader) Close() error {
	if u.history != nil {
		return u.history.Close()
	}
	return nil
}

// LastFailures returns the most recent run in the history file and its failed records
func LastFailures(path string) (*history.Run, []*history.Record, error) {
	if path == "" {
		return nil, nil, errors.New("history is disabled")
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("history file: %w", err)
	}

	store, err := history.NewSQLiteStore(path)
	if err != nil {
		return nil, nil, err
	}
	defer store.Close()

	run, err := store.LatestRun()
	if err != nil || run == nil {
		return nil, nil, err
	}

	records, err := store.ListFailed(run.ID)
	if err != nil {
		return nil, nil, err
	}
	return run, records, nil
}
