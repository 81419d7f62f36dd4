package batch

import (
	"path/filepath"
	"strings"

	"artifactpush/internal/worker"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Stater reports the size of a local file
type Stater interface {
	Stat(path string) (int64, error)
}

// Indexed pairs a result with the position of its candidate
type Indexed struct {
	Index  int
	Result worker.UploadResult
}

// Built is the outcome of turning candidates into tasks.
// Every candidate appears exactly once, either as a task or as a stat failure.
type Built struct {
	Tasks        []worker.UploadTask
	TaskIndex    []int
	StatFailures []Indexed
	TotalBytes   int64
}

// NormalizeKey joins prefix and candidate into a remote key without
// leading, trailing or repeated separators
func NormalizeKey(prefix, candidate string) string {
	joined := strings.ReplaceAll(prefix+"/"+candidate, `\`, "/")

	segments := strings.Split(joined, "/")
	kept := segments[:0]
	for _, s := range segments {
		if s == "" || s == "." {
			continue
		}
		kept = append(kept, s)
	}

	return strings.Join(kept, "/")
}

// TaskBuilder resolves remote keys and sizes for candidate paths
type TaskBuilder struct {
	fs          Stater
	prefix      string
	concurrency int
	logger      *zap.Logger
}

// NewTaskBuilder creates a builder that stats at most concurrency files at once
func NewTaskBuilder(fs Stater, prefix string, concurrency int, logger *zap.Logger) *TaskBuilder {
	return &TaskBuilder{
		fs:          fs,
		prefix:      prefix,
		concurrency: max(concurrency, 1),
		logger:      logger,
	}
}

type built struct {
	task    worker.UploadTask
	failure *worker.UploadResult
}

// Build stats every candidate concurrently and splits them into tasks and stat failures
func (b *TaskBuilder) Build(candidates []string) Built {
	entries := make([]built, len(candidates))

	var g errgroup.Group
	g.SetLimit(b.concurrency)

	for i, candidate := range candidates {
		i, candidate := i, candidate
		g.Go(func() error {
			entries[i] = b.build(candidate)
			return nil
		})
	}
	_ = g.Wait()

	var out Built
	for i, e := range entries {
		if e.failure != nil {
			out.StatFailures = append(out.StatFailures, Indexed{Index: i, Result: *e.failure})
			continue
		}
		out.Tasks = append(out.Tasks, e.task)
		out.TaskIndex = append(out.TaskIndex, i)
		out.TotalBytes += e.task.Size
	}

	return out
}

func (b *TaskBuilder) build(candidate string) built {
	localPath := filepath.ToSlash(candidate)
	key := NormalizeKey(b.prefix, candidate)

	size, err := b.fs.Stat(localPath)
	if err != nil {
		b.logger.Warn("Failed to stat file, skipping upload",
			zap.String("path", localPath),
			zap.Error(err),
		)
		return built{failure: &worker.UploadResult{
			LocalPath: localPath,
			RemoteKey: key,
			Err:       &worker.StatError{Path: localPath, Err: err},
		}}
	}

	return built{task: worker.UploadTask{
		LocalPath: localPath,
		RemoteKey: key,
		Size:      size,
	}}
}
