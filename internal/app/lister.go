package app

import (
	"fmt"

	"artifactpush/internal/localfs"

	"go.uber.org/zap"
)

// FileLister enumerates candidate files under the output root
type FileLister struct {
	fs     *localfs.FS
	logger *zap.Logger
}

// NewFileLister creates a lister over fs
func NewFileLister(fs *localfs.FS, logger *zap.Logger) *FileLister {
	return &FileLister{fs: fs, logger: logger}
}

// List returns files matching any pattern, or every file when patterns is empty.
// Files matched by several patterns are listed once, at their first match.
func (l *FileLister) List(patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		files, err := l.fs.Files()
		if err != nil {
			return nil, err
		}
		l.logger.Info("Finished listing files", zap.Int("total_files", len(files)))
		return files, nil
	}

	seen := make(map[string]struct{})
	var files []string

	for _, pattern := range patterns {
		matches, err := l.fs.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to list %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			l.logger.Warn("Pattern matched no files", zap.String("pattern", pattern))
		}

		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}

	l.logger.Info("Finished listing files",
		zap.Strings("patterns", patterns),
		zap.Int("total_files", len(files)),
	)
	return files, nil
}
