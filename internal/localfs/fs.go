// Package localfs exposes the local build output directory to the uploader.
package localfs

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// FS wraps a billy filesystem rooted at the build output directory.
// All paths are slash-separated and relative to that root.
type FS struct {
	fs billy.Filesystem
}

// New wraps an existing billy filesystem
func New(fs billy.Filesystem) *FS {
	return &FS{fs: fs}
}

// NewOS returns an FS rooted at dir on the host filesystem
func NewOS(dir string) *FS {
	return New(osfs.New(dir))
}

// Billy returns the underlying filesystem
func (f *FS) Billy() billy.Filesystem {
	return f.fs
}

// Stat returns the size of a regular file
func (f *FS) Stat(name string) (int64, error) {
	info, err := f.fs.Stat(name)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s: is a directory", name)
	}
	return info.Size(), nil
}

// Remove deletes a single file
func (f *FS) Remove(name string) error {
	return f.fs.Remove(name)
}

// Files lists every regular file under the root in lexical order
func (f *FS) Files() ([]string, error) {
	var files []string
	err := util.Walk(f.fs, "", func(name string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			files = append(files, filepath.ToSlash(name))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk output root: %w", err)
	}

	sort.Strings(files)
	return files, nil
}

// Glob returns regular files matching pattern in lexical order
func (f *FS) Glob(pattern string) ([]string, error) {
	matches, err := util.Glob(f.fs, pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := f.fs.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, filepath.ToSlash(m))
	}

	sort.Strings(files)
	return files, nil
}

// PruneEmptyDirs removes directories under the root that contain no files.
// The root itself is kept. Every directory that could not be removed is
// reported in the joined error; pruning continues past failures.
func (f *FS) PruneEmptyDirs() ([]string, error) {
	var removed []string
	var errs []error
	f.prune("", &removed, &errs)
	return removed, errors.Join(errs...)
}

func (f *FS) prune(dir string, removed *[]string, errs *[]error) bool {
	entries, err := f.fs.ReadDir(dir)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("read %s: %w", dir, err))
		return false
	}

	empty := true
	for _, entry := range entries {
		if !entry.IsDir() {
			empty = false
			continue
		}
		child := path.Join(dir, entry.Name())
		if !f.prune(child, removed, errs) {
			empty = false
		}
	}

	if !empty || dir == "" {
		return empty
	}

	if err := f.fs.Remove(dir); err != nil {
		*errs = append(*errs, fmt.Errorf("remove %s: %w", dir, err))
		return false
	}
	*removed = append(*removed, dir)
	return true
}
