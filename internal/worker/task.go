package worker

import (
	"time"

	"artifactpush/internal/storage"
)

const (
	cacheControlNoCache   = "no-cache"
	cacheControlImmutable = "public, max-age=86400, immutable"
)

// UploadTask is one local file bound to its remote key
type UploadTask struct {
	LocalPath string `json:"local_path"`
	RemoteKey string `json:"remote_key"`
	Size      int64  `json:"size"`
}

// UploadResult is the terminal outcome for one candidate path
type UploadResult struct {
	LocalPath string        `json:"local_path"`
	RemoteKey string        `json:"remote_key"`
	Size      int64         `json:"size"`
	Success   bool          `json:"success"`
	Attempts  int           `json:"attempts"`
	Mode      Mode          `json:"mode"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
}

// Retries is the number of attempts beyond the first
func (r UploadResult) Retries() int {
	if r.Attempts <= 1 {
		return 0
	}
	return r.Attempts - 1
}

// Error returns the failure message, or an empty string
func (r UploadResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Config contains worker configuration
type Config struct {
	MultipartThreshold int64
	PartSize           int64
	Concurrency        int
	Retries            int
	RetryBackoff       time.Duration
	Timeout            time.Duration
	Overwrite          bool
	NoCache            bool
	AutoDelete         bool
	StorageClass       string
	ACL                string
}

// Headers derives the per-object policy headers
func (c Config) Headers() storage.Headers {
	cacheControl := cacheControlImmutable
	if c.NoCache {
		cacheControl = cacheControlNoCache
	}

	return storage.Headers{
		StorageClass:    c.StorageClass,
		ACL:             c.ACL,
		CacheControl:    cacheControl,
		ForbidOverwrite: !c.Overwrite,
	}
}

// Policy returns the size policy for this configuration
func (c Config) Policy() Policy {
	return Policy{
		Threshold:   c.MultipartThreshold,
		PartSize:    c.PartSize,
		Concurrency: c.Concurrency,
	}
}
