package storage

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var (
	// ErrObjectExists is returned when forbid-overwrite is set and the key is already taken
	ErrObjectExists = errors.New("object already exists")

	// ErrOverwriteCheck marks a failed existence check; nothing was sent
	ErrOverwriteCheck = errors.New("overwrite check failed")
)

// Client defines the object-store operations the uploader depends on
type Client interface {
	// Put uploads a local file in a single request
	Put(ctx context.Context, key, localPath string, opts PutOptions) (Response, error)
	// MultipartUpload uploads a local file in parts
	MultipartUpload(ctx context.Context, key, localPath string, opts MultipartOptions) (Response, error)
}

// Headers are the per-object policy headers sent with every upload
type Headers struct {
	StorageClass    string
	ACL             string
	CacheControl    string
	ForbidOverwrite bool
}

// PutOptions contains options for single-shot uploads
type PutOptions struct {
	Timeout time.Duration
	Headers Headers
}

// MultipartOptions contains options for chunked uploads
type MultipartOptions struct {
	Timeout     time.Duration
	PartSize    int64
	Parallelism int
	Headers     Headers
}

// Response is the outcome reported by the store for one upload
type Response struct {
	StatusCode int
	ETag       string
}

// OK reports whether the status code is a 2xx
func (r Response) OK() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// Config contains client configuration
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
	Region    string
	Bucket    string
}
