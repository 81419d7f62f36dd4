package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/errgroup"
)

const (
	defaultContentType = "application/octet-stream"
	aclHeader          = "x-amz-acl"
	sniffLen           = 512
)

// MinIOClient implements the Client interface using minio-go.
// Local paths are resolved against fs.
type MinIOClient struct {
	client *minio.Client
	bucket string
	fs     billy.Filesystem
}

// NewMinIOClient creates a new MinIO client
func NewMinIOClient(cfg Config, fs billy.Filesystem) (*MinIOClient, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket cannot be empty")
	}

	endpoint, err := cleanEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: endpointSecure(cfg.Endpoint, cfg.Secure),
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	return &MinIOClient{client: client, bucket: cfg.Bucket, fs: fs}, nil
}

// cleanEndpoint removes protocol from endpoint URL to get host:port format
func cleanEndpoint(endpoint string) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("endpoint cannot be empty")
	}

	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if strings.Contains(endpoint, "/") {
			return "", fmt.Errorf("endpoint contains path but no protocol")
		}
		return endpoint, nil
	}

	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to parse endpoint URL: %w", err)
	}

	if parsedURL.Path != "" && parsedURL.Path != "/" {
		return "", fmt.Errorf("endpoint URL cannot have paths, only host:port is allowed (got path: %s)", parsedURL.Path)
	}

	return parsedURL.Host, nil
}

// endpointSecure lets an explicit URL scheme override the secure setting
func endpointSecure(endpoint string, secure bool) bool {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return true
	case strings.HasPrefix(endpoint, "http://"):
		return false
	}
	return secure
}

// Put uploads a local file in a single request
func (c *MinIOClient) Put(ctx context.Context, key, localPath string, opts PutOptions) (Response, error) {
	ctx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	file, size, err := c.open(localPath)
	if err != nil {
		return Response{}, err
	}
	defer file.Close()

	if opts.Headers.ForbidOverwrite {
		if err := c.ensureAbsent(ctx, key); err != nil {
			return failure(err)
		}
	}

	putOpts := objectOptions(localPath, file, opts.Headers)
	putOpts.DisableMultipart = true

	info, err := c.client.PutObject(ctx, c.bucket, key, io.NewSectionReader(file, 0, size), size, putOpts)
	if err != nil {
		return failure(err)
	}

	return Response{StatusCode: http.StatusOK, ETag: info.ETag}, nil
}

// MultipartUpload uploads a local file in parts, at most opts.Parallelism at a time
func (c *MinIOClient) MultipartUpload(ctx context.Context, key, localPath string, opts MultipartOptions) (Response, error) {
	ctx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	file, size, err := c.open(localPath)
	if err != nil {
		return Response{}, err
	}
	defer file.Close()

	if opts.Headers.ForbidOverwrite {
		if err := c.ensureAbsent(ctx, key); err != nil {
			return failure(err)
		}
	}

	core := &minio.Core{Client: c.client}
	uploadID, err := core.NewMultipartUpload(ctx, c.bucket, key, objectOptions(localPath, file, opts.Headers))
	if err != nil {
		return failure(fmt.Errorf("failed to initiate multipart upload: %w", err))
	}

	parts, err := c.uploadParts(ctx, core, key, uploadID, file, size, opts)
	if err != nil {
		if abortErr := core.AbortMultipartUpload(context.WithoutCancel(ctx), c.bucket, key, uploadID); abortErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to abort multipart upload: %w", abortErr))
		}
		return failure(err)
	}

	info, err := core.CompleteMultipartUpload(ctx, c.bucket, key, uploadID, parts, minio.PutObjectOptions{})
	if err != nil {
		return failure(fmt.Errorf("failed to complete multipart upload: %w", err))
	}

	return Response{StatusCode: http.StatusOK, ETag: info.ETag}, nil
}

func (c *MinIOClient) uploadParts(
	ctx context.Context,
	core *minio.Core,
	key, uploadID string,
	file io.ReaderAt,
	size int64,
	opts MultipartOptions,
) ([]minio.CompletePart, error) {
	partSize := opts.PartSize
	if partSize <= 0 {
		partSize = size
	}
	count := PartCount(size, partSize)
	parts := make([]minio.CompletePart, count)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Parallelism, 1))

	for i := 0; i < count; i++ {
		i := i
		partNumber := i + 1
		offset := int64(i) * partSize
		length := min(partSize, size-offset)

		g.Go(func() error {
			part, err := core.PutObjectPart(gctx, c.bucket, key, uploadID, partNumber,
				io.NewSectionReader(file, offset, length), length, minio.PutObjectPartOptions{})
			if err != nil {
				return fmt.Errorf("failed to upload part %d: %w", partNumber, err)
			}
			parts[i] = minio.CompletePart{PartNumber: partNumber, ETag: part.ETag}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parts, nil
}

// PartCount returns how many parts of partSize cover size bytes; an empty object is one part
func PartCount(size, partSize int64) int {
	if size <= 0 || partSize <= 0 {
		return 1
	}
	return int((size + partSize - 1) / partSize)
}

func (c *MinIOClient) ensureAbsent(ctx context.Context, key string) error {
	_, err := c.client.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return fmt.Errorf("%s: %w", key, ErrObjectExists)
	}

	if minio.ToErrorResponse(err).StatusCode == http.StatusNotFound {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrOverwriteCheck, err)
}

func (c *MinIOClient) open(localPath string) (billy.File, int64, error) {
	info, err := c.fs.Stat(localPath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	file, err := c.fs.Open(localPath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open %s: %w", localPath, err)
	}

	return file, info.Size(), nil
}

func objectOptions(localPath string, file io.ReaderAt, headers Headers) minio.PutObjectOptions {
	opts := minio.PutObjectOptions{
		ContentType:  detectContentType(localPath, file),
		CacheControl: headers.CacheControl,
		StorageClass: headers.StorageClass,
	}
	if headers.ACL != "" {
		opts.UserMetadata = map[string]string{aclHeader: headers.ACL}
	}
	return opts
}

// detectContentType prefers the extension, then sniffs the first bytes
func detectContentType(localPath string, file io.ReaderAt) string {
	if ct := mime.TypeByExtension(path.Ext(localPath)); ct != "" {
		return ct
	}

	buf := make([]byte, sniffLen)
	n, _ := file.ReadAt(buf, 0)
	if n > 0 {
		if mt := mimetype.Detect(buf[:n]); mt != nil {
			return mt.String()
		}
	}

	return defaultContentType
}

// failure converts a minio error into a Response carrying the HTTP status, when known
func failure(err error) (Response, error) {
	if errors.Is(err, ErrObjectExists) {
		return Response{StatusCode: http.StatusPreconditionFailed}, err
	}
	return Response{StatusCode: statusCode(err)}, err
}

func statusCode(err error) int {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.StatusCode
	}
	return 0
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
