package storage

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanEndpoint(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "localhost:9000", want: "localhost:9000"},
		{in: "http://localhost:9000", want: "localhost:9000"},
		{in: "https://s3.example.com/", want: "s3.example.com"},
		{in: "https://s3.example.com/bucket", wantErr: true},
		{in: "s3.example.com/bucket", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := cleanEndpoint(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEndpointSecure(t *testing.T) {
	assert.True(t, endpointSecure("https://s3.example.com", false))
	assert.False(t, endpointSecure("http://localhost:9000", true))
	assert.True(t, endpointSecure("s3.example.com", true))
	assert.False(t, endpointSecure("localhost:9000", false))
}

func TestPartCount(t *testing.T) {
	assert.Equal(t, 1, PartCount(0, 5))
	assert.Equal(t, 1, PartCount(5, 5))
	assert.Equal(t, 2, PartCount(6, 5))
	assert.Equal(t, 3, PartCount(11, 5))
	assert.Equal(t, 1, PartCount(11, 0))
}

func TestResponseOK(t *testing.T) {
	assert.True(t, Response{StatusCode: http.StatusOK}.OK())
	assert.True(t, Response{StatusCode: http.StatusNoContent}.OK())
	assert.False(t, Response{StatusCode: http.StatusInternalServerError}.OK())
	assert.False(t, Response{}.OK())
}

func TestFailureStatus(t *testing.T) {
	resp, err := failure(fmt.Errorf("wrapped: %w", minio.ErrorResponse{StatusCode: http.StatusServiceUnavailable, Code: "SlowDown"}))
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = failure(fmt.Errorf("app.js: %w", ErrObjectExists))
	assert.ErrorIs(t, err, ErrObjectExists)
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)

	resp, _ = failure(errors.New("connection reset"))
	assert.Equal(t, 0, resp.StatusCode)
}

func TestObjectOptions(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "app.js", []byte("console.log(1)"), 0o644))
	require.NoError(t, util.WriteFile(fs, "blob", []byte("%PDF-1.4\n"), 0o644))
	require.NoError(t, util.WriteFile(fs, "empty", nil, 0o644))

	c := &MinIOClient{bucket: "b", fs: fs}

	file, size, err := c.open("app.js")
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, int64(14), size)

	opts := objectOptions("app.js", file, Headers{
		StorageClass: "STANDARD_IA",
		ACL:          "public-read",
		CacheControl: "no-cache",
	})
	assert.Contains(t, opts.ContentType, "javascript")
	assert.Equal(t, "STANDARD_IA", opts.StorageClass)
	assert.Equal(t, "no-cache", opts.CacheControl)
	assert.Equal(t, map[string]string{aclHeader: "public-read"}, opts.UserMetadata)

	assert.Equal(t, "application/pdf", detectContentType("blob", bytes.NewReader([]byte("%PDF-1.4\n"))))
	assert.Equal(t, defaultContentType, detectContentType("empty", bytes.NewReader(nil)))

	_, _, err = c.open("missing")
	assert.Error(t, err)
}
