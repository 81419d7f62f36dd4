package worker

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"artifactpush/internal/storage"
)

type call struct {
	Key       string
	Path      string
	Multipart bool
	Headers   storage.Headers
	PartSize  int64
	Parallel  int
}

// fakeClient is an in-memory storage.Client; respond decides each attempt's outcome.
type fakeClient struct {
	mu          sync.Mutex
	calls       []call
	attempts    map[string]int
	inflight    int
	maxInflight int
	delay       time.Duration
	respond     func(key string, attempt int) (storage.Response, error)
}

func newFakeClient(respond func(key string, attempt int) (storage.Response, error)) *fakeClient {
	if respond == nil {
		respond = func(string, int) (storage.Response, error) { return ok(), nil }
	}
	return &fakeClient{attempts: make(map[string]int), respond: respond}
}

func ok() storage.Response {
	return storage.Response{StatusCode: http.StatusOK}
}

func (f *fakeClient) Put(ctx context.Context, key, localPath string, opts storage.PutOptions) (storage.Response, error) {
	return f.do(ctx, call{Key: key, Path: localPath, Headers: opts.Headers})
}

func (f *fakeClient) MultipartUpload(ctx context.Context, key, localPath string, opts storage.MultipartOptions) (storage.Response, error) {
	return f.do(ctx, call{Key: key, Path: localPath, Multipart: true, Headers: opts.Headers, PartSize: opts.PartSize, Parallel: opts.Parallelism})
}

func (f *fakeClient) do(ctx context.Context, c call) (storage.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.attempts[c.Key]++
	attempt := f.attempts[c.Key]
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return storage.Response{}, ctx.Err()
		}
	}

	return f.respond(c.Key, attempt)
}

func (f *fakeClient) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeClient) Attempts(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[key]
}

type fakeRemover struct {
	mu      sync.Mutex
	removed []string
	err     error
}

func (r *fakeRemover) Remove(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.removed = append(r.removed, path)
	return nil
}

// recordingSleeper captures backoff delays without waiting
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
	err    error
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return s.err
}

var errBoom = errors.New("connection reset by peer")
