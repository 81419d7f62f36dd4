package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"artifactpush/internal/storage"

	"go.uber.org/zap"
)

// State is a step of the per-task retry state machine
type State int

const (
	StatePending State = iota
	StateAttempting
	StateRetryScheduled
	StateSucceeded
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAttempting:
		return "attempting"
	case StateRetryScheduled:
		return "retry_scheduled"
	case StateSucceeded:
		return "succeeded"
	case StateTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// OutcomeKind classifies a single transfer attempt
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRetryable
	OutcomeFatal
)

// AttemptOutcome is the result of one transfer attempt
type AttemptOutcome struct {
	Kind OutcomeKind
	Err  error
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Remover deletes local files after a successful upload
type Remover interface {
	Remove(path string) error
}

// retryMachine tracks attempts for one task; it holds no I/O.
type retryMachine struct {
	state       State
	attempt     int
	maxAttempts int
	lastErr     error
}

func newRetryMachine(maxAttempts int) *retryMachine {
	return &retryMachine{state: StatePending, maxAttempts: max(maxAttempts, 1)}
}

func (m *retryMachine) done() bool {
	return m.state == StateSucceeded || m.state == StateTerminal
}

// begin moves Pending or RetryScheduled into Attempting
func (m *retryMachine) begin() {
	m.attempt++
	m.state = StateAttempting
}

// settle applies the outcome of the current attempt
func (m *retryMachine) settle(outcome AttemptOutcome) {
	switch {
	case outcome.Kind == OutcomeSuccess:
		m.lastErr = nil
		m.state = StateSucceeded
	case outcome.Kind == OutcomeFatal || m.attempt >= m.maxAttempts:
		m.lastErr = outcome.Err
		m.state = StateTerminal
	default:
		m.lastErr = outcome.Err
		m.state = StateRetryScheduled
	}
}

// abort ends the machine without another attempt
func (m *retryMachine) abort(err error) {
	m.lastErr = err
	m.state = StateTerminal
}

// Executor uploads one task with bounded retries and linear backoff
type Executor struct {
	config Config
	policy Policy
	client storage.Client
	local  Remover
	sleep  Sleeper
	logger *zap.Logger
}

// ExecutorOption customizes an Executor
type ExecutorOption func(*Executor)

// WithSleeper replaces the backoff delay, mainly for tests
func WithSleeper(s Sleeper) ExecutorOption {
	return func(e *Executor) {
		e.sleep = s
	}
}

// NewExecutor creates a new retry executor
func NewExecutor(config Config, client storage.Client, local Remover, logger *zap.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		config: config,
		policy: config.Policy(),
		client: client,
		local:  local,
		sleep:  SleepContext,
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Backoff returns the delay after the given failed attempt
func (e *Executor) Backoff(attempt int) time.Duration {
	return e.config.RetryBackoff * time.Duration(attempt)
}

// Attempt uploads task, retrying retryable failures up to the configured limit
func (e *Executor) Attempt(ctx context.Context, task UploadTask) UploadResult {
	start := time.Now()
	plan := e.policy.Plan(task.Size)
	m := newRetryMachine(e.config.Retries)
	// set once a failed attempt may have reached the store
	unconfirmed := false

	for !m.done() {
		switch m.state {
		case StatePending:
			m.begin()

		case StateAttempting:
			outcome := e.transfer(ctx, task, plan, m.attempt)
			outcome, unconfirmed = e.reconcile(task, m.attempt, outcome, unconfirmed)
			m.settle(outcome)
			if outcome.Kind != OutcomeSuccess {
				e.logger.Warn("Upload attempt failed",
					zap.String("key", task.RemoteKey),
					zap.Int("attempt", m.attempt),
					zap.Int("max_attempts", m.maxAttempts),
					zap.Error(outcome.Err),
				)
			}

		case StateRetryScheduled:
			if err := e.sleep(ctx, e.Backoff(m.attempt)); err != nil {
				m.abort(&TransferError{Key: task.RemoteKey, Attempt: m.attempt, Fatal: true,
					Err: errors.Join(err, m.lastErr)})
				continue
			}
			m.begin()
		}
	}

	result := UploadResult{
		LocalPath: task.LocalPath,
		RemoteKey: task.RemoteKey,
		Size:      task.Size,
		Success:   m.state == StateSucceeded,
		Attempts:  m.attempt,
		Mode:      plan.Mode,
		Duration:  time.Since(start),
		Err:       m.lastErr,
	}

	if !result.Success {
		e.logger.Error("Upload failed",
			zap.String("key", task.RemoteKey),
			zap.Int("attempts", result.Attempts),
			zap.Error(result.Err),
		)
		return result
	}

	e.logger.Debug("Upload completed",
		zap.String("key", task.RemoteKey),
		zap.String("mode", plan.Mode.String()),
		zap.Int64("size", task.Size),
		zap.Int("attempts", result.Attempts),
		zap.Duration("duration", result.Duration),
	)

	if e.config.AutoDelete {
		e.removeLocal(task)
	}

	return result
}

func (e *Executor) transfer(ctx context.Context, task UploadTask, plan Plan, attempt int) AttemptOutcome {
	headers := e.config.Headers()

	var resp storage.Response
	var err error
	switch plan.Mode {
	case ModeChunked:
		resp, err = e.client.MultipartUpload(ctx, task.RemoteKey, task.LocalPath, storage.MultipartOptions{
			Timeout:     e.config.Timeout,
			PartSize:    plan.PartSize,
			Parallelism: plan.Parallelism,
			Headers:     headers,
		})
	default:
		resp, err = e.client.Put(ctx, task.RemoteKey, task.LocalPath, storage.PutOptions{
			Timeout: e.config.Timeout,
			Headers: headers,
		})
	}

	return classify(ctx, task, attempt, resp, err)
}

// reconcile treats an existing object as our own upload when an earlier
// attempt sent the body but never saw the response.
func (e *Executor) reconcile(task UploadTask, attempt int, outcome AttemptOutcome, unconfirmed bool) (AttemptOutcome, bool) {
	switch outcome.Kind {
	case OutcomeFatal:
		if unconfirmed && errors.Is(outcome.Err, storage.ErrObjectExists) {
			e.logger.Info("Object present after an unconfirmed attempt, treating as uploaded",
				zap.String("key", task.RemoteKey),
				zap.Int("attempt", attempt),
			)
			return AttemptOutcome{Kind: OutcomeSuccess}, unconfirmed
		}
	case OutcomeRetryable:
		if !errors.Is(outcome.Err, storage.ErrOverwriteCheck) {
			unconfirmed = true
		}
	}
	return outcome, unconfirmed
}

func classify(ctx context.Context, task UploadTask, attempt int, resp storage.Response, err error) AttemptOutcome {
	if err == nil && resp.OK() {
		return AttemptOutcome{Kind: OutcomeSuccess}
	}

	if err == nil {
		err = fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	fatal := errors.Is(err, storage.ErrObjectExists) || ctx.Err() != nil
	terr := &TransferError{
		Key:        task.RemoteKey,
		Attempt:    attempt,
		StatusCode: resp.StatusCode,
		Fatal:      fatal,
		Err:        err,
	}

	if fatal {
		return AttemptOutcome{Kind: OutcomeFatal, Err: terr}
	}
	return AttemptOutcome{Kind: OutcomeRetryable, Err: terr}
}

func (e *Executor) removeLocal(task UploadTask) {
	if e.local == nil {
		return
	}

	if err := e.local.Remove(task.LocalPath); err != nil {
		e.logger.Warn("Failed to delete local file after upload",
			zap.String("cleanup", "remove"),
			zap.String("path", task.LocalPath),
			zap.Error(err),
		)
	}
}
