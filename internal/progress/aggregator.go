package progress

import (
	"sort"
	"sync"
	"time"
)

const (
	maxSpeedSamples = 60
	speedWindow     = 5 * time.Second
)

// Snapshot is a point-in-time copy of batch progress.
// Only Completed and BytesTransferred are guaranteed monotonic across snapshots.
type Snapshot struct {
	TotalItems       int64
	Completed        int64
	Succeeded        int64
	Failed           int64
	TotalBytes       int64
	BytesTransferred int64
	Retries          int64
	Active           []string
	PeakActive       int
	StartTime        time.Time
	TakenAt          time.Time
	Elapsed          time.Duration
	Percent          float64 // 0-100, over items
	Throughput       float64 // bytes/second since start
	CurrentSpeed     float64 // bytes/second over the last few seconds
	ETA              time.Duration
	ETAKnown         bool
}

type speedSample struct {
	timestamp time.Time
	bytes     int64
}

// Aggregator accumulates progress from concurrent workers.
// Each event is applied under a single lock so snapshots never see a partial update.
type Aggregator struct {
	mu sync.RWMutex

	totalItems int64
	totalBytes int64
	completed  int64
	succeeded  int64
	failed     int64
	bytes      int64
	retries    int64

	active      map[string]int
	activeCount int
	peakActive  int

	start        time.Time
	speedSamples []speedSample
	now          func() time.Time
}

// Option customizes an Aggregator
type Option func(*Aggregator)

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator creates an aggregator whose clock starts now
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		active:       make(map[string]int),
		speedSamples: make([]speedSample, 0, maxSpeedSamples),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.start = a.now()
	return a
}

// SetTotals sets the number of candidates and the bytes expected to transfer
func (a *Aggregator) SetTotals(items, bytes int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalItems = items
	a.totalBytes = bytes
}

// MarkActive adds key to the active set
func (a *Aggregator) MarkActive(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.active[key]++
	a.activeCount++
	if a.activeCount > a.peakActive {
		a.peakActive = a.activeCount
	}
}

// MarkInactive removes key from the active set
func (a *Aggregator) MarkInactive(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n, ok := a.active[key]
	if !ok {
		return
	}
	if n <= 1 {
		delete(a.active, key)
	} else {
		a.active[key] = n - 1
	}
	a.activeCount--
}

// RecordCompletion applies the terminal outcome of one candidate
func (a *Aggregator) RecordCompletion(success bool, bytes int64, retries int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.completed++
	if success {
		a.succeeded++
	} else {
		a.failed++
	}
	a.retries += int64(retries)

	if bytes > 0 {
		a.bytes += bytes
		a.addSample(bytes)
	}
}

// addSample must be called with the lock held
func (a *Aggregator) addSample(bytes int64) {
	a.speedSamples = append(a.speedSamples, speedSample{timestamp: a.now(), bytes: bytes})
	if len(a.speedSamples) > maxSpeedSamples {
		a.speedSamples = a.speedSamples[1:]
	}
}

// Snapshot returns a consistent copy of the current state with derived fields
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	now := a.now()
	s := Snapshot{
		TotalItems:       a.totalItems,
		Completed:        a.completed,
		Succeeded:        a.succeeded,
		Failed:           a.failed,
		TotalBytes:       a.totalBytes,
		BytesTransferred: a.bytes,
		Retries:          a.retries,
		Active:           make([]string, 0, len(a.active)),
		PeakActive:       a.peakActive,
		StartTime:        a.start,
		TakenAt:          now,
		Elapsed:          now.Sub(a.start),
	}

	for key := range a.active {
		s.Active = append(s.Active, key)
	}
	sort.Strings(s.Active)

	if s.TotalItems > 0 {
		s.Percent = float64(s.Completed) / float64(s.TotalItems) * 100
	}

	if s.Elapsed > 0 {
		s.Throughput = float64(s.BytesTransferred) / s.Elapsed.Seconds()
	}
	s.CurrentSpeed = a.currentSpeed(now)
	s.ETA, s.ETAKnown = eta(s.TotalBytes-s.BytesTransferred, s.Throughput)

	return s
}

// currentSpeed must be called with the lock held
func (a *Aggregator) currentSpeed(now time.Time) float64 {
	cutoff := now.Add(-speedWindow)
	var recentBytes int64
	var first time.Time

	for i := len(a.speedSamples) - 1; i >= 0; i-- {
		sample := a.speedSamples[i]
		if sample.timestamp.Before(cutoff) {
			break
		}
		recentBytes += sample.bytes
		first = sample.timestamp
	}

	if first.IsZero() {
		return 0
	}
	window := now.Sub(first)
	if window < time.Second {
		window = time.Second
	}
	return float64(recentBytes) / window.Seconds()
}

func eta(remaining int64, throughput float64) (time.Duration, bool) {
	if remaining <= 0 {
		return 0, true
	}
	if throughput <= 0 {
		return 0, false
	}
	return time.Duration(float64(remaining) / throughput * float64(time.Second)), true
}
