package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	const threshold = 10 * 1024 * 1024

	assert.Equal(t, ModeSingle, Decide(0, threshold))
	assert.Equal(t, ModeSingle, Decide(threshold-1, threshold))
	assert.Equal(t, ModeChunked, Decide(threshold, threshold))
	assert.Equal(t, ModeChunked, Decide(threshold+1, threshold))

	// One megabyte at a one megabyte threshold is inclusive.
	assert.Equal(t, ModeChunked, Decide(1024*1024, 1024*1024))
}

func TestPolicyPlan(t *testing.T) {
	tests := []struct {
		name        string
		concurrency int
		size        int64
		want        Plan
	}{
		{name: "small file", concurrency: 8, size: 99, want: Plan{Mode: ModeSingle, Parallelism: 1}},
		{name: "capped parallelism", concurrency: 8, size: 100, want: Plan{Mode: ModeChunked, PartSize: 10, Parallelism: 4}},
		{name: "low concurrency", concurrency: 2, size: 500, want: Plan{Mode: ModeChunked, PartSize: 10, Parallelism: 2}},
		{name: "single worker", concurrency: 1, size: 500, want: Plan{Mode: ModeChunked, PartSize: 10, Parallelism: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Policy{Threshold: 100, PartSize: 10, Concurrency: tt.concurrency}
			assert.Equal(t, tt.want, p.Plan(tt.size))
		})
	}
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "single", ModeSingle.String())
	assert.Equal(t, "chunked", ModeChunked.String())

	text, err := ModeChunked.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "chunked", string(text))
}

func TestConfigHeaders(t *testing.T) {
	h := Config{StorageClass: "STANDARD", ACL: "private"}.Headers()
	assert.Equal(t, "public, max-age=86400, immutable", h.CacheControl)
	assert.True(t, h.ForbidOverwrite)
	assert.Equal(t, "STANDARD", h.StorageClass)
	assert.Equal(t, "private", h.ACL)

	h = Config{NoCache: true, Overwrite: true}.Headers()
	assert.Equal(t, "no-cache", h.CacheControl)
	assert.False(t, h.ForbidOverwrite)
}
