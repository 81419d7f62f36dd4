package worker

// MaxPartParallelism caps the concurrent parts of a single chunked upload
const MaxPartParallelism = 4

// Mode is the transfer strategy for one file
type Mode int

const (
	ModeSingle Mode = iota
	ModeChunked
)

func (m Mode) String() string {
	if m == ModeChunked {
		return "chunked"
	}
	return "single"
}

// MarshalText encodes the mode by name
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Decide selects chunked transfer for sizes at or above threshold
func Decide(size, threshold int64) Mode {
	if size >= threshold {
		return ModeChunked
	}
	return ModeSingle
}

// Policy maps file sizes to transfer plans
type Policy struct {
	Threshold   int64
	PartSize    int64
	Concurrency int
}

// Plan describes how one file is transferred
type Plan struct {
	Mode        Mode
	PartSize    int64
	Parallelism int
}

// Plan returns the transfer plan for a file of the given size
func (p Policy) Plan(size int64) Plan {
	if Decide(size, p.Threshold) == ModeSingle {
		return Plan{Mode: ModeSingle, Parallelism: 1}
	}

	return Plan{
		Mode:        ModeChunked,
		PartSize:    p.PartSize,
		Parallelism: max(min(p.Concurrency, MaxPartParallelism), 1),
	}
}
