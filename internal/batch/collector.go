package batch

import (
	"time"

	"artifactpush/internal/worker"
)

// FailedItem describes one file that did not upload
type FailedItem struct {
	LocalPath string `json:"local_path"`
	RemoteKey string `json:"remote_key"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error"`
}

// Summary aggregates the results of one batch
type Summary struct {
	SuccessCount   int          `json:"success_count"`
	FailedCount    int          `json:"failed_count"`
	TotalBytes     int64        `json:"total_bytes"`
	TotalRetries   int          `json:"total_retries"`
	ElapsedSeconds float64      `json:"elapsed_seconds"`
	FailedItems    []FailedItem `json:"failed_items,omitempty"`
}

// Failed reports whether the batch fails overall under the fail-on-error policy
func (s Summary) Failed(failOnError bool) bool {
	return failOnError && s.FailedCount > 0
}

// Collect merges stat failures and transfer results into candidate order
func Collect(n int, b Built, transfer []worker.UploadResult) []worker.UploadResult {
	results := make([]worker.UploadResult, n)

	for _, f := range b.StatFailures {
		results[f.Index] = f.Result
	}
	for i, r := range transfer {
		results[b.TaskIndex[i]] = r
	}

	return results
}

// Summarize folds results into a Summary; TotalBytes counts successful uploads only
func Summarize(results []worker.UploadResult, elapsed time.Duration) Summary {
	s := Summary{ElapsedSeconds: elapsed.Seconds()}

	for _, r := range results {
		s.TotalRetries += r.Retries()

		if r.Success {
			s.SuccessCount++
			s.TotalBytes += r.Size
			continue
		}

		s.FailedCount++
		s.FailedItems = append(s.FailedItems, FailedItem{
			LocalPath: r.LocalPath,
			RemoteKey: r.RemoteKey,
			Attempts:  r.Attempts,
			Error:     r.Error(),
		})
	}

	return s
}
