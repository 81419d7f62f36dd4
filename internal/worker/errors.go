package worker

import (
	"errors"
	"fmt"
)

// ErrCancelled marks tasks that were never attempted because the run was cancelled
var ErrCancelled = errors.New("upload cancelled")

// StatError reports a candidate that could not be read before transfer
type StatError struct {
	Path string
	Err  error
}

func (e *StatError) Error() string {
	return fmt.Sprintf("stat %s: %v", e.Path, e.Err)
}

func (e *StatError) Unwrap() error {
	return e.Err
}

// TransferError reports a failed transfer attempt
type TransferError struct {
	Key        string
	Attempt    int
	StatusCode int
	Fatal      bool
	Err        error
}

func (e *TransferError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upload %s (attempt %d, status %d): %v", e.Key, e.Attempt, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upload %s (attempt %d): %v", e.Key, e.Attempt, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err ended a task without further retries
func IsFatal(err error) bool {
	var terr *TransferError
	return errors.As(err, &terr) && terr.Fatal
}
