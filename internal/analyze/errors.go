package analyze

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated means no credential is stored.
	ErrUnauthenticated = errors.New("not logged in")
	// ErrInsufficientContent means the input is too short to analyze.
	ErrInsufficientContent = errors.New("insufficient text content for analysis")
	// ErrTimeout means the remote scorer did not answer in time.
	ErrTimeout = errors.New("analysis timed out")
)

// QuotaError means the tier's daily analysis limit is exhausted. It carries
// the limit so the UI can render an upgrade prompt.
type QuotaError struct {
	Limit int
	Used  int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("daily analysis limit of %d reached", e.Limit)
}

// RemoteError means the scorer answered with a non-success status or an
// explicit failure payload.
type RemoteError struct {
	Status int
	Reason string
}

func (e *RemoteError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("analysis request failed: %s", e.Reason)
	}
	return fmt.Sprintf("analysis request failed: status %d", e.Status)
}
