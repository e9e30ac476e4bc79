package comfy

import "errors"

// Standard backend error types.
var (
	// ErrSubmissionFailed indicates the job endpoint rejected a graph.
	ErrSubmissionFailed = errors.New("prompt submission failed")

	// ErrHistoryUnavailable indicates the execution record for a job could
	// not be fetched.
	ErrHistoryUnavailable = errors.New("history unavailable")

	// ErrBridgeFailed indicates a produced image could not be converted
	// into an input-ready upload.
	ErrBridgeFailed = errors.New("image bridge failed")
)

// IsSubmissionFailed checks if an error indicates a rejected submission.
func IsSubmissionFailed(err error) bool {
	return errors.Is(err, ErrSubmissionFailed)
}

// IsHistoryUnavailable checks if an error indicates a missing execution
// record.
func IsHistoryUnavailable(err error) bool {
	return errors.Is(err, ErrHistoryUnavailable)
}
