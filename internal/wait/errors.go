package wait

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimeout matches any *TimeoutError via errors.Is.
var ErrTimeout = errors.New("wait timed out")

// TimeoutError reports a condition that never became ready in time.
type TimeoutError struct {
	Description  string
	LastObserved string
	Timeout      time.Duration
}

func (e *TimeoutError) Error() string {
	if e.LastObserved == "" {
		return fmt.Sprintf("timed out after %s waiting for %s", e.Timeout, e.Description)
	}
	return fmt.Sprintf("timed out after %s waiting for %s (last observed: %s)", e.Timeout, e.Description, e.LastObserved)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// EvaluationError reports a condition that failed outright instead of
// reporting "not ready", e.g. because the session was shut down.
type EvaluationError struct {
	Description string
	Cause       error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluating %s: %v", e.Description, e.Cause)
}

func (e *EvaluationError) Unwrap() error {
	return e.Cause
}

// notReadyError carries the observation of a condition that has not yet
// been satisfied. It never escapes Await.
type notReadyError struct {
	state string
}

func (e *notReadyError) Error() string {
	return "not ready: " + e.state
}

// NotReady is returned by a condition's Poll to ask for another poll.
// The formatted state ends up in TimeoutError.LastObserved.
func NotReady(format string, args ...any) error {
	return &notReadyError{state: fmt.Sprintf(format, args...)}
}

// IsNotReady reports whether err asks for another poll, and the observed state.
func IsNotReady(err error) (string, bool) {
	var nr *notReadyError
	if errors.As(err, &nr) {
		return nr.state, true
	}
	return "", false
}
