package swrcache

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendUnavailable means the backend is not configured or the breaker
	// is open. Callers degrade silently.
	ErrBackendUnavailable = errors.New("swrcache: backend unavailable")
	// ErrCircuitOpen is returned when the breaker bypasses the backend.
	// It matches ErrBackendUnavailable.
	ErrCircuitOpen = fmt.Errorf("%w: circuit open", ErrBackendUnavailable)
	// ErrBackendTimeout means an operation exceeded the operation timeout.
	// It is a miss for reads and never trips the breaker.
	ErrBackendTimeout = errors.New("swrcache: backend timeout")
	// ErrScanUnsupported is returned by InvalidatePattern on providers that
	// cannot enumerate keys.
	ErrScanUnsupported = errors.New("swrcache: provider does not support scan")
)

// BackendError is a failed backend operation. It counts against the breaker.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string { return fmt.Sprintf("swrcache: backend %s: %v", e.Op, e.Err) }
func (e *BackendError) Unwrap() error { return e.Err }

// InvalidateError reports a partially failed pattern invalidation. Deleted is
// the number of keys removed before the failure.
type InvalidateError struct {
	Pattern string
	Deleted int
	ScanErr error
	DelErr  error
}

func (e *InvalidateError) Error() string {
	switch {
	case e.ScanErr != nil && e.DelErr != nil:
		return fmt.Sprintf("invalidate %q failed after %d keys: scan=%v; delete=%v",
			e.Pattern, e.Deleted, e.ScanErr, e.DelErr)
	case e.ScanErr != nil:
		return fmt.Sprintf("invalidate %q: scan failed after %d keys: %v", e.Pattern, e.Deleted, e.ScanErr)
	case e.DelErr != nil:
		return fmt.Sprintf("invalidate %q: delete failed after %d keys: %v", e.Pattern, e.Deleted, e.DelErr)
	default:
		return fmt.Sprintf("invalidate %q: unknown error", e.Pattern)
	}
}

func (e *InvalidateError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.ScanErr != nil {
		errs = append(errs, e.ScanErr)
	}
	if e.DelErr != nil {
		errs = append(errs, e.DelErr)
	}
	return errs
}
