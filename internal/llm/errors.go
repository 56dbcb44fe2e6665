package llm

import (
	"errors"
	"fmt"
)

// FailureKind classifies a backend failure for the failover policy
type FailureKind int

const (
	// TransportUnavailable: connection refused, DNS failure or timeout.
	// The backend was never reached.
	TransportUnavailable FailureKind = iota
	// UpstreamRejected: the backend was reachable but returned a
	// non-success status.
	UpstreamRejected
)

// BackendError is a classified completion backend failure
type BackendError struct {
	Backend string
	Kind    FailureKind
	Status  int
	Err     error
}

func (e *BackendError) Error() string {
	switch e.Kind {
	case UpstreamRejected:
		return fmt.Sprintf("backend %s rejected request with status %d", e.Backend, e.Status)
	default:
		return fmt.Sprintf("backend %s unreachable: %v", e.Backend, e.Err)
	}
}

func (e *BackendError) Unwrap() error { return e.Err }

// IsTransportUnavailable reports whether err is a transport-level
// backend failure.
func IsTransportUnavailable(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Kind == TransportUnavailable
}

// IsUpstreamRejected reports whether err is a backend rejection
func IsUpstreamRejected(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Kind == UpstreamRejected
}
