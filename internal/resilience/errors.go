package resilience

import (
	"errors"
	"fmt"
	"net"
)

// UpstreamError reports a failed call to an external service: a transport
// failure, a non-2xx response, an error body or an undecodable payload.
// StatusCode is 0 when no HTTP response was received.
type UpstreamError struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: upstream status %d: %v", e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: upstream: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError wraps err as a failure of service.
func NewUpstreamError(service string, statusCode int, err error) *UpstreamError {
	return &UpstreamError{Service: service, StatusCode: statusCode, Err: err}
}

// IsUpstream reports whether err (or any error in its chain) is an UpstreamError
// or was produced by an open circuit.
func IsUpstream(err error) bool {
	if err == nil {
		return false
	}
	var ue *UpstreamError
	return errors.As(err, &ue) || errors.Is(err, ErrCircuitOpen)
}

// IsServerSide reports whether err points at an unhealthy upstream: a
// network failure, a timeout or a 5xx/429 status. Client-side 4xx answers
// and decode failures of a 2xx body do not count.
func IsServerSide(err error) bool {
	if err == nil {
		return false
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		switch {
		case ue.StatusCode == 0:
			return true
		case ue.StatusCode == 429, ue.StatusCode >= 500:
			return true
		default:
			return false
		}
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
