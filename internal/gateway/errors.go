package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// TransportError reports a failed call or stream interaction with the
// platform gateway. It is retryable from the caller's point of view and
// never corrupts local state.
type TransportError struct {
	Op         string
	StatusCode int
	Messages   []string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case len(e.Messages) > 0:
		return fmt.Sprintf("gateway %s: %s", e.Op, strings.Join(e.Messages, "; "))
	case e.StatusCode != 0:
		return fmt.Sprintf("gateway %s: http %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
