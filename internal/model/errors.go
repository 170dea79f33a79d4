package model

import "fmt"

// ValidationError reports a malformed message or event payload. Payloads
// failing validation are dropped at the boundary and logged, never applied.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload: %s (%s)", e.Reason, e.Field)
}
