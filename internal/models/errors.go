package models

import "fmt"

// ValidationError marks a malformed request field. Handlers surface it
// verbatim with a 400; it is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
