package job

import "fmt"

// ValidationError reports a missing or malformed payload field. It is
// surfaced to the submitter immediately; the job never enters the queue.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload: field %q: %s", e.Field, e.Reason)
}
