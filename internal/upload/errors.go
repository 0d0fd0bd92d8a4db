package upload

import "fmt"

// ClearError reports a failed clear of a previous footprint. It is logged,
// never returned.
type ClearError struct {
	Range string
	Err   error
}

func (e *ClearError) Error() string {
	return fmt.Sprintf("failed to clear %s: %v", e.Range, e.Err)
}

func (e *ClearError) Unwrap() error {
	return e.Err
}
