package export

import (
	"fmt"
	"strings"
)

// NotConfiguredError is returned when a component an export needs is missing.
type NotConfiguredError struct {
	// Component is "warehouse" or "spreadsheet".
	Component string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("%s is not configured", e.Component)
}

// CircularDependencyError is returned when a pre-file is reached again while
// it is still being executed.
type CircularDependencyError struct {
	Path string
	// Chain lists the pre-files from the outermost to Path.
	Chain []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular pre_file dependency on %s: %s", e.Path, strings.Join(e.Chain, " -> "))
}
