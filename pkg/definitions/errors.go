package definitions

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDefinition is the sentinel wrapped by every registration
// rejection, so callers can distinguish bad input from storage failures.
var ErrInvalidDefinition = errors.New("invalid workflow definition")

// ValidationError collects every problem found in a submitted definition.
// Registration reports all failures at once instead of stopping at the first.
type ValidationError struct {
	Name     string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("definition %q rejected: %s", e.Name, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidDefinition
}
