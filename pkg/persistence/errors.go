package persistence

import (
	"errors"
	"fmt"
)

// Standard store error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates no workflow is stored under the name.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrAutomationNotFound indicates no automation is stored under the name.
	ErrAutomationNotFound = errors.New("automation not found")

	// ErrInvalidAutomation indicates a stored automation document failed
	// schema validation.
	ErrInvalidAutomation = errors.New("invalid automation document")

	// ErrEmptyName indicates a blank document name was given.
	ErrEmptyName = errors.New("document name is empty")
)

// DocumentError wraps store errors with the operation and document name.
type DocumentError struct {
	Op   string // Operation being performed (e.g., "LoadWorkflow", "SaveAutomation")
	Name string // Document name if applicable
	Err  error  // Underlying error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("%s failed for %q: %v", e.Op, e.Name, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for document errors.
func (e *DocumentError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewDocumentError creates a new document error with context.
func NewDocumentError(op, name string, err error) *DocumentError {
	return &DocumentError{Op: op, Name: name, Err: err}
}

// IsWorkflowNotFound checks if an error indicates a missing workflow.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsAutomationNotFound checks if an error indicates a missing automation.
func IsAutomationNotFound(err error) bool {
	return errors.Is(err, ErrAutomationNotFound)
}

// IsInvalidAutomation checks if an error indicates a malformed automation
// document.
func IsInvalidAutomation(err error) bool {
	return errors.Is(err, ErrInvalidAutomation)
}
