package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeLoopDepthExceeded = "LOOP_DEPTH_EXCEEDED"
	ErrCodeParallelLimit     = "PARALLEL_LIMIT_EXCEEDED"
	ErrCodeInvalidDocument   = "INVALID_DOCUMENT"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeRender            = "RENDER_ERROR"
)

// BuildError is the structured error type for fatal plan construction failures.
type BuildError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *BuildError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *BuildError) Unwrap() error {
	return e.Cause
}

// NewError creates a new BuildError.
func NewError(code, message string) *BuildError {
	return &BuildError{Code: code, Message: message}
}

// NewErrorf creates a new BuildError with a formatted message.
func NewErrorf(code, format string, args ...any) *BuildError {
	return &BuildError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *BuildError) WithNode(nodeID string) *BuildError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *BuildError) WithCause(err error) *BuildError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *BuildError) WithDetails(details map[string]any) *BuildError {
	e.Details = details
	return e
}
