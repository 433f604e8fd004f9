package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationSeverity indicates whether an issue is an error or warning.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue is one problem found in a workflow definition. Path is "/"
// for workflow-wide issues and "nodes.<id>" for node issues.
type ValidationIssue struct {
	Path     string             `json:"path"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

// NodeID returns the node the issue points at, or "".
func (i ValidationIssue) NodeID() string {
	id, ok := strings.CutPrefix(i.Path, "nodes.")
	if !ok {
		return ""
	}
	return id
}

// ValidationResult is the non-throwing outcome of validating a definition.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// Valid reports whether there are no errors. Warnings never invalidate.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

func (r *ValidationResult) AddError(path, code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{
		Path: path, Code: code, Message: message, Severity: SeverityError,
	})
}

func (r *ValidationResult) AddWarning(path, code, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{
		Path: path, Code: code, Message: message, Severity: SeverityWarning,
	})
}

// AddBuildError records a failed build. A *BuildError keeps its code and
// node; any other error is reported as a workflow-wide validation error.
func (r *ValidationResult) AddBuildError(err error) {
	var buildErr *BuildError
	if !errors.As(err, &buildErr) {
		r.AddError("/", ErrCodeValidation, err.Error())
		return
	}
	path := "/"
	if buildErr.NodeID != "" {
		path = "nodes." + buildErr.NodeID
	}
	r.AddError(path, buildErr.Code, buildErr.Message)
}

// AddWarnings appends plan warnings as warning-severity issues.
func (r *ValidationResult) AddWarnings(warnings []Warning) {
	for _, w := range warnings {
		r.AddWarning(w.Path(), w.Code, w.Message)
	}
}

// ToError returns nil for a valid result. Otherwise it returns a BuildError
// carrying the first error's code and node, with every issue in Details.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}

	first := r.Errors[0]
	msg := first.Message
	if len(r.Errors) > 1 {
		msg = fmt.Sprintf("%s (and %d more errors)", first.Message, len(r.Errors)-1)
	}

	return NewError(first.Code, msg).
		WithNode(first.NodeID()).
		WithDetails(map[string]any{
			"error_count":   len(r.Errors),
			"warning_count": len(r.Warnings),
			"errors":        r.Errors,
			"warnings":      r.Warnings,
		})
}
