// Package apperr defines the error taxonomy shared by the template engine.
// Every error carries one of the sentinel kinds so callers can branch with
// errors.Is regardless of how deeply it was wrapped.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrValidation marks bad template structure, disallowed variables or
	// non-dense ordering. Nothing is persisted when it is returned.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing template or lead.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks an optimistic concurrency mismatch.
	ErrConflict = errors.New("conflict")
	// ErrForbidden marks an operation that is never allowed, such as deleting a system template.
	ErrForbidden = errors.New("forbidden")
	// ErrResolution marks an unauthorized or malformed variable token at render time.
	ErrResolution = errors.New("resolution error")
	// ErrExternalCapability marks a language-model provider timeout or failure.
	ErrExternalCapability = errors.New("external capability error")
)

// Issue pinpoints one offending field, block or token.
type Issue struct {
	Field   string `json:"field,omitempty"`
	Block   string `json:"block,omitempty"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	var b strings.Builder
	if i.Field != "" {
		b.WriteString(i.Field)
	}
	if i.Block != "" {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString("block=" + i.Block)
	}
	if i.Token != "" {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString("token=" + i.Token)
	}
	if b.Len() > 0 {
		b.WriteString(": ")
	}
	b.WriteString(i.Message)
	return b.String()
}

// Error is the structured error returned across package boundaries.
type Error struct {
	Kind   error
	Op     string
	Msg    string
	Issues []Issue
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Msg != "" {
		b.WriteString(e.Msg)
	} else if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	for i, issue := range e.Issues {
		if i == 0 {
			b.WriteString(" (")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(issue.String())
		if i == len(e.Issues)-1 {
			b.WriteString(")")
		}
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Validation builds an ErrValidation error listing every issue found.
func Validation(op string, issues ...Issue) *Error {
	return &Error{Kind: ErrValidation, Op: op, Msg: "validation failed", Issues: issues}
}

// NotFound builds an ErrNotFound error for the named entity.
func NotFound(op, entity, id string) *Error {
	return &Error{Kind: ErrNotFound, Op: op, Msg: fmt.Sprintf("%s %q not found", entity, id)}
}

// Conflict reports a version mismatch between what the caller read and what is stored.
func Conflict(op, id string, expected, actual int) *Error {
	return &Error{
		Kind: ErrConflict,
		Op:   op,
		Msg:  fmt.Sprintf("template %q was modified: expected version %d, current version %d", id, expected, actual),
	}
}

// Forbidden builds an ErrForbidden error.
func Forbidden(op, msg string) *Error {
	return &Error{Kind: ErrForbidden, Op: op, Msg: msg}
}

// Resolution builds an ErrResolution error naming the block and token at fault.
func Resolution(op, block, token, msg string) *Error {
	return &Error{
		Kind:   ErrResolution,
		Op:     op,
		Msg:    "variable resolution failed",
		Issues: []Issue{{Block: block, Token: token, Message: msg}},
	}
}

// External wraps a provider failure as ErrExternalCapability.
func External(op string, err error) *Error {
	return &Error{Kind: ErrExternalCapability, Op: op, Msg: "language model unavailable", Err: err}
}

// IssuesOf returns the issues attached to err, if any.
func IssuesOf(err error) []Issue {
	var e *Error
	if errors.As(err, &e) {
		return e.Issues
	}
	return nil
}

// HTTPStatus maps an error to the status code handlers should return.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrResolution):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrExternalCapability):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
