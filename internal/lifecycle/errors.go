package lifecycle

import (
	"fmt"
	"strings"
)

type Code string

const (
	CodeNotFound         Code = "not_found"
	CodeInvalid          Code = "invalid"
	CodeTransitionDenied Code = "transition_denied"
	CodeDeleteVetoed     Code = "delete_vetoed"
)

// Error is a user-facing outcome of an operation. Permission denials are
// always reported as CodeNotFound so that existence does not leak.
type Error struct {
	Code    Code
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, field+": "+msg)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(parts, ", "))
}

// Is matches any *Error with the same code, so callers can test against the
// exported sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrNotFound         = &Error{Code: CodeNotFound}
	ErrInvalid          = &Error{Code: CodeInvalid}
	ErrTransitionDenied = &Error{Code: CodeTransitionDenied}
	ErrDeleteVetoed     = &Error{Code: CodeDeleteVetoed}
)

func notFound(label string) *Error {
	return &Error{Code: CodeNotFound, Message: label + " not found"}
}

func invalid(fields map[string]string) *Error {
	return &Error{Code: CodeInvalid, Message: "the submitted data is invalid", Fields: fields}
}

// ConfigError reports a misconfigured kind or engine. It is never turned
// into a user outcome.
type ConfigError struct {
	Kind string
	Msg  string
}

func (e *ConfigError) Error() string {
	if e.Kind == "" {
		return "lifecycle configuration: " + e.Msg
	}
	return fmt.Sprintf("lifecycle configuration of %s: %s", e.Kind, e.Msg)
}
