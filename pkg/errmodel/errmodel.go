// Package errmodel is the compact error shape shared by actions, policies,
// the pool and the HTTP surface. Every error has a category and a code;
// the category says which layer failed and the code says how.
package errmodel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Category values for compact errors.
const (
	CategoryValidation  = "validation"
	CategoryTool        = "tool"
	CategoryNetwork     = "network"
	CategoryModel       = "model"
	CategoryPolicy      = "policy"
	CategorySystem      = "system"
	CategoryPersistence = "persistence"
)

// Codes used across the agent core.
const (
	CodeMissingArgument       = "missing_argument"
	CodeMissingBeliefArgument = "missing_belief_argument"
	CodeInvalidInput          = "invalid_input"
	CodeExecutionFailed       = "execution_failed"
	CodeInvalidSelection      = "invalid_selection"
	CodeParseError            = "parse_error"
	CodeDuplicateName         = "duplicate_name"
	CodeQuotaExceeded         = "quota_exceeded"
	CodeNotFound              = "not_found"
	CodeCorruptRecord         = "corrupt_record"

	// Upstream provider failures. The run-loop surfaces these as the final answer.
	CodeAuthentication = "authentication"
	CodeConnection     = "connection"
	CodeTimeout        = "timeout"
	CodeRateLimit      = "rate_limit"
	CodeInvalidRequest = "invalid_request"
)

const (
	maxMessage      = 512
	maxContextValue = 256
)

// Error is the compact error payload returned by APIs and used internally.
// It implements the error interface.
type Error struct {
	Category string         `json:"category"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Context  map[string]any `json:"context,omitempty"`
	Causes   []Error        `json:"causes,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Unwrap exposes the first non-compact cause so errors.Is keeps working
// for sentinel values such as context.Canceled.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// New constructs a new compact error.
func New(category, code, message string, ctx map[string]any, causes ...error) *Error {
	ce := &Error{Category: category, Code: code, Message: clip(message, maxMessage)}
	if len(ctx) > 0 {
		ce.Context = clipContext(ctx)
	}
	for _, c := range causes {
		if c == nil {
			continue
		}
		if ce.cause == nil {
			ce.cause = c
		}
		ce.Causes = append(ce.Causes, *From(c))
	}
	return ce
}

// From converts any error into a compact Error. If err is already *Error, it's returned as-is.
func From(err error) *Error {
	var ce *Error
	if err == nil {
		return nil
	}
	if errors.As(err, &ce) {
		return ce
	}
	// Default to system/internal for unknown error types.
	return &Error{Category: CategorySystem, Code: "internal", Message: clip(err.Error(), maxMessage), cause: err}
}

// Convenience constructors.
func Validation(code, message string, ctx map[string]any) *Error {
	return New(CategoryValidation, code, message, ctx)
}

func Policy(code, message string, ctx map[string]any) *Error {
	return New(CategoryPolicy, code, message, ctx)
}

func System(code, message string, ctx map[string]any, cause error) *Error {
	if cause != nil {
		return New(CategorySystem, code, message, ctx, cause)
	}
	return New(CategorySystem, code, message, ctx)
}

// Tool wraps an error raised by an action body.
func Tool(message string, ctx map[string]any, cause error) *Error {
	return New(CategoryTool, CodeExecutionFailed, message, ctx, cause)
}

// Persistence wraps a durable store failure.
func Persistence(code, message string, ctx map[string]any, cause error) *Error {
	return New(CategoryPersistence, code, message, ctx, cause)
}

// Upstream builds a model/network error for a provider failure. Connection and
// timeout failures are network errors; everything else belongs to the model.
func Upstream(code, message string, ctx map[string]any, cause error) *Error {
	cat := CategoryModel
	if code == CodeConnection || code == CodeTimeout {
		cat = CategoryNetwork
	}
	return New(cat, code, message, ctx, cause)
}

// IsPolicy reports whether err is a policy resolution failure (unknown action,
// unparsable model output).
func IsPolicy(err error) bool {
	return IsCategory(err, CategoryPolicy)
}

// IsValidation reports whether err is an argument validation failure.
func IsValidation(err error) bool {
	return IsCategory(err, CategoryValidation)
}

// IsUpstream reports whether err is one of the provider failures that should end
// the current task instead of being retried by the run-loop.
func IsUpstream(err error) bool {
	if err == nil {
		return false
	}
	var ce *Error
	if !errors.As(err, &ce) {
		return errors.Is(err, context.DeadlineExceeded)
	}
	if ce.Category != CategoryModel && ce.Category != CategoryNetwork {
		return false
	}
	switch ce.Code {
	case CodeAuthentication, CodeConnection, CodeTimeout, CodeRateLimit, CodeInvalidRequest:
		return true
	}
	return false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Code == code
}

// Observation renders a failed action call the way it is fed back to the model.
func Observation(err error, args map[string]any) string {
	typ := fmt.Sprintf("%T", err)
	msg := err.Error()
	if ce := From(err); ce != nil {
		typ = ce.Category + "/" + ce.Code
		msg = ce.Message
	}
	b, _ := json.Marshal(args)
	if args == nil {
		b = []byte("{}")
	}
	return fmt.Sprintf("Error: %s, %s, args: %s", msg, typ, b)
}

// clip shortens s to at most n bytes without splitting a rune, marking the
// cut with "...".
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// clipContext keeps context values small enough to log and send back to a
// model. Non-string values are flattened to JSON.
func clipContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		if s, ok := v.(string); ok {
			out[k] = clip(s, maxContextValue)
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			out[k] = v
			continue
		}
		out[k] = clip(string(b), maxContextValue)
	}
	return out
}

// IsCategory checks if err belongs to a specific category.
func IsCategory(err error, category string) bool {
	ce := From(err)
	return ce != nil && strings.EqualFold(ce.Category, category)
}
