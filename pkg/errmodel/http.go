package errmodel

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// codeStatus overrides the per-category status for codes that map to a more
// specific one.
var codeStatus = map[string]int{
	CodeNotFound:       http.StatusNotFound,
	CodeDuplicateName:  http.StatusConflict,
	CodeQuotaExceeded:  http.StatusTooManyRequests,
	CodeAuthentication: http.StatusBadGateway,
	CodeRateLimit:      http.StatusServiceUnavailable,
	CodeTimeout:        http.StatusGatewayTimeout,
}

var categoryStatus = map[string]int{
	CategoryValidation:  http.StatusBadRequest,
	CategoryPolicy:      http.StatusUnprocessableEntity,
	CategoryTool:        http.StatusBadGateway,
	CategoryModel:       http.StatusBadGateway,
	CategoryNetwork:     http.StatusBadGateway,
	CategoryPersistence: http.StatusInternalServerError,
	CategorySystem:      http.StatusInternalServerError,
}

// HTTPStatus picks the response status for e.
func HTTPStatus(e *Error) int {
	if e == nil {
		return http.StatusInternalServerError
	}
	if s, ok := codeStatus[e.Code]; ok {
		return s
	}
	if s, ok := categoryStatus[e.Category]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// WriteHTTP writes {"error": ..., "trace_id": ...}. trace_id is empty
// when the request carries no sampled span.
func WriteHTTP(w http.ResponseWriter, r *http.Request, err error) {
	ce := From(err)
	if ce == nil {
		ce = &Error{Category: CategorySystem, Code: "internal", Message: "unknown error"}
	}
	var traceID string
	if r != nil {
		if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(ce))
	_ = json.NewEncoder(w).Encode(struct {
		Error   *Error `json:"error"`
		TraceID string `json:"trace_id"`
	}{ce, traceID})
}
