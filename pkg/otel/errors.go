package otel

import (
	"context"
	"encoding/json"
	"errors"
	"net"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Error type constants for structured error recording
const (
	ErrorTypeNetwork    = "network"
	ErrorTypeHTTP       = "http"
	ErrorTypeParse      = "parse"
	ErrorTypeValidation = "validation"
	ErrorTypeTimeout    = "timeout"
	ErrorTypeCancelled  = "cancelled"
)

// RecordError records an error on a span with structured attributes and sets the span status to Error.
func RecordError(span trace.Span, err error, errorType string, transient bool) {
	span.RecordError(err, trace.WithAttributes(
		attribute.String("error.type", errorType),
		attribute.Bool("error.transient", transient),
	))
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOk sets the span status to Ok
func SetSpanOk(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// ClassifyError maps an error to an error type and whether retrying could help
func ClassifyError(err error) (string, bool) {
	var netErr net.Error
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError

	switch {
	case errors.Is(err, context.Canceled):
		return ErrorTypeCancelled, false
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout, true
	case errors.As(err, &netErr):
		return ErrorTypeNetwork, true
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return ErrorTypeParse, false
	default:
		return ErrorTypeNetwork, true
	}
}
