package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"splitfare/pkg/metrics"
	"splitfare/pkg/types"

	"github.com/clbanning/mxj/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// EnvelopeError is returned when the planner answers 2xx with an error body
// instead of a journeys payload.
type EnvelopeError struct {
	Message string
}

func (e *EnvelopeError) Error() string {
	return fmt.Sprintf("planner returned an error: %s", e.Message)
}

// envelopeKeys are the message fields used by hafas-rest-api style error bodies
var envelopeKeys = []string{"message", "msg", "error"}

type JourneyParser struct {
	tracer trace.Tracer
}

func NewJourneyParser() *JourneyParser {
	return &JourneyParser{
		tracer: otel.Tracer("journey-parser"),
	}
}

// ParseJourneys decodes a journeys response body
func (p *JourneyParser) ParseJourneys(ctx context.Context, body []byte) (*types.JourneyResponse, error) {
	ctx, span := p.tracer.Start(ctx, "journey_parser.parse_journeys",
		trace.WithAttributes(
			attribute.Int("payload_size_bytes", len(body)),
		),
	)
	defer span.End()

	start := time.Now()

	raw, err := mxj.NewMapJson(body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to parse journeys payload: %w", err)
	}

	journeyValues, _ := raw.ValuesForPath("journeys")
	if len(journeyValues) == 0 {
		if msg := envelopeMessage(raw); msg != "" {
			err := &EnvelopeError{Message: msg}
			span.RecordError(err)
			return nil, err
		}
	}

	var response types.JourneyResponse
	if err := json.Unmarshal(body, &response); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to decode journeys: %w", err)
	}

	span.SetAttributes(
		attribute.Int("journeys_count", len(response.Journeys)),
		attribute.Int("raw_journeys_count", len(journeyValues)),
	)
	metrics.RecordParse(ctx, len(body), len(response.Journeys), time.Since(start))

	return &response, nil
}

// ErrorMessage extracts a human readable message from an error response body.
// Falls back to the trimmed body when it is not a recognised envelope.
func ErrorMessage(body []byte) string {
	if raw, err := mxj.NewMapJson(body); err == nil {
		if msg := envelopeMessage(raw); msg != "" {
			return msg
		}
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return msg
}

func envelopeMessage(raw mxj.Map) string {
	for _, key := range envelopeKeys {
		value, err := raw.ValueForPath(key)
		if err != nil {
			continue
		}
		if msg, ok := value.(string); ok && msg != "" {
			return msg
		}
	}
	return ""
}
