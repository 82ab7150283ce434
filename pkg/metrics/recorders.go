package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// The recorders below are safe to call when metrics are disabled.

// RecordHTTPRequest records an outbound HTTP request against a named peer
func RecordHTTPRequest(ctx context.Context, peer string, statusCode int, duration time.Duration, bodySize int) {
	if !IsEnabled() {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("server.name", peer),
		attribute.Int("http.response.status_code", statusCode),
	)
	HTTPClientRequestDuration.Record(ctx, duration.Seconds(), attrs)
	if bodySize > 0 {
		HTTPClientResponseBodySize.Record(ctx, int64(bodySize), attrs)
	}
}

// RecordPlannerRequest counts a journey planner request
func RecordPlannerRequest(ctx context.Context, endpoint, status string) {
	if !IsEnabled() {
		return
	}
	PlannerRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("status", status),
	))
}

// RecordLegFetch records a leg price lookup and its outcome
func RecordLegFetch(ctx context.Context, outcome string, duration time.Duration) {
	if !IsEnabled() {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	LegFetchTotal.Add(ctx, 1, attrs)
	LegFetchDuration.Record(ctx, duration.Seconds(), attrs)
}

// SearchStarted marks a search as in flight
func SearchStarted(ctx context.Context) {
	if !IsEnabled() {
		return
	}
	SearchesInFlight.Add(ctx, 1)
}

// SearchFinished records the outcome of a search started with SearchStarted
func SearchFinished(ctx context.Context, outcome string, duration time.Duration) {
	if !IsEnabled() {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	SearchesInFlight.Add(ctx, -1)
	SearchesTotal.Add(ctx, 1, attrs)
	SearchDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCandidate counts an evaluated candidate and whether it produced a split
func RecordCandidate(ctx context.Context, profitable bool) {
	if !IsEnabled() {
		return
	}
	SearchCandidatesChecked.Add(ctx, 1)
	if profitable {
		SearchSplitsFound.Add(ctx, 1)
	}
}

// RecordParse records a parsed planner payload
func RecordParse(ctx context.Context, payloadSize, journeys int, duration time.Duration) {
	if !IsEnabled() {
		return
	}
	ParseDuration.Record(ctx, duration.Seconds())
	ParserPayloadSize.Record(ctx, int64(payloadSize))
	ParserJourneysExtracted.Add(ctx, int64(journeys))
}

// RecordCacheLookup counts a price cache lookup
func RecordCacheLookup(ctx context.Context, backend string, hit bool) {
	if !IsEnabled() {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("result", result),
	))
}

// RecordLokiSend records a Loki push
func RecordLokiSend(ctx context.Context, status string, lines int, duration time.Duration) {
	if !IsEnabled() {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	LokiSendTotal.Add(ctx, 1, attrs)
	LokiSendDuration.Record(ctx, duration.Seconds(), attrs)
	LokiBatchSize.Record(ctx, int64(lines))
}

// RecordLokiRetry counts a retried Loki push
func RecordLokiRetry(ctx context.Context) {
	if !IsEnabled() {
		return
	}
	LokiSendRetries.Add(ctx, 1)
}

// RecordNATSPublish counts a published progress message
func RecordNATSPublish(ctx context.Context, status string) {
	if !IsEnabled() {
		return
	}
	NATSPublishTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
