package metrics

import (
	"go.opentelemetry.io/otel/metric"
)

// HTTP Client Metrics (OTEL Semantic Conventions)
var (
	// HTTPClientRequestDuration measures the duration of HTTP client requests
	HTTPClientRequestDuration metric.Float64Histogram

	// HTTPClientResponseBodySize measures the size of HTTP response bodies
	HTTPClientResponseBodySize metric.Int64Histogram
)

// Split Search Metrics
var (
	// SearchesTotal counts split searches by outcome
	SearchesTotal metric.Int64Counter

	// SearchDuration measures the duration of a whole split search
	SearchDuration metric.Float64Histogram

	// SearchesInFlight tracks concurrently running searches
	SearchesInFlight metric.Int64UpDownCounter

	// SearchCandidatesChecked counts candidate stations evaluated
	SearchCandidatesChecked metric.Int64Counter

	// SearchSplitsFound counts profitable split options
	SearchSplitsFound metric.Int64Counter
)

// Leg Price Metrics
var (
	// LegFetchDuration measures the duration of leg price lookups
	LegFetchDuration metric.Float64Histogram

	// LegFetchTotal counts leg price lookups by outcome
	LegFetchTotal metric.Int64Counter
)

// Planner API Metrics
var (
	// PlannerRequestsTotal counts requests to the journey planner by endpoint and status
	PlannerRequestsTotal metric.Int64Counter
)

// Parser Metrics
var (
	// ParseDuration measures journey payload parsing duration
	ParseDuration metric.Float64Histogram

	// ParserJourneysExtracted counts journeys decoded from planner payloads
	ParserJourneysExtracted metric.Int64Counter

	// ParserPayloadSize measures the size of planner payloads being parsed
	ParserPayloadSize metric.Int64Histogram
)

// Cache Metrics
var (
	// CacheLookupsTotal counts price cache lookups by backend and result
	CacheLookupsTotal metric.Int64Counter
)

// Loki Metrics
var (
	// LokiBatchSize measures the number of log lines per push
	LokiBatchSize metric.Int64Histogram

	// LokiSendDuration measures the duration of Loki push operations
	LokiSendDuration metric.Float64Histogram

	// LokiSendTotal counts total Loki sends by status
	LokiSendTotal metric.Int64Counter

	// LokiSendRetries counts retry attempts
	LokiSendRetries metric.Int64Counter
)

// NATS Metrics
var (
	// NATSPublishTotal counts progress messages published by status
	NATSPublishTotal metric.Int64Counter
)

// initializeInstruments creates all metric instruments
func initializeInstruments() error {
	var err error

	// HTTP Client Metrics - following OTEL semantic conventions
	HTTPClientRequestDuration, err = Meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("Duration of HTTP client requests"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1.0, 2.5, 5.0, 7.5, 10.0),
	)
	if err != nil {
		return err
	}

	HTTPClientResponseBodySize, err = Meter.Int64Histogram(
		"http.client.response.body.size",
		metric.WithDescription("Size of HTTP response bodies"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(1024, 10240, 102400, 1048576, 10485760), // 1KB to 10MB
	)
	if err != nil {
		return err
	}

	// Split Search Metrics
	SearchesTotal, err = Meter.Int64Counter(
		"split.searches.total",
		metric.WithDescription("Total split searches by outcome"),
		metric.WithUnit("{search}"),
	)
	if err != nil {
		return err
	}

	SearchDuration, err = Meter.Float64Histogram(
		"split.search.duration",
		metric.WithDescription("Duration of split searches"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0, 300.0),
	)
	if err != nil {
		return err
	}

	SearchesInFlight, err = Meter.Int64UpDownCounter(
		"split.searches.in_flight",
		metric.WithDescription("Number of split searches currently running"),
		metric.WithUnit("{search}"),
	)
	if err != nil {
		return err
	}

	SearchCandidatesChecked, err = Meter.Int64Counter(
		"split.candidates.checked",
		metric.WithDescription("Candidate split stations evaluated"),
		metric.WithUnit("{station}"),
	)
	if err != nil {
		return err
	}

	SearchSplitsFound, err = Meter.Int64Counter(
		"split.options.found",
		metric.WithDescription("Profitable split options found"),
		metric.WithUnit("{split}"),
	)
	if err != nil {
		return err
	}

	// Leg Price Metrics
	LegFetchDuration, err = Meter.Float64Histogram(
		"leg.fetch.duration",
		metric.WithDescription("Duration of leg price lookups"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 15.0),
	)
	if err != nil {
		return err
	}

	LegFetchTotal, err = Meter.Int64Counter(
		"leg.fetch.total",
		metric.WithDescription("Leg price lookups by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	// Planner API Metrics
	PlannerRequestsTotal, err = Meter.Int64Counter(
		"planner.api.requests.total",
		metric.WithDescription("Total journey planner API requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	// Parser Metrics
	ParseDuration, err = Meter.Float64Histogram(
		"journey.parse.duration",
		metric.WithDescription("Duration of journey payload parsing"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5),
	)
	if err != nil {
		return err
	}

	ParserJourneysExtracted, err = Meter.Int64Counter(
		"parser.journeys.extracted",
		metric.WithDescription("Journeys decoded from planner payloads"),
		metric.WithUnit("{journey}"),
	)
	if err != nil {
		return err
	}

	ParserPayloadSize, err = Meter.Int64Histogram(
		"parser.payload.size",
		metric.WithDescription("Size of planner payloads being parsed"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(1024, 10240, 102400, 1048576, 10485760), // 1KB to 10MB
	)
	if err != nil {
		return err
	}

	// Cache Metrics
	CacheLookupsTotal, err = Meter.Int64Counter(
		"price_cache.lookups.total",
		metric.WithDescription("Price cache lookups by backend and result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return err
	}

	// Loki Metrics
	LokiBatchSize, err = Meter.Int64Histogram(
		"loki.batch.size",
		metric.WithDescription("Number of log lines per push"),
		metric.WithUnit("{record}"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250),
	)
	if err != nil {
		return err
	}

	LokiSendDuration, err = Meter.Float64Histogram(
		"loki.send.duration",
		metric.WithDescription("Duration of Loki push operations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return err
	}

	LokiSendTotal, err = Meter.Int64Counter(
		"loki.send.total",
		metric.WithDescription("Total Loki sends by status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	LokiSendRetries, err = Meter.Int64Counter(
		"loki.send.retries",
		metric.WithDescription("Retry attempts for Loki sends"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return err
	}

	// NATS Metrics
	NATSPublishTotal, err = Meter.Int64Counter(
		"nats.publish.total",
		metric.WithDescription("Progress messages published by status"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	return nil
}
