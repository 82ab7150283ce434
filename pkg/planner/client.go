package planner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"splitfare/pkg/config"
	"splitfare/pkg/eligibility"
	"splitfare/pkg/metrics"
	splitotel "splitfare/pkg/otel"
	"splitfare/pkg/parser"
	"splitfare/pkg/pricecache"
	"splitfare/pkg/types"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// APIError is a non-2xx answer or an error body from the planner
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("planner API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("planner API returned status %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	httpClient   *http.Client
	baseURL      string
	userAgent    string
	fetchTimeout time.Duration
	parser       *parser.JourneyParser
	evaluator    *eligibility.Evaluator
	cache        pricecache.Cache
	tracer       trace.Tracer
}

type Option func(*Client)

// WithCache enables leg price caching
func WithCache(cache pricecache.Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithEvaluator replaces the default flat-rate evaluator
func WithEvaluator(evaluator *eligibility.Evaluator) Option {
	return func(c *Client) {
		c.evaluator = evaluator
	}
}

// WithFetchTimeout bounds each leg price lookup
func WithFetchTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.fetchTimeout = timeout
		}
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	// Create HTTP client with OpenTelemetry instrumentation
	httpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   30 * time.Second,
	}

	if baseURL == "" {
		baseURL = config.DefaultPlannerURL
	}

	c := &Client{
		httpClient:   httpClient,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		userAgent:    config.DefaultUserAgent,
		fetchTimeout: config.DefaultFetchTimeout,
		parser:       parser.NewJourneyParser(),
		evaluator:    eligibility.Default(),
		tracer:       otel.Tracer("planner-client"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// JourneyQuery is a journeys search. Results <= 0 leaves the planner default.
type JourneyQuery struct {
	Params  types.SearchParams
	Results int
}

// QueryJourneys runs a journeys search with stopovers and tickets enabled
func (c *Client) QueryJourneys(ctx context.Context, q JourneyQuery) (*types.JourneyResponse, error) {
	ctx, span := c.tracer.Start(ctx, "planner.query_journeys",
		trace.WithAttributes(
			attribute.String("from", q.Params.From),
			attribute.String("to", q.Params.To),
			attribute.Int("results", q.Results),
		),
	)
	defer span.End()

	if q.Params.From == "" || q.Params.To == "" {
		err := errors.New("from and to are required")
		splitotel.RecordError(span, err, splitotel.ErrorTypeValidation, false)
		return nil, err
	}

	response, err := c.getJourneys(ctx, "journeys", buildQuery(q.Params.From, q.Params.To, q.Params.Departure, q.Params, q.Results))
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("journeys_count", len(response.Journeys)))
	splitotel.SetSpanOk(span)

	return response, nil
}

// FetchLegPrice looks up the price of the first journey between two stations.
// Any failure yields the zero LegPrice; callers treat it as "no data".
func (c *Client) FetchLegPrice(ctx context.Context, fromID, toID string, departure time.Time, params types.SearchParams) LegPrice {
	ctx, span := c.tracer.Start(ctx, "planner.fetch_leg_price",
		trace.WithAttributes(
			attribute.String("from", fromID),
			attribute.String("to", toID),
			attribute.String("departure", departure.Format(time.RFC3339)),
			attribute.Bool("flat_rate_pass", params.FlatRatePass),
		),
	)
	defer span.End()

	start := time.Now()

	key := pricecache.Key(fromID, toID, departure, params)
	if c.cache != nil {
		entry, hit := c.cache.Get(ctx, key)
		metrics.RecordCacheLookup(ctx, c.cache.Backend(), hit)
		if hit {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			metrics.RecordLegFetch(ctx, "cached", time.Since(start))
			price := entry.Price
			return LegPrice{Price: &price, Journey: entry.Journey}
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	response, err := c.getJourneys(fetchCtx, "leg", buildQuery(fromID, toID, &departure, params, 1))
	if err != nil {
		slog.Debug("Leg price lookup failed", "from", fromID, "to", toID, "error", err)
		metrics.RecordLegFetch(ctx, "error", time.Since(start))
		return LegPrice{}
	}

	if len(response.Journeys) == 0 {
		slog.Debug("No journey found for leg", "from", fromID, "to", toID)
		metrics.RecordLegFetch(ctx, "no_journey", time.Since(start))
		return LegPrice{}
	}

	journey := response.Journeys[0]

	var price int64
	outcome := "priced"
	switch {
	case params.FlatRatePass && c.evaluator.IsJourneyFullyEligible(journey.Legs):
		price = 0
		outcome = "flat_rate"
	case !journey.Price.Known() || journey.Price.Amount < 0:
		slog.Debug("Leg has no price", "from", fromID, "to", toID)
		metrics.RecordLegFetch(ctx, "no_price", time.Since(start))
		return LegPrice{}
	default:
		price = journey.Price.Amount
	}

	span.SetAttributes(
		attribute.Int64("price", price),
		attribute.String("outcome", outcome),
	)
	splitotel.SetSpanOk(span)
	metrics.RecordLegFetch(ctx, outcome, time.Since(start))

	if c.cache != nil {
		c.cache.Set(ctx, key, pricecache.Entry{Price: price, Journey: &journey})
	}

	return LegPrice{Price: &price, Journey: &journey}
}

func (c *Client) getJourneys(ctx context.Context, endpoint string, query url.Values) (*types.JourneyResponse, error) {
	ctx, span := c.tracer.Start(ctx, "planner.get_journeys",
		trace.WithAttributes(
			attribute.String("api.endpoint", c.baseURL),
		),
	)
	defer span.End()

	reqURL := c.baseURL + "/journeys?" + query.Encode()

	span.SetAttributes(
		attribute.String("http.url", reqURL),
		attribute.String("http.method", "GET"),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		splitotel.RecordError(span, err, splitotel.ErrorTypeValidation, false)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		errorType, transient := splitotel.ClassifyError(err)
		splitotel.RecordError(span, err, errorType, transient)
		metrics.RecordPlannerRequest(ctx, endpoint, errorType)
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorType, transient := splitotel.ClassifyError(err)
		splitotel.RecordError(span, err, errorType, transient)
		metrics.RecordPlannerRequest(ctx, endpoint, errorType)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	span.SetAttributes(
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.Int("response.size_bytes", len(body)),
	)
	metrics.RecordHTTPRequest(ctx, "planner", resp.StatusCode, time.Since(start), len(body))
	metrics.RecordPlannerRequest(ctx, endpoint, strconv.Itoa(resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := &APIError{StatusCode: resp.StatusCode, Message: parser.ErrorMessage(body)}
		splitotel.RecordError(span, err, splitotel.ErrorTypeHTTP, resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests)
		return nil, err
	}

	response, err := c.parser.ParseJourneys(ctx, body)
	if err != nil {
		var envelope *parser.EnvelopeError
		if errors.As(err, &envelope) {
			apiErr := &APIError{StatusCode: resp.StatusCode, Message: envelope.Message}
			splitotel.RecordError(span, apiErr, splitotel.ErrorTypeHTTP, false)
			return nil, apiErr
		}
		splitotel.RecordError(span, err, splitotel.ErrorTypeParse, false)
		return nil, err
	}

	return response, nil
}

// buildQuery carries the fare-relevant parameters of the original search
func buildQuery(from, to string, departure *time.Time, params types.SearchParams, results int) url.Values {
	query := url.Values{}
	query.Set("from", from)
	query.Set("to", to)
	if departure != nil && !departure.IsZero() {
		query.Set("departure", departure.Format(time.RFC3339))
	}
	if results > 0 {
		query.Set("results", strconv.Itoa(results))
	}
	query.Set("stopovers", "true")
	query.Set("tickets", "true")

	if params.Age > 0 {
		query.Set("age", strconv.Itoa(params.Age))
	}
	if params.FlatRatePass {
		query.Set("deutschlandTicket.discount", "true")
	}
	if params.FirstClass {
		query.Set("firstClass", "true")
	}
	if params.LoyaltyCard != "" {
		query.Set("loyaltyCard", params.LoyaltyCard)
	}

	return query
}
