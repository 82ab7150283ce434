package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"splitfare/pkg/metrics"
	splitotel "splitfare/pkg/otel"
	"splitfare/pkg/types"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MaxAttempts is the number of push attempts before giving up
const MaxAttempts = 3

type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	userAgent  string
	tracer     trace.Tracer
	newBackOff func() backoff.BackOff
}

type PushRequest struct {
	Streams []Stream `json:"streams"`
}

type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

// SearchResult is everything shipped for one finished split search
type SearchResult struct {
	SearchID string
	Journey  types.Journey
	Params   types.SearchParams
	State    types.SplitSearchState
	// FlatRateEligible marks a journey fully covered by the flat-rate pass
	FlatRateEligible bool
}

func NewClient(baseURL, username, password string) *Client {
	client := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   30 * time.Second,
	}

	return &Client{
		httpClient: client,
		baseURL:    baseURL,
		username:   username,
		password:   password,
		userAgent:  "splitfare/1.0.0",
		tracer:     otel.Tracer("loki-client"),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
	}
}

// SendSearchResult pushes one summary line and one line per split option
func (c *Client) SendSearchResult(ctx context.Context, result SearchResult) error {
	ctx, span := c.tracer.Start(ctx, "loki.send_search_result",
		trace.WithAttributes(
			attribute.String("search_id", result.SearchID),
			attribute.Int("splits_count", len(result.State.Splits)),
		),
	)
	defer span.End()

	logValues, err := buildLogValues(result, time.Now())
	if err != nil {
		splitotel.RecordError(span, err, splitotel.ErrorTypeValidation, false)
		return err
	}

	lokiReq := PushRequest{
		Streams: []Stream{
			{
				Stream: map[string]string{
					"job":     "splitfare",
					"service": "split-search",
				},
				Values: logValues,
			},
		},
	}

	reqBody, err := json.Marshal(lokiReq)
	if err != nil {
		splitotel.RecordError(span, err, splitotel.ErrorTypeValidation, false)
		return fmt.Errorf("failed to marshal Loki request: %w", err)
	}

	url := fmt.Sprintf("%s/loki/api/v1/push", c.baseURL)
	span.SetAttributes(
		attribute.String("http.url", url),
		attribute.String("http.method", "POST"),
		attribute.Int("request.size_bytes", len(reqBody)),
		attribute.Int("log_lines_count", len(logValues)),
		attribute.Bool("auth.enabled", c.username != "" && c.password != ""),
	)

	start := time.Now()
	attempts := 0
	operation := func() error {
		attempts++
		if attempts > 1 {
			metrics.RecordLokiRetry(ctx)
		}
		return c.push(ctx, url, reqBody)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), MaxAttempts-1), ctx)
	err = backoff.Retry(operation, b)
	span.SetAttributes(attribute.Int("push.attempts", attempts))
	if err != nil {
		errType, transient := splitotel.ClassifyError(err)
		var pErr *pushError
		if errors.As(err, &pErr) {
			errType = splitotel.ErrorTypeHTTP
		}
		splitotel.RecordError(span, err, errType, transient)
		metrics.RecordLokiSend(ctx, "error", len(logValues), time.Since(start))
		return fmt.Errorf("failed to push to Loki after %d attempts: %w", attempts, err)
	}

	metrics.RecordLokiSend(ctx, "ok", len(logValues), time.Since(start))
	splitotel.SetSpanOk(span)
	return nil
}

type pushError struct {
	StatusCode int
	Body       string
}

func (e *pushError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("Loki returned status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("Loki returned status %d", e.StatusCode)
}

func (c *Client) push(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	pErr := &pushError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}

	// Client errors other than rate limiting will not succeed on retry
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return backoff.Permanent(pErr)
	}
	return pErr
}

func buildLogValues(result SearchResult, now time.Time) ([][]string, error) {
	currency := "EUR"
	if result.Journey.Price != nil && result.Journey.Price.Currency != "" {
		currency = result.Journey.Price.Currency
	}

	origin := result.Journey.Origin()
	destination := result.Journey.Destination()

	summary := map[string]interface{}{
		"kind":               "summary",
		"search_id":          result.SearchID,
		"origin_id":          origin.ID,
		"origin_name":        origin.Name,
		"destination_id":     destination.ID,
		"destination_name":   destination.Name,
		"original_price":     result.State.OriginalPrice,
		"currency":           currency,
		"flat_rate_eligible": result.FlatRateEligible,
		"checked_stations":   result.State.CheckedStations,
		"total_stations":     result.State.TotalStations,
		"splits_count":       len(result.State.Splits),
		"age":                result.Params.Age,
		"first_class":        result.Params.FirstClass,
		"loyalty_card":       result.Params.LoyaltyCard,
	}
	if departure, ok := result.Journey.DepartureTime(); ok {
		summary["departure"] = departure.Format(time.RFC3339)
	}
	if result.State.Error != "" {
		summary["error"] = result.State.Error
	}
	if best, ok := result.State.Best(); ok {
		summary["best_split_station"] = best.SplitStation.Name
		summary["best_savings"] = best.Savings
	}

	lines := []map[string]interface{}{summary}
	for i, option := range result.State.Splits {
		lines = append(lines, map[string]interface{}{
			"kind":               "split",
			"search_id":          result.SearchID,
			"rank":               i + 1,
			"split_station_id":   option.SplitStation.ID,
			"split_station_name": option.SplitStation.Name,
			"first_leg_price":    option.FirstLegPrice,
			"second_leg_price":   option.SecondLegPrice,
			"total_price":        option.TotalPrice,
			"savings":            option.Savings,
			"savings_percentage": option.SavingsPercentage,
			"currency":           currency,
		})
	}

	// Loki orders entries of a stream by timestamp, so each line gets its own
	values := make([][]string, 0, len(lines))
	base := now.UnixNano()
	for i, line := range lines {
		lineJSON, err := json.Marshal(line)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal log line: %w", err)
		}
		values = append(values, []string{
			strconv.FormatInt(base+int64(i), 10),
			string(lineJSON),
		})
	}

	return values, nil
}
