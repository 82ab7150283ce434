package loki

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"splitfare/pkg/types"

	"github.com/cenkalti/backoff/v4"
)

func newTestClient(baseURL, username, password string) *Client {
	client := NewClient(baseURL, username, password)
	client.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return client
}

func testResult() SearchResult {
	departure := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return SearchResult{
		SearchID: "3f2a9c",
		Journey: types.Journey{
			Legs: []types.JourneyLeg{{
				Origin:           types.Station{ID: "8010085", Name: "Dresden Hbf"},
				Destination:      types.Station{ID: "8000261", Name: "München Hbf"},
				PlannedDeparture: &departure,
				Line:             &types.Line{Name: "ICE 1601", Product: "nationalExpress"},
			}},
			Price: &types.Price{Amount: 8990, Currency: "EUR"},
		},
		Params: types.SearchParams{From: "8010085", To: "8000261", Age: 30},
		State: types.SplitSearchState{
			OriginalPrice:   8990,
			CheckedStations: 3,
			TotalStations:   3,
			Splits: []types.SplitOption{
				{SplitStation: types.Station{ID: "8010205", Name: "Leipzig Hbf"}, FirstLegPrice: 2000, SecondLegPrice: 5000, TotalPrice: 7000, Savings: 1990, SavingsPercentage: 22.13},
				{SplitStation: types.Station{ID: "8010101", Name: "Erfurt Hbf"}, FirstLegPrice: 4000, SecondLegPrice: 4500, TotalPrice: 8500, Savings: 490, SavingsPercentage: 5.45},
			},
		},
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:3100", "user", "pass")

	if client == nil {
		t.Fatal("NewClient returned nil")
	}
	if client.baseURL != "http://localhost:3100" {
		t.Errorf("baseURL = %q, want %q", client.baseURL, "http://localhost:3100")
	}
	if client.username != "user" {
		t.Errorf("username = %q, want %q", client.username, "user")
	}
	if client.password != "pass" {
		t.Errorf("password = %q, want %q", client.password, "pass")
	}
}

func TestSendSearchResult_MockServer(t *testing.T) {
	var receivedBody []byte
	var receivedHeaders http.Header
	var receivedPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedPath = r.URL.Path
		receivedHeaders = r.Header
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "", "")

	if err := client.SendSearchResult(context.Background(), testResult()); err != nil {
		t.Fatalf("SendSearchResult failed: %v", err)
	}

	if receivedPath != "/loki/api/v1/push" {
		t.Errorf("Expected path /loki/api/v1/push, got %s", receivedPath)
	}
	if receivedHeaders.Get("Content-Type") != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", receivedHeaders.Get("Content-Type"))
	}
	if receivedHeaders.Get("User-Agent") != "splitfare/1.0.0" {
		t.Errorf("Expected User-Agent splitfare/1.0.0, got %s", receivedHeaders.Get("User-Agent"))
	}

	var pushReq PushRequest
	if err := json.Unmarshal(receivedBody, &pushReq); err != nil {
		t.Fatalf("Failed to parse request body: %v", err)
	}
	if len(pushReq.Streams) != 1 {
		t.Fatalf("Expected 1 stream, got %d", len(pushReq.Streams))
	}

	stream := pushReq.Streams[0]
	expectedLabels := map[string]string{
		"job":     "splitfare",
		"service": "split-search",
	}
	if len(stream.Stream) != len(expectedLabels) {
		t.Errorf("Stream labels = %v, want only %v", stream.Stream, expectedLabels)
	}
	for key, expected := range expectedLabels {
		if stream.Stream[key] != expected {
			t.Errorf("Stream label %q = %q, want %q", key, stream.Stream[key], expected)
		}
	}

	// One summary line plus one line per split
	if len(stream.Values) != 3 {
		t.Fatalf("Expected 3 log entries, got %d", len(stream.Values))
	}

	var summary map[string]interface{}
	if err := json.Unmarshal([]byte(stream.Values[0][1]), &summary); err != nil {
		t.Fatalf("Failed to parse summary line: %v", err)
	}
	expectedFields := []string{
		"kind", "search_id", "origin_id", "origin_name", "destination_id", "destination_name",
		"departure", "original_price", "currency", "checked_stations", "total_stations",
		"splits_count", "best_split_station", "best_savings",
	}
	for _, field := range expectedFields {
		if _, exists := summary[field]; !exists {
			t.Errorf("Expected field %q in summary line, not found", field)
		}
	}
	if summary["search_id"] != "3f2a9c" {
		t.Errorf("search_id = %v, want 3f2a9c", summary["search_id"])
	}
	if summary["kind"] != "summary" || summary["best_split_station"] != "Leipzig Hbf" {
		t.Errorf("Unexpected summary line: %v", summary)
	}

	var first map[string]interface{}
	if err := json.Unmarshal([]byte(stream.Values[1][1]), &first); err != nil {
		t.Fatalf("Failed to parse split line: %v", err)
	}
	if first["kind"] != "split" || first["rank"] != float64(1) || first["savings"] != float64(1990) {
		t.Errorf("Unexpected split line: %v", first)
	}

	// Timestamps strictly increase within the stream
	ts0, _ := strconv.ParseInt(stream.Values[0][0], 10, 64)
	ts1, _ := strconv.ParseInt(stream.Values[1][0], 10, 64)
	if ts1 <= ts0 {
		t.Errorf("Expected increasing timestamps, got %s then %s", stream.Values[0][0], stream.Values[1][0])
	}
}

func TestSendSearchResult_ErrorState(t *testing.T) {
	var receivedBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	result := testResult()
	result.State = types.SplitSearchState{Error: "No stopovers found in this journey", Splits: []types.SplitOption{}}

	if err := newTestClient(server.URL, "", "").SendSearchResult(context.Background(), result); err != nil {
		t.Fatalf("SendSearchResult failed: %v", err)
	}

	var pushReq PushRequest
	if err := json.Unmarshal(receivedBody, &pushReq); err != nil {
		t.Fatalf("Failed to parse request body: %v", err)
	}
	if len(pushReq.Streams[0].Values) != 1 {
		t.Fatalf("Expected only the summary line, got %d", len(pushReq.Streams[0].Values))
	}
	if !strings.Contains(pushReq.Streams[0].Values[0][1], "No stopovers found") {
		t.Errorf("Expected error in summary line, got %s", pushReq.Streams[0].Values[0][1])
	}
}

func TestSendSearchResult_WithAuthentication(t *testing.T) {
	var authHeader string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "testuser", "testpass")
	if err := client.SendSearchResult(context.Background(), testResult()); err != nil {
		t.Fatalf("SendSearchResult failed: %v", err)
	}

	if !strings.HasPrefix(authHeader, "Basic ") {
		t.Errorf("Expected Basic auth, got %q", authHeader)
	}
}

func TestSendSearchResult_NoAuthenticationWhenEmpty(t *testing.T) {
	var authHeader string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "", "")
	if err := client.SendSearchResult(context.Background(), testResult()); err != nil {
		t.Fatalf("SendSearchResult failed: %v", err)
	}

	if authHeader != "" {
		t.Errorf("Expected no Authorization header, got %q", authHeader)
	}
}

func TestSendSearchResult_Retries(t *testing.T) {
	tests := []struct {
		name         string
		statuses     []int
		expectErr    bool
		expectedHits int32
	}{
		{"success first try", []int{http.StatusNoContent}, false, 1},
		{"recovers after 5xx", []int{http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusNoContent}, false, 3},
		{"gives up after max attempts", []int{http.StatusInternalServerError}, true, MaxAttempts},
		{"rate limited is retried", []int{http.StatusTooManyRequests, http.StatusOK}, false, 2},
		{"client error is permanent", []int{http.StatusBadRequest}, true, 1},
		{"unauthorized is permanent", []int{http.StatusUnauthorized}, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&hits, 1)
				idx := int(n) - 1
				if idx >= len(tt.statuses) {
					idx = len(tt.statuses) - 1
				}
				w.WriteHeader(tt.statuses[idx])
			}))
			defer server.Close()

			err := newTestClient(server.URL, "", "").SendSearchResult(context.Background(), testResult())
			if tt.expectErr && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if got := atomic.LoadInt32(&hits); got != tt.expectedHits {
				t.Errorf("Expected %d attempts, got %d", tt.expectedHits, got)
			}
		})
	}
}

func TestSendSearchResult_ErrorIncludesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("entry out of order\n"))
	}))
	defer server.Close()

	err := newTestClient(server.URL, "", "").SendSearchResult(context.Background(), testResult())
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "entry out of order") {
		t.Errorf("Expected Loki response body in error, got %v", err)
	}
}

func TestSendSearchResult_ServerUnavailable(t *testing.T) {
	client := newTestClient("http://127.0.0.1:59999", "", "")

	if err := client.SendSearchResult(context.Background(), testResult()); err == nil {
		t.Error("Expected error when server is unavailable, got nil")
	}
}

func TestSendSearchResult_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			return
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL, "", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.SendSearchResult(ctx, testResult()); err == nil {
		t.Error("Expected error when context is cancelled, got nil")
	}
}
