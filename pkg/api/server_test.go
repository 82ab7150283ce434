package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"splitfare/pkg/planner"
	"splitfare/pkg/split"
	"splitfare/pkg/types"
)

const journeyJSON = `{
	"type": "journey",
	"legs": [{
		"origin": {"type": "stop", "id": "A", "name": "Alpha"},
		"destination": {"type": "stop", "id": "C", "name": "Gamma"},
		"plannedDeparture": "2025-03-01T10:00:00+01:00",
		"plannedArrival": "2025-03-01T12:00:00+01:00",
		"line": {"type": "line", "name": "ICE 100", "product": "nationalExpress", "productName": "ICE"},
		"stopovers": [
			{"stop": {"id": "A", "name": "Alpha"}, "plannedDeparture": "2025-03-01T10:00:00+01:00"},
			{"stop": {"id": "B", "name": "Beta"}, "plannedArrival": "2025-03-01T11:00:00+01:00", "plannedDeparture": "2025-03-01T11:02:00+01:00"},
			{"stop": {"id": "D", "name": "Delta"}, "plannedArrival": "2025-03-01T11:30:00+01:00", "plannedDeparture": "2025-03-01T11:31:00+01:00"},
			{"stop": {"id": "C", "name": "Gamma"}, "plannedArrival": "2025-03-01T12:00:00+01:00"}
		]
	}],
	"price": {"amount": 5000, "currency": "EUR"}
}`

var legPrices = map[string]int{
	"A>B": 2000,
	"B>C": 2000,
	"A>D": 3000,
	"D>C": 1500,
}

type plannerRequests struct {
	mu      sync.Mutex
	queries []string
}

func newPlannerServer(t *testing.T) (*httptest.Server, *plannerRequests) {
	t.Helper()
	requests := &plannerRequests{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		requests.mu.Lock()
		requests.queries = append(requests.queries, r.URL.RawQuery)
		requests.mu.Unlock()

		key := q.Get("from") + ">" + q.Get("to")
		if key == "A>C" {
			fmt.Fprintf(w, `{"journeys": [%s]}`, journeyJSON)
			return
		}
		price, ok := legPrices[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message": "no journeys found"}`))
			return
		}
		fmt.Fprintf(w, `{"journeys": [{"legs": [{"origin": {"id": %q, "name": %q}, "destination": {"id": %q, "name": %q},
			"plannedDeparture": "2025-03-01T10:00:00+01:00", "line": {"name": "ICE", "product": "nationalExpress"}}],
			"price": {"amount": %d, "currency": "EUR"}}]}`, q.Get("from"), q.Get("from"), q.Get("to"), q.Get("to"), price)
	}))
	t.Cleanup(server.Close)
	return server, requests
}

type recordingPublisher struct {
	mu     sync.Mutex
	ids    []string
	states int
}

func (r *recordingPublisher) ForSearch(searchID string) split.Observer {
	r.mu.Lock()
	r.ids = append(r.ids, searchID)
	r.mu.Unlock()
	return split.ObserverFunc(func(types.SplitSearchState) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.states++
	})
}

func splitBody(t *testing.T) io.Reader {
	t.Helper()
	return strings.NewReader(`{"journey": ` + journeyJSON + `, "params": {"from": "A", "to": "C", "age": 30}}`)
}

func TestAPIVersion(t *testing.T) {
	server := NewServer(planner.NewClient("http://localhost:3000"))

	resp, err := server.App().Test(httptest.NewRequest(http.MethodGet, "/splitfare/version", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body["service"] != "splitfare" || body["version"] == "" {
		t.Errorf("Unexpected version body: %v", body)
	}
}

func TestGetJourneys(t *testing.T) {
	plannerServer, requests := newPlannerServer(t)
	server := NewServer(planner.NewClient(plannerServer.URL))

	req := httptest.NewRequest(http.MethodGet, "/splitfare/journeys?from=A&to=C&age=27&deutschlandTicket.discount=true&results=3&departure=2025-03-01T10:00:00%2B01:00", nil)
	resp, err := server.App().Test(req, -1)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var body types.JourneyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if len(body.Journeys) != 1 || body.Journeys[0].Price.Amount != 5000 {
		t.Errorf("Unexpected journeys: %+v", body.Journeys)
	}

	if len(requests.queries) != 1 {
		t.Fatalf("Expected 1 planner request, got %d", len(requests.queries))
	}
	for _, want := range []string{"age=27", "deutschlandTicket.discount=true", "results=3", "departure="} {
		if !strings.Contains(requests.queries[0], want) {
			t.Errorf("Expected planner query to contain %q, got %s", want, requests.queries[0])
		}
	}
}

func TestGetJourneys_Errors(t *testing.T) {
	plannerServer, _ := newPlannerServer(t)
	server := NewServer(planner.NewClient(plannerServer.URL))

	tests := []struct {
		name     string
		url      string
		expected int
	}{
		{"missing destination", "/splitfare/journeys?from=A", http.StatusBadRequest},
		{"bad departure", "/splitfare/journeys?from=A&to=C&departure=tomorrow", http.StatusBadRequest},
		{"planner not found", "/splitfare/journeys?from=X&to=Y", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := server.App().Test(httptest.NewRequest(http.MethodGet, tt.url, nil), -1)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			if resp.StatusCode != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, resp.StatusCode)
			}

			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode body: %v", err)
			}
			if body["error"] == "" {
				t.Error("Expected error message in body")
			}
		})
	}
}

func TestPostSplits(t *testing.T) {
	plannerServer, _ := newPlannerServer(t)
	publisher := &recordingPublisher{}
	server := NewServer(planner.NewClient(plannerServer.URL), WithPublisher(publisher))

	req := httptest.NewRequest(http.MethodPost, "/splitfare/splits", splitBody(t))
	req.Header.Set("Content-Type", "application/json")
	resp, err := server.App().Test(req, -1)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Search-Id") == "" {
		t.Error("Expected X-Search-Id header")
	}

	var state map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}

	if state["loading"] != false {
		t.Errorf("Expected loading=false, got %v", state["loading"])
	}
	splits, ok := state["splits"].([]interface{})
	if !ok || len(splits) != 2 {
		t.Fatalf("Expected 2 splits, got %v", state["splits"])
	}

	best := splits[0].(map[string]interface{})
	if best["savings"] != float64(1000) {
		t.Errorf("Expected best savings 1000 (split at Beta), got %v", best["savings"])
	}
	if _, ok := best["firstLegJourney"]; ok {
		t.Error("Leg journeys should only be included in detailed output")
	}

	if len(publisher.ids) != 1 || publisher.ids[0] != resp.Header.Get("X-Search-Id") {
		t.Errorf("Expected publisher to be used with the response search id, got %v", publisher.ids)
	}
	if publisher.states == 0 {
		t.Error("Expected published states")
	}
}

func TestPostSplits_Detailed(t *testing.T) {
	plannerServer, _ := newPlannerServer(t)
	server := NewServer(planner.NewClient(plannerServer.URL))

	req := httptest.NewRequest(http.MethodPost, "/splitfare/splits?detailed=true", splitBody(t))
	req.Header.Set("Content-Type", "application/json")
	resp, err := server.App().Test(req, -1)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	var state types.SplitSearchState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if len(state.Splits) == 0 {
		t.Fatal("Expected splits")
	}
	if state.Splits[0].FirstLegJourney == nil || state.Splits[0].SecondLegJourney == nil {
		t.Error("Expected leg journeys in detailed output")
	}
}

func TestPostSplits_BadRequest(t *testing.T) {
	server := NewServer(planner.NewClient("http://localhost:3000"))

	tests := []struct {
		name string
		body string
	}{
		{"not json", "journey please"},
		{"missing journey", `{"params": {"from": "A", "to": "C"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/splitfare/splits", strings.NewReader(tt.body))
			resp, err := server.App().Test(req, -1)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestPostSplits_ValidationErrorInState(t *testing.T) {
	server := NewServer(planner.NewClient("http://localhost:3000"))

	body := `{"journey": {"legs": [{"origin": {"id": "A", "name": "Alpha"}, "destination": {"id": "C", "name": "Gamma"}, "plannedDeparture": "2025-03-01T10:00:00+01:00"}]}, "params": {"from": "A", "to": "C"}}`
	req := httptest.NewRequest(http.MethodPost, "/splitfare/splits", strings.NewReader(body))
	resp, err := server.App().Test(req, -1)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var state types.SplitSearchState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if state.Error != split.ErrNoPrice {
		t.Errorf("Error = %q, want %q", state.Error, split.ErrNoPrice)
	}
}

func TestStreamSplits(t *testing.T) {
	plannerServer, _ := newPlannerServer(t)
	server := NewServer(planner.NewClient(plannerServer.URL))

	req := httptest.NewRequest(http.MethodPost, "/splitfare/splits/stream", splitBody(t))
	resp, err := server.App().Test(req, -1)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("Content-Type = %q, want application/x-ndjson", ct)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}

	var states []types.SplitSearchState
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var state types.SplitSearchState
		if err := json.Unmarshal(scanner.Bytes(), &state); err != nil {
			t.Fatalf("Failed to decode line %q: %v", scanner.Text(), err)
		}
		states = append(states, state)
	}

	// Initial state, one per candidate, final state
	if len(states) != 4 {
		t.Fatalf("Expected 4 states, got %d", len(states))
	}
	for i, state := range states[:len(states)-1] {
		if !state.Loading {
			t.Errorf("State %d: expected loading=true before the final state", i)
		}
	}
	final := states[len(states)-1]
	if final.Loading || final.CheckedStations != 2 || len(final.Splits) != 2 {
		t.Errorf("Unexpected final state: %+v", final)
	}
}

func TestStreamSplits_CancelledByShutdown(t *testing.T) {
	plannerServer, _ := newPlannerServer(t)
	server := NewServer(planner.NewClient(plannerServer.URL))
	server.stop()

	req := httptest.NewRequest(http.MethodPost, "/splitfare/splits/stream", splitBody(t))
	resp, err := server.App().Test(req, -1)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}

	var states []types.SplitSearchState
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var state types.SplitSearchState
		if err := json.Unmarshal(scanner.Bytes(), &state); err != nil {
			t.Fatalf("Failed to decode line %q: %v", scanner.Text(), err)
		}
		states = append(states, state)
	}

	// Initial state, then the cancelled final state before any candidate
	if len(states) != 2 {
		t.Fatalf("Expected 2 states, got %d", len(states))
	}
	final := states[1]
	if final.Loading || final.Error != split.ErrCancelled || final.CheckedStations != 0 {
		t.Errorf("Unexpected final state: %+v", final)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := NewServer(planner.NewClient("http://localhost:3000"))

	if _, err := server.App().Test(httptest.NewRequest(http.MethodGet, "/splitfare/version", nil)); err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	resp, err := server.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `splitfare_http_requests_total{method="GET",route="/splitfare/version",status="200"} 1`) {
		t.Errorf("Expected request counter for /splitfare/version, got:\n%s", body)
	}
}
