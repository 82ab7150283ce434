package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	splitotel "splitfare/pkg/otel"
	"splitfare/pkg/planner"
	"splitfare/pkg/split"
	"splitfare/pkg/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/liip/sheriff"
)

// SplitRequest is the body of the split endpoints
type SplitRequest struct {
	Journey *types.Journey     `json:"journey"`
	Params  types.SearchParams `json:"params"`
}

func APIVersion(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": splitotel.ServiceName,
		"version": splitotel.Version,
	})
}

func (s *Server) getJourneys(c *fiber.Ctx) error {
	params := types.SearchParams{
		From:         c.Query("from"),
		To:           c.Query("to"),
		Age:          c.QueryInt("age", 0),
		FlatRatePass: c.QueryBool("deutschlandTicket.discount", false),
		FirstClass:   c.QueryBool("firstClass", false),
		LoyaltyCard:  c.Query("loyaltyCard"),
	}

	if params.From == "" || params.To == "" {
		c.Status(fiber.StatusBadRequest)
		return c.JSON(fiber.Map{
			"error": "from and to are required",
		})
	}

	if departure := c.Query("departure"); departure != "" {
		t, err := time.Parse(time.RFC3339, departure)
		if err != nil {
			c.Status(fiber.StatusBadRequest)
			return c.JSON(fiber.Map{
				"error": "departure must be an RFC3339 timestamp",
			})
		}
		params.Departure = &t
	}

	response, err := s.planner.QueryJourneys(c.UserContext(), planner.JourneyQuery{
		Params:  params,
		Results: c.QueryInt("results", 0),
	})
	if err != nil {
		status := fiber.StatusBadGateway
		var apiErr *planner.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == fiber.StatusNotFound {
			status = fiber.StatusNotFound
		}
		c.Status(status)
		return c.JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(response)
}

func (s *Server) postSplits(c *fiber.Ctx) error {
	request, err := parseSplitRequest(c)
	if err != nil {
		c.Status(fiber.StatusBadRequest)
		return c.JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	searchID := uuid.NewString()
	c.Set("X-Search-Id", searchID)

	state := s.runSearch(c.UserContext(), searchID, request, nil)

	stateReduced, err := reduceState(state, c.QueryBool("detailed", false))
	if err != nil {
		c.Status(fiber.StatusInternalServerError)
		return c.JSON(fiber.Map{
			"error": "Sheriff could not reduce split search state",
		})
	}

	return c.JSON(stateReduced)
}

// streamSplits writes every state as one JSON line while the search runs
func (s *Server) streamSplits(c *fiber.Ctx) error {
	request, err := parseSplitRequest(c)
	if err != nil {
		c.Status(fiber.StatusBadRequest)
		return c.JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	detailed := c.QueryBool("detailed", false)
	searchID := uuid.NewString()
	c.Set("X-Search-Id", searchID)
	c.Set(fiber.HeaderContentType, "application/x-ndjson")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(s.baseCtx)
		defer cancel()

		writer := split.ObserverFunc(func(state types.SplitSearchState) {
			if ctx.Err() != nil {
				return
			}

			stateReduced, err := reduceState(state, detailed)
			if err != nil {
				slog.Error("Failed to reduce split search state", "search_id", searchID, "error", err)
				return
			}
			line, err := json.Marshal(stateReduced)
			if err != nil {
				slog.Error("Failed to marshal split search state", "search_id", searchID, "error", err)
				return
			}

			_, _ = w.Write(line)
			_ = w.WriteByte('\n')
			if err := w.Flush(); err != nil {
				slog.Debug("Stream client went away, cancelling search", "search_id", searchID, "error", err)
				cancel()
			}
		})

		s.runSearch(ctx, searchID, request, writer)
	})

	return nil
}

func (s *Server) runSearch(ctx context.Context, searchID string, request *SplitRequest, observer split.Observer) types.SplitSearchState {
	s.collector.SearchesInFlight.Inc()
	defer s.collector.SearchesInFlight.Dec()

	observers := split.Observers{observer}
	if s.publisher != nil {
		observers = append(observers, s.publisher.ForSearch(searchID))
	}

	slog.Debug("Starting API split search", "search_id", searchID, "origin", request.Journey.Origin().Name, "destination", request.Journey.Destination().Name)

	state := s.searcher.Search(ctx, *request.Journey, request.Params, observers)
	s.collector.SplitsFound.Add(float64(len(state.Splits)))

	return state
}

func parseSplitRequest(c *fiber.Ctx) (*SplitRequest, error) {
	var request SplitRequest
	if err := json.Unmarshal(c.Body(), &request); err != nil {
		return nil, errors.New("request body must be a JSON object with journey and params")
	}
	if request.Journey == nil {
		return nil, errors.New("journey is required")
	}
	return &request, nil
}

// reduceState drops the leg journeys unless detailed output was requested
func reduceState(state types.SplitSearchState, detailed bool) (interface{}, error) {
	groups := []string{"basic"}
	if detailed {
		groups = append(groups, "detailed")
	}
	return sheriff.Marshal(&sheriff.Options{
		Groups: groups,
	}, state)
}
