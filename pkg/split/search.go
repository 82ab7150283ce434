package split

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"splitfare/pkg/metrics"
	splitotel "splitfare/pkg/otel"
	"splitfare/pkg/planner"
	"splitfare/pkg/stopover"
	"splitfare/pkg/types"

	"github.com/jinzhu/copier"
	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/exp/slices"
)

// Error messages reported in the final state
const (
	ErrNoPrice     = "Journey has no price information"
	ErrNoDeparture = "Journey has no departure time"
	ErrNoStopovers = "No stopovers found in this journey"
	ErrCancelled   = "Search cancelled"
)

// PriceFetcher looks up the price of a single leg. A zero LegPrice means no data.
type PriceFetcher interface {
	FetchLegPrice(ctx context.Context, fromID, toID string, departure time.Time, params types.SearchParams) planner.LegPrice
}

type Searcher struct {
	fetcher PriceFetcher
	tracer  trace.Tracer
}

func NewSearcher(fetcher PriceFetcher) *Searcher {
	return &Searcher{
		fetcher: fetcher,
		tracer:  otel.Tracer("split-search"),
	}
}

// Search evaluates every candidate split point of journey and returns the final
// state. Each intermediate state and the final one are also passed to observer.
// Exactly one state with Loading == false is emitted, and it is the last.
func (s *Searcher) Search(ctx context.Context, journey types.Journey, params types.SearchParams, observer Observer) types.SplitSearchState {
	if observer == nil {
		observer = Observers(nil)
	}

	origin := journey.Origin()
	destination := journey.Destination()

	ctx, span := s.tracer.Start(ctx, "split.search",
		trace.WithAttributes(
			attribute.String("origin", origin.ID),
			attribute.String("destination", destination.ID),
			attribute.Int("legs", len(journey.Legs)),
			attribute.Bool("flat_rate_pass", params.FlatRatePass),
		),
	)
	defer span.End()

	start := time.Now()
	metrics.SearchStarted(ctx)

	finish := func(state types.SplitSearchState, outcome string) types.SplitSearchState {
		state.Loading = false
		if state.Splits == nil {
			state.Splits = []types.SplitOption{}
		}

		span.SetAttributes(
			attribute.String("outcome", outcome),
			attribute.Int("checked_stations", state.CheckedStations),
			attribute.Int("splits_found", len(state.Splits)),
		)
		if state.Error != "" && outcome != "cancelled" {
			splitotel.RecordError(span, fmt.Errorf("%s", state.Error), splitotel.ErrorTypeValidation, false)
		} else {
			splitotel.SetSpanOk(span)
		}

		metrics.SearchFinished(ctx, outcome, time.Since(start))
		if outcome == "completed" {
			metrics.RecordLastSuccessTimestamp()
		}

		observer.OnState(snapshot(state))
		return state
	}

	if !journey.Price.Known() || journey.Price.Amount <= 0 {
		return finish(types.SplitSearchState{Error: ErrNoPrice}, "invalid")
	}
	originalPrice := journey.Price.Amount

	originalDeparture, ok := journey.DepartureTime()
	if !ok {
		return finish(types.SplitSearchState{OriginalPrice: originalPrice, Error: ErrNoDeparture}, "invalid")
	}

	candidates := stopover.ExtractCandidates(journey)
	span.SetAttributes(attribute.Int("candidates", len(candidates)))
	if len(candidates) == 0 {
		return finish(types.SplitSearchState{OriginalPrice: originalPrice, Error: ErrNoStopovers}, "invalid")
	}

	slog.Debug("Starting split search",
		"origin", origin.Name,
		"destination", destination.Name,
		"original_price", types.FormatPrice(originalPrice, journey.Price.Currency),
		"candidates", len(candidates),
	)

	state := types.SplitSearchState{
		OriginalPrice: originalPrice,
		Splits:        []types.SplitOption{},
		Loading:       true,
		TotalStations: len(candidates),
	}
	observer.OnState(snapshot(state))

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			slog.Debug("Split search cancelled", "checked", state.CheckedStations, "error", err)
			state.Error = ErrCancelled
			return finish(state, "cancelled")
		}

		option, found := s.evaluate(ctx, candidate, origin, destination, originalDeparture, originalPrice, params)
		if found {
			state.Splits = append(state.Splits, option)
			slices.SortStableFunc(state.Splits, bySavingsDesc)
		}
		metrics.RecordCandidate(ctx, found)

		state.CheckedStations++
		observer.OnState(snapshot(state))
	}

	return finish(state, "completed")
}

// evaluate prices both legs of a split at candidate. It reports false when the
// split is not possible or not cheaper than the original ticket.
func (s *Searcher) evaluate(ctx context.Context, candidate types.Stopover, origin, destination types.Station, originalDeparture time.Time, originalPrice int64, params types.SearchParams) (types.SplitOption, bool) {
	station := candidate.Stop

	if station.ID == "" || origin.ID == "" || destination.ID == "" {
		slog.Debug("Skipping split point without station ID", "station", station.Name)
		return types.SplitOption{}, false
	}

	ctx, span := s.tracer.Start(ctx, "split.evaluate_candidate",
		trace.WithAttributes(
			attribute.String("station_id", station.ID),
			attribute.String("station_name", station.Name),
		),
	)
	defer span.End()

	secondDeparture, ok := candidate.DepartureTime()
	if !ok {
		secondDeparture = originalDeparture
	}

	var first, second planner.LegPrice
	var wg conc.WaitGroup
	wg.Go(func() {
		first = s.fetcher.FetchLegPrice(ctx, origin.ID, station.ID, originalDeparture, params)
	})
	wg.Go(func() {
		second = s.fetcher.FetchLegPrice(ctx, station.ID, destination.ID, secondDeparture, params)
	})
	if recovered := wg.WaitAndRecover(); recovered != nil {
		err := recovered.AsError()
		slog.Warn("Leg price lookup panicked", "station", station.Name, "error", err)
		splitotel.RecordError(span, err, splitotel.ErrorTypeValidation, false)
		return types.SplitOption{}, false
	}

	if !first.Found() || !second.Found() {
		slog.Debug("Could not price both legs",
			"station", station.Name,
			"first", first.Found(),
			"second", second.Found(),
		)
		span.SetAttributes(attribute.Bool("priced", false))
		return types.SplitOption{}, false
	}

	total := *first.Price + *second.Price
	savings := originalPrice - total

	span.SetAttributes(
		attribute.Bool("priced", true),
		attribute.Int64("total_price", total),
		attribute.Int64("savings", savings),
	)

	if savings <= 0 {
		slog.Debug("No savings at split point", "station", station.Name, "total", total)
		return types.SplitOption{}, false
	}

	slog.Debug("Found cheaper split", "station", station.Name, "savings", savings)

	return types.SplitOption{
		SplitStation:      station,
		FirstLegPrice:     *first.Price,
		SecondLegPrice:    *second.Price,
		TotalPrice:        total,
		Savings:           savings,
		SavingsPercentage: float64(savings) / float64(originalPrice) * 100,
		FirstLegJourney:   first.Journey,
		SecondLegJourney:  second.Journey,
	}, true
}

func bySavingsDesc(a, b types.SplitOption) int {
	switch {
	case a.Savings > b.Savings:
		return -1
	case a.Savings < b.Savings:
		return 1
	default:
		return 0
	}
}

// snapshot returns a deep copy of state for observers
func snapshot(state types.SplitSearchState) types.SplitSearchState {
	var copied types.SplitSearchState
	if err := copier.CopyWithOption(&copied, state, copier.Option{DeepCopy: true}); err != nil {
		slog.Warn("Failed to copy split search state", "error", err)
		copied = state
		copied.Splits = slices.Clone(state.Splits)
	}
	if copied.Splits == nil {
		copied.Splits = []types.SplitOption{}
	}
	return copied
}
