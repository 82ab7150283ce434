package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"splitfare/pkg/eligibility"
	"splitfare/pkg/loki"
	"splitfare/pkg/planner"
	"splitfare/pkg/split"
	"splitfare/pkg/types"

	"github.com/google/uuid"
	"github.com/kr/pretty"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Pipeline struct {
	config     Config
	planner    *planner.Client
	searcher   *split.Searcher
	evaluator  *eligibility.Evaluator
	lokiClient *loki.Client
	publisher  split.Publisher
	out        io.Writer
	tracer     trace.Tracer
}

type Config struct {
	DryRun bool
	// Debug dumps the final state after the dry run summary
	Debug bool

	Params types.SearchParams
	// JourneyIndex selects which of the returned journeys is split
	JourneyIndex int
	Results      int

	LokiURL      string
	LokiUser     string
	LokiPassword string
}

type Option func(*Pipeline)

// WithPublisher publishes every search state, e.g. to NATS
func WithPublisher(publisher split.Publisher) Option {
	return func(p *Pipeline) {
		p.publisher = publisher
	}
}

func WithEvaluator(evaluator *eligibility.Evaluator) Option {
	return func(p *Pipeline) {
		p.evaluator = evaluator
	}
}

// WithOutput sets where dry run output is written (stdout by default)
func WithOutput(w io.Writer) Option {
	return func(p *Pipeline) {
		p.out = w
	}
}

func New(config Config, client *planner.Client, opts ...Option) (*Pipeline, error) {
	if client == nil {
		return nil, fmt.Errorf("planner client is required")
	}

	if config.Params.From == "" || config.Params.To == "" {
		return nil, fmt.Errorf("origin and destination are required")
	}

	if config.JourneyIndex < 0 {
		return nil, fmt.Errorf("journey index must not be negative")
	}

	if !config.DryRun && config.LokiURL == "" {
		return nil, fmt.Errorf("Loki URL is required unless running in dry run mode")
	}

	pipeline := &Pipeline{
		config:    config,
		planner:   client,
		searcher:  split.NewSearcher(client),
		evaluator: eligibility.Default(),
		out:       os.Stdout,
		tracer:    otel.Tracer("pipeline"),
	}

	// Only create Loki client if not in dry run mode
	if !config.DryRun {
		pipeline.lokiClient = loki.NewClient(config.LokiURL, config.LokiUser, config.LokiPassword)
	}

	for _, opt := range opts {
		opt(pipeline)
	}

	return pipeline, nil
}

// Run finds the requested journey, splits it and reports the result
func (p *Pipeline) Run(ctx context.Context) (types.SplitSearchState, error) {
	searchID := uuid.NewString()

	ctx, span := p.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("search_id", searchID),
			attribute.String("from", p.config.Params.From),
			attribute.String("to", p.config.Params.To),
			attribute.Bool("dry_run", p.config.DryRun),
		),
	)
	defer span.End()

	start := time.Now()

	response, err := p.planner.QueryJourneys(ctx, planner.JourneyQuery{
		Params:  p.config.Params,
		Results: p.config.Results,
	})
	if err != nil {
		span.RecordError(err)
		return types.SplitSearchState{}, fmt.Errorf("failed to query journeys: %w", err)
	}

	if len(response.Journeys) == 0 {
		err := fmt.Errorf("no journeys found from %s to %s", p.config.Params.From, p.config.Params.To)
		span.RecordError(err)
		return types.SplitSearchState{}, err
	}
	if p.config.JourneyIndex >= len(response.Journeys) {
		err := fmt.Errorf("journey index %d out of range, %d journeys found", p.config.JourneyIndex, len(response.Journeys))
		span.RecordError(err)
		return types.SplitSearchState{}, err
	}

	journey := response.Journeys[p.config.JourneyIndex]

	logger := slog.With("search_id", searchID)
	logger.Info("Starting split search",
		"origin", journey.Origin().Name,
		"destination", journey.Destination().Name,
		"journeys_found", len(response.Journeys),
	)

	observers := split.Observers{split.LogObserver{Logger: logger}}
	if p.publisher != nil {
		observers = append(observers, p.publisher.ForSearch(searchID))
	}

	state := p.searcher.Search(ctx, journey, p.config.Params, observers)

	span.SetAttributes(
		attribute.Int("splits_found", len(state.Splits)),
		attribute.Int("stations_checked", state.CheckedStations),
		attribute.String("processing_duration", time.Since(start).String()),
	)

	if p.config.DryRun {
		if err := p.handleDryRun(ctx, journey, state); err != nil {
			return state, err
		}
		return state, nil
	}

	if err := p.sendToLoki(ctx, searchID, journey, state); err != nil {
		return state, err
	}

	return state, nil
}

func (p *Pipeline) handleDryRun(ctx context.Context, journey types.Journey, state types.SplitSearchState) error {
	_, span := p.tracer.Start(ctx, "pipeline.dry_run")
	defer span.End()

	out := p.out
	currency := ""
	if journey.Price != nil {
		currency = journey.Price.Currency
	}

	fmt.Fprintf(out, "\n=== DRY RUN - Split search %s → %s ===\n", journey.Origin().Name, journey.Destination().Name)
	if departure, ok := journey.DepartureTime(); ok {
		fmt.Fprintf(out, "Departure: %s\n", departure.Format("2006-01-02 15:04"))
	}
	if arrival, ok := journey.ArrivalTime(); ok {
		fmt.Fprintf(out, "Arrival:   %s\n", arrival.Format("2006-01-02 15:04"))
	}

	price := "no price"
	if journey.Price.Known() && journey.Price.Amount > 0 {
		price = types.FormatPrice(journey.Price.Amount, currency)
	}
	badge := ""
	if p.evaluator.IsJourneyFullyEligible(journey.Legs) {
		badge = " [Deutschland-Ticket]"
	}
	fmt.Fprintf(out, "Price: %s%s\n", price, badge)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Legs:")
	for i, leg := range journey.Legs {
		line := "walk"
		if leg.Line != nil {
			line = leg.Line.Name
		}
		fmt.Fprintf(out, "  %d. %s → %s (%s)\n", i+1, leg.Origin.Name, leg.Destination.Name, line)
	}

	if remarks := journey.Remarks.Texts(); len(remarks) > 0 {
		fmt.Fprintf(out, "Remarks: %s\n", strings.Join(remarks, "; "))
	}

	fmt.Fprintf(out, "\nStations checked: %d/%d\n", state.CheckedStations, state.TotalStations)
	if state.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", state.Error)
	}

	if len(state.Splits) == 0 {
		fmt.Fprintln(out, "No cheaper split found")
	} else {
		fmt.Fprintln(out, "\nSplit Options:")
		for i, option := range state.Splits {
			fmt.Fprintf(out, "  %d. Split at %s: %s + %s = %s, save %s (%.1f%%)\n",
				i+1,
				option.SplitStation.Name,
				types.FormatPrice(option.FirstLegPrice, currency),
				types.FormatPrice(option.SecondLegPrice, currency),
				types.FormatPrice(option.TotalPrice, currency),
				types.FormatPrice(option.Savings, currency),
				option.SavingsPercentage,
			)
		}
	}

	if p.config.Debug {
		fmt.Fprintln(out, "\nFinal State:")
		fmt.Fprintf(out, "%# v\n", pretty.Formatter(state))
	}

	// Show the summary line as it would be sent to Loki
	summary, err := json.Marshal(map[string]interface{}{
		"original_price":   state.OriginalPrice,
		"checked_stations": state.CheckedStations,
		"total_stations":   state.TotalStations,
		"splits_count":     len(state.Splits),
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal summary for dry run: %w", err)
	}
	fmt.Fprintf(out, "\nSummary: %s\n", summary)
	fmt.Fprintln(out, "=== END DRY RUN ===")

	span.SetAttributes(
		attribute.Int("splits_printed", len(state.Splits)),
	)

	return nil
}

func (p *Pipeline) sendToLoki(ctx context.Context, searchID string, journey types.Journey, state types.SplitSearchState) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.send_to_loki")
	defer span.End()

	if p.lokiClient == nil {
		err := fmt.Errorf("loki client not initialized")
		span.RecordError(err)
		return err
	}

	err := p.lokiClient.SendSearchResult(ctx, loki.SearchResult{
		SearchID:         searchID,
		Journey:          journey,
		Params:           p.config.Params,
		State:            state,
		FlatRateEligible: p.evaluator.IsJourneyFullyEligible(journey.Legs),
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to send search result to Loki: %w", err)
	}

	slog.Info("Sent split search result to Loki",
		"search_id", searchID,
		"splits", len(state.Splits),
	)

	span.SetAttributes(
		attribute.Int("splits_sent", len(state.Splits)),
	)

	return nil
}
