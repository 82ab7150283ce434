package split

import (
	"log/slog"

	"splitfare/pkg/types"
)

// Observer receives every state of a search, in order, on the search goroutine.
// States are private copies and may be retained.
type Observer interface {
	OnState(state types.SplitSearchState)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(state types.SplitSearchState)

func (f ObserverFunc) OnState(state types.SplitSearchState) {
	f(state)
}

// Observers fans a state out to several observers. Nil entries are skipped.
type Observers []Observer

func (o Observers) OnState(state types.SplitSearchState) {
	for _, observer := range o {
		if observer != nil {
			observer.OnState(state)
		}
	}
}

// Publisher hands out an observer per search, keyed by search id
type Publisher interface {
	ForSearch(searchID string) Observer
}

// LogObserver logs search progress
type LogObserver struct {
	Logger *slog.Logger
}

func (l LogObserver) OnState(state types.SplitSearchState) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if state.Error != "" {
		logger.Warn("Split search failed", "error", state.Error)
		return
	}

	if state.Loading {
		logger.Debug("Split search progress",
			"checked", state.CheckedStations,
			"total", state.TotalStations,
			"splits", len(state.Splits),
		)
		return
	}

	args := []any{
		"checked", state.CheckedStations,
		"total", state.TotalStations,
		"splits", len(state.Splits),
		"original_price", types.FormatPrice(state.OriginalPrice, ""),
	}
	if best, ok := state.Best(); ok {
		args = append(args,
			"best_station", best.SplitStation.Name,
			"best_savings", types.FormatPrice(best.Savings, ""),
		)
	}
	logger.Info("Split search complete", args...)
}
