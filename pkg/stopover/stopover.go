package stopover

import (
	"splitfare/pkg/types"
)

// ExtractCandidates returns the stations a journey could be split at, in order:
// each leg's intermediate stopovers (first and last dropped), followed by one
// transfer point per pair of adjacent legs.
func ExtractCandidates(journey types.Journey) []types.Stopover {
	var candidates []types.Stopover

	for _, leg := range journey.Legs {
		if len(leg.Stopovers) > 2 {
			candidates = append(candidates, leg.Stopovers[1:len(leg.Stopovers)-1]...)
		}
	}

	for i := 0; i+1 < len(journey.Legs); i++ {
		arriving := journey.Legs[i]
		departing := journey.Legs[i+1]
		candidates = append(candidates, types.Stopover{
			Stop:             arriving.Destination,
			Arrival:          arriving.Arrival,
			PlannedArrival:   arriving.PlannedArrival,
			Departure:        departing.Departure,
			PlannedDeparture: departing.PlannedDeparture,
		})
	}

	return candidates
}
