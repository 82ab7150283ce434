package planner

import (
	"splitfare/pkg/types"
)

// LegPrice is the outcome of a leg lookup. The zero value means no usable
// price; a non-nil Price of 0 means the leg is covered by the flat-rate pass.
type LegPrice struct {
	Price   *int64
	Journey *types.Journey
}

// Found reports whether the lookup produced a price
func (l LegPrice) Found() bool {
	return l.Price != nil
}
