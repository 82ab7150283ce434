package pricecache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"splitfare/pkg/types"
)

// Entry is a cached leg lookup result
type Entry struct {
	Price   int64          `json:"price"`
	Journey *types.Journey `json:"journey,omitempty"`
}

// Cache stores leg prices between searches. Implementations must be safe for
// concurrent use; lookup and store failures are treated as misses.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool)
	Set(ctx context.Context, key string, entry Entry)
	Backend() string
}

// Key builds the cache key of a leg lookup. Every parameter that changes the
// quoted fare is part of the key.
func Key(from, to string, departure time.Time, params types.SearchParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "splitfare:leg:%s:%s:%d", from, to, departure.Unix())
	fmt.Fprintf(&b, ":age=%d", params.Age)
	if params.FlatRatePass {
		b.WriteString(":dt")
	}
	if params.FirstClass {
		b.WriteString(":1st")
	}
	if params.LoyaltyCard != "" {
		b.WriteString(":card=" + params.LoyaltyCard)
	}
	return b.String()
}
