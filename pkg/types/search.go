package types

import (
	"fmt"
	"time"
)

// SearchParams is the query that produced the original journey. Only From, To
// and Departure vary between the re-queries of a split search.
type SearchParams struct {
	From         string     `json:"from"`
	To           string     `json:"to"`
	Departure    *time.Time `json:"departure,omitempty"`
	Age          int        `json:"age,omitempty"`
	FlatRatePass bool       `json:"deutschlandTicketDiscount,omitempty"`
	FirstClass   bool       `json:"firstClass,omitempty"`
	LoyaltyCard  string     `json:"loyaltyCard,omitempty"`
}

// SplitOption is one evaluated split point
type SplitOption struct {
	SplitStation      Station  `json:"splitStation" groups:"basic,detailed"`
	FirstLegPrice     int64    `json:"firstLegPrice" groups:"basic,detailed"`
	SecondLegPrice    int64    `json:"secondLegPrice" groups:"basic,detailed"`
	TotalPrice        int64    `json:"totalPrice" groups:"basic,detailed"`
	Savings           int64    `json:"savings" groups:"basic,detailed"`
	SavingsPercentage float64  `json:"savingsPercentage" groups:"basic,detailed"`
	FirstLegJourney   *Journey `json:"firstLegJourney,omitempty" groups:"detailed"`
	SecondLegJourney  *Journey `json:"secondLegJourney,omitempty" groups:"detailed"`
}

// SplitSearchState is the externally observed snapshot of a split search.
// Splits is always sorted by savings, highest first.
type SplitSearchState struct {
	OriginalPrice   int64         `json:"originalPrice" groups:"basic,detailed"`
	Splits          []SplitOption `json:"splits" groups:"basic,detailed"`
	Loading         bool          `json:"loading" groups:"basic,detailed"`
	Error           string        `json:"error,omitempty" groups:"basic,detailed"`
	CheckedStations int           `json:"checkedStations" groups:"basic,detailed"`
	TotalStations   int           `json:"totalStations" groups:"basic,detailed"`
}

// Best returns the option with the highest savings
func (s SplitSearchState) Best() (SplitOption, bool) {
	if len(s.Splits) == 0 {
		return SplitOption{}, false
	}
	return s.Splits[0], true
}

// FormatPrice renders an amount in minor units, e.g. 4990 EUR as "49.90 EUR"
func FormatPrice(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	if currency == "" {
		currency = "EUR"
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, amount/100, amount%100, currency)
}
