package types

import (
	"encoding/json"
	"math"
	"time"
)

// Location is the coordinate block attached to stations by the planning API
type Location struct {
	Type      string  `json:"type,omitempty" groups:"basic,detailed"`
	ID        string  `json:"id,omitempty" groups:"basic,detailed"`
	Latitude  float64 `json:"latitude" groups:"basic,detailed"`
	Longitude float64 `json:"longitude" groups:"basic,detailed"`
}

// Station is a stop or station as returned by the planning API.
// A station without an ID cannot be used as a search endpoint.
type Station struct {
	ID       string    `json:"id,omitempty" groups:"basic,detailed"`
	Name     string    `json:"name" groups:"basic,detailed"`
	Type     string    `json:"type,omitempty" groups:"basic,detailed"`
	Location *Location `json:"location,omitempty" groups:"basic,detailed"`
}

// Operator runs a line
type Operator struct {
	ID   string `json:"id,omitempty" groups:"basic,detailed"`
	Name string `json:"name,omitempty" groups:"basic,detailed"`
}

// Line describes the transport product of a leg
type Line struct {
	ID          string    `json:"id,omitempty" groups:"basic,detailed"`
	Name        string    `json:"name" groups:"basic,detailed"`
	Type        string    `json:"type,omitempty" groups:"basic,detailed"`
	Product     string    `json:"product,omitempty" groups:"basic,detailed"`
	ProductName string    `json:"productName,omitempty" groups:"basic,detailed"`
	Mode        string    `json:"mode,omitempty" groups:"basic,detailed"`
	Operator    *Operator `json:"operator,omitempty" groups:"basic,detailed"`
}

// Stopover is an intermediate stop of a leg with its own arrival/departure times
type Stopover struct {
	Stop             Station    `json:"stop" groups:"basic,detailed"`
	Arrival          *time.Time `json:"arrival,omitempty" groups:"basic,detailed"`
	PlannedArrival   *time.Time `json:"plannedArrival,omitempty" groups:"basic,detailed"`
	ArrivalDelay     *int       `json:"arrivalDelay,omitempty" groups:"basic,detailed"`
	Departure        *time.Time `json:"departure,omitempty" groups:"basic,detailed"`
	PlannedDeparture *time.Time `json:"plannedDeparture,omitempty" groups:"basic,detailed"`
	DepartureDelay   *int       `json:"departureDelay,omitempty" groups:"basic,detailed"`
}

// DepartureTime returns the actual departure, falling back to the planned one
func (s Stopover) DepartureTime() (time.Time, bool) {
	return firstTime(s.Departure, s.PlannedDeparture)
}

// ArrivalTime returns the actual arrival, falling back to the planned one
func (s Stopover) ArrivalTime() (time.Time, bool) {
	return firstTime(s.Arrival, s.PlannedArrival)
}

// Remark is a structured hint attached to a leg or journey
type Remark struct {
	Code     string `json:"code,omitempty" groups:"basic,detailed"`
	Summary  string `json:"summary,omitempty" groups:"basic,detailed"`
	Text     string `json:"text,omitempty" groups:"basic,detailed"`
	Type     string `json:"type,omitempty" groups:"basic,detailed"`
	Priority int    `json:"priority,omitempty" groups:"basic,detailed"`
}

// Remarks holds a list of remarks. Upstream sends either bare strings or
// objects; bare strings are kept as text-only remarks.
type Remarks []Remark

func (r *Remarks) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	remarks := make(Remarks, 0, len(raw))
	for _, item := range raw {
		var text string
		if err := json.Unmarshal(item, &text); err == nil {
			remarks = append(remarks, Remark{Text: text})
			continue
		}

		var remark Remark
		if err := json.Unmarshal(item, &remark); err != nil {
			return err
		}
		remarks = append(remarks, remark)
	}

	*r = remarks
	return nil
}

// HasCode reports whether any structured remark carries the given code
func (r Remarks) HasCode(code string) bool {
	if code == "" {
		return false
	}
	for _, remark := range r {
		if remark.Code == code {
			return true
		}
	}
	return false
}

// Texts returns the display text of each remark
func (r Remarks) Texts() []string {
	texts := make([]string, 0, len(r))
	for _, remark := range r {
		if remark.Text != "" {
			texts = append(texts, remark.Text)
		} else if remark.Summary != "" {
			texts = append(texts, remark.Summary)
		}
	}
	return texts
}

// JourneyLeg is one uninterrupted ride or walk. A leg without a line is a walking segment.
type JourneyLeg struct {
	Origin           Station    `json:"origin" groups:"basic,detailed"`
	Destination      Station    `json:"destination" groups:"basic,detailed"`
	Departure        *time.Time `json:"departure,omitempty" groups:"basic,detailed"`
	PlannedDeparture *time.Time `json:"plannedDeparture,omitempty" groups:"basic,detailed"`
	Arrival          *time.Time `json:"arrival,omitempty" groups:"basic,detailed"`
	PlannedArrival   *time.Time `json:"plannedArrival,omitempty" groups:"basic,detailed"`
	Line             *Line      `json:"line,omitempty" groups:"basic,detailed"`
	Stopovers        []Stopover `json:"stopovers,omitempty" groups:"basic,detailed"`
	Remarks          Remarks    `json:"remarks,omitempty" groups:"basic,detailed"`
	TripID           string     `json:"tripId,omitempty" groups:"basic,detailed"`
	Walking          bool       `json:"walking,omitempty" groups:"basic,detailed"`
}

// IsWalking reports whether the leg has no line
func (l JourneyLeg) IsWalking() bool {
	return l.Line == nil
}

// DepartureTime returns the actual departure, falling back to the planned one
func (l JourneyLeg) DepartureTime() (time.Time, bool) {
	return firstTime(l.Departure, l.PlannedDeparture)
}

// ArrivalTime returns the actual arrival, falling back to the planned one
func (l JourneyLeg) ArrivalTime() (time.Time, bool) {
	return firstTime(l.Arrival, l.PlannedArrival)
}

// Price is a ticket price in minor currency units (cents). A missing, null or
// fractional amount leaves the price unknown.
type Price struct {
	Amount   int64  `json:"amount" groups:"basic,detailed"`
	Currency string `json:"currency" groups:"basic,detailed"`
	Unknown  bool   `json:"-"`
}

// Known reports whether p carries a usable amount
func (p *Price) Known() bool {
	return p != nil && !p.Unknown
}

func (p *Price) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount   json.Number `json:"amount"`
		Currency string      `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.Currency = raw.Currency
	p.Amount = 0
	p.Unknown = true
	if raw.Amount == "" {
		return nil
	}
	if n, err := raw.Amount.Int64(); err == nil {
		p.Amount = n
		p.Unknown = false
		return nil
	}
	f, err := raw.Amount.Float64()
	if err != nil {
		return err
	}
	if f == math.Trunc(f) && math.Abs(f) < math.MaxInt64 {
		p.Amount = int64(f)
		p.Unknown = false
	}
	return nil
}

// Journey is an ordered, temporally contiguous sequence of legs
type Journey struct {
	Type         string       `json:"type,omitempty" groups:"basic,detailed"`
	Legs         []JourneyLeg `json:"legs" groups:"basic,detailed"`
	Price        *Price       `json:"price,omitempty" groups:"basic,detailed"`
	RefreshToken string       `json:"refreshToken,omitempty" groups:"basic,detailed"`
	Remarks      Remarks      `json:"remarks,omitempty" groups:"basic,detailed"`
}

// Origin returns the first leg's origin
func (j Journey) Origin() Station {
	if len(j.Legs) == 0 {
		return Station{}
	}
	return j.Legs[0].Origin
}

// Destination returns the last leg's destination
func (j Journey) Destination() Station {
	if len(j.Legs) == 0 {
		return Station{}
	}
	return j.Legs[len(j.Legs)-1].Destination
}

// DepartureTime returns the effective departure of the first leg
func (j Journey) DepartureTime() (time.Time, bool) {
	if len(j.Legs) == 0 {
		return time.Time{}, false
	}
	return j.Legs[0].DepartureTime()
}

// ArrivalTime returns the effective arrival of the last leg
func (j Journey) ArrivalTime() (time.Time, bool) {
	if len(j.Legs) == 0 {
		return time.Time{}, false
	}
	return j.Legs[len(j.Legs)-1].ArrivalTime()
}

// JourneyResponse is the body of a journeys query
type JourneyResponse struct {
	Journeys   []Journey `json:"journeys" groups:"basic,detailed"`
	EarlierRef string    `json:"earlierRef,omitempty" groups:"basic,detailed"`
	LaterRef   string    `json:"laterRef,omitempty" groups:"basic,detailed"`
}

func firstTime(actual, planned *time.Time) (time.Time, bool) {
	if actual != nil && !actual.IsZero() {
		return *actual, true
	}
	if planned != nil && !planned.IsZero() {
		return *planned, true
	}
	return time.Time{}, false
}
