package models

import "time"

// DateLayout is the calendar format the booking site uses for travel dates.
const DateLayout = "02.01.2006"

// AgeGroup is the traveler classification the booking site prices by.
type AgeGroup string

const (
	AgeGroupChild0To5   AgeGroup = "CHILD_0_5"
	AgeGroupChild6To14  AgeGroup = "CHILD_6_14"
	AgeGroupYouth15To26 AgeGroup = "YOUTH_15_26"
	AgeGroupAdult27To64 AgeGroup = "ADULT_27_64"
	AgeGroupSenior65    AgeGroup = "SENIOR_65"
	AgeGroupDog         AgeGroup = "DOG"
	AgeGroupBike        AgeGroup = "BIKE"
)

// NeedsSeat reports whether a traveler of this group occupies a seat of their own.
func (g AgeGroup) NeedsSeat() bool {
	switch g {
	case AgeGroupChild0To5, AgeGroupDog, AgeGroupBike:
		return false
	default:
		return true
	}
}

// IsChild reports whether the group is one of the child groups.
func (g AgeGroup) IsChild() bool {
	return g == AgeGroupChild0To5 || g == AgeGroupChild6To14
}

type FareCard string

const (
	FareCardNone         FareCard = "NONE"
	FareCardBC25         FareCard = "BC25"
	FareCardBC50         FareCard = "BC50"
	FareCardBC100        FareCard = "BC100"
	FareCardBC25Business FareCard = "BC25_BUSINESS"
	FareCardBC50Business FareCard = "BC50_BUSINESS"
)

type FareCardClass string

const (
	FareCardClassNone   FareCardClass = "NONE"
	FareCardClassFirst  FareCardClass = "FIRST"
	FareCardClassSecond FareCardClass = "SECOND"
)

// Passenger parameterizes the query and determines how many seats are needed.
type Passenger struct {
	Age           int           `json:"age"`
	AgeGroup      AgeGroup      `json:"ageGroup"`
	FareCard      FareCard      `json:"fareCard"`
	FareCardClass FareCardClass `json:"fareCardClass"`
}

// SearchParameters describe one search request. A session never mutates the
// value it was given; pagination works on derived copies.
type SearchParameters struct {
	TravelDate          time.Time    `json:"travelDate"`
	EarliestDepTime     string       `json:"earliestDepTime"`
	LatestDepTime       string       `json:"latestDepTime,omitempty"`
	StartStation        string       `json:"startStation"`
	FinalStation        string       `json:"finalStation"`
	StartStationID      string       `json:"startStationId,omitempty"`
	FinalStationID      string       `json:"finalStationId,omitempty"`
	ReservationCategory SeatCategory `json:"reservationCategory"`
	Passengers          []Passenger  `json:"passengers"`
	OnlyDirect          bool         `json:"onlyDirect"`
	OnlyFast            bool         `json:"onlyFast"`
	SearchStarted       time.Time    `json:"searchStarted"`
}

// WithEarliestDepTime returns a copy of the parameters with an advanced lower bound.
func (p SearchParameters) WithEarliestDepTime(t string) SearchParameters {
	derived := p
	derived.EarliestDepTime = t
	derived.Passengers = append([]Passenger(nil), p.Passengers...)
	return derived
}

// EffectiveEarliestDepTime treats a missing lower bound as the start of the day.
func (p SearchParameters) EffectiveEarliestDepTime() string {
	if p.EarliestDepTime == "" {
		return "00:00"
	}
	return p.EarliestDepTime
}

// SeatsNeeded is the number of passengers that need a seat of their own.
// A search without passengers is treated as a single traveler.
func (p SearchParameters) SeatsNeeded() int {
	if len(p.Passengers) == 0 {
		return 1
	}
	seats := 0
	for _, passenger := range p.Passengers {
		if passenger.AgeGroup.NeedsSeat() {
			seats++
		}
	}
	return seats
}

// TravelDateString formats the travel date the way the booking site does.
func (p SearchParameters) TravelDateString() string {
	return p.TravelDate.Format(DateLayout)
}
