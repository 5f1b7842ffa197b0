package utils

import (
	"fmt"
	"strings"
	"time"

	"ressuche.dev/internal/models"
)

// MaxPassengers is the largest party the booking site accepts.
const MaxPassengers = 9

type PassengerRequest struct {
	Age           int    `json:"age"`
	AgeGroup      string `json:"ageGroup"`
	FareCard      string `json:"fareCard"`
	FareCardClass string `json:"fareCardClass"`
}

// SearchRequest is the body of a search submission.
type SearchRequest struct {
	TravelDate          string             `json:"travelDate"`
	EarliestDepTime     string             `json:"earliestDepTime"`
	LatestDepTime       string             `json:"latestDepTime"`
	StartStation        string             `json:"startStation"`
	FinalStation        string             `json:"finalStation"`
	StartStationID      string             `json:"startStationId"`
	FinalStationID      string             `json:"finalStationId"`
	ReservationCategory string             `json:"reservationCategory"`
	Passengers          []PassengerRequest `json:"passengers"`
	OnlyDirect          bool               `json:"onlyDirect"`
	OnlyFast            bool               `json:"onlyFast"`
}

var ageGroups = map[models.AgeGroup]bool{
	models.AgeGroupChild0To5:   true,
	models.AgeGroupChild6To14:  true,
	models.AgeGroupYouth15To26: true,
	models.AgeGroupAdult27To64: true,
	models.AgeGroupSenior65:    true,
	models.AgeGroupDog:         true,
	models.AgeGroupBike:        true,
}

var fareCards = map[models.FareCard]bool{
	models.FareCardNone:         true,
	models.FareCardBC25:         true,
	models.FareCardBC50:         true,
	models.FareCardBC100:        true,
	models.FareCardBC25Business: true,
	models.FareCardBC50Business: true,
}

var fareCardClasses = map[models.FareCardClass]bool{
	models.FareCardClassNone:   true,
	models.FareCardClassFirst:  true,
	models.FareCardClassSecond: true,
}

// ToParameters validates the request and converts it. today is the first
// travel date accepted. Validation problems are collected per field; the
// parameters are only meaningful when the returned map is empty.
func (r SearchRequest) ToParameters(today time.Time) (models.SearchParameters, map[string][]string) {
	fieldErrors := make(map[string][]string)
	addErr := func(field, msg string) {
		fieldErrors[field] = append(fieldErrors[field], msg)
	}

	params := models.SearchParameters{
		EarliestDepTime: strings.TrimSpace(r.EarliestDepTime),
		LatestDepTime:   strings.TrimSpace(r.LatestDepTime),
		StartStationID:  strings.TrimSpace(r.StartStationID),
		FinalStationID:  strings.TrimSpace(r.FinalStationID),
		OnlyDirect:      r.OnlyDirect,
		OnlyFast:        r.OnlyFast,
	}

	date, err := ParseDate(r.TravelDate)
	if err != nil {
		addErr("travelDate", err.Error())
	} else {
		day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
		if date.Before(day) {
			addErr("travelDate", "travel date lies in the past")
		}
		params.TravelDate = date
	}

	for field, clock := range map[string]string{"earliestDepTime": params.EarliestDepTime, "latestDepTime": params.LatestDepTime} {
		if err := ValidateClock(clock); err != nil {
			addErr(field, err.Error())
		}
	}
	if params.LatestDepTime != "" && ValidateClock(params.EarliestDepTime) == nil &&
		params.EffectiveEarliestDepTime() > params.LatestDepTime {
		addErr("latestDepTime", "latest departure lies before earliest departure")
	}

	stations := map[string]*string{"startStation": &params.StartStation, "finalStation": &params.FinalStation}
	raw := map[string]string{"startStation": r.StartStation, "finalStation": r.FinalStation}
	for field, target := range stations {
		name, err := ValidateAndSanitizeQuery(raw[field])
		switch {
		case err != nil:
			addErr(field, err.Error())
		case name == "":
			addErr(field, "station is required")
		default:
			*target = name
		}
	}
	if params.StartStation != "" && strings.EqualFold(params.StartStation, params.FinalStation) {
		addErr("finalStation", "start and final station must differ")
	}

	category := models.SeatCategoryStandard
	if r.ReservationCategory != "" {
		parsed, err := models.ParseSeatCategory(strings.ToUpper(r.ReservationCategory))
		if err != nil {
			addErr("reservationCategory", err.Error())
		} else {
			category = parsed
		}
	}
	params.ReservationCategory = category

	if len(r.Passengers) > MaxPassengers {
		addErr("passengers", fmt.Sprintf("at most %d passengers", MaxPassengers))
	}
	for i, p := range r.Passengers {
		passenger, msg := p.toPassenger()
		if msg != "" {
			addErr(fmt.Sprintf("passengers[%d]", i), msg)
			continue
		}
		params.Passengers = append(params.Passengers, passenger)
	}

	return params, fieldErrors
}

func (p PassengerRequest) toPassenger() (models.Passenger, string) {
	passenger := models.Passenger{
		Age:           p.Age,
		AgeGroup:      models.AgeGroup(strings.ToUpper(p.AgeGroup)),
		FareCard:      models.FareCard(strings.ToUpper(p.FareCard)),
		FareCardClass: models.FareCardClass(strings.ToUpper(p.FareCardClass)),
	}
	if passenger.FareCard == "" {
		passenger.FareCard = models.FareCardNone
	}
	if passenger.FareCardClass == "" {
		passenger.FareCardClass = models.FareCardClassNone
	}

	switch {
	case !ageGroups[passenger.AgeGroup]:
		return passenger, fmt.Sprintf("unknown age group %q", p.AgeGroup)
	case !fareCards[passenger.FareCard]:
		return passenger, fmt.Sprintf("unknown fare card %q", p.FareCard)
	case !fareCardClasses[passenger.FareCardClass]:
		return passenger, fmt.Sprintf("unknown fare card class %q", p.FareCardClass)
	case passenger.FareCard != models.FareCardNone && passenger.FareCardClass == models.FareCardClassNone:
		return passenger, "fare card needs a class"
	case p.Age < 0 || p.Age > 120:
		return passenger, "age must be between 0 and 120"
	}
	return passenger, ""
}
