package models

import (
	"fmt"
	"strings"
	"time"
)

// TimeCheckResult classifies a connection against the requested window.
type TimeCheckResult int

const (
	TimeCheckOK TimeCheckResult = iota
	TimeCheckDateTooEarly
	TimeCheckDateTooLate
	TimeCheckStartTooEarly
	TimeCheckStartTooLate
)

func (r TimeCheckResult) String() string {
	switch r {
	case TimeCheckOK:
		return "OK"
	case TimeCheckDateTooEarly:
		return "DATE_TOO_EARLY"
	case TimeCheckDateTooLate:
		return "DATE_TOO_LATE"
	case TimeCheckStartTooEarly:
		return "START_TOO_EARLY"
	case TimeCheckStartTooLate:
		return "START_TOO_LATE"
	default:
		return UnknownValue
	}
}

// IsLate reports whether the result proves that no later item of a sorted
// listing can be in the window.
func (r TimeCheckResult) IsLate() bool {
	return r == TimeCheckStartTooLate || r == TimeCheckDateTooLate
}

// Train is one single-train leg of a connection.
type Train struct {
	StartTime    string                 `json:"startTime"`
	EndTime      string                 `json:"endTime"`
	StartStation string                 `json:"startStation"`
	FinalStation string                 `json:"finalStation"`
	Duration     string                 `json:"duration"`
	ID           string                 `json:"id"`
	Reservation  ReservationInformation `json:"reservation"`
}

// Connection is one door-to-door journey option.
type Connection struct {
	Date          time.Time         `json:"date"`
	StartTime     string            `json:"startTime"`
	EndTime       string            `json:"endTime"`
	Duration      string            `json:"duration"`
	StartStation  string            `json:"startStation"`
	FinalStation  string            `json:"finalStation"`
	Trains        []Train           `json:"trains"`
	Prices        map[string]string `json:"prices"`
	DifferentDate bool              `json:"differentDate"`
	Bookable      bool              `json:"bookable"`
}

// Fingerprint is the structural identity used for deduplication. The same
// physical connection reappears verbatim across paginated loads, so date,
// train ids and reservation data are deliberately not part of it.
type Fingerprint struct {
	Duration     string
	StartTime    string
	EndTime      string
	StartStation string
	FinalStation string
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%s-%s (%s) %s -> %s", f.StartTime, f.EndTime, f.Duration, f.StartStation, f.FinalStation)
}

func (c Connection) Fingerprint() Fingerprint {
	return Fingerprint{
		Duration:     c.Duration,
		StartTime:    c.StartTime,
		EndTime:      c.EndTime,
		StartStation: c.StartStation,
		FinalStation: c.FinalStation,
	}
}

func (c Connection) NumTrainChanges() int {
	if len(c.Trains) == 0 {
		return 0
	}
	return len(c.Trains) - 1
}

func (c Connection) TrainIDs() []string {
	ids := make([]string, 0, len(c.Trains))
	for _, train := range c.Trains {
		ids = append(ids, train.ID)
	}
	return ids
}

// MarkNotBookable clears the price information and flags every leg as
// having no reservation information.
func (c *Connection) MarkNotBookable() {
	c.Bookable = false
	c.Prices = map[string]string{}
	for i := range c.Trains {
		c.Trains[i].Reservation = ReservationInformation{InfoAvailable: false}
	}
}

// Clone returns a deep copy so an emitted connection cannot be changed by its producer.
func (c Connection) Clone() Connection {
	clone := c
	clone.Trains = make([]Train, len(c.Trains))
	for i, train := range c.Trains {
		train.Reservation = train.Reservation.Clone()
		clone.Trains[i] = train
	}
	clone.Prices = make(map[string]string, len(c.Prices))
	for name, price := range c.Prices {
		clone.Prices[name] = price
	}
	return clone
}

func (c Connection) String() string {
	return fmt.Sprintf("%s %s - %s (%s), %d changes (%s)",
		c.Date.Format(DateLayout), c.StartTime, c.EndTime, c.Duration,
		c.NumTrainChanges(), strings.Join(c.TrainIDs(), ", "))
}
