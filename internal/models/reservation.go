package models

import (
	"fmt"
	"sort"
)

// SeatCategory is the closed set of reservation categories the site offers.
type SeatCategory string

const (
	SeatCategoryStandard SeatCategory = "STANDARD"
	SeatCategoryFamily   SeatCategory = "FAMILY"
	SeatCategoryToddler  SeatCategory = "TODDLER"
)

// AllSeatCategories lists the categories in display order.
var AllSeatCategories = []SeatCategory{SeatCategoryToddler, SeatCategoryFamily, SeatCategoryStandard}

func ParseSeatCategory(s string) (SeatCategory, error) {
	switch SeatCategory(s) {
	case SeatCategoryStandard, SeatCategoryFamily, SeatCategoryToddler:
		return SeatCategory(s), nil
	default:
		return "", fmt.Errorf("unknown seat category %q", s)
	}
}

// SeatCount is the per-category breakdown of one train.
type SeatCount struct {
	Free  int      `json:"free"`
	Total int      `json:"total"`
	Cars  []string `json:"cars"`
}

// AddSeat counts one seat; cars are only tracked when the seat is free.
func (s *SeatCount) AddSeat(car string, free bool) {
	s.Total++
	if !free {
		return
	}
	s.Free++
	if car == "" {
		return
	}
	for _, known := range s.Cars {
		if known == car {
			return
		}
	}
	s.Cars = append(s.Cars, car)
	sort.Strings(s.Cars)
}

// ReservationInformation holds the seat availability of one train.
type ReservationInformation struct {
	InfoAvailable bool      `json:"infoAvailable"`
	TotalSeats    int       `json:"totalSeats"`
	TotalFree     int       `json:"totalFree"`
	Standard      SeatCount `json:"standard"`
	Family        SeatCount `json:"family"`
	Toddler       SeatCount `json:"toddler"`
}

// Category returns a pointer to the breakdown of the given category.
func (r *ReservationInformation) Category(c SeatCategory) *SeatCount {
	switch c {
	case SeatCategoryFamily:
		return &r.Family
	case SeatCategoryToddler:
		return &r.Toddler
	default:
		return &r.Standard
	}
}

func (r ReservationInformation) Clone() ReservationInformation {
	clone := r
	clone.Standard.Cars = append([]string(nil), r.Standard.Cars...)
	clone.Family.Cars = append([]string(nil), r.Family.Cars...)
	clone.Toddler.Cars = append([]string(nil), r.Toddler.Cars...)
	return clone
}

// Satisfies reports whether the given category has enough free seats.
func (r ReservationInformation) Satisfies(c SeatCategory, seats int) bool {
	if !r.InfoAvailable {
		return false
	}
	return r.Category(c).Free >= seats
}

var alternatives = map[SeatCategory][]SeatCategory{
	SeatCategoryToddler:  {SeatCategoryToddler, SeatCategoryFamily, SeatCategoryStandard},
	SeatCategoryFamily:   {SeatCategoryFamily, SeatCategoryToddler, SeatCategoryStandard},
	SeatCategoryStandard: {SeatCategoryStandard, SeatCategoryFamily, SeatCategoryToddler},
}

// BestAlternative walks the fallback order of the desired category and
// returns the first one with enough free seats.
func (r ReservationInformation) BestAlternative(desired SeatCategory, seats int) (SeatCategory, bool) {
	if !r.InfoAvailable {
		return "", false
	}
	order, ok := alternatives[desired]
	if !ok {
		order = alternatives[SeatCategoryStandard]
	}
	for _, c := range order {
		if r.Category(c).Free >= seats {
			return c, true
		}
	}
	return "", false
}

// ReservationStatus summarizes whether a connection fulfills the reservation wish.
type ReservationStatus string

const (
	ReservationFulfilled   ReservationStatus = "FULFILLED"
	ReservationPartial     ReservationStatus = "PARTIAL"
	ReservationUnfulfilled ReservationStatus = "UNFULFILLED"
)

// Assess checks every train of the connection against the desired category.
func (c Connection) Assess(params SearchParameters) ReservationStatus {
	if len(c.Trains) == 0 {
		return ReservationUnfulfilled
	}
	seats := params.SeatsNeeded()
	satisfied := 0
	for _, train := range c.Trains {
		if train.Reservation.Satisfies(params.ReservationCategory, seats) {
			satisfied++
		}
	}
	switch {
	case satisfied == len(c.Trains):
		return ReservationFulfilled
	case satisfied > 0:
		return ReservationPartial
	default:
		return ReservationUnfulfilled
	}
}
