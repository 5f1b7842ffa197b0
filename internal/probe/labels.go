package probe

import (
	"strings"

	"ressuche.dev/internal/models"
	"ressuche.dev/internal/page"
)

// Labels are the substrings the site uses in the accessible descriptions
// of its seat maps.
type Labels struct {
	Toddler  string
	Family   string
	Free     string
	Occupied string
}

// DefaultLabels match the German seat descriptions of the booking site.
func DefaultLabels() Labels {
	return Labels{
		Toddler:  "Kleinkind",
		Family:   "Familie",
		Free:     "frei",
		Occupied: "belegt",
	}
}

func containsFold(s, substr string) bool {
	return substr != "" && strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// Category classifies a seat by its description.
func (l Labels) Category(seat page.Seat) models.SeatCategory {
	switch {
	case containsFold(seat.CategoryHint, l.Toddler):
		return models.SeatCategoryToddler
	case containsFold(seat.CategoryHint, l.Family):
		return models.SeatCategoryFamily
	default:
		return models.SeatCategoryStandard
	}
}

// IsFree classifies a seat as free or occupied.
func (l Labels) IsFree(seat page.Seat) bool {
	if seat.IsFree {
		return true
	}
	return containsFold(seat.AvailabilityHint, l.Free) && !containsFold(seat.AvailabilityHint, l.Occupied)
}

// Tally aggregates a seat map into reservation information.
func (l Labels) Tally(seats []page.Seat) models.ReservationInformation {
	info := models.ReservationInformation{InfoAvailable: len(seats) > 0}
	for _, seat := range seats {
		free := l.IsFree(seat)
		info.TotalSeats++
		if free {
			info.TotalFree++
		}
		info.Category(l.Category(seat)).AddSeat(strings.TrimSpace(seat.CarID), free)
	}
	return info
}
