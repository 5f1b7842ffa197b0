package pagetest

import (
	"fmt"
	"strconv"
	"strings"

	"ressuche.dev/internal/page"
)

const (
	StartStation = "Hannover Hbf"
	FinalStation = "Stuttgart Hbf"
)

// Direct scripts a bookable direct connection between start and end with a
// seat map that has one free toddler seat, two family seats (one free) and
// three standard seats (two free).
func Direct(start, end, trainID string) Listing {
	duration := durationText(start, end)
	return Listing{
		Summary: page.Summary{
			StartTime:    start,
			EndTime:      end,
			DurationText: duration,
			StartStation: StartStation,
			FinalStation: FinalStation,
		},
		Legs: []page.Leg{{
			StartTime:    start,
			EndTime:      end,
			StartStation: StartStation,
			FinalStation: FinalStation,
			DurationText: duration,
			TrainID:      trainID,
		}},
		Offers: []page.FareOffer{
			{Name: "Sparpreis", PriceText: "63,23 €"},
			{Name: "Flexpreis", PriceText: "159,95 €"},
		},
		SeatMaps: map[int][]page.Seat{0: StandardSeatMap()},
	}
}

// StandardSeatMap is a small seat map across two cars.
func StandardSeatMap() []page.Seat {
	return []page.Seat{
		{CarID: "9", CategoryHint: "Platz 11, Kleinkindabteil", IsFree: true},
		{CarID: "9", CategoryHint: "Platz 12, Familienbereich", AvailabilityHint: "frei"},
		{CarID: "9", CategoryHint: "Platz 13, Familienbereich", AvailabilityHint: "belegt"},
		{CarID: "5", CategoryHint: "Platz 51, Großraum", AvailabilityHint: "frei"},
		{CarID: "6", CategoryHint: "Platz 61, Großraum", IsFree: true},
		{CarID: "6", CategoryHint: "Platz 62, Großraum"},
	}
}

// durationText renders end - start like the listing does ("4h 27min").
func durationText(start, end string) string {
	minutes := clockMinutes(end) - clockMinutes(start)
	if minutes < 0 {
		minutes += 24 * 60
	}
	return fmt.Sprintf("%dh %02dmin", minutes/60, minutes%60)
}

func clockMinutes(clock string) int {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return 0
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	return h*60 + m
}
