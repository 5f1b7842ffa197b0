// Package page defines the contract between the search core and whatever
// drives the booking site (a real browser, a replay fixture, a test fake).
package page

import (
	"context"
	"errors"

	"ressuche.dev/internal/models"
)

// ErrNoSeatMap is returned by ReadSeatMap when a leg has no seat map.
var ErrNoSeatMap = errors.New("no seat map for leg")

// Item is a handle to one entry of the current listing. It is re-resolved
// on every call, so it never goes stale the way a DOM reference does; it
// only becomes meaningless when the listing itself changes.
type Item struct {
	Index int
}

// Summary is what the listing shows for one connection.
type Summary struct {
	StartTime    string
	EndTime      string
	DurationText string
	StartStation string
	FinalStation string
	Date         string // DD.MM.YYYY, empty when the listing shows no date
	// DifferentDate means the departure is on another day than the query
	// date. An arrival after midnight does not set it.
	DifferentDate bool
}

// Leg is one train of a connection as shown in the listing.
type Leg struct {
	StartTime    string
	EndTime      string
	StartStation string
	FinalStation string
	DurationText string
	TrainID      string
}

// FareOffer is one fare card of the detail view.
type FareOffer struct {
	Name      string
	PriceText string
}

// Seat is one entry of a train's seat map.
type Seat struct {
	CarID            string
	CategoryHint     string
	IsFree           bool
	AvailabilityHint string
}

// Client drives one booking-site session. Implementations own a single
// serial resource and are not safe for concurrent use. Every call must
// return within a bounded wait.
type Client interface {
	// ApplyQuery navigates to the listing for params.
	ApplyQuery(ctx context.Context, params models.SearchParameters) error

	ListResultItems(ctx context.Context) ([]Item, error)
	ReadConnectionSummary(ctx context.Context, item Item) (Summary, error)
	ReadLegs(ctx context.Context, item Item) ([]Leg, error)

	// OpenDetail returns false when the item has no select/continue affordance.
	OpenDetail(ctx context.Context, item Item) (bool, error)
	AgeInputRequired(ctx context.Context) (bool, error)
	SupplyAges(ctx context.Context, params models.SearchParameters) (bool, error)
	ReadFareOffers(ctx context.Context) ([]FareOffer, error)
	SelectCheapestSelectableOffer(ctx context.Context) (bool, error)
	EnableSeatReservation(ctx context.Context) (bool, error)
	ReadSeatMap(ctx context.Context, legIndex int) ([]Seat, error)
	GoBackToListing(ctx context.Context) (bool, error)

	RequestMoreResults(ctx context.Context, lowerBound string) (bool, error)
	CurrentQueryIdentity(ctx context.Context) (string, error)

	// Close releases the underlying resource.
	Close() error
}

// Factory creates a fresh client for one session.
type Factory func(ctx context.Context) (Client, error)
