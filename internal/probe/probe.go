// Package probe drills into the detail flow of one connection to collect
// its fares and per-train seat availability, then returns to the listing.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ressuche.dev/internal/logging"
	"ressuche.dev/internal/models"
	"ressuche.dev/internal/page"
)

var (
	// ErrDetailUnreachable means the detail view of a connection could not
	// be opened and the listing could not be restored afterwards.
	ErrDetailUnreachable = errors.New("detail view unreachable")
	// ErrListingLost means the probe could not navigate back to the listing.
	ErrListingLost = errors.New("could not return to listing")
)

// Outcome is the non-error result of probing one connection.
type Outcome int

const (
	// Complete means fares and seat maps of every leg were read.
	Complete Outcome = iota
	// NotBookable means the connection offers no way to continue to booking.
	NotBookable
	// Partial means probing stopped early or some legs have no seat info.
	Partial
	// ReloadRequired means extra input was supplied and the listing was
	// regenerated; everything scraped from it so far is void.
	ReloadRequired
	// Skipped means the detail view failed to open but the listing is
	// intact. Nothing was collected.
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Complete:
		return "complete"
	case NotBookable:
		return "not_bookable"
	case Partial:
		return "partial"
	case ReloadRequired:
		return "reload_required"
	case Skipped:
		return "skipped"
	default:
		return models.UnknownValue
	}
}

type Probe struct {
	client page.Client
	labels Labels
	logger *slog.Logger
}

func New(client page.Client, labels Labels, logger *slog.Logger) *Probe {
	if logger == nil {
		logger = slog.Default()
	}
	return &Probe{
		client: client,
		labels: labels,
		logger: logger.With(slog.String("component", "reservation_probe")),
	}
}

// Run probes conn, whose listing entry is item, and fills in its prices and
// the reservation information of its trains. Unless ReloadRequired is
// returned, the client is back on the listing when Run returns without error.
func (p *Probe) Run(ctx context.Context, conn *models.Connection, item page.Item, params models.SearchParameters) (Outcome, error) {
	opened, err := p.client.OpenDetail(ctx, item)
	if err != nil {
		logging.LogError(p.logger, "failed to open detail view", err, slog.String("connection", conn.StartTime))
		if _, backErr := p.backToListing(ctx, Skipped); backErr != nil {
			return Skipped, fmt.Errorf("%w: %w", ErrDetailUnreachable, backErr)
		}
		return Skipped, nil
	}
	if !opened {
		conn.MarkNotBookable()
		return NotBookable, nil
	}
	conn.Bookable = true

	required, err := p.client.AgeInputRequired(ctx)
	if err != nil {
		logging.LogError(p.logger, "age input check failed", err, slog.String("connection", conn.StartTime))
	}
	if required {
		supplied, err := p.client.SupplyAges(ctx, params)
		if err == nil && supplied {
			logging.LogOperation(p.logger, "ages_supplied_reload_required", slog.String("connection", conn.StartTime))
			return ReloadRequired, nil
		}
		if err != nil {
			logging.LogError(p.logger, "failed to supply ages", err, slog.String("connection", conn.StartTime))
		}
		return p.backToListing(ctx, Partial)
	}

	return p.backToListing(ctx, p.collect(ctx, conn))
}

func (p *Probe) collect(ctx context.Context, conn *models.Connection) Outcome {
	if conn.Prices == nil {
		conn.Prices = make(map[string]string)
	}
	offers, err := p.client.ReadFareOffers(ctx)
	if err != nil {
		logging.LogError(p.logger, "failed to read fare offers", err, slog.String("connection", conn.StartTime))
	}
	for _, offer := range offers {
		if offer.Name == "" {
			continue
		}
		conn.Prices[offer.Name] = offer.PriceText
	}

	selected, err := p.client.SelectCheapestSelectableOffer(ctx)
	if err != nil {
		logging.LogError(p.logger, "failed to select offer", err, slog.String("connection", conn.StartTime))
	}
	if !selected {
		return Partial
	}

	enabled, err := p.client.EnableSeatReservation(ctx)
	if err != nil {
		logging.LogError(p.logger, "failed to enable seat reservation", err, slog.String("connection", conn.StartTime))
	}
	if !enabled {
		return Partial
	}

	if len(conn.Trains) == 0 {
		return Partial
	}

	outcome := Complete
	for i := range conn.Trains {
		seats, err := p.client.ReadSeatMap(ctx, i)
		if err != nil {
			logging.LogError(p.logger, "seat map unavailable", err,
				slog.String("connection", conn.StartTime),
				slog.String("train", conn.Trains[i].ID),
				slog.Int("leg", i))
			conn.Trains[i].Reservation = models.ReservationInformation{InfoAvailable: false}
			outcome = Partial
			continue
		}
		conn.Trains[i].Reservation = p.labels.Tally(seats)
		if !conn.Trains[i].Reservation.InfoAvailable {
			outcome = Partial
		}
	}
	return outcome
}

// backToListing is the resynchronization point of every probe.
func (p *Probe) backToListing(ctx context.Context, outcome Outcome) (Outcome, error) {
	ok, err := p.client.GoBackToListing(ctx)
	if err != nil {
		return outcome, fmt.Errorf("%w: %w", ErrListingLost, err)
	}
	if !ok {
		return outcome, ErrListingLost
	}
	return outcome, nil
}
