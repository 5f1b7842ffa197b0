// Package pagination asks the listing for later connections and detects
// when the site stops delivering new ones.
package pagination

import (
	"context"
	"log/slog"

	"ressuche.dev/internal/logging"
	"ressuche.dev/internal/page"
	"ressuche.dev/internal/timewindow"
)

// MaxStagnantRequests is how many consecutive requests may leave the query
// identity unchanged before the listing counts as exhausted.
const MaxStagnantRequests = 3

type Controller struct {
	client     page.Client
	logger     *slog.Logger
	lowerBound string
	stagnant   int
	requests   int
}

// New returns a controller whose lower bound starts at the earliest
// departure time of the search.
func New(client page.Client, earliest string, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		client:     client,
		lowerBound: earliest,
		logger:     logger.With(slog.String("component", "pagination")),
	}
}

// LowerBound is the departure time later results are requested from.
func (c *Controller) LowerBound() string {
	return c.lowerBound
}

// Advance moves the lower bound to start if start is a later time of day.
// The bound is kept in "15:04" form.
func (c *Controller) Advance(start string) {
	next, err := timewindow.ParseClock(start)
	if err != nil {
		c.logger.Debug("ignoring unparseable start time", slog.String("start", start))
		return
	}
	current, err := timewindow.ParseClock(c.lowerBound)
	if err != nil || next.After(current) {
		c.lowerBound = next.Format(timewindow.ClockLayout)
	}
}

// Stagnant returns the number of consecutive requests without progress.
func (c *Controller) Stagnant() int {
	return c.stagnant
}

// RequestMore asks for later results. It reports false once more than
// MaxStagnantRequests consecutive requests failed to change the listing.
func (c *Controller) RequestMore(ctx context.Context) bool {
	c.requests++
	before, err := c.client.CurrentQueryIdentity(ctx)
	if err != nil {
		logging.LogError(c.logger, "failed to read query identity", err)
	}

	progressed := false
	ok, err := c.client.RequestMoreResults(ctx, c.lowerBound)
	switch {
	case err != nil:
		logging.LogError(c.logger, "request for more results failed", err,
			slog.String("lower_bound", c.lowerBound))
	case ok:
		after, err := c.client.CurrentQueryIdentity(ctx)
		if err != nil {
			logging.LogError(c.logger, "failed to read query identity", err)
		} else {
			progressed = after != before
		}
	}

	if progressed {
		c.stagnant = 0
		return true
	}

	c.stagnant++
	c.logger.Debug("listing did not change",
		slog.Int("stagnant", c.stagnant),
		slog.Int("requests", c.requests),
		slog.String("lower_bound", c.lowerBound))
	return c.stagnant <= MaxStagnantRequests
}
