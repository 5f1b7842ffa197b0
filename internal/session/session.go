// Package session runs one search against a page client: it walks the
// re-rendering listing, probes every new in-window connection once, and
// paginates until the window is exhausted.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ressuche.dev/internal/catalog"
	"ressuche.dev/internal/logging"
	"ressuche.dev/internal/models"
	"ressuche.dev/internal/page"
	"ressuche.dev/internal/pagination"
	"ressuche.dev/internal/probe"
	"ressuche.dev/internal/timewindow"
)

var (
	// ErrTooManyReloads means the site kept regenerating the listing.
	ErrTooManyReloads = errors.New("listing reloaded too often")
	// ErrListingUnavailable means the listing could not be read at all.
	ErrListingUnavailable = errors.New("listing unavailable")
	// ErrPanic wraps a recovered panic.
	ErrPanic = errors.New("unexpected failure")
)

type State int32

const (
	StateInit State = iota
	StateListLoaded
	StateProbingItem
	StatePaginating
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateListLoaded:
		return "list_loaded"
	case StateProbingItem:
		return "probing_item"
	case StatePaginating:
		return "paginating"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return models.UnknownValue
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

type Options struct {
	// CheckDate compares each connection's calendar day with the travel
	// date. Without it connections flagged as being on another day are
	// skipped.
	CheckDate bool
	// MaxReloads bounds how often the listing may be regenerated by the
	// probe before the session fails.
	MaxReloads int
	// MaxPasses bounds the number of listing reads; zero means unbounded.
	MaxPasses int
	// ListRetries is how often a failed listing read is retried.
	ListRetries int
	// ListRetryDelay is the pause between listing retries.
	ListRetryDelay time.Duration
	// DetailAttempts is how often a connection whose detail view does not
	// open is tried before it is dropped.
	DetailAttempts int
	Labels         probe.Labels
}

func DefaultOptions() Options {
	return Options{
		CheckDate:      true,
		MaxReloads:     3,
		MaxPasses:      1000,
		ListRetries:    2,
		ListRetryDelay: 500 * time.Millisecond,
		DetailAttempts: 2,
		Labels:         probe.DefaultLabels(),
	}
}

type pageResult int

const (
	pageExhausted pageResult = iota
	pageRescan
	pageFinished
)

// Session is single use: Run may be called once.
type Session struct {
	params  models.SearchParameters
	client  page.Client
	opts    Options
	sinks   Sinks
	logger  *slog.Logger
	catalog *catalog.Catalog
	pager   *pagination.Controller
	probe   *probe.Probe

	state   atomic.Int32
	emitted atomic.Int64
	reloads int
	// detailFailures counts failed detail openings per connection.
	detailFailures map[models.Fingerprint]int

	finishOnce sync.Once
}

func New(client page.Client, params models.SearchParameters, sinks Sinks, opts Options, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		params:  params,
		client:  client,
		opts:    opts,
		sinks:   sinks.withDefaults(),
		logger:  logger.With(slog.String("component", "search_session")),
		catalog: catalog.New(),
		pager:   pagination.New(client, params.EffectiveEarliestDepTime(), logger),
		probe:   probe.New(client, opts.Labels, logger),

		detailFailures: make(map[models.Fingerprint]int),
	}
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Emitted returns the number of connections handed to the result sink.
func (s *Session) Emitted() int {
	return int(s.emitted.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}

func (s *Session) notify(format string, args ...any) {
	s.sinks.Status.Notify(fmt.Sprintf(format, args...))
}

// Run executes the search until the window is exhausted, ctx is cancelled
// or a fatal error occurs. Teardown always runs: the client is closed, a
// final status is reported and the done signal is set. A cancelled search
// ends in StateDone and returns the context's error.
func (s *Session) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
		s.finish(err)
	}()

	s.setState(StateInit)
	s.notify("Searching connections %s -> %s on %s from %s",
		s.params.StartStation, s.params.FinalStation,
		s.params.TravelDateString(), s.params.EffectiveEarliestDepTime())
	logging.LogOperation(s.logger, "search_started",
		slog.String("start", s.params.StartStation),
		slog.String("final", s.params.FinalStation),
		slog.String("date", s.params.TravelDateString()))

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.client.ApplyQuery(ctx, s.params); err != nil {
		return fmt.Errorf("apply query: %w", err)
	}
	return s.loop(ctx)
}

func (s *Session) loop(ctx context.Context) error {
	for passes := 0; ; passes++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.opts.MaxPasses > 0 && passes >= s.opts.MaxPasses {
			s.notify("Stopping after %d listing passes", passes)
			return nil
		}

		s.setState(StateListLoaded)
		items, err := s.listItems(ctx)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			s.notify("No further connections listed")
			return nil
		}

		result, err := s.scanPage(ctx, items)
		if err != nil {
			return err
		}
		switch result {
		case pageFinished:
			return nil
		case pageRescan:
			continue
		}

		s.setState(StatePaginating)
		s.notify("Requesting connections after %s", s.pager.LowerBound())
		if !s.pager.RequestMore(ctx) {
			s.notify("No later connections available")
			return nil
		}
	}
}

func (s *Session) listItems(ctx context.Context) ([]page.Item, error) {
	var lastErr error
	for attempt := 0; attempt <= s.opts.ListRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.opts.ListRetryDelay):
			}
		}
		items, err := s.client.ListResultItems(ctx)
		if err == nil {
			return items, nil
		}
		lastErr = err
		logging.LogError(s.logger, "failed to read listing", err, slog.Int("attempt", attempt+1))
	}
	return nil, fmt.Errorf("%w: %w", ErrListingUnavailable, lastErr)
}

// scanPage walks the listing in document order. It returns pageRescan as
// soon as a connection was emitted or the listing was regenerated, because
// in both cases the items no longer describe what is rendered.
func (s *Session) scanPage(ctx context.Context, items []page.Item) (pageResult, error) {
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return pageFinished, err
		}

		conn, err := s.readSummary(ctx, item)
		if err != nil {
			logging.LogError(s.logger, "failed to read connection", err, slog.Int("item", item.Index))
			continue
		}
		if !s.opts.CheckDate && conn.DifferentDate {
			continue
		}

		check, err := timewindow.Classify(conn, s.params, s.opts.CheckDate)
		if err != nil {
			logging.LogError(s.logger, "failed to classify connection", err, slog.String("start_time", conn.StartTime))
			continue
		}
		if check.IsLate() {
			s.notify("Reached connections after the search window (%s)", conn.StartTime)
			return pageFinished, nil
		}
		if check != models.TimeCheckOK || s.catalog.Seen(conn) {
			continue
		}

		if err := ctx.Err(); err != nil {
			return pageFinished, err
		}
		s.catalog.Record(conn)
		s.setState(StateProbingItem)
		s.notify("Checking connection %s - %s", conn.StartTime, conn.EndTime)
		s.readLegs(ctx, item, &conn)

		outcome, err := s.probe.Run(ctx, &conn, item, s.params)
		if err != nil {
			return pageFinished, err
		}
		if outcome == probe.Skipped {
			s.skip(conn)
			s.setState(StateListLoaded)
			continue
		}
		if outcome == probe.ReloadRequired {
			s.reloads++
			discarded := s.catalog.Rollback()
			s.logger.Debug("listing regenerated", slog.Int("discarded", discarded), slog.Int("reloads", s.reloads))
			if s.reloads > s.opts.MaxReloads {
				return pageFinished, ErrTooManyReloads
			}
			s.notify("Listing was reloaded, scanning it again")
			return pageRescan, nil
		}

		s.emit(conn)
		s.pager.Advance(conn.StartTime)
		return pageRescan, nil
	}
	return pageExhausted, nil
}

func (s *Session) emit(conn models.Connection) {
	s.sinks.Results.Emit(conn.Clone())
	s.catalog.Commit()
	s.emitted.Add(1)
	logging.LogOperation(s.logger, "connection_emitted",
		slog.String("connection", conn.Fingerprint().String()),
		slog.Bool("bookable", conn.Bookable))
}

// skip handles a connection whose detail view did not open. It stays
// unrecorded so a later pass retries it, until DetailAttempts is used up.
func (s *Session) skip(conn models.Connection) {
	fp := conn.Fingerprint()
	s.detailFailures[fp]++
	if s.detailFailures[fp] >= max(s.opts.DetailAttempts, 1) {
		// the skipped connection is the only pending fingerprint
		s.catalog.Commit()
		s.notify("Skipping connection %s - %s, its details could not be opened", conn.StartTime, conn.EndTime)
		return
	}
	s.catalog.Rollback()
	s.notify("Could not open connection %s - %s, will try again", conn.StartTime, conn.EndTime)
}

// readSummary builds a connection from the listing entry alone. Legs are
// read separately, and only for connections that get probed.
func (s *Session) readSummary(ctx context.Context, item page.Item) (models.Connection, error) {
	summary, err := s.client.ReadConnectionSummary(ctx, item)
	if err != nil {
		return models.Connection{}, err
	}

	conn := models.Connection{
		Date:          s.connectionDate(summary),
		StartTime:     strings.TrimSpace(summary.StartTime),
		EndTime:       strings.TrimSpace(summary.EndTime),
		Duration:      timewindow.ConvertDurationFormat(summary.DurationText),
		StartStation:  firstNonEmpty(summary.StartStation, s.params.StartStation),
		FinalStation:  firstNonEmpty(summary.FinalStation, s.params.FinalStation),
		DifferentDate: summary.DifferentDate,
		Prices:        map[string]string{},
	}
	return conn, nil
}

func (s *Session) readLegs(ctx context.Context, item page.Item, conn *models.Connection) {
	legs, err := s.client.ReadLegs(ctx, item)
	if err != nil {
		logging.LogError(s.logger, "failed to read legs", err, slog.String("start_time", conn.StartTime))
	}
	for _, leg := range legs {
		conn.Trains = append(conn.Trains, models.Train{
			StartTime:    leg.StartTime,
			EndTime:      leg.EndTime,
			StartStation: leg.StartStation,
			FinalStation: leg.FinalStation,
			Duration:     timewindow.ConvertDurationFormat(leg.DurationText),
			ID:           leg.TrainID,
		})
	}
}

// connectionDate prefers the date shown in the listing. A connection that
// is only flagged as being on another day lies on the following one, since
// the listing never goes back before the travel date.
func (s *Session) connectionDate(summary page.Summary) time.Time {
	if summary.Date != "" {
		if date, err := time.Parse(models.DateLayout, strings.TrimSpace(summary.Date)); err == nil {
			return date
		}
	}
	if summary.DifferentDate {
		return s.params.TravelDate.AddDate(0, 0, 1)
	}
	return s.params.TravelDate
}

func (s *Session) finish(err error) {
	s.finishOnce.Do(func() {
		logging.SafeCloseWithLogging(s.client, s.logger, "close_page_client")

		emitted := s.Emitted()
		switch {
		case err == nil:
			s.setState(StateDone)
			s.notify("Search finished, %d connections found", emitted)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			s.setState(StateDone)
			s.notify("Search cancelled, %d connections found", emitted)
		default:
			s.setState(StateFailed)
			logging.LogError(s.logger, "search failed", err, slog.Int("emitted", emitted))
			s.notify("%s %v", ErrorSignature, err)
		}
		logging.LogOperation(s.logger, "search_finished",
			slog.String("state", s.State().String()),
			slog.Int("emitted", emitted))
		s.sinks.Done.Set()
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
