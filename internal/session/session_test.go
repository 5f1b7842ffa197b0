package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ressuche.dev/internal/models"
	"ressuche.dev/internal/page/pagetest"
	"ressuche.dev/internal/probe"
)

type collector struct {
	mu          sync.Mutex
	connections []models.Connection
	statuses    []string
	done        int
}

func (c *collector) sinks() Sinks {
	return Sinks{
		Results: ResultFunc(func(conn models.Connection) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.connections = append(c.connections, conn)
		}),
		Status: StatusFunc(func(message string) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.statuses = append(c.statuses, message)
		}),
		Done: DoneFunc(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.done++
		}),
	}
}

func (c *collector) startTimes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	times := make([]string, 0, len(c.connections))
	for _, conn := range c.connections {
		times = append(times, conn.StartTime)
	}
	return times
}

func (c *collector) lastStatus() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.statuses) == 0 {
		return ""
	}
	return c.statuses[len(c.statuses)-1]
}

func testParams() models.SearchParameters {
	return models.SearchParameters{
		TravelDate:          time.Date(2026, time.October, 20, 0, 0, 0, 0, time.UTC),
		EarliestDepTime:     "09:00",
		StartStation:        pagetest.StartStation,
		FinalStation:        pagetest.FinalStation,
		ReservationCategory: models.SeatCategoryFamily,
	}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.ListRetryDelay = 0
	return opts
}

func runSession(t *testing.T, fake *pagetest.Fake, params models.SearchParameters, opts Options) (*Session, *collector, error) {
	t.Helper()
	c := &collector{}
	s := New(fake, params, c.sinks(), opts, nil)
	err := s.Run(context.Background())
	return s, c, err
}

func assertTornDown(t *testing.T, fake *pagetest.Fake, c *collector) {
	t.Helper()
	assert.Equal(t, 1, fake.CallCount("Close"), "client closed exactly once")
	assert.Equal(t, 1, c.done, "done signalled exactly once")
}

func TestSessionEmitsStructurallyEqualConnectionOnce(t *testing.T) {
	fake := pagetest.New(
		[]pagetest.Listing{pagetest.Direct("10:04", "14:31", "ICE 571")},
		[]pagetest.Listing{
			pagetest.Direct("10:04", "14:31", "ICE 999"),
			pagetest.Direct("11:04", "15:31", "ICE 573"),
		},
	)

	s, c, err := runSession(t, fake, testParams(), testOptions())
	require.NoError(t, err)

	assert.Equal(t, StateDone, s.State())
	assert.Equal(t, []string{"10:04", "11:04"}, c.startTimes())
	assert.Equal(t, []string{"ICE 571"}, c.connections[0].TrainIDs(), "the first sighting wins")
	assert.Equal(t, "4:27", c.connections[0].Duration)
	assert.Equal(t, testParams().TravelDate, c.connections[0].Date)
	assert.Equal(t, "Search finished, 2 connections found", c.lastStatus())
	assertTornDown(t, fake, c)
}

func TestSessionAdvancesLowerBoundAndStopsOnStagnation(t *testing.T) {
	fake := pagetest.New(
		[]pagetest.Listing{pagetest.Direct("10:04", "14:31", "ICE 571")},
		[]pagetest.Listing{pagetest.Direct("11:04", "15:31", "ICE 573")},
	)

	_, c, err := runSession(t, fake, testParams(), testOptions())
	require.NoError(t, err)

	require.NotEmpty(t, fake.LowerBounds)
	assert.Equal(t, "10:04", fake.LowerBounds[0])
	assert.Equal(t, "11:04", fake.LowerBounds[len(fake.LowerBounds)-1])
	// one successful request, then three tolerated and one final stagnant request
	assert.Equal(t, 5, fake.CallCount("RequestMoreResults"))
	assert.Len(t, c.connections, 2)
}

func TestSessionEmitsNotBookableConnection(t *testing.T) {
	listing := pagetest.Direct("10:04", "14:31", "ICE 571")
	listing.NoDetail = true
	fake := pagetest.New([]pagetest.Listing{listing})

	_, c, err := runSession(t, fake, testParams(), testOptions())
	require.NoError(t, err)

	require.Len(t, c.connections, 1)
	conn := c.connections[0]
	assert.False(t, conn.Bookable)
	assert.Empty(t, conn.Prices)
	for _, train := range conn.Trains {
		assert.False(t, train.Reservation.InfoAvailable)
	}
}

func TestSessionRescansAfterReload(t *testing.T) {
	listing := pagetest.Direct("10:04", "14:31", "ICE 571")
	listing.AgeInput = true
	fake := pagetest.New([]pagetest.Listing{listing, pagetest.Direct("11:04", "15:31", "ICE 573")})

	_, c, err := runSession(t, fake, testParams(), testOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{"10:04", "11:04"}, c.startTimes())
	assert.Equal(t, 1, fake.CallCount("SupplyAges"))
	assert.Equal(t, []string{"10:04", "10:04", "11:04"}, fake.Opened, "the reloaded connection is probed again")
	assert.True(t, c.connections[0].Trains[0].Reservation.InfoAvailable)
}

func TestSessionFailsAfterTooManyReloads(t *testing.T) {
	listing := pagetest.Direct("10:04", "14:31", "ICE 571")
	listing.AgeInput = true
	fake := pagetest.New([]pagetest.Listing{listing})
	fake.IgnoreAges = true

	s, c, err := runSession(t, fake, testParams(), testOptions())
	assert.ErrorIs(t, err, ErrTooManyReloads)

	assert.Equal(t, StateFailed, s.State())
	assert.Empty(t, c.connections)
	assert.Equal(t, 4, fake.CallCount("SupplyAges"))
	assert.True(t, strings.HasPrefix(c.lastStatus(), ErrorSignature))
	assertTornDown(t, fake, c)
}

func TestSessionSkipsConnectionsBeforeWindow(t *testing.T) {
	fake := pagetest.New([]pagetest.Listing{
		pagetest.Direct("08:12", "12:40", "ICE 579"),
		pagetest.Direct("10:04", "14:31", "ICE 571"),
	})

	_, c, err := runSession(t, fake, testParams(), testOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"10:04"}, c.startTimes())
}

// The listing must be sorted by departure: the first connection after the
// window ends the search even if earlier ones follow it.
func TestSessionStopsOnFirstLateConnectionEvenIfListingUnsorted(t *testing.T) {
	params := testParams()
	params.LatestDepTime = "21:47"
	fake := pagetest.New([]pagetest.Listing{
		pagetest.Direct("10:04", "14:31", "ICE 571"),
		pagetest.Direct("22:00", "02:10", "ICE 1091"),
		pagetest.Direct("11:04", "15:31", "ICE 573"),
	})

	s, c, err := runSession(t, fake, params, testOptions())
	require.NoError(t, err)

	assert.Equal(t, StateDone, s.State())
	assert.Equal(t, []string{"10:04"}, c.startTimes())
	assert.Equal(t, 0, fake.CallCount("RequestMoreResults"))
}

func TestSessionDateHandling(t *testing.T) {
	nextDay := pagetest.Direct("00:15", "06:02", "ICE 1001")
	nextDay.Summary.DifferentDate = true

	t.Run("different day is skipped without date check", func(t *testing.T) {
		fake := pagetest.New([]pagetest.Listing{nextDay, pagetest.Direct("10:04", "14:31", "ICE 571")})
		opts := testOptions()
		opts.CheckDate = false

		_, c, err := runSession(t, fake, testParams(), opts)
		require.NoError(t, err)
		assert.Equal(t, []string{"10:04"}, c.startTimes())
	})

	t.Run("different day ends the search with date check", func(t *testing.T) {
		fake := pagetest.New([]pagetest.Listing{nextDay, pagetest.Direct("10:04", "14:31", "ICE 571")})

		_, c, err := runSession(t, fake, testParams(), testOptions())
		require.NoError(t, err)
		assert.Empty(t, c.connections)
	})

	t.Run("arrival after midnight stays on the travel date", func(t *testing.T) {
		overnight := pagetest.Direct("22:10", "01:30", "ICE 1091")
		fake := pagetest.New([]pagetest.Listing{overnight})

		_, c, err := runSession(t, fake, testParams(), testOptions())
		require.NoError(t, err)
		require.Equal(t, []string{"22:10"}, c.startTimes())
		assert.Equal(t, testParams().TravelDate, c.connections[0].Date)
	})

	t.Run("listed date is used", func(t *testing.T) {
		listing := pagetest.Direct("10:04", "14:31", "ICE 571")
		listing.Summary.Date = "19.10.2026"
		fake := pagetest.New([]pagetest.Listing{listing, pagetest.Direct("11:04", "15:31", "ICE 573")})

		_, c, err := runSession(t, fake, testParams(), testOptions())
		require.NoError(t, err)
		assert.Equal(t, []string{"11:04"}, c.startTimes(), "the day before the travel date is too early")
	})
}

func TestSessionEmptyListing(t *testing.T) {
	fake := pagetest.New([]pagetest.Listing{})

	s, c, err := runSession(t, fake, testParams(), testOptions())
	require.NoError(t, err)

	assert.Equal(t, StateDone, s.State())
	assert.Empty(t, c.connections)
	assert.Contains(t, c.statuses, "No further connections listed")
	assertTornDown(t, fake, c)
}

func TestSessionCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := pagetest.New([]pagetest.Listing{pagetest.Direct("10:04", "14:31", "ICE 571")})
	fake.OnList = func(reads int) { cancel() }
	c := &collector{}
	s := New(fake, testParams(), c.sinks(), testOptions(), nil)

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, StateDone, s.State())
	assert.Empty(t, c.connections)
	assert.Equal(t, 0, fake.CallCount("OpenDetail"), "no probe starts after cancellation")
	assert.Equal(t, "Search cancelled, 0 connections found", c.lastStatus())
	assertTornDown(t, fake, c)
}

func TestSessionRecoversPanic(t *testing.T) {
	fake := pagetest.New([]pagetest.Listing{pagetest.Direct("10:04", "14:31", "ICE 571")})
	fake.PanicOnList = true

	s, c, err := runSession(t, fake, testParams(), testOptions())
	assert.ErrorIs(t, err, ErrPanic)

	assert.Equal(t, StateFailed, s.State())
	assert.Contains(t, c.lastStatus(), "listing exploded")
	assert.True(t, strings.HasPrefix(c.lastStatus(), ErrorSignature))
	assertTornDown(t, fake, c)
}

func TestSessionKeepsResultsOfFailedSearch(t *testing.T) {
	broken := pagetest.Direct("11:04", "15:31", "ICE 573")
	broken.BackFails = true
	fake := pagetest.New([]pagetest.Listing{pagetest.Direct("10:04", "14:31", "ICE 571"), broken})

	s, c, err := runSession(t, fake, testParams(), testOptions())
	require.Error(t, err)

	assert.Equal(t, StateFailed, s.State())
	assert.Equal(t, []string{"10:04"}, c.startTimes())
	assert.Equal(t, 1, s.Emitted())
	assertTornDown(t, fake, c)
}

func TestSessionRetriesListing(t *testing.T) {
	fake := pagetest.New([]pagetest.Listing{pagetest.Direct("10:04", "14:31", "ICE 571")})
	fake.ListErr = errors.New("timeout 5000ms exceeded")

	s, c, err := runSession(t, fake, testParams(), testOptions())
	assert.ErrorIs(t, err, ErrListingUnavailable)

	assert.Equal(t, StateFailed, s.State())
	assert.Equal(t, testOptions().ListRetries+1, fake.CallCount("ListResultItems"))
	assertTornDown(t, fake, c)
}

func TestSessionFailsWhenQueryCannotBeApplied(t *testing.T) {
	fake := pagetest.New()
	fake.ApplyErr = errors.New("net::ERR_NAME_NOT_RESOLVED")

	s, c, err := runSession(t, fake, testParams(), testOptions())
	require.Error(t, err)

	assert.Equal(t, StateFailed, s.State())
	assert.Equal(t, 0, fake.CallCount("ListResultItems"))
	assert.Contains(t, c.lastStatus(), "ERR_NAME_NOT_RESOLVED")
	assertTornDown(t, fake, c)
}

func TestSessionBoundsListingPasses(t *testing.T) {
	fake := pagetest.New([]pagetest.Listing{
		pagetest.Direct("10:04", "14:31", "ICE 571"),
		pagetest.Direct("11:04", "15:31", "ICE 573"),
		pagetest.Direct("12:04", "16:31", "ICE 575"),
	})
	opts := testOptions()
	opts.MaxPasses = 2

	s, c, err := runSession(t, fake, testParams(), opts)
	require.NoError(t, err)

	assert.Equal(t, StateDone, s.State())
	assert.Equal(t, []string{"10:04", "11:04"}, c.startTimes())
}

func TestSessionSkipsConnectionWhoseDetailDoesNotOpen(t *testing.T) {
	stuck := pagetest.Direct("10:04", "14:31", "ICE 571")
	stuck.DetailErr = errors.New("timeout 5000ms exceeded")
	fake := pagetest.New([]pagetest.Listing{
		stuck,
		pagetest.Direct("11:04", "15:31", "ICE 573"),
		pagetest.Direct("12:04", "16:31", "ICE 575"),
	})

	s, c, err := runSession(t, fake, testParams(), testOptions())
	require.NoError(t, err)

	assert.Equal(t, StateDone, s.State())
	assert.Equal(t, []string{"11:04", "12:04"}, c.startTimes())
	assert.Equal(t, []string{"11:04", "12:04"}, fake.Opened)
	// the stuck connection is tried once per pass until its attempts are used up
	assert.Equal(t, 4, fake.CallCount("OpenDetail"))
	assert.Contains(t, c.statuses, "Could not open connection 10:04 - 14:31, will try again")
	assert.Contains(t, c.statuses, "Skipping connection 10:04 - 14:31, its details could not be opened")
	assert.Equal(t, "Search finished, 2 connections found", c.lastStatus())
	assertTornDown(t, fake, c)
}

func TestSessionFailsWhenDetailAndListingAreLost(t *testing.T) {
	stuck := pagetest.Direct("10:04", "14:31", "ICE 571")
	stuck.DetailErr = errors.New("timeout 5000ms exceeded")
	stuck.BackFails = true
	fake := pagetest.New([]pagetest.Listing{stuck, pagetest.Direct("11:04", "15:31", "ICE 573")})

	s, c, err := runSession(t, fake, testParams(), testOptions())
	assert.ErrorIs(t, err, probe.ErrDetailUnreachable)

	assert.Equal(t, StateFailed, s.State())
	assert.Empty(t, c.connections)
	assert.True(t, strings.HasPrefix(c.lastStatus(), ErrorSignature))
	assertTornDown(t, fake, c)
}

func TestSessionReadsLegsOnlyForProbedConnections(t *testing.T) {
	fake := pagetest.New([]pagetest.Listing{
		pagetest.Direct("08:30", "12:57", "ICE 569"),
		pagetest.Direct("10:04", "14:31", "ICE 571"),
		pagetest.Direct("11:04", "15:31", "ICE 573"),
		pagetest.Direct("12:04", "16:31", "ICE 575"),
	})

	_, c, err := runSession(t, fake, testParams(), testOptions())
	require.NoError(t, err)

	require.Len(t, c.connections, 3)
	assert.Equal(t, []string{"ICE 575"}, c.connections[2].TrainIDs())
	assert.Equal(t, 3, fake.CallCount("ReadLegs"), "seen and early connections are judged by their summary")
	assert.Greater(t, fake.CallCount("ReadConnectionSummary"), 3)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "probing_item", StateProbingItem.String())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StatePaginating.Terminal())
}
