// Package pagetest provides a scripted page.Client for deterministic tests.
package pagetest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"ressuche.dev/internal/models"
	"ressuche.dev/internal/page"
)

// Listing scripts one entry of the listing and the detail flow behind it.
type Listing struct {
	Summary page.Summary
	Legs    []page.Leg

	NoDetail          bool
	DetailErr         error
	AgeInput          bool
	Offers            []page.FareOffer
	OffersErr         error
	NotSelectable     bool
	NoSeatReservation bool
	SeatMaps          map[int][]page.Seat
	SeatMapErrs       map[int]error
	BackFails         bool
}

// Fake is a page.Client backed by scripted pages. Pages[i] is the listing
// after i successful "more results" requests.
type Fake struct {
	mu sync.Mutex

	Pages [][]Listing

	// StaticIdentity keeps CurrentQueryIdentity constant.
	StaticIdentity bool
	MoreFails      bool
	// IgnoreAges keeps asking for ages after they were supplied.
	IgnoreAges bool
	ListErr    error
	ApplyErr   error
	// PanicOnList makes ListResultItems panic, to exercise recovery.
	PanicOnList bool
	// OnList runs before every listing read with the number of reads so far.
	OnList func(reads int)

	current int
	open    *Listing
	// focus is the entry OpenDetail was last called for, opened or not.
	focus        *Listing
	agesSupplied bool

	Calls       map[string]int
	Applied     []models.SearchParameters
	LowerBounds []string
	Opened      []string
	Closed      int
}

func New(pages ...[]Listing) *Fake {
	return &Fake{Pages: pages, Calls: make(map[string]int)}
}

func (f *Fake) call(name string) {
	if f.Calls == nil {
		f.Calls = make(map[string]int)
	}
	f.Calls[name]++
}

// CallCount returns how often the named method was invoked.
func (f *Fake) CallCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[name]
}

func (f *Fake) listing(item page.Item) (*Listing, error) {
	if f.current >= len(f.Pages) {
		return nil, fmt.Errorf("no page %d", f.current)
	}
	entries := f.Pages[f.current]
	if item.Index < 0 || item.Index >= len(entries) {
		return nil, fmt.Errorf("item %d out of range", item.Index)
	}
	return &entries[item.Index], nil
}

func (f *Fake) ApplyQuery(ctx context.Context, params models.SearchParameters) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("ApplyQuery")
	f.Applied = append(f.Applied, params)
	return f.ApplyErr
}

func (f *Fake) ListResultItems(ctx context.Context) ([]page.Item, error) {
	f.mu.Lock()
	f.call("ListResultItems")
	reads := f.Calls["ListResultItems"]
	hook := f.OnList
	f.mu.Unlock()

	if hook != nil {
		hook(reads)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PanicOnList {
		panic("listing exploded")
	}
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	if f.current >= len(f.Pages) {
		return nil, nil
	}
	items := make([]page.Item, len(f.Pages[f.current]))
	for i := range items {
		items[i] = page.Item{Index: i}
	}
	return items, nil
}

func (f *Fake) ReadConnectionSummary(ctx context.Context, item page.Item) (page.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("ReadConnectionSummary")
	l, err := f.listing(item)
	if err != nil {
		return page.Summary{}, err
	}
	return l.Summary, nil
}

func (f *Fake) ReadLegs(ctx context.Context, item page.Item) ([]page.Leg, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("ReadLegs")
	l, err := f.listing(item)
	if err != nil {
		return nil, err
	}
	return append([]page.Leg(nil), l.Legs...), nil
}

func (f *Fake) OpenDetail(ctx context.Context, item page.Item) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("OpenDetail")
	l, err := f.listing(item)
	if err != nil {
		return false, err
	}
	f.focus = l
	if l.DetailErr != nil {
		return false, l.DetailErr
	}
	if l.NoDetail {
		return false, nil
	}
	f.open = l
	f.Opened = append(f.Opened, l.Summary.StartTime)
	return true, nil
}

func (f *Fake) AgeInputRequired(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("AgeInputRequired")
	if f.open == nil {
		return false, errors.New("detail view not open")
	}
	return f.open.AgeInput && (!f.agesSupplied || f.IgnoreAges), nil
}

// SupplyAges resubmits the query; the listing is re-rendered and the
// detail view is left.
func (f *Fake) SupplyAges(ctx context.Context, params models.SearchParameters) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("SupplyAges")
	f.agesSupplied = true
	f.open = nil
	return true, nil
}

func (f *Fake) ReadFareOffers(ctx context.Context) ([]page.FareOffer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("ReadFareOffers")
	if f.open == nil {
		return nil, errors.New("detail view not open")
	}
	if f.open.OffersErr != nil {
		return nil, f.open.OffersErr
	}
	return append([]page.FareOffer(nil), f.open.Offers...), nil
}

func (f *Fake) SelectCheapestSelectableOffer(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("SelectCheapestSelectableOffer")
	if f.open == nil {
		return false, errors.New("detail view not open")
	}
	return !f.open.NotSelectable && len(f.open.Offers) > 0, nil
}

func (f *Fake) EnableSeatReservation(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("EnableSeatReservation")
	if f.open == nil {
		return false, errors.New("detail view not open")
	}
	return !f.open.NoSeatReservation, nil
}

func (f *Fake) ReadSeatMap(ctx context.Context, legIndex int) ([]page.Seat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("ReadSeatMap")
	if f.open == nil {
		return nil, errors.New("detail view not open")
	}
	if err := f.open.SeatMapErrs[legIndex]; err != nil {
		return nil, err
	}
	seats, ok := f.open.SeatMaps[legIndex]
	if !ok {
		return nil, page.ErrNoSeatMap
	}
	return append([]page.Seat(nil), seats...), nil
}

func (f *Fake) GoBackToListing(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("GoBackToListing")
	if f.focus != nil && f.focus.BackFails {
		return false, nil
	}
	f.open = nil
	f.focus = nil
	return true, nil
}

func (f *Fake) RequestMoreResults(ctx context.Context, lowerBound string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("RequestMoreResults")
	f.LowerBounds = append(f.LowerBounds, lowerBound)
	if f.MoreFails {
		return false, nil
	}
	if f.current < len(f.Pages)-1 {
		f.current++
	}
	return true, nil
}

func (f *Fake) CurrentQueryIdentity(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("CurrentQueryIdentity")
	if f.StaticIdentity {
		return "static", nil
	}
	return "page-" + strconv.Itoa(f.current), nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("Close")
	f.Closed++
	return nil
}
