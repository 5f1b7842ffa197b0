// Package browser implements page.Client on top of a Playwright driven
// browser.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/time/rate"

	"ressuche.dev/internal/logging"
	"ressuche.dev/internal/models"
	"ressuche.dev/internal/page"
)

type Config struct {
	Engine    string // chromium or firefox
	Headless  bool
	BaseURL   string
	Timeout   time.Duration
	Selectors Selectors
}

// Client owns one browser with a single page. It is not safe for
// concurrent use.
type Client struct {
	config  Config
	sel     Selectors
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
	limiter *rate.Limiter
	logger  *slog.Logger

	params    models.SearchParameters
	closeOnce sync.Once
	closeErr  error
}

// NewFactory returns a page.Factory whose clients share one navigation
// budget of perMinute page loads and clicks.
func NewFactory(config Config, perMinute int, logger *slog.Logger) page.Factory {
	if perMinute <= 0 {
		perMinute = 30
	}
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 3)
	return func(ctx context.Context) (page.Client, error) {
		return Launch(ctx, config, limiter, logger)
	}
}

// Launch starts the Playwright driver and a browser.
func Launch(ctx context.Context, config Config, limiter *rate.Limiter, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Selectors == (Selectors{}) {
		config.Selectors = DefaultSelectors()
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("error starting playwright: %w", err)
	}

	engine := pw.Chromium
	if strings.EqualFold(config.Engine, "firefox") {
		engine = pw.Firefox
	}
	browser, err := engine.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(config.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("error launching browser: %w", err)
	}

	p, err := browser.NewPage(playwright.BrowserNewPageOptions{
		Locale: playwright.String("de-DE"),
	})
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("error opening page: %w", err)
	}
	p.SetDefaultTimeout(milliseconds(config.Timeout))

	return &Client{
		config:  config,
		sel:     config.Selectors,
		pw:      pw,
		browser: browser,
		page:    p,
		limiter: limiter,
		logger:  logger.With(slog.String("component", "browser_client")),
	}, nil
}

func milliseconds(d time.Duration) float64 {
	return float64(d / time.Millisecond)
}

// navigate waits for the shared navigation budget.
func (c *Client) navigate(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

func (c *Client) timeout() *float64 {
	return playwright.Float(milliseconds(c.config.Timeout))
}

func (c *Client) item(item page.Item) playwright.Locator {
	return c.page.Locator(c.sel.ResultItem).Nth(item.Index)
}

// text returns the trimmed text of the first match, or "" when absent.
func text(loc playwright.Locator) string {
	n, err := loc.Count()
	if err != nil || n == 0 {
		return ""
	}
	content, err := loc.First().TextContent()
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(content), " ")
}

func present(loc playwright.Locator) bool {
	n, err := loc.Count()
	return err == nil && n > 0
}

func (c *Client) ApplyQuery(ctx context.Context, params models.SearchParameters) error {
	c.params = params
	return c.load(ctx, params)
}

func (c *Client) load(ctx context.Context, params models.SearchParameters) error {
	if err := c.navigate(ctx); err != nil {
		return err
	}
	target := QueryURL(c.config.BaseURL, params)
	if _, err := c.page.Goto(target, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("error loading %s: %w", target, err)
	}
	c.acceptCookies()
	return nil
}

// acceptCookies dismisses the consent dialog if it shows up.
func (c *Client) acceptCookies() {
	button := c.page.Locator(c.sel.CookieAccept)
	if err := button.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: c.timeout(),
	}); err != nil {
		return
	}
	if err := button.Click(); err != nil {
		logging.LogError(c.logger, "failed to accept cookies", err)
	}
}

func (c *Client) ListResultItems(ctx context.Context) ([]page.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items := c.page.Locator(c.sel.ResultItem)
	err := items.First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: c.timeout(),
	})
	if err != nil {
		// An empty listing and a "no results" notice look the same to us.
		if errors.Is(err, playwright.ErrTimeout) {
			if present(c.page.Locator(c.sel.NoResults)) {
				c.logger.Debug("listing reports no results")
			}
			return nil, nil
		}
		return nil, fmt.Errorf("error waiting for listing: %w", err)
	}

	n, err := items.Count()
	if err != nil {
		return nil, fmt.Errorf("error counting listing entries: %w", err)
	}
	handles := make([]page.Item, n)
	for i := range handles {
		handles[i] = page.Item{Index: i}
	}
	return handles, nil
}

func (c *Client) ReadConnectionSummary(ctx context.Context, item page.Item) (page.Summary, error) {
	entry := c.item(item)
	if !present(entry) {
		return page.Summary{}, fmt.Errorf("listing entry %d not found", item.Index)
	}
	summary := page.Summary{
		StartTime:     text(entry.Locator(c.sel.StartTime)),
		EndTime:       text(entry.Locator(c.sel.EndTime)),
		DurationText:  text(entry.Locator(c.sel.Duration)),
		StartStation:  text(entry.Locator(c.sel.StartStation)),
		FinalStation:  text(entry.Locator(c.sel.FinalStation)),
		DifferentDate: present(entry.Locator(c.sel.DifferentDate)),
	}
	if summary.StartTime == "" {
		return page.Summary{}, fmt.Errorf("listing entry %d has no departure time", item.Index)
	}
	summary.Date = c.dateOf(item)
	return summary, nil
}

// dateOf returns the date of the last divider rendered before the entry.
func (c *Client) dateOf(item page.Item) string {
	dividers, err := c.page.Locator(c.sel.DateDivider).All()
	if err != nil || len(dividers) == 0 {
		return ""
	}
	entryBox, err := c.item(item).BoundingBox()
	if err != nil || entryBox == nil {
		return ""
	}
	date := ""
	for _, divider := range dividers {
		box, err := divider.BoundingBox()
		if err != nil || box == nil || box.Y > entryBox.Y {
			break
		}
		content, err := divider.TextContent()
		if err != nil {
			continue
		}
		if d := normalizeListingDate(content); d != "" {
			date = d
		}
	}
	return date
}

func (c *Client) ReadLegs(ctx context.Context, item page.Item) ([]page.Leg, error) {
	entry := c.item(item)
	legs := entry.Locator(c.sel.Leg)
	if !present(legs) {
		toggle := entry.Locator(c.sel.LegToggle)
		if present(toggle) {
			if err := toggle.First().Click(); err != nil {
				return nil, fmt.Errorf("error expanding legs: %w", err)
			}
			_ = legs.First().WaitFor(playwright.LocatorWaitForOptions{Timeout: c.timeout()})
		}
	}

	all, err := legs.All()
	if err != nil {
		return nil, fmt.Errorf("error reading legs: %w", err)
	}
	out := make([]page.Leg, 0, len(all))
	for _, leg := range all {
		out = append(out, page.Leg{
			StartTime:    text(leg.Locator(c.sel.LegStart)),
			EndTime:      text(leg.Locator(c.sel.LegEnd)),
			StartStation: text(leg.Locator(c.sel.LegStartStop)),
			FinalStation: text(leg.Locator(c.sel.LegEndStop)),
			DurationText: text(leg.Locator(c.sel.LegDuration)),
			TrainID:      text(leg.Locator(c.sel.LegTrainID)),
		})
	}
	return out, nil
}

func (c *Client) OpenDetail(ctx context.Context, item page.Item) (bool, error) {
	button := c.item(item).Locator(c.sel.DetailButton)
	if !present(button) {
		return false, nil
	}
	if err := c.navigate(ctx); err != nil {
		return false, err
	}
	if err := button.First().Click(); err != nil {
		return false, fmt.Errorf("error opening detail view: %w", err)
	}
	return true, nil
}

func (c *Client) AgeInputRequired(ctx context.Context) (bool, error) {
	inputs := c.page.Locator(c.sel.AgeInput)
	err := inputs.First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(milliseconds(c.config.Timeout / 2)),
	})
	if errors.Is(err, playwright.ErrTimeout) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) SupplyAges(ctx context.Context, params models.SearchParameters) (bool, error) {
	inputs, err := c.page.Locator(c.sel.AgeInput).All()
	if err != nil {
		return false, err
	}
	ages := AgesForInput(params)
	for i, input := range inputs {
		age := defaultAdultAge
		if i < len(ages) {
			age = ages[i]
		}
		if err := input.Fill(strconv.Itoa(age)); err != nil {
			return false, fmt.Errorf("error entering age %d: %w", i+1, err)
		}
	}
	if err := c.navigate(ctx); err != nil {
		return false, err
	}
	if err := c.page.Locator(c.sel.AgeSubmit).First().Click(); err != nil {
		return false, fmt.Errorf("error submitting ages: %w", err)
	}
	return true, nil
}

func (c *Client) offers() ([]playwright.Locator, error) {
	offers := c.page.Locator(c.sel.FareOffer)
	if err := offers.First().WaitFor(playwright.LocatorWaitForOptions{Timeout: c.timeout()}); err != nil {
		return nil, err
	}
	return offers.All()
}

func (c *Client) ReadFareOffers(ctx context.Context) ([]page.FareOffer, error) {
	offers, err := c.offers()
	if err != nil {
		return nil, fmt.Errorf("error reading fare offers: %w", err)
	}
	out := make([]page.FareOffer, 0, len(offers))
	for _, offer := range offers {
		out = append(out, page.FareOffer{
			Name:      text(offer.Locator(c.sel.FareName)),
			PriceText: text(offer.Locator(c.sel.FarePrice)),
		})
	}
	return out, nil
}

func (c *Client) SelectCheapestSelectableOffer(ctx context.Context) (bool, error) {
	offers, err := c.offers()
	if err != nil {
		return false, fmt.Errorf("error reading fare offers: %w", err)
	}

	var (
		buttons []playwright.Locator
		prices  []string
	)
	for _, offer := range offers {
		button := offer.Locator(c.sel.FareSelect)
		if !present(button) {
			continue
		}
		if enabled, err := button.First().IsEnabled(); err != nil || !enabled {
			continue
		}
		buttons = append(buttons, button.First())
		prices = append(prices, text(offer.Locator(c.sel.FarePrice)))
	}
	choice := pickOffer(prices)
	if choice < 0 {
		return false, nil
	}
	if err := buttons[choice].Click(); err != nil {
		return false, fmt.Errorf("error selecting offer: %w", err)
	}
	return true, nil
}

// pickOffer returns the index of the cheapest offer by euro price, or of
// the first one when no price can be read. It is -1 without offers.
func pickOffer(prices []string) int {
	if len(prices) == 0 {
		return -1
	}
	choice, best := 0, math.MaxInt
	for i, priceText := range prices {
		if price, ok := models.PriceEuros(priceText); ok && price < best {
			choice, best = i, price
		}
	}
	return choice
}

func (c *Client) EnableSeatReservation(ctx context.Context) (bool, error) {
	toggle := c.page.Locator(c.sel.SeatReservation)
	if err := toggle.First().WaitFor(playwright.LocatorWaitForOptions{Timeout: c.timeout()}); err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return false, nil
		}
		return false, err
	}
	if err := toggle.First().Check(); err != nil {
		return false, fmt.Errorf("error enabling seat reservation: %w", err)
	}
	return true, nil
}

func (c *Client) ReadSeatMap(ctx context.Context, legIndex int) ([]page.Seat, error) {
	tabs := c.page.Locator(c.sel.SeatMapTab)
	n, err := tabs.Count()
	if err != nil {
		return nil, err
	}
	if legIndex >= n {
		return nil, page.ErrNoSeatMap
	}
	tab := tabs.Nth(legIndex)
	if err := tab.Click(); err != nil {
		return nil, fmt.Errorf("error opening seat map of leg %d: %w", legIndex, err)
	}

	controls, _ := tab.GetAttribute("aria-controls")
	panel := c.page.Locator(seatMapPanel(c.sel, controls, legIndex))
	defer c.closeSeatMap(panel, legIndex)
	if err := panel.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: c.timeout(),
	}); err != nil {
		return nil, fmt.Errorf("error waiting for seat map of leg %d: %w", legIndex, err)
	}

	seats := panel.Locator(c.sel.Seat)
	if present(panel.Locator(c.sel.SeatMapFrame)) {
		seats = panel.FrameLocator(c.sel.SeatMapFrame).Locator(c.sel.Seat)
	}
	if err := seats.First().WaitFor(playwright.LocatorWaitForOptions{Timeout: c.timeout()}); err != nil {
		return nil, fmt.Errorf("error waiting for seat map of leg %d: %w", legIndex, err)
	}
	all, err := seats.All()
	if err != nil {
		return nil, err
	}

	out := make([]page.Seat, 0, len(all))
	for _, seat := range all {
		label, _ := seat.GetAttribute("aria-label")
		class, _ := seat.GetAttribute("class")
		car, _ := seat.GetAttribute(c.sel.SeatCar)
		out = append(out, page.Seat{
			CarID:            car,
			CategoryHint:     label,
			IsFree:           strings.Contains(class, c.sel.FreeSeatClass),
			AvailabilityHint: label,
		})
	}
	return out, nil
}

// seatMapPanel selects the panel a seat map tab controls, so seats of other
// legs that are still mounted are never counted.
func seatMapPanel(sel Selectors, controls string, legIndex int) string {
	if controls = strings.TrimSpace(controls); controls != "" {
		return fmt.Sprintf("[id=%q]", controls)
	}
	return fmt.Sprintf("%s >> nth=%d", sel.SeatMapPanel, legIndex)
}

func (c *Client) closeSeatMap(panel playwright.Locator, legIndex int) {
	closeButton := panel.Locator(c.sel.SeatMapClose)
	if !present(closeButton) {
		return
	}
	err := closeButton.First().Click()
	if err == nil {
		err = panel.WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateHidden,
			Timeout: c.timeout(),
		})
	}
	if err != nil {
		c.logger.Debug("seat map stayed open", slog.Int("leg", legIndex), slog.String("error", err.Error()))
	}
}

func (c *Client) GoBackToListing(ctx context.Context) (bool, error) {
	if err := c.navigate(ctx); err != nil {
		return false, err
	}
	back := c.page.Locator(c.sel.BackToListing)
	if present(back) {
		if err := back.First().Click(); err != nil {
			return false, fmt.Errorf("error returning to listing: %w", err)
		}
	} else if _, err := c.page.GoBack(); err != nil {
		return false, fmt.Errorf("error returning to listing: %w", err)
	}

	err := c.page.Locator(c.sel.ResultItem).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: c.timeout(),
	})
	if errors.Is(err, playwright.ErrTimeout) {
		return false, nil
	}
	return err == nil, err
}

// RequestMoreResults clicks the "later connections" control when there is
// one and otherwise reloads the query from lowerBound.
func (c *Client) RequestMoreResults(ctx context.Context, lowerBound string) (bool, error) {
	later := c.page.Locator(c.sel.LaterButton)
	if present(later) {
		if err := c.navigate(ctx); err != nil {
			return false, err
		}
		if err := later.First().Click(); err != nil {
			return false, fmt.Errorf("error requesting later connections: %w", err)
		}
		return true, nil
	}
	if err := c.load(ctx, c.params.WithEarliestDepTime(lowerBound)); err != nil {
		return false, err
	}
	return true, nil
}

// CurrentQueryIdentity changes whenever the URL or the rendered listing does.
func (c *Client) CurrentQueryIdentity(ctx context.Context) (string, error) {
	items := c.page.Locator(c.sel.ResultItem)
	n, err := items.Count()
	if err != nil {
		return "", err
	}
	last := ""
	if n > 0 {
		last = text(items.Nth(n - 1).Locator(c.sel.StartTime))
	}
	return fmt.Sprintf("%s|%d|%s", c.page.URL(), n, last), nil
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		var errs []error
		if err := c.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing browser: %w", err))
		}
		if err := c.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("error stopping playwright: %w", err))
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}
