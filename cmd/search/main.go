// Command search runs one seat reservation search in a local browser and
// prints the connections as they are found.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"ressuche.dev/internal/appconf"
	"ressuche.dev/internal/history"
	"ressuche.dev/internal/logging"
	"ressuche.dev/internal/models"
	"ressuche.dev/internal/page/browser"
	"ressuche.dev/internal/session"
	"ressuche.dev/internal/stations"
	"ressuche.dev/internal/utils"
)

func main() {
	cfg := appconf.LoadDefaults()
	var (
		req        utils.SearchRequest
		passengers string
		dbPath     string
		checkDate  bool
		maxPasses  int
	)

	flag.StringVar(&req.TravelDate, "date", time.Now().Format(models.DateLayout), "Travel date (YYYY-MM-DD or DD.MM.YYYY)")
	flag.StringVar(&req.EarliestDepTime, "from-time", "", "Earliest departure (HH:MM)")
	flag.StringVar(&req.LatestDepTime, "to-time", "", "Latest departure (HH:MM)")
	flag.StringVar(&req.StartStation, "from", "", "Start station")
	flag.StringVar(&req.FinalStation, "to", "", "Final station")
	flag.StringVar(&req.ReservationCategory, "category", string(models.SeatCategoryStandard), "Seat category (STANDARD|FAMILY|TODDLER)")
	flag.StringVar(&passengers, "passengers", "ADULT_27_64", "Comma separated passengers as GROUP[:AGE[:CARD[:CLASS]]]")
	flag.BoolVar(&req.OnlyDirect, "direct", false, "Only direct connections")
	flag.BoolVar(&req.OnlyFast, "fast", false, "Only fast trains")
	flag.BoolVar(&checkDate, "check-date", true, "Skip connections that leave on another day")
	flag.IntVar(&maxPasses, "max-passes", session.DefaultOptions().MaxPasses, "Upper bound on listing reads (0 is unbounded)")
	flag.StringVar(&dbPath, "db", "", "Record the search in this SQLite history file")
	flag.StringVar(&cfg.StationsPath, "stations", cfg.StationsPath, "GTFS feed (path or URL) used to resolve station ids")
	flag.StringVar(&cfg.Browser.Engine, "browser", cfg.Browser.Engine, "Browser engine (chromium|firefox)")
	flag.BoolVar(&cfg.Browser.Headless, "headless", cfg.Browser.Headless, "Run the browser headless")
	flag.StringVar(&cfg.Browser.BaseURL, "base-url", cfg.Browser.BaseURL, "Booking site base URL")
	flag.DurationVar(&cfg.Browser.Timeout, "page-timeout", cfg.Browser.Timeout, "Timeout for single page interactions")
	flag.IntVar(&cfg.Browser.NavPerMin, "navigations-per-minute", cfg.Browser.NavPerMin, "Page loads and clicks per minute")
	flag.StringVar(&cfg.LogLevel, "log-level", "warn", "Log level (debug|info|warn|error)")
	flag.Parse()

	logger := logging.NewStructuredLogger(os.Stderr, logging.ParseLevel(cfg.LogLevel))

	parsed, err := parsePassengers(passengers)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	req.Passengers = parsed

	params, fieldErrors := req.ToParameters(time.Now())
	if len(fieldErrors) > 0 {
		printFieldErrors(os.Stderr, fieldErrors)
		os.Exit(2)
	}

	opts := session.DefaultOptions()
	opts.CheckDate = checkDate
	opts.MaxPasses = maxPasses

	if err := run(cfg, params, opts, dbPath, logger); err != nil {
		logging.LogError(logger, "search failed", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg appconf.Config, params models.SearchParameters, opts session.Options, dbPath string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.StationsPath != "" {
		directory, err := stations.Load(ctx, cfg.StationsPath)
		if err != nil {
			logging.LogError(logger, "failed to load stations", err)
		} else {
			resolveStations(directory, &params)
		}
	}

	var recorder session.Recorder
	if dbPath != "" {
		store, err := history.Open(history.Config{DBPath: dbPath, Env: cfg.Env}, logger)
		if err != nil {
			return err
		}
		defer logging.SafeCloseWithLogging(store, logger, "close_history")
		recorder = store
	}

	factory := browser.NewFactory(browser.Config{
		Engine:    cfg.Browser.Engine,
		Headless:  cfg.Browser.Headless,
		BaseURL:   cfg.Browser.BaseURL,
		Timeout:   cfg.Browser.Timeout,
		Selectors: browser.DefaultSelectors(),
	}, cfg.Browser.NavPerMin, logger)

	client, err := factory(ctx)
	if err != nil {
		return fmt.Errorf("could not start browser: %w", err)
	}
	defer logging.SafeCloseWithLogging(client, logger, "close_page_client")

	params.SearchStarted = time.Now()
	out := &printer{w: os.Stdout, params: params, recorder: recorder, id: uuid.NewString()}
	if recorder != nil {
		if err := recorder.SaveSearch(ctx, out.id, params, params.SearchStarted); err != nil {
			logging.LogError(logger, "failed to persist search", err)
		}
	}

	s := session.New(client, params, session.Sinks{
		Results: session.ResultFunc(out.connection),
		Status:  session.StatusFunc(out.status),
	}, opts, logger)
	runErr := s.Run(ctx)

	if recorder != nil {
		// the signal context may be done already
		writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := recorder.FinishSearch(writeCtx, out.id, s.State().String(), out.last, time.Now()); err != nil {
			logging.LogError(logger, "failed to persist search", err)
		}
		fmt.Fprintf(os.Stderr, "recorded as %s\n", out.id)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if s.State() == session.StateFailed {
		return errors.New(out.last)
	}
	return nil
}

func resolveStations(directory *stations.Directory, params *models.SearchParameters) {
	if station, ok := directory.Resolve(params.StartStation); ok {
		params.StartStation, params.StartStationID = station.Name, station.ID
	}
	if station, ok := directory.Resolve(params.FinalStation); ok {
		params.FinalStation, params.FinalStationID = station.Name, station.ID
	}
}

// printer writes found connections and status lines and mirrors the
// connections into the history when a recorder is set.
type printer struct {
	w        io.Writer
	params   models.SearchParameters
	recorder session.Recorder
	id       string
	seq      int
	last     string
}

func (p *printer) connection(conn models.Connection) {
	summary := models.NewConnectionSummary(conn, p.params)
	line := fmt.Sprintf("%-11s %s", summary.Assessment, conn)
	if summary.Cheapest != nil {
		line += fmt.Sprintf("  from %s (%s)", summary.Cheapest.Price, summary.Cheapest.Name)
	}
	fmt.Fprintln(p.w, line)

	if p.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.recorder.AppendConnection(ctx, p.id, p.seq, conn); err != nil {
			fmt.Fprintf(os.Stderr, "failed to persist connection: %v\n", err)
		}
	}
	p.seq++
}

func (p *printer) status(message string) {
	p.last = message
	fmt.Fprintf(os.Stderr, "# %s\n", message)
}

// parsePassengers reads GROUP[:AGE[:CARD[:CLASS]]] entries. A missing age
// is left to the search defaults.
func parsePassengers(value string) ([]utils.PassengerRequest, error) {
	var out []utils.PassengerRequest
	for _, entry := range appconf.SplitList(value) {
		parts := strings.Split(entry, ":")
		p := utils.PassengerRequest{AgeGroup: strings.ToUpper(parts[0])}
		if len(parts) > 1 && parts[1] != "" {
			if _, err := fmt.Sscanf(parts[1], "%d", &p.Age); err != nil {
				return nil, fmt.Errorf("invalid age in passenger %q", entry)
			}
		}
		if len(parts) > 2 {
			p.FareCard = strings.ToUpper(parts[2])
		}
		if len(parts) > 3 {
			p.FareCardClass = strings.ToUpper(parts[3])
		}
		if len(parts) > 4 {
			return nil, fmt.Errorf("too many fields in passenger %q", entry)
		}
		out = append(out, p)
	}
	return out, nil
}

func printFieldErrors(w io.Writer, fieldErrors map[string][]string) {
	fields := make([]string, 0, len(fieldErrors))
	for field := range fieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		fmt.Fprintf(w, "%s: %s\n", field, strings.Join(fieldErrors[field], "; "))
	}
}
