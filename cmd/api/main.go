package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ressuche.dev/internal/app"
	"ressuche.dev/internal/appconf"
	"ressuche.dev/internal/history"
	"ressuche.dev/internal/logging"
	"ressuche.dev/internal/page/browser"
	"ressuche.dev/internal/restapi"
	"ressuche.dev/internal/session"
	"ressuche.dev/internal/stations"
	"ressuche.dev/internal/webui"
)

func main() {
	cfg := appconf.LoadDefaults()
	var envFlag, apiKeysFlag string

	flag.IntVar(&cfg.Port, "port", cfg.Port, "API server port")
	flag.StringVar(&envFlag, "env", cfg.Env.String(), "Environment (development|test|production)")
	flag.StringVar(&apiKeysFlag, "api-keys", "", "Comma separated API keys (overrides RESSUCHE_API_KEYS)")
	flag.IntVar(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "Requests per second and API key (negative disables)")
	flag.StringVar(&cfg.HistoryPath, "db", cfg.HistoryPath, "SQLite file for the search history")
	flag.StringVar(&cfg.StationsPath, "stations", cfg.StationsPath, "GTFS feed (path or URL) used for station lookup")
	flag.StringVar(&cfg.Browser.Engine, "browser", cfg.Browser.Engine, "Browser engine (chromium|firefox)")
	flag.BoolVar(&cfg.Browser.Headless, "headless", cfg.Browser.Headless, "Run the browser headless")
	flag.StringVar(&cfg.Browser.BaseURL, "base-url", cfg.Browser.BaseURL, "Booking site base URL")
	flag.DurationVar(&cfg.Browser.Timeout, "page-timeout", cfg.Browser.Timeout, "Timeout for single page interactions")
	flag.IntVar(&cfg.Browser.NavPerMin, "navigations-per-minute", cfg.Browser.NavPerMin, "Page loads and clicks per minute across all searches")
	flag.IntVar(&cfg.Browser.MaxSessions, "max-sessions", cfg.Browser.MaxSessions, "Concurrent searches (0 is unlimited)")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug|info|warn|error)")
	flag.Parse()

	cfg.Env = appconf.EnvFlagToEnvironment(envFlag)
	if apiKeysFlag != "" {
		cfg.ApiKeys = appconf.SplitList(apiKeysFlag)
	}

	logger := logging.NewStructuredLogger(os.Stdout, logging.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logging.LogError(logger, "server stopped with error", err)
		os.Exit(1)
	}
}

func run(cfg appconf.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := history.Open(history.Config{DBPath: cfg.HistoryPath, Env: cfg.Env}, logger)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer logging.SafeCloseWithLogging(store, logger, "close_history")

	var directory *stations.Directory
	if cfg.StationsPath != "" {
		directory, err = stations.Load(ctx, cfg.StationsPath)
		if err != nil {
			// searches still work with free text station names
			logging.LogError(logger, "failed to load stations", err, slog.String("source", cfg.StationsPath))
		} else {
			logging.LogOperation(logger, "stations_loaded", slog.Int("count", directory.Len()))
		}
	}

	factory := browser.NewFactory(browser.Config{
		Engine:    cfg.Browser.Engine,
		Headless:  cfg.Browser.Headless,
		BaseURL:   cfg.Browser.BaseURL,
		Timeout:   cfg.Browser.Timeout,
		Selectors: browser.DefaultSelectors(),
	}, cfg.Browser.NavPerMin, logger)

	manager := session.NewManager(factory, store, session.ManagerConfig{
		Options:     session.DefaultOptions(),
		MaxSessions: cfg.Browser.MaxSessions,
	}, logger)

	application := &app.Application{
		Config:   cfg,
		Logger:   logger,
		Sessions: manager,
		History:  store,
		Stations: directory,
	}
	api := restapi.NewRestAPI(application)
	webUI := &webui.WebUI{Application: application}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.Handler(webUI.SetWebUIRoutes),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr, "env", cfg.Env.String())
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		manager.Shutdown()
		api.Shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server", "running_searches", manager.Running())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	// running searches are cancelled and flush their state to the history
	manager.Shutdown()
	api.Shutdown()
	return err
}
