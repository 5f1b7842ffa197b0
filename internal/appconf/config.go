// Package appconf holds the settings shared by the binaries. Defaults come
// from the environment, optionally seeded from a .env file.
package appconf

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all the configuration settings for the application.
type Config struct {
	Port      int
	Env       Environment
	ApiKeys   []string
	RateLimit int // requests per second and API key

	// HistoryPath is the SQLite file past searches are kept in.
	HistoryPath string
	// StationsPath is a GTFS static feed (zip) used for station lookup.
	StationsPath string

	Browser  BrowserConfig
	LogLevel string
}

// BrowserConfig configures the browser backed page client.
type BrowserConfig struct {
	Engine      string // chromium or firefox
	Headless    bool
	BaseURL     string
	Timeout     time.Duration
	NavPerMin   int
	MaxSessions int
}

// LoadDefaults reads an optional .env file and builds the default
// configuration from the environment. Flags override these values.
func LoadDefaults() Config {
	_ = godotenv.Load()

	return Config{
		Port:         GetEnvInt("RESSUCHE_PORT", 4000),
		Env:          EnvFlagToEnvironment(GetEnv("RESSUCHE_ENV", "development")),
		ApiKeys:      SplitList(GetEnv("RESSUCHE_API_KEYS", "test")),
		RateLimit:    GetEnvInt("RESSUCHE_RATE_LIMIT", 10),
		HistoryPath:  GetEnv("RESSUCHE_HISTORY_DB", "ressuche.db"),
		StationsPath: GetEnv("RESSUCHE_STATIONS_GTFS", ""),
		Browser: BrowserConfig{
			Engine:      GetEnv("RESSUCHE_BROWSER", "chromium"),
			Headless:    GetEnvBool("RESSUCHE_HEADLESS", true),
			BaseURL:     GetEnv("RESSUCHE_BASE_URL", "https://www.bahn.de"),
			Timeout:     GetEnvDuration("RESSUCHE_PAGE_TIMEOUT", 5*time.Second),
			NavPerMin:   GetEnvInt("RESSUCHE_NAVIGATIONS_PER_MINUTE", 30),
			MaxSessions: GetEnvInt("RESSUCHE_MAX_SESSIONS", 2),
		},
		LogLevel: GetEnv("RESSUCHE_LOG_LEVEL", "info"),
	}
}

func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func GetEnvInt(key string, fallback int) int {
	value, err := strconv.Atoi(GetEnv(key, ""))
	if err != nil {
		return fallback
	}
	return value
}

func GetEnvBool(key string, fallback bool) bool {
	value, err := strconv.ParseBool(GetEnv(key, ""))
	if err != nil {
		return fallback
	}
	return value
}

func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	value, err := time.ParseDuration(GetEnv(key, ""))
	if err != nil {
		return fallback
	}
	return value
}

// SplitList splits a comma separated list and drops empty entries.
func SplitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
