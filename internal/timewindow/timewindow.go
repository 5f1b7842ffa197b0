// Package timewindow holds the pure date and time-of-day helpers used to
// decide whether a scraped connection lies inside the requested window.
package timewindow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ressuche.dev/internal/models"
)

// ClockLayout is the time-of-day format used throughout the listing.
const ClockLayout = "15:04"

var durationPattern = regexp.MustCompile(`^(\d+)\s*h\s*(\d{1,2})\s*min$`)

// ParseClock parses an "HH:MM" time of day.
func ParseClock(clock string) (time.Time, error) {
	t, err := time.Parse(ClockLayout, strings.TrimSpace(clock))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time of day %q: %w", clock, err)
	}
	return t, nil
}

// TimeDifference returns a - b for two times of day, ignoring any date.
func TimeDifference(a, b string) (time.Duration, error) {
	ta, err := ParseClock(a)
	if err != nil {
		return 0, err
	}
	tb, err := ParseClock(b)
	if err != nil {
		return 0, err
	}
	return ta.Sub(tb), nil
}

// Classify decides whether a connection is inside the window of params.
// With checkDate the connection's calendar day is compared first.
func Classify(conn models.Connection, params models.SearchParameters, checkDate bool) (models.TimeCheckResult, error) {
	if checkDate {
		switch compareDays(conn.Date, params.TravelDate) {
		case -1:
			return models.TimeCheckDateTooEarly, nil
		case 1:
			return models.TimeCheckDateTooLate, nil
		}
	}

	diff, err := TimeDifference(conn.StartTime, params.EffectiveEarliestDepTime())
	if err != nil {
		return models.TimeCheckOK, err
	}
	if diff < 0 {
		return models.TimeCheckStartTooEarly, nil
	}

	if params.LatestDepTime != "" {
		diff, err = TimeDifference(conn.StartTime, params.LatestDepTime)
		if err != nil {
			return models.TimeCheckOK, err
		}
		if diff > 0 {
			return models.TimeCheckStartTooLate, nil
		}
	}
	return models.TimeCheckOK, nil
}

func compareDays(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	switch {
	case da.Before(db):
		return -1
	case da.After(db):
		return 1
	default:
		return 0
	}
}

// ConvertDurationFormat turns "10h 34min" into "10:34". Anything else is
// returned unchanged, which makes the conversion idempotent.
func ConvertDurationFormat(text string) string {
	match := durationPattern.FindStringSubmatch(strings.TrimSpace(text))
	if match == nil {
		return text
	}
	hours, _ := strconv.Atoi(match[1])
	minutes, _ := strconv.Atoi(match[2])
	return fmt.Sprintf("%d:%02d", hours, minutes)
}

// ComputeTravelTime returns end - start. A negative difference means the
// trip crossed midnight; end is assumed to be less than a day after start.
func ComputeTravelTime(start, end string) (hours, minutes, seconds int, err error) {
	diff, err := TimeDifference(end, start)
	if err != nil {
		return 0, 0, 0, err
	}
	if diff < 0 {
		diff += 24 * time.Hour
	}
	total := int(diff / time.Second)
	hours = total / 3600
	minutes = total % 3600 / 60
	seconds = total % 60
	return hours, minutes, seconds, nil
}

// FormatTravelTime renders hours and minutes as "HH:MM".
func FormatTravelTime(hours, minutes int) string {
	return fmt.Sprintf("%02d:%02d", hours, minutes)
}
