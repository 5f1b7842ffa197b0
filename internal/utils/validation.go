package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	// search ids are uuids, history ids too
	validIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

	dangerousPattern = regexp.MustCompile(`[<>]|--|\/\*|\*\/|;.*--`)

	htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

	clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
)

// dateLayouts are the accepted travel date formats, ISO first.
var dateLayouts = []string{"2006-01-02", "02.01.2006"}

func ValidateID(id string) error {
	if id == "" {
		return errors.New("id cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("id too long (max 64 characters)")
	}
	if !validIDPattern.MatchString(id) {
		return errors.New("id contains invalid characters")
	}
	return nil
}

// ValidateQuery validates free text such as station names and prefixes.
func ValidateQuery(query string) error {
	if query == "" {
		return nil
	}
	if len(query) > 200 {
		return errors.New("query too long (max 200 characters)")
	}
	if dangerousPattern.MatchString(query) {
		return errors.New("query contains invalid characters")
	}
	return nil
}

// ValidateClock validates "HH:MM" times of day. Empty is allowed.
func ValidateClock(clock string) error {
	if clock == "" {
		return nil
	}
	if !clockPattern.MatchString(clock) {
		return errors.New("invalid time format, use HH:MM")
	}
	return nil
}

// ParseDate accepts YYYY-MM-DD and DD.MM.YYYY and returns midnight UTC.
func ParseDate(date string) (time.Time, error) {
	date = strings.TrimSpace(date)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, date); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, use YYYY-MM-DD", date)
}

// SanitizeInput strips HTML tags and surrounding whitespace.
func SanitizeInput(input string) string {
	return strings.TrimSpace(htmlTagPattern.ReplaceAllString(input, ""))
}

func ValidateAndSanitizeQuery(query string) (string, error) {
	if err := ValidateQuery(query); err != nil {
		return "", err
	}
	return SanitizeInput(query), nil
}
