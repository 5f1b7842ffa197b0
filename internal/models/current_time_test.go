package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewCurrentTimeModel(t *testing.T) {
	at := time.Date(2025, time.May, 3, 12, 0, 0, 0, time.UTC)

	model := NewCurrentTimeModel(at)

	assert.Equal(t, "2025-05-03T12:00:00Z", model.ReadableTime)
	assert.Equal(t, at.UnixMilli(), model.Time)
}
