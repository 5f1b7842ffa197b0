package restapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCurrentTimeHandler(t *testing.T) {
	api := createTestApi(t)

	resp, model := serveApiAndRetrieveEndpoint(t, api, http.MethodGet, "/api/current-time.json?key=TEST", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, http.StatusOK, model.Code)
	assert.Equal(t, "OK", model.Text)
	assert.Equal(t, 2, model.Version)

	entry := entryOf(t, model)
	millis, ok := entry["time"].(float64)
	assert.True(t, ok)
	assert.InDelta(t, float64(time.Now().UnixMilli()), millis, float64(time.Minute.Milliseconds()))
	assert.NotEmpty(t, entry["readableTime"])
}

func TestInvalidAPIKey(t *testing.T) {
	api := createTestApi(t)

	for _, endpoint := range []string{
		"/api/current-time.json",
		"/api/current-time.json?key=nope",
		"/api/searches.json?key=",
		"/api/history.json?key=test",
	} {
		resp, model := serveApiAndRetrieveEndpoint(t, api, http.MethodGet, endpoint, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, endpoint)
		assert.Equal(t, http.StatusUnauthorized, model.Code, endpoint)
		assert.Equal(t, "permission denied", model.Text, endpoint)
		assert.Equal(t, 1, model.Version, endpoint)
	}
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	api := createTestApi(t)

	resp, model := serveApiAndRetrieveEndpoint(t, api, http.MethodGet, "/api/where/stops.json?key=TEST", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "resource not found", model.Text)
}
