package restapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ressuche.dev/internal/page/pagetest"
)

func TestHistoryLifecycle(t *testing.T) {
	api := createTestApi(t, pagetest.New([]pagetest.Listing{
		pagetest.Direct("10:04", "14:31", "ICE 571"),
		pagetest.Direct("11:04", "15:31", "ICE 573"),
	}))
	id := startSearch(t, api, searchBody())
	waitForSearch(t, api, id)

	resp, model := serveApiAndRetrieveEndpoint(t, api, http.MethodGet, "/api/history.json?key=TEST", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list, limitExceeded := listOf(t, model)
	assert.False(t, limitExceeded)
	require.Len(t, list, 1)
	summary := list[0].(map[string]any)
	assert.Equal(t, id, summary["id"])
	assert.Equal(t, "done", summary["state"])
	assert.Equal(t, float64(2), summary["found"])
	assert.Nil(t, summary["connections"], "the list carries no connections")

	resp, model = serveApiAndRetrieveEndpoint(t, api, http.MethodGet, "/api/history/"+id+"?key=TEST", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entry := entryOf(t, model)
	assert.Equal(t, "Search finished, 2 connections found", entry["finalStatus"])
	conns := entry["connections"].([]any)
	require.Len(t, conns, 2)
	assert.Equal(t, "11:04", conns[1].(map[string]any)["startTime"])
	assert.Equal(t, "FULFILLED", conns[1].(map[string]any)["assessment"])

	resp, _ = serveApiAndRetrieveEndpoint(t, api, http.MethodDelete, "/api/history/"+id+"?key=TEST", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = serveApiAndRetrieveEndpoint(t, api, http.MethodGet, "/api/history/"+id+"?key=TEST", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = serveApiAndRetrieveEndpoint(t, api, http.MethodDelete, "/api/history/"+id+"?key=TEST", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHistoryRefusesRunningSearch(t *testing.T) {
	fake, entered, release := blockingFake()
	api := createTestApi(t, fake)
	id := startSearch(t, api, searchBody())
	<-entered

	resp, _ := serveApiAndRetrieveEndpoint(t, api, http.MethodDelete, "/api/history/"+id+"?key=TEST", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	close(release)
	waitForSearch(t, api, id)
}

func TestHistoryLimitValidation(t *testing.T) {
	api := createTestApi(t)

	resp, _ := serveApiAndRetrieveEndpoint(t, api, http.MethodGet, "/api/history.json?key=TEST&limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, model := serveApiAndRetrieveEndpoint(t, api, http.MethodGet, "/api/history.json?key=TEST&limit=5", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	list, _ := listOf(t, model)
	assert.Empty(t, list)
}

func TestHistoryWithoutStore(t *testing.T) {
	api := createTestApi(t)
	api.History = nil

	resp, _ := serveApiAndRetrieveEndpoint(t, api, http.MethodGet, "/api/history.json?key=TEST", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
