package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"ressuche.dev/internal/app"
	"ressuche.dev/internal/appconf"
	"ressuche.dev/internal/history"
	"ressuche.dev/internal/logging"
	"ressuche.dev/internal/models"
	"ressuche.dev/internal/page"
	"ressuche.dev/internal/page/pagetest"
	"ressuche.dev/internal/session"
	"ressuche.dev/internal/stations"
)

func testStations() *stations.Directory {
	return stations.NewDirectory([]stations.Station{
		{ID: "8000152", Name: pagetest.StartStation},
		{ID: "8000096", Name: pagetest.FinalStation},
		{ID: "8002549", Name: "Hamburg Hbf"},
		{ID: "8010159", Name: "Halle(Saale)Hbf"},
	})
}

func fakeFactory(fakes ...*pagetest.Fake) page.Factory {
	next := make(chan *pagetest.Fake, len(fakes))
	for _, f := range fakes {
		next <- f
	}
	return func(ctx context.Context) (page.Client, error) {
		select {
		case f := <-next:
			return f, nil
		default:
			return nil, errors.New("no scripted client left")
		}
	}
}

// createTestApi creates an API backed by scripted page clients, an
// in-memory history and a small station directory.
func createTestApi(t *testing.T, fakes ...*pagetest.Fake) *RestAPI {
	return createTestApiWithManagerConfig(t, session.ManagerConfig{}, fakes...)
}

func createTestApiWithManagerConfig(t *testing.T, config session.ManagerConfig, fakes ...*pagetest.Fake) *RestAPI {
	t.Helper()

	logger := logging.NewStructuredLogger(io.Discard, slog.LevelInfo)
	store, err := history.Open(history.Config{DBPath: ":memory:", Env: appconf.Test}, logger)
	require.NoError(t, err)

	opts := session.DefaultOptions()
	opts.ListRetryDelay = 0
	config.Options = opts
	manager := session.NewManager(fakeFactory(fakes...), store, config, logger)

	api := NewRestAPI(&app.Application{
		Config: appconf.Config{
			Env:       appconf.Test,
			ApiKeys:   []string{"TEST"},
			RateLimit: 100,
		},
		Logger:   logger,
		Sessions: manager,
		History:  store,
		Stations: testStations(),
	})
	t.Cleanup(func() {
		manager.Shutdown()
		api.Shutdown()
		_ = store.Close()
	})
	return api
}

// serveApiAndRetrieveEndpoint runs one request through the full handler
// chain and decodes the envelope when there is a body.
func serveApiAndRetrieveEndpoint(t *testing.T, api *RestAPI, method, endpoint string, body any) (*http.Response, models.ResponseModel) {
	t.Helper()
	server := httptest.NewServer(api.Handler())
	defer server.Close()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, server.URL+endpoint, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer logging.SafeCloseWithLogging(resp.Body, slog.Default(), "http_response_body")

	var model models.ResponseModel
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &model), string(raw))
	}
	return resp, model
}

func entryOf(t *testing.T, model models.ResponseModel) map[string]any {
	t.Helper()
	data, ok := model.Data.(map[string]any)
	require.True(t, ok, "data should be an object")
	entry, ok := data["entry"].(map[string]any)
	require.True(t, ok, "data.entry should be an object")
	return entry
}

func listOf(t *testing.T, model models.ResponseModel) ([]any, bool) {
	t.Helper()
	data, ok := model.Data.(map[string]any)
	require.True(t, ok, "data should be an object")
	list, ok := data["list"].([]any)
	require.True(t, ok, "data.list should be an array")
	return list, data["limitExceeded"] == true
}

func waitForSearch(t *testing.T, api *RestAPI, id string) {
	t.Helper()
	done, err := api.Sessions.Done(id)
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("search did not terminate")
	}
}

func travelDate(days int) string {
	return time.Now().AddDate(0, 0, days).Format("2006-01-02")
}

func searchBody() map[string]any {
	return map[string]any{
		"travelDate":      travelDate(5),
		"earliestDepTime": "09:00",
		"startStation":    pagetest.StartStation,
		"finalStation":    pagetest.FinalStation,
		"passengers": []map[string]any{
			{"age": 38, "ageGroup": "ADULT_27_64"},
		},
	}
}

// blockingFake stalls on its first listing read until release is closed.
func blockingFake() (*pagetest.Fake, chan struct{}, chan struct{}) {
	fake := pagetest.New([]pagetest.Listing{pagetest.Direct("10:04", "14:31", "ICE 571")})
	entered := make(chan struct{})
	release := make(chan struct{})
	fake.OnList = func(reads int) {
		if reads == 1 {
			close(entered)
			<-release
		}
	}
	return fake, entered, release
}
