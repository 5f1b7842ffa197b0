package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ressuche.dev/internal/models"
	"ressuche.dev/internal/session"
	"ressuche.dev/internal/utils"
)

const maxRequestBody = 64 << 10

// searchEntry is a session snapshot with assessed connections.
type searchEntry struct {
	ID          string                     `json:"id"`
	Params      models.SearchParameters    `json:"params"`
	State       string                     `json:"state"`
	Failed      bool                       `json:"failed"`
	Statuses    []string                   `json:"statuses"`
	StartedAt   time.Time                  `json:"startedAt"`
	FinishedAt  *time.Time                 `json:"finishedAt,omitempty"`
	Connections []models.ConnectionSummary `json:"connections"`
}

func newSearchEntry(snap session.Snapshot) searchEntry {
	return searchEntry{
		ID:          snap.ID,
		Params:      snap.Params,
		State:       snap.State,
		Failed:      snap.Failed,
		Statuses:    snap.Statuses,
		StartedAt:   snap.StartedAt,
		FinishedAt:  snap.FinishedAt,
		Connections: models.NewConnectionSummaries(snap.Connections, snap.Params),
	}
}

func (api *RestAPI) startSearchHandler(w http.ResponseWriter, r *http.Request) {
	var req utils.SearchRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		api.validationErrorResponse(w, r, map[string][]string{"body": {fmt.Sprintf("invalid search request: %v", err)}})
		return
	}

	params, fieldErrors := req.ToParameters(time.Now())
	if len(fieldErrors) > 0 {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}
	api.resolveStations(&params)

	id, err := api.Sessions.Start(params)
	switch {
	case errors.Is(err, session.ErrTooManySessions):
		api.sendError(w, r, http.StatusTooManyRequests, err.Error())
		return
	case errors.Is(err, session.ErrShuttingDown):
		api.sendError(w, r, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		api.serverErrorResponse(w, r, err)
		return
	}

	snap, err := api.Sessions.Snapshot(id)
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/searches/"+id)
	api.sendResponseWithStatus(w, r, http.StatusCreated, models.NewEntryResponse(newSearchEntry(snap)))
}

// resolveStations fills in station ids the directory knows and the request
// did not name.
func (api *RestAPI) resolveStations(params *models.SearchParameters) {
	if api.Stations == nil {
		return
	}
	if params.StartStationID == "" {
		if station, ok := api.Stations.Resolve(params.StartStation); ok {
			params.StartStationID = station.ID
		}
	}
	if params.FinalStationID == "" {
		if station, ok := api.Stations.Resolve(params.FinalStation); ok {
			params.FinalStationID = station.ID
		}
	}
}

func (api *RestAPI) listSearchesHandler(w http.ResponseWriter, r *http.Request) {
	snaps := api.Sessions.List()
	entries := make([]searchEntry, 0, len(snaps))
	for _, snap := range snaps {
		entries = append(entries, newSearchEntry(snap))
	}
	api.sendResponse(w, r, models.NewListResponse(entries, false))
}

func (api *RestAPI) lookupSearch(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := utils.ExtractIDFromParams(r, "id")
	if err := utils.ValidateID(id); err != nil {
		api.validationErrorResponse(w, r, map[string][]string{"id": {err.Error()}})
		return "", false
	}
	return id, true
}

func (api *RestAPI) searchHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := api.lookupSearch(w, r)
	if !ok {
		return
	}
	snap, err := api.Sessions.Snapshot(id)
	if errors.Is(err, session.ErrUnknownSession) {
		api.sendNotFound(w, r)
		return
	}
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendResponse(w, r, models.NewEntryResponse(newSearchEntry(snap)))
}

// cancelSearchHandler requests cancellation. The search ends on its own
// schedule, so the response reflects the state at the time of the request.
func (api *RestAPI) cancelSearchHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := api.lookupSearch(w, r)
	if !ok {
		return
	}
	if err := api.Sessions.Cancel(id); err != nil {
		if errors.Is(err, session.ErrUnknownSession) {
			api.sendNotFound(w, r)
			return
		}
		api.serverErrorResponse(w, r, err)
		return
	}

	if strings.EqualFold(r.URL.Query().Get("forget"), "true") {
		if done, err := api.Sessions.Done(id); err == nil {
			select {
			case <-done:
				_ = api.Sessions.Forget(id)
				w.WriteHeader(http.StatusNoContent)
				return
			case <-r.Context().Done():
				return
			}
		}
	}

	snap, err := api.Sessions.Snapshot(id)
	if err != nil {
		api.sendNotFound(w, r)
		return
	}
	api.sendResponseWithStatus(w, r, http.StatusAccepted, models.NewEntryResponse(newSearchEntry(snap)))
}
