package restapi

import (
	"errors"
	"net/http"
	"time"

	"ressuche.dev/internal/history"
	"ressuche.dev/internal/models"
	"ressuche.dev/internal/utils"
)

type historyEntry struct {
	ID          string                     `json:"id"`
	Params      models.SearchParameters    `json:"params"`
	State       string                     `json:"state"`
	FinalStatus string                     `json:"finalStatus"`
	StartedAt   time.Time                  `json:"startedAt"`
	FinishedAt  *time.Time                 `json:"finishedAt,omitempty"`
	Found       int                        `json:"found"`
	Connections []models.ConnectionSummary `json:"connections,omitempty"`
}

func newHistoryEntry(record history.SearchRecord) historyEntry {
	return historyEntry{
		ID:          record.ID,
		Params:      record.Params,
		State:       record.State,
		FinalStatus: record.FinalStatus,
		StartedAt:   record.StartedAt,
		FinishedAt:  record.FinishedAt,
		Found:       record.Connections,
	}
}

func (api *RestAPI) historyListHandler(w http.ResponseWriter, r *http.Request) {
	if api.History == nil {
		api.sendNotFound(w, r)
		return
	}
	limit, fieldErrors := utils.ParseIntParam(r.URL.Query(), "limit", 50, 1, 500, nil)
	if len(fieldErrors) > 0 {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	records, err := api.History.ListSearches(r.Context(), limit+1)
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	limitExceeded := len(records) > limit
	if limitExceeded {
		records = records[:limit]
	}
	entries := make([]historyEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, newHistoryEntry(record))
	}
	api.sendResponse(w, r, models.NewListResponse(entries, limitExceeded))
}

func (api *RestAPI) historyHandler(w http.ResponseWriter, r *http.Request) {
	if api.History == nil {
		api.sendNotFound(w, r)
		return
	}
	id, ok := api.lookupSearch(w, r)
	if !ok {
		return
	}

	record, conns, err := api.History.LoadSearch(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		api.sendNotFound(w, r)
		return
	}
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	entry := newHistoryEntry(record)
	entry.Connections = models.NewConnectionSummaries(conns, record.Params)
	api.sendResponse(w, r, models.NewEntryResponse(entry))
}

func (api *RestAPI) deleteHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if api.History == nil {
		api.sendNotFound(w, r)
		return
	}
	id, ok := api.lookupSearch(w, r)
	if !ok {
		return
	}
	if snap, err := api.Sessions.Snapshot(id); err == nil && snap.FinishedAt == nil {
		api.sendError(w, r, http.StatusConflict, "search is still running")
		return
	}

	err := api.History.DeleteSearch(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		api.sendNotFound(w, r)
		return
	}
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
