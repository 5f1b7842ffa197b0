package restapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"ressuche.dev/internal/logging"
	"ressuche.dev/internal/models"
)

type errorResponse struct {
	Code        int    `json:"code"`
	CurrentTime int64  `json:"currentTime"`
	Text        string `json:"text"`
	Version     int    `json:"version"`
}

func writeErrorResponse(w http.ResponseWriter, status int, text string, version int) {
	setJSONResponseType(w)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Code:        status,
		CurrentTime: models.ResponseCurrentTime(),
		Text:        text,
		Version:     version,
	})
}

// invalidAPIKeyResponse answers with version 1, which existing clients
// expect for this error.
func (api *RestAPI) invalidAPIKeyResponse(w http.ResponseWriter, r *http.Request) {
	writeErrorResponse(w, http.StatusUnauthorized, "permission denied", 1)
}

func (api *RestAPI) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	logging.LogError(logging.FromContext(r.Context()), "request failed", err,
		slog.String("path", r.URL.Path))
	writeErrorResponse(w, http.StatusInternalServerError, "internal server error", 1)
}

func (api *RestAPI) sendNotFound(w http.ResponseWriter, r *http.Request) {
	writeErrorResponse(w, http.StatusNotFound, "resource not found", 2)
}

// sendError answers with an arbitrary status in the response envelope.
func (api *RestAPI) sendError(w http.ResponseWriter, r *http.Request, status int, text string) {
	writeErrorResponse(w, status, text, 2)
}

// validationErrorResponse sends a 400 with the problems per field.
func (api *RestAPI) validationErrorResponse(w http.ResponseWriter, r *http.Request, fieldErrors map[string][]string) {
	setJSONResponseType(w)
	w.WriteHeader(http.StatusBadRequest)
	response := struct {
		FieldErrors map[string][]string `json:"fieldErrors"`
	}{FieldErrors: fieldErrors}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logging.LogError(api.Logger, "failed to encode validation error response", err)
	}
}
