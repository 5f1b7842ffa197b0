package restapi

import (
	"net/http"

	"ressuche.dev/internal/models"
	"ressuche.dev/internal/stations"
	"ressuche.dev/internal/utils"
)

const maxStationSuggestions = 50

func (api *RestAPI) stationsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	q, err := utils.ValidateAndSanitizeQuery(query.Get("q"))
	fieldErrors := map[string][]string{}
	if err != nil {
		fieldErrors["q"] = []string{err.Error()}
	}
	limit, fieldErrors := utils.ParseIntParam(query, "max", 10, 1, maxStationSuggestions, fieldErrors)
	if len(fieldErrors) > 0 {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	suggestions := []stations.Station{}
	if api.Stations != nil && q != "" {
		suggestions = api.Stations.Suggest(q, limit+1)
	}
	limitExceeded := len(suggestions) > limit
	if limitExceeded {
		suggestions = suggestions[:limit]
	}
	api.sendResponse(w, r, models.NewListResponse(suggestions, limitExceeded))
}
