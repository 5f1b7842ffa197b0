package restapi

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

func (api *RestAPI) validateAPIKey(finalHandler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.RequestHasInvalidAPIKey(r) {
			api.invalidAPIKeyResponse(w, r)
			return
		}
		finalHandler(w, r)
	})
}

func (api *RestAPI) SetRoutes(router *httprouter.Router) {
	router.Handler(http.MethodGet, "/api/current-time.json", api.validateAPIKey(api.currentTimeHandler))
	router.Handler(http.MethodGet, "/api/stations.json", api.validateAPIKey(api.stationsHandler))

	router.Handler(http.MethodPost, "/api/searches.json", api.validateAPIKey(api.startSearchHandler))
	router.Handler(http.MethodGet, "/api/searches.json", api.validateAPIKey(api.listSearchesHandler))
	router.Handler(http.MethodGet, "/api/searches/:id", api.validateAPIKey(api.searchHandler))
	router.Handler(http.MethodDelete, "/api/searches/:id", api.validateAPIKey(api.cancelSearchHandler))

	router.Handler(http.MethodGet, "/api/history.json", api.validateAPIKey(api.historyListHandler))
	router.Handler(http.MethodGet, "/api/history/:id", api.validateAPIKey(api.historyHandler))
	router.Handler(http.MethodDelete, "/api/history/:id", api.validateAPIKey(api.deleteHistoryHandler))

	router.NotFound = http.HandlerFunc(api.sendNotFound)
}
