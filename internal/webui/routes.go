// Package webui serves HTML debug views of the running searches.
package webui

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"ressuche.dev/internal/app"
)

type WebUI struct {
	*app.Application
}

// SetWebUIRoutes registers the debug pages. They require an API key like
// the rest of the API.
func (webUI *WebUI) SetWebUIRoutes(router *httprouter.Router) {
	router.Handler(http.MethodGet, "/debug/searches", webUI.requireKey(webUI.debugIndexHandler))
	router.Handler(http.MethodGet, "/debug/searches/:id", webUI.requireKey(webUI.debugSearchHandler))
}

func (webUI *WebUI) requireKey(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if webUI.RequestHasInvalidAPIKey(r) {
			http.Error(w, "permission denied", http.StatusUnauthorized)
			return
		}
		next(w, r)
	})
}
