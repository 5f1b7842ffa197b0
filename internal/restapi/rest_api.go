// Package restapi exposes search sessions, their history and the station
// directory over HTTP.
package restapi

import (
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"ressuche.dev/internal/app"
)

type RestAPI struct {
	*app.Application
	rateLimiter *RateLimitMiddleware
}

// NewRestAPI creates the API with its per-key rate limiter.
func NewRestAPI(app *app.Application) *RestAPI {
	return &RestAPI{
		Application: app,
		rateLimiter: NewRateLimitMiddleware(app.Config.RateLimit, time.Second),
	}
}

// Handler returns the API routes, plus whatever extra registers, wrapped in
// the middleware chain.
func (api *RestAPI) Handler(extra ...func(*httprouter.Router)) http.Handler {
	router := httprouter.New()
	api.SetRoutes(router)
	for _, register := range extra {
		register(router)
	}
	return api.withMiddleware(router)
}

func (api *RestAPI) withMiddleware(next http.Handler) http.Handler {
	handler := api.rateLimiter.Handler(next)
	handler = NewCompressionMiddleware(DefaultCompressionConfig())(handler)
	handler = NewRequestLoggingMiddleware(api.Logger)(handler)
	return securityHeaders(handler)
}

// Shutdown stops background work owned by the API.
func (api *RestAPI) Shutdown() {
	api.rateLimiter.Stop()
}
