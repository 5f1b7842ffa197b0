// Package app bundles the dependencies shared by the HTTP handlers.
package app

import (
	"log/slog"

	"ressuche.dev/internal/appconf"
	"ressuche.dev/internal/history"
	"ressuche.dev/internal/session"
	"ressuche.dev/internal/stations"
)

// Application holds the dependencies for the HTTP handlers, helpers and
// middleware. History and Stations are optional.
type Application struct {
	Config   appconf.Config
	Logger   *slog.Logger
	Sessions *session.Manager
	History  *history.Store
	Stations *stations.Directory
}
