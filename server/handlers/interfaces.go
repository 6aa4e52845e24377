// Package handlers provides HTTP handlers for the scriptdash server.
//
// Each handler is in its own file and implements http.Handler.
// Handlers use interfaces to access server dependencies, avoiding
// circular imports.
package handlers

import (
	"time"

	"github.com/nomis52/scriptdash/broadcast"
	"github.com/nomis52/scriptdash/catalog"
	"github.com/nomis52/scriptdash/config"
	"github.com/nomis52/scriptdash/history"
	"github.com/nomis52/scriptdash/server/cron"
	"github.com/nomis52/scriptdash/server/types"
)

// ConfigProvider provides access to the current configuration.
type ConfigProvider interface {
	Config() *config.Config
}

// Reloader can reload its configuration.
type Reloader interface {
	Reload() error
}

// CatalogProvider provides access to the current script catalog.
type CatalogProvider interface {
	Catalog() *catalog.Catalog
}

// ScriptRunner starts and cancels script runs.
type ScriptRunner interface {
	RunWithValues(name string, values map[string]string) error
	Cancel(name string) error
}

// StatusProvider reports the state of every script.
type StatusProvider interface {
	Statuses() map[string]history.Status
	LastRun(name string) (history.Record, bool)
}

// LiveLogProvider provides the output of the latest run of each script.
type LiveLogProvider interface {
	LiveLogs() map[string][]string
}

// HistoryProvider provides access to run history.
type HistoryProvider interface {
	History(page, perPage int) (history.Page, error)
	ClearHistory() error
}

// EventSource hands out subscriptions to the run event stream.
type EventSource interface {
	Subscribe() *broadcast.Subscription
}

// APIStatusProvider aggregates all the providers needed for the status endpoint.
type APIStatusProvider interface {
	Properties() types.ServerProperties
	Statuses() map[string]history.Status
	NextRun() *time.Time
	Schedule() []cron.ScheduledRun
}
