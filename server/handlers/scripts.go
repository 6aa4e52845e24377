package handlers

import (
	"net/http"

	"github.com/nomis52/scriptdash/catalog"
	"github.com/nomis52/scriptdash/history"
)

// ScriptInfo is a catalog entry with its current state.
type ScriptInfo struct {
	catalog.Script
	Status  history.Status  `json:"status"`
	LastRun *history.Record `json:"last_run,omitempty"`
}

// ScriptsHandler lists the catalog.
type ScriptsHandler struct {
	catalogs CatalogProvider
	statuses StatusProvider
}

// NewScriptsHandler creates a new ScriptsHandler.
func NewScriptsHandler(catalogs CatalogProvider, statuses StatusProvider) *ScriptsHandler {
	return &ScriptsHandler{
		catalogs: catalogs,
		statuses: statuses,
	}
}

// ServeHTTP implements http.Handler.
func (h *ScriptsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := []ScriptInfo{}
	c := h.catalogs.Catalog()
	if c == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	statuses := h.statuses.Statuses()
	for _, s := range c.Scripts() {
		info := ScriptInfo{
			Script: s,
			Status: statuses[s.Name],
		}
		if last, ok := h.statuses.LastRun(s.Name); ok {
			info.LastRun = &last
		}
		resp = append(resp, info)
	}
	writeJSON(w, http.StatusOK, resp)
}
