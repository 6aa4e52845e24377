package handlers

import (
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
)

// DownloadHandler sends a script file as an attachment.
type DownloadHandler struct {
	logger   *slog.Logger
	catalogs CatalogProvider
}

// NewDownloadHandler creates a new DownloadHandler.
func NewDownloadHandler(logger *slog.Logger, catalogs CatalogProvider) *DownloadHandler {
	return &DownloadHandler{
		logger:   logger,
		catalogs: catalogs,
	}
}

// ServeHTTP implements http.Handler.
func (h *DownloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("script")

	script, err := lookupScript(h.catalogs, name)
	if err != nil {
		http.Error(w, "Script not found", http.StatusNotFound)
		return
	}

	f, err := os.Open(script.Path)
	if err != nil {
		h.logger.Error("failed to open script", "script", name, "path", script.Path, "error", err)
		http.Error(w, "Script not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, "Script not found", http.StatusNotFound)
		return
	}

	base := filepath.Base(script.Path)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": base}))
	http.ServeContent(w, r, base, info.ModTime(), f)
}
