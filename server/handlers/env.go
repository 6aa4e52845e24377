package handlers

import (
	"net/http"
	"os"
	"strings"

	"github.com/nomis52/scriptdash/config"
)

// EnvHandler shows the server environment with sensitive values masked.
type EnvHandler struct {
	configProvider ConfigProvider
	environ        func() []string
}

// NewEnvHandler creates a new EnvHandler.
func NewEnvHandler(provider ConfigProvider) *EnvHandler {
	return &EnvHandler{
		configProvider: provider,
		environ:        os.Environ,
	}
}

// ServeHTTP implements http.Handler.
func (h *EnvHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := h.configProvider.Config()

	env := make(map[string]string)
	for _, kv := range h.environ() {
		name, value, _ := strings.Cut(kv, "=")
		if name == "" {
			continue
		}
		if cfg.Env.IsSensitive(name) {
			value = config.Filtered
		}
		env[name] = value
	}

	writeJSON(w, http.StatusOK, env)
}
