package handlers

import (
	"net/http"

	"github.com/marketpipe/marketpipe/server/types"
)

// VersionHandler handles requests for server build and instance metadata.
type VersionHandler struct {
	properties types.ServerProperties
}

// NewVersionHandler creates a new VersionHandler.
func NewVersionHandler(properties types.ServerProperties) *VersionHandler {
	return &VersionHandler{
		properties: properties,
	}
}

// ServeHTTP implements http.Handler.
func (h *VersionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.properties)
}
