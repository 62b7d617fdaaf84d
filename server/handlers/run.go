package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/marketpipe/marketpipe/pipeline"
	"github.com/marketpipe/marketpipe/server/runner"
)

// dateLayout is the wire format for run date bounds.
const dateLayout = "2006-01-02"

// RunRequest defines the request body for POST /api/run. Every field is
// optional; omitted fields fall back to the configured defaults.
type RunRequest struct {
	Sources []string `json:"sources,omitempty"`
	Symbols []string `json:"symbols,omitempty"`
	Start   string   `json:"start,omitempty"`
	End     string   `json:"end,omitempty"`
	Strict  bool     `json:"strict,omitempty"`
}

// RunHandler handles requests to trigger a pipeline run.
type RunHandler struct {
	runner PipelineRunner
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(r PipelineRunner) *RunHandler {
	return &RunHandler{
		runner: r,
	}
}

// ServeHTTP implements http.Handler.
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("invalid JSON: %v", err),
		})
		return
	}

	// Check for duplicate sources
	seen := make(map[string]bool, len(req.Sources))
	for _, s := range req.Sources {
		if seen[s] {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: fmt.Sprintf("duplicate source %q in request", s),
			})
			return
		}
		seen[s] = true
	}

	pipelineReq := pipeline.Request{
		Sources:          req.Sources,
		Symbols:          req.Symbols,
		StrictValidation: req.Strict,
	}

	if req.Start != "" {
		start, err := time.Parse(dateLayout, req.Start)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: fmt.Sprintf("invalid start date %q: expected YYYY-MM-DD", req.Start),
			})
			return
		}
		pipelineReq.Start = start
	}
	if req.End != "" {
		end, err := time.Parse(dateLayout, req.End)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: fmt.Sprintf("invalid end date %q: expected YYYY-MM-DD", req.End),
			})
			return
		}
		pipelineReq.End = end
	}
	if !pipelineReq.Start.IsZero() && !pipelineReq.End.IsZero() && pipelineReq.End.Before(pipelineReq.Start) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "end date is before start date",
		})
		return
	}

	if err := h.runner.Run(pipelineReq); err != nil {
		if errors.Is(err, runner.ErrRunInProgress) {
			writeJSON(w, http.StatusConflict, ErrorResponse{
				Error: err.Error(),
			})
			return
		}
		// Unknown source or validation error
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
		})
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
