package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/shopgenie-go/internal/logging"
)

// Browser uploads arrive typed as application/octet-stream; the catalog
// stores JPEG thumbnails, so retag before embedding.
const (
	octetStreamPrefix = "data:application/octet-stream;base64,"
	jpegPrefix        = "data:image/jpeg;base64,"
)

// handleQueryText runs a multi-query text search over the catalog and
// returns the fused results.
func (s *Server) handleQueryText(w http.ResponseWriter, r *http.Request) {
	var req textQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Queries) == 0 {
		s.writeError(w, http.StatusBadRequest, "queries must not be empty")
		return
	}

	categories := req.Categories
	if categories == nil {
		categories = s.retriever.Categories()
	}

	results, err := s.retriever.RetrieveIn(r.Context(), req.Queries, "", categories, req.K)
	if err != nil {
		s.metrics.queryRequests.WithLabelValues("text", "error").Inc()
		logging.FromContext(r.Context()).Error("text query failed",
			slog.Int("queries", len(req.Queries)),
			slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	s.metrics.queryRequests.WithLabelValues("text", "ok").Inc()
	s.metrics.queryResults.Observe(float64(results.Len()))
	s.writeJSON(w, http.StatusOK, results)
}

// handleQueryImage runs an image search, optionally combined with text
// queries, and returns the fused results.
func (s *Server) handleQueryImage(w http.ResponseWriter, r *http.Request) {
	var req imageQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Image == "" {
		s.writeError(w, http.StatusBadRequest, "image must not be empty")
		return
	}
	image := req.Image
	if strings.HasPrefix(image, octetStreamPrefix) {
		image = jpegPrefix + strings.TrimPrefix(image, octetStreamPrefix)
	}

	categories := req.Categories
	if categories == nil {
		categories = s.retriever.Categories()
	}

	results, err := s.retriever.RetrieveIn(r.Context(), req.Queries, image, categories, req.K)
	if err != nil {
		s.metrics.queryRequests.WithLabelValues("image", "error").Inc()
		logging.FromContext(r.Context()).Error("image query failed",
			slog.Int("queries", len(req.Queries)),
			slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	s.metrics.queryRequests.WithLabelValues("image", "ok").Inc()
	s.metrics.queryResults.Observe(float64(results.Len()))
	s.writeJSON(w, http.StatusOK, results)
}
