package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/shopgenie-go/internal/logging"
)

// handleChat answers one conversational turn for a user.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.chatter == nil {
		s.writeError(w, http.StatusServiceUnavailable, "chat is not configured")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		s.writeError(w, http.StatusBadRequest, "user_id must not be empty")
		return
	}
	if req.Message == "" && req.Image == "" {
		s.writeError(w, http.StatusBadRequest, "message or image must be provided")
		return
	}
	image := req.Image
	if strings.HasPrefix(image, octetStreamPrefix) {
		image = jpegPrefix + strings.TrimPrefix(image, octetStreamPrefix)
	}

	resp, err := s.chatter.Chat(r.Context(), req.UserID, req.Message, image)
	if err != nil {
		s.metrics.chatTurns.WithLabelValues("error").Inc()
		logging.FromContext(r.Context()).Error("chat turn failed",
			slog.String("user_id", req.UserID),
			slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "chat failed")
		return
	}

	s.metrics.chatTurns.WithLabelValues("ok").Inc()
	s.writeJSON(w, http.StatusOK, resp)
}
