package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/54b3r/shopgenie-go/internal/cart"
	"github.com/54b3r/shopgenie-go/internal/logging"
)

// cartEnabled rejects cart requests with 503 when no store is configured.
func (s *Server) cartEnabled(w http.ResponseWriter) bool {
	if s.carts == nil {
		s.writeError(w, http.StatusServiceUnavailable, "cart is not configured")
		return false
	}
	return true
}

// handleCartView returns the user's cart content.
func (s *Server) handleCartView(w http.ResponseWriter, r *http.Request) {
	if !s.cartEnabled(w) {
		return
	}
	userID := r.PathValue("id")

	items, err := s.carts.Items(r.Context(), userID)
	if err != nil {
		s.metrics.cartOps.WithLabelValues("view", "error").Inc()
		logging.FromContext(r.Context()).Error("cart view failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "cart lookup failed")
		return
	}
	if items == nil {
		items = []cart.Item{}
	}

	s.metrics.cartOps.WithLabelValues("view", "ok").Inc()
	s.writeJSON(w, http.StatusOK, cartResponse{UserID: userID, Items: items})
}

// handleCartAdd adds an item to the user's cart and returns the new content.
func (s *Server) handleCartAdd(w http.ResponseWriter, r *http.Request) {
	if !s.cartEnabled(w) {
		return
	}
	userID := r.PathValue("id")

	var req cartMutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name must not be empty")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	if err := s.carts.AddItem(r.Context(), userID, req.Name, req.Quantity, req.Price); err != nil {
		s.metrics.cartOps.WithLabelValues("add", "error").Inc()
		logging.FromContext(r.Context()).Error("cart add failed",
			slog.String("user_id", userID),
			slog.String("item", req.Name),
			slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "cart update failed")
		return
	}

	s.metrics.cartOps.WithLabelValues("add", "ok").Inc()
	s.respondCart(w, r, userID)
}

// handleCartRemove decrements or removes an item from the user's cart.
func (s *Server) handleCartRemove(w http.ResponseWriter, r *http.Request) {
	if !s.cartEnabled(w) {
		return
	}
	userID := r.PathValue("id")

	var req cartMutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name must not be empty")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	if err := s.carts.RemoveItem(r.Context(), userID, req.Name, req.Quantity); err != nil {
		s.metrics.cartOps.WithLabelValues("remove", "error").Inc()
		logging.FromContext(r.Context()).Error("cart remove failed",
			slog.String("user_id", userID),
			slog.String("item", req.Name),
			slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "cart update failed")
		return
	}

	s.metrics.cartOps.WithLabelValues("remove", "ok").Inc()
	s.respondCart(w, r, userID)
}

// handleCartClear empties the user's cart.
func (s *Server) handleCartClear(w http.ResponseWriter, r *http.Request) {
	if !s.cartEnabled(w) {
		return
	}
	userID := r.PathValue("id")

	if err := s.carts.ClearCart(r.Context(), userID); err != nil {
		s.metrics.cartOps.WithLabelValues("clear", "error").Inc()
		logging.FromContext(r.Context()).Error("cart clear failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "cart update failed")
		return
	}

	s.metrics.cartOps.WithLabelValues("clear", "ok").Inc()
	s.writeJSON(w, http.StatusOK, cartResponse{UserID: userID, Items: []cart.Item{}})
}

// respondCart writes the user's current cart as the response body.
func (s *Server) respondCart(w http.ResponseWriter, r *http.Request, userID string) {
	items, err := s.carts.Items(r.Context(), userID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "cart lookup failed")
		return
	}
	if items == nil {
		items = []cart.Item{}
	}
	s.writeJSON(w, http.StatusOK, cartResponse{UserID: userID, Items: items})
}
