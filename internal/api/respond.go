package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mhaswell/fabtrace/internal/permission"
	"github.com/mhaswell/fabtrace/internal/store"
)

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondStoreError maps storage and permission errors onto HTTP statuses.
// Rows outside the caller's tenant surface as not found, never as forbidden.
func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrOrderNotFound),
		errors.Is(err, store.ErrCAPANotFound),
		errors.Is(err, store.ErrTenantNotFound):
		s.respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, permission.ErrPermissionDenied):
		s.respondError(w, http.StatusForbidden, "permission denied")
	case errors.Is(err, store.ErrDuplicate):
		s.respondError(w, http.StatusConflict, "duplicate")
	default:
		log.Error().Err(err).Msg("Request failed")
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}
