package handlers

import (
	"context"
	"net/http"
	"strings"

	"pia.app/licensing/internal/logger"
	"pia.app/licensing/internal/models"
)

type ValidateResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Validate is the read path client software polls with its license
// key. Unknown keys are a normal "invalid" answer, not an error; only
// a missing key parameter is the client's fault.
func (s *Server) Validate(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow(r.RemoteAddr) {
		writeJSON(w, http.StatusTooManyRequests, ValidateResponse{
			Status: models.StatusInvalid,
			Reason: "rate_limited",
		})
		return
	}

	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if key == "" {
		writeJSON(w, http.StatusBadRequest, ValidateResponse{
			Status: models.StatusInvalid,
			Reason: "missing_key",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.storeTimeout)
	defer cancel()

	record, err := s.storage.FindByKey(ctx, key)
	if err != nil {
		logger.Error("license lookup failed", map[string]any{
			"license_key": key,
			"error":       err.Error(),
		})
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage_unavailable"})
		return
	}
	if record == nil {
		writeJSON(w, http.StatusOK, ValidateResponse{Status: models.StatusInvalid})
		return
	}

	writeJSON(w, http.StatusOK, ValidateResponse{Status: record.Status})
}
