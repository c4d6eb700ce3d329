package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/learnonline/commerce/internal/domain"
)

const signatureHeader = "X-Signature"

// handleWebhook принимает событие процессора: подпись считается по сырому
// телу запроса до любого декодирования.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "failed to read request body")
		return
	}

	err = s.gateway.Process(r.Context(), body, r.Header.Get(signatureHeader))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case domain.IsValidation(err), errors.Is(err, domain.ErrSignatureInvalid):
		respondError(w, http.StatusBadRequest, "invalid_event", err.Error())
	default:
		s.logger.WithError(err).Error("event processing failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "event processing failed")
	}
}
