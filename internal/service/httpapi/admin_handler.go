package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/learnonline/commerce/internal/service/processor"
	"github.com/learnonline/commerce/internal/service/refund"
)

// RefundRequestDTO — административный возврат; amount_minor 0 означает
// возврат всего остатка.
type RefundRequestDTO struct {
	AmountMinor int64  `json:"amount_minor"`
	Reason      string `json:"reason"`
}

// RefundResponseDTO — итог применённого возврата.
type RefundResponseDTO struct {
	PaymentID     string `json:"payment_id"`
	RefundedMinor int64  `json:"refunded_minor"`
	FullRefund    bool   `json:"full_refund"`
	PaymentStatus string `json:"payment_status"`
	OrderStatus   string `json:"order_status"`
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var req RefundRequestDTO
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	result, err := s.refunds.Refund(r.Context(), refund.Request{
		OrderID:     orderID,
		AmountMinor: req.AmountMinor,
		Reason:      req.Reason,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, RefundResponseDTO{
		PaymentID:     result.PaymentID,
		RefundedMinor: result.RefundedMinor,
		FullRefund:    result.FullRefund,
		PaymentStatus: string(result.PaymentStatus),
		OrderStatus:   string(result.OrderStatus),
	})
}

// CancelOrderResponseDTO — итог административной отмены заказа.
type CancelOrderResponseDTO struct {
	OrderID     string `json:"order_id"`
	OrderStatus string `json:"order_status"`
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	order, err := s.checkout.CancelOrder(r.Context(), orderID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, CancelOrderResponseDTO{
		OrderID:     order.ID,
		OrderStatus: string(order.Status),
	})
}

func (s *Server) handleGetProcessorConfig(w http.ResponseWriter, r *http.Request) {
	masked, err := s.procConfig.Masked()
	if err != nil {
		s.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, masked)
}

func (s *Server) handlePutProcessorConfig(w http.ResponseWriter, r *http.Request) {
	var creds processor.Credentials
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&creds); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := s.procConfig.Reconfigure(r.Context(), creds); err != nil {
		s.writeError(w, err)
		return
	}

	masked, err := s.procConfig.Masked()
	if err != nil {
		s.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, masked)
}
