package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/learnonline/commerce/internal/domain"
	"github.com/learnonline/commerce/internal/service/checkout"
)

// CheckoutResponseDTO — данные для завершения оплаты на клиенте.
type CheckoutResponseDTO struct {
	OrderID      string `json:"order_id"`
	PaymentID    string `json:"payment_id"`
	ClientSecret string `json:"client_secret"`
}

// OrderItemDTO — позиция заказа со снапшотом цены.
type OrderItemDTO struct {
	ID        string   `json:"id"`
	ProductID string   `json:"product_id,omitempty"`
	VariantID string   `json:"variant_id,omitempty"`
	CourseID  string   `json:"course_id,omitempty"`
	Name      string   `json:"name"`
	Qty       int32    `json:"qty"`
	Price     MoneyDTO `json:"price"`
}

// OrderDTO — заказ вместе с состоянием активной попытки оплаты.
type OrderDTO struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	Items         []OrderItemDTO `json:"items"`
	Total         MoneyDTO       `json:"total"`
	PaymentStatus string         `json:"payment_status,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty"`
	Refunded      *MoneyDTO      `json:"refunded,omitempty"`
	CreatedAt     string         `json:"created_at"`
}

func orderDTO(view checkout.OrderView) OrderDTO {
	items := make([]OrderItemDTO, 0, len(view.Order.Items))
	for _, item := range view.Order.Items {
		items = append(items, OrderItemDTO{
			ID:        item.ID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			CourseID:  item.CourseID,
			Name:      item.Name,
			Qty:       item.Qty,
			Price:     moneyDTO(domain.NewMoney(item.PriceMinor, view.Order.Currency)),
		})
	}

	dto := OrderDTO{
		ID:        view.Order.ID,
		Status:    string(view.Order.Status),
		Items:     items,
		Total:     moneyDTO(view.Order.Total()),
		CreatedAt: view.Order.CreatedAt.UTC().Format(time.RFC3339),
	}
	if view.Payment.ID != "" {
		dto.PaymentStatus = string(view.Payment.Status)
		dto.FailureReason = view.Payment.FailureReason
		if view.Payment.RefundedMinor > 0 {
			refunded := moneyDTO(domain.NewMoney(view.Payment.RefundedMinor, view.Payment.Currency))
			dto.Refunded = &refunded
		}
	}
	return dto
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	result, err := s.checkout.Checkout(r.Context(), ownerKeyFromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, CheckoutResponseDTO{
		OrderID:      result.OrderID,
		PaymentID:    result.PaymentID,
		ClientSecret: result.ClientSecret,
	})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	view, err := s.checkout.GetOrder(r.Context(), orderID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Чужой заказ неотличим от несуществующего.
	if view.Order.OwnerKey != ownerKeyFromContext(r.Context()) {
		s.writeError(w, domain.ErrOrderNotFound)
		return
	}

	respondJSON(w, http.StatusOK, orderDTO(view))
}
