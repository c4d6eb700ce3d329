package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/learnonline/commerce/internal/domain"
	"github.com/learnonline/commerce/internal/service/cart"
)

// MoneyDTO — денежная сумма: минорные единицы + строка для отображения.
type MoneyDTO struct {
	AmountMinor int64  `json:"amount_minor"`
	Display     string `json:"display"`
	Currency    string `json:"currency"`
}

func moneyDTO(m domain.Money) MoneyDTO {
	return MoneyDTO{
		AmountMinor: m.AmountMinor,
		Display:     m.DecimalString(),
		Currency:    m.Currency,
	}
}

// CartItemDTO — позиция корзины с актуальной ценой.
type CartItemDTO struct {
	ID        string   `json:"id"`
	ProductID string   `json:"product_id,omitempty"`
	VariantID string   `json:"variant_id,omitempty"`
	CourseID  string   `json:"course_id,omitempty"`
	Title     string   `json:"title"`
	Qty       int32    `json:"qty"`
	UnitPrice MoneyDTO `json:"unit_price"`
	Total     MoneyDTO `json:"total"`
}

// CartDTO — корзина с пересчитанными итогами.
type CartDTO struct {
	ID          string        `json:"id"`
	Items       []CartItemDTO `json:"items"`
	Subtotal    MoneyDTO      `json:"subtotal"`
	HasProducts bool          `json:"has_products"`
	HasCourses  bool          `json:"has_courses"`
}

func cartDTO(view cart.View) CartDTO {
	items := make([]CartItemDTO, 0, len(view.Items))
	for _, priced := range view.Items {
		items = append(items, CartItemDTO{
			ID:        priced.Item.ID,
			ProductID: priced.Item.ProductID,
			VariantID: priced.Item.VariantID,
			CourseID:  priced.Item.CourseID,
			Title:     priced.Title,
			Qty:       priced.Item.Qty,
			UnitPrice: moneyDTO(priced.UnitPrice),
			Total:     moneyDTO(priced.Total),
		})
	}
	return CartDTO{
		ID:          view.Cart.ID,
		Items:       items,
		Subtotal:    moneyDTO(view.Totals.Subtotal),
		HasProducts: view.Totals.HasProducts,
		HasCourses:  view.Totals.HasCourses,
	}
}

// AddItemRequestDTO — добавление товара (с опциональным вариантом) или курса.
type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	CourseID  string `json:"course_id"`
	Qty       int32  `json:"qty"`
}

// SetQuantityRequestDTO — изменение количества позиции; 0 удаляет позицию.
type SetQuantityRequestDTO struct {
	Qty int32 `json:"qty"`
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	view, err := s.carts.GetOrCreate(r.Context(), ownerKeyFromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cartDTO(view))
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	view, err := s.carts.AddItem(r.Context(), ownerKeyFromContext(r.Context()), cart.AddItemRequest{
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		CourseID:  req.CourseID,
		Qty:       req.Qty,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, cartDTO(view))
}

func (s *Server) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	var req SetQuantityRequestDTO
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	view, err := s.carts.SetQuantity(r.Context(), ownerKeyFromContext(r.Context()), itemID, req.Qty)
	if err != nil {
		s.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cartDTO(view))
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	view, err := s.carts.RemoveItem(r.Context(), ownerKeyFromContext(r.Context()), itemID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cartDTO(view))
}

func (s *Server) handleClearCart(w http.ResponseWriter, r *http.Request) {
	if err := s.carts.Clear(r.Context(), ownerKeyFromContext(r.Context())); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
