package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, оплата ещё не подтверждена.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed — оплата подтверждена процессором.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusCancelled — заказ отменён администратором до исполнения.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded — заказ полностью возвращён клиенту.
	OrderStatusRefunded OrderStatus = "refunded"
	// OrderStatusPartiallyRefunded — по заказу выполнен частичный возврат.
	OrderStatusPartiallyRefunded OrderStatus = "partially_refunded"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ доставлен.
	OrderStatusDelivered OrderStatus = "delivered"
)

// OrderItem — позиция заказа: снапшот цены на момент checkout.
type OrderItem struct {
	ID         string
	OrderID    string
	ProductID  string
	VariantID  string
	CourseID   string
	Name       string
	Qty        int32
	PriceMinor int64 // цена за единицу на момент оформления
	CreatedAt  time.Time
}

// TotalMinor возвращает сумму позиции: qty * price.
func (i OrderItem) TotalMinor() int64 {
	return int64(i.Qty) * i.PriceMinor
}

// IsCourse сообщает, ссылается ли позиция на курс.
func (i OrderItem) IsCourse() bool {
	return i.CourseID != ""
}

// Order — снапшот корзины на момент оформления. После подтверждения состав
// и суммы неизменяемы; меняется только статус и прогресс доставки.
type Order struct {
	ID            string
	OwnerKey      string
	CartID        string
	Status        OrderStatus
	Currency      string
	SubtotalMinor int64
	TaxMinor      int64
	ShippingMinor int64
	DiscountMinor int64
	TotalMinor    int64
	Items         []OrderItem
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UserID возвращает пользователя-владельца или пустую строку для анонимного заказа.
func (o *Order) UserID() string {
	return OwnerUserID(o.OwnerKey)
}

// Total возвращает итог заказа как Money.
func (o *Order) Total() Money {
	return NewMoney(o.TotalMinor, o.Currency)
}

// ValidateInvariants проверяет денежные инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.OwnerKey == "" {
		errs = append(errs, ErrOwnerKeyRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}

	// Сверяем subtotal с суммой позиций и итог с формулой заказа.
	var calc int64
	for _, item := range o.Items {
		if errsItem := validateOrderItem(item); len(errsItem) > 0 {
			errs = append(errs, errsItem...)
		}
		calc += item.TotalMinor()
	}
	if calc != o.SubtotalMinor {
		errs = append(errs, ErrAmountMismatch)
	}
	if o.SubtotalMinor+o.TaxMinor+o.ShippingMinor-o.DiscountMinor != o.TotalMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

func validateOrderItem(item OrderItem) []error {
	var errs []error
	if item.Qty <= 0 {
		errs = append(errs, ErrQtyInvalid)
	}
	if item.ProductID == "" && item.CourseID == "" {
		errs = append(errs, ErrItemRefRequired)
	}
	return errs
}

// CanTransition проверяет допустимость перехода статуса заказа.
// Отмена разрешена только из pending и confirmed (до отгрузки).
func (o *Order) CanTransition(next OrderStatus) bool {
	switch o.Status {
	case OrderStatusPending:
		return next == OrderStatusConfirmed || next == OrderStatusCancelled
	case OrderStatusConfirmed:
		return next == OrderStatusRefunded || next == OrderStatusPartiallyRefunded ||
			next == OrderStatusCancelled || next == OrderStatusShipped
	case OrderStatusPartiallyRefunded:
		return next == OrderStatusRefunded || next == OrderStatusShipped
	case OrderStatusShipped:
		return next == OrderStatusDelivered || next == OrderStatusRefunded
	default:
		return false
	}
}
