package domain

import "time"

// PaymentStatus описывает состояние попытки оплаты.
type PaymentStatus string

const (
	// PaymentStatusPending — charge intent создан, исход неизвестен.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid — процессор подтвердил списание.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed — попытка оплаты отклонена; терминальный статус,
	// новый checkout создаёт новый платёж.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded — платёж возвращён полностью.
	PaymentStatusRefunded PaymentStatus = "refunded"
	// PaymentStatusPartiallyRefunded — платёж возвращён частично.
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

// Payment — активная попытка списания по заказу, один к одному с charge intent
// внешнего процессора.
type Payment struct {
	ID            string
	OrderID       string
	IntentID      string // идентификатор charge intent на стороне процессора
	Status        PaymentStatus
	AmountMinor   int64
	RefundedMinor int64
	Currency      string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Amount возвращает сумму платежа как Money.
func (p *Payment) Amount() Money {
	return NewMoney(p.AmountMinor, p.Currency)
}

// RemainingMinor возвращает остаток, доступный для возврата.
func (p *Payment) RemainingMinor() int64 {
	return p.AmountMinor - p.RefundedMinor
}

// Refundable сообщает, допускает ли платёж возвраты.
func (p *Payment) Refundable() bool {
	return p.Status == PaymentStatusPaid || p.Status == PaymentStatusPartiallyRefunded
}

// Validate проверяет инварианты платежа.
func (p *Payment) Validate() []error {
	var errs []error

	switch {
	case p.OrderID == "":
		errs = append(errs, ErrOrderNotFound)
	case p.Currency == "":
		errs = append(errs, ErrCurrencyRequired)
	case p.AmountMinor < 0:
		errs = append(errs, ErrRefundAmountInvalid)
	}
	if p.RefundedMinor < 0 || p.RefundedMinor > p.AmountMinor {
		errs = append(errs, ErrRefundExceedsRemaining)
	}

	return errs
}

// ApplyRefund прибавляет возврат и выставляет статус по остатку.
// Возвращает true, если возврат стал полным.
func (p *Payment) ApplyRefund(amountMinor int64) (bool, error) {
	if amountMinor <= 0 {
		return false, ErrRefundAmountInvalid
	}
	if !p.Refundable() {
		return false, ErrNoPaidPayment
	}
	if amountMinor > p.RemainingMinor() {
		return false, ErrRefundExceedsRemaining
	}

	p.RefundedMinor += amountMinor
	full := p.RefundedMinor >= p.AmountMinor
	if full {
		p.Status = PaymentStatusRefunded
	} else {
		p.Status = PaymentStatusPartiallyRefunded
	}
	return full, nil
}
