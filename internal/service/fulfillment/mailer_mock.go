package fulfillment

import (
	"context"
	"sync"

	"github.com/learnonline/commerce/internal/domain"
)

// SentMail — записанный вызов отправки письма.
type SentMail struct {
	OwnerKey string
	OrderID  string
	Total    domain.Money
}

// MockMailer — конфигурируемая заглушка Mailer для тестов.
type MockMailer struct {
	Err error

	mu   sync.Mutex
	sent []SentMail
}

// NewMockMailer возвращает mock с успешной отправкой по умолчанию.
func NewMockMailer() *MockMailer {
	return &MockMailer{}
}

// SendOrderConfirmation записывает вызов и возвращает настроенную ошибку.
func (m *MockMailer) SendOrderConfirmation(ctx context.Context, ownerKey, orderID string, total domain.Money) error {
	m.mu.Lock()
	m.sent = append(m.sent, SentMail{OwnerKey: ownerKey, OrderID: orderID, Total: total})
	m.mu.Unlock()
	return m.Err
}

// Sent возвращает все записанные отправки.
func (m *MockMailer) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMail(nil), m.sent...)
}

var _ domain.Mailer = (*MockMailer)(nil)
