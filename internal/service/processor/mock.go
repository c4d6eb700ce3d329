package processor

import (
	"context"

	"github.com/learnonline/commerce/internal/domain"
)

// MockProcessor — конфигурируемая заглушка ChargeProcessor для тестов.
type MockProcessor struct {
	Intent    domain.Intent
	IntentErr error
	RefundID  string
	RefundErr error
	CancelErr error

	IntentCalls int
	RefundCalls int
	CancelCalls int

	LastIntentReq domain.IntentRequest
	LastRefundReq domain.ProcessorRefundRequest
	LastCancelID  string
}

// NewMockProcessor возвращает mock с успешным сценарием по умолчанию.
func NewMockProcessor() *MockProcessor {
	return &MockProcessor{
		Intent:   domain.Intent{ID: "pi_mock_1", ClientSecret: "pi_mock_1_secret"},
		RefundID: "re_mock_1",
	}
}

// CreateIntent возвращает заранее настроенный результат и считает вызовы.
func (m *MockProcessor) CreateIntent(ctx context.Context, req domain.IntentRequest) (domain.Intent, error) {
	m.IntentCalls++
	m.LastIntentReq = req
	if m.IntentErr != nil {
		return domain.Intent{}, m.IntentErr
	}
	return m.Intent, nil
}

// CreateRefund возвращает настроенный результат и считает вызовы.
func (m *MockProcessor) CreateRefund(ctx context.Context, req domain.ProcessorRefundRequest) (string, error) {
	m.RefundCalls++
	m.LastRefundReq = req
	if m.RefundErr != nil {
		return "", m.RefundErr
	}
	return m.RefundID, nil
}

// CancelIntent запоминает аннулированный intent и считает вызовы.
func (m *MockProcessor) CancelIntent(ctx context.Context, intentID string) error {
	m.CancelCalls++
	m.LastCancelID = intentID
	return m.CancelErr
}

var _ domain.ChargeProcessor = (*MockProcessor)(nil)
