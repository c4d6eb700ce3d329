package fulfillment

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/learnonline/commerce/internal/domain"
)

// LogMailer пишет подтверждение заказа в лог. Реальная доставка почты —
// обязанность внешней части платформы, подписанной на события outbox.
type LogMailer struct {
	logger *log.Entry
}

// NewLogMailer создаёт лог-отправитель писем.
func NewLogMailer(logger *log.Entry) *LogMailer {
	if logger == nil {
		logger = log.WithField("component", "mailer")
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendOrderConfirmation(_ context.Context, ownerKey, orderID string, total domain.Money) error {
	m.logger.WithFields(log.Fields{
		"owner_key": ownerKey,
		"order_id":  orderID,
		"total":     total.String(),
	}).Info("order confirmation email queued")
	return nil
}

var _ domain.Mailer = (*LogMailer)(nil)
