package webhook

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/learnonline/commerce/internal/domain"
	"github.com/learnonline/commerce/internal/metrics"
	"github.com/learnonline/commerce/internal/service/fulfillment"
	"github.com/learnonline/commerce/internal/service/refund"
)

const defaultProcessedEventTTL = 30 * 24 * time.Hour

// DropError — бизнес-отказ обработки события: gateway логирует его и
// подтверждает доставку, чтобы отправитель не зациклился на повторах.
type DropError struct {
	Reason string
	Err    error
}

func (e *DropError) Error() string {
	return "event dropped (" + e.Reason + "): " + e.Err.Error()
}

func (e *DropError) Unwrap() error {
	return e.Err
}

// Gateway — единая точка входа внешних событий процессора. Проверка
// подписи жёсткая, никогда best-effort. Запись в реестр событий и
// мутация состояния выполняются в одной атомарной единице.
type Gateway struct {
	verifier     *Verifier
	uow          domain.UnitOfWork
	orderMachine *OrderPaymentMachine
	subMachine   *SubscriptionMachine
	refunds      *refund.Processor
	dispatcher   *fulfillment.Dispatcher
	logger       *log.Entry
	metrics      *metrics.EventMetrics
	processedTTL time.Duration
}

// NewGateway создаёт gateway приёма событий.
func NewGateway(
	verifier *Verifier,
	uow domain.UnitOfWork,
	orderMachine *OrderPaymentMachine,
	subMachine *SubscriptionMachine,
	refunds *refund.Processor,
	dispatcher *fulfillment.Dispatcher,
	logger *log.Entry,
	m *metrics.EventMetrics,
) *Gateway {
	if logger == nil {
		logger = log.WithField("component", "webhook-gateway")
	}
	return &Gateway{
		verifier:     verifier,
		uow:          uow,
		orderMachine: orderMachine,
		subMachine:   subMachine,
		refunds:      refunds,
		dispatcher:   dispatcher,
		logger:       logger,
		metrics:      m,
		processedTTL: defaultProcessedEventTTL,
	}
}

// Process верифицирует и применяет событие. Возвращает nil и для успешно
// применённого события, и для идемпотентного повтора, и для бизнес-отказа;
// не-nil означает либо отказ подписи/формата, либо транзиентный сбой
// хранилища, по которому отправитель повторит доставку.
func (g *Gateway) Process(ctx context.Context, body []byte, signature string) error {
	if err := g.verifier.Verify(body, signature); err != nil {
		if g.metrics != nil {
			g.metrics.RecordSignatureFailure()
		}
		g.logger.Warn("event signature verification failed")
		return err
	}

	event, err := DecodeEvent(body)
	if err != nil {
		g.logger.WithError(err).Warn("event payload rejected")
		return err
	}
	if !event.Type.Known() {
		if g.metrics != nil {
			g.metrics.RecordUnknownType()
		}
		g.logger.WithField("event_type", string(event.Type)).Info("acknowledged unknown event type")
		return nil
	}

	if g.metrics != nil {
		g.metrics.RecordReceived(string(event.Type))
	}

	var confirmed *domain.Order
	err = g.uow.Within(ctx, func(r domain.Repositories) error {
		now := time.Now().UTC()
		if err := r.Events.Record(ctx, domain.ProcessedEvent{
			ID:         event.ID,
			Type:       event.Type,
			ReceivedAt: now,
			TTLAt:      now.Add(g.processedTTL),
		}); err != nil {
			return err
		}
		return g.apply(ctx, r, event, &confirmed)
	})

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrEventAlreadyProcessed):
		if g.metrics != nil {
			g.metrics.RecordDuplicate()
		}
		g.logger.WithField("event_id", event.ID).Debug("duplicate event acknowledged")
		return nil
	default:
		var drop *DropError
		if errors.As(err, &drop) {
			if g.metrics != nil {
				g.metrics.RecordRejected(drop.Reason)
			}
			g.logger.WithError(drop.Err).WithField("event_id", event.ID).
				WithField("reason", drop.Reason).Warn("event dropped")
			return nil
		}
		return err
	}

	if g.metrics != nil {
		g.metrics.RecordApplied(string(event.Type))
	}

	// Побочные эффекты запускаются после фиксации финансовой транзакции
	// и не могут откатить статус PAID/CONFIRMED.
	if confirmed != nil && g.dispatcher != nil {
		g.dispatcher.Dispatch(ctx, *confirmed)
	}
	return nil
}

func (g *Gateway) apply(ctx context.Context, r domain.Repositories, event domain.Event, confirmed **domain.Order) error {
	switch event.Type {
	case domain.EventPaymentSucceeded:
		order, err := g.orderMachine.ApplySuccess(ctx, r, event.Payment)
		if err != nil {
			return err
		}
		*confirmed = &order
		return nil
	case domain.EventPaymentFailed:
		return g.orderMachine.ApplyFailure(ctx, r, event.Payment)
	case domain.EventChargeRefunded:
		_, err := g.refunds.ApplyEvent(ctx, r, event.Payment)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, domain.ErrPaymentNotFound):
			return &DropError{Reason: "unknown_intent", Err: err}
		case errors.Is(err, domain.ErrNoPaidPayment),
			errors.Is(err, domain.ErrRefundAmountInvalid),
			errors.Is(err, domain.ErrRefundExceedsRemaining),
			errors.Is(err, domain.ErrIllegalTransition):
			// Бизнес-отказ возврата: повтор доставки его не изменит.
			return &DropError{Reason: "refund_not_applicable", Err: err}
		default:
			return err
		}
	case domain.EventSubscriptionCreated:
		return g.subMachine.ApplyCreated(ctx, r, event.Subscription)
	case domain.EventSubscriptionUpdated:
		return g.subMachine.ApplyUpdated(ctx, r, event.Subscription)
	case domain.EventSubscriptionDeleted:
		return g.subMachine.ApplyDeleted(ctx, r, event.Subscription)
	case domain.EventInvoicePaymentFailed:
		return g.subMachine.ApplyInvoiceFailed(ctx, r, event.Invoice)
	default:
		return nil
	}
}
