package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kontent/connection-service/internal/domain"
	"github.com/sirupsen/logrus"
)

// PaymentEvents is the part of Service the payment consumer drives.
type PaymentEvents interface {
	ConfirmPayment(ctx context.Context, payment domain.PaymentConfirmation) (*domain.Connection, error)
	CompleteRefund(ctx context.Context, in domain.RefundCompletion) (*domain.Transaction, error)
}

// PaymentEventConsumer applies payment provider events. Business-rule
// rejections are acknowledged so redeliveries of an already-applied event do
// not loop; infrastructure failures are re-queued.
type PaymentEventConsumer struct {
	svc     PaymentEvents
	log     *logrus.Entry
	timeout time.Duration
}

func NewPaymentEventConsumer(svc PaymentEvents, log logrus.FieldLogger) *PaymentEventConsumer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PaymentEventConsumer{svc: svc, log: log.WithField("component", "payment_consumer"), timeout: 15 * time.Second}
}

// HandlePaymentSucceeded handles payment.succeeded deliveries.
func (c *PaymentEventConsumer) HandlePaymentSucceeded(body []byte) bool {
	var event domain.PaymentSucceededEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.log.WithError(err).Warn("failed to unmarshal payment event; dropping")
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	_, err := c.svc.ConfirmPayment(ctx, domain.PaymentConfirmation{
		ConnectionID:  event.ConnectionID,
		PayerID:       event.PayerID,
		Amount:        event.Amount,
		Currency:      event.Currency,
		PaymentMethod: event.PaymentMethod,
		ExternalID:    event.ExternalID,
	})
	return c.settle(err, logrus.Fields{"connection_id": event.ConnectionID})
}

// HandleRefundCompleted handles payment.refund.completed deliveries.
func (c *PaymentEventConsumer) HandleRefundCompleted(body []byte) bool {
	var event domain.RefundCompletedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.log.WithError(err).Warn("failed to unmarshal refund event; dropping")
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	_, err := c.svc.CompleteRefund(ctx, domain.RefundCompletion{
		TransactionID: event.TransactionID,
		ExternalID:    event.ExternalID,
	})
	return c.settle(err, logrus.Fields{"transaction_id": event.TransactionID, "external_id": event.ExternalID})
}

func (c *PaymentEventConsumer) settle(err error, fields logrus.Fields) bool {
	if err == nil {
		return true
	}
	entry := c.log.WithError(err).WithFields(fields)
	if domain.IsGuardError(err) {
		entry.Warn("payment event rejected; acknowledging")
		return true
	}
	entry.Error("payment event processing failed; re-queuing")
	return false
}
