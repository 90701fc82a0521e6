/**
 * @description
 * Scheduled maintenance for the connection lifecycle: releasing unpaid
 * connections that were abandoned, and re-sending refund requests the payment
 * provider has not answered.
 */
package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const jobBatchSize = 200

// Maintenance is the part of Service the jobs drive.
type Maintenance interface {
	ExpireStalePendingPayments(ctx context.Context, ttl time.Duration, batchSize int) (int, error)
	RedispatchRefundRequests(ctx context.Context, after time.Duration, batchSize int) (int, error)
}

// JobsConfig holds job thresholds and schedules.
type JobsConfig struct {
	PendingPaymentTTL        time.Duration
	RefundRedispatchAfter    time.Duration
	ConnectionExpirySchedule string
	RefundDispatchSchedule   string
	Timeout                  time.Duration
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	svc    Maintenance
	log    *logrus.Entry
	config JobsConfig
}

// NewJobs creates a new Jobs runner.
func NewJobs(svc Maintenance, log logrus.FieldLogger, cfg JobsConfig) *Jobs {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Jobs{svc: svc, log: log.WithField("component", "jobs"), config: cfg}
}

// ExpireStalePendingConnections cancels connections left unpaid past the TTL.
func (j *Jobs) ExpireStalePendingConnections() {
	if j.config.PendingPaymentTTL <= 0 {
		return
	}
	j.log.Info("starting pending connection expiry job")
	ctx, cancel := context.WithTimeout(context.Background(), j.config.Timeout)
	defer cancel()

	expired, err := j.svc.ExpireStalePendingPayments(ctx, j.config.PendingPaymentTTL, jobBatchSize)
	if err != nil {
		j.log.WithError(err).Error("failed to expire pending connections")
		return
	}
	j.log.WithField("expired", expired).Info("pending connection expiry job finished")
}

// RedispatchRefundRequests re-publishes refund requests still pending.
func (j *Jobs) RedispatchRefundRequests() {
	j.log.Info("starting refund redispatch job")
	ctx, cancel := context.WithTimeout(context.Background(), j.config.Timeout)
	defer cancel()

	published, err := j.svc.RedispatchRefundRequests(ctx, j.config.RefundRedispatchAfter, jobBatchSize)
	if err != nil {
		j.log.WithError(err).Error("failed to redispatch refund requests")
		return
	}
	j.log.WithField("published", published).Info("refund redispatch job finished")
}
