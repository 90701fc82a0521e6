/**
 * @description
 * Core business logic for paid connections. The Service drives the connection
 * lifecycle, records ledger entries in the same unit of work as each state
 * change, gates messaging on accepted connections, and emits notifications and
 * refund requests only after the state change has committed.
 *
 * @dependencies
 * - github.com/sirupsen/logrus: structured logging.
 * - internal/domain, internal/store: domain models and data access.
 */

package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kontent/connection-service/internal/domain"
	"github.com/kontent/connection-service/internal/logger"
	"github.com/kontent/connection-service/internal/store"
	"github.com/sirupsen/logrus"
)

// Notifier delivers a user-facing notification.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// EventPublisher publishes integration events to the message broker.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// RateLimiter counts hits in a fixed window.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Options carries the tunables of the Service.
type Options struct {
	FeeConfigName                string
	EventsExchange               string
	ConnectionRequestLimitPerMin int
	MessageLimitPerMin           int
	AfterCommitTimeout           time.Duration
}

// Service provides the core business logic for connections.
type Service struct {
	repo      store.Repository
	notifier  Notifier
	publisher EventPublisher
	limiter   RateLimiter
	fees      FeePolicy
	ledger    LedgerRecorder
	opts      Options
	log       *logrus.Entry
	now       func() time.Time

	// after-commit side effects run here so request latency never waits on the broker.
	inflight sync.WaitGroup
}

// NewService creates a new connection service instance.
func NewService(repo store.Repository, notifier Notifier, publisher EventPublisher, opts Options, log logrus.FieldLogger) *Service {
	if opts.FeeConfigName == "" {
		opts.FeeConfigName = "DM_FEE_STANDARD"
	}
	if opts.EventsExchange == "" {
		opts.EventsExchange = "kontent.events"
	}
	if opts.AfterCommitTimeout <= 0 {
		opts.AfterCommitTimeout = 10 * time.Second
	}
	s := &Service{
		repo:      repo,
		notifier:  notifier,
		publisher: publisher,
		opts:      opts,
		log:       logger.Component(log, "connection_service"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	s.ledger = LedgerRecorder{now: s.clock}
	return s
}

func (s *Service) clock() time.Time { return s.now() }

// SetRateLimiter enables per-user rate limiting on connection and message creation.
func (s *Service) SetRateLimiter(limiter RateLimiter) {
	s.limiter = limiter
}

// Wait blocks until every after-commit side effect has finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// ResolveInternalUserID converts a Clerk user id into the internal UUID.
func (s *Service) ResolveInternalUserID(ctx context.Context, clerkUserID string) (uuid.UUID, error) {
	return s.repo.FindUserIDByClerkUserID(ctx, clerkUserID)
}

// afterCommit runs fn in the background with its own deadline. Failures are
// logged and never reach the caller, whose state change already committed.
func (s *Service) afterCommit(name string, fn func(ctx context.Context) error) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.AfterCommitTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.log.WithError(err).WithField("task", name).Warn("after-commit task failed")
		}
	}()
}

func (s *Service) notify(n domain.Notification) {
	if s.notifier == nil {
		return
	}
	s.afterCommit("notify."+string(n.Type), func(ctx context.Context) error {
		return s.notifier.Notify(ctx, n)
	})
}

func (s *Service) publishRefundRequested(txn *domain.Transaction, reason string) {
	if s.publisher == nil || txn == nil {
		return
	}
	evt := domain.NewRefundRequestedEvent(txn, reason)
	s.afterCommit("refund.requested", func(ctx context.Context) error {
		return s.publisher.Publish(ctx, s.opts.EventsExchange, domain.RoutingKeyRefundRequested, evt)
	})
}

// enforceRateLimit fails open when the limiter itself errors.
func (s *Service) enforceRateLimit(ctx context.Context, scope string, subject uuid.UUID, limit int) error {
	if s.limiter == nil || limit <= 0 {
		return nil
	}
	count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, scope, subject.String(), limit, time.Minute)
	if err != nil {
		s.log.WithError(err).WithField("scope", scope).Warn("rate limiter unavailable; allowing request")
		return nil
	}
	if count > limit {
		return &domain.RateLimitError{Scope: scope, RetryAfter: time.Duration(retryAfter) * time.Second}
	}
	return nil
}
