package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kontent/connection-service/internal/domain"
	"github.com/kontent/connection-service/internal/store/storetest"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) all() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Notification(nil), r.sent...)
}

type publishedEvent struct {
	exchange   string
	routingKey string
	body       interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{exchange: exchange, routingKey: routingKey, body: body})
	return nil
}

func (p *recordingPublisher) byRoutingKey(key string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.routingKey == key {
			out = append(out, e)
		}
	}
	return out
}

type stubLimiter struct {
	count      int
	retryAfter int
	err        error
	calls      int
}

func (s *stubLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	s.calls++
	return s.count, s.retryAfter, s.err
}

type fixture struct {
	svc       *Service
	store     *storetest.MemoryStore
	notifier  *recordingNotifier
	publisher *recordingPublisher
	configID  uuid.UUID
	requester uuid.UUID
	recipient uuid.UUID
	outsider  uuid.UUID
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := storetest.New()
	f := &fixture{
		store:     mem,
		notifier:  &recordingNotifier{},
		publisher: &recordingPublisher{},
		configID:  uuid.New(),
		requester: mem.AddUser("user_requester", "alice"),
		recipient: mem.AddUser("user_recipient", "bob"),
		outsider:  mem.AddUser("user_outsider", "mallory"),
	}
	err := mem.CreateMonetizationConfig(context.Background(), &domain.MonetizationConfig{
		ID:             f.configID,
		Name:           "DM_FEE_STANDARD",
		FeeBase:        dec("10.00"),
		PlatformCutPct: dec("0.20"),
		PosterSharePct: dec("0.80"),
		Currency:       "USD",
		IsActive:       true,
	})
	if err != nil {
		t.Fatalf("seed config: %v", err)
	}
	f.svc = NewService(mem, f.notifier, f.publisher, Options{EventsExchange: "test.events"}, quietLogger())
	return f
}

func (f *fixture) request(t *testing.T) *domain.Connection {
	t.Helper()
	conn, _, err := f.svc.RequestConnection(context.Background(), f.requester, RequestConnectionInput{RecipientID: f.recipient})
	if err != nil {
		t.Fatalf("RequestConnection: %v", err)
	}
	return conn
}

func (f *fixture) payment(conn *domain.Connection) domain.PaymentConfirmation {
	return domain.PaymentConfirmation{
		ConnectionID:  conn.ID,
		PayerID:       &f.requester,
		Amount:        conn.FeeAmount,
		Currency:      conn.Currency,
		PaymentMethod: "card",
	}
}

func (f *fixture) paid(t *testing.T) *domain.Connection {
	t.Helper()
	conn := f.request(t)
	paid, err := f.svc.ConfirmPayment(context.Background(), f.payment(conn))
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	return paid
}

func (f *fixture) accepted(t *testing.T) *domain.Connection {
	t.Helper()
	conn := f.paid(t)
	accepted, err := f.svc.Respond(context.Background(), conn.ID, f.recipient, domain.ConnectionAccepted)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	return accepted
}

func TestEnforceRateLimit(t *testing.T) {
	f := newFixture(t)
	f.svc.opts.ConnectionRequestLimitPerMin = 2

	limiter := &stubLimiter{count: 3, retryAfter: 42}
	f.svc.SetRateLimiter(limiter)

	_, _, err := f.svc.RequestConnection(context.Background(), f.requester, RequestConnectionInput{RecipientID: f.recipient})
	var rl *domain.RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rl.RetryAfter != 42*time.Second {
		t.Fatalf("expected 42s retry-after, got %s", rl.RetryAfter)
	}

	limiter.err = errors.New("redis down")
	if _, _, err := f.svc.RequestConnection(context.Background(), f.requester, RequestConnectionInput{RecipientID: f.recipient}); err != nil {
		t.Fatalf("expected limiter failure to allow the request, got %v", err)
	}
}

func TestEnforceRateLimit_DisabledWhenLimitZero(t *testing.T) {
	f := newFixture(t)
	limiter := &stubLimiter{count: 100}
	f.svc.SetRateLimiter(limiter)

	f.request(t)
	if limiter.calls != 0 {
		t.Fatalf("expected limiter to be skipped when no limit is configured, got %d calls", limiter.calls)
	}
}

func TestAfterCommit_PublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")
	conn := f.paid(t)

	if _, err := f.svc.Respond(context.Background(), conn.ID, f.recipient, domain.ConnectionDeclined); err != nil {
		t.Fatalf("expected decline to succeed despite broker failure, got %v", err)
	}
	f.svc.Wait()
}
