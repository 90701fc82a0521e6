package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/kontent/connection-service/internal/domain"
)

func TestRequestConnection_CreatesPendingConnectionWithFrozenSplit(t *testing.T) {
	f := newFixture(t)

	conn, created, err := f.svc.RequestConnection(context.Background(), f.requester, RequestConnectionInput{RecipientID: f.recipient})
	if err != nil {
		t.Fatalf("RequestConnection: %v", err)
	}
	if !created {
		t.Fatal("expected a new connection")
	}
	if conn.Status != domain.ConnectionPendingPayment {
		t.Fatalf("expected PENDING_PAYMENT, got %s", conn.Status)
	}
	if !conn.FeeAmount.Equal(dec("10.00")) || !conn.PlatformCut.Equal(dec("2.00")) || !conn.PosterShare.Equal(dec("8.00")) {
		t.Fatalf("unexpected split fee=%s platform=%s poster=%s", conn.FeeAmount, conn.PlatformCut, conn.PosterShare)
	}
	if conn.ConfigName != "DM_FEE_STANDARD" || conn.Currency != "USD" {
		t.Fatalf("unexpected config metadata %q %q", conn.ConfigName, conn.Currency)
	}
}

func TestRequestConnection_ReturnsExistingOpenConnection(t *testing.T) {
	f := newFixture(t)
	first := f.request(t)

	second, created, err := f.svc.RequestConnection(context.Background(), f.requester, RequestConnectionInput{RecipientID: f.recipient})
	if err != nil {
		t.Fatalf("RequestConnection: %v", err)
	}
	if created || second.ID != first.ID {
		t.Fatalf("expected existing connection %s, got %s (created=%v)", first.ID, second.ID, created)
	}

	// An existing paid connection is also returned unchanged.
	if _, err := f.svc.ConfirmPayment(context.Background(), f.payment(first)); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	third, created, err := f.svc.RequestConnection(context.Background(), f.requester, RequestConnectionInput{RecipientID: f.recipient})
	if err != nil || created || third.ID != first.ID || third.Status != domain.ConnectionPaidPendingAccept {
		t.Fatalf("expected paid connection to be returned, got %+v created=%v err=%v", third, created, err)
	}
}

func TestRequestConnection_MomentIsPartOfTheKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	momentA, momentB := uuid.New(), uuid.New()

	noMoment := f.request(t)
	withA, createdA, err := f.svc.RequestConnection(ctx, f.requester, RequestConnectionInput{RecipientID: f.recipient, MomentID: &momentA})
	if err != nil || !createdA {
		t.Fatalf("expected new connection for moment A, created=%v err=%v", createdA, err)
	}
	withB, createdB, err := f.svc.RequestConnection(ctx, f.requester, RequestConnectionInput{RecipientID: f.recipient, MomentID: &momentB})
	if err != nil || !createdB {
		t.Fatalf("expected new connection for moment B, created=%v err=%v", createdB, err)
	}
	if noMoment.ID == withA.ID || withA.ID == withB.ID {
		t.Fatal("expected distinct connections per moment")
	}

	again, created, err := f.svc.RequestConnection(ctx, f.requester, RequestConnectionInput{RecipientID: f.recipient, MomentID: &momentA})
	if err != nil || created || again.ID != withA.ID {
		t.Fatalf("expected moment A connection to be reused, got created=%v err=%v", created, err)
	}

	// The reverse direction is a different pair.
	reverse, created, err := f.svc.RequestConnection(ctx, f.recipient, RequestConnectionInput{RecipientID: f.requester})
	if err != nil || !created || reverse.ID == noMoment.ID {
		t.Fatalf("expected reverse request to create its own connection, created=%v err=%v", created, err)
	}
}

func TestRequestConnection_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, _, err := f.svc.RequestConnection(ctx, f.requester, RequestConnectionInput{RecipientID: f.requester}); !errors.Is(err, domain.ErrSelfConnection) {
		t.Fatalf("expected ErrSelfConnection, got %v", err)
	}
	if _, _, err := f.svc.RequestConnection(ctx, f.requester, RequestConnectionInput{RecipientID: uuid.New()}); !errors.Is(err, domain.ErrRecipientNotFound) {
		t.Fatalf("expected ErrRecipientNotFound, got %v", err)
	}

	if _, err := f.svc.DeactivateMonetizationConfig(ctx, f.configID); err != nil {
		t.Fatalf("DeactivateMonetizationConfig: %v", err)
	}
	if _, _, err := f.svc.RequestConnection(ctx, f.requester, RequestConnectionInput{RecipientID: f.recipient}); !errors.Is(err, domain.ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
	if f.store.Commits() != 0 {
		t.Fatalf("expected no committed writes, got %d", f.store.Commits())
	}
}

func TestRequestConnection_AllowsNewRequestAfterTerminalState(t *testing.T) {
	f := newFixture(t)
	first := f.request(t)
	if _, err := f.svc.Cancel(context.Background(), first.ID, f.requester); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	second, created, err := f.svc.RequestConnection(context.Background(), f.requester, RequestConnectionInput{RecipientID: f.recipient})
	if err != nil || !created || second.ID == first.ID {
		t.Fatalf("expected a fresh connection after cancel, created=%v err=%v", created, err)
	}
}

func TestRequestConnection_ConcurrentCallsShareOneConnection(t *testing.T) {
	f := newFixture(t)

	const callers = 8
	ids := make([]uuid.UUID, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, _, err := f.svc.RequestConnection(context.Background(), f.requester, RequestConnectionInput{RecipientID: f.recipient})
			errs[i] = err
			if conn != nil {
				ids[i] = conn.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range ids {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("caller %d got %s, expected %s", i, ids[i], ids[0])
		}
	}
	conns, _ := f.store.ListConnectionsByUser(context.Background(), f.requester, domain.ConnectionListOptions{})
	if len(conns) != 1 {
		t.Fatalf("expected one connection, got %d", len(conns))
	}
}

func TestConfirmPayment_RecordsTransactionAndNotifiesRecipient(t *testing.T) {
	f := newFixture(t)
	conn := f.paid(t)
	f.svc.Wait()

	if conn.Status != domain.ConnectionPaidPendingAccept {
		t.Fatalf("expected PAID_PENDING_ACCEPT, got %s", conn.Status)
	}
	txns := f.store.Transactions()
	if len(txns) != 1 {
		t.Fatalf("expected one transaction, got %d", len(txns))
	}
	txn := txns[0]
	if txn.Status != domain.TransactionSuccess || !txn.Amount.Equal(dec("10.00")) || txn.PayerID != f.requester || *txn.ConnectionID != conn.ID {
		t.Fatalf("unexpected transaction %+v", txn)
	}

	sent := f.notifier.all()
	if len(sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(sent))
	}
	n := sent[0]
	if n.Type != domain.NotificationConnectionRequest || n.RecipientID != f.recipient || *n.SenderID != f.requester || *n.EntityID != conn.ID || n.EntityType != "connection" {
		t.Fatalf("unexpected notification %+v", n)
	}
}

func TestConfirmPayment_SecondConfirmationIsInvalidState(t *testing.T) {
	f := newFixture(t)
	conn := f.paid(t)

	_, err := f.svc.ConfirmPayment(context.Background(), f.payment(conn))
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if got := len(f.store.Transactions()); got != 1 {
		t.Fatalf("expected a single transaction, got %d", got)
	}
}

func TestConfirmPayment_Rejections(t *testing.T) {
	f := newFixture(t)
	conn := f.request(t)
	ctx := context.Background()

	wrongPayer := f.payment(conn)
	wrongPayer.PayerID = &f.outsider
	if _, err := f.svc.ConfirmPayment(ctx, wrongPayer); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	wrongAmount := f.payment(conn)
	wrongAmount.Amount = dec("9.99")
	if _, err := f.svc.ConfirmPayment(ctx, wrongAmount); !errors.Is(err, domain.ErrPaymentMismatch) {
		t.Fatalf("expected ErrPaymentMismatch, got %v", err)
	}

	wrongCurrency := f.payment(conn)
	wrongCurrency.Currency = "EUR"
	if _, err := f.svc.ConfirmPayment(ctx, wrongCurrency); !errors.Is(err, domain.ErrPaymentMismatch) {
		t.Fatalf("expected ErrPaymentMismatch for currency, got %v", err)
	}

	noMethod := f.payment(conn)
	noMethod.PaymentMethod = ""
	if _, err := f.svc.ConfirmPayment(ctx, noMethod); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	missing := f.payment(conn)
	missing.ConnectionID = uuid.New()
	if _, err := f.svc.ConfirmPayment(ctx, missing); !errors.Is(err, domain.ErrConnectionNotFound) {
		t.Fatalf("expected ErrConnectionNotFound, got %v", err)
	}

	if got := len(f.store.Transactions()); got != 0 {
		t.Fatalf("expected no transactions, got %d", got)
	}
	stored, _ := f.store.GetConnection(ctx, conn.ID)
	if stored.Status != domain.ConnectionPendingPayment {
		t.Fatalf("expected connection to stay PENDING_PAYMENT, got %s", stored.Status)
	}
}

func TestConfirmPayment_DuplicateExternalReferenceRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := "pi_123"

	first := f.request(t)
	p := f.payment(first)
	p.ExternalID = &ref
	if _, err := f.svc.ConfirmPayment(ctx, p); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}

	moment := uuid.New()
	second, _, err := f.svc.RequestConnection(ctx, f.requester, RequestConnectionInput{RecipientID: f.recipient, MomentID: &moment})
	if err != nil {
		t.Fatalf("RequestConnection: %v", err)
	}
	p2 := f.payment(second)
	p2.ExternalID = &ref
	if _, err := f.svc.ConfirmPayment(ctx, p2); !errors.Is(err, domain.ErrDuplicatePaymentRef) {
		t.Fatalf("expected ErrDuplicatePaymentRef, got %v", err)
	}
	stored, _ := f.store.GetConnection(ctx, second.ID)
	if stored.Status != domain.ConnectionPendingPayment {
		t.Fatalf("expected rollback to keep PENDING_PAYMENT, got %s", stored.Status)
	}
}

func TestRespond_AcceptRecordsEarningOnce(t *testing.T) {
	f := newFixture(t)
	conn := f.accepted(t)
	f.svc.Wait()

	if conn.Status != domain.ConnectionAccepted {
		t.Fatalf("expected ACCEPTED, got %s", conn.Status)
	}
	earnings := f.store.Earnings()
	if len(earnings) != 1 {
		t.Fatalf("expected one earning, got %d", len(earnings))
	}
	e := earnings[0]
	if e.RecipientID != f.recipient || !e.Amount.Equal(dec("8.00")) || e.Status != domain.EarningPendingPayout {
		t.Fatalf("unexpected earning %+v", e)
	}

	_, err := f.svc.Respond(context.Background(), conn.ID, f.recipient, domain.ConnectionAccepted)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on second accept, got %v", err)
	}
	if got := len(f.store.Earnings()); got != 1 {
		t.Fatalf("expected still one earning, got %d", got)
	}

	var accepted bool
	for _, n := range f.notifier.all() {
		if n.Type == domain.NotificationConnectionAccepted && n.RecipientID == f.requester && *n.SenderID == f.recipient {
			accepted = true
		}
	}
	if !accepted {
		t.Fatal("expected CONNECTION_ACCEPTED notification to the requester")
	}
}

func TestRespond_UsesSplitFrozenAtCreation(t *testing.T) {
	f := newFixture(t)
	conn := f.paid(t)

	newPoster := dec("0.5")
	newPlatform := dec("0.5")
	if _, err := f.svc.UpdateMonetizationConfig(context.Background(), f.configID, MonetizationConfigInput{PosterSharePct: &newPoster, PlatformCutPct: &newPlatform}); err != nil {
		t.Fatalf("UpdateMonetizationConfig: %v", err)
	}
	if _, err := f.svc.Respond(context.Background(), conn.ID, f.recipient, domain.ConnectionAccepted); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if e := f.store.Earnings()[0]; !e.Amount.Equal(dec("8.00")) {
		t.Fatalf("expected earning from frozen split 8.00, got %s", e.Amount)
	}
}

func TestRespond_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := f.request(t)
	if _, err := f.svc.Respond(ctx, pending.ID, f.recipient, domain.ConnectionAccepted); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for unpaid connection, got %v", err)
	}
	if got := len(f.store.Earnings()); got != 0 {
		t.Fatalf("expected no earnings, got %d", got)
	}

	if _, err := f.svc.ConfirmPayment(ctx, f.payment(pending)); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if _, err := f.svc.Respond(ctx, pending.ID, f.requester, domain.ConnectionAccepted); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for requester, got %v", err)
	}
	if _, err := f.svc.Respond(ctx, pending.ID, f.outsider, domain.ConnectionDeclined); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for outsider, got %v", err)
	}
	if _, err := f.svc.Respond(ctx, uuid.New(), f.recipient, domain.ConnectionAccepted); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.Respond(ctx, pending.ID, f.recipient, domain.ConnectionPendingPayment); !errors.Is(err, domain.ErrInvalidStatusValue) {
		t.Fatalf("expected ErrInvalidStatusValue, got %v", err)
	}
}

func TestRespond_DeclineRecordsRefundIntent(t *testing.T) {
	f := newFixture(t)
	conn := f.paid(t)

	declined, err := f.svc.Respond(context.Background(), conn.ID, f.recipient, domain.ConnectionDeclined)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	f.svc.Wait()

	if declined.Status != domain.ConnectionDeclined {
		t.Fatalf("expected DECLINED, got %s", declined.Status)
	}
	if got := len(f.store.Earnings()); got != 0 {
		t.Fatalf("expected no earnings on decline, got %d", got)
	}
	txn := f.store.Transactions()[0]
	if txn.Status != domain.TransactionRefundPending || txn.RefundRequestedAt == nil {
		t.Fatalf("expected REFUND_PENDING with timestamp, got %+v", txn)
	}

	events := f.publisher.byRoutingKey(domain.RoutingKeyRefundRequested)
	if len(events) != 1 {
		t.Fatalf("expected one refund request event, got %d", len(events))
	}
	evt := events[0].body.(domain.RefundRequestedEvent)
	if evt.TransactionID != txn.ID || evt.ConnectionID != conn.ID || !evt.Amount.Equal(dec("10.00")) || evt.Reason != "connection_declined" {
		t.Fatalf("unexpected refund event %+v", evt)
	}
	if events[0].exchange != "test.events" {
		t.Fatalf("unexpected exchange %q", events[0].exchange)
	}

	if _, err := f.svc.Respond(context.Background(), conn.ID, f.recipient, domain.ConnectionAccepted); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState after decline, got %v", err)
	}
}

func TestRespond_CommitFailureLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	conn := f.paid(t)
	f.svc.Wait()
	before := len(f.notifier.all())

	f.store.FailCommit = errors.New("commit failed")
	if _, err := f.svc.Respond(context.Background(), conn.ID, f.recipient, domain.ConnectionAccepted); err == nil {
		t.Fatal("expected commit failure to surface")
	}
	f.svc.Wait()

	if got := len(f.store.Earnings()); got != 0 {
		t.Fatalf("expected no earning after failed commit, got %d", got)
	}
	stored, _ := f.store.GetConnection(context.Background(), conn.ID)
	if stored.Status != domain.ConnectionPaidPendingAccept {
		t.Fatalf("expected status unchanged, got %s", stored.Status)
	}
	if got := len(f.notifier.all()); got != before {
		t.Fatalf("expected no notification after failed commit, got %d new", got-before)
	}
}

func TestRespond_ConcurrentDecisionsApplyOnce(t *testing.T) {
	f := newFixture(t)
	conn := f.paid(t)

	decisions := []domain.ConnectionStatus{domain.ConnectionAccepted, domain.ConnectionDeclined, domain.ConnectionAccepted, domain.ConnectionDeclined}
	errs := make([]error, len(decisions))
	var wg sync.WaitGroup
	for i, d := range decisions {
		wg.Add(1)
		go func(i int, d domain.ConnectionStatus) {
			defer wg.Done()
			_, errs[i] = f.svc.Respond(context.Background(), conn.ID, f.recipient, d)
		}(i, d)
	}
	wg.Wait()
	f.svc.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrInvalidState):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one decision to apply, got %d", succeeded)
	}
}

func TestCancel(t *testing.T) {
	t.Run("unpaid connection", func(t *testing.T) {
		f := newFixture(t)
		conn := f.request(t)
		canceled, err := f.svc.Cancel(context.Background(), conn.ID, f.requester)
		if err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		f.svc.Wait()
		if canceled.Status != domain.ConnectionCanceled {
			t.Fatalf("expected CANCELED, got %s", canceled.Status)
		}
		if len(f.publisher.byRoutingKey(domain.RoutingKeyRefundRequested)) != 0 {
			t.Fatal("expected no refund for unpaid connection")
		}
		if len(f.notifier.all()) != 0 {
			t.Fatal("expected no notification for unpaid cancel")
		}
	})

	t.Run("paid connection refunds", func(t *testing.T) {
		f := newFixture(t)
		conn := f.paid(t)
		if _, err := f.svc.UpdateStatus(context.Background(), conn.ID, f.requester, "canceled"); err != nil {
			t.Fatalf("UpdateStatus: %v", err)
		}
		f.svc.Wait()
		if f.store.Transactions()[0].Status != domain.TransactionRefundPending {
			t.Fatal("expected refund intent")
		}
		if len(f.publisher.byRoutingKey(domain.RoutingKeyRefundRequested)) != 1 {
			t.Fatal("expected refund request event")
		}
		var notified bool
		for _, n := range f.notifier.all() {
			if n.Type == domain.NotificationConnectionCanceled && n.RecipientID == f.recipient {
				notified = true
			}
		}
		if !notified {
			t.Fatal("expected CONNECTION_CANCELED notification to recipient")
		}
	})

	t.Run("guards", func(t *testing.T) {
		f := newFixture(t)
		conn := f.paid(t)
		if _, err := f.svc.Cancel(context.Background(), conn.ID, f.recipient); !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("expected ErrForbidden for recipient, got %v", err)
		}
		if _, err := f.svc.Respond(context.Background(), conn.ID, f.recipient, domain.ConnectionAccepted); err != nil {
			t.Fatalf("Respond: %v", err)
		}
		if _, err := f.svc.Cancel(context.Background(), conn.ID, f.requester); !errors.Is(err, domain.ErrInvalidState) {
			t.Fatalf("expected ErrInvalidState for accepted connection, got %v", err)
		}
	})
}

func TestUpdateStatus_RejectsUnknownValue(t *testing.T) {
	f := newFixture(t)
	conn := f.paid(t)
	for _, raw := range []string{"", "PAID_PENDING_ACCEPT", "maybe"} {
		if _, err := f.svc.UpdateStatus(context.Background(), conn.ID, f.recipient, raw); !errors.Is(err, domain.ErrInvalidStatusValue) {
			t.Fatalf("expected ErrInvalidStatusValue for %q, got %v", raw, err)
		}
	}
}

func TestGetAndListConnections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conn := f.request(t)

	if _, err := f.svc.GetConnection(ctx, conn.ID, f.recipient); err != nil {
		t.Fatalf("recipient should see the connection: %v", err)
	}
	if _, err := f.svc.GetConnection(ctx, conn.ID, f.outsider); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for outsider, got %v", err)
	}

	asRecipient, err := f.svc.ListConnections(ctx, f.recipient, domain.ConnectionListOptions{Role: domain.ConnectionRoleRecipient})
	if err != nil || len(asRecipient) != 1 {
		t.Fatalf("expected one incoming connection, got %d err=%v", len(asRecipient), err)
	}
	asRequester, err := f.svc.ListConnections(ctx, f.recipient, domain.ConnectionListOptions{Role: domain.ConnectionRoleRequester})
	if err != nil || len(asRequester) != 0 {
		t.Fatalf("expected no outgoing connections, got %d err=%v", len(asRequester), err)
	}
	accepted, err := f.svc.ListConnections(ctx, f.requester, domain.ConnectionListOptions{Status: domain.ConnectionAccepted})
	if err != nil || len(accepted) != 0 {
		t.Fatalf("expected no accepted connections, got %d err=%v", len(accepted), err)
	}
	if _, err := f.svc.ListConnections(ctx, f.requester, domain.ConnectionListOptions{Status: "BOGUS"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
