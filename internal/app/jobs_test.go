package app

import (
	"context"
	"errors"
	"testing"
	"time"
)

type maintenanceStub struct {
	expireTTL   time.Duration
	expireCalls int
	refundAfter time.Duration
	refundCalls int
	err         error
}

func (m *maintenanceStub) ExpireStalePendingPayments(ctx context.Context, ttl time.Duration, batchSize int) (int, error) {
	m.expireCalls++
	m.expireTTL = ttl
	return 3, m.err
}

func (m *maintenanceStub) RedispatchRefundRequests(ctx context.Context, after time.Duration, batchSize int) (int, error) {
	m.refundCalls++
	m.refundAfter = after
	return 1, m.err
}

func TestJobs_PassThresholds(t *testing.T) {
	stub := &maintenanceStub{}
	jobs := NewJobs(stub, quietLogger(), JobsConfig{PendingPaymentTTL: time.Hour, RefundRedispatchAfter: 30 * time.Minute})

	jobs.ExpireStalePendingConnections()
	jobs.RedispatchRefundRequests()

	if stub.expireCalls != 1 || stub.expireTTL != time.Hour {
		t.Fatalf("unexpected expiry call: %d calls, ttl %s", stub.expireCalls, stub.expireTTL)
	}
	if stub.refundCalls != 1 || stub.refundAfter != 30*time.Minute {
		t.Fatalf("unexpected redispatch call: %d calls, after %s", stub.refundCalls, stub.refundAfter)
	}

	stub.err = errors.New("db down")
	jobs.ExpireStalePendingConnections()
	jobs.RedispatchRefundRequests()
	if stub.expireCalls != 2 || stub.refundCalls != 2 {
		t.Fatal("expected jobs to keep running after errors")
	}
}

func TestJobs_ExpiryDisabledWithoutTTL(t *testing.T) {
	stub := &maintenanceStub{}
	NewJobs(stub, quietLogger(), JobsConfig{}).ExpireStalePendingConnections()
	if stub.expireCalls != 0 {
		t.Fatal("expected expiry to be skipped without a ttl")
	}
}

func TestScheduler_RegistersValidSchedules(t *testing.T) {
	tests := []struct {
		name    string
		expiry  string
		refund  string
		entries int
	}{
		{"both", "*/5 * * * *", "*/10 * * * *", 2},
		{"expiry disabled", "", "*/10 * * * *", 1},
		{"invalid refund schedule", "*/5 * * * *", "every now and then", 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			jobs := NewJobs(&maintenanceStub{}, quietLogger(), JobsConfig{ConnectionExpirySchedule: tc.expiry, RefundDispatchSchedule: tc.refund})
			s := NewScheduler(jobs, quietLogger())
			s.Start()
			defer s.Stop()
			if got := s.Entries(); got != tc.entries {
				t.Fatalf("expected %d entries, got %d", tc.entries, got)
			}
		})
	}
}
