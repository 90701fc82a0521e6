package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kontent/connection-service/internal/domain"
)

type transactionResponse struct {
	TransactionID     uuid.UUID   `json:"transaction_id"`
	UserID            uuid.UUID   `json:"user_id"`
	ConnectionID      *uuid.UUID  `json:"connection_id"`
	Amount            json.Number `json:"amount"`
	Currency          string      `json:"currency"`
	Status            string      `json:"status"`
	PaymentMethod     string      `json:"payment_method,omitempty"`
	ExternalID        *string     `json:"external_id"`
	TransactionDate   time.Time   `json:"transaction_date"`
	RefundRequestedAt *time.Time  `json:"refund_requested_at,omitempty"`
	RefundedAt        *time.Time  `json:"refunded_at,omitempty"`
}

func newTransactionResponse(t *domain.Transaction) transactionResponse {
	return transactionResponse{
		TransactionID:     t.ID,
		UserID:            t.PayerID,
		ConnectionID:      t.ConnectionID,
		Amount:            money(t.Amount, t.Currency),
		Currency:          t.Currency,
		Status:            string(t.Status),
		PaymentMethod:     t.PaymentMethod,
		ExternalID:        t.ExternalID,
		TransactionDate:   t.TransactionDate,
		RefundRequestedAt: t.RefundRequestedAt,
		RefundedAt:        t.RefundedAt,
	}
}

type earningResponse struct {
	EarningID           uuid.UUID   `json:"earning_id"`
	UserID              uuid.UUID   `json:"user_id"`
	ConnectionID        uuid.UUID   `json:"connection_id"`
	Amount              json.Number `json:"amount"`
	Currency            string      `json:"currency"`
	Status              string      `json:"status"`
	CreatedAt           time.Time   `json:"created_at"`
	PaidOutAt           *time.Time  `json:"paid_out_at"`
	CanceledAt          *time.Time  `json:"canceled_at,omitempty"`
	PayoutTransactionID *uuid.UUID  `json:"payout_transaction_id"`
}

func newEarningResponse(e *domain.Earning) earningResponse {
	return earningResponse{
		EarningID:           e.ID,
		UserID:              e.RecipientID,
		ConnectionID:        e.ConnectionID,
		Amount:              money(e.Amount, e.Currency),
		Currency:            e.Currency,
		Status:              string(e.Status),
		CreatedAt:           e.CreatedAt,
		PaidOutAt:           e.PaidOutAt,
		CanceledAt:          e.CanceledAt,
		PayoutTransactionID: e.PayoutTransactionID,
	}
}

// ListMyTransactionsHandler lists the payments the caller made.
func (h *Handlers) ListMyTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	limit, offset, ok := pageParams(w, r)
	if !ok {
		return
	}
	txns, err := h.service.ListTransactions(r.Context(), userID, limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out := make([]transactionResponse, 0, len(txns))
	for i := range txns {
		out = append(out, newTransactionResponse(&txns[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetTransactionHandler returns one of the caller's payments.
func (h *Handlers) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	txn, err := h.service.GetTransaction(r.Context(), id, userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTransactionResponse(txn))
}

// ListMyEarningsHandler lists the caller's earnings.
func (h *Handlers) ListMyEarningsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	limit, offset, ok := pageParams(w, r)
	if !ok {
		return
	}
	earnings, err := h.service.ListEarnings(r.Context(), userID, limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out := make([]earningResponse, 0, len(earnings))
	for i := range earnings {
		out = append(out, newEarningResponse(&earnings[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetEarningHandler returns one of the caller's earnings.
func (h *Handlers) GetEarningHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	earning, err := h.service.GetEarning(r.Context(), id, userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEarningResponse(earning))
}
