package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kontent/connection-service/internal/app"
	"github.com/kontent/connection-service/internal/domain"
	"github.com/shopspring/decimal"
)

type connectionRequest struct {
	RecipientID uuid.UUID  `json:"recipient_id"`
	MomentID    *uuid.UUID `json:"moment_id,omitempty"`
}

type completePaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"payment_method"`
	ExternalID    *string         `json:"external_id,omitempty"`
}

type statusUpdateRequest struct {
	Status string `json:"status"`
}

type connectionResponse struct {
	ConnectionID uuid.UUID   `json:"connection_id"`
	RequesterID  uuid.UUID   `json:"requester_id"`
	RecipientID  uuid.UUID   `json:"recipient_id"`
	MomentID     *uuid.UUID  `json:"moment_id"`
	Status       string      `json:"status"`
	FeeAmount    json.Number `json:"fee_amount"`
	PlatformCut  json.Number `json:"platform_cut"`
	PosterShare  json.Number `json:"poster_share"`
	Currency     string      `json:"currency"`
	ConfigName   string      `json:"config_name"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

func newConnectionResponse(c *domain.Connection) connectionResponse {
	return connectionResponse{
		ConnectionID: c.ID,
		RequesterID:  c.RequesterID,
		RecipientID:  c.RecipientID,
		MomentID:     c.MomentID,
		Status:       string(c.Status),
		FeeAmount:    money(c.FeeAmount, c.Currency),
		PlatformCut:  money(c.PlatformCut, c.Currency),
		PosterShare:  money(c.PosterShare, c.Currency),
		Currency:     c.Currency,
		ConfigName:   c.ConfigName,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// RequestConnectionHandler opens a paid connection request, or returns the open
// one for the same recipient and moment. Either way the client proceeds to pay.
func (h *Handlers) RequestConnectionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req connectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RecipientID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "validation_error", "recipient_id is required")
		return
	}

	conn, created, err := h.service.RequestConnection(r.Context(), userID, app.RequestConnectionInput{
		RecipientID: req.RecipientID,
		MomentID:    req.MomentID,
	})
	if err != nil {
		// An unknown recipient is a bad request body, not a missing resource.
		if errors.Is(err, domain.ErrRecipientNotFound) {
			writeError(w, http.StatusBadRequest, domain.ErrorCode(err), err.Error())
			return
		}
		h.writeServiceError(w, r, err)
		return
	}
	h.log.WithField("connection_id", conn.ID).WithField("created", created).Debug("connection request served")
	writeJSON(w, http.StatusAccepted, newConnectionResponse(conn))
}

// ListConnectionsHandler lists the caller's connections, filtered by role and status.
func (h *Handlers) ListConnectionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	limit, offset, ok := pageParams(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	conns, err := h.service.ListConnections(r.Context(), userID, domain.ConnectionListOptions{
		Role:   domain.ConnectionRole(q.Get("role")),
		Status: domain.ConnectionStatus(q.Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out := make([]connectionResponse, 0, len(conns))
	for i := range conns {
		out = append(out, newConnectionResponse(&conns[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetConnectionHandler returns a connection to one of its two parties.
func (h *Handlers) GetConnectionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	conn, err := h.service.GetConnection(r.Context(), id, userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newConnectionResponse(conn))
}

// CompletePaymentHandler records the requester's payment for a connection.
func (h *Handlers) CompletePaymentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req completePaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	conn, err := h.service.ConfirmPayment(r.Context(), domain.PaymentConfirmation{
		ConnectionID:  id,
		PayerID:       &userID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		PaymentMethod: req.PaymentMethod,
		ExternalID:    req.ExternalID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newConnectionResponse(conn))
}

// UpdateConnectionStatusHandler accepts, declines or cancels a connection.
func (h *Handlers) UpdateConnectionStatusHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req statusUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	conn, err := h.service.UpdateStatus(r.Context(), id, userID, req.Status)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newConnectionResponse(conn))
}
