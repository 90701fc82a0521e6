package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kontent/connection-service/internal/app"
	"github.com/kontent/connection-service/internal/domain"
	"github.com/shopspring/decimal"
)

type monetizationConfigRequest struct {
	ConfigName            *string          `json:"config_name"`
	ConnectionFeeBase     *decimal.Decimal `json:"connection_fee_base"`
	PlatformCutPercentage *decimal.Decimal `json:"platform_cut_percentage"`
	PosterSharePercentage *decimal.Decimal `json:"poster_share_percentage"`
	Currency              *string          `json:"currency"`
	IsActive              *bool            `json:"is_active"`
}

func (req monetizationConfigRequest) input() app.MonetizationConfigInput {
	return app.MonetizationConfigInput{
		Name:           req.ConfigName,
		FeeBase:        req.ConnectionFeeBase,
		PlatformCutPct: req.PlatformCutPercentage,
		PosterSharePct: req.PosterSharePercentage,
		Currency:       req.Currency,
		IsActive:       req.IsActive,
	}
}

type monetizationConfigResponse struct {
	ConfigID              uuid.UUID   `json:"config_id"`
	ConfigName            string      `json:"config_name"`
	ConnectionFeeBase     json.Number `json:"connection_fee_base"`
	PlatformCutPercentage json.Number `json:"platform_cut_percentage"`
	PosterSharePercentage json.Number `json:"poster_share_percentage"`
	Currency              string      `json:"currency"`
	IsActive              bool        `json:"is_active"`
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

func newMonetizationConfigResponse(c *domain.MonetizationConfig) monetizationConfigResponse {
	return monetizationConfigResponse{
		ConfigID:              c.ID,
		ConfigName:            c.Name,
		ConnectionFeeBase:     money(c.FeeBase, c.Currency),
		PlatformCutPercentage: json.Number(c.PlatformCutPct.String()),
		PosterSharePercentage: json.Number(c.PosterSharePct.String()),
		Currency:              c.Currency,
		IsActive:              c.IsActive,
		CreatedAt:             c.CreatedAt,
		UpdatedAt:             c.UpdatedAt,
	}
}

func (h *Handlers) writeConfigs(w http.ResponseWriter, r *http.Request, activeOnly bool) {
	cfgs, err := h.service.ListMonetizationConfigs(r.Context(), activeOnly)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	name := r.URL.Query().Get("config_name")
	out := make([]monetizationConfigResponse, 0, len(cfgs))
	for i := range cfgs {
		if name != "" && cfgs[i].Name != name {
			continue
		}
		out = append(out, newMonetizationConfigResponse(&cfgs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// ListActiveMonetizationConfigsHandler lists the fee schedules currently in use.
func (h *Handlers) ListActiveMonetizationConfigsHandler(w http.ResponseWriter, r *http.Request) {
	h.writeConfigs(w, r, true)
}

// ListMonetizationConfigsHandler lists every fee schedule, optionally by config_name.
func (h *Handlers) ListMonetizationConfigsHandler(w http.ResponseWriter, r *http.Request) {
	h.writeConfigs(w, r, false)
}

// CreateMonetizationConfigHandler creates a fee schedule.
func (h *Handlers) CreateMonetizationConfigHandler(w http.ResponseWriter, r *http.Request) {
	var req monetizationConfigRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cfg, err := h.service.CreateMonetizationConfig(r.Context(), req.input())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newMonetizationConfigResponse(cfg))
}

// GetMonetizationConfigHandler returns a fee schedule.
func (h *Handlers) GetMonetizationConfigHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	cfg, err := h.service.GetMonetizationConfig(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMonetizationConfigResponse(cfg))
}

// UpdateMonetizationConfigHandler changes the given fields of a fee schedule.
func (h *Handlers) UpdateMonetizationConfigHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req monetizationConfigRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cfg, err := h.service.UpdateMonetizationConfig(r.Context(), id, req.input())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMonetizationConfigResponse(cfg))
}

// DeactivateMonetizationConfigHandler takes a fee schedule out of use.
func (h *Handlers) DeactivateMonetizationConfigHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	cfg, err := h.service.DeactivateMonetizationConfig(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMonetizationConfigResponse(cfg))
}

type settleEarningRequest struct {
	PayoutTransactionID uuid.UUID `json:"payout_transaction_id"`
}

// SettleEarningHandler marks an earning paid out by the payout service.
func (h *Handlers) SettleEarningHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req settleEarningRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PayoutTransactionID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "validation_error", "payout_transaction_id is required")
		return
	}
	earning, err := h.service.SettleEarning(r.Context(), id, req.PayoutTransactionID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEarningResponse(earning))
}

// CancelEarningHandler withdraws an earning that has not been paid out.
func (h *Handlers) CancelEarningHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	earning, err := h.service.CancelEarning(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEarningResponse(earning))
}

type completeRefundRequest struct {
	TransactionID *uuid.UUID `json:"transaction_id"`
	ExternalID    string     `json:"external_id"`
}

// CompleteRefundHandler records a refund the payment provider has settled.
func (h *Handlers) CompleteRefundHandler(w http.ResponseWriter, r *http.Request) {
	var req completeRefundRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	txn, err := h.service.CompleteRefund(r.Context(), domain.RefundCompletion{
		TransactionID: req.TransactionID,
		ExternalID:    req.ExternalID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTransactionResponse(txn))
}
