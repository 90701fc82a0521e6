/**
 * @description
 * HTTP handlers shared plumbing: caller resolution, request decoding, response
 * encoding and the mapping from domain errors to HTTP status codes.
 *
 * @dependencies
 * - internal/app, internal/domain: service logic and the error taxonomy.
 * - github.com/sirupsen/logrus: structured logging.
 */

package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kontent/connection-service/internal/app"
	"github.com/kontent/connection-service/internal/domain"
	"github.com/kontent/connection-service/internal/logger"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const maxRequestBody = 1 << 20

// Handlers holds the application service that handlers will use.
type Handlers struct {
	service *app.Service
	log     *logrus.Entry
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(service *app.Service, log logrus.FieldLogger) *Handlers {
	return &Handlers{service: service, log: logger.Component(log, "api")}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// writeServiceError maps err onto the HTTP taxonomy. Unknown errors are logged
// and answered with a generic 500.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var rl *domain.RateLimitError
	if errors.As(err, &rl) {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
		writeError(w, http.StatusTooManyRequests, domain.ErrorCode(err), "Too many requests, please try again later")
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.log.WithError(err).WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Error("request failed")
		writeError(w, status, "internal_error", "Internal server error")
		return
	}
	writeError(w, status, domain.ErrorCode(err), err.Error())
}

// currentUser resolves the authenticated Clerk user to the internal user id.
func (h *Handlers) currentUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	clerkUserID, ok := GetClerkUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Could not get user ID from context")
		return uuid.Nil, false
	}
	userID, err := h.service.ResolveInternalUserID(r.Context(), clerkUserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.log.WithField("clerk_user_id", clerkUserID).Warn("authenticated user has no internal account")
			writeError(w, http.StatusUnauthorized, "user_not_found", "User not found")
			return uuid.Nil, false
		}
		h.writeServiceError(w, r, err)
		return uuid.Nil, false
	}
	return userID, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return false
	}
	return true
}

// pageParams reads limit and offset; store.ClampPage bounds them later.
func pageParams(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	q := r.URL.Query()
	for name, dst := range map[string]*int{"limit": &limit, "offset": &offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "validation_error", "Invalid "+name)
			return 0, 0, false
		}
		*dst = v
	}
	return limit, offset, true
}

// money renders an amount as a JSON number with the currency's minor units.
func money(d decimal.Decimal, currency string) json.Number {
	return json.Number(d.StringFixed(domain.MinorUnits(currency)))
}
