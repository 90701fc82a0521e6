package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kontent/connection-service/internal/domain"
)

type sendMessageRequest struct {
	ConnectionID uuid.UUID `json:"connection_id"`
	TextContent  string    `json:"text_content"`
}

type messageResponse struct {
	MessageID    uuid.UUID  `json:"message_id"`
	ConnectionID uuid.UUID  `json:"connection_id"`
	SenderID     uuid.UUID  `json:"sender_id"`
	TextContent  string     `json:"text_content"`
	IsRead       bool       `json:"is_read"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func newMessageResponse(m *domain.Message) messageResponse {
	return messageResponse{
		MessageID:    m.ID,
		ConnectionID: m.ConnectionID,
		SenderID:     m.SenderID,
		TextContent:  m.Text,
		IsRead:       m.IsRead,
		ReadAt:       m.ReadAt,
		CreatedAt:    m.CreatedAt,
	}
}

// SendMessageHandler posts a message over an accepted connection.
func (h *Handlers) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ConnectionID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "validation_error", "connection_id is required")
		return
	}

	msg, err := h.service.SendMessage(r.Context(), req.ConnectionID, userID, req.TextContent)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newMessageResponse(msg))
}

// ListMessagesHandler returns a conversation, oldest message first.
func (h *Handlers) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	limit, offset, ok := pageParams(w, r)
	if !ok {
		return
	}

	msgs, err := h.service.ListMessages(r.Context(), id, userID, limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out := make([]messageResponse, 0, len(msgs))
	for i := range msgs {
		out = append(out, newMessageResponse(&msgs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// MarkMessageReadHandler marks a received message as read.
func (h *Handlers) MarkMessageReadHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	msg, err := h.service.MarkMessageRead(r.Context(), id, userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMessageResponse(msg))
}
