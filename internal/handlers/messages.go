package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/eldtechnologies/inbox/internal/messaging"
)

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	Content       string `json:"content"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ListMessages returns a page of messages, oldest first.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	self, ok := h.caller(w, r)
	if !ok {
		return
	}
	convID, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	page := messaging.Page{Before: r.URL.Query().Get("before")}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			h.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		page.Limit = limit
	}

	result, err := h.svc.Messages(r.Context(), convID, self.ID, page)
	if err != nil {
		h.ServiceError(w, r, err)
		return
	}

	h.JSON(w, http.StatusOK, result)
}

// SendMessage appends a message to a conversation.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	self, ok := h.caller(w, r)
	if !ok {
		return
	}
	convID, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := h.svc.Send(r.Context(), convID, self.ID, req.Content, req.CorrelationID)
	if err != nil {
		h.ServiceError(w, r, err)
		return
	}

	h.JSON(w, http.StatusCreated, msg)
}
