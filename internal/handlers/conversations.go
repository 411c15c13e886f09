package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/eldtechnologies/inbox/internal/models"
)

// ResolveRequest represents the open-conversation request body.
type ResolveRequest struct {
	OtherID string `json:"other_id"`
}

// ConversationResponse represents a conversation in API responses.
type ConversationResponse struct {
	ID        string    `json:"id"`
	OtherID   string    `json:"other_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationListResponse represents the conversation list response.
type ConversationListResponse struct {
	Conversations []models.ConversationSummary `json:"conversations"`
}

// ParticipantResponse reports the caller's state in a conversation.
type ParticipantResponse struct {
	ConversationID string     `json:"conversation_id"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"`
	ArchivedAt     *time.Time `json:"archived_at,omitempty"`
}

// UnreadResponse represents an unread count.
type UnreadResponse struct {
	ConversationID string `json:"conversation_id,omitempty"`
	UnreadCount    int    `json:"unread_count"`
}

// ResolveConversation returns the caller's conversation with other_id,
// creating it on first contact.
func (h *Handler) ResolveConversation(w http.ResponseWriter, r *http.Request) {
	self, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	otherID, err := uuid.Parse(req.OtherID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid other_id format")
		return
	}

	conv, err := h.svc.Resolve(r.Context(), self.ID, otherID)
	if err != nil {
		h.ServiceError(w, r, err)
		return
	}

	h.JSON(w, http.StatusOK, ConversationResponse{
		ID:        conv.ID.String(),
		OtherID:   otherID.String(),
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	})
}

// ListConversations lists the caller's conversations. ?archived=true lists
// archived ones instead.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	self, ok := h.caller(w, r)
	if !ok {
		return
	}

	archived := r.URL.Query().Get("archived") == "true"
	summaries, err := h.svc.List(r.Context(), self.ID, archived)
	if err != nil {
		h.ServiceError(w, r, err)
		return
	}

	h.JSON(w, http.StatusOK, ConversationListResponse{Conversations: summaries})
}

// MarkRead advances the caller's read cursor.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	self, ok := h.caller(w, r)
	if !ok {
		return
	}
	convID, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	p, err := h.svc.MarkRead(r.Context(), convID, self.ID)
	if err != nil {
		h.ServiceError(w, r, err)
		return
	}

	h.JSON(w, http.StatusOK, participantResponse(p))
}

// Archive hides a conversation from the caller's list.
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, true)
}

// Unarchive restores a conversation to the caller's list.
func (h *Handler) Unarchive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, false)
}

func (h *Handler) setArchived(w http.ResponseWriter, r *http.Request, archived bool) {
	self, ok := h.caller(w, r)
	if !ok {
		return
	}
	convID, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	var (
		p   *models.Participant
		err error
	)
	if archived {
		p, err = h.svc.Archive(r.Context(), convID, self.ID)
	} else {
		p, err = h.svc.Unarchive(r.Context(), convID, self.ID)
	}
	if err != nil {
		h.ServiceError(w, r, err)
		return
	}

	h.JSON(w, http.StatusOK, participantResponse(p))
}

// ConversationUnread returns the caller's unread count for one conversation.
func (h *Handler) ConversationUnread(w http.ResponseWriter, r *http.Request) {
	self, ok := h.caller(w, r)
	if !ok {
		return
	}
	convID, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	n, err := h.svc.UnreadCount(r.Context(), convID, self.ID)
	if err != nil {
		h.ServiceError(w, r, err)
		return
	}

	h.JSON(w, http.StatusOK, UnreadResponse{ConversationID: convID.String(), UnreadCount: n})
}

// TotalUnread returns the caller's unread count across active conversations.
func (h *Handler) TotalUnread(w http.ResponseWriter, r *http.Request) {
	self, ok := h.caller(w, r)
	if !ok {
		return
	}

	n, err := h.svc.TotalUnread(r.Context(), self.ID)
	if err != nil {
		h.ServiceError(w, r, err)
		return
	}

	h.JSON(w, http.StatusOK, UnreadResponse{UnreadCount: n})
}

func participantResponse(p *models.Participant) ParticipantResponse {
	return ParticipantResponse{
		ConversationID: p.ConversationID.String(),
		LastReadAt:     p.LastReadAt,
		ArchivedAt:     p.ArchivedAt,
	}
}
