package inbox

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Message is a message in a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	SenderName     string    `json:"sender_name,omitempty"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	CorrelationID  string    `json:"correlation_id,omitempty"`
}

// Conversation is the result of opening a conversation.
type Conversation struct {
	ID        string    `json:"id"`
	OtherID   string    `json:"other_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationSummary is one row of the conversation list.
type ConversationSummary struct {
	ID          string     `json:"id"`
	OtherID     string     `json:"other_id"`
	OtherName   string     `json:"other_name"`
	LastMessage *Message   `json:"last_message,omitempty"`
	UnreadCount int        `json:"unread_count"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
}

// MessagePage is a window of messages, oldest first.
type MessagePage struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

// ParticipantState is the caller's read and archive state.
type ParticipantState struct {
	ConversationID string     `json:"conversation_id"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"`
	ArchivedAt     *time.Time `json:"archived_at,omitempty"`
}

type unreadResponse struct {
	UnreadCount int `json:"unread_count"`
}

func conversationPath(conversationID, suffix string) string {
	return "/conversations/" + url.PathEscape(conversationID) + suffix
}

// OpenConversation returns the conversation with otherID, creating it on
// first contact.
func (c *Client) OpenConversation(ctx context.Context, otherID string) (*Conversation, error) {
	var resp Conversation
	err := c.do(ctx, request{
		method:     http.MethodPost,
		path:       "/conversations",
		body:       map[string]string{"other_id": otherID},
		signed:     true,
		idempotent: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListConversations lists active conversations, or archived ones.
func (c *Client) ListConversations(ctx context.Context, archived bool) ([]ConversationSummary, error) {
	path := "/conversations"
	if archived {
		path += "?archived=true"
	}
	var resp struct {
		Conversations []ConversationSummary `json:"conversations"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: path, signed: true, idempotent: true}, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// ListMessages fetches up to limit messages older than before (a message
// id), or the newest when before is empty.
func (c *Client) ListMessages(ctx context.Context, conversationID string, limit int, before string) (*MessagePage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if before != "" {
		q.Set("before", before)
	}
	path := conversationPath(conversationID, "/messages")
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp MessagePage
	if err := c.do(ctx, request{method: http.MethodGet, path: path, signed: true, idempotent: true}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendMessage sends a message. It is never retried automatically: a
// timed-out send may still have been stored.
func (c *Client) SendMessage(ctx context.Context, conversationID, content, correlationID string) (*Message, error) {
	var resp Message
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   conversationPath(conversationID, "/messages"),
		body: map[string]string{
			"content":        content,
			"correlation_id": correlationID,
		},
		signed: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// MarkRead marks everything in the conversation as read.
func (c *Client) MarkRead(ctx context.Context, conversationID string) (*ParticipantState, error) {
	return c.participantCall(ctx, http.MethodPost, conversationPath(conversationID, "/read"))
}

// Archive hides the conversation from the caller's list.
func (c *Client) Archive(ctx context.Context, conversationID string) (*ParticipantState, error) {
	return c.participantCall(ctx, http.MethodPost, conversationPath(conversationID, "/archive"))
}

// Unarchive restores the conversation to the caller's list.
func (c *Client) Unarchive(ctx context.Context, conversationID string) (*ParticipantState, error) {
	return c.participantCall(ctx, http.MethodDelete, conversationPath(conversationID, "/archive"))
}

func (c *Client) participantCall(ctx context.Context, method, path string) (*ParticipantState, error) {
	var resp ParticipantState
	if err := c.do(ctx, request{method: method, path: path, signed: true, idempotent: true}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ConversationUnread returns the unread count for one conversation.
func (c *Client) ConversationUnread(ctx context.Context, conversationID string) (int, error) {
	var resp unreadResponse
	err := c.do(ctx, request{method: http.MethodGet, path: conversationPath(conversationID, "/unread"), signed: true, idempotent: true}, &resp)
	return resp.UnreadCount, err
}

// TotalUnread returns the unread count across active conversations.
func (c *Client) TotalUnread(ctx context.Context) (int, error) {
	var resp unreadResponse
	err := c.do(ctx, request{method: http.MethodGet, path: "/unread", signed: true, idempotent: true}, &resp)
	return resp.UnreadCount, err
}
