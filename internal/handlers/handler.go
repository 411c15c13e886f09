package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/inbox/internal/api/middleware"
	"github.com/eldtechnologies/inbox/internal/messaging"
	"github.com/eldtechnologies/inbox/internal/models"
	"github.com/eldtechnologies/inbox/internal/store"
)

// pinger is satisfied by RedisStore and used for health checks only.
type pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	svc    *messaging.Service
	db     store.DataStore
	redis  pinger
	logger zerolog.Logger
}

// NewHandler creates a new Handler. redis may be nil in tests.
func NewHandler(svc *messaging.Service, db store.DataStore, redis pinger, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, db: db, redis: redis, logger: logger}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// ServiceError maps a messaging error to a status code and writes it.
func (h *Handler) ServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, messaging.ErrUnauthorized):
		h.Error(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, messaging.ErrForbidden):
		h.Error(w, http.StatusForbidden, "not a participant of this conversation")
	case errors.Is(err, messaging.ErrInvalidOperation):
		h.Error(w, http.StatusBadRequest, "cannot open a conversation with yourself")
	case errors.Is(err, messaging.ErrInvalidInput):
		h.Error(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, messaging.ErrNotFound):
		h.Error(w, http.StatusNotFound, "not found")
	case errors.Is(err, messaging.ErrTransient):
		h.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("transient failure")
		h.Error(w, http.StatusServiceUnavailable, "temporarily unavailable, retry")
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("unexpected error")
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}

// caller returns the authenticated identity or writes 401.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (*models.Identity, bool) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		h.ServiceError(w, r, messaging.ErrUnauthorized)
		return nil, false
	}
	return identity, true
}

// conversationID parses the {id} URL parameter or writes 400.
func (h *Handler) conversationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid conversation ID format")
		return uuid.Nil, false
	}
	return id, true
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	if utf8.RuneCountInString(name) > 100 {
		name = string([]rune(name)[:100])
	}

	return name
}
