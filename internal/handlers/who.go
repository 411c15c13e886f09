package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// WhoResponse represents the identity profile response.
type WhoResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	PublicKey string `json:"public_key"`
	JoinedAt  string `json:"joined_at"`
}

// Who handles identity profile lookup.
func (h *Handler) Who(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid identity ID format")
		return
	}

	identity, err := h.db.GetIdentityByID(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	if identity == nil {
		h.Error(w, http.StatusNotFound, "identity not found")
		return
	}

	h.JSON(w, http.StatusOK, WhoResponse{
		ID:        identity.ID.String(),
		Name:      identity.Name,
		PublicKey: identity.PublicKey,
		JoinedAt:  identity.CreatedAt.UTC().Format(time.RFC3339),
	})
}
