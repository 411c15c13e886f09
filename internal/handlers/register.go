package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/eldtechnologies/inbox/internal/crypto"
	"github.com/eldtechnologies/inbox/internal/metrics"
)

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	PublicKey string `json:"public_key"`
	Name      string `json:"name"`
}

// RegisterResponse represents the registration response.
type RegisterResponse struct {
	ID         string `json:"id"`
	ProfileURL string `json:"profile_url"`
}

// Register handles identity registration. Registering a known key returns
// the existing identity.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.PublicKey == "" {
		h.Error(w, http.StatusBadRequest, "public_key is required")
		return
	}

	if _, err := crypto.ValidatePublicKey(req.PublicKey); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid public_key: must be base64-encoded Ed25519 public key (32 bytes)")
		return
	}

	name := sanitizeName(req.Name)

	existing, err := h.db.GetIdentityByPublicKey(r.Context(), req.PublicKey)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	if existing != nil {
		h.JSON(w, http.StatusOK, RegisterResponse{
			ID:         existing.ID.String(),
			ProfileURL: fmt.Sprintf("/who/%s", existing.ID),
		})
		return
	}

	identity, err := h.db.CreateIdentity(r.Context(), req.PublicKey, name)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create identity")
		return
	}
	metrics.IdentitiesRegistered.Inc()

	h.JSON(w, http.StatusCreated, RegisterResponse{
		ID:         identity.ID.String(),
		ProfileURL: fmt.Sprintf("/who/%s", identity.ID),
	})
}
