package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/eldtechnologies/inbox/internal/crypto"
	"github.com/eldtechnologies/inbox/internal/models"
)

type contextKey string

const IdentityContextKey contextKey = "identity"

// Request headers carrying the caller's signature.
const (
	HeaderIdentity  = "X-Inbox-Identity"
	HeaderNonce     = "X-Inbox-Nonce"
	HeaderTimestamp = "X-Inbox-Timestamp"
	HeaderSignature = "X-Inbox-Signature"
)

const nonceTTL = 3 * time.Minute

// IdentityLookup resolves the caller's registered public key.
type IdentityLookup interface {
	GetIdentityByID(ctx context.Context, id uuid.UUID) (*models.Identity, error)
}

// NonceStore remembers nonces for the replay window. RedisStore implements it.
type NonceStore interface {
	IsNonceUsed(ctx context.Context, identityID, nonce string) bool
	// MarkNonceUsed returns false if the nonce was already recorded.
	MarkNonceUsed(ctx context.Context, identityID, nonce string, ttl time.Duration) bool
}

// AuthMiddleware handles signature verification for authenticated endpoints.
type AuthMiddleware struct {
	identities IdentityLookup
	nonces     NonceStore
	window     time.Duration
	now        func() time.Time
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(identities IdentityLookup, nonces NonceStore) *AuthMiddleware {
	return &AuthMiddleware{
		identities: identities,
		nonces:     nonces,
		window:     30 * time.Second,
		now:        time.Now,
	}
}

// RequireAuth middleware verifies Ed25519 signatures on requests.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identityID := r.Header.Get(HeaderIdentity)
		nonce := r.Header.Get(HeaderNonce)
		timestamp := r.Header.Get(HeaderTimestamp)
		signature := r.Header.Get(HeaderSignature)

		if identityID == "" || nonce == "" || timestamp == "" || signature == "" {
			jsonError(w, http.StatusUnauthorized, "missing auth headers")
			return
		}

		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid timestamp format")
			return
		}
		if !m.isTimestampValid(ts) {
			jsonError(w, http.StatusUnauthorized, "timestamp expired or too far in future")
			return
		}

		// Minimum 24 chars for adequate entropy
		if len(nonce) < 2*crypto.NonceBytes {
			jsonError(w, http.StatusUnauthorized, "nonce must be at least 24 characters")
			return
		}

		if m.nonces.IsNonceUsed(r.Context(), identityID, nonce) {
			jsonError(w, http.StatusUnauthorized, "nonce already used")
			return
		}

		id, err := uuid.Parse(identityID)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid identity format")
			return
		}

		identity, err := m.identities.GetIdentityByID(r.Context(), id)
		if err != nil {
			jsonError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
			return
		}
		if identity == nil {
			jsonError(w, http.StatusUnauthorized, "identity not found")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewBuffer(body))

		pubkey, err := crypto.ValidatePublicKey(identity.PublicKey)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid identity public key")
			return
		}

		signed := crypto.SignaturePayload(crypto.BodyHash(body), nonce, ts)
		if err := crypto.VerifySignature(pubkey, signed, signature); err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid signature")
			return
		}

		// SETNX closes the gap between the check above and this point.
		if !m.nonces.MarkNonceUsed(r.Context(), identityID, nonce, nonceTTL) {
			jsonError(w, http.StatusUnauthorized, "nonce already used")
			return
		}

		ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// isTimestampValid accepts timestamps from the past window only.
func (m *AuthMiddleware) isTimestampValid(ts int64) bool {
	now := m.now().UnixMilli()
	windowMs := m.window.Milliseconds()
	return ts > now-windowMs && ts <= now
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetIdentityFromContext retrieves the authenticated identity from the request context.
func GetIdentityFromContext(ctx context.Context) *models.Identity {
	identity, ok := ctx.Value(IdentityContextKey).(*models.Identity)
	if !ok {
		return nil
	}
	return identity
}

// WithIdentity returns a context carrying an authenticated identity.
func WithIdentity(ctx context.Context, identity *models.Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, identity)
}
