// Package inbox provides a client for the inbox direct messaging API,
// plus an optimistic local timeline for building chat interfaces.
package inbox

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/eldtechnologies/inbox/internal/crypto"
)

// Authentication headers.
const (
	HeaderIdentity  = "X-Inbox-Identity"
	HeaderNonce     = "X-Inbox-Nonce"
	HeaderTimestamp = "X-Inbox-Timestamp"
	HeaderSignature = "X-Inbox-Signature"
)

// DefaultMaxRetries is how many times idempotent calls are retried on 503.
const DefaultMaxRetries = 3

// Client is an inbox API client.
type Client struct {
	BaseURL    string
	ConfigDir  string
	IdentityID string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
	HTTPClient *http.Client

	MaxRetries   int
	RetryBackoff time.Duration
}

// Config holds identity configuration.
type Config struct {
	ID        string `json:"id"`
	PublicKey string `json:"public_key"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("inbox error %d: %s", e.Status, e.Message)
}

// Transient reports whether the request may succeed if retried.
func (e *APIError) Transient() bool {
	return e.Status == http.StatusServiceUnavailable
}

// IsTransient reports whether err is a retryable API error.
func IsTransient(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Transient()
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// NewClient creates a new inbox client and loads saved credentials if any.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	configDir := os.Getenv("INBOX_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".inbox")
	}

	c := &Client{
		BaseURL:      baseURL,
		ConfigDir:    configDir,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		MaxRetries:   DefaultMaxRetries,
		RetryBackoff: 250 * time.Millisecond,
	}

	_ = c.LoadConfig()
	return c
}

// LoadConfig loads identity credentials from disk.
func (c *Client) LoadConfig() error {
	data, err := os.ReadFile(filepath.Join(c.ConfigDir, "identity.json"))
	if err != nil {
		return err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return err
	}

	keyData, err := os.ReadFile(filepath.Join(c.ConfigDir, "private.key"))
	if err != nil {
		return err
	}

	seed, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(keyData)))
	if err != nil {
		return err
	}
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("private key seed must be %d bytes", ed25519.SeedSize)
	}

	c.IdentityID = config.ID
	c.PrivateKey = ed25519.NewKeyFromSeed(seed)
	c.PublicKey = c.PrivateKey.Public().(ed25519.PublicKey)

	return nil
}

// SaveConfig saves identity credentials to disk.
func (c *Client) SaveConfig() error {
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}

	config := Config{
		ID:        c.IdentityID,
		PublicKey: base64.StdEncoding.EncodeToString(c.PublicKey),
	}

	data, _ := json.MarshalIndent(config, "", "  ")
	if err := os.WriteFile(filepath.Join(c.ConfigDir, "identity.json"), data, 0600); err != nil {
		return err
	}

	keyData := base64.StdEncoding.EncodeToString(c.PrivateKey.Seed())
	return os.WriteFile(filepath.Join(c.ConfigDir, "private.key"), []byte(keyData), 0600)
}

// GenerateKeypair generates a new Ed25519 keypair.
func (c *Client) GenerateKeypair() error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	c.PublicKey = pub
	c.PrivateKey = priv
	return nil
}

// signRequest creates authentication headers for a request body.
// A fresh nonce is drawn on every call, so retries are signed anew.
func (c *Client) signRequest(body []byte) (http.Header, error) {
	nonce, err := crypto.NewNonce()
	if err != nil {
		return nil, err
	}
	ts := time.Now().UnixMilli()

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set(HeaderIdentity, c.IdentityID)
	headers.Set(HeaderNonce, nonce)
	headers.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	headers.Set(HeaderSignature, crypto.SignRequest(c.PrivateKey, body, nonce, ts))
	return headers, nil
}

// request describes one API call.
type request struct {
	method     string
	path       string
	body       any
	signed     bool
	idempotent bool
}

// do performs a request and decodes the response into out. Idempotent
// requests are retried with linear backoff while the server reports 503.
func (c *Client) do(ctx context.Context, req request, out any) error {
	var body []byte
	if req.body != nil {
		var err error
		if body, err = json.Marshal(req.body); err != nil {
			return err
		}
	}

	if !req.idempotent {
		return c.doOnce(ctx, req, body, out)
	}

	retries := max(c.MaxRetries, 0)
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.RetryBackoff), uint64(retries)),
		ctx,
	)
	return backoff.Retry(func() error {
		err := c.doOnce(ctx, req, body, out)
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func (c *Client) doOnce(ctx context.Context, req request, body []byte, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.BaseURL+req.path, bytes.NewReader(body))
	if err != nil {
		return err
	}

	if req.signed {
		headers, err := c.signRequest(body)
		if err != nil {
			return err
		}
		httpReq.Header = headers
	} else {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return &APIError{Status: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// RegisterRequest is the request body for identity registration.
type RegisterRequest struct {
	PublicKey string `json:"public_key"`
	Name      string `json:"name"`
}

// RegisterResponse is the response from identity registration.
type RegisterResponse struct {
	ID         string `json:"id"`
	ProfileURL string `json:"profile_url"`
}

// Register generates a keypair, registers it and saves the credentials.
func (c *Client) Register(ctx context.Context, name string) (*RegisterResponse, error) {
	if err := c.GenerateKeypair(); err != nil {
		return nil, err
	}

	var resp RegisterResponse
	err := c.do(ctx, request{
		method:     http.MethodPost,
		path:       "/register",
		body:       RegisterRequest{PublicKey: base64.StdEncoding.EncodeToString(c.PublicKey), Name: name},
		idempotent: true, // registering a known key returns the same identity
	}, &resp)
	if err != nil {
		return nil, err
	}

	c.IdentityID = resp.ID
	if err := c.SaveConfig(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Profile is an identity's public profile.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	PublicKey string    `json:"public_key"`
	JoinedAt  time.Time `json:"joined_at"`
}

// Who gets an identity's profile.
func (c *Client) Who(ctx context.Context, identityID string) (*Profile, error) {
	var resp Profile
	err := c.do(ctx, request{method: http.MethodGet, path: "/who/" + url.PathEscape(identityID), idempotent: true}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health. A degraded server answers 503, which is
// reported as an error after retries.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, request{method: http.MethodGet, path: "/health", idempotent: true}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
