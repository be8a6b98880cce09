// Package sdom is a client for the sdominanta mailbox gateway and topic
// relay.
package sdom

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
	"time"
)

// DefaultBaseURL is the gateway used when none is given.
const DefaultBaseURL = "http://localhost:8080"

// Request headers understood by the gateway.
const (
	HeaderAPIKey         = "X-API-Key"
	HeaderAgentID        = "X-Agent-Id"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// ErrNotRegistered is returned by calls that need a local identity.
var ErrNotRegistered = errors.New("sdom: no local agent identity, register first")

// Client is a gateway API client.
type Client struct {
	BaseURL    string
	ConfigDir  string
	APIKey     string
	AgentID    string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
	HTTPClient *http.Client
}

// Config holds agent configuration.
type Config struct {
	ID        string `json:"id"`
	PublicKey string `json:"public_key"`
}

// APIError is a non-2xx gateway answer.
type APIError struct {
	StatusCode int
	Code       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sdom: gateway error %d: %s", e.StatusCode, e.Code)
}

// NewClient creates a client and loads any saved identity from ConfigDir
// ($SDOM_CONFIG, or ~/.sdom).
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	configDir := os.Getenv("SDOM_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".sdom")
	}

	c := &Client{
		BaseURL:    baseURL,
		ConfigDir:  configDir,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}

	_ = c.LoadConfig()
	return c
}

// LoadConfig loads agent credentials from disk.
func (c *Client) LoadConfig() error {
	data, err := os.ReadFile(filepath.Join(c.ConfigDir, "agent.json"))
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
		return fmt.Errorf("private key seed is %d bytes, want %d", len(seed), ed25519.SeedSize)
	}

	c.AgentID = config.ID
	c.PrivateKey = ed25519.NewKeyFromSeed(seed)
	c.PublicKey = c.PrivateKey.Public().(ed25519.PublicKey)
	return nil
}

// SaveConfig saves agent credentials to disk.
func (c *Client) SaveConfig() error {
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}

	data, _ := json.MarshalIndent(Config{ID: c.AgentID, PublicKey: c.PublicKeyB64()}, "", "  ")
	if err := os.WriteFile(filepath.Join(c.ConfigDir, "agent.json"), data, 0600); err != nil {
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

// PublicKeyB64 returns the public key in the form peers seal envelopes to.
func (c *Client) PublicKeyB64() string {
	if c.PublicKey == nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(c.PublicKey)
}

// do performs a JSON request and decodes the answer into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any, header http.Header) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set(HeaderAPIKey, c.APIKey)
	}
	if c.AgentID != "" {
		req.Header.Set(HeaderAgentID, c.AgentID)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.HTTPClient.Do(req)
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
		_ = json.Unmarshal(respBody, &errResp)
		if errResp.Error == "" {
			errResp.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Code: errResp.Error}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// RegisterResponse is the response from agent registration.
type RegisterResponse struct {
	OK       bool   `json:"ok"`
	AgentID  string `json:"agent_id"`
	Nickname string `json:"nickname"`
}

// Register creates a keypair if there is none, registers its public key
// and saves the assigned agent id.
func (c *Client) Register(ctx context.Context, nickname, team string) (*RegisterResponse, error) {
	if c.PrivateKey == nil {
		if err := c.GenerateKeypair(); err != nil {
			return nil, err
		}
	}

	// The id is derived from the public key; a stale saved id must not
	// take precedence.
	c.AgentID = ""
	req := map[string]string{
		"nickname":   nickname,
		"team":       team,
		"public_key": c.PublicKeyB64(),
	}

	var resp RegisterResponse
	if err := c.do(ctx, http.MethodPost, "/register", req, &resp, nil); err != nil {
		return nil, err
	}

	c.AgentID = resp.AgentID
	if err := c.SaveConfig(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendOptions tunes a send.
type SendOptions struct {
	// TTL in seconds; zero means the gateway default.
	TTL int
	// IdempotencyKey makes retries of the same send safe.
	IdempotencyKey string
}

// SendResponse is the gateway's answer to a send.
type SendResponse struct {
	OK        bool   `json:"ok"`
	Key       string `json:"key,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// Send deposits envelope, any JSON value, in the mailbox of to.
func (c *Client) Send(ctx context.Context, to string, envelope any, opts SendOptions) (*SendResponse, error) {
	req := struct {
		To       string `json:"to"`
		Envelope any    `json:"envelope"`
		TTL      int    `json:"ttl,omitempty"`
	}{to, envelope, opts.TTL}

	var header http.Header
	if opts.IdempotencyKey != "" {
		header = http.Header{HeaderIdempotencyKey: {opts.IdempotencyKey}}
	}

	var resp SendResponse
	if err := c.do(ctx, http.MethodPost, "/send", req, &resp, header); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendSealed encrypts plaintext for the recipient's public key and sends
// the sealed envelope.
func (c *Client) SendSealed(ctx context.Context, to, recipientPubB64 string, plaintext []byte, opts SendOptions) (*SendResponse, error) {
	sealed, err := Seal(plaintext, recipientPubB64)
	if err != nil {
		return nil, err
	}
	return c.Send(ctx, to, sealed, opts)
}

// Message is one envelope taken from a mailbox.
type Message struct {
	Key      string          `json:"key"`
	Envelope json.RawMessage `json:"envelope"`
	From     string          `json:"from,omitempty"`
	TS       int64           `json:"ts,omitempty"`
}

// Open decrypts a sealed envelope with the client's private key.
func (c *Client) Open(m *Message) ([]byte, error) {
	if c.PrivateKey == nil {
		return nil, ErrNotRegistered
	}
	var env SealedEnvelope
	if err := json.Unmarshal(m.Envelope, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsealable, err)
	}
	return Open(&env, c.PrivateKey)
}

func (c *Client) self(agentID string) (string, error) {
	if agentID != "" {
		return agentID, nil
	}
	if c.AgentID == "" {
		return "", ErrNotRegistered
	}
	return c.AgentID, nil
}

// Drain removes and returns every waiting envelope of agentID, or of the
// client's own agent when agentID is empty.
func (c *Client) Drain(ctx context.Context, agentID string) ([]Message, error) {
	id, err := c.self(agentID)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Messages []Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodPost, "/messages", map[string]string{"agent_id": id}, &resp, nil); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Has reports how many envelopes wait for agentID without consuming them.
func (c *Client) Has(ctx context.Context, agentID string) (int, error) {
	id, err := c.self(agentID)
	if err != nil {
		return 0, err
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, http.MethodPost, "/messages/has", map[string]string{"agent_id": id}, &resp, nil); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// Take pops the oldest envelope of agentID. It returns nil, nil when the
// mailbox is empty.
func (c *Client) Take(ctx context.Context, agentID string) (*Message, error) {
	id, err := c.self(agentID)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Empty bool `json:"empty"`
		Message
	}
	if err := c.do(ctx, http.MethodPost, "/rv/take", map[string]string{"agent_id": id}, &resp, nil); err != nil {
		return nil, err
	}
	if resp.Empty {
		return nil, nil
	}
	return &resp.Message, nil
}

// AgentProfile represents an agent's profile.
type AgentProfile struct {
	ID        string    `json:"id"`
	Nickname  string    `json:"nickname"`
	Team      string    `json:"team,omitempty"`
	PublicKey string    `json:"public_key,omitempty"`
	JoinedAt  time.Time `json:"joined_at"`
}

// GetAgent gets an agent's profile.
func (c *Client) GetAgent(ctx context.Context, agentID string) (*AgentProfile, error) {
	var resp struct {
		Agent AgentProfile `json:"agent"`
	}
	if err := c.do(ctx, http.MethodGet, "/agents/"+url.PathEscape(agentID), nil, &resp, nil); err != nil {
		return nil, err
	}
	return &resp.Agent, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	OK        bool                         `json:"ok"`
	Status    string                       `json:"status"`
	Version   string                       `json:"version"`
	Checks    map[string]map[string]string `json:"checks"`
	Timestamp string                       `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp, nil); err != nil {
		return nil, err
	}
	return &resp, nil
}
