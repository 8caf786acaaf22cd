// Package client is the SyncForge Go SDK: submit attested writes and read
// audit chain state over the engine's HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Sentinel errors mapped from the engine's stable error codes.
var (
	// ErrInvalidIntent means the commit intent is missing, spent, or does
	// not authorize the registry.
	ErrInvalidIntent = errors.New("invalid commit intent")

	// ErrReplay means the (actor, nonce) pair was already used. The nonce
	// is consumed; retry with a fresh one.
	ErrReplay = errors.New("nonce replay")

	// ErrAttestationDeny means the registry's current attestation blocks
	// writes.
	ErrAttestationDeny = errors.New("attestation denies writes")

	// ErrSequencerMissing means the registry has no provisioned sequencer
	// row.
	ErrSequencerMissing = errors.New("registry sequencer missing")
)

// WriteRequest is the payload for Write.
type WriteRequest struct {
	IntentID string `json:"intent_id"`
	Registry string `json:"registry"`
	ActorID  string `json:"actor_id"`
	Nonce    string `json:"nonce"`
	Payload  any    `json:"payload"`
}

// WriteResult holds the sequence number assigned to an admitted write.
type WriteResult struct {
	Seq int64 `json:"seq"`
}

// Overview is a registry's chain summary.
type Overview struct {
	Registry string `json:"registry"`
	Entries  int64  `json:"entries"`
	Head     string `json:"head"`
}

// Entry is one audit chain entry as served by the engine, hashes
// hex-encoded.
type Entry struct {
	Registry string          `json:"registry"`
	AuditSeq int64           `json:"audit_seq"`
	Action   string          `json:"action"`
	Payload  json.RawMessage `json:"payload"`
	HashPrev string          `json:"hash_prev"`
	HashSelf string          `json:"hash_self"`
}

// Client is the SyncForge SDK entry point.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the request timeout on the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.httpClient.Timeout = d
		return nil
	}
}

// New creates a Client for the engine at baseURL.
//
//	c, err := client.New("http://localhost:8080")
func New(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(baseURL string, opts ...Option) *Client {
	c, err := New(baseURL, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Write submits one write through the admission pipeline and returns the
// assigned sequence number. Admission failures map to the package's
// sentinel errors.
func (c *Client) Write(ctx context.Context, wr WriteRequest) (*WriteResult, error) {
	payload, err := json.Marshal(wr)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/write", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, admissionError(status, body)
	}

	var result WriteResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

// Overview fetches a registry's chain length and current head.
func (c *Client) Overview(ctx context.Context, registry string) (*Overview, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/audit/"+registry, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("server error %d: %s", status, string(body))
	}

	var out Overview
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// Entries fetches a page of a registry's audit chain.
func (c *Client) Entries(ctx context.Context, registry string, limit, offset int) ([]Entry, error) {
	url := c.baseURL + "/api/v1/audit/" + registry + "/entries" +
		"?limit=" + strconv.Itoa(limit) + "&offset=" + strconv.Itoa(offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("server error %d: %s", status, string(body))
	}

	var wrapper struct {
		Entries []Entry `json:"entries"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return wrapper.Entries, nil
}

// do executes an HTTP request and returns (statusCode, body, error). The
// caller interprets non-2xx status codes.
func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// admissionError converts an admission failure response into a sentinel
// error, falling back to a generic one for unknown codes.
func admissionError(status int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)

	switch payload.Error {
	case "INVALID_COMMIT_INTENT":
		return ErrInvalidIntent
	case "REPLAY":
		return ErrReplay
	case "ATTESTATION_DENY":
		return ErrAttestationDeny
	case "SEQUENCER_MISSING":
		return ErrSequencerMissing
	}
	return fmt.Errorf("write rejected with HTTP %d: %s", status, string(body))
}
