package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloaklabs/attestx/pkg/utils"
	"go.uber.org/zap"
)

// ErrUnreachable means the coprocessor could not serve the request. Callers
// must not substitute invented results unless mock mode is explicitly on.
var ErrUnreachable = errors.New("computation engine unreachable")

// ComputeRequest is the coprocessor wire format. Ciphertexts are base64 of
// the opaque encrypted blobs; the engine never sees plaintext.
type ComputeRequest struct {
	Ciphertexts  []string `json:"ciphertexts"`
	Op           string   `json:"op"`
	TargetType   string   `json:"targetType"`
	OutputFormat string   `json:"outputFormat"`
}

type ComputeResponse struct {
	ResultCiphertext string `json:"resultCiphertext"`
	Proof            string `json:"proof,omitempty"`
	EngineVersion    string `json:"engineVersion"`
	Meta             Meta   `json:"meta"`
}

type Meta struct {
	Op         string `json:"op"`
	ItemsCount int    `json:"itemsCount"`
}

type HealthStatus struct {
	OK            bool   `json:"ok"`
	EngineVersion string `json:"engineVersion"`
}

// Client talks to the external homomorphic computation engine. Requests are
// authenticated with a keyed hash over the canonical JSON body.
type Client struct {
	logger     *zap.Logger
	endpoint   string
	signingKey []byte
	http       *http.Client
}

// NewClient builds an engine client. Compute calls are single-attempt: the
// aggregate request is idempotent, but retry policy belongs to the caller.
//
// Environment variables (used by NewFromEnv):
//   - ENGINE_ENDPOINT: base URL (default "http://localhost:8545")
//   - ENGINE_SIGNING_KEY: shared HMAC key
//   - ENGINE_TIMEOUT: per-request timeout (default 30s)
func NewClient(logger *zap.Logger, endpoint string, signingKey []byte, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		logger:     logger,
		endpoint:   strings.TrimRight(endpoint, "/"),
		signingKey: signingKey,
		http:       &http.Client{Timeout: timeout},
	}
}

func NewFromEnv(logger *zap.Logger) *Client {
	return NewClient(logger,
		utils.Env("ENGINE_ENDPOINT", "http://localhost:8545"),
		[]byte(utils.Env("ENGINE_SIGNING_KEY", "")),
		utils.EnvDuration("ENGINE_TIMEOUT", 30*time.Second))
}

// Compute submits a signed aggregation request and returns the engine's
// result verbatim.
func (c *Client) Compute(ctx context.Context, creq ComputeRequest) (*ComputeResponse, error) {
	body, err := json.Marshal(creq)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/compute", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Engine-Signature", Sign(c.signingKey, body))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() { _ = utils.DrainAndClose(resp.Body) }()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: engine returned %d", ErrUnreachable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("engine rejected request: http %d", resp.StatusCode)
	}

	var out ComputeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode engine response: %w", err)
	}

	c.logger.Debug("Engine computation complete",
		zap.String("op", creq.Op),
		zap.Int("items", len(creq.Ciphertexts)),
		zap.String("engineVersion", out.EngineVersion))
	return &out, nil
}

// Health probes the engine's liveness endpoint.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &HealthStatus{OK: false}, nil
	}
	defer func() { _ = utils.DrainAndClose(resp.Body) }()

	if resp.StatusCode != http.StatusOK {
		return &HealthStatus{OK: false}, nil
	}
	var out HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return &HealthStatus{OK: false}, nil
	}
	out.OK = true
	return &out, nil
}
