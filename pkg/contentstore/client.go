package contentstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloaklabs/attestx/pkg/utils"
	"go.uber.org/zap"
)

var (
	// ErrNotFound means the gateway has no blob for the content address.
	ErrNotFound = errors.New("content not found")
	// ErrRateLimited means the gateway refused the fetch; retry later.
	ErrRateLimited = errors.New("content store rate limited")
	// ErrInvalidCID means the address fails family validation.
	ErrInvalidCID = errors.New("invalid content address")
)

// Client fetches opaque encrypted blobs from a content-addressed gateway.
// Blobs are never decrypted here or anywhere else in the pipeline.
type Client struct {
	logger  *zap.Logger
	gateway string
	http    *http.Client
	maxSize int64
}

// NewClient builds a gateway client. Every fetch carries the given timeout
// so a stalled gateway cannot wedge an aggregation batch.
//
// Environment variables (used by NewFromEnv):
//   - CONTENT_GATEWAY: base URL (default "https://ipfs.io/ipfs")
//   - CONTENT_FETCH_TIMEOUT: per-request timeout (default 20s)
func NewClient(logger *zap.Logger, gateway string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		logger:  logger,
		gateway: strings.TrimRight(gateway, "/"),
		http:    &http.Client{Timeout: timeout},
		maxSize: 16 << 20, // refuse blobs over 16 MiB
	}
}

func NewFromEnv(logger *zap.Logger) *Client {
	return NewClient(logger,
		utils.Env("CONTENT_GATEWAY", "https://ipfs.io/ipfs"),
		utils.EnvDuration("CONTENT_FETCH_TIMEOUT", 20*time.Second))
}

// Retrieve fetches the blob for a content address.
func (c *Client) Retrieve(ctx context.Context, contentAddress string) ([]byte, error) {
	if !ValidCID(contentAddress) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCID, contentAddress)
	}

	url := c.gateway + "/" + contentAddress
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", contentAddress, err)
	}
	defer func() { _ = utils.DrainAndClose(resp.Body) }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, contentAddress)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, contentAddress)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch %s: http %d", contentAddress, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", contentAddress, err)
	}
	if int64(len(data)) > c.maxSize {
		return nil, fmt.Errorf("fetch %s: blob exceeds %d bytes", contentAddress, c.maxSize)
	}

	c.logger.Debug("Blob fetched",
		zap.String("contentAddress", contentAddress),
		zap.Int("bytes", len(data)))
	return data, nil
}
