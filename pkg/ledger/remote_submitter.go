package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloaklabs/attestx/pkg/utils"
	"go.uber.org/zap"
)

// RemoteSubmitter implements Submitter against a ledger node's HTTP
// surface. Duplicate rejections surface as ErrDuplicateFingerprint so
// callers can map them uniformly.
type RemoteSubmitter struct {
	logger   *zap.Logger
	endpoint string
	http     *http.Client
}

func NewRemoteSubmitter(logger *zap.Logger, endpoint string) *RemoteSubmitter {
	return &RemoteSubmitter{
		logger:   logger,
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

type attestRequest struct {
	Submitter      string `json:"submitter"`
	Fingerprint    string `json:"fingerprint"`
	ContentAddress string `json:"contentAddress"`
	Auxiliary      []byte `json:"auxiliary,omitempty"`
}

func (s *RemoteSubmitter) Attest(ctx context.Context, submitter, fingerprint, contentAddress string, auxiliary []byte) error {
	body, err := json.Marshal(attestRequest{
		Submitter:      submitter,
		Fingerprint:    fingerprint,
		ContentAddress: contentAddress,
		Auxiliary:      auxiliary,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/attest", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("submit attestation: %w", err)
	}
	defer func() { _ = utils.DrainAndClose(resp.Body) }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrDuplicateFingerprint, fingerprint)
	default:
		return fmt.Errorf("submit attestation: http %d", resp.StatusCode)
	}
}

// IsAttested asks the node whether the fingerprint is recorded. Network
// failures read as "not attested"; the authoritative duplicate check is the
// node's own, at Attest time.
func (s *RemoteSubmitter) IsAttested(fingerprint string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/attested/"+fingerprint, nil)
	if err != nil {
		return false
	}
	resp, err := s.http.Do(req)
	if err != nil {
		s.logger.Warn("Attested lookup failed", zap.Error(err))
		return false
	}
	defer func() { _ = utils.DrainAndClose(resp.Body) }()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	var out struct {
		Attested bool `json:"attested"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false
	}
	return out.Attested
}
