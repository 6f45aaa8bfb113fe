package aggregator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alitto/pond/v2"
	"github.com/cloaklabs/attestx/pkg/engine"
	"github.com/cloaklabs/attestx/pkg/utils"
	"go.uber.org/zap"
)

var (
	// ErrValidation covers malformed aggregation requests: empty address
	// sets and unknown operations.
	ErrValidation = errors.New("invalid aggregation request")
	// ErrContentUnavailable means at least one referenced blob could not
	// be fetched. The whole batch fails; no partial aggregate is returned.
	ErrContentUnavailable = errors.New("content unavailable")
)

// Operations the engine supports.
var validOps = map[string]bool{
	"sum": true,
	"max": true,
	"min": true,
	"avg": true,
}

// BlobFetcher is the content-store surface the aggregator needs.
type BlobFetcher interface {
	Retrieve(ctx context.Context, contentAddress string) ([]byte, error)
}

// Engine is the coprocessor surface the aggregator needs.
type Engine interface {
	Compute(ctx context.Context, req engine.ComputeRequest) (*engine.ComputeResponse, error)
	Health(ctx context.Context) (*engine.HealthStatus, error)
}

// Result is the opaque aggregate returned to callers.
type Result struct {
	ResultCiphertext string   `json:"resultCiphertext"`
	Metadata         Metadata `json:"metadata"`
}

type Metadata struct {
	Operation     string `json:"operation"`
	ItemCount     int    `json:"itemCount"`
	EngineVersion string `json:"engineVersion"`
	Proof         string `json:"proof,omitempty"`
	Mock          bool   `json:"mock,omitempty"`
}

// Service computes aggregates over referenced ciphertexts by delegating to
// the external engine. It never decrypts anything.
type Service struct {
	logger  *zap.Logger
	fetcher BlobFetcher
	engine  Engine
	pool    pond.ResultPool[[]byte]

	// allowMock substitutes a local non-cryptographic approximation when
	// the engine is unreachable. Demo-only; defaults to false, and must
	// stay false in any production posture.
	allowMock bool
}

func New(logger *zap.Logger, fetcher BlobFetcher, eng Engine) *Service {
	concurrency := utils.EnvInt("AGGREGATE_FETCH_CONCURRENCY", 8)
	return &Service{
		logger:    logger,
		fetcher:   fetcher,
		engine:    eng,
		pool:      pond.NewResultPool[[]byte](concurrency),
		allowMock: utils.EnvBool("ALLOW_MOCK_ENGINE", false),
	}
}

// Aggregate fetches every referenced ciphertext and asks the engine for the
// aggregate. Any fetch failure fails the batch with ErrContentUnavailable.
func (s *Service) Aggregate(ctx context.Context, contentAddresses []string, op string) (*Result, error) {
	if len(contentAddresses) == 0 {
		return nil, fmt.Errorf("%w: empty content address set", ErrValidation)
	}
	if !validOps[op] {
		return nil, fmt.Errorf("%w: unknown operation %q", ErrValidation, op)
	}

	group := s.pool.NewGroupContext(ctx)
	for _, addr := range contentAddresses {
		group.SubmitErr(func() ([]byte, error) {
			return s.fetcher.Retrieve(ctx, addr)
		})
	}
	blobs, err := group.Wait()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}

	ciphertexts := make([]string, len(blobs))
	for i, blob := range blobs {
		ciphertexts[i] = base64.StdEncoding.EncodeToString(blob)
	}

	resp, err := s.engine.Compute(ctx, engine.ComputeRequest{
		Ciphertexts:  ciphertexts,
		Op:           op,
		TargetType:   "euint64",
		OutputFormat: "base64",
	})
	if err != nil {
		if s.allowMock && errors.Is(err, engine.ErrUnreachable) {
			s.logger.Warn("Engine unreachable, serving mock aggregate",
				zap.String("op", op),
				zap.Int("items", len(ciphertexts)))
			return s.mockResult(op, len(ciphertexts)), nil
		}
		return nil, err
	}

	return &Result{
		ResultCiphertext: resp.ResultCiphertext,
		Metadata: Metadata{
			Operation:     op,
			ItemCount:     resp.Meta.ItemsCount,
			EngineVersion: resp.EngineVersion,
			Proof:         resp.Proof,
		},
	}, nil
}

// HealthCheck reports whether the engine is reachable.
func (s *Service) HealthCheck(ctx context.Context) (*engine.HealthStatus, error) {
	return s.engine.Health(ctx)
}

// mockResult fabricates a clearly-labelled stand-in result. It carries no
// real computation and exists only for demos without an engine.
func (s *Service) mockResult(op string, items int) *Result {
	payload, _ := json.Marshal(map[string]any{"mock": true, "op": op, "items": items})
	return &Result{
		ResultCiphertext: base64.StdEncoding.EncodeToString(payload),
		Metadata: Metadata{
			Operation:     op,
			ItemCount:     items,
			EngineVersion: "mock-local",
			Mock:          true,
		},
	}
}
