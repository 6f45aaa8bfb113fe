package aggregator_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cloaklabs/attestx/pkg/aggregator"
	"github.com/cloaklabs/attestx/pkg/contentstore"
	"github.com/cloaklabs/attestx/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeFetcher struct {
	blobs map[string][]byte
}

func (f *fakeFetcher) Retrieve(_ context.Context, addr string) ([]byte, error) {
	blob, ok := f.blobs[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contentstore.ErrNotFound, addr)
	}
	return blob, nil
}

type fakeEngine struct {
	unreachable bool
	lastReq     engine.ComputeRequest
}

func (e *fakeEngine) Compute(_ context.Context, req engine.ComputeRequest) (*engine.ComputeResponse, error) {
	e.lastReq = req
	if e.unreachable {
		return nil, fmt.Errorf("%w: connection refused", engine.ErrUnreachable)
	}
	return &engine.ComputeResponse{
		ResultCiphertext: "engine-result",
		EngineVersion:    "1.2.0",
		Meta:             engine.Meta{Op: req.Op, ItemsCount: len(req.Ciphertexts)},
	}, nil
}

func (e *fakeEngine) Health(context.Context) (*engine.HealthStatus, error) {
	return &engine.HealthStatus{OK: !e.unreachable, EngineVersion: "1.2.0"}, nil
}

func newService(t *testing.T, fetcher *fakeFetcher, eng *fakeEngine) *aggregator.Service {
	t.Helper()
	return aggregator.New(zaptest.NewLogger(t), fetcher, eng)
}

func TestAggregate_EmptySetIsValidationError(t *testing.T) {
	svc := newService(t, &fakeFetcher{}, &fakeEngine{})
	for _, op := range []string{"sum", "max", "min", "avg"} {
		_, err := svc.Aggregate(context.Background(), nil, op)
		require.ErrorIs(t, err, aggregator.ErrValidation, op)
	}
}

func TestAggregate_UnknownOpIsValidationError(t *testing.T) {
	svc := newService(t, &fakeFetcher{blobs: map[string][]byte{"cid-1": []byte("x")}}, &fakeEngine{})
	_, err := svc.Aggregate(context.Background(), []string{"cid-1"}, "median")
	require.ErrorIs(t, err, aggregator.ErrValidation)
}

func TestAggregate_DelegatesToEngine(t *testing.T) {
	eng := &fakeEngine{}
	fetcher := &fakeFetcher{blobs: map[string][]byte{
		"cid-1": []byte("aaa"),
		"cid-2": []byte("bbb"),
	}}
	svc := newService(t, fetcher, eng)

	result, err := svc.Aggregate(context.Background(), []string{"cid-1", "cid-2"}, "sum")
	require.NoError(t, err)
	assert.Equal(t, "engine-result", result.ResultCiphertext)
	assert.Equal(t, "sum", result.Metadata.Operation)
	assert.Equal(t, 2, result.Metadata.ItemCount)
	assert.Equal(t, "1.2.0", result.Metadata.EngineVersion)
	assert.False(t, result.Metadata.Mock)

	// Ciphertexts went out base64-encoded.
	assert.Len(t, eng.lastReq.Ciphertexts, 2)
	assert.Equal(t, "sum", eng.lastReq.Op)
}

func TestAggregate_AnyFetchFailureFailsWholeBatch(t *testing.T) {
	eng := &fakeEngine{}
	fetcher := &fakeFetcher{blobs: map[string][]byte{"cid-1": []byte("aaa")}}
	svc := newService(t, fetcher, eng)

	_, err := svc.Aggregate(context.Background(), []string{"cid-1", "cid-missing"}, "sum")
	require.ErrorIs(t, err, aggregator.ErrContentUnavailable)
	// No partial result reached the engine.
	assert.Empty(t, eng.lastReq.Ciphertexts)
}

func TestAggregate_EngineFailurePropagatesByDefault(t *testing.T) {
	fetcher := &fakeFetcher{blobs: map[string][]byte{"cid-1": []byte("aaa")}}
	svc := newService(t, fetcher, &fakeEngine{unreachable: true})

	_, err := svc.Aggregate(context.Background(), []string{"cid-1"}, "sum")
	require.ErrorIs(t, err, engine.ErrUnreachable)
}

func TestAggregate_MockFallbackOnlyWhenEnabled(t *testing.T) {
	t.Setenv("ALLOW_MOCK_ENGINE", "true")

	fetcher := &fakeFetcher{blobs: map[string][]byte{"cid-1": []byte("aaa")}}
	svc := newService(t, fetcher, &fakeEngine{unreachable: true})

	result, err := svc.Aggregate(context.Background(), []string{"cid-1"}, "avg")
	require.NoError(t, err)
	assert.True(t, result.Metadata.Mock)
	assert.Equal(t, "mock-local", result.Metadata.EngineVersion)
	assert.NotEmpty(t, result.ResultCiphertext)
}

func TestAggregate_MockStillFailsValidation(t *testing.T) {
	t.Setenv("ALLOW_MOCK_ENGINE", "true")

	svc := newService(t, &fakeFetcher{}, &fakeEngine{unreachable: true})
	_, err := svc.Aggregate(context.Background(), []string{}, "sum")
	require.ErrorIs(t, err, aggregator.ErrValidation)
}

func TestHealthCheck(t *testing.T) {
	svc := newService(t, &fakeFetcher{}, &fakeEngine{})
	status, err := svc.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.OK)
}

func TestAggregate_ContentUnavailableWrapsCause(t *testing.T) {
	svc := newService(t, &fakeFetcher{}, &fakeEngine{})
	_, err := svc.Aggregate(context.Background(), []string{"cid-x"}, "sum")
	require.Error(t, err)
	assert.True(t, errors.Is(err, aggregator.ErrContentUnavailable))
}
