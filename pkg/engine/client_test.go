package engine_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloaklabs/attestx/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var signingKey = []byte("test-signing-key")

func TestCompute_SignsCanonicalBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/compute", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		sig := r.Header.Get("X-Engine-Signature")
		assert.True(t, engine.VerifySignature(signingKey, body, sig))

		var req engine.ComputeRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "sum", req.Op)

		_ = json.NewEncoder(w).Encode(engine.ComputeResponse{
			ResultCiphertext: "b64-result",
			EngineVersion:    "1.2.0",
			Meta:             engine.Meta{Op: req.Op, ItemsCount: len(req.Ciphertexts)},
		})
	}))
	defer srv.Close()

	client := engine.NewClient(zaptest.NewLogger(t), srv.URL, signingKey, time.Second)
	resp, err := client.Compute(context.Background(), engine.ComputeRequest{
		Ciphertexts:  []string{"YQ==", "Yg=="},
		Op:           "sum",
		TargetType:   "euint64",
		OutputFormat: "base64",
	})
	require.NoError(t, err)
	assert.Equal(t, "b64-result", resp.ResultCiphertext)
	assert.Equal(t, "1.2.0", resp.EngineVersion)
	assert.Equal(t, 2, resp.Meta.ItemsCount)
}

func TestCompute_ServerErrorIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := engine.NewClient(zaptest.NewLogger(t), srv.URL, signingKey, time.Second)
	_, err := client.Compute(context.Background(), engine.ComputeRequest{Op: "sum"})
	require.ErrorIs(t, err, engine.ErrUnreachable)
}

func TestCompute_ConnectionRefusedIsUnreachable(t *testing.T) {
	client := engine.NewClient(zaptest.NewLogger(t), "http://127.0.0.1:1", signingKey, 200*time.Millisecond)
	_, err := client.Compute(context.Background(), engine.ComputeRequest{Op: "sum"})
	require.ErrorIs(t, err, engine.ErrUnreachable)
}

func TestCompute_RejectionIsNotUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := engine.NewClient(zaptest.NewLogger(t), srv.URL, signingKey, time.Second)
	_, err := client.Compute(context.Background(), engine.ComputeRequest{Op: "sum"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, engine.ErrUnreachable)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"engineVersion": "1.2.0"})
	}))
	defer srv.Close()

	client := engine.NewClient(zaptest.NewLogger(t), srv.URL, signingKey, time.Second)
	status, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, status.OK)
	assert.Equal(t, "1.2.0", status.EngineVersion)
}

func TestHealth_DownEngine(t *testing.T) {
	client := engine.NewClient(zaptest.NewLogger(t), "http://127.0.0.1:1", signingKey, 200*time.Millisecond)
	status, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.False(t, status.OK)
}

func TestVerifySignature_RejectsTamperedBody(t *testing.T) {
	body := []byte(`{"op":"sum"}`)
	sig := engine.Sign(signingKey, body)

	assert.True(t, engine.VerifySignature(signingKey, body, sig))
	assert.False(t, engine.VerifySignature(signingKey, []byte(`{"op":"max"}`), sig))
	assert.False(t, engine.VerifySignature([]byte("other-key"), body, sig))
	assert.False(t, engine.VerifySignature(signingKey, body, "not-hex"))
}
