package contentstore_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloaklabs/attestx/pkg/contentstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const knownCID = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

func TestRetrieve_ReturnsBlob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/"+knownCID, r.URL.Path)
		_, _ = w.Write([]byte("opaque-ciphertext"))
	}))
	defer srv.Close()

	client := contentstore.NewClient(zaptest.NewLogger(t), srv.URL, time.Second)
	blob, err := client.Retrieve(context.Background(), knownCID)
	require.NoError(t, err)
	assert.Equal(t, []byte("opaque-ciphertext"), blob)
}

func TestRetrieve_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := contentstore.NewClient(zaptest.NewLogger(t), srv.URL, time.Second)
	_, err := client.Retrieve(context.Background(), knownCID)
	require.ErrorIs(t, err, contentstore.ErrNotFound)
}

func TestRetrieve_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := contentstore.NewClient(zaptest.NewLogger(t), srv.URL, time.Second)
	_, err := client.Retrieve(context.Background(), knownCID)
	require.ErrorIs(t, err, contentstore.ErrRateLimited)
}

func TestRetrieve_RejectsInvalidCIDWithoutFetching(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := contentstore.NewClient(zaptest.NewLogger(t), srv.URL, time.Second)
	_, err := client.Retrieve(context.Background(), "../../etc/passwd")
	require.ErrorIs(t, err, contentstore.ErrInvalidCID)
	assert.False(t, called)
}
