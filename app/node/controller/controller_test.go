package controller_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloaklabs/attestx/app/node/controller"
	"github.com/cloaklabs/attestx/app/node/types"
	"github.com/cloaklabs/attestx/pkg/ledger"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newRouter(t *testing.T) *mux.Router {
	t.Helper()
	logger := zaptest.NewLogger(t)
	app := &types.App{
		Ledger: ledger.New(logger),
		Logger: logger,
	}
	router, err := controller.NewController(app).NewRouter()
	require.NoError(t, err)
	return router
}

func doJSON(router *mux.Router, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func attestPayload(addr string) map[string]any {
	return map[string]any{
		"submitter":      "alice",
		"fingerprint":    ledger.Fingerprint(addr),
		"contentAddress": addr,
	}
}

func TestAttest_ThenDuplicateConflicts(t *testing.T) {
	router := newRouter(t)

	w := doJSON(router, http.MethodPost, "/attest", attestPayload("cid-1"))
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(router, http.MethodPost, "/attest", attestPayload("cid-1"))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
}

func TestAttest_RejectsMissingFields(t *testing.T) {
	router := newRouter(t)
	w := doJSON(router, http.MethodPost, "/attest", map[string]any{"submitter": "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIsAttested(t *testing.T) {
	router := newRouter(t)
	fp := ledger.Fingerprint("cid-1")

	w := doJSON(router, http.MethodGet, "/attested/"+fp, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Attested bool `json:"attested"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Attested)

	require.Equal(t, http.StatusCreated, doJSON(router, http.MethodPost, "/attest", attestPayload("cid-1")).Code)

	w = doJSON(router, http.MethodGet, "/attested/"+fp, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Attested)
}

func TestContentAddresses_InsertionOrder(t *testing.T) {
	router := newRouter(t)
	for _, addr := range []string{"cid-1", "cid-2", "cid-3"} {
		require.Equal(t, http.StatusCreated, doJSON(router, http.MethodPost, "/attest", attestPayload(addr)).Code)
	}

	w := doJSON(router, http.MethodGet, "/submitters/alice/addresses", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Addresses []string `json:"addresses"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"cid-1", "cid-2", "cid-3"}, resp.Addresses)
}

func TestHeadAndEvents(t *testing.T) {
	router := newRouter(t)
	for _, addr := range []string{"cid-1", "cid-2"} {
		require.Equal(t, http.StatusCreated, doJSON(router, http.MethodPost, "/attest", attestPayload(addr)).Code)
	}

	w := doJSON(router, http.MethodGet, "/head", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var head struct {
		Head uint64 `json:"head"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &head))
	assert.Equal(t, uint64(2), head.Head)

	w = doJSON(router, http.MethodGet, "/events?from=1&to=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var events struct {
		Events []ledger.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	require.Len(t, events.Events, 2)
	assert.Equal(t, uint64(1), events.Events[0].Seq)
	assert.Equal(t, "cid-1", events.Events[0].ContentAddress)
}

func TestEvents_RejectsMalformedRange(t *testing.T) {
	router := newRouter(t)
	w := doJSON(router, http.MethodGet, "/events?from=abc&to=2", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscribe_DeliversLiveEvents(t *testing.T) {
	router := newRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):] + "/events/subscribe"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.Equal(t, http.StatusCreated, doJSON(router, http.MethodPost, "/attest", attestPayload("cid-live")).Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev ledger.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "cid-live", ev.ContentAddress)
	assert.Equal(t, uint64(1), ev.Seq)
}
