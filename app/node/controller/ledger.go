package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/cloaklabs/attestx/pkg/ledger"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type attestRequest struct {
	Submitter      string `json:"submitter"`
	Fingerprint    string `json:"fingerprint"`
	ContentAddress string `json:"contentAddress"`
	Auxiliary      []byte `json:"auxiliary,omitempty"`
}

// Attest serves POST /attest. The only rejection besides malformed input is
// the duplicate-fingerprint check; everything else is accepted verbatim.
func (c *Controller) Attest(w http.ResponseWriter, r *http.Request) {
	var req attestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Fingerprint == "" || req.ContentAddress == "" {
		respondError(w, http.StatusBadRequest, "fingerprint and contentAddress are required")
		return
	}

	err := c.App.Ledger.Attest(r.Context(), req.Submitter, req.Fingerprint, req.ContentAddress, req.Auxiliary)
	if errors.Is(err, ledger.ErrDuplicateFingerprint) {
		respondError(w, http.StatusConflict, "fingerprint already attested")
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{"fingerprint": req.Fingerprint})
}

// IsAttested serves GET /attested/{fingerprint}.
func (c *Controller) IsAttested(w http.ResponseWriter, r *http.Request) {
	fingerprint := mux.Vars(r)["fingerprint"]
	respondJSON(w, http.StatusOK, map[string]any{
		"fingerprint": fingerprint,
		"attested":    c.App.Ledger.IsAttested(fingerprint),
	})
}

// ContentAddresses serves GET /submitters/{submitter}/addresses in
// insertion order.
func (c *Controller) ContentAddresses(w http.ResponseWriter, r *http.Request) {
	submitter := mux.Vars(r)["submitter"]
	respondJSON(w, http.StatusOK, map[string]any{
		"submitter": submitter,
		"addresses": c.App.Ledger.ContentAddresses(submitter),
	})
}

// Head serves GET /head.
func (c *Controller) Head(w http.ResponseWriter, r *http.Request) {
	head, err := c.App.Ledger.Head(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"head": head})
}

// Events serves GET /events?from=&to=.
func (c *Controller) Events(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	from, err := strconv.ParseUint(qs.Get("from"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid from")
		return
	}
	to, err := strconv.ParseUint(qs.Get("to"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid to")
		return
	}

	events, err := c.App.Ledger.ReadRange(r.Context(), from, to)
	if err != nil {
		c.App.Logger.Error("Range read failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to read events")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}
