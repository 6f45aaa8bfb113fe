package controller

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/cloaklabs/attestx/pkg/contentstore"
	"github.com/cloaklabs/attestx/pkg/db"
	"github.com/cloaklabs/attestx/pkg/db/models"
	"github.com/cloaklabs/attestx/pkg/ledger"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	defaultLimit = 50
	maxLimit     = 100
)

// ListRecords serves GET /records?limit=&category=&submitter=.
func (c *Controller) ListRecords(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()

	limit := defaultLimit
	if v := qs.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = int(math.Min(float64(n), maxLimit))
	}

	records, err := c.App.Store.List(r.Context(), db.RecordFilter{
		Category:  qs.Get("category"),
		Submitter: qs.Get("submitter"),
		Limit:     limit,
	})
	if err != nil {
		c.App.Logger.Error("List records failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list records")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"count":   len(records),
		"records": records,
	})
}

// GetRecord serves GET /records/{contentAddress}.
func (c *Controller) GetRecord(w http.ResponseWriter, r *http.Request) {
	contentAddress := mux.Vars(r)["contentAddress"]

	rec, err := c.App.Store.Get(r.Context(), contentAddress)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		c.App.Logger.Error("Get record failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load record")
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

type submitRequest struct {
	ContentAddress string `json:"contentAddress"`
	Category       string `json:"category,omitempty"`
	Note           string `json:"note,omitempty"`
	Submitter      string `json:"submitter"`
	Auxiliary      []byte `json:"auxiliary,omitempty"`
}

// SubmitRecord serves POST /records: it validates the content address,
// writes an optimistic pending record, and submits the attestation to the
// ledger. The indexer flips the record to confirmed once the event lands.
func (c *Controller) SubmitRecord(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !contentstore.ValidCID(req.ContentAddress) {
		respondError(w, http.StatusBadRequest, "invalid content address")
		return
	}
	if req.Submitter == "" {
		respondError(w, http.StatusBadRequest, "submitter is required")
		return
	}

	fingerprint := ledger.Fingerprint(req.ContentAddress)

	rec := &models.Record{
		ContentAddress: req.ContentAddress,
		Fingerprint:    fingerprint,
		Submitter:      req.Submitter,
		Category:       req.Category,
		Note:           req.Note,
		Status:         models.StatusPending,
	}
	if err := c.App.Store.InsertPending(r.Context(), rec); err != nil {
		c.App.Logger.Error("Optimistic insert failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to store record")
		return
	}

	err := c.App.Ledger.Attest(r.Context(), req.Submitter, fingerprint, req.ContentAddress, req.Auxiliary)
	if errors.Is(err, ledger.ErrDuplicateFingerprint) {
		respondError(w, http.StatusConflict, "content address already attested")
		return
	}
	if err != nil {
		c.App.Logger.Error("Attest failed", zap.Error(err))
		respondError(w, http.StatusBadGateway, "ledger submission failed")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"contentAddress": req.ContentAddress,
		"fingerprint":    fingerprint,
		"status":         models.StatusPending,
	})
}
