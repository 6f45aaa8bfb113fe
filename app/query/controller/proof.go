package controller

import (
	"errors"
	"net/http"

	"github.com/cloaklabs/attestx/pkg/db"
	"github.com/cloaklabs/attestx/pkg/db/models"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// GetProof serves GET /proof/{contentAddress}. The response is attestation
// metadata only: no note, no payload, nothing decrypted.
func (c *Controller) GetProof(w http.ResponseWriter, r *http.Request) {
	contentAddress := mux.Vars(r)["contentAddress"]

	rec, err := c.App.Store.Get(r.Context(), contentAddress)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		c.App.Logger.Error("Proof lookup failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load record")
		return
	}

	respondJSON(w, http.StatusOK, models.ProofOf(rec))
}
