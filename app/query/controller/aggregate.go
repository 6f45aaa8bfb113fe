package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cloaklabs/attestx/pkg/aggregator"
	"github.com/cloaklabs/attestx/pkg/engine"
	"go.uber.org/zap"
)

type aggregateRequest struct {
	ContentAddresses []string `json:"contentAddresses"`
	Operation        string   `json:"operation"`
}

// Aggregate serves POST /aggregate.
func (c *Controller) Aggregate(w http.ResponseWriter, r *http.Request) {
	var req aggregateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := c.App.Aggregator.Aggregate(r.Context(), req.ContentAddresses, req.Operation)
	switch {
	case errors.Is(err, aggregator.ErrValidation):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, aggregator.ErrContentUnavailable):
		respondError(w, http.StatusBadGateway, "one or more ciphertexts could not be fetched")
		return
	case errors.Is(err, engine.ErrUnreachable):
		respondError(w, http.StatusServiceUnavailable, "computation engine unavailable")
		return
	case err != nil:
		c.App.Logger.Error("Aggregate failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "aggregation failed")
		return
	}

	respondJSON(w, http.StatusOK, result)
}
