package controller

import (
	"net/http"
)

func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := c.App.Store.Ping(ctx); err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"status": "errored", "error": "database connection error"})
		return
	}

	engineStatus, err := c.App.Aggregator.HealthCheck(ctx)
	if err != nil || !engineStatus.OK {
		// The read path still works without the engine; report degraded.
		respondJSON(w, http.StatusOK, map[string]string{"status": "degraded", "error": "computation engine unreachable"})
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status":        "ok",
		"engineVersion": engineStatus.EngineVersion,
	})
}
