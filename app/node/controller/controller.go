package controller

import (
	"encoding/json"
	"net/http"

	"github.com/cloaklabs/attestx/app/node/types"
	"github.com/gorilla/mux"
)

type Controller struct {
	App *types.App
}

// NewController returns a new controller.
func NewController(app *types.App) *Controller {
	return &Controller{
		App: app,
	}
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.HandleFunc("/health", c.HandleHealth).Methods("GET")

	r.HandleFunc("/attest", c.Attest).Methods("POST")
	r.HandleFunc("/attested/{fingerprint}", c.IsAttested).Methods("GET")
	r.HandleFunc("/submitters/{submitter}/addresses", c.ContentAddresses).Methods("GET")

	r.HandleFunc("/head", c.Head).Methods("GET")
	r.HandleFunc("/events", c.Events).Methods("GET")
	r.HandleFunc("/events/subscribe", c.Subscribe).Methods("GET")

	return r, nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]any{"success": false, "error": msg})
}

func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	head, _ := c.App.Ledger.Head(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "head": head})
}
