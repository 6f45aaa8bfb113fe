package node

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/cloaklabs/attestx/app/node/controller"
	"github.com/cloaklabs/attestx/app/node/types"
	"github.com/cloaklabs/attestx/pkg/utils"
)

// NewServer creates the HTTP server for the ledger node.
func NewServer(app *types.App) error {
	ctler := controller.NewController(app)
	router, err := ctler.NewRouter()
	if err != nil {
		return err
	}

	addr := utils.Env("ADDR", ":3000")

	app.Server = &http.Server{Addr: addr, Handler: router}
	app.Logger.Info("Starting server", zap.String("addr", addr))

	return nil
}
