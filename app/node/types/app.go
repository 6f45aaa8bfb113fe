package types

import (
	"context"
	"net/http"
	"time"

	"github.com/cloaklabs/attestx/pkg/ledger"
	"go.uber.org/zap"
)

type App struct {
	Ledger *ledger.Ledger
	// Zap Logger
	Logger *zap.Logger
	// Server handles incoming client requests.
	Server *http.Server
}

// Start starts the application and blocks until the context is canceled.
func (a *App) Start(ctx context.Context) {
	go func() { _ = a.Server.ListenAndServe() }()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = a.Server.Shutdown(shutdownCtx)
	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}
