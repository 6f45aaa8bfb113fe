package node

import (
	"context"

	"github.com/cloaklabs/attestx/app/node/types"
	"github.com/cloaklabs/attestx/pkg/ledger"
	"github.com/cloaklabs/attestx/pkg/logging"
)

// Initialize initializes the application.
func Initialize(_ context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	return &types.App{
		Ledger: ledger.New(logger),
		Logger: logger,
	}
}
