package controller

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The feed carries no credentials and serves local dashboards too.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const writeTimeout = 10 * time.Second

// Subscribe serves GET /events/subscribe: upgrades to a websocket and
// relays attestation events as JSON frames until the client goes away.
func (c *Controller) Subscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	events, cancel, err := c.App.Ledger.Subscribe(r.Context())
	if err != nil {
		c.App.Logger.Error("Ledger subscribe failed", zap.Error(err))
		return
	}
	defer cancel()

	// Reader goroutine: we never expect frames from the client, but reading
	// is how gorilla surfaces close frames.
	go func() {
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				cancel()
				return
			}
		}
	}()

	for ev := range events {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(ev); err != nil {
			c.App.Logger.Debug("Subscriber write failed, dropping connection", zap.Error(err))
			return
		}
	}
}
