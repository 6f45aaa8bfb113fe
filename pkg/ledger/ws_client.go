package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cloaklabs/attestx/pkg/retry"
	"github.com/cloaklabs/attestx/pkg/utils"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSClient implements Client against a remote ledger node: live events over
// a websocket feed, head/range reads over plain HTTP.
type WSClient struct {
	logger   *zap.Logger
	endpoint string // http(s)://host:port, no trailing slash
	http     *http.Client
	dialer   *websocket.Dialer
}

// NewWSClient builds a client for the node at endpoint. Outbound reads carry
// the given timeout so a stalled node cannot wedge a backfill scan.
func NewWSClient(logger *zap.Logger, endpoint string, timeout time.Duration) *WSClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WSClient{
		logger:   logger,
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: timeout},
		dialer:   &websocket.Dialer{HandshakeTimeout: timeout},
	}
}

func (c *WSClient) Head(ctx context.Context) (uint64, error) {
	var out struct {
		Head uint64 `json:"head"`
	}
	if err := c.getJSON(ctx, "/head", &out); err != nil {
		return 0, fmt.Errorf("ledger head: %w", err)
	}
	return out.Head, nil
}

func (c *WSClient) ReadRange(ctx context.Context, from, to uint64) ([]Event, error) {
	var out struct {
		Events []Event `json:"events"`
	}
	path := fmt.Sprintf("/events?from=%d&to=%d", from, to)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("ledger range [%d,%d]: %w", from, to, err)
	}
	return out.Events, nil
}

// Subscribe dials the node's websocket feed and relays JSON event frames.
// The reader reconnects with backoff until the context ends; events missed
// while disconnected are the backfill scan's problem, not ours.
func (c *WSClient) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan Event, subscriberBuffer)
	subCtx, cancel := context.WithCancel(ctx)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			_ = conn.Close()
		})
	}

	go func() {
		defer close(ch)
		defer stop()
		for {
			var ev Event
			if err := conn.ReadJSON(&ev); err != nil {
				if subCtx.Err() != nil {
					return
				}
				c.logger.Warn("Ledger feed read failed, reconnecting", zap.Error(err))
				_ = conn.Close()
				next, dialErr := c.redial(subCtx)
				if dialErr != nil {
					c.logger.Error("Ledger feed reconnect failed", zap.Error(dialErr))
					return
				}
				conn = next
				continue
			}
			select {
			case ch <- ev:
			case <-subCtx.Done():
				return
			}
		}
	}()

	return ch, stop, nil
}

func (c *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	wsURL := strings.Replace(c.endpoint, "http", "ws", 1) + "/events/subscribe"
	conn, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if resp != nil {
		_ = utils.DrainAndClose(resp.Body)
	}
	if err != nil {
		return nil, fmt.Errorf("dial ledger feed %s: %w", wsURL, err)
	}
	return conn, nil
}

func (c *WSClient) redial(ctx context.Context) (*websocket.Conn, error) {
	var conn *websocket.Conn
	cfg := retry.Config{MaxRetries: 8, InitialDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2.0, JitterEnabled: true}
	err := retry.WithBackoff(ctx, cfg, c.logger, "ledger_feed_dial", func() error {
		var dialErr error
		conn, dialErr = c.dial(ctx)
		return dialErr
	})
	return conn, err
}

func (c *WSClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = utils.DrainAndClose(resp.Body) }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
