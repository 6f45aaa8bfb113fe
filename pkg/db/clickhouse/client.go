package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/cloaklabs/attestx/pkg/retry"
	"github.com/cloaklabs/attestx/pkg/utils"
	"go.uber.org/zap"
)

// Client wraps a ClickHouse connection pool plus the database name it
// operates on.
type Client struct {
	Logger   *zap.Logger
	Db       driver.Conn
	Database string
}

// New connects to ClickHouse using environment configuration and ensures the
// target database exists.
//
// Environment variables:
//   - CLICKHOUSE_ADDR: comma-separated host:port list (default "localhost:9000")
//   - CLICKHOUSE_USER / CLICKHOUSE_PASSWORD
//   - CLICKHOUSE_MAX_OPEN_CONNS / CLICKHOUSE_MAX_IDLE_CONNS
func New(ctx context.Context, logger *zap.Logger, dbName string) (*Client, error) {
	connCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	addrs := utils.Dedup(strings.Split(utils.Env("CLICKHOUSE_ADDR", "localhost:9000"), ","))
	maxOpen := utils.EnvInt("CLICKHOUSE_MAX_OPEN_CONNS", 20)
	maxIdle := utils.EnvInt("CLICKHOUSE_MAX_IDLE_CONNS", 10)

	options := &clickhouse.Options{
		Addr: addrs,
		Auth: clickhouse.Auth{
			Database: "default",
			Username: utils.Env("CLICKHOUSE_USER", "default"),
			Password: utils.Env("CLICKHOUSE_PASSWORD", ""),
		},
		DialTimeout:     30 * time.Second,
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: time.Hour,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	}

	client := &Client{Logger: logger, Database: dbName}
	err := retry.WithBackoff(connCtx, retry.DefaultConfig(), logger, "clickhouse_connection", func() error {
		conn, openErr := clickhouse.Open(options)
		if openErr != nil {
			return fmt.Errorf("open clickhouse connection: %w", openErr)
		}
		if pingErr := conn.Ping(connCtx); pingErr != nil {
			return fmt.Errorf("ping clickhouse: %w", pingErr)
		}
		client.Db = conn
		return nil
	})
	if err != nil {
		return nil, err
	}

	createDB := fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS "%s"`, dbName)
	if err := client.Db.Exec(connCtx, createDB); err != nil {
		return nil, fmt.Errorf("create database %s: %w", dbName, err)
	}

	logger.Info("ClickHouse connection pool configured",
		zap.String("database", dbName),
		zap.Strings("addrs", addrs),
		zap.Int("max_open_conns", maxOpen),
		zap.Int("max_idle_conns", maxIdle))

	return client, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.Db.Ping(ctx)
}

func (c *Client) Close() error {
	return c.Db.Close()
}
