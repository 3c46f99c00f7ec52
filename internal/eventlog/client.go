// Package eventlog writes published events to the ClickHouse event log.
package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/sony/gobreaker"

	apperrors "github.com/allisson/userevents/internal/errors"
	"github.com/allisson/userevents/internal/outbox/domain"
)

// DefaultBatchSize is the number of rows sent per ClickHouse batch when the caller does
// not provide one.
const DefaultBatchSize = 100

const pingTimeout = 5 * time.Second

// Config holds the ClickHouse connection and breaker settings.
type Config struct {
	Addr        string
	Database    string
	Username    string
	Password    string
	Protocol    string
	Table       string
	DialTimeout time.Duration
	ReadTimeout time.Duration

	BreakerMaxFailures int
	BreakerOpenTimeout time.Duration
	BreakerInterval    time.Duration
}

// session is the subset of a ClickHouse connection the client needs.
type session interface {
	Ping(ctx context.Context) error
	SendBatch(ctx context.Context, query string, rows [][]any) error
	Query(ctx context.Context, query string, args ...any) ([][]any, error)
	Exec(ctx context.Context, query string, args ...any) error
	Close() error
}

// Client inserts event envelopes into the event log table.
type Client struct {
	conn        session
	insertQuery      string
	createTableQuery string
	breaker     *gobreaker.CircuitBreaker
	logger      *slog.Logger
}

// Open connects to ClickHouse. The connection is established lazily by the driver, so
// an unreachable server is reported by IsConnected and Insert rather than by Open.
func Open(cfg Config, logger *slog.Logger) (*Client, error) {
	protocol := clickhouse.Native
	if cfg.Protocol == "http" {
		protocol = clickhouse.HTTP
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Protocol:    protocol,
		DialTimeout: cfg.DialTimeout,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to open clickhouse connection")
	}

	client := newClient(&nativeSession{conn: conn}, cfg, logger)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if !client.IsConnected(ctx) && logger != nil {
		logger.Warn("event log not reachable at startup", slog.String("addr", cfg.Addr))
	}

	return client, nil
}

func newClient(conn session, cfg Config, logger *slog.Logger) *Client {
	return &Client{
		conn:             conn,
		insertQuery:      insertQuery(cfg.Database, cfg.Table),
		createTableQuery: createTableQuery(cfg.Database, cfg.Table),
		breaker:          newBreaker(cfg, logger),
		logger:           logger,
	}
}

func qualifiedTable(database, table string) string {
	if database == "" {
		return fmt.Sprintf("`%s`", table)
	}
	return fmt.Sprintf("`%s`.`%s`", database, table)
}

func insertQuery(database, table string) string {
	return fmt.Sprintf(
		"INSERT INTO %s (event_type, event_date_time, environment, event_context)",
		qualifiedTable(database, table),
	)
}

func createTableQuery(database, table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	event_type LowCardinality(String),
	event_date_time DateTime64(6, 'UTC'),
	environment LowCardinality(String),
	event_context String
) ENGINE = MergeTree
ORDER BY (event_type, event_date_time)`, qualifiedTable(database, table))
}

// Insert sends rows in batches of batchSize (DefaultBatchSize when batchSize <= 0).
// Rows of a failed batch are not retried here; the caller owns retries.
func (c *Client) Insert(ctx context.Context, rows []domain.EventEnvelope, batchSize int) error {
	if len(rows) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	if c.breaker.State() == gobreaker.StateOpen {
		return classify(gobreaker.ErrOpenState)
	}
	if !c.IsConnected(ctx) {
		return apperrors.Wrap(ErrSinkUnavailable, "not connected")
	}

	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))

		values := make([][]any, 0, end-start)
		for _, row := range rows[start:end] {
			values = append(values, []any{row.EventType, row.OccurredAt, row.Environment, row.Context})
		}

		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, c.conn.SendBatch(ctx, c.insertQuery, values)
		})
		if err != nil {
			return classify(err)
		}
	}

	return nil
}

// Query runs query and returns every row as a slice of column values. It exists for
// verification and operator tooling; the publish path never reads the event log.
func (c *Client) Query(ctx context.Context, query string, args ...any) ([][]any, error) {
	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	return rows, nil
}

// EnsureTable creates the event log table when it does not exist.
func (c *Client) EnsureTable(ctx context.Context) error {
	return classify(c.conn.Exec(ctx, c.createTableQuery))
}

// IsConnected reports whether the event log answers a ping. Failures are logged and
// reported as false.
func (c *Client) IsConnected(ctx context.Context) bool {
	if err := c.conn.Ping(ctx); err != nil {
		if c.logger != nil {
			c.logger.Warn("event log ping failed", slog.Any("error", err))
		}
		return false
	}
	return true
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
