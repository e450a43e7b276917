// Package db is the persistence adapter for run reports. Documents are
// stored as JSON in SQLite, addressed by collection and selector.
package db

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

const schema = `CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	selector   TEXT NOT NULL,
	document   TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (collection, selector)
)`

// ErrNotFound is returned by Find when no document matches.
var ErrNotFound = errors.New("document not found")

// Store is the persistence contract used by the engine.
type Store interface {
	Upsert(ctx context.Context, collection string, document any, selector map[string]any) error
}

// QueryResult represents the result of a database query
type QueryResult struct {
	Columns []string
	Rows    []map[string]interface{}
}

// Client represents a database client
type Client struct {
	db           *sql.DB
	driverName   string
	dataSource   string
	queryTimeout time.Duration
	logger       zerolog.Logger
}

type Option func(*Client)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithQueryTimeout bounds every statement
func WithQueryTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.queryTimeout = d
	}
}

// NewClient opens the database named by connectionString and creates the
// documents table if needed.
func NewClient(connectionString string, opts ...Option) (*Client, error) {
	driver, dsn, err := parseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if dsn == ":memory:" {
		// each connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to create documents table")
	}

	c := &Client{
		db:           db,
		driverName:   driver,
		dataSource:   dsn,
		queryTimeout: 30 * time.Second,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close closes the database connection
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Upsert stores document under (collection, selector), replacing any
// previous document with the same selector.
func (c *Client) Upsert(ctx context.Context, collection string, document any, selector map[string]any) error {
	key, err := canonicalSelector(selector)
	if err != nil {
		return err
	}
	data, err := json.Marshal(document)
	if err != nil {
		return errors.Wrap(err, "failed to marshal document")
	}

	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	_, err = c.db.ExecContext(ctx, `INSERT INTO documents (collection, selector, document, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, selector) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		collection, key, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return errors.Wrapf(err, "upsert into %s failed", collection)
	}
	c.logger.Debug().Str("collection", collection).Str("selector", key).Int("bytes", len(data)).Msg("document upserted")
	return nil
}

// Find decodes the document stored under (collection, selector) into out.
func (c *Client) Find(ctx context.Context, collection string, selector map[string]any, out any) error {
	key, err := canonicalSelector(selector)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	var data string
	err = c.db.QueryRowContext(ctx, `SELECT document FROM documents WHERE collection = ? AND selector = ?`, collection, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return errors.Wrapf(err, "find in %s failed", collection)
	}
	return errors.Wrap(json.Unmarshal([]byte(data), out), "failed to decode document")
}

// Count returns the number of documents in collection.
func (c *Client) Count(ctx context.Context, collection string) (int, error) {
	result, err := c.Query(ctx, "SELECT COUNT(*) AS count FROM documents WHERE collection = ?", collection)
	if err != nil {
		return 0, err
	}
	n, _ := result.Rows[0]["count"].(int64)
	return int(n), nil
}

// Query executes a SQL query and returns the result
func (c *Client) Query(ctx context.Context, query string, args ...any) (*QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query failed")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get columns")
	}

	result := &QueryResult{
		Columns: columns,
		Rows:    make([]map[string]interface{}, 0),
	}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			val := values[i]
			// Convert []byte to string for better handling
			if b, ok := val.([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = val
			}
		}
		result.Rows = append(result.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}

	return result, nil
}

// canonicalSelector renders selector as JSON with sorted keys.
func canonicalSelector(selector map[string]any) (string, error) {
	if len(selector) == 0 {
		return "", errors.New("empty selector")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// encoding/json sorts map keys
	if err := enc.Encode(selector); err != nil {
		return "", errors.Wrap(err, "invalid selector")
	}
	return strings.TrimSpace(buf.String()), nil
}

// parseConnectionString parses a connection string into driver and DSN
// Supported formats:
// - sqlite://path/to/db.sqlite
// - sqlite:./test.db
// - sqlite::memory:
func parseConnectionString(connStr string) (driver string, dsn string, err error) {
	connStr = strings.TrimSpace(connStr)

	switch {
	case strings.HasPrefix(connStr, "sqlite://"):
		dsn = strings.TrimPrefix(connStr, "sqlite://")
	case strings.HasPrefix(connStr, "sqlite:"):
		dsn = strings.TrimPrefix(connStr, "sqlite:")
	default:
		return "", "", errors.Errorf("unsupported database connection string: %q", connStr)
	}
	if dsn == "" {
		return "", "", errors.New("missing database path")
	}
	return "sqlite3", dsn, nil
}
