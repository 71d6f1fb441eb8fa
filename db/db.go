package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"OpenCargoRegistry/config"
	"OpenCargoRegistry/utils"
)

var (
	ErrNotFound = errors.New("db: not found")
	ErrConflict = errors.New("db: conflict")
)

//go:embed schema.sql
var schema string

// DB is the relational store of the registry.
type DB struct {
	pool  *pool
	clock utils.TimeProvider
}

// Conn is a connection borrowed for the duration of one unit of work.
// It must not be retained after the callback returns.
type Conn struct {
	conn *sqlite.Conn
	now  func() time.Time
}

// PathFromURL accepts `sqlite://<path>`, `file:<path>` or a plain path.
func PathFromURL(url string) (string, error) {
	path := url
	switch {
	case strings.HasPrefix(url, "sqlite://"):
		path = strings.TrimPrefix(url, "sqlite://")
	case strings.HasPrefix(url, "sqlite:"):
		path = strings.TrimPrefix(url, "sqlite:")
	case strings.HasPrefix(url, "file:"):
		path = strings.TrimPrefix(url, "file:")
	case strings.Contains(url, "://"):
		return "", fmt.Errorf("db: unsupported database url %q", url)
	}
	if path == "" {
		return "", fmt.Errorf("db: empty database path in %q", url)
	}
	return path, nil
}

// Open opens the database and creates any missing table.
func Open(ctx context.Context, cfg config.DatabaseConfig, clock utils.TimeProvider) (*DB, error) {
	path, err := PathFromURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	p, err := openPool(path, cfg.MaxConnections, nil)
	if err != nil {
		return nil, err
	}

	conn, err := p.take(ctx)
	if err != nil {
		_ = p.close()
		return nil, err
	}
	err = sqlitex.ExecuteScript(conn, schema, nil)
	p.put(conn)
	if err != nil {
		_ = p.close()
		return nil, fmt.Errorf("db: applying schema: %w", err)
	}

	if clock == nil {
		clock = utils.NewRealTimeProvider()
	}
	return &DB{pool: p, clock: clock}, nil
}

func (d *DB) Close() error {
	return d.pool.close()
}

// WithTransaction runs fn inside an IMMEDIATE transaction. The transaction
// is rolled back when fn returns an error or panics. Nested calls are not
// supported.
func (d *DB) WithTransaction(ctx context.Context, fn func(*Conn) error) (err error) {
	conn, err := d.pool.take(ctx)
	if err != nil {
		return err
	}
	defer d.pool.put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("db: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	return fn(&Conn{conn: conn, now: d.clock.Now})
}

// WithConn runs fn on a pooled connection without an explicit transaction.
// Meant for reads.
func (d *DB) WithConn(ctx context.Context, fn func(*Conn) error) error {
	conn, err := d.pool.take(ctx)
	if err != nil {
		return err
	}
	defer d.pool.put(conn)

	return fn(&Conn{conn: conn, now: d.clock.Now})
}

// timeFormat is fixed width so stored timestamps order lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("db: parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func optionalText(stmt *sqlite.Stmt, col int) *string {
	if stmt.ColumnIsNull(col) {
		return nil
	}
	s := stmt.ColumnText(col)
	return &s
}

func isUniqueViolation(err error) bool {
	switch sqlite.ErrCode(err) {
	case sqlite.ResultConstraintUnique, sqlite.ResultConstraintPrimaryKey:
		return true
	}
	return false
}

func (c *Conn) exec(query string, args ...any) error {
	return sqlitex.Execute(c.conn, query, &sqlitex.ExecOptions{Args: args})
}

func queryRows[T any](c *Conn, query string, scan func(*sqlite.Stmt) (T, error), args ...any) ([]T, error) {
	var rows []T
	err := sqlitex.Execute(c.conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			row, err := scan(stmt)
			if err != nil {
				return err
			}
			rows = append(rows, row)
			return nil
		},
	})
	return rows, err
}

// queryOne returns ErrNotFound when the query yields no row.
func queryOne[T any](c *Conn, query string, scan func(*sqlite.Stmt) (T, error), args ...any) (T, error) {
	rows, err := queryRows(c, query, scan, args...)
	if err != nil {
		var zero T
		return zero, err
	}
	if len(rows) == 0 {
		var zero T
		return zero, ErrNotFound
	}
	return rows[0], nil
}

func scanInt64(stmt *sqlite.Stmt) (int64, error) {
	return stmt.ColumnInt64(0), nil
}

func scanText(stmt *sqlite.Stmt) (string, error) {
	return stmt.ColumnText(0), nil
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
