package db

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// pool is a fixed-size pool of SQLite connections sharing one set of pragmas.
// Individual connections are not safe for concurrent use: each goroutine
// takes its own and puts it back when done.
type pool struct {
	inner *sqlitex.Pool
	path  string
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
	"PRAGMA cache_size=-8192",
	"PRAGMA temp_store=MEMORY",
}

func openPool(path string, size int, onConnect func(*sqlite.Conn) error) (*pool, error) {
	if path == "" {
		return nil, fmt.Errorf("db: path is required")
	}
	if size <= 0 {
		size = 4
	}

	inner, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize: size,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepareConnection(conn, onConnect)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("db: opening %s: %w", path, err)
	}

	slog.Debug("sqlite pool opened", "path", path, "pool_size", size)
	return &pool{inner: inner, path: path}, nil
}

// take blocks until a connection is available or ctx is done.
func (p *pool) take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("db: take: %w", err)
	}
	return conn, nil
}

func (p *pool) put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// close blocks until every borrowed connection is returned.
func (p *pool) close() error {
	if err := p.inner.Close(); err != nil {
		slog.Error("sqlite pool close error", "path", p.path, "error", err)
		return fmt.Errorf("db: closing %s: %w", p.path, err)
	}
	slog.Debug("sqlite pool closed", "path", p.path)
	return nil
}

func prepareConnection(conn *sqlite.Conn, onConnect func(*sqlite.Conn) error) error {
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("db: %s: %w", pragma, err)
		}
	}
	if onConnect != nil {
		if err := onConnect(conn); err != nil {
			return fmt.Errorf("db: on connect: %w", err)
		}
	}
	return nil
}
