package authenticator

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"OpenCargoRegistry/db"
)

var ErrUnauthorized = errors.New("unauthorized")

// Authenticator resolves the credentials of a request to an author.
type Authenticator interface {
	// AuthenticateToken resolves an API token as sent in the Authorization header.
	AuthenticateToken(ctx context.Context, token string) (db.Author, error)

	// AuthenticateSession resolves a login session id.
	AuthenticateSession(ctx context.Context, sessionID string) (db.Author, error)
}

// DBAuthenticator looks tokens and sessions up in the registry database.
type DBAuthenticator struct {
	db *db.DB
}

func NewDBAuthenticator(database *db.DB) *DBAuthenticator {
	return &DBAuthenticator{db: database}
}

func (a *DBAuthenticator) AuthenticateToken(ctx context.Context, token string) (db.Author, error) {
	token = TrimToken(token)
	if token == "" {
		return db.Author{}, ErrUnauthorized
	}
	var author db.Author
	err := a.db.WithConn(ctx, func(c *db.Conn) error {
		var err error
		author, err = c.AuthorByToken(HashToken(token))
		return err
	})
	if errors.Is(err, db.ErrNotFound) {
		if slog.Default().Enabled(ctx, slog.LevelDebug) {
			slog.Debug("Unknown token")
		}
		return db.Author{}, ErrUnauthorized
	}
	return author, err
}

func (a *DBAuthenticator) AuthenticateSession(ctx context.Context, sessionID string) (db.Author, error) {
	if sessionID == "" {
		return db.Author{}, ErrUnauthorized
	}
	var author db.Author
	err := a.db.WithConn(ctx, func(c *db.Conn) error {
		var err error
		author, err = c.SessionAuthor(sessionID)
		return err
	})
	if errors.Is(err, db.ErrNotFound) {
		return db.Author{}, ErrUnauthorized
	}
	return author, err
}

// TrimToken accepts the raw header value Cargo sends as well as a
// `Bearer ` prefixed one.
func TrimToken(header string) string {
	header = strings.TrimSpace(header)
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		header = strings.TrimSpace(header[len(prefix):])
	}
	return header
}
