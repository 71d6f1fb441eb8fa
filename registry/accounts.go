package registry

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"OpenCargoRegistry/authenticator"
	"OpenCargoRegistry/db"
)

// apiTokenName is the token handed out by registration and login.
const apiTokenName = "API"

// Login is the outcome of a successful login.
type Login struct {
	Token   string
	Session db.Session
}

// Register creates an author with a password and returns its first API token.
func (r *Registry) Register(ctx context.Context, email string, name string, passwd string) (string, error) {
	if !r.config.Auth.Registration {
		return "", newError(KindForbidden, "registration is disabled on this registry")
	}
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if !strings.Contains(email, "@") || name == "" || passwd == "" {
		return "", newError(KindInvalidRequest, "an email, a name and a password are required")
	}
	salt, err := authenticator.NewSalt()
	if err != nil {
		return "", wrapError(KindInternal, err, "failed to create salt")
	}
	hash, err := authenticator.HashPassword(email, passwd, salt)
	if err != nil {
		return "", wrapError(KindInternal, err, "failed to hash password")
	}

	var token string
	err = r.withTransaction(ctx, func(c *db.Conn) error {
		author, err := c.InsertAuthor(db.Author{Email: email, Name: name, Passwd: hash})
		if err != nil {
			return err
		}
		if err := c.SetSalt(author.ID, salt); err != nil {
			return err
		}
		token, err = issueToken(c, author.ID, apiTokenName)
		return err
	})
	if errors.Is(err, db.ErrConflict) {
		return "", newError(KindConflict, "an author already exists for this email")
	}
	if err != nil {
		return "", wrapError(KindDBError, err, "failed to register author")
	}
	slog.Info("Registered author", "email", email)
	return token, nil
}

// Login checks a password and returns a fresh API token together with a
// session. The previous login token is replaced.
func (r *Registry) Login(ctx context.Context, email string, passwd string) (*Login, error) {
	invalid := newError(KindUnauthorized, "invalid email/password combination")
	var author db.Author
	var salt string
	err := r.withConn(ctx, func(c *db.Conn) error {
		var err error
		if author, err = c.AuthorByEmail(strings.TrimSpace(email)); err != nil {
			return err
		}
		salt, err = c.Salt(author.ID)
		return err
	})
	if errors.Is(err, db.ErrNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, wrapError(KindDBError, err, "failed to load author")
	}
	if author.Passwd == "" || !authenticator.VerifyPassword(author.Email, passwd, salt, author.Passwd) {
		return nil, invalid
	}
	return r.startSession(ctx, author)
}

// LoginExternal binds an OIDC identity to an author and logs it in. An
// unknown identity is matched by email, or registers a new author when
// registration is enabled.
func (r *Registry) LoginExternal(ctx context.Context, identity authenticator.Identity) (*Login, error) {
	if identity.Subject == "" {
		return nil, newError(KindUnauthorized, "the identity provider returned no subject")
	}
	var author db.Author
	err := r.withTransaction(ctx, func(c *db.Conn) error {
		var err error
		author, err = c.AuthorByExternalID(identity.Subject)
		if !errors.Is(err, db.ErrNotFound) {
			return err
		}
		if identity.Email != "" {
			author, err = c.AuthorByEmail(identity.Email)
			if err == nil {
				return c.SetExternalID(author.ID, identity.Subject)
			}
			if !errors.Is(err, db.ErrNotFound) {
				return err
			}
		}
		if !r.config.Auth.Registration || identity.Email == "" {
			return newError(KindForbidden, "no author is bound to this identity")
		}
		name := identity.Name
		if name == "" {
			name = identity.Email
		}
		author, err = c.InsertAuthor(db.Author{Email: identity.Email, Name: name, ExternalID: identity.Subject})
		return err
	})
	var e *Error
	if errors.As(err, &e) {
		return nil, err
	}
	if errors.Is(err, db.ErrConflict) {
		return nil, newError(KindConflict, "the identity is already bound to another author")
	}
	if err != nil {
		return nil, wrapError(KindDBError, err, "failed to bind external identity")
	}
	slog.Info("External login", "email", author.Email, "subject", identity.Subject)
	return r.startSession(ctx, author)
}

func (r *Registry) startSession(ctx context.Context, author db.Author) (*Login, error) {
	login := &Login{Session: db.Session{
		ID:       uuid.NewString(),
		AuthorID: author.ID,
		Expires:  r.clock.Now().Add(sessionLifetime),
	}}
	err := r.withTransaction(ctx, func(c *db.Conn) error {
		if err := c.DeleteToken(author.ID, apiTokenName); err != nil && !errors.Is(err, db.ErrNotFound) {
			return err
		}
		var err error
		if login.Token, err = issueToken(c, author.ID, apiTokenName); err != nil {
			return err
		}
		return c.InsertSession(login.Session)
	})
	if err != nil {
		return nil, wrapError(KindDBError, err, "failed to log in")
	}
	return login, nil
}

// Logout ends a session.
func (r *Registry) Logout(ctx context.Context, sessionID string) error {
	err := r.withTransaction(ctx, func(c *db.Conn) error {
		return c.DeleteSession(sessionID)
	})
	if err != nil {
		return wrapError(KindDBError, err, "failed to log out")
	}
	return nil
}

// Tokens lists the names of the author's API tokens.
func (r *Registry) Tokens(ctx context.Context, author db.Author) ([]db.Token, error) {
	var tokens []db.Token
	err := r.withConn(ctx, func(c *db.Conn) error {
		var err error
		tokens, err = c.Tokens(author.ID)
		return err
	})
	if err != nil {
		return nil, wrapError(KindDBError, err, "failed to list tokens")
	}
	return tokens, nil
}

// CreateToken issues a named API token. The secret is only returned here.
func (r *Registry) CreateToken(ctx context.Context, author db.Author, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", newError(KindInvalidRequest, "a token name is required")
	}
	var token string
	err := r.withTransaction(ctx, func(c *db.Conn) error {
		var err error
		token, err = issueToken(c, author.ID, name)
		return err
	})
	if errors.Is(err, db.ErrConflict) {
		return "", newError(KindConflict, "a token named '%s' already exists", name)
	}
	if err != nil {
		return "", wrapError(KindDBError, err, "failed to create token")
	}
	return token, nil
}

// RevokeToken deletes a named API token.
func (r *Registry) RevokeToken(ctx context.Context, author db.Author, name string) error {
	err := r.withTransaction(ctx, func(c *db.Conn) error {
		return c.DeleteToken(author.ID, name)
	})
	if errors.Is(err, db.ErrNotFound) {
		return newError(KindNotFound, "no token named '%s' could be found", name)
	}
	if err != nil {
		return wrapError(KindDBError, err, "failed to revoke token")
	}
	return nil
}

func issueToken(c *db.Conn, authorID int64, name string) (string, error) {
	token, err := authenticator.NewToken()
	if err != nil {
		return "", err
	}
	if _, err := c.InsertToken(authorID, name, authenticator.HashToken(token)); err != nil {
		return "", err
	}
	return token, nil
}
