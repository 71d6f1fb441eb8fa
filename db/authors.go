package db

import (
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
)

func authorColumns(alias string) string {
	return fmt.Sprintf("%[1]s.id, %[1]s.email, %[1]s.name, %[1]s.passwd, %[1]s.external_id", alias)
}

func scanAuthor(stmt *sqlite.Stmt) (Author, error) {
	return Author{
		ID:         stmt.ColumnInt64(0),
		Email:      stmt.ColumnText(1),
		Name:       stmt.ColumnText(2),
		Passwd:     stmt.ColumnText(3),
		ExternalID: stmt.ColumnText(4),
	}, nil
}

func emptyAsNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// InsertAuthor returns ErrConflict when the email or external id is taken.
func (c *Conn) InsertAuthor(author Author) (Author, error) {
	err := c.exec("INSERT INTO authors (email, name, passwd, external_id) VALUES (?, ?, ?, ?)",
		author.Email, author.Name, emptyAsNull(author.Passwd), emptyAsNull(author.ExternalID))
	if isUniqueViolation(err) {
		return Author{}, ErrConflict
	}
	if err != nil {
		return Author{}, fmt.Errorf("db: inserting author %s: %w", author.Email, err)
	}
	author.ID = c.conn.LastInsertRowID()
	return author, nil
}

func (c *Conn) AuthorByID(id int64) (Author, error) {
	return c.queryAuthor("a.id = ?", id)
}

func (c *Conn) AuthorByEmail(email string) (Author, error) {
	return c.queryAuthor("a.email = ?", email)
}

func (c *Conn) AuthorByExternalID(externalID string) (Author, error) {
	return c.queryAuthor("a.external_id = ?", externalID)
}

// AuthorByToken resolves a hashed token secret to its author.
func (c *Conn) AuthorByToken(tokenHash string) (Author, error) {
	author, err := queryOne(c, `SELECT `+authorColumns("a")+` FROM authors a
		JOIN author_tokens t ON t.author_id = a.id WHERE t.token = ?`, scanAuthor, tokenHash)
	if err != nil && err != ErrNotFound {
		return Author{}, fmt.Errorf("db: author by token: %w", err)
	}
	return author, err
}

func (c *Conn) queryAuthor(condition string, arg any) (Author, error) {
	author, err := queryOne(c, "SELECT "+authorColumns("a")+" FROM authors a WHERE "+condition, scanAuthor, arg)
	if err != nil && err != ErrNotFound {
		return Author{}, fmt.Errorf("db: author: %w", err)
	}
	return author, err
}

// AuthorsByEmails returns the authors found among emails, ordered by id.
func (c *Conn) AuthorsByEmails(emails []string) ([]Author, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	args := make([]any, len(emails))
	for i, email := range emails {
		args[i] = email
	}
	authors, err := queryRows(c, "SELECT "+authorColumns("a")+" FROM authors a WHERE a.email IN ("+placeholders(len(emails))+") ORDER BY a.id", scanAuthor, args...)
	if err != nil {
		return nil, fmt.Errorf("db: authors by email: %w", err)
	}
	return authors, nil
}

func (c *Conn) SetPassword(authorID int64, passwd string) error {
	if err := c.exec("UPDATE authors SET passwd = ? WHERE id = ?", passwd, authorID); err != nil {
		return fmt.Errorf("db: setting password of #%d: %w", authorID, err)
	}
	return nil
}

func (c *Conn) SetExternalID(authorID int64, externalID string) error {
	err := c.exec("UPDATE authors SET external_id = ? WHERE id = ?", externalID, authorID)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("db: binding external id to #%d: %w", authorID, err)
	}
	return nil
}

func (c *Conn) SetSalt(authorID int64, salt string) error {
	err := c.exec(`INSERT INTO salts (author_id, salt) VALUES (?, ?)
		ON CONFLICT (author_id) DO UPDATE SET salt = excluded.salt`, authorID, salt)
	if err != nil {
		return fmt.Errorf("db: storing salt of #%d: %w", authorID, err)
	}
	return nil
}

func (c *Conn) Salt(authorID int64) (string, error) {
	salt, err := queryOne(c, "SELECT salt FROM salts WHERE author_id = ?", scanText, authorID)
	if err != nil && err != ErrNotFound {
		return "", fmt.Errorf("db: salt of #%d: %w", authorID, err)
	}
	return salt, err
}

// InsertToken stores a hashed token secret. ErrConflict when the author
// already has a token with that name.
func (c *Conn) InsertToken(authorID int64, name string, tokenHash string) (Token, error) {
	err := c.exec("INSERT INTO author_tokens (author_id, name, token) VALUES (?, ?, ?)", authorID, name, tokenHash)
	if isUniqueViolation(err) {
		return Token{}, ErrConflict
	}
	if err != nil {
		return Token{}, fmt.Errorf("db: inserting token %s: %w", name, err)
	}
	return Token{ID: c.conn.LastInsertRowID(), AuthorID: authorID, Name: name}, nil
}

func (c *Conn) Tokens(authorID int64) ([]Token, error) {
	tokens, err := queryRows(c, "SELECT id, author_id, name FROM author_tokens WHERE author_id = ? ORDER BY name", func(stmt *sqlite.Stmt) (Token, error) {
		return Token{ID: stmt.ColumnInt64(0), AuthorID: stmt.ColumnInt64(1), Name: stmt.ColumnText(2)}, nil
	}, authorID)
	if err != nil {
		return nil, fmt.Errorf("db: tokens of #%d: %w", authorID, err)
	}
	return tokens, nil
}

// DeleteToken returns ErrNotFound if the author has no token by that name.
func (c *Conn) DeleteToken(authorID int64, name string) error {
	if err := c.exec("DELETE FROM author_tokens WHERE author_id = ? AND name = ?", authorID, name); err != nil {
		return fmt.Errorf("db: deleting token %s: %w", name, err)
	}
	if c.conn.Changes() == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *Conn) InsertSession(session Session) error {
	err := c.exec("INSERT INTO sessions (id, author_id, expires) VALUES (?, ?, ?)", session.ID, session.AuthorID, formatTime(session.Expires))
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("db: inserting session: %w", err)
	}
	return nil
}

// SessionAuthor resolves a session that has not expired yet.
func (c *Conn) SessionAuthor(sessionID string) (Author, error) {
	author, err := queryOne(c, `SELECT `+authorColumns("a")+` FROM authors a
		JOIN sessions s ON s.author_id = a.id WHERE s.id = ? AND s.expires > ?`, scanAuthor, sessionID, formatTime(c.now()))
	if err != nil && err != ErrNotFound {
		return Author{}, fmt.Errorf("db: session author: %w", err)
	}
	return author, err
}

func (c *Conn) DeleteSession(sessionID string) error {
	if err := c.exec("DELETE FROM sessions WHERE id = ?", sessionID); err != nil {
		return fmt.Errorf("db: deleting session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions expired at now and returns how many.
func (c *Conn) DeleteExpiredSessions() (int, error) {
	if err := c.exec("DELETE FROM sessions WHERE expires <= ?", formatTime(c.now())); err != nil {
		return 0, fmt.Errorf("db: purging sessions: %w", err)
	}
	return c.conn.Changes(), nil
}

// Now is the clock used for timestamps written through this connection.
func (c *Conn) Now() time.Time {
	return c.now()
}
