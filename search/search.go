package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// FileName is the database file kept in the search directory.
const FileName = "search.db"

const schema = `
CREATE VIRTUAL TABLE IF NOT EXISTS crates USING fts5(
	name,
	name_full,
	name_prefix,
	description,
	readme,
	category,
	keyword,
	tokenize = 'unicode61'
);`

// Column weights, in table order. An exact normalised name beats a name
// word, which beats a name prefix, then description, then readme.
const (
	searchRank  = "bm25(crates, 5.0, 10.0, 1.0, 0.4, 0.2, 1.0, 0.5)"
	suggestRank = "bm25(crates, 0.0, 0.0, 1.0, 0.0, 0.0, 0.0, 0.0)"
)

// Document is what gets indexed for one crate. ID is the crate's database id.
type Document struct {
	ID          int64
	Name        string
	Description string
	Readme      string
	Categories  []string
	Keywords    []string
}

// Hit is a matching crate with its relevance, higher is better.
type Hit struct {
	ID    int64
	Score float64
}

// Index is a full-text index over crates kept in its own SQLite file.
// A single connection serves all calls.
type Index struct {
	mu   sync.Mutex
	conn *sqlite.Conn
}

// Open opens or creates the index under dir.
func Open(dir string) (*Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("search: creating %s: %w", dir, err)
	}
	conn, err := sqlite.OpenConn(filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("search: opening index: %w", err)
	}
	if err := sqlitex.ExecuteTransient(conn, "PRAGMA busy_timeout=5000", nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("search: %w", err)
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("search: applying schema: %w", err)
	}
	return &Index{conn: conn}, nil
}

func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.conn.Close()
}

// acquire locks the connection and binds it to ctx. The returned func
// releases both.
func (i *Index) acquire(ctx context.Context) func() {
	i.mu.Lock()
	i.conn.SetInterrupt(ctx.Done())
	return func() {
		i.conn.SetInterrupt(nil)
		i.mu.Unlock()
	}
}

// Put replaces any existing document with the same id.
func (i *Index) Put(ctx context.Context, doc Document) (err error) {
	release := i.acquire(ctx)
	defer release()

	endTransaction, err := sqlitex.ImmediateTransaction(i.conn)
	if err != nil {
		return fmt.Errorf("search: begin: %w", err)
	}
	defer endTransaction(&err)

	if err := sqlitex.Execute(i.conn, "DELETE FROM crates WHERE rowid = ?", &sqlitex.ExecOptions{Args: []any{doc.ID}}); err != nil {
		return fmt.Errorf("search: removing %s: %w", doc.Name, err)
	}
	err = sqlitex.Execute(i.conn, `INSERT INTO crates (rowid, name, name_full, name_prefix, description, readme, category, keyword)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			doc.ID,
			doc.Name,
			FullName(doc.Name),
			strings.Join(Prefixes(doc.Name), " "),
			doc.Description,
			doc.Readme,
			strings.Join(doc.Categories, " "),
			strings.Join(doc.Keywords, " "),
		},
	})
	if err != nil {
		return fmt.Errorf("search: indexing %s: %w", doc.Name, err)
	}
	return nil
}

func (i *Index) Remove(ctx context.Context, id int64) error {
	release := i.acquire(ctx)
	defer release()

	if err := sqlitex.Execute(i.conn, "DELETE FROM crates WHERE rowid = ?", &sqlitex.ExecOptions{Args: []any{id}}); err != nil {
		return fmt.Errorf("search: removing #%d: %w", id, err)
	}
	return nil
}

// Clear drops every document.
func (i *Index) Clear(ctx context.Context) error {
	release := i.acquire(ctx)
	defer release()

	if err := sqlitex.ExecuteTransient(i.conn, "DELETE FROM crates", nil); err != nil {
		return fmt.Errorf("search: clearing: %w", err)
	}
	return nil
}

func (i *Index) Count(ctx context.Context) (int64, error) {
	release := i.acquire(ctx)
	defer release()

	var count int64
	err := sqlitex.ExecuteTransient(i.conn, "SELECT COUNT(*) FROM crates", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("search: counting: %w", err)
	}
	return count, nil
}

// Search returns every crate matching any word of query, best first.
func (i *Index) Search(ctx context.Context, query string) ([]Hit, error) {
	match := searchExpression(query)
	if match == "" {
		return nil, nil
	}
	return i.match(ctx, searchRank, match)
}

// Suggest returns the crates whose name has a word starting with each word
// of prefix, best first.
func (i *Index) Suggest(ctx context.Context, prefix string) ([]Hit, error) {
	match := suggestExpression(prefix)
	if match == "" {
		return nil, nil
	}
	return i.match(ctx, suggestRank, match)
}

func (i *Index) match(ctx context.Context, rank string, match string) ([]Hit, error) {
	release := i.acquire(ctx)
	defer release()

	var hits []Hit
	query := "SELECT rowid, " + rank + " AS score FROM crates WHERE crates MATCH ? ORDER BY score, rowid"
	err := sqlitex.Execute(i.conn, query, &sqlitex.ExecOptions{
		Args: []any{match},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			// bm25 is lower for better matches.
			hits = append(hits, Hit{ID: stmt.ColumnInt64(0), Score: -stmt.ColumnFloat(1)})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("search: matching %q: %w", match, err)
	}
	return hits, nil
}

// Words splits s into lowercase alphanumeric words.
func Words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// FullName is the name lowercased with every separator removed, so that
// `serde-json`, `serde_json` and `SerdeJson` share one token.
func FullName(name string) string {
	return strings.Join(Words(name), "")
}

// Prefixes returns every non-empty prefix of every word of name.
func Prefixes(name string) []string {
	var prefixes []string
	for _, word := range Words(name) {
		runes := []rune(word)
		for n := 1; n <= len(runes); n++ {
			prefixes = append(prefixes, string(runes[:n]))
		}
	}
	return prefixes
}

func quote(word string) string {
	return `"` + strings.ReplaceAll(word, `"`, `""`) + `"`
}

func searchExpression(query string) string {
	words := Words(query)
	if len(words) == 0 {
		return ""
	}
	terms := make([]string, 0, len(words)+1)
	for _, word := range words {
		terms = append(terms, quote(word))
	}
	terms = append(terms, "name_full : "+quote(FullName(query)))
	return strings.Join(terms, " OR ")
}

func suggestExpression(prefix string) string {
	words := Words(prefix)
	if len(words) == 0 {
		return ""
	}
	terms := make([]string, 0, len(words))
	for _, word := range words {
		terms = append(terms, "name_prefix : "+quote(word))
	}
	return strings.Join(terms, " AND ")
}
