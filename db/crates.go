package db

import (
	"encoding/json"
	"fmt"

	"zombiezen.com/go/sqlite"

	"OpenCargoRegistry/models"
)

const crateColumns = "id, name, canon_name, description, created_at, updated_at, downloads, documentation, repository"

func scanCrate(stmt *sqlite.Stmt) (Crate, error) {
	createdAt, err := parseTime(stmt.ColumnText(4))
	if err != nil {
		return Crate{}, err
	}
	updatedAt, err := parseTime(stmt.ColumnText(5))
	if err != nil {
		return Crate{}, err
	}
	return Crate{
		ID:            stmt.ColumnInt64(0),
		Name:          stmt.ColumnText(1),
		CanonName:     stmt.ColumnText(2),
		Description:   optionalText(stmt, 3),
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
		Downloads:     stmt.ColumnInt64(6),
		Documentation: optionalText(stmt, 7),
		Repository:    optionalText(stmt, 8),
	}, nil
}

// CrateByCanonName returns ErrNotFound if no crate has that canonical name.
func (c *Conn) CrateByCanonName(canonName string) (Crate, error) {
	crate, err := queryOne(c, "SELECT "+crateColumns+" FROM crates WHERE canon_name = ?", scanCrate, canonName)
	if err != nil && err != ErrNotFound {
		return Crate{}, fmt.Errorf("db: crate %s: %w", canonName, err)
	}
	return crate, err
}

func (c *Conn) CrateByID(id int64) (Crate, error) {
	crate, err := queryOne(c, "SELECT "+crateColumns+" FROM crates WHERE id = ?", scanCrate, id)
	if err != nil && err != ErrNotFound {
		return Crate{}, fmt.Errorf("db: crate #%d: %w", id, err)
	}
	return crate, err
}

// CratesByIDs returns the crates found among ids, keyed by id.
func (c *Conn) CratesByIDs(ids []int64) (map[int64]Crate, error) {
	result := make(map[int64]Crate, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	crates, err := queryRows(c, "SELECT "+crateColumns+" FROM crates WHERE id IN ("+placeholders(len(ids))+")", scanCrate, args...)
	if err != nil {
		return nil, fmt.Errorf("db: crates by id: %w", err)
	}
	for _, crate := range crates {
		result[crate.ID] = crate
	}
	return result, nil
}

// ListCrates pages through all crates by descending downloads.
func (c *Conn) ListCrates(limit int, offset int) ([]Crate, error) {
	crates, err := queryRows(c, "SELECT "+crateColumns+" FROM crates ORDER BY downloads DESC, canon_name ASC LIMIT ? OFFSET ?", scanCrate, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("db: listing crates: %w", err)
	}
	return crates, nil
}

func (c *Conn) CountCrates() (int64, error) {
	count, err := queryOne(c, "SELECT COUNT(*) FROM crates", scanInt64)
	if err != nil {
		return 0, fmt.Errorf("db: counting crates: %w", err)
	}
	return count, nil
}

// InsertCrate creates the crate row with created_at = updated_at = now and
// returns it with its id. ErrConflict if the canonical name is taken.
func (c *Conn) InsertCrate(crate Crate) (Crate, error) {
	now := c.now().UTC()
	err := c.exec(`INSERT INTO crates (name, canon_name, description, created_at, updated_at, downloads, documentation, repository)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		crate.Name, crate.CanonName, nullable(crate.Description), formatTime(now), formatTime(now),
		nullable(crate.Documentation), nullable(crate.Repository))
	if isUniqueViolation(err) {
		return Crate{}, ErrConflict
	}
	if err != nil {
		return Crate{}, fmt.Errorf("db: inserting crate %s: %w", crate.CanonName, err)
	}
	crate.ID = c.conn.LastInsertRowID()
	crate.CreatedAt = now
	crate.UpdatedAt = now
	crate.Downloads = 0
	return crate, nil
}

// UpdateCrate replaces the descriptive fields and bumps updated_at.
func (c *Conn) UpdateCrate(crate Crate) error {
	err := c.exec(`UPDATE crates SET description = ?, documentation = ?, repository = ?,
		updated_at = MAX(created_at, ?) WHERE id = ?`,
		nullable(crate.Description), nullable(crate.Documentation), nullable(crate.Repository),
		formatTime(c.now()), crate.ID)
	if err != nil {
		return fmt.Errorf("db: updating crate %s: %w", crate.CanonName, err)
	}
	if c.conn.Changes() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementDownloads atomically adds one to the crate's download counter.
func (c *Conn) IncrementDownloads(crateID int64) error {
	if err := c.exec("UPDATE crates SET downloads = downloads + 1 WHERE id = ?", crateID); err != nil {
		return fmt.Errorf("db: incrementing downloads of #%d: %w", crateID, err)
	}
	if c.conn.Changes() == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *Conn) IsCrateAuthor(crateID int64, authorID int64) (bool, error) {
	count, err := queryOne(c, "SELECT COUNT(*) FROM crate_authors WHERE crate_id = ? AND author_id = ?", scanInt64, crateID, authorID)
	if err != nil {
		return false, fmt.Errorf("db: checking ownership of #%d: %w", crateID, err)
	}
	return count > 0, nil
}

// AddCrateAuthor is a no-op when the author already owns the crate.
func (c *Conn) AddCrateAuthor(crateID int64, authorID int64) error {
	if err := c.exec("INSERT OR IGNORE INTO crate_authors (crate_id, author_id) VALUES (?, ?)", crateID, authorID); err != nil {
		return fmt.Errorf("db: adding author to #%d: %w", crateID, err)
	}
	return nil
}

func (c *Conn) RemoveCrateAuthor(crateID int64, authorID int64) error {
	if err := c.exec("DELETE FROM crate_authors WHERE crate_id = ? AND author_id = ?", crateID, authorID); err != nil {
		return fmt.Errorf("db: removing author from #%d: %w", crateID, err)
	}
	return nil
}

// CrateAuthors lists the owners of a crate ordered by id.
func (c *Conn) CrateAuthors(crateID int64) ([]Author, error) {
	authors, err := queryRows(c, `SELECT `+authorColumns("a")+` FROM authors a
		JOIN crate_authors ca ON ca.author_id = a.id
		WHERE ca.crate_id = ? ORDER BY a.id`, scanAuthor, crateID)
	if err != nil {
		return nil, fmt.Errorf("db: authors of #%d: %w", crateID, err)
	}
	return authors, nil
}

// SetCrateKeywords replaces the crate's keyword set, creating missing keywords.
// Keywords are compared case-sensitively.
func (c *Conn) SetCrateKeywords(crateID int64, keywords []string) error {
	if err := c.exec("DELETE FROM crate_keywords WHERE crate_id = ?", crateID); err != nil {
		return fmt.Errorf("db: clearing keywords of #%d: %w", crateID, err)
	}
	for _, keyword := range keywords {
		if err := c.exec("INSERT OR IGNORE INTO keywords (name) VALUES (?)", keyword); err != nil {
			return fmt.Errorf("db: inserting keyword %q: %w", keyword, err)
		}
		err := c.exec(`INSERT OR IGNORE INTO crate_keywords (crate_id, keyword_id)
			SELECT ?, id FROM keywords WHERE name = ?`, crateID, keyword)
		if err != nil {
			return fmt.Errorf("db: linking keyword %q: %w", keyword, err)
		}
	}
	return nil
}

// CrateKeywords returns the keywords in the order they were published.
func (c *Conn) CrateKeywords(crateID int64) ([]string, error) {
	keywords, err := queryRows(c, `SELECT k.name FROM keywords k
		JOIN crate_keywords ck ON ck.keyword_id = k.id
		WHERE ck.crate_id = ? ORDER BY ck.rowid`, scanText, crateID)
	if err != nil {
		return nil, fmt.Errorf("db: keywords of #%d: %w", crateID, err)
	}
	return keywords, nil
}

// SetCrateCategories replaces the crate's categories with the tags known to
// the catalogue and returns the unknown ones in input order.
func (c *Conn) SetCrateCategories(crateID int64, tags []string) ([]string, error) {
	if err := c.exec("DELETE FROM crate_categories WHERE crate_id = ?", crateID); err != nil {
		return nil, fmt.Errorf("db: clearing categories of #%d: %w", crateID, err)
	}
	invalid := []string{}
	for _, tag := range tags {
		id, err := queryOne(c, "SELECT id FROM categories WHERE tag = ?", scanInt64, tag)
		if err == ErrNotFound {
			invalid = append(invalid, tag)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("db: looking up category %q: %w", tag, err)
		}
		if err := c.exec("INSERT OR IGNORE INTO crate_categories (crate_id, category_id) VALUES (?, ?)", crateID, id); err != nil {
			return nil, fmt.Errorf("db: linking category %q: %w", tag, err)
		}
	}
	return invalid, nil
}

func (c *Conn) CrateCategories(crateID int64) ([]Category, error) {
	categories, err := queryRows(c, `SELECT c.tag, c.name, c.description FROM categories c
		JOIN crate_categories cc ON cc.category_id = c.id
		WHERE cc.crate_id = ? ORDER BY c.tag`, scanCategory, crateID)
	if err != nil {
		return nil, fmt.Errorf("db: categories of #%d: %w", crateID, err)
	}
	return categories, nil
}

// SetCrateBadges replaces the crate's badges.
func (c *Conn) SetCrateBadges(crateID int64, badges []models.Badge) error {
	if err := c.exec("DELETE FROM crate_badges WHERE crate_id = ?", crateID); err != nil {
		return fmt.Errorf("db: clearing badges of #%d: %w", crateID, err)
	}
	for _, badge := range badges {
		params := badge.Params
		if params == nil {
			params = map[string]string{}
		}
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("db: encoding badge %s: %w", badge.Type, err)
		}
		if err := c.exec("INSERT INTO crate_badges (crate_id, badge_type, params) VALUES (?, ?, ?)", crateID, badge.Type, string(data)); err != nil {
			return fmt.Errorf("db: inserting badge %s: %w", badge.Type, err)
		}
	}
	return nil
}

func (c *Conn) CrateBadges(crateID int64) ([]models.Badge, error) {
	badges, err := queryRows(c, "SELECT badge_type, params FROM crate_badges WHERE crate_id = ? ORDER BY id", func(stmt *sqlite.Stmt) (models.Badge, error) {
		badge := models.Badge{Type: stmt.ColumnText(0)}
		if err := json.Unmarshal([]byte(stmt.ColumnText(1)), &badge.Params); err != nil {
			return models.Badge{}, fmt.Errorf("decoding badge %s: %w", badge.Type, err)
		}
		return badge, nil
	}, crateID)
	if err != nil {
		return nil, fmt.Errorf("db: badges of #%d: %w", crateID, err)
	}
	return badges, nil
}
