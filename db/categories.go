package db

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
	"zombiezen.com/go/sqlite"
)

//go:embed categories.yml
var defaultCatalogue []byte

type catalogue struct {
	Categories []Category `yaml:"categories" toml:"categories"`
}

// DefaultCategories returns the built-in category catalogue.
func DefaultCategories() ([]Category, error) {
	var c catalogue
	if err := yaml.Unmarshal(defaultCatalogue, &c); err != nil {
		return nil, fmt.Errorf("db: parsing built-in categories: %w", err)
	}
	return c.Categories, nil
}

// LoadCategories reads a catalogue from a YAML or TOML file.
func LoadCategories(path string) ([]Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("db: reading categories: %w", err)
	}
	var c catalogue
	switch filepath.Ext(path) {
	case ".toml":
		err = toml.Unmarshal(data, &c)
	default:
		err = yaml.Unmarshal(data, &c)
	}
	if err != nil {
		return nil, fmt.Errorf("db: parsing categories %s: %w", path, err)
	}
	for _, category := range c.Categories {
		if category.Tag == "" || category.Name == "" {
			return nil, fmt.Errorf("db: category without tag or name in %s", path)
		}
	}
	return c.Categories, nil
}

// UpsertCategories inserts the catalogue, refreshing the name and description
// of tags already present.
func (c *Conn) UpsertCategories(categories []Category) error {
	for _, category := range categories {
		err := c.exec(`INSERT INTO categories (tag, name, description) VALUES (?, ?, ?)
			ON CONFLICT (tag) DO UPDATE SET name = excluded.name, description = excluded.description`,
			category.Tag, category.Name, category.Description)
		if err != nil {
			return fmt.Errorf("db: upserting category %s: %w", category.Tag, err)
		}
	}
	return nil
}

func scanCategory(stmt *sqlite.Stmt) (Category, error) {
	return Category{Tag: stmt.ColumnText(0), Name: stmt.ColumnText(1), Description: stmt.ColumnText(2)}, nil
}

// Categories lists the catalogue ordered by tag.
func (c *Conn) Categories() ([]Category, error) {
	categories, err := queryRows(c, "SELECT tag, name, description FROM categories ORDER BY tag", scanCategory)
	if err != nil {
		return nil, fmt.Errorf("db: listing categories: %w", err)
	}
	return categories, nil
}
