package db

import "time"

type Author struct {
	ID         int64
	Email      string
	Name       string
	Passwd     string
	ExternalID string
}

type Crate struct {
	ID            int64
	Name          string
	CanonName     string
	Description   *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Downloads     int64
	Documentation *string
	Repository    *string
}

// Category is one entry of the registry's category catalogue.
type Category struct {
	Tag         string `yaml:"tag" toml:"tag"`
	Name        string `yaml:"name" toml:"name"`
	Description string `yaml:"description" toml:"description"`
}

type Token struct {
	ID       int64
	AuthorID int64
	Name     string
}

type Session struct {
	ID       string
	AuthorID int64
	Expires  time.Time
}
