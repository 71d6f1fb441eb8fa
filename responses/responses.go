package responses

import "OpenCargoRegistry/models"

// Error is one entry of the Cargo error envelope.
type Error struct {
	Detail string `json:"detail"`
}

// Errors is the body of every non-success response: {"errors":[{"detail":...}]}.
type Errors struct {
	Errors []Error `json:"errors"`
}

func NewErrors(detail string) *Errors {
	return &Errors{Errors: []Error{{Detail: detail}}}
}

type Publish struct {
	Warnings *models.Warnings `json:"warnings"`
}

type Ok struct {
	Ok  bool   `json:"ok"`
	Msg string `json:"msg,omitempty"`
}

type Registry struct {
	Name   string `json:"name"`
	Index  string `json:"index"`
	Sparse string `json:"sparse"`
}

type SearchCrate struct {
	Name          string  `json:"name"`
	MaxVersion    string  `json:"max_version"`
	Description   *string `json:"description"`
	Downloads     int64   `json:"downloads"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
	Documentation *string `json:"documentation"`
	Repository    *string `json:"repository"`
}

type SearchMeta struct {
	Total int64 `json:"total"`
}

type Search struct {
	Crates []SearchCrate `json:"crates"`
	Meta   SearchMeta    `json:"meta"`
}

type Suggestion struct {
	Name string `json:"name"`
	Vers string `json:"vers"`
}

type Suggestions struct {
	Suggestions []Suggestion `json:"suggestions"`
}

type User struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
}

type Users struct {
	Users []User `json:"users"`
}

// OwnersRequest is the body of owner additions and removals.
type OwnersRequest struct {
	Users []string `json:"users"`
}

type Category struct {
	Tag         string `json:"tag"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Categories struct {
	Categories []Category `json:"categories"`
}

type CrateVersion struct {
	Num    string `json:"num"`
	Yanked bool   `json:"yanked"`
	Cksum  string `json:"cksum"`
}

type CrateInfo struct {
	Name          string         `json:"name"`
	Description   *string        `json:"description"`
	Repository    *string        `json:"repository"`
	Documentation *string        `json:"documentation"`
	Downloads     int64          `json:"downloads"`
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
	Keywords      []string       `json:"keywords"`
	Categories    []string       `json:"categories"`
	Badges        []models.Badge `json:"badges"`
	Versions      []CrateVersion `json:"versions"`
}

type Crate struct {
	Crate CrateInfo `json:"crate"`
}

type Token struct {
	Token string `json:"token"`
}

type TokenName struct {
	Name string `json:"name"`
}

type Tokens struct {
	Tokens []TokenName `json:"tokens"`
}

type RegisterRequest struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	Passwd string `json:"passwd"`
}

type LoginRequest struct {
	Email  string `json:"email"`
	Passwd string `json:"passwd"`
}

type TokenRequest struct {
	Name string `json:"name"`
}
