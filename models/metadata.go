package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
)

// PublishMetadata is the JSON document Cargo sends ahead of the tarball.
type PublishMetadata struct {
	Name          string              `json:"name"`
	Vers          string              `json:"vers"`
	Deps          []PublishDependency `json:"deps"`
	Features      map[string][]string `json:"features"`
	Authors       []string            `json:"authors"`
	Description   *string             `json:"description"`
	Documentation *string             `json:"documentation"`
	Homepage      *string             `json:"homepage"`
	Readme        *string             `json:"readme"`
	ReadmeFile    *string             `json:"readme_file"`
	Keywords      []string            `json:"keywords"`
	Categories    []string            `json:"categories"`
	License       *string             `json:"license"`
	LicenseFile   *string             `json:"license_file"`
	Repository    *string             `json:"repository"`
	Links         *string             `json:"links"`
	Badges        Badges              `json:"badges"`
}

// PublishDependency is a dependency as described by `cargo publish`.
type PublishDependency struct {
	Name               string         `json:"name"`
	VersionReq         string         `json:"version_req"`
	Req                string         `json:"req"`
	Features           []string       `json:"features"`
	Optional           bool           `json:"optional"`
	DefaultFeatures    *bool          `json:"default_features"`
	Target             *string        `json:"target"`
	Kind               DependencyKind `json:"kind"`
	Registry           *string        `json:"registry"`
	ExplicitNameInTOML *string        `json:"explicit_name_in_toml"`
}

// Requirement returns the version requirement, accepting both the publish
// (`version_req`) and the index (`req`) spelling.
func (d PublishDependency) Requirement() string {
	if d.VersionReq != "" {
		return d.VersionReq
	}
	return d.Req
}

// ToDependency converts the publish form into the index form.
func (d PublishDependency) ToDependency() Dependency {
	dep := Dependency{
		Name:            d.Name,
		Req:             d.Requirement(),
		Features:        d.Features,
		Optional:        d.Optional,
		DefaultFeatures: d.DefaultFeatures == nil || *d.DefaultFeatures,
		Kind:            d.Kind,
	}
	if dep.Kind == "" {
		dep.Kind = NormalDependency
	}
	if d.Target != nil {
		dep.Target = *d.Target
	}
	if d.Registry != nil {
		dep.Registry = *d.Registry
	}
	if d.ExplicitNameInTOML != nil && *d.ExplicitNameInTOML != "" {
		dep.Name = *d.ExplicitNameInTOML
		dep.Package = d.Name
	}
	return dep
}

// Validate checks the parts of the metadata that must be well-formed
// before anything is persisted.
func (m *PublishMetadata) Validate() error {
	for _, dep := range m.Deps {
		if dep.Name == "" {
			return fmt.Errorf("dependency without a name")
		}
		switch dep.Kind {
		case "", NormalDependency, BuildDependency, DevDependency:
		default:
			return fmt.Errorf("dependency %s has unknown kind %q", dep.Name, dep.Kind)
		}
	}
	return nil
}

// ToCrateVersion builds the index line for this publication.
func (m *PublishMetadata) ToCrateVersion(cksum string) *CrateVersion {
	deps := make([]Dependency, 0, len(m.Deps))
	for _, dep := range m.Deps {
		deps = append(deps, dep.ToDependency())
	}
	features := m.Features
	if features == nil {
		features = map[string][]string{}
	}
	record := &CrateVersion{
		Name:     m.Name,
		Vers:     m.Vers,
		Deps:     deps,
		Cksum:    cksum,
		Features: features,
	}
	if m.Links != nil {
		record.Links = *m.Links
	}
	return record
}

// UniqueKeywords returns the keywords deduplicated by exact match, keeping order.
func (m *PublishMetadata) UniqueKeywords() []string {
	var keywords []string
	for _, keyword := range m.Keywords {
		if keyword != "" && !slices.Contains(keywords, keyword) {
			keywords = append(keywords, keyword)
		}
	}
	return keywords
}

// Badge is a crate badge such as a CI status.
type Badge struct {
	Type   string            `json:"type"`
	Params map[string]string `json:"params"`
}

// Badges accepts both Cargo's map form `{"travis-ci": {...}}`
// and the list form `[{"type": ..., "params": {...}}]`.
type Badges []Badge

func (b *Badges) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*b = nil
		return nil
	}
	if data[0] == '[' {
		var list []Badge
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*b = list
		return nil
	}
	var byType map[string]map[string]string
	if err := json.Unmarshal(data, &byType); err != nil {
		return err
	}
	types := make([]string, 0, len(byType))
	for badgeType := range byType {
		types = append(types, badgeType)
	}
	sort.Strings(types)
	list := make([]Badge, 0, len(types))
	for _, badgeType := range types {
		list = append(list, Badge{Type: badgeType, Params: byType[badgeType]})
	}
	*b = list
	return nil
}

var knownBadges = []string{
	"appveyor",
	"azure-devops",
	"circle-ci",
	"cirrus-ci",
	"codecov",
	"coveralls",
	"gitlab",
	"is-it-maintained-issue-resolution",
	"is-it-maintained-open-issues",
	"maintenance",
	"travis-ci",
}

// IsKnownBadge reports whether the registry accepts this badge type.
func IsKnownBadge(badgeType string) bool {
	return slices.Contains(knownBadges, badgeType)
}

// Warnings is the body of a successful publish response.
type Warnings struct {
	InvalidCategories []string `json:"invalid_categories"`
	InvalidBadges     []string `json:"invalid_badges"`
	Other             []string `json:"other"`
}

func NewWarnings() *Warnings {
	return &Warnings{
		InvalidCategories: []string{},
		InvalidBadges:     []string{},
		Other:             []string{},
	}
}
