package models

import (
	"bytes"
	"encoding/json"
)

type DependencyKind string

const (
	NormalDependency DependencyKind = "normal"
	BuildDependency  DependencyKind = "build"
	DevDependency    DependencyKind = "dev"
)

// CrateVersion is one line of a crate's index file.
type CrateVersion struct {
	Name     string              `json:"name"`
	Vers     string              `json:"vers"`
	Deps     []Dependency        `json:"deps"`
	Cksum    string              `json:"cksum"`
	Features map[string][]string `json:"features"`
	Yanked   bool                `json:"yanked"`
	Links    string              `json:"links,omitempty"`
}

// Dependency is a dependency entry of an index line.
// When a dependency was renamed, Name is the alias and Package the real crate name.
type Dependency struct {
	Name            string         `json:"name"`
	Req             string         `json:"req"`
	Features        []string       `json:"features"`
	Optional        bool           `json:"optional"`
	DefaultFeatures bool           `json:"default_features"`
	Target          string         `json:"target,omitempty"`
	Kind            DependencyKind `json:"kind"`
	Registry        string         `json:"registry,omitempty"`
	Package         string         `json:"package,omitempty"`
}

// IndexConfig is the content of config.json at the index root.
type IndexConfig struct {
	DL  string `json:"dl"`
	API string `json:"api"`
}

// MarshalLine encodes a record as a single JSON line without the trailing newline.
// Empty collections are written as `[]` and `{}`, never null.
func (c *CrateVersion) MarshalLine() ([]byte, error) {
	record := *c
	if record.Deps == nil {
		record.Deps = []Dependency{}
	}
	if record.Features == nil {
		record.Features = map[string][]string{}
	}
	for i := range record.Deps {
		if record.Deps[i].Features == nil {
			record.Deps[i].Features = []string{}
		}
		if record.Deps[i].Kind == "" {
			record.Deps[i].Kind = NormalDependency
		}
	}
	return marshalCompact(record)
}

// UnmarshalLine decodes one index line.
func UnmarshalLine(line []byte) (*CrateVersion, error) {
	var record CrateVersion
	if err := json.Unmarshal(line, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (c IndexConfig) Marshal() ([]byte, error) {
	data, err := marshalCompact(c)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// marshalCompact encodes without HTML escaping so requirements like `>=1.0`
// are written verbatim.
func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
