package models

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
)

const MaxNameLength = 64

var crateNameRegexp = regexp.MustCompile(`\A[a-zA-Z][a-zA-Z0-9_-]*\z`)

// ValidateName checks a crate name against the registry naming rule:
// non-empty ASCII, at most 64 characters, alphanumeric plus `-` and `_`,
// starting with a letter.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("crate name must not be empty")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("crate name %q is longer than %d characters", name, MaxNameLength)
	}
	if !crateNameRegexp.MatchString(name) {
		return fmt.Errorf("invalid crate name %q: only alphanumeric characters, `-` and `_` are allowed and the first character must be a letter", name)
	}
	return nil
}

// CanonicalName returns the lowercase, underscore-normalised form of a crate name.
// Every lookup by crate name goes through this function.
func CanonicalName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "-", "_"))
}

// ParseVersion parses a strict SemVer version (major.minor.patch with optional
// pre-release and build metadata).
func ParseVersion(version string) (*semver.Version, error) {
	return semver.StrictNewVersion(version)
}

// ParseRequirement parses a Cargo version requirement.
// Cargo treats a bare version (`1.2`) as a caret requirement (`^1.2`).
func ParseRequirement(req string) (*semver.Constraints, error) {
	parts := strings.Split(req, ",")
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" && part[0] >= '0' && part[0] <= '9' {
			part = "^" + part
		}
		parts[i] = part
	}
	return semver.NewConstraint(strings.Join(parts, ", "))
}

// SortVersions sorts version strings descending, invalid versions last.
func SortVersions(versions []string) []string {
	slices.SortStableFunc(versions, func(a string, b string) int {
		v1, err1 := semver.NewVersion(a)
		v2, err2 := semver.NewVersion(b)
		switch {
		case err1 != nil && err2 != nil:
			return 0
		case err1 != nil:
			return 1
		case err2 != nil:
			return -1
		}
		return v2.Compare(v1)
	})
	return versions
}
