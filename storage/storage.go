package storage

import (
	"context"
	"io"
	"path"

	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("storage: not found")
	ErrExists   = errors.New("storage: already exists")
)

const (
	CrateContentType  = "application/x-tar"
	ReadmeContentType = "text/html; charset=utf-8"
)

// Storage hosts crate tarballs and their rendered READMEs.
// Names are canonical crate names.
type Storage interface {
	// GetCrate streams a tarball; ErrNotFound when absent.
	GetCrate(ctx context.Context, name string, version string) (io.ReadCloser, error)

	// PutCrate stores a tarball only when none is stored for the version yet;
	// ErrExists otherwise, leaving the stored tarball untouched.
	PutCrate(ctx context.Context, name string, version string, data []byte) error

	// DeleteCrate removes a tarball. Removing a missing tarball is not an error.
	DeleteCrate(ctx context.Context, name string, version string) error

	// GetReadme streams the rendered README; ErrNotFound when absent.
	GetReadme(ctx context.Context, name string, version string) (io.ReadCloser, error)

	// PutReadme stores the rendered README HTML, replacing any previous content.
	PutReadme(ctx context.Context, name string, version string, html []byte) error

	// DeleteReadme removes the rendered README. Removing a missing README is not an error.
	DeleteReadme(ctx context.Context, name string, version string) error
}

// Locator is implemented by backends that can hand out a direct download
// URL for a tarball, so the registry can redirect instead of streaming.
type Locator interface {
	CrateURL(ctx context.Context, name string, version string) (string, error)
}

// CrateKey returns `<prefix>/<name>/<name>-<version>.crate`.
func CrateKey(prefix string, name string, version string) string {
	return path.Join(prefix, name, name+"-"+version+".crate")
}

// ReadmeKey returns `<prefix>/<name>/<name>-<version>.readme`.
func ReadmeKey(prefix string, name string, version string) string {
	return path.Join(prefix, name, name+"-"+version+".readme")
}
