package disk

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"

	"OpenCargoRegistry/storage"
)

type failingRenameFs struct {
	billy.Filesystem
}

func (f *failingRenameFs) Rename(from, to string) error {
	return errors.New("simulated rename error")
}

func Test_PutCrate_ThenGetCrate_ReturnsSameBytes(t *testing.T) {
	fs := memfs.New()
	s := New(fs)
	if err := s.PutCrate(context.Background(), "hello", "0.1.0", []byte("tarball")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := fs.Stat("crates/hello/hello-0.1.0.crate"); err != nil {
		t.Fatalf("expected blob at crates/hello/hello-0.1.0.crate: %v", err)
	}

	r, err := s.GetCrate(context.Background(), "hello", "0.1.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r.Close()
	data, _ := io.ReadAll(r)
	if string(data) != "tarball" {
		t.Errorf("expected tarball, got %s", data)
	}
}

func Test_GetCrate_Missing_ReturnsErrNotFound(t *testing.T) {
	s := New(memfs.New())
	if _, err := s.GetCrate(context.Background(), "hello", "0.1.0"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func Test_PutCrate_Existing_ReturnsErrExistsAndKeepsBlob(t *testing.T) {
	fs := memfs.New()
	s := New(fs)
	if err := s.PutCrate(context.Background(), "hello", "0.1.0", []byte("one")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.PutCrate(context.Background(), "hello", "0.1.0", []byte("two")); !errors.Is(err, storage.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	r, _ := s.GetCrate(context.Background(), "hello", "0.1.0")
	defer r.Close()
	data, _ := io.ReadAll(r)
	if string(data) != "one" {
		t.Errorf("expected one, got %s", data)
	}
	entries, _ := fs.ReadDir("crates/hello")
	if len(entries) != 1 {
		t.Errorf("expected only the tarball, got %d entries", len(entries))
	}
}

func Test_PutReadme_Existing_Overwrites(t *testing.T) {
	s := New(memfs.New())
	_ = s.PutReadme(context.Background(), "hello", "0.1.0", []byte("one"))
	if err := s.PutReadme(context.Background(), "hello", "0.1.0", []byte("two")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r, _ := s.GetReadme(context.Background(), "hello", "0.1.0")
	defer r.Close()
	data, _ := io.ReadAll(r)
	if string(data) != "two" {
		t.Errorf("expected two, got %s", data)
	}
}

func Test_PutCrate_RenameFails_RemovesTemporaryFile(t *testing.T) {
	fs := memfs.New()
	s := New(&failingRenameFs{fs})
	if err := s.PutCrate(context.Background(), "hello", "0.1.0", []byte("tarball")); err == nil {
		t.Fatalf("expected error")
	}
	entries, _ := fs.ReadDir("crates/hello")
	if len(entries) != 0 {
		t.Errorf("expected no leftovers, got %v", entries)
	}
}

func Test_PutCrate_CancelledContext_DoesNotPublish(t *testing.T) {
	fs := memfs.New()
	s := New(fs)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.PutCrate(ctx, "hello", "0.1.0", []byte("tarball")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := s.GetCrate(context.Background(), "hello", "0.1.0"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected no blob, got %v", err)
	}
	entries, _ := fs.ReadDir("crates/hello")
	if len(entries) != 0 {
		t.Errorf("expected no leftovers, got %v", entries)
	}
}

func Test_Readme_PutGetDelete_RoundTrip(t *testing.T) {
	s := New(memfs.New())
	if err := s.PutReadme(context.Background(), "hello", "0.1.0", []byte("<p>hi</p>")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r, err := s.GetReadme(context.Background(), "hello", "0.1.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := io.ReadAll(r)
	r.Close()
	if string(data) != "<p>hi</p>" {
		t.Errorf("unexpected readme %s", data)
	}
	if err := s.DeleteReadme(context.Background(), "hello", "0.1.0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.GetReadme(context.Background(), "hello", "0.1.0"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func Test_DeleteCrate_Missing_IsNotAnError(t *testing.T) {
	s := New(memfs.New())
	if err := s.DeleteCrate(context.Background(), "hello", "0.1.0"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func Test_CrateKey_Prefix_JoinsWithSlashes(t *testing.T) {
	if key := storage.CrateKey("crates", "hello", "0.1.0"); key != "crates/hello/hello-0.1.0.crate" {
		t.Errorf("unexpected key %s", key)
	}
	if key := storage.ReadmeKey("prod/crates", "hello", "0.1.0"); key != "prod/crates/hello/hello-0.1.0.readme" {
		t.Errorf("unexpected key %s", key)
	}
}
