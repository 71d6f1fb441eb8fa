package disk

import (
	"context"
	"io"
	"os"
	"path"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/pkg/errors"

	"OpenCargoRegistry/storage"
)

// Prefix is the directory under the storage root that holds the crates.
const Prefix = "crates"

// Storage keeps blobs on a local filesystem rooted at the configured path.
// Writes go through a temporary file renamed into place.
type Storage struct {
	fs billy.Filesystem
	// mu serializes the existence check and the rename of crate tarballs.
	mu sync.Mutex
}

func New(fs billy.Filesystem) *Storage {
	return &Storage{fs: fs}
}

// Open returns a disk storage rooted at dir, creating it if needed.
func Open(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating storage root %s", dir)
	}
	return New(osfs.New(dir)), nil
}

func (s *Storage) GetCrate(ctx context.Context, name string, version string) (io.ReadCloser, error) {
	return s.get(storage.CrateKey(Prefix, name, version))
}

func (s *Storage) PutCrate(ctx context.Context, name string, version string, data []byte) error {
	return s.put(ctx, storage.CrateKey(Prefix, name, version), data, true)
}

func (s *Storage) DeleteCrate(ctx context.Context, name string, version string) error {
	return s.remove(storage.CrateKey(Prefix, name, version))
}

func (s *Storage) GetReadme(ctx context.Context, name string, version string) (io.ReadCloser, error) {
	return s.get(storage.ReadmeKey(Prefix, name, version))
}

func (s *Storage) PutReadme(ctx context.Context, name string, version string, html []byte) error {
	return s.put(ctx, storage.ReadmeKey(Prefix, name, version), html, false)
}

func (s *Storage) DeleteReadme(ctx context.Context, name string, version string) error {
	return s.remove(storage.ReadmeKey(Prefix, name, version))
}

func (s *Storage) get(key string) (io.ReadCloser, error) {
	f, err := s.fs.Open(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrapf(err, "opening %s", key)
	}
	return f, nil
}

// put writes data under key. An exclusive put fails with storage.ErrExists
// when key is already present.
func (s *Storage) put(ctx context.Context, key string, data []byte, exclusive bool) (err error) {
	dir := path.Dir(key)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	tmp, err := s.fs.TempFile(dir, ".tmp-"+path.Base(key)+"-")
	if err != nil {
		return errors.Wrapf(err, "creating temporary file for %s", key)
	}
	defer func() {
		if err != nil {
			_ = s.fs.Remove(tmp.Name())
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "writing %s", key)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", key)
	}
	// an abandoned request must not publish a blob
	if err := ctx.Err(); err != nil {
		return err
	}
	if exclusive {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, err := s.fs.Stat(key); err == nil {
			return storage.ErrExists
		} else if !os.IsNotExist(err) {
			return errors.Wrapf(err, "checking %s", key)
		}
	}
	if err := s.fs.Rename(tmp.Name(), key); err != nil {
		return errors.Wrapf(err, "renaming into %s", key)
	}
	return nil
}

func (s *Storage) remove(key string) error {
	if err := s.fs.Remove(key); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing %s", key)
	}
	return nil
}
