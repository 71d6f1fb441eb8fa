package gcs

import (
	"context"
	"io"
	"net/http"

	cloudstorage "cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"

	"OpenCargoRegistry/config"
	"OpenCargoRegistry/storage"
)

// ErrObjectNotExist is returned by a bucket when the object is missing.
var ErrObjectNotExist = cloudstorage.ErrObjectNotExist

// bucket is the object level access the storage needs.
type bucket interface {
	reader(ctx context.Context, key string) (io.ReadCloser, error)
	// writer creates the object on Close. An exclusive writer fails to
	// close when the object already exists.
	writer(ctx context.Context, key string, contentType string, exclusive bool) io.WriteCloser
	delete(ctx context.Context, key string) error
}

// Storage keeps blobs in a Google Cloud Storage bucket under a key prefix.
type Storage struct {
	bucket bucket
	name   string
	prefix string
}

// Open connects with application default credentials.
func Open(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	client, err := cloudstorage.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "creating GCS client")
	}
	return &Storage{
		bucket: &bucketHandle{handle: client.Bucket(cfg.Bucket)},
		name:   cfg.Bucket,
		prefix: cfg.KeyPrefix,
	}, nil
}

func (s *Storage) GetCrate(ctx context.Context, name string, version string) (io.ReadCloser, error) {
	return s.get(ctx, storage.CrateKey(s.prefix, name, version))
}

func (s *Storage) PutCrate(ctx context.Context, name string, version string, data []byte) error {
	return s.put(ctx, storage.CrateKey(s.prefix, name, version), data, storage.CrateContentType, true)
}

func (s *Storage) DeleteCrate(ctx context.Context, name string, version string) error {
	return s.delete(ctx, storage.CrateKey(s.prefix, name, version))
}

func (s *Storage) GetReadme(ctx context.Context, name string, version string) (io.ReadCloser, error) {
	return s.get(ctx, storage.ReadmeKey(s.prefix, name, version))
}

func (s *Storage) PutReadme(ctx context.Context, name string, version string, html []byte) error {
	return s.put(ctx, storage.ReadmeKey(s.prefix, name, version), html, storage.ReadmeContentType, false)
}

func (s *Storage) DeleteReadme(ctx context.Context, name string, version string) error {
	return s.delete(ctx, storage.ReadmeKey(s.prefix, name, version))
}

func (s *Storage) get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.bucket.reader(ctx, key)
	if errors.Is(err, ErrObjectNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading gs://%s/%s", s.name, key)
	}
	return r, nil
}

// put only makes the object visible when Close succeeds, so a failed
// upload never leaves a partial blob behind. An exclusive put fails with
// storage.ErrExists when key is already present.
func (s *Storage) put(ctx context.Context, key string, data []byte, contentType string, exclusive bool) error {
	w := s.bucket.writer(ctx, key, contentType, exclusive)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return errors.Wrapf(err, "writing gs://%s/%s", s.name, key)
	}
	if err := w.Close(); err != nil {
		if exclusive && isPreconditionFailed(err) {
			return storage.ErrExists
		}
		return errors.Wrapf(err, "finalizing gs://%s/%s", s.name, key)
	}
	return nil
}

func (s *Storage) delete(ctx context.Context, key string) error {
	err := s.bucket.delete(ctx, key)
	if err != nil && !errors.Is(err, ErrObjectNotExist) {
		return errors.Wrapf(err, "deleting gs://%s/%s", s.name, key)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}

type bucketHandle struct {
	handle *cloudstorage.BucketHandle
}

func (b *bucketHandle) reader(ctx context.Context, key string) (io.ReadCloser, error) {
	return b.handle.Object(key).NewReader(ctx)
}

func (b *bucketHandle) writer(ctx context.Context, key string, contentType string, exclusive bool) io.WriteCloser {
	obj := b.handle.Object(key)
	if exclusive {
		obj = obj.If(cloudstorage.Conditions{DoesNotExist: true})
	}
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	return w
}

func (b *bucketHandle) delete(ctx context.Context, key string) error {
	return b.handle.Object(key).Delete(ctx)
}
