package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"

	"OpenCargoRegistry/config"
	"OpenCargoRegistry/db"
	"OpenCargoRegistry/models"
	"OpenCargoRegistry/storage"
)

// Download is where a client gets a tarball: either a URL to redirect to
// or the tarball itself.
type Download struct {
	URL    string
	Body   io.ReadCloser
	Yanked bool
}

// Download resolves a tarball download and counts it when the version is
// not yanked. Yanked versions stay downloadable.
func (r *Registry) Download(ctx context.Context, name string, version string) (*Download, error) {
	canon := models.CanonicalName(name)
	record, err := r.findRecord(canon, version)
	if err != nil {
		return nil, err
	}

	download := &Download{Yanked: record.Yanked}
	if r.config.Storage.DownloadMode == config.DownloadModeStream {
		download.Body, err = r.Blob(ctx, canon, record.Vers)
		if err != nil {
			return nil, err
		}
	} else {
		download.URL, err = r.crateURL(ctx, canon, record.Vers)
		if err != nil {
			return nil, err
		}
	}

	if !record.Yanked {
		r.countDownload(ctx, canon)
	}
	r.metrics.Downloads.Inc()
	return download, nil
}

// Blob streams a stored tarball. A version present in the index whose blob
// is missing is gone.
func (r *Registry) Blob(ctx context.Context, name string, version string) (io.ReadCloser, error) {
	canon := models.CanonicalName(name)
	record, err := r.findRecord(canon, version)
	if err != nil {
		return nil, err
	}
	body, err := r.storage.GetCrate(ctx, canon, record.Vers)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newError(KindGone, "crate %s#%s is no longer available", record.Name, record.Vers)
	}
	if err != nil {
		return nil, wrapError(KindStorageError, err, "failed to read crate %s#%s", record.Name, record.Vers)
	}
	return body, nil
}

// crateURL asks the backend for a direct URL and falls back to the blob route.
func (r *Registry) crateURL(ctx context.Context, canon string, version string) (string, error) {
	if locator, ok := r.storage.(storage.Locator); ok {
		ctx, cancel := r.callContext(ctx)
		defer cancel()
		u, err := locator.CrateURL(ctx, canon, version)
		if err != nil {
			return "", wrapError(KindStorageError, err, "failed to locate crate %s#%s", canon, version)
		}
		return u, nil
	}
	return r.BaseURL() + "/api/v1/blobs/" + url.PathEscape(canon) + "/" + url.PathEscape(version), nil
}

func (r *Registry) countDownload(ctx context.Context, canon string) {
	err := r.withTransaction(ctx, func(c *db.Conn) error {
		crate, err := c.CrateByCanonName(canon)
		if err != nil {
			return err
		}
		return c.IncrementDownloads(crate.ID)
	})
	if err != nil {
		slog.Error("Failed to count download", "crate", canon, "error", err)
	}
}
