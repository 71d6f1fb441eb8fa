package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"

	"OpenCargoRegistry/db"
	"OpenCargoRegistry/rendering"
	"OpenCargoRegistry/search"
	"OpenCargoRegistry/storage"
)

const crateBatchSize = 100

// Report is the outcome of a reconciliation pass.
type Report struct {
	// OrphanCrates are crate rows without any index record.
	OrphanCrates []string
	// MissingBlobs are index records, as `name#version`, whose tarball is not stored.
	MissingBlobs    []string
	ExpiredSessions int
}

// Reconcile compares the database with the index and the storage and
// purges expired sessions. It reports inconsistencies and never deletes
// crates or index lines.
func (r *Registry) Reconcile(ctx context.Context) (*Report, error) {
	report := &Report{}
	err := r.eachCrate(ctx, func(crate db.Crate) error {
		found := false
		for record, err := range r.index.AllRecords(crate.CanonName) {
			if err != nil {
				return err
			}
			found = true
			body, err := r.storage.GetCrate(ctx, crate.CanonName, record.Vers)
			if errors.Is(err, storage.ErrNotFound) {
				report.MissingBlobs = append(report.MissingBlobs, record.Name+"#"+record.Vers)
				slog.Warn("Crate blob is missing", "crate", record.Name, "version", record.Vers)
				continue
			}
			if err != nil {
				return err
			}
			body.Close()
		}
		if !found {
			report.OrphanCrates = append(report.OrphanCrates, crate.Name)
			slog.Warn("Crate has no index entries", "crate", crate.Name)
		}
		return nil
	})
	if err != nil {
		return nil, wrapError(KindInternal, err, "reconciliation failed")
	}

	err = r.withTransaction(ctx, func(c *db.Conn) error {
		var err error
		report.ExpiredSessions, err = c.DeleteExpiredSessions()
		return err
	})
	if err != nil {
		return nil, wrapError(KindDBError, err, "failed to purge sessions")
	}
	slog.Info("Reconciliation finished",
		"orphan_crates", len(report.OrphanCrates),
		"missing_blobs", len(report.MissingBlobs),
		"expired_sessions", report.ExpiredSessions)
	return report, nil
}

// RebuildSearch replaces the search index with documents built from the
// database. READMEs come from the stored rendering of each crate's latest version.
func (r *Registry) RebuildSearch(ctx context.Context) (int, error) {
	if err := r.search.Clear(ctx); err != nil {
		return 0, wrapError(KindInternal, err, "failed to clear the search index")
	}
	count := 0
	err := r.eachCrate(ctx, func(crate db.Crate) error {
		doc, err := r.searchDocument(ctx, crate)
		if err != nil {
			return err
		}
		if err := r.search.Put(ctx, doc); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, wrapError(KindInternal, err, "failed to rebuild the search index")
	}
	slog.Info("Rebuilt search index", "crates", count)
	return count, nil
}

// EnsureSearchIndex rebuilds the search index when it is empty but the
// database is not.
func (r *Registry) EnsureSearchIndex(ctx context.Context) error {
	documents, err := r.search.Count(ctx)
	if err != nil {
		return wrapError(KindInternal, err, "failed to count search documents")
	}
	if documents > 0 {
		return nil
	}
	var crates int64
	err = r.withConn(ctx, func(c *db.Conn) error {
		var err error
		crates, err = c.CountCrates()
		return err
	})
	if err != nil {
		return wrapError(KindDBError, err, "failed to count crates")
	}
	if crates == 0 {
		return nil
	}
	_, err = r.RebuildSearch(ctx)
	return err
}

func (r *Registry) searchDocument(ctx context.Context, crate db.Crate) (search.Document, error) {
	doc := search.Document{ID: crate.ID, Name: crate.Name, Description: deref(crate.Description)}
	err := r.withConn(ctx, func(c *db.Conn) error {
		var err error
		if doc.Keywords, err = c.CrateKeywords(crate.ID); err != nil {
			return err
		}
		categories, err := c.CrateCategories(crate.ID)
		if err != nil {
			return err
		}
		for _, category := range categories {
			doc.Categories = append(doc.Categories, category.Tag)
		}
		return nil
	})
	if err != nil {
		return doc, err
	}

	if latest, err := r.index.LatestRecord(crate.CanonName); err == nil {
		body, err := r.storage.GetReadme(ctx, crate.CanonName, latest.Vers)
		if err == nil {
			defer body.Close()
			rendered, err := io.ReadAll(io.LimitReader(body, rendering.MaxReadmeSize*4))
			if err != nil {
				slog.Error("Failed to read README", "crate", crate.Name, "version", latest.Vers, "error", err.Error())
			}
			doc.Readme = rendering.PlainText(rendered)
		}
	}
	return doc, nil
}

func (r *Registry) eachCrate(ctx context.Context, fn func(db.Crate) error) error {
	var crates []db.Crate
	for offset := 0; ; offset += crateBatchSize {
		err := r.withConn(ctx, func(c *db.Conn) error {
			var err error
			crates, err = c.ListCrates(crateBatchSize, offset)
			return err
		})
		if err != nil {
			return err
		}
		for _, crate := range crates {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(crate); err != nil {
				return err
			}
		}
		if len(crates) < crateBatchSize {
			return nil
		}
	}
}

// SeedCategories loads the configured category catalogue, or the built-in
// one, into the database.
func (r *Registry) SeedCategories(ctx context.Context) error {
	categories, err := db.DefaultCategories()
	if path := r.config.General.Categories; path != "" {
		categories, err = db.LoadCategories(path)
	}
	if err != nil {
		return err
	}
	err = r.withTransaction(ctx, func(c *db.Conn) error {
		return c.UpsertCategories(categories)
	})
	if err != nil {
		return err
	}
	slog.Info("Loaded category catalogue", "categories", humanize.Comma(int64(len(categories))))
	return nil
}
