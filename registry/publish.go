package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/Masterminds/semver/v3"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"OpenCargoRegistry/db"
	"OpenCargoRegistry/index"
	"OpenCargoRegistry/metrics"
	"OpenCargoRegistry/models"
	"OpenCargoRegistry/rendering"
	"OpenCargoRegistry/search"
	"OpenCargoRegistry/storage"
)

// readme is the README of a publication, as source and as rendered HTML.
type readme struct {
	source string
	html   []byte
}

// Publish runs the publication pipeline for one framed upload on behalf of author.
func (r *Registry) Publish(ctx context.Context, author db.Author, body io.Reader) (warnings *models.Warnings, err error) {
	defer func() {
		r.metrics.Publications.WithLabelValues(publicationOutcome(err)).Inc()
	}()

	upload, err := models.ReadUpload(body, r.maxUploadSize)
	if errors.Is(err, models.ErrUploadTooLarge) {
		return nil, wrapError(KindTooLarge, err, "max upload size is %s", humanize.Bytes(uint64(r.maxUploadSize)))
	}
	if err != nil {
		return nil, wrapError(KindMalformedRequest, err, "%v", err)
	}
	meta := &upload.Metadata

	version, err := validateMetadata(meta)
	if err != nil {
		return nil, err
	}
	canon := models.CanonicalName(meta.Name)
	warnings = models.NewWarnings()
	badges := filterBadges(meta.Badges, warnings)

	unlock := r.locks.Lock(canon)
	defer unlock()

	existing, err := r.lookupCrate(ctx, canon)
	switch {
	case KindOf(err) == KindCrateNotFound:
	case err != nil:
		return nil, err
	default:
		if err := r.checkOwner(ctx, author, existing); err != nil {
			return nil, err
		}
		if _, err := r.index.LatestRecord(canon); errors.Is(err, index.ErrNotFound) {
			warnings.Other = append(warnings.Other, fmt.Sprintf(
				"crate %s was registered without any published version; an earlier publication did not complete", existing.Name))
		}
	}
	if err := r.checkVersion(canon, version); err != nil {
		return nil, err
	}

	var cksum string
	var rd readme
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cksum = models.Checksum(upload.Tarball)
		return nil
	})
	g.Go(func() error {
		rd = r.renderReadme(gctx, meta, upload.Tarball)
		return nil
	})
	_ = g.Wait()

	crateID, err := r.recordCrate(ctx, author, meta, canon, badges, warnings)
	if err != nil {
		return nil, err
	}

	sctx, cancel := r.callContext(ctx)
	err = r.storage.PutCrate(sctx, canon, meta.Vers, upload.Tarball)
	cancel()
	if errors.Is(err, storage.ErrExists) {
		// another publication of this version got to the storage first
		return nil, newError(KindVersionNotGreater, "crate version `%s#%s` is already uploaded", meta.Name, meta.Vers)
	}
	if err != nil {
		return nil, wrapError(KindStorageError, err, "failed to store crate %s#%s", meta.Name, meta.Vers)
	}
	if rd.html != nil {
		sctx, cancel := r.callContext(ctx)
		if err := r.storage.PutReadme(sctx, canon, meta.Vers, rd.html); err != nil {
			slog.Error("Failed to store README", "crate", meta.Name, "version", meta.Vers, "error", err.Error())
		}
		cancel()
	}

	record := meta.ToCrateVersion(cksum)
	msg := fmt.Sprintf("Updating crate `%s#%s`", meta.Name, meta.Vers)
	err = r.pushIndex(ctx, canon, msg, func(tree *index.Tree) error {
		return tree.Append(canon, record)
	}, func() error {
		return r.checkVersion(canon, version)
	})
	if err != nil {
		// the stored blobs are ours since PutCrate only creates; they do not
		// match the index, also when the version was published elsewhere
		r.discardBlobs(canon, meta.Vers)
		var e *Error
		if errors.As(err, &e) {
			return nil, err
		}
		return nil, wrapError(KindInternal, err, "failed to update the index for %s#%s", meta.Name, meta.Vers)
	}

	categories := recognised(meta.Categories, warnings.InvalidCategories)
	doc := search.Document{
		ID:          crateID,
		Name:        meta.Name,
		Description: deref(meta.Description),
		Readme:      rd.source,
		Categories:  categories,
		Keywords:    meta.UniqueKeywords(),
	}
	if err := r.search.Put(ctx, doc); err != nil {
		r.logSearchError("put", meta.Name, err)
	}

	slog.Info("Published crate", "crate", meta.Name, "version", meta.Vers, "author", author.Email)
	return warnings, nil
}

// validateMetadata checks name, version and dependency requirements and
// returns the parsed version.
func validateMetadata(meta *models.PublishMetadata) (*semver.Version, error) {
	if err := models.ValidateName(meta.Name); err != nil {
		return nil, wrapError(KindInvalidName, err, "%v", err)
	}
	version, err := models.ParseVersion(meta.Vers)
	if err != nil {
		return nil, wrapError(KindInvalidVersion, err, "invalid version %q: %v", meta.Vers, err)
	}
	if err := meta.Validate(); err != nil {
		return nil, wrapError(KindMalformedRequest, err, "%v", err)
	}
	for _, dep := range meta.Deps {
		if _, err := models.ParseRequirement(dep.Requirement()); err != nil {
			return nil, wrapError(KindInvalidVersion, err, "dependency %s has an invalid version requirement %q", dep.Name, dep.Requirement())
		}
	}
	return version, nil
}

// checkVersion rejects versions not strictly greater than the highest
// version in the index.
func (r *Registry) checkVersion(canon string, version *semver.Version) error {
	latest, err := r.index.LatestRecord(canon)
	if errors.Is(err, index.ErrNotFound) {
		return nil
	}
	if err != nil {
		return wrapError(KindInternal, err, "failed to read the index of %s", canon)
	}
	current, err := semver.NewVersion(latest.Vers)
	if err != nil {
		return wrapError(KindInternal, err, "invalid version %q in the index of %s", latest.Vers, canon)
	}
	if !version.GreaterThan(current) {
		return newError(KindVersionNotGreater, "version %s of crate %s must be greater than the latest published version %s",
			version.Original(), latest.Name, latest.Vers)
	}
	return nil
}

// renderReadme renders the inline README or the one inside the tarball.
// Failures are logged and yield no README.
func (r *Registry) renderReadme(ctx context.Context, meta *models.PublishMetadata, tarball []byte) readme {
	source := deref(meta.Readme)
	if source == "" {
		content, found, err := rendering.ExtractReadme(tarball, meta.Name, meta.Vers, deref(meta.ReadmeFile))
		if err != nil {
			slog.Error("Failed to read README from crate", "crate", meta.Name, "version", meta.Vers, "error", err.Error())
			return readme{}
		}
		if !found {
			slog.Debug("Crate has no README", "crate", meta.Name, "version", meta.Vers)
			return readme{}
		}
		source = content
	}
	html, err := r.renderer.Render(ctx, source)
	if err != nil {
		slog.Error("Failed to render README", "crate", meta.Name, "version", meta.Vers, "error", err.Error())
		return readme{source: source}
	}
	return readme{source: source, html: html}
}

// recordCrate writes the crate row and its relations in one transaction.
func (r *Registry) recordCrate(ctx context.Context, author db.Author, meta *models.PublishMetadata, canon string, badges []models.Badge, warnings *models.Warnings) (int64, error) {
	var crateID int64
	var invalidCategories []string
	err := r.withTransaction(ctx, func(c *db.Conn) error {
		crate, err := c.CrateByCanonName(canon)
		switch {
		case errors.Is(err, db.ErrNotFound):
			crate, err = c.InsertCrate(db.Crate{
				Name:          meta.Name,
				CanonName:     canon,
				Description:   meta.Description,
				Documentation: meta.Documentation,
				Repository:    meta.Repository,
			})
			if err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			crate.Description = meta.Description
			crate.Documentation = meta.Documentation
			crate.Repository = meta.Repository
			if err := c.UpdateCrate(crate); err != nil {
				return err
			}
		}
		crateID = crate.ID

		if err := c.AddCrateAuthor(crate.ID, author.ID); err != nil {
			return err
		}
		if err := c.SetCrateKeywords(crate.ID, meta.UniqueKeywords()); err != nil {
			return err
		}
		invalidCategories, err = c.SetCrateCategories(crate.ID, meta.Categories)
		if err != nil {
			return err
		}
		return c.SetCrateBadges(crate.ID, badges)
	})
	if err != nil {
		return 0, wrapError(KindDBError, err, "failed to record crate %s#%s", meta.Name, meta.Vers)
	}
	warnings.InvalidCategories = append(warnings.InvalidCategories, invalidCategories...)
	return crateID, nil
}

// pushIndex applies fn to the index and pushes it, retrying rejected pushes
// after a refresh. recheck runs after each refresh and aborts the retries
// when it fails.
func (r *Registry) pushIndex(ctx context.Context, canon string, msg string, fn func(*index.Tree) error, recheck func() error) error {
	for attempt := 1; ; attempt++ {
		ictx, cancel := r.callContext(ctx)
		err := r.index.Update(ictx, canon, msg, fn)
		cancel()
		if err == nil {
			return nil
		}
		if !errors.Is(err, index.ErrPushFailed) {
			return err
		}
		r.metrics.IndexPushFailures.Inc()
		if attempt >= r.maxRetries {
			return wrapError(KindIndexConflict, err, "the index rejected the update of %s after %d attempts", canon, attempt)
		}
		slog.Warn("Index push rejected, refreshing", "crate", canon, "attempt", attempt, "error", err.Error())

		ictx, cancel = r.callContext(ctx)
		err = r.index.Refresh(ictx)
		cancel()
		if err != nil {
			return wrapError(KindIndexConflict, err, "failed to refresh the index for %s", canon)
		}
		if recheck != nil {
			if err := recheck(); err != nil {
				return err
			}
		}
	}
}

// discardBlobs removes what a failed publication stored. It does not use the
// request context, which may already be cancelled.
func (r *Registry) discardBlobs(canon string, version string) {
	ctx, cancel := r.callContext(context.Background())
	defer cancel()
	if err := r.storage.DeleteCrate(ctx, canon, version); err != nil {
		slog.Error("Failed to remove crate blob", "crate", canon, "version", version, "error", err.Error())
	}
	if err := r.storage.DeleteReadme(ctx, canon, version); err != nil {
		slog.Error("Failed to remove README", "crate", canon, "version", version, "error", err.Error())
	}
}

func filterBadges(badges models.Badges, warnings *models.Warnings) []models.Badge {
	var known []models.Badge
	for _, badge := range badges {
		if models.IsKnownBadge(badge.Type) {
			known = append(known, badge)
		} else {
			warnings.InvalidBadges = append(warnings.InvalidBadges, badge.Type)
		}
	}
	return known
}

func recognised(tags []string, invalid []string) []string {
	var out []string
	for _, tag := range tags {
		if !slices.Contains(invalid, tag) && !slices.Contains(out, tag) {
			out = append(out, tag)
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func publicationOutcome(err error) string {
	if err == nil {
		return metrics.OutcomeSuccess
	}
	switch KindOf(err) {
	case KindIndexConflict, KindStorageError, KindDBError, KindInternal:
		return metrics.OutcomeFailed
	}
	return metrics.OutcomeRejected
}
