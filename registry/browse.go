package registry

import (
	"cmp"
	"context"
	"errors"
	"io"
	"math"
	"slices"

	"github.com/Masterminds/semver/v3"

	"OpenCargoRegistry/db"
	"OpenCargoRegistry/models"
	"OpenCargoRegistry/search"
	"OpenCargoRegistry/storage"
)

const (
	DefaultPerPage      = 10
	MaxPerPage          = 100
	DefaultSuggestLimit = 10
	MaxSuggestLimit     = 50

	scoreEpsilon = 1e-9
)

// CrateSummary is a crate row with its highest available version.
type CrateSummary struct {
	Crate      db.Crate
	MaxVersion string
}

type SearchResults struct {
	Crates []CrateSummary
	Total  int64
}

type Suggestion struct {
	Name    string
	Version string
}

// CrateDetails is everything known about one crate.
type CrateDetails struct {
	Crate      db.Crate
	Keywords   []string
	Categories []string
	Badges     []models.Badge
	Versions   []*models.CrateVersion
}

// Search returns one page of crates matching query. An empty query lists
// every crate by descending downloads.
func (r *Registry) Search(ctx context.Context, query string, page int, perPage int) (*SearchResults, error) {
	if page < 1 || perPage < 1 {
		return nil, newError(KindInvalidRequest, "page and per_page must be positive")
	}
	perPage = min(perPage, MaxPerPage)
	offset := (page - 1) * perPage

	if len(search.Words(query)) == 0 {
		return r.listCrates(ctx, offset, perPage)
	}

	hits, err := r.search.Search(ctx, query)
	if err != nil {
		return nil, wrapError(KindInternal, err, "search failed")
	}
	crates, err := r.rankHits(ctx, hits)
	if err != nil {
		return nil, err
	}
	results := &SearchResults{Total: int64(len(crates))}
	if offset < len(crates) {
		for _, crate := range crates[offset:min(offset+perPage, len(crates))] {
			results.Crates = append(results.Crates, r.summarize(crate))
		}
	}
	return results, nil
}

func (r *Registry) listCrates(ctx context.Context, offset int, limit int) (*SearchResults, error) {
	var crates []db.Crate
	var total int64
	err := r.withConn(ctx, func(c *db.Conn) error {
		var err error
		if total, err = c.CountCrates(); err != nil {
			return err
		}
		crates, err = c.ListCrates(limit, offset)
		return err
	})
	if err != nil {
		return nil, wrapError(KindDBError, err, "failed to list crates")
	}
	results := &SearchResults{Total: total}
	for _, crate := range crates {
		results.Crates = append(results.Crates, r.summarize(crate))
	}
	return results, nil
}

// Suggest returns crate names for type-ahead, best first.
func (r *Registry) Suggest(ctx context.Context, prefix string, limit int) ([]Suggestion, error) {
	if limit < 1 {
		limit = DefaultSuggestLimit
	}
	limit = min(limit, MaxSuggestLimit)

	hits, err := r.search.Suggest(ctx, prefix)
	if err != nil {
		return nil, wrapError(KindInternal, err, "suggest failed")
	}
	crates, err := r.rankHits(ctx, hits)
	if err != nil {
		return nil, err
	}
	suggestions := make([]Suggestion, 0, min(limit, len(crates)))
	for _, crate := range crates[:min(limit, len(crates))] {
		suggestions = append(suggestions, Suggestion{Name: crate.Name, Version: r.maxVersion(crate.CanonName)})
	}
	return suggestions, nil
}

// rankHits joins hits with their crate rows and orders them by score, equal
// scores by descending downloads. Hits without a row are dropped.
func (r *Registry) rankHits(ctx context.Context, hits []search.Hit) ([]db.Crate, error) {
	if len(hits) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(hits))
	for i, hit := range hits {
		ids[i] = hit.ID
	}
	var rows map[int64]db.Crate
	err := r.withConn(ctx, func(c *db.Conn) error {
		var err error
		rows, err = c.CratesByIDs(ids)
		return err
	})
	if err != nil {
		return nil, wrapError(KindDBError, err, "failed to load search results")
	}

	ranked := slices.Clone(hits)
	slices.SortStableFunc(ranked, func(a search.Hit, b search.Hit) int {
		if math.Abs(a.Score-b.Score) > scoreEpsilon {
			return cmp.Compare(b.Score, a.Score)
		}
		return cmp.Compare(rows[b.ID].Downloads, rows[a.ID].Downloads)
	})
	crates := make([]db.Crate, 0, len(ranked))
	for _, hit := range ranked {
		if crate, ok := rows[hit.ID]; ok {
			crates = append(crates, crate)
		}
	}
	return crates, nil
}

func (r *Registry) summarize(crate db.Crate) CrateSummary {
	return CrateSummary{Crate: crate, MaxVersion: r.maxVersion(crate.CanonName)}
}

// maxVersion is the highest non-yanked version, or the highest version
// when all are yanked.
func (r *Registry) maxVersion(canon string) string {
	var best, highest *semver.Version
	var bestVers, highestVers string
	for record, err := range r.index.AllRecords(canon) {
		if err != nil {
			break
		}
		v, err := semver.NewVersion(record.Vers)
		if err != nil {
			continue
		}
		if highest == nil || v.GreaterThan(highest) {
			highest, highestVers = v, record.Vers
		}
		if !record.Yanked && (best == nil || v.GreaterThan(best)) {
			best, bestVers = v, record.Vers
		}
	}
	if best != nil {
		return bestVers
	}
	return highestVers
}

// Crate returns the details of a crate with its versions, newest first.
func (r *Registry) Crate(ctx context.Context, name string) (*CrateDetails, error) {
	crate, err := r.lookupCrate(ctx, models.CanonicalName(name))
	if err != nil {
		return nil, err
	}
	details := &CrateDetails{Crate: crate}
	err = r.withConn(ctx, func(c *db.Conn) error {
		var err error
		if details.Keywords, err = c.CrateKeywords(crate.ID); err != nil {
			return err
		}
		categories, err := c.CrateCategories(crate.ID)
		if err != nil {
			return err
		}
		for _, category := range categories {
			details.Categories = append(details.Categories, category.Tag)
		}
		details.Badges, err = c.CrateBadges(crate.ID)
		return err
	})
	if err != nil {
		return nil, wrapError(KindDBError, err, "failed to load crate %s", crate.Name)
	}

	for record, err := range r.index.AllRecords(crate.CanonName) {
		if err != nil {
			return nil, wrapError(KindInternal, err, "failed to read the index of %s", crate.Name)
		}
		details.Versions = append(details.Versions, record)
	}
	slices.SortStableFunc(details.Versions, func(a *models.CrateVersion, b *models.CrateVersion) int {
		va, errA := semver.NewVersion(a.Vers)
		vb, errB := semver.NewVersion(b.Vers)
		if errA != nil || errB != nil {
			return 0
		}
		return vb.Compare(va)
	})
	return details, nil
}

// Readme streams the rendered README of a version.
func (r *Registry) Readme(ctx context.Context, name string, version string) (io.ReadCloser, error) {
	canon := models.CanonicalName(name)
	record, err := r.findRecord(canon, version)
	if err != nil {
		return nil, err
	}
	body, err := r.storage.GetReadme(ctx, canon, record.Vers)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newError(KindNotFound, "crate %s#%s has no README", record.Name, record.Vers)
	}
	if err != nil {
		return nil, wrapError(KindStorageError, err, "failed to read the README of %s#%s", record.Name, record.Vers)
	}
	return body, nil
}

// Categories returns the category catalogue.
func (r *Registry) Categories(ctx context.Context) ([]db.Category, error) {
	var categories []db.Category
	err := r.withConn(ctx, func(c *db.Conn) error {
		var err error
		categories, err = c.Categories()
		return err
	})
	if err != nil {
		return nil, wrapError(KindDBError, err, "failed to load categories")
	}
	return categories, nil
}
