package registry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"OpenCargoRegistry/config"
	"OpenCargoRegistry/db"
	"OpenCargoRegistry/index"
	"OpenCargoRegistry/metrics"
	"OpenCargoRegistry/models"
	"OpenCargoRegistry/rendering"
	"OpenCargoRegistry/search"
	"OpenCargoRegistry/storage"
	"OpenCargoRegistry/utils"
)

const (
	defaultMaxRetries       = 3
	defaultRenderingWorkers = 2
	sessionLifetime         = 24 * time.Hour
)

// SearchIndex is the full-text index kept next to the relational store.
type SearchIndex interface {
	Put(ctx context.Context, doc search.Document) error
	Remove(ctx context.Context, id int64) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
	Search(ctx context.Context, query string) ([]search.Hit, error)
	Suggest(ctx context.Context, prefix string) ([]search.Hit, error)
}

// Backends are the collaborators a Registry coordinates. Renderer, Metrics
// and Clock are optional.
type Backends struct {
	DB       *db.DB
	Index    index.Indexer
	Storage  storage.Storage
	Search   SearchIndex
	Renderer *rendering.Renderer
	Metrics  *metrics.Metrics
	Clock    utils.TimeProvider
}

// Registry implements the registry operations on top of the database,
// the index, the crate storage and the search index.
type Registry struct {
	config   *config.ServerRoot
	db       *db.DB
	index    index.Indexer
	storage  storage.Storage
	search   SearchIndex
	renderer *rendering.Renderer
	metrics  *metrics.Metrics
	clock    utils.TimeProvider
	locks    *utils.KeyedMutex

	maxUploadSize int64
	maxRetries    int
	timeout       time.Duration
}

func New(cfg *config.ServerRoot, b Backends) (*Registry, error) {
	maxUploadSize, err := cfg.MaxUploadBytes()
	if err != nil {
		return nil, err
	}
	r := &Registry{
		config:        cfg,
		db:            b.DB,
		index:         b.Index,
		storage:       b.Storage,
		search:        b.Search,
		renderer:      b.Renderer,
		metrics:       b.Metrics,
		clock:         b.Clock,
		locks:         utils.NewKeyedMutex(),
		maxUploadSize: maxUploadSize,
		maxRetries:    cfg.Publish.MaxRetries,
		timeout:       cfg.General.Timeout,
	}
	if r.renderer == nil {
		r.renderer = rendering.NewRenderer(cfg.Syntax.Theme, defaultRenderingWorkers)
	}
	if r.metrics == nil {
		r.metrics = metrics.New()
	}
	if r.clock == nil {
		r.clock = utils.NewRealTimeProvider()
	}
	if r.maxRetries <= 0 {
		r.maxRetries = defaultMaxRetries
	}
	return r, nil
}

// Config returns the configuration the registry was built with.
func (r *Registry) Config() *config.ServerRoot {
	return r.config
}

// BaseURL is the public URL of the registry, without a trailing slash.
func (r *Registry) BaseURL() string {
	return utils.BaseUrl(r.config.General)
}

// IndexConfig is the content of the index's config.json.
func (r *Registry) IndexConfig() models.IndexConfig {
	base := r.BaseURL()
	return models.IndexConfig{DL: base + "/api/v1/crates", API: base}
}

// IndexURL returns the URL of the git index.
func (r *Registry) IndexURL(ctx context.Context) (string, error) {
	ctx, cancel := r.callContext(ctx)
	defer cancel()
	return r.index.URL(ctx)
}

// callContext bounds a single call to an external system.
func (r *Registry) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// lookupCrate resolves a canonical name to its row.
func (r *Registry) lookupCrate(ctx context.Context, canon string) (db.Crate, error) {
	var crate db.Crate
	err := r.withConn(ctx, func(c *db.Conn) error {
		var err error
		crate, err = c.CrateByCanonName(canon)
		return err
	})
	if errors.Is(err, db.ErrNotFound) {
		return db.Crate{}, newError(KindCrateNotFound, "no crates named '%s' could be found", canon)
	}
	if err != nil {
		return db.Crate{}, wrapError(KindDBError, err, "failed to load crate %s", canon)
	}
	return crate, nil
}

// ownedCrate resolves the crate and checks that author owns it.
func (r *Registry) ownedCrate(ctx context.Context, author db.Author, canon string) (db.Crate, error) {
	crate, err := r.lookupCrate(ctx, canon)
	if err != nil {
		return db.Crate{}, err
	}
	if err := r.checkOwner(ctx, author, crate); err != nil {
		return db.Crate{}, err
	}
	return crate, nil
}

func (r *Registry) checkOwner(ctx context.Context, author db.Author, crate db.Crate) error {
	var owner bool
	err := r.withConn(ctx, func(c *db.Conn) error {
		var err error
		owner, err = c.IsCrateAuthor(crate.ID, author.ID)
		return err
	})
	if err != nil {
		return wrapError(KindDBError, err, "failed to load owners of %s", crate.CanonName)
	}
	if !owner {
		return newError(KindForbidden, "you are not an owner of crate %s", crate.Name)
	}
	return nil
}

func (r *Registry) withConn(ctx context.Context, fn func(*db.Conn) error) error {
	ctx, cancel := r.callContext(ctx)
	defer cancel()
	return r.db.WithConn(ctx, fn)
}

func (r *Registry) withTransaction(ctx context.Context, fn func(*db.Conn) error) error {
	ctx, cancel := r.callContext(ctx)
	defer cancel()
	return r.db.WithTransaction(ctx, fn)
}

func (r *Registry) logSearchError(op string, name string, err error) {
	r.metrics.SearchIndexErrors.Inc()
	slog.Error("Failed to update search index", "op", op, "crate", name, "error", err.Error())
}
