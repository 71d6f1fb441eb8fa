package index

import (
	"context"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/pkg/errors"

	"OpenCargoRegistry/config"
	"OpenCargoRegistry/models"
)

const rollbackTimeout = 30 * time.Second

// Indexer is the contract the registry uses to read and mutate the index.
type Indexer interface {
	// URL returns the URL Cargo clients use for the git index.
	URL(ctx context.Context) (string, error)

	// Refresh fast-forwards the working tree to the remote.
	Refresh(ctx context.Context) error

	// LatestRecord returns the record with the highest version or ErrNotFound.
	LatestRecord(name string) (*models.CrateVersion, error)

	// MatchRecord returns the highest record satisfying req or ErrNotFound.
	MatchRecord(name string, req *semver.Constraints) (*models.CrateVersion, error)

	// FindRecord returns the record of exactly this version or ErrNotFound.
	FindRecord(name string, version string) (*models.CrateVersion, error)

	// AllRecords yields the records of a crate in insertion order.
	AllRecords(name string) iter.Seq2[*models.CrateVersion, error]

	// AddRecord appends a record to the working tree without committing.
	AddRecord(name string, record *models.CrateVersion) error

	// AlterRecord changes the yank flag of one record without committing.
	AlterRecord(name string, version string, fn func(*models.CrateVersion)) (bool, error)

	// CommitAndPush commits the working tree and pushes it.
	CommitAndPush(ctx context.Context, msg string) error

	// Update runs fn on the working tree and commits and pushes the result
	// as one unit. When anything fails the crate's file and the branch are
	// put back to where they were.
	Update(ctx context.Context, name string, msg string, fn func(*Tree) error) error
}

// Index combines the working tree with its repository and serialises
// every mutation of the working directory.
type Index struct {
	tree *Tree
	repo Repository
	mu   sync.Mutex
}

func New(tree *Tree, repo Repository) *Index {
	return &Index{tree: tree, repo: repo}
}

// Open builds the index configured by cfg.
func Open(cfg config.IndexConfig) (*Index, error) {
	tree := NewTree(osfs.New(cfg.Path))
	switch cfg.Type {
	case config.IndexTypeCommandLine:
		if !NativeGitAvailable() {
			return nil, errors.New("index type command-line needs git on PATH")
		}
		return New(tree, NewCommandLineRepository(cfg)), nil
	case config.IndexTypeGit2:
		repo, err := OpenGitRepository(cfg)
		if err != nil {
			return nil, err
		}
		return New(tree, repo), nil
	default:
		return nil, errors.Errorf("unknown index type %q", cfg.Type)
	}
}

// Tree exposes the working tree for read-only serving.
func (i *Index) Tree() *Tree {
	return i.tree
}

func (i *Index) URL(ctx context.Context) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.repo.URL(ctx)
}

func (i *Index) Refresh(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.repo.Refresh(ctx)
}

func (i *Index) LatestRecord(name string) (*models.CrateVersion, error) {
	return i.tree.Latest(name)
}

func (i *Index) MatchRecord(name string, req *semver.Constraints) (*models.CrateVersion, error) {
	return i.tree.Match(name, req)
}

func (i *Index) FindRecord(name string, version string) (*models.CrateVersion, error) {
	return i.tree.Find(name, version)
}

func (i *Index) AllRecords(name string) iter.Seq2[*models.CrateVersion, error] {
	return i.tree.Records(name)
}

func (i *Index) AddRecord(name string, record *models.CrateVersion) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.tree.Append(name, record)
}

func (i *Index) AlterRecord(name string, version string, fn func(*models.CrateVersion)) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.tree.Alter(name, version, fn)
}

func (i *Index) CommitAndPush(ctx context.Context, msg string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.repo.CommitAndPush(ctx, msg)
}

func (i *Index) Update(ctx context.Context, name string, msg string, fn func(*Tree) error) error {
	return i.update(ctx, Path(name), msg, fn)
}

func (i *Index) update(ctx context.Context, p string, msg string, fn func(*Tree) error) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	head, err := i.repo.Head(ctx)
	if err != nil {
		return err
	}
	before, err := i.tree.snapshot(p)
	if err != nil {
		return err
	}

	err = fn(i.tree)
	if err == nil {
		err = i.repo.CommitAndPush(ctx, msg)
	}
	if err != nil {
		i.rollback(head, before)
		return err
	}
	return nil
}

// rollback puts the branch and the file back. It does not use the request
// context, which may already be cancelled.
func (i *Index) rollback(head string, before *snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), rollbackTimeout)
	defer cancel()
	if err := i.repo.Reset(ctx, head); err != nil {
		slog.Error("Failed to reset index repository", "head", head, "error", err.Error())
	}
	if err := i.tree.restore(before); err != nil {
		slog.Error("Failed to restore index file", "path", before.path, "error", err.Error())
	}
}

// EnsureConfig writes and commits config.json when the tree has none.
func (i *Index) EnsureConfig(ctx context.Context, cfg models.IndexConfig) error {
	if i.tree.HasConfig() {
		return nil
	}
	slog.Info("Initializing index configuration", "dl", cfg.DL, "api", cfg.API)
	return i.update(ctx, ConfigFile, "Initialize registry configuration", func(t *Tree) error {
		return t.WriteConfig(cfg)
	})
}
