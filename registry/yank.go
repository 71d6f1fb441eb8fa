package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"OpenCargoRegistry/db"
	"OpenCargoRegistry/index"
	"OpenCargoRegistry/models"
)

var errUnchanged = errors.New("record unchanged")

// Yank marks a version as yanked in the index.
func (r *Registry) Yank(ctx context.Context, author db.Author, name string, version string) error {
	return r.setYanked(ctx, author, name, version, true)
}

// Unyank clears the yank flag of a version.
func (r *Registry) Unyank(ctx context.Context, author db.Author, name string, version string) error {
	return r.setYanked(ctx, author, name, version, false)
}

// setYanked flips the flag of one index line. Setting the flag it already
// has is a no-op that succeeds without committing.
func (r *Registry) setYanked(ctx context.Context, author db.Author, name string, version string, yanked bool) error {
	canon := models.CanonicalName(name)

	unlock := r.locks.Lock(canon)
	defer unlock()

	if _, err := r.ownedCrate(ctx, author, canon); err != nil {
		return err
	}
	record, err := r.findRecord(canon, version)
	if err != nil {
		return err
	}
	if record.Yanked == yanked {
		return nil
	}

	verb := "Unyanking"
	if yanked {
		verb = "Yanking"
	}
	msg := fmt.Sprintf("%s `%s#%s`", verb, record.Name, record.Vers)
	err = r.pushIndex(ctx, canon, msg, func(tree *index.Tree) error {
		changed, err := tree.Alter(canon, version, func(record *models.CrateVersion) {
			record.Yanked = yanked
		})
		if err == nil && !changed {
			return errUnchanged
		}
		return err
	}, nil)
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if errors.Is(err, index.ErrNotFound) {
		return newError(KindVersionNotFound, "version %s of crate %s could not be found", version, record.Name)
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if err != nil {
		return wrapError(KindInternal, err, "failed to update the index for %s#%s", record.Name, version)
	}
	slog.Info(verb+" crate", "crate", record.Name, "version", record.Vers, "author", author.Email)
	return nil
}

// findRecord returns the index record of a version, telling a missing crate
// from a missing version.
func (r *Registry) findRecord(canon string, version string) (*models.CrateVersion, error) {
	record, err := r.index.FindRecord(canon, version)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, index.ErrNotFound) {
		return nil, wrapError(KindInternal, err, "failed to read the index of %s", canon)
	}
	if _, err := r.index.LatestRecord(canon); errors.Is(err, index.ErrNotFound) {
		return nil, newError(KindCrateNotFound, "no crates named '%s' could be found", canon)
	}
	return nil, newError(KindVersionNotFound, "version %s of crate %s could not be found", version, canon)
}
