package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"OpenCargoRegistry/db"
	"OpenCargoRegistry/models"
)

// Owners lists the authors of a crate.
func (r *Registry) Owners(ctx context.Context, name string) ([]db.Author, error) {
	crate, err := r.lookupCrate(ctx, models.CanonicalName(name))
	if err != nil {
		return nil, err
	}
	var authors []db.Author
	err = r.withConn(ctx, func(c *db.Conn) error {
		var err error
		authors, err = c.CrateAuthors(crate.ID)
		return err
	})
	if err != nil {
		return nil, wrapError(KindDBError, err, "failed to load owners of %s", crate.Name)
	}
	return authors, nil
}

// AddOwners makes the authors with the given emails owners of the crate and
// returns the confirmation message. Unknown emails and existing owners are
// skipped.
func (r *Registry) AddOwners(ctx context.Context, author db.Author, name string, emails []string) (string, error) {
	var added []string
	crate, err := r.changeOwners(ctx, author, name, emails, func(c *db.Conn, crate db.Crate, owners []db.Author, users []db.Author) error {
		for _, user := range users {
			if isOwner(owners, user) {
				continue
			}
			if err := c.AddCrateAuthor(crate.ID, user.ID); err != nil {
				return err
			}
			added = append(added, user.Name)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	slog.Info("Added crate owners", "crate", crate.Name, "owners", added, "author", author.Email)
	return fmt.Sprintf("%s has been added as authors of %s", joinNames(added), crate.CanonName), nil
}

// RemoveOwners removes the authors with the given emails from the crate's
// owners. A crate always keeps at least one owner.
func (r *Registry) RemoveOwners(ctx context.Context, author db.Author, name string, emails []string) (string, error) {
	var removed []string
	crate, err := r.changeOwners(ctx, author, name, emails, func(c *db.Conn, crate db.Crate, owners []db.Author, users []db.Author) error {
		var leaving []db.Author
		for _, user := range users {
			if isOwner(owners, user) {
				leaving = append(leaving, user)
			}
		}
		if len(leaving) > 0 && len(leaving) == len(owners) {
			return newError(KindInvalidRequest, "cannot leave the crate without any authors")
		}
		for _, user := range leaving {
			if err := c.RemoveCrateAuthor(crate.ID, user.ID); err != nil {
				return err
			}
			removed = append(removed, user.Name)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	slog.Info("Removed crate owners", "crate", crate.Name, "owners", removed, "author", author.Email)
	return fmt.Sprintf("%s has been removed from authors of %s", joinNames(removed), crate.CanonName), nil
}

type ownersChange func(c *db.Conn, crate db.Crate, owners []db.Author, users []db.Author) error

func (r *Registry) changeOwners(ctx context.Context, author db.Author, name string, emails []string, change ownersChange) (db.Crate, error) {
	if len(emails) == 0 {
		return db.Crate{}, newError(KindInvalidRequest, "no users given")
	}
	crate, err := r.ownedCrate(ctx, author, models.CanonicalName(name))
	if err != nil {
		return db.Crate{}, err
	}
	err = r.withTransaction(ctx, func(c *db.Conn) error {
		users, err := c.AuthorsByEmails(emails)
		if err != nil {
			return err
		}
		if len(users) == 0 {
			return newError(KindUserNotFound, "no users matching %s could be found", strings.Join(emails, ", "))
		}
		owners, err := c.CrateAuthors(crate.ID)
		if err != nil {
			return err
		}
		return change(c, crate, owners, users)
	})
	var e *Error
	if errors.As(err, &e) {
		return db.Crate{}, err
	}
	if err != nil {
		return db.Crate{}, wrapError(KindDBError, err, "failed to update owners of %s", crate.Name)
	}
	return crate, nil
}

func isOwner(owners []db.Author, user db.Author) bool {
	return slices.ContainsFunc(owners, func(owner db.Author) bool {
		return owner.ID == user.ID
	})
}

// joinNames renders `a`, `a, and b`, `a, b, and c`.
func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
}
