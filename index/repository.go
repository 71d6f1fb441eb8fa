package index

import (
	"context"

	"github.com/pkg/errors"
)

// ErrPushFailed marks a commit that could not be pushed to the remote,
// typically because the remote advanced (non fast-forward).
var ErrPushFailed = errors.New("index: push failed")

// Repository is the version control side of the index working tree.
// Implementations are not safe for concurrent use; Index serialises access.
type Repository interface {
	// URL returns the URL of the configured remote.
	URL(ctx context.Context) (string, error)

	// Refresh fast-forwards the working tree to the remote branch.
	Refresh(ctx context.Context) error

	// Head returns the current commit id.
	Head(ctx context.Context) (string, error)

	// CommitAndPush commits every working tree change and pushes the branch.
	// A failed push is reported as ErrPushFailed and leaves the local commit in place.
	CommitAndPush(ctx context.Context, msg string) error

	// Reset moves the branch and the tracked files back to head.
	Reset(ctx context.Context, head string) error
}
