package index

import (
	"context"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/pkg/errors"

	"OpenCargoRegistry/config"
)

// GitRepository drives the index in-process with go-git.
type GitRepository struct {
	repo   *git.Repository
	remote string
	branch plumbing.ReferenceName
	auth   transport.AuthMethod
	name   string
	email  string
}

// OpenGitRepository opens the working tree at cfg.Path.
func OpenGitRepository(cfg config.IndexConfig) (*GitRepository, error) {
	repo, err := git.PlainOpen(cfg.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening index repository %s", cfg.Path)
	}
	auth, err := authMethod(cfg)
	if err != nil {
		return nil, err
	}
	return NewGitRepository(repo, cfg, auth), nil
}

func NewGitRepository(repo *git.Repository, cfg config.IndexConfig, auth transport.AuthMethod) *GitRepository {
	return &GitRepository{
		repo:   repo,
		remote: cfg.Remote,
		branch: plumbing.NewBranchReferenceName(cfg.Branch),
		auth:   auth,
		name:   cfg.CommitterName,
		email:  cfg.CommitterEmail,
	}
}

// authMethod picks push credentials: an ssh key file, an HTTPS token, or
// nothing (local remotes, or credentials embedded in the URL).
func authMethod(cfg config.IndexConfig) (transport.AuthMethod, error) {
	switch {
	case cfg.SSHKeyPath != "":
		keys, err := ssh.NewPublicKeysFromFile("git", cfg.SSHKeyPath, cfg.SSHPassphrase)
		if err != nil {
			return nil, errors.Wrapf(err, "loading ssh key %s", cfg.SSHKeyPath)
		}
		return keys, nil
	case cfg.Token != "":
		username := cfg.Username
		if username == "" {
			username = "git"
		}
		return &http.BasicAuth{Username: username, Password: cfg.Token}, nil
	default:
		return nil, nil
	}
}

func (r *GitRepository) URL(ctx context.Context) (string, error) {
	remote, err := r.repo.Remote(r.remote)
	if err != nil {
		return "", errors.Wrapf(err, "looking up remote %s", r.remote)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", errors.Errorf("remote %s has no url", r.remote)
	}
	return urls[0], nil
}

func (r *GitRepository) Refresh(ctx context.Context) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return errors.Wrap(err, "accessing worktree")
	}
	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName:    r.remote,
		ReferenceName: r.branch,
		SingleBranch:  true,
		Auth:          r.auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return errors.Wrap(err, "pulling index")
	}
	return nil
}

func (r *GitRepository) Head(ctx context.Context) (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", errors.Wrap(err, "resolving HEAD")
	}
	return head.Hash().String(), nil
}

func (r *GitRepository) CommitAndPush(ctx context.Context, msg string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return errors.Wrap(err, "accessing worktree")
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return errors.Wrap(err, "staging changes")
	}
	signature := &object.Signature{Name: r.name, Email: r.email, When: time.Now()}
	if _, err := wt.Commit(msg, &git.CommitOptions{Author: signature, Committer: signature}); err != nil {
		return errors.Wrap(err, "committing")
	}
	refSpec := gitconfig.RefSpec(r.branch.String() + ":" + r.branch.String())
	err = r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: r.remote,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       r.auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return errors.Wrapf(ErrPushFailed, "%v", err)
	}
	return nil
}

func (r *GitRepository) Reset(ctx context.Context, head string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return errors.Wrap(err, "accessing worktree")
	}
	if err := wt.Reset(&git.ResetOptions{Commit: plumbing.NewHash(head), Mode: git.HardReset}); err != nil {
		return errors.Wrapf(err, "resetting to %s", head)
	}
	return nil
}
