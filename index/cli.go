package index

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"

	"OpenCargoRegistry/config"
)

// CommandLineRepository drives the index through the `git` binary.
type CommandLineRepository struct {
	dir    string
	remote string
	branch string
	env    []string
}

// NativeGitAvailable reports whether a `git` binary is on PATH.
func NativeGitAvailable() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

func NewCommandLineRepository(cfg config.IndexConfig) *CommandLineRepository {
	return &CommandLineRepository{
		dir:    cfg.Path,
		remote: cfg.Remote,
		branch: cfg.Branch,
		env:    identityEnv(os.LookupEnv, cfg.CommitterName, cfg.CommitterEmail),
	}
}

// identityEnv provides an author and committer identity unless the process
// environment already carries one.
func identityEnv(lookup func(string) (string, bool), name string, email string) []string {
	var env []string
	for key, value := range map[string]string{
		"GIT_AUTHOR_NAME":     name,
		"GIT_AUTHOR_EMAIL":    email,
		"GIT_COMMITTER_NAME":  name,
		"GIT_COMMITTER_EMAIL": email,
	} {
		if _, ok := lookup(key); !ok {
			env = append(env, key+"="+value)
		}
	}
	return env
}

func (r *CommandLineRepository) URL(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "remote", "get-url", r.remote)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (r *CommandLineRepository) Refresh(ctx context.Context) error {
	_, err := r.run(ctx, "pull", "--ff-only", r.remote, r.branch)
	return err
}

func (r *CommandLineRepository) Head(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (r *CommandLineRepository) CommitAndPush(ctx context.Context, msg string) error {
	if _, err := r.run(ctx, "add", "-A"); err != nil {
		return err
	}
	if _, err := r.run(ctx, "commit", "-m", msg); err != nil {
		return err
	}
	if out, err := r.run(ctx, "push", r.remote, r.branch); err != nil {
		return errors.Wrapf(ErrPushFailed, "%s", strings.TrimSpace(out))
	}
	return nil
}

func (r *CommandLineRepository) Reset(ctx context.Context, head string) error {
	_, err := r.run(ctx, "reset", "--hard", head)
	return err
}

func (r *CommandLineRepository) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.dir
	cmd.Env = append(os.Environ(), r.env...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if slog.Default().Enabled(ctx, slog.LevelDebug) {
		slog.Debug("Running git", "args", args, "dir", r.dir)
	}
	if err := cmd.Run(); err != nil {
		return out.String(), errors.Wrapf(err, "git %s: %s", args[0], strings.TrimSpace(out.String()))
	}
	return out.String(), nil
}
