package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"OpenCargoRegistry/config"
)

var testSignature = &object.Signature{Name: "Test", Email: "test@example.com", When: time.Unix(1700000000, 0)}

// newRemote creates a bare remote holding one commit and returns its path.
func newRemote(t *testing.T) string {
	t.Helper()
	if !NativeGitAvailable() {
		t.Skip("git is not available")
	}
	remoteDir := t.TempDir()
	if _, err := git.PlainInit(remoteDir, true); err != nil {
		t.Fatalf("failed to init remote: %v", err)
	}

	seedDir := t.TempDir()
	seed, err := git.PlainInit(seedDir, false)
	if err != nil {
		t.Fatalf("failed to init seed: %v", err)
	}
	if _, err := seed.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{remoteDir}}); err != nil {
		t.Fatalf("failed to add remote: %v", err)
	}
	if err := os.WriteFile(filepath.Join(seedDir, "README"), []byte("index\n"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	wt, _ := seed.Worktree()
	if _, err := wt.Add("README"); err != nil {
		t.Fatalf("failed to add: %v", err)
	}
	if _, err := wt.Commit("Initial commit", &git.CommitOptions{Author: testSignature}); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}
	if err := seed.Push(&git.PushOptions{RemoteName: "origin"}); err != nil {
		t.Fatalf("failed to push seed: %v", err)
	}
	return remoteDir
}

func cloneRemote(t *testing.T, remoteDir string) string {
	t.Helper()
	dir := t.TempDir()
	if _, err := git.PlainClone(dir, false, &git.CloneOptions{URL: remoteDir}); err != nil {
		t.Fatalf("failed to clone: %v", err)
	}
	return dir
}

func indexConfig(dir string, indexType string) config.IndexConfig {
	return config.IndexConfig{
		Type:           indexType,
		Path:           dir,
		Remote:         "origin",
		Branch:         "master",
		CommitterName:  "Registry",
		CommitterEmail: "registry@example.com",
	}
}

// pushFromOtherClone advances the remote behind the back of the index under test.
func pushFromOtherClone(t *testing.T, remoteDir string) {
	t.Helper()
	dir := cloneRemote(t, remoteDir)
	tree := NewTree(osfs.New(dir))
	if err := tree.Append("other", record("other", "1.0.0")); err != nil {
		t.Fatalf("failed to append: %v", err)
	}
	repo, _ := git.PlainOpen(dir)
	wt, _ := repo.Worktree()
	_ = wt.AddWithOptions(&git.AddOptions{All: true})
	if _, err := wt.Commit("Updating crate `other#1.0.0`", &git.CommitOptions{Author: testSignature}); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}
	if err := repo.Push(&git.PushOptions{RemoteName: "origin"}); err != nil {
		t.Fatalf("failed to push: %v", err)
	}
}

func remoteHead(t *testing.T, remoteDir string) string {
	t.Helper()
	remote, err := git.PlainOpen(remoteDir)
	if err != nil {
		t.Fatalf("failed to open remote: %v", err)
	}
	ref, err := remote.Reference(plumbing.NewBranchReferenceName("master"), true)
	if err != nil {
		t.Fatalf("failed to resolve master: %v", err)
	}
	return ref.Hash().String()
}

func Test_GitRepository_CommitAndPush_AdvancesRemote(t *testing.T) {
	remoteDir := newRemote(t)
	workDir := cloneRemote(t, remoteDir)
	repo, err := OpenGitRepository(indexConfig(workDir, config.IndexTypeGit2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	idx := New(NewTree(osfs.New(workDir)), repo)

	err = idx.Update(context.Background(), "hello", "Updating crate `hello#0.1.0`", func(tree *Tree) error {
		return tree.Append("hello", record("hello", "0.1.0"))
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	head, _ := repo.Head(context.Background())
	if remote := remoteHead(t, remoteDir); remote != head {
		t.Errorf("expected remote at %s, got %s", head, remote)
	}
	url, err := repo.URL(context.Background())
	if err != nil || url != remoteDir {
		t.Errorf("expected %s, got %s (%v)", remoteDir, url, err)
	}
}

func Test_GitRepository_RemoteAdvanced_PushFailsAndRetrySucceeds(t *testing.T) {
	remoteDir := newRemote(t)
	workDir := cloneRemote(t, remoteDir)
	repo, err := OpenGitRepository(indexConfig(workDir, config.IndexTypeGit2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	idx := New(NewTree(osfs.New(workDir)), repo)
	pushFromOtherClone(t, remoteDir)

	appendHello := func(tree *Tree) error { return tree.Append("hello", record("hello", "0.1.0")) }
	err = idx.Update(context.Background(), "hello", "Updating crate `hello#0.1.0`", appendHello)
	if !errors.Is(err, ErrPushFailed) {
		t.Fatalf("expected ErrPushFailed, got %v", err)
	}
	if idx.Tree().Exists("hello") {
		t.Fatalf("expected the failed append to be reverted")
	}

	if err := idx.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected refresh error: %v", err)
	}
	if !idx.Tree().Exists("other") {
		t.Errorf("expected refresh to bring in the other crate")
	}
	if err := idx.Update(context.Background(), "hello", "Updating crate `hello#0.1.0`", appendHello); err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}
}
