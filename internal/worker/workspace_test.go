package worker

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/refbatch/refbatch/internal/models"
)

func TestRefspec(t *testing.T) {
	cases := []struct {
		ref  string
		want string
	}{
		{"master", "refs/heads/master"},
		{"feature/tokenizer", "refs/heads/feature/tokenizer"},
		{"PR-42", "refs/pull/42/head"},
		{"PR-fixes", "refs/heads/PR-fixes"},
	}
	for _, tc := range cases {
		if got := Refspec(tc.ref); got != tc.want {
			t.Errorf("Refspec(%q) = %q, want %q", tc.ref, got, tc.want)
		}
	}
}

func TestPrepareWorkspaceRequiresRemote(t *testing.T) {
	_, err := PrepareWorkspace(context.Background(), t.TempDir(), &models.Job{ID: "j1", SourceRef: "master"})
	if err == nil {
		t.Fatal("expected an error for a job without a remote")
	}
}

// newSourceRepo builds a local repository with a "trunk" branch, a tools/
// subdirectory and a synthetic pull request head at refs/pull/7/head.
func newSourceRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	gitCmd(t, dir, "init", "--quiet")
	gitCmd(t, dir, "config", "user.email", "test@example.com")
	gitCmd(t, dir, "config", "user.name", "test")

	if err := os.MkdirAll(filepath.Join(dir, "tools"), 0o755); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(dir, "README"), "main line\n")
	mustWrite(t, filepath.Join(dir, "tools", "run.sh"), "echo tools\n")
	gitCmd(t, dir, "add", ".")
	gitCmd(t, dir, "commit", "--quiet", "-m", "init")
	gitCmd(t, dir, "branch", "-M", "trunk")

	// A PR head that differs from trunk.
	gitCmd(t, dir, "checkout", "--quiet", "-b", "pr-branch")
	mustWrite(t, filepath.Join(dir, "README"), "pr line\n")
	gitCmd(t, dir, "commit", "--quiet", "-am", "pr change")
	gitCmd(t, dir, "update-ref", "refs/pull/7/head", "HEAD")
	gitCmd(t, dir, "checkout", "--quiet", "trunk")

	return dir
}

func gitCmd(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v: %s", args, err, out)
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPrepareWorkspaceBranch(t *testing.T) {
	repo := newSourceRepo(t)
	root := t.TempDir()

	ws, err := PrepareWorkspace(context.Background(), root, &models.Job{
		ID:        "job-branch",
		RemoteURL: repo,
		SourceRef: "trunk",
		WorkDir:   ".",
	})
	if err != nil {
		t.Fatalf("PrepareWorkspace error: %v", err)
	}
	defer ws.Cleanup()

	content, err := os.ReadFile(filepath.Join(ws.Dir, "README"))
	if err != nil {
		t.Fatalf("checkout incomplete: %v", err)
	}
	if string(content) != "main line\n" {
		t.Fatalf("README = %q, want the trunk content", content)
	}
}

func TestPrepareWorkspacePullRequestRef(t *testing.T) {
	repo := newSourceRepo(t)
	root := t.TempDir()

	ws, err := PrepareWorkspace(context.Background(), root, &models.Job{
		ID:        "job-pr",
		RemoteURL: repo,
		SourceRef: "PR-7",
	})
	if err != nil {
		t.Fatalf("PrepareWorkspace error: %v", err)
	}
	defer ws.Cleanup()

	content, err := os.ReadFile(filepath.Join(ws.Dir, "README"))
	if err != nil {
		t.Fatalf("checkout incomplete: %v", err)
	}
	if string(content) != "pr line\n" {
		t.Fatalf("README = %q, want the PR head content", content)
	}
}

func TestPrepareWorkspaceWorkDir(t *testing.T) {
	repo := newSourceRepo(t)
	root := t.TempDir()

	ws, err := PrepareWorkspace(context.Background(), root, &models.Job{
		ID:        "job-wd",
		RemoteURL: repo,
		SourceRef: "trunk",
		WorkDir:   "tools",
	})
	if err != nil {
		t.Fatalf("PrepareWorkspace error: %v", err)
	}
	defer ws.Cleanup()

	if filepath.Base(ws.Dir) != "tools" {
		t.Fatalf("Dir = %q, want the tools subdirectory", ws.Dir)
	}
	if _, err := os.Stat(filepath.Join(ws.Dir, "run.sh")); err != nil {
		t.Fatalf("work dir content missing: %v", err)
	}
}

func TestPrepareWorkspaceRejectsEscapingWorkDir(t *testing.T) {
	repo := newSourceRepo(t)

	_, err := PrepareWorkspace(context.Background(), t.TempDir(), &models.Job{
		ID:        "job-escape",
		RemoteURL: repo,
		SourceRef: "trunk",
		WorkDir:   "../..",
	})
	if err == nil {
		t.Fatal("expected an error for a work dir outside the checkout")
	}
}

func TestPrepareWorkspaceMissingWorkDir(t *testing.T) {
	repo := newSourceRepo(t)

	_, err := PrepareWorkspace(context.Background(), t.TempDir(), &models.Job{
		ID:        "job-missing",
		RemoteURL: repo,
		SourceRef: "trunk",
		WorkDir:   "no/such/dir",
	})
	if err == nil {
		t.Fatal("expected an error for a missing work dir")
	}
}

func TestWorkspaceCleanup(t *testing.T) {
	repo := newSourceRepo(t)
	root := t.TempDir()

	ws, err := PrepareWorkspace(context.Background(), root, &models.Job{
		ID:        "job-clean",
		RemoteURL: repo,
		SourceRef: "trunk",
	})
	if err != nil {
		t.Fatalf("PrepareWorkspace error: %v", err)
	}
	if err := ws.Cleanup(); err != nil {
		t.Fatalf("Cleanup error: %v", err)
	}
	if _, err := os.Stat(ws.Root); !os.IsNotExist(err) {
		t.Fatalf("workspace root still exists after cleanup: %v", err)
	}
}
