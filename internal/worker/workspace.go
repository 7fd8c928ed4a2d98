package worker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/refbatch/refbatch/internal/models"
)

// Refspec maps a submission ref to the refspec fetched from the remote.
// "PR-123" fetches the pull request head; anything else is a branch name.
func Refspec(ref string) string {
	if n, ok := models.PRRefNumber(ref); ok {
		return fmt.Sprintf("refs/pull/%d/head", n)
	}
	return "refs/heads/" + ref
}

// Workspace is one job's scratch checkout. Root holds everything the job
// touches; Dir is the resolved working directory the command runs in.
type Workspace struct {
	Root string
	Dir  string
}

// PrepareWorkspace creates the job directory and makes a shallow checkout of
// the requested ref. The returned workspace's Dir points at the job's
// work_dir inside the checkout.
func PrepareWorkspace(ctx context.Context, root string, job *models.Job) (*Workspace, error) {
	if job.RemoteURL == "" {
		return nil, fmt.Errorf("job %s has no remote repository", job.ID)
	}

	jobDir, err := filepath.Abs(filepath.Join(root, job.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace path: %w", err)
	}
	src := filepath.Join(jobDir, "src")
	if err := os.MkdirAll(src, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	steps := [][]string{
		{"git", "init", "--quiet"},
		{"git", "remote", "add", "origin", job.RemoteURL},
		{"git", "fetch", "--quiet", "--depth", "1", "origin", Refspec(job.SourceRef)},
		{"git", "checkout", "--quiet", "--force", "FETCH_HEAD"},
	}
	for _, step := range steps {
		if err := runGit(ctx, src, step); err != nil {
			os.RemoveAll(jobDir)
			return nil, err
		}
	}

	dir := src
	if job.WorkDir != "" && job.WorkDir != "." {
		dir = filepath.Join(src, job.WorkDir)
		rel, err := filepath.Rel(src, dir)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			os.RemoveAll(jobDir)
			return nil, fmt.Errorf("work dir %q escapes the checkout", job.WorkDir)
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			os.RemoveAll(jobDir)
			return nil, fmt.Errorf("work dir %q not found in checkout", job.WorkDir)
		}
	}

	return &Workspace{Root: jobDir, Dir: dir}, nil
}

// Cleanup removes everything the job left behind.
func (w *Workspace) Cleanup() error {
	return os.RemoveAll(w.Root)
}

func runGit(ctx context.Context, dir string, args []string) error {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %v: %s", strings.Join(args, " "), err, bytes.TrimSpace(out))
	}
	return nil
}
