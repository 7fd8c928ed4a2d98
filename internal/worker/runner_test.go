package worker

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type lineRecorder struct {
	mu    sync.Mutex
	lines map[string][]string
}

func newLineRecorder() *lineRecorder {
	return &lineRecorder{lines: make(map[string][]string)}
}

func (r *lineRecorder) record(stream, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[stream] = append(r.lines[stream], line)
}

func (r *lineRecorder) stream(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines[name]...)
}

func TestRunCapturesBothStreams(t *testing.T) {
	rec := newLineRecorder()
	res, err := Run(context.Background(), RunSpec{
		Dir:     t.TempDir(),
		Command: "echo one; echo two 1>&2; echo three",
	}, rec.record)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code = %d, want 0", res.ExitCode)
	}

	stdout := rec.stream("stdout")
	if len(stdout) != 2 || stdout[0] != "one" || stdout[1] != "three" {
		t.Errorf("stdout = %v, want [one three]", stdout)
	}
	stderr := rec.stream("stderr")
	if len(stderr) != 1 || stderr[0] != "two" {
		t.Errorf("stderr = %v, want [two]", stderr)
	}
}

func TestRunReportsExitCode(t *testing.T) {
	res, err := Run(context.Background(), RunSpec{Dir: t.TempDir(), Command: "exit 3"}, nil)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
	if res.TimedOut {
		t.Error("run should not be marked timed out")
	}
}

func TestRunTimeout(t *testing.T) {
	start := time.Now()
	res, err := Run(context.Background(), RunSpec{
		Dir:     t.TempDir(),
		Command: "sleep 5",
		Timeout: 100 * time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if !res.TimedOut {
		t.Fatal("expected the run to time out")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("timeout took %v, the command was not killed", elapsed)
	}
	if res.ExitCode == 0 {
		t.Error("a killed command should not report exit 0")
	}
}

func TestRunUsesWorkDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "marker"), []byte("here"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := newLineRecorder()
	res, err := Run(context.Background(), RunSpec{Dir: dir, Command: "cat marker"}, rec.record)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code = %d, want 0", res.ExitCode)
	}
	stdout := rec.stream("stdout")
	if len(stdout) != 1 || stdout[0] != "here" {
		t.Errorf("stdout = %v, want [here]", stdout)
	}
}

func TestRunPassesEnv(t *testing.T) {
	rec := newLineRecorder()
	_, err := Run(context.Background(), RunSpec{
		Dir:     t.TempDir(),
		Command: "echo $REFBATCH_TEST_VALUE",
		Env:     []string{"REFBATCH_TEST_VALUE=hello"},
	}, rec.record)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	stdout := rec.stream("stdout")
	if len(stdout) != 1 || stdout[0] != "hello" {
		t.Errorf("stdout = %v, want [hello]", stdout)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res, err := Run(ctx, RunSpec{Dir: t.TempDir(), Command: "sleep 5"}, nil)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatal("cancel did not kill the command")
	}
	if res.TimedOut {
		t.Error("cancellation must not look like a timeout")
	}
	if res.ExitCode == 0 {
		t.Error("a killed command should not report exit 0")
	}
}

func TestRunStartFailure(t *testing.T) {
	_, err := Run(context.Background(), RunSpec{
		Dir:     filepath.Join(t.TempDir(), "does-not-exist"),
		Command: "true",
	}, nil)
	if err == nil {
		t.Fatal("expected an error for a missing working directory")
	}
}
