package worker

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// LogFunc receives one output line as it is produced. stream is "stdout" or
// "stderr".
type LogFunc func(stream string, line string)

// RunSpec describes one command execution inside a prepared workspace.
type RunSpec struct {
	Dir     string
	Command string
	Env     []string
	Timeout time.Duration
}

// RunResult is the outcome of a completed execution. TimedOut is set when the
// run's own deadline killed the command.
type RunResult struct {
	ExitCode   int
	TimedOut   bool
	DurationMs int64
}

// Run executes the command with `sh -c` in spec.Dir, streaming every output
// line through logFn. A non-zero exit is not an error; the returned error
// means the command could not be run at all.
func Run(ctx context.Context, spec RunSpec, logFn LogFunc) (RunResult, error) {
	start := time.Now()
	runCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "sh", "-c", spec.Command)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	stdoutPipe, _ := cmd.StdoutPipe()
	stderrPipe, _ := cmd.StderrPipe()

	if err := cmd.Start(); err != nil {
		return RunResult{ExitCode: -1, DurationMs: time.Since(start).Milliseconds()}, err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		streamLines(stdoutPipe, "stdout", logFn)
	}()
	go func() {
		defer wg.Done()
		streamLines(stderrPipe, "stderr", logFn)
	}()

	// Drain both pipes before Wait closes them.
	wg.Wait()
	err := cmd.Wait()

	res := RunResult{
		ExitCode:   exitCode(err),
		TimedOut:   spec.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded),
		DurationMs: time.Since(start).Milliseconds(),
	}
	return res, nil
}

func streamLines(r io.Reader, stream string, logFn LogFunc) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if logFn != nil {
			logFn(stream, scanner.Text())
		}
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
