package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/refbatch/refbatch/internal/client"
	"github.com/refbatch/refbatch/internal/models"
)

// envFlag collects repeated --env KEY=VALUE options.
type envFlag models.EnvMap

func (e envFlag) String() string {
	parts := make([]string, 0, len(e))
	for k, v := range e {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (e envFlag) Set(value string) error {
	k, v, ok := strings.Cut(value, "=")
	if !ok || k == "" {
		return fmt.Errorf("want KEY=VALUE, got %q", value)
	}
	e[k] = v
	return nil
}

func main() {
	var (
		endpoint  = flag.String("endpoint", envOr("REFBATCH_ENDPOINT", "http://localhost:8080"), "refbatch API endpoint")
		name      = flag.String("name", "", "name of the job")
		region    = flag.String("region", models.DefaultRegion, "region to run the job in")
		jobType   = flag.String("job-type", models.DefaultJobType, "instance class to run on")
		sourceRef = flag.String("source-ref", os.Getenv("REFBATCH_SOURCE_REF"), "branch or PR-<n> ref to build (required)")
		workDir   = flag.String("work-dir", ".", "working directory inside the checkout")
		remote    = flag.String("remote", os.Getenv("REFBATCH_REMOTE"), "remote repository URL")
		command   = flag.String("command", "", "command to run (required)")
		headRef   = flag.String("head-ref", os.Getenv("REFBATCH_HEAD_REF"), "pull request head branch, when known")
		headRepo  = flag.String("head-repo", os.Getenv("REFBATCH_HEAD_REPO"), "pull request head repository URL, when known")
		timeout   = flag.Int("timeout", 0, "job timeout in seconds, 0 for none")
		wait      = flag.Bool("wait", false, "block until the job reaches a terminal state")
		interval  = flag.Duration("poll-interval", 5*time.Second, "status poll interval with --wait")
		waitMax   = flag.Duration("wait-timeout", 0, "give up waiting after this long, 0 for never")
		logFile   = flag.String("log-file", "", "write the job log here instead of stdout")
	)
	env := envFlag{}
	flag.Var(env, "env", "extra KEY=VALUE for the job environment (repeatable)")
	flag.Parse()

	if *sourceRef == "" || *command == "" {
		fmt.Fprintln(os.Stderr, "both --source-ref and --command are required")
		flag.Usage()
		os.Exit(2)
	}
	if *remote == "" {
		fmt.Fprintln(os.Stderr, "no remote repository: set --remote or REFBATCH_REMOTE")
		os.Exit(2)
	}

	source := client.ResolveSource(client.CIEvent{
		Branch:      *sourceRef,
		HeadRef:     *headRef,
		HeadRepoURL: *headRepo,
	}, *remote)

	ctx := context.Background()
	api := client.New(*endpoint)

	accepted, err := api.Submit(ctx, models.JobRequest{
		Name:       *name,
		Region:     *region,
		JobType:    *jobType,
		SourceRef:  source.Ref,
		WorkDir:    *workDir,
		RemoteURL:  source.Remote,
		Command:    *command,
		Env:        models.EnvMap(env),
		TimeoutSec: *timeout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "submit failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Submitted job %s to %s/%s queue\n", accepted.JobID, *region, accepted.Queue)

	if !*wait {
		return
	}

	waitCtx := ctx
	if *waitMax > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, *waitMax)
		defer cancel()
	}

	job, err := api.WaitForTerminal(waitCtx, accepted.JobID, *interval, func(from, to models.JobStatus) {
		fmt.Printf("Job %s is %s\n", accepted.JobID, to)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "wait failed: %v\n", err)
		if errors.Is(err, context.DeadlineExceeded) {
			// Grab whatever output exists for the postmortem.
			if logErr := writeLog(ctx, api, accepted.JobID, *logFile); logErr != nil {
				fmt.Fprintf(os.Stderr, "fetch log: %v\n", logErr)
			}
		}
		os.Exit(1)
	}

	if err := writeLog(ctx, api, accepted.JobID, *logFile); err != nil {
		fmt.Fprintf(os.Stderr, "fetch log: %v\n", err)
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Job [%s - %s] %s\n", job.Name, job.ID, job.Status)
	if job.Error != "" {
		fmt.Printf("  %s\n", job.Error)
	}

	if job.Status != models.JobSucceeded {
		os.Exit(1)
	}
}

// writeLog downloads the job output no matter how the job ended. Without a
// log file it goes to stdout, so CI systems capture it in the step output.
func writeLog(ctx context.Context, api *client.Client, jobID, path string) error {
	if path != "" {
		if err := api.DownloadLog(ctx, jobID, path); err != nil {
			if errors.Is(err, client.ErrNoLog) {
				fmt.Println("Job produced no output")
				return nil
			}
			return err
		}
		fmt.Printf("Log written to %s\n", path)
		return nil
	}

	content, err := api.Log(ctx, jobID)
	if err != nil {
		if errors.Is(err, client.ErrNoLog) {
			fmt.Println("Job produced no output")
			return nil
		}
		return err
	}
	fmt.Println(strings.Repeat("=", 80))
	os.Stdout.Write(content)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
