package bundle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// WorkerFlag selects worker mode when the orchestrator re-invokes its own
// binary. An explicit flag keeps worker selection independent of how the
// orchestrator process itself was launched.
const WorkerFlag = "--bundle-worker"

// Runner executes one bundle job and always produces a response, never an
// error: every failure mode is mapped into the failure shape.
type Runner interface {
	Run(ctx context.Context, req BundleRequest) BundleResponse
}

// ProcessExecutor runs each job in a freshly spawned isolated worker
// process, enforcing a hard wall-clock timeout with escalating
// termination. It exclusively owns the child process and its timers for
// the job's lifetime.
type ProcessExecutor struct {
	jobTimeout  time.Duration
	killGrace   time.Duration
	sandboxRoot string
}

// NewProcessExecutor creates an executor with the given timeout budget.
func NewProcessExecutor(jobTimeout, killGrace time.Duration, sandboxRoot string) *ProcessExecutor {
	return &ProcessExecutor{
		jobTimeout:  jobTimeout,
		killGrace:   killGrace,
		sandboxRoot: sandboxRoot,
	}
}

// Run spawns the worker, feeds it the request on stdin and parses the
// single JSON response from stdout. Whatever happens to the child, the
// job's sandbox is removed before returning.
func (e *ProcessExecutor) Run(ctx context.Context, req BundleRequest) BundleResponse {
	started := time.Now()

	defer func() {
		if err := CleanupSandbox(e.sandboxRoot, req.JobID); err != nil {
			log.Error().Err(err).Str("job_id", req.JobID).Msg("Sandbox cleanup failed")
		}
	}()

	payload, err := json.Marshal(req)
	if err != nil {
		return Failed(req, CodeUnknown, fmt.Sprintf("failed to serialize request: %v", err), started)
	}

	executable, err := os.Executable()
	if err != nil {
		return Failed(req, CodeUnknown, fmt.Sprintf("failed to locate worker executable: %v", err), started)
	}

	cmd := exec.Command(executable, WorkerFlag)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Failed(req, CodeUnknown, fmt.Sprintf("failed to spawn worker process: %v", err), started)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(e.jobTimeout)
	defer timer.Stop()

	var waitErr error
	timedOut := false

	select {
	case waitErr = <-done:
	case <-ctx.Done():
		timedOut = true
		e.terminate(cmd, done)
	case <-timer.C:
		timedOut = true
		e.terminate(cmd, done)
	}

	if timedOut {
		log.Warn().
			Str("job_id", req.JobID).
			Str("package", req.PackageName).
			Dur("timeout", e.jobTimeout).
			Msg("Bundle job exceeded hard timeout")
		return Failed(req, CodeTimeout, fmt.Sprintf("Analysis exceeded %s timeout", e.jobTimeout), started)
	}

	if waitErr != nil {
		log.Error().
			Err(waitErr).
			Str("job_id", req.JobID).
			Str("stderr", truncate(stderr.String(), 500)).
			Msg("Worker process failed")
		return Failed(req, CodeUnknown, fmt.Sprintf("worker process exited abnormally: %v", waitErr), started)
	}

	var resp BundleResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		log.Error().
			Err(err).
			Str("job_id", req.JobID).
			Msg("Failed to parse worker output")
		return Failed(req, CodeUnknown, "failed to parse worker process output", started)
	}

	return resp
}

// terminate asks the child to exit and force-kills it after the grace
// period. Always drains the wait channel so the child is fully reaped.
func (e *ProcessExecutor) terminate(cmd *exec.Cmd, done <-chan error) {
	if cmd.Process == nil {
		return
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		_ = cmd.Process.Kill()
		<-done
		return
	}

	select {
	case <-done:
	case <-time.After(e.killGrace):
		_ = cmd.Process.Kill()
		<-done
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
