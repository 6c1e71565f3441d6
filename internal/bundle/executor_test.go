package bundle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The executor re-invokes its own binary, which under go test is the test
// binary. TestMain intercepts the worker invocation and plays the role
// scripted through the environment, so spawn, timeout and output parsing
// run against a real child process.
func TestMain(m *testing.M) {
	for _, arg := range os.Args[1:] {
		if arg == WorkerFlag {
			runWorkerStub()
			return
		}
	}
	os.Exit(m.Run())
}

const workerStubEnv = "SIZEPANIC_WORKER_STUB"

func runWorkerStub() {
	switch os.Getenv(workerStubEnv) {
	case "hang":
		// Survive SIGTERM so the executor has to escalate to SIGKILL.
		signal.Ignore(syscall.SIGTERM)
		for {
			time.Sleep(time.Hour)
		}
	case "crash":
		fmt.Fprintln(os.Stderr, "worker stub exiting abnormally")
		os.Exit(3)
	case "garbage":
		fmt.Print("this is not a json response")
		os.Exit(0)
	default:
		var req BundleRequest
		if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
			os.Exit(1)
		}
		resp := BundleResponse{
			Success:   true,
			Sizes:     &BundleSizes{Raw: 1234, Gzip: 500, Brotli: 420},
			Metadata:  &PackageMetadata{Name: req.PackageName, Version: "1.0.0", Subpaths: []string{}},
			JobID:     req.JobID,
			Timestamp: time.Now().UnixMilli(),
		}
		if err := json.NewEncoder(os.Stdout).Encode(resp); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}
}

func TestProcessExecutorSuccess(t *testing.T) {
	t.Setenv(workerStubEnv, "")
	executor := NewProcessExecutor(5*time.Second, 200*time.Millisecond, t.TempDir())

	req := BundleRequest{PackageName: "lodash", PackageVersion: "4.17.21", JobID: "exec-job-ok"}
	resp := executor.Run(context.Background(), req)

	assert.True(t, resp.Success)
	require.NotNil(t, resp.Sizes)
	assert.Equal(t, int64(500), resp.Sizes.Gzip)
	assert.Equal(t, "exec-job-ok", resp.JobID)
}

func TestProcessExecutorHardTimeout(t *testing.T) {
	t.Setenv(workerStubEnv, "hang")

	root := t.TempDir()
	const jobID = "exec-job-hang"
	sandbox := SandboxDir(root, jobID)
	require.NoError(t, os.MkdirAll(sandbox, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sandbox, "leftover.js"), []byte("x"), 0o644))

	jobTimeout := 400 * time.Millisecond
	killGrace := 200 * time.Millisecond
	executor := NewProcessExecutor(jobTimeout, killGrace, root)

	started := time.Now()
	resp := executor.Run(context.Background(), BundleRequest{PackageName: "stuck", JobID: jobID})
	elapsed := time.Since(started)

	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeTimeout, resp.Error.Code)

	// The response must land within the hard budget plus the kill grace,
	// with headroom for spawning and reaping the child.
	assert.Less(t, elapsed, jobTimeout+killGrace+2*time.Second)

	_, err := os.Stat(sandbox)
	assert.True(t, os.IsNotExist(err), "sandbox removed even when the worker never exits")
}

func TestProcessExecutorContextCancellation(t *testing.T) {
	t.Setenv(workerStubEnv, "hang")
	executor := NewProcessExecutor(10*time.Second, 100*time.Millisecond, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	started := time.Now()
	resp := executor.Run(ctx, BundleRequest{PackageName: "stuck", JobID: "exec-job-cancel"})

	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeTimeout, resp.Error.Code)
	assert.Less(t, time.Since(started), 5*time.Second)
}

func TestProcessExecutorWorkerCrash(t *testing.T) {
	t.Setenv(workerStubEnv, "crash")
	executor := NewProcessExecutor(5*time.Second, 200*time.Millisecond, t.TempDir())

	resp := executor.Run(context.Background(), BundleRequest{PackageName: "boom", JobID: "exec-job-crash"})

	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeUnknown, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "exited abnormally")
}

func TestProcessExecutorUnparsableOutput(t *testing.T) {
	t.Setenv(workerStubEnv, "garbage")
	executor := NewProcessExecutor(5*time.Second, 200*time.Millisecond, t.TempDir())

	resp := executor.Run(context.Background(), BundleRequest{PackageName: "noise", JobID: "exec-job-garbage"})

	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeUnknown, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "parse")
}
