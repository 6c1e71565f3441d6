package bundle

import (
	"os"
	"path/filepath"
)

// SandboxDir returns the ephemeral working directory for a job. Both the
// orchestrator (for post-mortem cleanup) and the worker (for install and
// bundling) derive it the same way from the job ID.
func SandboxDir(root, jobID string) string {
	if root == "" {
		root = os.TempDir()
	}
	return filepath.Join(root, "job-"+jobID)
}

// CleanupSandbox removes a job's sandbox directory and everything in it.
func CleanupSandbox(root, jobID string) error {
	return os.RemoveAll(SandboxDir(root, jobID))
}
