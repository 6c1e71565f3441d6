package bundle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSandboxDir(t *testing.T) {
	assert.Equal(t, filepath.Join("/srv/sandboxes", "job-abc"), SandboxDir("/srv/sandboxes", "abc"))

	// Empty root falls back to the system temp directory.
	assert.Equal(t, filepath.Join(os.TempDir(), "job-abc"), SandboxDir("", "abc"))
}

func TestCleanupSandbox(t *testing.T) {
	root := t.TempDir()
	dir := SandboxDir(root, "job1")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte("{}"), 0o644))

	require.NoError(t, CleanupSandbox(root, "job1"))
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	// Cleaning a sandbox that never existed is not an error.
	assert.NoError(t, CleanupSandbox(root, "never-created"))
}
