package worker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sizepanic/sizepanic/internal/bundle"
	"github.com/sizepanic/sizepanic/internal/config"
)

func newTestPipeline() *Pipeline {
	return New(config.BundleConfig{}, bundle.DefaultRules())
}

// installFake places a package directly into the sandbox's node_modules so
// bundling can be exercised without a real npm install.
func installFake(t *testing.T, workDir, name, manifest string, files map[string]string) {
	t.Helper()
	pkgDir := filepath.Join(workDir, "node_modules", filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(pkgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "package.json"), []byte(manifest), 0o644))
	for path, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(pkgDir, path), []byte(content), 0o644))
	}
}

func TestBundlePackage(t *testing.T) {
	p := newTestPipeline()

	t.Run("bundles a package with a default export", func(t *testing.T) {
		workDir := t.TempDir()
		installFake(t, workDir, "tiny-lib", `{"name":"tiny-lib","version":"1.0.0","main":"index.js"}`, map[string]string{
			"index.js": "export function add(a, b) { return a + b; }\nexport default add;\n",
		})

		code, err := p.bundlePackage(workDir, "tiny-lib", "", nil)
		require.NoError(t, err)
		assert.NotEmpty(t, code)
	})

	t.Run("falls back to star-only when no default export exists", func(t *testing.T) {
		workDir := t.TempDir()
		installFake(t, workDir, "named-only", `{"name":"named-only","version":"1.0.0","main":"index.js"}`, map[string]string{
			"index.js": "export const answer = 42;\n",
		})

		code, err := p.bundlePackage(workDir, "named-only", "", nil)
		require.NoError(t, err)
		assert.Contains(t, code, "42")
	})

	t.Run("bundles a subpath", func(t *testing.T) {
		workDir := t.TempDir()
		installFake(t, workDir, "multi", `{"name":"multi","version":"1.0.0","exports":{".":"./index.js","./extra":"./extra.js"}}`, map[string]string{
			"index.js": "export const root = true;\n",
			"extra.js": "export const extra = 'extra-payload';\n",
		})

		code, err := p.bundlePackage(workDir, "multi", "./extra", nil)
		require.NoError(t, err)
		assert.Contains(t, code, "extra-payload")
	})

	t.Run("declared dependencies stay external", func(t *testing.T) {
		workDir := t.TempDir()
		installFake(t, workDir, "wrapper", `{"name":"wrapper","version":"1.0.0","main":"index.js"}`, map[string]string{
			"index.js": "import dep from \"some-dep\";\nexport default function () { return dep; }\n",
		})

		code, err := p.bundlePackage(workDir, "wrapper", "", []string{"some-dep"})
		require.NoError(t, err)
		assert.Contains(t, code, "some-dep", "external import survives as an import statement")
	})

	t.Run("unresolved bare imports become external after a retry", func(t *testing.T) {
		workDir := t.TempDir()
		installFake(t, workDir, "loose", `{"name":"loose","version":"1.0.0","main":"index.js"}`, map[string]string{
			"index.js": "import ghost from \"undeclared-dep\";\nexport default ghost;\n",
		})

		code, err := p.bundlePackage(workDir, "loose", "", nil)
		require.NoError(t, err)
		assert.Contains(t, code, "undeclared-dep")
	})

	t.Run("node builtin usage is classified", func(t *testing.T) {
		workDir := t.TempDir()
		installFake(t, workDir, "server-thing", `{"name":"server-thing","version":"1.0.0","main":"index.js"}`, map[string]string{
			"index.js": "import fs from \"fs\";\nexport default fs.readFileSync;\n",
		})

		_, err := p.bundlePackage(workDir, "server-thing", "", nil)
		require.Error(t, err)
		assert.Equal(t, bundle.CodeNodeBuiltins, bundle.CodeFor(err))
	})

	t.Run("broken internal import is a bundle failure", func(t *testing.T) {
		workDir := t.TempDir()
		installFake(t, workDir, "broken", `{"name":"broken","version":"1.0.0","main":"index.js"}`, map[string]string{
			"index.js": "import missing from \"./does-not-exist.js\";\nexport default missing;\n",
		})

		_, err := p.bundlePackage(workDir, "broken", "", nil)
		require.Error(t, err)
		assert.Equal(t, bundle.CodeBundleFailed, bundle.CodeFor(err))
	})
}

func TestWriteEntryPoint(t *testing.T) {
	workDir := t.TempDir()

	path, err := writeEntryPoint(workDir, "lodash/debounce", true)
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `export * from "lodash/debounce";`)
	assert.Contains(t, string(content), `export { default } from "lodash/debounce";`)

	path, err = writeEntryPoint(workDir, "lodash", false)
	require.NoError(t, err)
	content, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "default")
}

func TestIsNodeBuiltin(t *testing.T) {
	assert.True(t, isNodeBuiltin("fs"))
	assert.True(t, isNodeBuiltin("node:fs"))
	assert.True(t, isNodeBuiltin("node:anything"))
	assert.True(t, isNodeBuiltin("child_process"))
	assert.False(t, isNodeBuiltin("lodash"))
	assert.False(t, isNodeBuiltin("fs-extra"))
}

func TestFindMissingExternals(t *testing.T) {
	errs := []api.Message{
		{Text: `Could not resolve "left-pad"`},
		{Text: `Could not resolve "fs"`},
		{Text: `Could not resolve "./internal/helper"`},
		{Text: `Could not resolve "left-pad"`},
		{Text: `Could not resolve "already-external"`},
		{Text: `Expected ";" but found "}"`},
	}

	missing := findMissingExternals(errs, []string{"already-external"})
	assert.Equal(t, []string{"left-pad"}, missing)
}

func TestFindNodeBuiltin(t *testing.T) {
	errs := []api.Message{
		{Text: `Could not resolve "lodash"`},
		{Text: `Could not resolve "node:crypto"`},
	}
	assert.Equal(t, "node:crypto", findNodeBuiltin(errs))

	assert.Equal(t, "", findNodeBuiltin([]api.Message{
		{Text: `Could not resolve "lodash"`},
	}))
}
