package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/sizepanic/sizepanic/internal/bundle"
	"github.com/sizepanic/sizepanic/internal/npm"
)

const entryFileName = "__bundle_entry__.js"

// maxBundleAttempts bounds the retry loop that grows the external list
// from resolver errors. Without a cap a pathological package could keep
// the worker re-bundling until the hard job timeout.
const maxBundleAttempts = 4

var unresolvedPattern = regexp.MustCompile(`Could not resolve "([^"]+)"`)

// nodeBuiltins are the runtime modules a browser bundle cannot provide.
// An unresolved import of one of these means the package is server-side.
var nodeBuiltins = map[string]bool{
	"assert": true, "async_hooks": true, "buffer": true, "child_process": true,
	"cluster": true, "console": true, "constants": true, "crypto": true,
	"dgram": true, "diagnostics_channel": true, "dns": true, "domain": true,
	"events": true, "fs": true, "http": true, "http2": true, "https": true,
	"inspector": true, "module": true, "net": true, "os": true, "path": true,
	"perf_hooks": true, "process": true, "punycode": true, "querystring": true,
	"readline": true, "repl": true, "stream": true, "string_decoder": true,
	"timers": true, "tls": true, "trace_events": true, "tty": true, "url": true,
	"util": true, "v8": true, "vm": true, "wasi": true, "worker_threads": true,
	"zlib": true,
}

// bundlePackage builds a minified browser bundle of the package via a
// synthetic entry module that re-exports its public surface. Strategy:
// star+default first; if the only failure is a missing default export,
// retry star-only. Unresolved bare imports that are not node builtins are
// added to the external list and the build retried, bounded by
// maxBundleAttempts in total.
func (p *Pipeline) bundlePackage(workDir, name, subpath string, externals []string) (string, error) {
	importPath := name
	if normalized := npm.NormalizeSubpath(subpath); normalized != "" {
		importPath = name + "/" + normalized
	}

	external := append([]string{}, externals...)
	includeDefault := true

	for attempt := 0; attempt < maxBundleAttempts; attempt++ {
		entryPath, err := writeEntryPoint(workDir, importPath, includeDefault)
		if err != nil {
			return "", bundle.NewPipelineError(bundle.CodeUnknown, fmt.Sprintf("failed to write entry point: %v", err))
		}

		result := api.Build(api.BuildOptions{
			EntryPoints:       []string{entryPath},
			AbsWorkingDir:     workDir,
			Bundle:            true,
			Write:             false,
			Platform:          api.PlatformBrowser,
			Format:            api.FormatESModule,
			MinifyWhitespace:  true,
			MinifyIdentifiers: true,
			MinifySyntax:      true,
			External:          external,
			Define:            map[string]string{"process.env.NODE_ENV": `"production"`},
			LogLevel:          api.LogLevelSilent,
		})

		if len(result.Errors) == 0 {
			if len(result.OutputFiles) == 0 {
				return "", bundle.NewPipelineError(bundle.CodeBundleFailed, "bundler produced no output")
			}
			return string(result.OutputFiles[0].Contents), nil
		}

		messages := joinMessages(result.Errors)

		// A package without a default export fails the star+default entry
		// with a specific resolver error; the star-only entry is the
		// legitimate shape for it.
		if includeDefault && strings.Contains(messages, `No matching export`) && strings.Contains(messages, `for import "default"`) {
			includeDefault = false
			continue
		}

		if builtin := findNodeBuiltin(result.Errors); builtin != "" {
			return "", bundle.NewPipelineError(bundle.CodeNodeBuiltins,
				fmt.Sprintf("Package uses the Node.js built-in module %q and cannot be bundled for browsers. It's likely a server-side or CLI tool.", builtin))
		}

		if missing := findMissingExternals(result.Errors, external); len(missing) > 0 {
			log.Debug().Strs("modules", missing).Msg("Marking unresolved imports as external and retrying")
			external = append(external, missing...)
			continue
		}

		return "", bundle.NewPipelineError(bundle.CodeBundleFailed, messages)
	}

	return "", bundle.NewPipelineError(bundle.CodeBundleFailed,
		fmt.Sprintf("bundling did not converge within %d attempts", maxBundleAttempts))
}

// writeEntryPoint generates the synthetic module the bundler starts from.
func writeEntryPoint(workDir, importPath string, includeDefault bool) (string, error) {
	lines := []string{fmt.Sprintf("export * from %q;", importPath)}
	if includeDefault {
		lines = append(lines, fmt.Sprintf("export { default } from %q;", importPath))
	}

	entryPath := filepath.Join(workDir, entryFileName)
	if err := os.WriteFile(entryPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		return "", err
	}
	return entryPath, nil
}

// findNodeBuiltin returns the first unresolved module that is a Node
// runtime built-in, or "".
func findNodeBuiltin(errs []api.Message) string {
	for _, module := range unresolvedModules(errs) {
		if isNodeBuiltin(module) {
			return module
		}
	}
	return ""
}

// findMissingExternals returns unresolved bare specifiers that are neither
// node builtins nor already external. Relative paths stay out: a broken
// internal file is a real bundle failure, not a dependency boundary.
func findMissingExternals(errs []api.Message, external []string) []string {
	known := make(map[string]bool, len(external))
	for _, name := range external {
		known[name] = true
	}

	var missing []string
	for _, module := range unresolvedModules(errs) {
		if isNodeBuiltin(module) || known[module] {
			continue
		}
		if strings.HasPrefix(module, ".") || strings.HasPrefix(module, "/") {
			continue
		}
		known[module] = true
		missing = append(missing, module)
	}
	return missing
}

func unresolvedModules(errs []api.Message) []string {
	var modules []string
	for _, msg := range errs {
		if match := unresolvedPattern.FindStringSubmatch(msg.Text); match != nil {
			modules = append(modules, match[1])
		}
	}
	return modules
}

func isNodeBuiltin(module string) bool {
	return nodeBuiltins[strings.TrimPrefix(module, "node:")] || strings.HasPrefix(module, "node:")
}

func joinMessages(errs []api.Message) string {
	texts := make([]string, 0, len(errs))
	for _, msg := range errs {
		texts = append(texts, msg.Text)
	}
	return strings.Join(texts, ", ")
}
