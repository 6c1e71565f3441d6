package worker

import (
	"encoding/json"
	"fmt"

	"github.com/sizepanic/sizepanic/internal/bundle"
)

// validateRootEntry checks that a root import of the package can resolve
// to something. Packages that only publish named subpath exports would
// otherwise surface as an opaque bundler error; failing fast here lets the
// response carry the candidate subpaths instead.
func validateRootEntry(m *installedManifest) error {
	if m.Main != "" || m.Module != "" || browserIsString(m.Browser) {
		return nil
	}

	exports := m.exportsMap()
	if exports == nil {
		// No export map and no main field: let the bundler's resolver
		// have the final word (index.js conventions still apply).
		return nil
	}

	if _, ok := exports["."]; ok {
		return nil
	}

	subpaths := m.exportedSubpaths()
	if len(subpaths) > 0 {
		err := bundle.NewPipelineError(bundle.CodeNoEntryPoint,
			fmt.Sprintf("Package doesn't have a default export. Try a subpath: %s/%s", m.Name, subpaths[0]))
		err.Subpaths = subpaths
		return err
	}

	return bundle.NewPipelineError(bundle.CodeNoEntryPoint,
		"Package doesn't have a recognizable entry point. It may be a CLI tool, a types-only package, or use a non-standard build.")
}

// browserIsString reports whether the browser field is the entry-point
// string form rather than the replacement-map form.
func browserIsString(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var s string
	return json.Unmarshal(raw, &s) == nil
}
