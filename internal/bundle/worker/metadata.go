package worker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sizepanic/sizepanic/internal/bundle"
)

// installedManifest is the subset of an installed package.json the
// pipeline inspects.
type installedManifest struct {
	Name             string            `json:"name"`
	Version          string            `json:"version"`
	Description      string            `json:"description"`
	License          json.RawMessage   `json:"license"`
	Repository       json.RawMessage   `json:"repository"`
	Homepage         string            `json:"homepage"`
	Keywords         []string          `json:"keywords"`
	Main             string            `json:"main"`
	Module           string            `json:"module"`
	Browser          json.RawMessage   `json:"browser"`
	Exports          json.RawMessage   `json:"exports"`
	Dependencies     map[string]string `json:"dependencies"`
	PeerDependencies map[string]string `json:"peerDependencies"`
}

// readInstalledManifest loads the package's own manifest from the sandbox.
// The registry's view can lag or disagree; what got installed is the truth.
func readInstalledManifest(workDir, name string) (*installedManifest, error) {
	path := filepath.Join(workDir, "node_modules", filepath.FromSlash(name), "package.json")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, bundle.NewPipelineError(bundle.CodeInstallFailed,
			fmt.Sprintf("installed package has no readable manifest: %v", err))
	}

	var manifest installedManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, bundle.NewPipelineError(bundle.CodeInstallFailed,
			fmt.Sprintf("installed package manifest is not valid JSON: %v", err))
	}

	return &manifest, nil
}

// extractMetadata derives the read-only response metadata from an
// installed manifest.
func extractMetadata(m *installedManifest, registryURL string) *bundle.PackageMetadata {
	return &bundle.PackageMetadata{
		Name:                m.Name,
		Version:             m.Version,
		Description:         m.Description,
		License:             licenseString(m.License),
		Repository:          repositoryURL(m.Repository),
		Homepage:            m.Homepage,
		Keywords:            m.Keywords,
		DependencyCount:     len(m.Dependencies),
		PeerDependencyCount: len(m.PeerDependencies),
		RegistryURL:         strings.TrimSuffix(registryURL, "/") + "/" + m.Name,
		Subpaths:            m.exportedSubpaths(),
	}
}

// dependencyNames returns the package's own runtime and peer dependencies,
// sorted. These are marked external during bundling.
func (m *installedManifest) dependencyNames() []string {
	names := make([]string, 0, len(m.Dependencies)+len(m.PeerDependencies))
	for name := range m.Dependencies {
		names = append(names, name)
	}
	for name := range m.PeerDependencies {
		if _, dup := m.Dependencies[name]; !dup {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// exportedSubpaths lists the concrete "./" keys of the export map, used as
// candidate entry points in failure guidance. Wildcard patterns are
// skipped; they cannot be suggested verbatim.
func (m *installedManifest) exportedSubpaths() []string {
	exports := m.exportsMap()
	if exports == nil {
		return []string{}
	}

	var subpaths []string
	for key := range exports {
		if strings.HasPrefix(key, "./") && !strings.Contains(key, "*") && key != "./package.json" {
			subpaths = append(subpaths, strings.TrimPrefix(key, "./"))
		}
	}
	sort.Strings(subpaths)
	return subpaths
}

// exportsMap parses the exports field when it is an object; string and
// absent forms return nil.
func (m *installedManifest) exportsMap() map[string]json.RawMessage {
	if len(m.Exports) == 0 {
		return nil
	}

	var exports map[string]json.RawMessage
	if err := json.Unmarshal(m.Exports, &exports); err != nil {
		return nil
	}
	return exports
}

// licenseString handles both the string form and the deprecated
// {type, url} object form of the license field.
func licenseString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var obj struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Type
	}
	return ""
}

// repositoryURL handles both the shorthand string form and the
// {type, url} object form of the repository field.
func repositoryURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.URL
	}
	return ""
}
