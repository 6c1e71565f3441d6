package worker

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sizepanic/sizepanic/internal/bundle"
)

func TestValidateRootEntry(t *testing.T) {
	tests := []struct {
		name     string
		manifest *installedManifest
		wantErr  bool
	}{
		{
			name:     "main field",
			manifest: &installedManifest{Main: "index.js"},
		},
		{
			name:     "module field",
			manifest: &installedManifest{Module: "index.mjs"},
		},
		{
			name:     "browser string field",
			manifest: &installedManifest{Browser: json.RawMessage(`"browser.js"`)},
		},
		{
			name:     "browser map alone is not an entry point but exports may still resolve",
			manifest: &installedManifest{Browser: json.RawMessage(`{"./node.js":"./browser.js"}`)},
		},
		{
			name:     "no exports map falls through to resolver conventions",
			manifest: &installedManifest{},
		},
		{
			name:     "exports with root key",
			manifest: &installedManifest{Exports: json.RawMessage(`{".":"./index.js","./extra":"./extra.js"}`)},
		},
		{
			name:     "exports without root key",
			manifest: &installedManifest{Name: "widget", Exports: json.RawMessage(`{"./button":"./button.js","./input":"./input.js"}`)},
			wantErr:  true,
		},
		{
			name:     "exports with only package.json",
			manifest: &installedManifest{Name: "cli-tool", Exports: json.RawMessage(`{"./package.json":"./package.json"}`)},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRootEntry(tt.manifest)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, bundle.CodeNoEntryPoint, bundle.CodeFor(err))
		})
	}
}

func TestValidateRootEntrySuggestsSubpaths(t *testing.T) {
	manifest := &installedManifest{
		Name:    "widget",
		Exports: json.RawMessage(`{"./button":"./button.js","./input":"./input.js"}`),
	}

	err := validateRootEntry(manifest)
	require.Error(t, err)

	var pe *bundle.PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, []string{"button", "input"}, pe.Subpaths)
	assert.Contains(t, pe.Message, "widget/button")
}
