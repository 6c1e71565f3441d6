package npm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveVersion(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "empty maps to latest", input: "", want: Latest},
		{name: "latest passes through", input: "latest", want: Latest},
		{name: "exact version", input: "1.2.3", want: "1.2.3"},
		{name: "exact version with v prefix", input: "v1.2.3", want: "v1.2.3"},
		{name: "exact version with prerelease", input: "2.0.0-beta.1", want: "2.0.0-beta.1"},
		{name: "caret range", input: "^1.2.0", want: "^1.2.0"},
		{name: "tilde range", input: "~4.17.0", want: "~4.17.0"},
		{name: "compound range", input: ">=1.0.0 <2.0.0", want: ">=1.0.0 <2.0.0"},
		{name: "or range", input: "^1.0.0 || ^2.0.0", want: "^1.0.0 || ^2.0.0"},
		{name: "garbage rejected", input: "not-a-version", wantErr: true},
		{name: "bare pipes rejected", input: "||", wantErr: true},
		{name: "whitespace rejected", input: "   ", wantErr: true},
		{name: "pipes and whitespace rejected", input: " || \t", wantErr: true},
		{name: "other dist-tags rejected", input: "next", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveVersion(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidVersion)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsExact(t *testing.T) {
	assert.True(t, IsExact("1.2.3"))
	assert.True(t, IsExact("v1.2.3"))
	assert.True(t, IsExact("2.0.0-rc.1"))
	assert.False(t, IsExact("latest"))
	assert.False(t, IsExact("^1.2.3"))
	assert.False(t, IsExact("1.x"))
	assert.False(t, IsExact("1.2"))
}
