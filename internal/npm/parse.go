// Package npm handles npm package specifiers, version validation and the
// minimal registry client the analysis pipeline needs.
package npm

import "strings"

// ParsedPackage is the result of splitting a raw specifier into the package
// name and an optional subpath.
type ParsedPackage struct {
	Name    string
	Subpath string // normalized with a leading "./", empty for root imports
}

// ParsePackage splits a raw specifier like "@mui/material/Button" into
// {Name: "@mui/material", Subpath: "./Button"}. Scoped names consume two
// path segments, unscoped names one. Purely syntactic, no validation of the
// name against the registry.
func ParsePackage(raw string) ParsedPackage {
	segments := strings.Split(raw, "/")

	nameSegments := 1
	if strings.HasPrefix(raw, "@") {
		nameSegments = 2
	}
	if nameSegments > len(segments) {
		nameSegments = len(segments)
	}

	name := strings.Join(segments[:nameSegments], "/")
	rest := strings.Join(segments[nameSegments:], "/")

	parsed := ParsedPackage{Name: name}
	if rest != "" {
		parsed.Subpath = "./" + rest
	}
	return parsed
}

// NormalizeSubpath strips the leading "./" from a subpath so it can be
// appended to a package name to form an import path. Returns "" for root.
func NormalizeSubpath(subpath string) string {
	return strings.TrimPrefix(subpath, "./")
}
