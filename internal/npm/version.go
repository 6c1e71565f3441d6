package npm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Latest is the version token used for unpinned requests. It is passed
// through to the installer, which resolves it against the registry's
// dist-tags; the cache keys on the literal token with a shorter TTL.
const Latest = "latest"

// ErrInvalidVersion is returned for version strings that are neither exact
// semantic versions nor valid ranges.
var ErrInvalidVersion = errors.New("invalid version")

// ResolveVersion validates a requested version and returns the token the
// pipeline should use. Empty input and "latest" map to the Latest token;
// exact versions and ranges are returned unchanged.
//
// Degenerate range strings such as "||" or all-whitespace technically parse
// as "match anything" in some range libraries and would silently install an
// arbitrary version. Those are rejected here.
func ResolveVersion(version string) (string, error) {
	if version == "" || version == Latest {
		return Latest, nil
	}

	if strings.TrimFunc(version, func(r rune) bool {
		return r == '|' || r == ' ' || r == '\t'
	}) == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}

	if _, err := semver.StrictNewVersion(strings.TrimPrefix(version, "v")); err == nil {
		return version, nil
	}

	if _, err := semver.NewConstraint(version); err == nil {
		return version, nil
	}

	return "", fmt.Errorf("%w: %q is not an exact semver version or range", ErrInvalidVersion, version)
}

// IsExact reports whether a version token pins a single concrete version.
// Exact results are immutable and can be cached far longer than ranges or
// the latest tag.
func IsExact(version string) bool {
	if version == Latest {
		return false
	}
	_, err := semver.StrictNewVersion(strings.TrimPrefix(version, "v"))
	return err == nil
}
