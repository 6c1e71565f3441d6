package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sizepanic/sizepanic/internal/bundle"
)

var (
	versionNotFoundPattern = regexp.MustCompile(`No matching version found for (\S+?)@(\S+?)\.?(\s|$)`)
	packageNotFoundPattern = regexp.MustCompile(`404\s+(?:Not Found|'([^']+)' is not in this registry)`)
)

// install creates the sandbox, writes a minimal manifest declaring only
// the target package, and runs a production-only install with scripts
// disabled and peer/optional dependencies omitted. After install, the
// on-disk size is checked against the cap.
func (p *Pipeline) install(ctx context.Context, workDir, name, version string) error {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return bundle.NewPipelineError(bundle.CodeUnknown, fmt.Sprintf("failed to create sandbox: %v", err))
	}

	manifest, err := json.Marshal(map[string]any{
		"name":         "sizepanic-sandbox",
		"private":      true,
		"dependencies": map[string]string{name: version},
	})
	if err != nil {
		return bundle.NewPipelineError(bundle.CodeUnknown, fmt.Sprintf("failed to build sandbox manifest: %v", err))
	}
	if err := os.WriteFile(filepath.Join(workDir, "package.json"), manifest, 0o644); err != nil {
		return bundle.NewPipelineError(bundle.CodeUnknown, fmt.Sprintf("failed to write sandbox manifest: %v", err))
	}

	if err := p.runInstall(ctx, workDir); err != nil {
		return err
	}

	installed, err := directorySize(filepath.Join(workDir, "node_modules"))
	if err != nil {
		return bundle.NewPipelineError(bundle.CodeInstallFailed, fmt.Sprintf("failed to measure installed size: %v", err))
	}
	if installed > p.cfg.MaxInstallSize {
		return bundle.NewPipelineError(bundle.CodeSizeLimitExceeded,
			fmt.Sprintf("installed size of %d bytes exceeds the %d byte limit", installed, p.cfg.MaxInstallSize))
	}

	return nil
}

// runInstall executes the package manager with install scripts disabled
// (the one line of defense against arbitrary code running outside the
// sandbox lifetime) under its own time budget.
func (p *Pipeline) runInstall(ctx context.Context, workDir string) error {
	installCtx, cancel := context.WithTimeout(ctx, p.cfg.InstallTimeout)
	defer cancel()

	cmd := exec.CommandContext(installCtx, p.cfg.NpmBinary,
		"install",
		"--omit=dev",
		"--omit=peer",
		"--omit=optional",
		"--ignore-scripts",
		"--no-save",
		"--no-audit",
		"--no-fund",
		"--loglevel=error",
		"--registry="+p.registry.BaseURL(),
	)
	cmd.Dir = workDir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()

	if installCtx.Err() == context.DeadlineExceeded {
		return bundle.NewPipelineError(bundle.CodeInstallFailed, "Package installation timed out")
	}
	if err != nil {
		message := parseInstallError(stderr.String())
		log.Debug().Str("stderr", truncate(stderr.String(), 500)).Msg("Install failed")
		return bundle.NewPipelineError(bundle.CodeInstallFailed, message)
	}

	return nil
}

// parseInstallError distills npm's stderr into one of the stable install
// failure messages. The cache keys its TTL decision off the "not found"
// and "No version of" phrases, so they are part of the contract.
func parseInstallError(stderr string) string {
	if match := versionNotFoundPattern.FindStringSubmatch(stderr); match != nil {
		return fmt.Sprintf("No version of %q satisfies %q", match[1], match[2])
	}

	if match := packageNotFoundPattern.FindStringSubmatch(stderr); match != nil {
		name := match[1]
		if name == "" {
			name = extractNotFoundName(stderr)
		}
		return fmt.Sprintf("Package %q not found on npm", name)
	}

	return "Install failed: " + truncate(strings.TrimSpace(stderr), 300)
}

// extractNotFoundName pulls the package name out of npm's 404 URL line.
func extractNotFoundName(stderr string) string {
	pattern := regexp.MustCompile(`404\s+Not Found\s+-\s+GET\s+\S+/([^/\s]+)`)
	if match := pattern.FindStringSubmatch(stderr); match != nil {
		if name, err := url.PathUnescape(match[1]); err == nil {
			return name
		}
		return match[1]
	}
	return "unknown"
}

// directorySize walks a tree and sums regular file sizes.
func directorySize(dir string) (int64, error) {
	var total int64

	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return total, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
