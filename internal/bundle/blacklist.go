package bundle

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// RuleConfig describes one filter rule as configuration data. The rule sets
// are policy, not engine logic: they can be replaced wholesale via a YAML
// file without touching code.
type RuleConfig struct {
	Pattern       string `yaml:"pattern"`
	Reason        string `yaml:"reason,omitempty"`
	AllowSubpaths bool   `yaml:"allow_subpaths,omitempty"`
}

// RuleFile is the on-disk shape of a blacklist override file.
type RuleFile struct {
	Unsupported []RuleConfig `yaml:"unsupported"`
	Blacklist   []RuleConfig `yaml:"blacklist"`
}

type compiledRule struct {
	pattern       *regexp.Regexp
	reason        string
	allowSubpaths bool
}

// RuleSet evaluates the suitability filter: category rules first (each with
// a specific reason and an optional subpath escape), then the generic
// blacklist which always blocks.
type RuleSet struct {
	unsupported []compiledRule
	blocked     []compiledRule
}

const genericBlockReason = "This package is not suitable for bundle size analysis"

// defaultUnsupportedRules name categories of packages that structurally
// cannot produce a meaningful browser bundle.
var defaultUnsupportedRules = []RuleConfig{
	{Pattern: `^@types/`, Reason: "Type packages don't usually contain any runtime code."},
	{Pattern: `^(webpack|vite|esbuild|rollup|parcel)$`, Reason: "Build tools are not meant to be bundled - they're used to create bundles.", AllowSubpaths: true},
	{Pattern: `^(typescript|babel|swc)$`, Reason: "Compilers are not meant to be bundled for browsers.", AllowSubpaths: true},
	{Pattern: `^(jest|vitest|mocha|karma)$`, Reason: "Test frameworks run in your tooling, not in a browser bundle."},
	{Pattern: `^(eslint|prettier|stylelint)$`, Reason: "Linters and formatters run in your tooling, not in a browser bundle."},
	{Pattern: `^(aws-sdk|firebase-admin)$`, Reason: "Monolithic server SDKs are not meant to be bundled for browsers.", AllowSubpaths: true},
	{Pattern: `^(electron|node-gyp)$`, Reason: "Desktop frameworks and native build tooling cannot run in a browser."},
	{Pattern: `^(pm2|nodemon|forever)$`, Reason: "Process managers are server-side tools with no browser runtime."},
	{Pattern: `^(next|nuxt|gatsby)$`, Reason: "Meta-frameworks include build tools and are not meant to be bundled.", AllowSubpaths: true},
	{Pattern: `^@(nuxt|remix-run|angular)/`, Reason: "Meta-framework packages include build tools and are not meant to be bundled.", AllowSubpaths: true},
}

// defaultBlacklistRules block tooling naming conventions and spam patterns
// regardless of subpath.
var defaultBlacklistRules = []RuleConfig{
	{Pattern: `^@(vitejs|rollup)/`},
	{Pattern: `^(react-scripts|polymer-cli|razzle)$`},
	{Pattern: `-(webpack|rollup|vite)-plugin$`},
	{Pattern: `-loader$`},
	{Pattern: `^(yarn|npm|pnpm)$`},
	{Pattern: `^devextreme$`},
	{Pattern: `hack-cheats|hacks?-cheats?|hack-unlimited|generator-unlimited|hack-\d+|cheat-\d+|-hacks?-`},
}

// DefaultRules compiles the built-in rule tables.
func DefaultRules() *RuleSet {
	rules, err := CompileRules(defaultUnsupportedRules, defaultBlacklistRules)
	if err != nil {
		// Built-in patterns are fixed at compile time; failing to compile
		// them is a programmer error.
		panic(err)
	}
	return rules
}

// LoadRules reads a rule file and compiles it, replacing the defaults.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read blacklist file: %w", err)
	}

	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse blacklist file: %w", err)
	}

	return CompileRules(file.Unsupported, file.Blacklist)
}

// CompileRules compiles rule tables into an evaluable set.
func CompileRules(unsupported, blacklist []RuleConfig) (*RuleSet, error) {
	rs := &RuleSet{}

	for _, rule := range unsupported {
		compiled, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid unsupported-category pattern %q: %w", rule.Pattern, err)
		}
		rs.unsupported = append(rs.unsupported, compiledRule{
			pattern:       compiled,
			reason:        rule.Reason,
			allowSubpaths: rule.AllowSubpaths,
		})
	}

	for _, rule := range blacklist {
		compiled, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid blacklist pattern %q: %w", rule.Pattern, err)
		}
		rs.blocked = append(rs.blocked, compiledRule{pattern: compiled, reason: rule.Reason})
	}

	return rs, nil
}

// ShouldSkip reports whether a package should be rejected before any
// install or network cost is paid. Category rules are evaluated first so
// the most specific reason wins; a subpath import bypasses category rules
// that allow it (next/image is fine even though bare next is not), never
// the generic blacklist.
func (rs *RuleSet) ShouldSkip(name, subpath string) (bool, string) {
	for _, rule := range rs.unsupported {
		if !rule.pattern.MatchString(name) {
			continue
		}
		// An escaped rule only exempts itself; later category rules (and
		// the generic blacklist) still get their say.
		if subpath != "" && rule.allowSubpaths {
			continue
		}
		reason := rule.reason
		if reason == "" {
			reason = genericBlockReason
		}
		return true, reason
	}

	for _, rule := range rs.blocked {
		if rule.pattern.MatchString(name) {
			reason := rule.reason
			if reason == "" {
				reason = genericBlockReason
			}
			return true, reason
		}
	}

	return false, ""
}
