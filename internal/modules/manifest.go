// Package modules holds the module identity and manifest types shared
// by the registry (C7), runtime (C8) and hot-reload orchestrator (C9).
package modules

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a semver-like module version: major.minor.patch with an
// optional pre-release label (e.g. "1.2.0-rc1").
type Version struct {
	Major      int
	Minor      int
	Patch      int
	PreRelease string
}

// ParseVersion parses a "major.minor.patch[-prerelease]" string.
func ParseVersion(s string) (Version, error) {
	core := s
	var pre string
	if i := strings.IndexByte(s, '-'); i >= 0 {
		core, pre = s[:i], s[i+1:]
	}
	parts := strings.Split(core, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("invalid version %q: expected major.minor.patch", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2], PreRelease: pre}, nil
}

// String renders the version back to its canonical form.
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.PreRelease != "" {
		s += "-" + v.PreRelease
	}
	return s
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater
// than other, ignoring pre-release labels for ordering purposes beyond
// treating any pre-release as older than its final release.
func (v Version) Compare(other Version) int {
	for _, pair := range [][2]int{{v.Major, other.Major}, {v.Minor, other.Minor}, {v.Patch, other.Patch}} {
		if pair[0] != pair[1] {
			if pair[0] < pair[1] {
				return -1
			}
			return 1
		}
	}
	switch {
	case v.PreRelease == other.PreRelease:
		return 0
	case v.PreRelease == "":
		return 1
	case other.PreRelease == "":
		return -1
	default:
		return strings.Compare(v.PreRelease, other.PreRelease)
	}
}

// State is a module's lifecycle state within the runtime.
type State string

const (
	StateRegistered  State = "registered"
	StateInitialized State = "initialized"
	StateRunning     State = "running"
	StateStopped     State = "stopped"
	StateFailed      State = "failed"
)

// Category is a module's closed-set functional classification.
type Category string

const (
	CategoryParser        Category = "parser"
	CategoryGenerator     Category = "generator"
	CategoryAnalyzer      Category = "analyzer"
	CategoryFormatter     Category = "formatter"
	CategoryValidator     Category = "validator"
	CategoryIntegration   Category = "integration"
	CategoryOptimizer     Category = "optimizer"
	CategoryUtility       Category = "utility"
	CategoryTesting       Category = "testing"
	CategoryDocumentation Category = "documentation"
)

// Valid reports whether c is one of the closed set of categories the
// manifest format recognizes.
func (c Category) Valid() bool {
	switch c {
	case CategoryParser, CategoryGenerator, CategoryAnalyzer, CategoryFormatter,
		CategoryValidator, CategoryIntegration, CategoryOptimizer, CategoryUtility,
		CategoryTesting, CategoryDocumentation:
		return true
	default:
		return false
	}
}

// ModuleInfo is the manifest's required [module] section: identity,
// authorship, and entry point.
type ModuleInfo struct {
	ID          string   `toml:"id"`
	Name        string   `toml:"name"`
	Version     string   `toml:"version"`
	EntryPoint  string   `toml:"entry_point"`
	Description string   `toml:"description"`
	Authors     []string `toml:"authors,omitempty"`
	License     string   `toml:"license"`
	Category    Category `toml:"category"`
}

// CapabilitiesSection is the manifest's [capabilities] section: the
// capability grammar strings (§6) a module provides to its consumers
// and, separately, requests from the sandbox at load time.
type CapabilitiesSection struct {
	Provides []string `toml:"provides"`
	Requests []string `toml:"requests,omitempty"`
}

// Compatibility is the manifest's [compatibility] section.
type Compatibility struct {
	AutoDevVersion string `toml:"auto_dev_version"`
	Platform       string `toml:"platform"`
}

// Dependency is one [[dependencies]] entry: another module's ID, a
// version requirement ("*" or an exact "major.minor.patch"), and
// whether resolution may proceed without it.
type Dependency struct {
	ID         string `toml:"id"`
	VersionReq string `toml:"version"`
	Optional   bool   `toml:"optional,omitempty"`
}

// Satisfies reports whether a registered module at version v meets
// this dependency's version requirement: "*" or empty matches any
// version, otherwise the requirement must match exactly.
func (d Dependency) Satisfies(v Version) bool {
	if d.VersionReq == "" || d.VersionReq == "*" {
		return true
	}
	req, err := ParseVersion(d.VersionReq)
	if err != nil {
		return false
	}
	return req.Compare(v) == 0
}

// Manifest is the on-disk, TOML-encoded description of a module: its
// identity, dependencies, and the capability grammar strings it
// requests from and provides to the sandbox.
type Manifest struct {
	Module        ModuleInfo          `toml:"module"`
	Capabilities  CapabilitiesSection `toml:"capabilities"`
	Compatibility Compatibility       `toml:"compatibility"`
	Dependencies  []Dependency        `toml:"dependencies,omitempty"`
}

// ParsedVersion parses m.Module.Version, returning the zero Version
// on error.
func (m Manifest) ParsedVersion() (Version, error) {
	return ParseVersion(m.Module.Version)
}
