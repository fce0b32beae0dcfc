// Package fingerprint computes target_md5: a deterministic, machine-
// independent digest of a target's full input equivalence class.
package fingerprint

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/k-kohey/xcodecache/internal/hasher"
	"github.com/k-kohey/xcodecache/internal/podlock"
	"github.com/k-kohey/xcodecache/internal/xcodeproj"
)

// ToolVersionTag is embedded as document section 1. Bumping it invalidates
// every existing cache entry on the next run, by design.
const ToolVersionTag = "xcodecache/v1"

// Inputs bundles everything Build needs for one target.
type Inputs struct {
	Project           *xcodeproj.Project
	Target            *xcodeproj.Target
	ConfigurationName string
	Args              []string
	SRCROOT           string
	Cwd               string
	Lockfile          podlock.Lockfile
	Digester          *hasher.Digester

	// DependencyFingerprints, when non-nil, is an optional tenth document
	// section of sorted target_md5 values for this target's direct module
	// dependencies (XcodeCache_ENABLE_DEPENDENCY_HASHING).
	DependencyFingerprints []string
}

// Result is the outcome of fingerprinting a target.
type Result struct {
	Document    string
	TargetMD5   string
	SourceFiles []string
}

// Build assembles the fingerprint pre-image document for in and computes
// its digest.
func Build(in Inputs) (Result, error) {
	var sections []string

	// 1. Tool cache-version tag.
	sections = append(sections, ToolVersionTag)

	// 2. Filtered argument vector.
	sections = append(sections, strings.Join(FilterArgs(in.Args), "\n"))

	// 3. Pod spec checksum.
	targetCfg, _ := in.Target.Configuration(in.ConfigurationName)
	var targetSettings map[string]interface{}
	if targetCfg != nil {
		targetSettings = targetCfg.BuildSettings
	}
	candidates := candidateSpecNames(targetSettings)
	checksum, matches := in.Lockfile.Checksum(candidates)
	if matches != 1 {
		slog.Warn("[XcodeCache/W] pod spec checksum lookup ambiguous",
			"target", in.Target.Name, "candidates", candidates, "matches", matches)
	}
	sections = append(sections, checksum)

	// 4. Basename of the project's path.
	sections = append(sections, filepath.Base(in.Project.XcodeprojPath))

	// 5. Project configuration: pretty-printed stable key-sorted text.
	projCfg, _ := in.Project.Configuration(in.ConfigurationName)
	sections = append(sections, stableText(configurationValue(projCfg)))

	// 6. Project xcconfig, minus _SEARCH_PATHS lines, sorted and rejoined.
	sections = append(sections, xconfigText(in.Project, projCfg, in.SRCROOT))

	// 7. Target configuration and target xcconfig, same treatment.
	sections = append(sections, stableText(configurationValue(targetCfg)))
	sections = append(sections, xconfigText(in.Project, targetCfg, in.SRCROOT))

	// 8. Per-file build settings.
	sections = append(sections, strings.Join(perFileSettingsLines(in.Project, in.Target, in.SRCROOT), "\n"))

	// 9. File digests.
	sourceFiles, err := CollectSourceFiles(in.Project, in.Target, in.SRCROOT)
	if err != nil {
		return Result{}, fmt.Errorf("collecting source files for %s: %w", in.Target.Name, err)
	}
	sections = append(sections, fileDigestLines(in.Digester, sourceFiles, in.SRCROOT, in.Cwd))

	// 10. (optional) dependency fingerprints.
	if in.DependencyFingerprints != nil {
		deps := append([]string(nil), in.DependencyFingerprints...)
		sort.Strings(deps)
		sections = append(sections, strings.Join(deps, "\n"))
	}

	doc := strings.Join(sections, "\n")
	sum, err := in.Digester.DigestBytes([]byte(doc))
	if err != nil {
		return Result{}, fmt.Errorf("digesting fingerprint document for %s: %w", in.Target.Name, err)
	}

	return Result{Document: doc, TargetMD5: sum, SourceFiles: sourceFiles}, nil
}

// FileDigestsMD5 hashes the same per-file digest lines Build embeds as
// document section 9, letting a caller detect source drift between two
// points in time without recomputing a full fingerprint document.
func FileDigestsMD5(d *hasher.Digester, files []string, srcroot, cwd string) (string, error) {
	return d.DigestBytes([]byte(fileDigestLines(d, files, srcroot, cwd)))
}

func configurationValue(cfg *xcodeproj.BuildConfiguration) map[string]interface{} {
	if cfg == nil {
		return nil
	}
	return cfg.BuildSettings
}

func xconfigText(proj *xcodeproj.Project, cfg *xcodeproj.BuildConfiguration, srcroot string) string {
	if cfg == nil {
		return ""
	}
	path, ok := cfg.XConfigPath(proj, srcroot)
	if !ok {
		return ""
	}
	return filteredXConfigLines(path)
}

// filteredXConfigLines reads path, drops every line containing
// "_SEARCH_PATHS", sorts the remaining lines lexicographically, and
// rejoins them — making the fingerprint insensitive to search-path churn
// (property 3).
func filteredXConfigLines(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	lines := strings.Split(string(data), "\n")
	var kept []string
	for _, l := range lines {
		if strings.Contains(l, "_SEARCH_PATHS") {
			continue
		}
		kept = append(kept, l)
	}
	sort.Strings(kept)
	return strings.Join(kept, "\n")
}

func fileDigestLines(d *hasher.Digester, files []string, srcroot, cwd string) string {
	lines := make([]string, 0, len(files))
	for _, f := range files {
		sum, err := d.Digest(f, srcroot)
		if err != nil {
			slog.Warn("[XcodeCache/W] skipping unreadable source file", "path", f, "err", err)
			continue
		}
		lines = append(lines, hasher.StripPWD(f, cwd)+" : "+sum)
	}
	return strings.Join(lines, "\n")
}
