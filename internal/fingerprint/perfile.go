package fingerprint

import (
	"path/filepath"
	"sort"

	"github.com/k-kohey/xcodecache/internal/xcodeproj"
)

// perFileSettingsLines returns one "basename\n<settings>" block per source
// file that carries non-empty per-file build settings, deduplicated and
// lexicographically sorted. Per spec, only the sources build phase is
// considered (not headers/resources) — intentionally left unchanged from
// the original tool's behavior; see DESIGN.md's Open Question resolution.
func perFileSettingsLines(proj *xcodeproj.Project, t *xcodeproj.Target, srcroot string) []string {
	phase, ok := t.SourcesPhase()
	if !ok {
		return nil
	}

	seen := map[string]bool{}
	var lines []string
	for _, bf := range phase.Files {
		if len(bf.Settings) == 0 {
			continue
		}
		ref, ok := proj.ResolveFileReference(bf.FileRef)
		if !ok {
			continue
		}
		settingsText := stableText(map[string]interface{}(bf.Settings))
		for _, member := range proj.FlattenMembers(ref) {
			path, err := proj.ResolvePath(member, srcroot)
			if err != nil {
				continue
			}
			base := filepath.Base(path)
			block := base + "\n" + settingsText
			if seen[block] {
				continue
			}
			seen[block] = true
			lines = append(lines, block)
		}
	}
	sort.Strings(lines)
	return lines
}
