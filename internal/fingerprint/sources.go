package fingerprint

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/k-kohey/xcodecache/internal/xcodeproj"
)

// CollectSourceFiles returns the deduplicated, resolved paths of every
// file referenced by t's sources, headers, and resources build phases.
// Directory references are expanded recursively to the regular files they
// contain.
func CollectSourceFiles(proj *xcodeproj.Project, t *xcodeproj.Target, srcroot string) ([]string, error) {
	seen := map[string]bool{}
	var out []string

	addPath := func(path string) error {
		info, err := os.Stat(path)
		if err != nil {
			// A reference that no longer resolves on disk is skipped; the
			// fingerprint is still well-defined over the files that do
			// exist, matching the orchestrator's general tolerance for
			// stale project metadata.
			return nil //nolint:nilerr
		}
		if info.IsDir() {
			return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && !seen[p] {
					seen[p] = true
					out = append(out, p)
				}
				return nil
			})
		}
		if !seen[path] {
			seen[path] = true
			out = append(out, path)
		}
		return nil
	}

	for _, phase := range phasesOf(t) {
		for _, bf := range phase.Files {
			ref, ok := proj.ResolveFileReference(bf.FileRef)
			if !ok {
				continue
			}
			for _, member := range proj.FlattenMembers(ref) {
				path, err := proj.ResolvePath(member, srcroot)
				if err != nil {
					continue
				}
				if err := addPath(path); err != nil {
					return nil, err
				}
			}
		}
	}

	sort.Strings(out)
	return out, nil
}

func phasesOf(t *xcodeproj.Target) []*xcodeproj.BuildPhase {
	var out []*xcodeproj.BuildPhase
	if p, ok := t.SourcesPhase(); ok {
		out = append(out, p)
	}
	if p, ok := t.HeadersPhase(); ok {
		out = append(out, p)
	}
	if p, ok := t.ResourcesPhase(); ok {
		out = append(out, p)
	}
	return out
}
