// Package podlock reads the CocoaPods workspace lockfile (Podfile.lock) to
// resolve per-pod spec checksums, used by the fingerprint builder to bind
// a target's cache key to the exact pod spec it was built from.
package podlock

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Lockfile is the subset of Podfile.lock this tool consumes.
type Lockfile struct {
	// Checksums maps a pod spec name to its content checksum, from the
	// "SPEC CHECKSUMS" section of Podfile.lock.
	Checksums map[string]string
}

type rawLockfile struct {
	SpecChecksums map[string]string `yaml:"SPEC CHECKSUMS"`
}

// Read parses the Podfile.lock at path. A missing or malformed lockfile
// degrades to an empty Lockfile rather than an error: spec section 3 of
// the fingerprint document is then simply empty for every target, which
// is the documented graceful-degradation behavior for this input.
func Read(path string) Lockfile {
	data, err := os.ReadFile(path)
	if err != nil {
		return Lockfile{Checksums: map[string]string{}}
	}
	var raw rawLockfile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Lockfile{Checksums: map[string]string{}}
	}
	if raw.SpecChecksums == nil {
		raw.SpecChecksums = map[string]string{}
	}
	return Lockfile{Checksums: raw.SpecChecksums}
}

// Checksum returns the checksum for the given candidate names, in the
// order supplied, deduplicated, and reports how many distinct candidates
// actually matched an entry in the lockfile. Per spec, callers should warn
// (but proceed) when the match count is not exactly one.
func (l Lockfile) Checksum(candidates []string) (checksum string, matches int) {
	seen := map[string]bool{}
	for _, c := range candidates {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		if sum, ok := l.Checksums[c]; ok {
			matches++
			checksum = sum
		}
	}
	return checksum, matches
}

// Path returns the conventional Podfile.lock path for a workspace rooted
// at srcroot.
func Path(srcroot string) string {
	return filepath.Join(srcroot, "Podfile.lock")
}
