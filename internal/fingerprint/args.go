package fingerprint

import "strings"

// dropWithValue lists build arguments that are filtered out of the
// fingerprint document along with their immediately following value, since
// they name output locations rather than build inputs.
var dropWithValue = map[string]bool{
	"-derivedDataPath":    true,
	"-archivePath":        true,
	"--derived_data_path": true,
	"--archive_path":      true,
	"--build_path":        true,
}

// dropPrefixes lists argument prefixes dropped outright (the argument
// names an output-root environment override).
var dropPrefixes = []string{"DSTROOT=", "OBJROOT=", "SYMROOT="}

// FilterArgs returns args with output-location arguments removed, per
// spec: these vary machine-to-machine and run-to-run without affecting
// what gets built, so including them would defeat cache reuse.
func FilterArgs(args []string) []string {
	out := make([]string, 0, len(args))
	skipNext := false
	for _, a := range args {
		if skipNext {
			skipNext = false
			continue
		}
		if dropWithValue[a] {
			skipNext = true
			continue
		}
		if hasAnyPrefix(a, dropPrefixes) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
