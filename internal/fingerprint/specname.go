package fingerprint

import (
	"path/filepath"
	"sort"
)

// candidateSpecNames derives the pod spec names that might own settings,
// per spec section 3: PRODUCT_NAME, IBSC_MODULE, basename of
// CONFIGURATION_BUILD_DIR, and basename of PODS_TARGET_SRCROOT — whichever
// of those build settings are actually present — deduplicated and sorted.
func candidateSpecNames(settings map[string]interface{}) []string {
	seen := map[string]bool{}
	var out []string
	add := func(v string) {
		if v == "" || seen[v] {
			return
		}
		seen[v] = true
		out = append(out, v)
	}

	add(settingString(settings, "PRODUCT_NAME"))
	add(settingString(settings, "IBSC_MODULE"))
	if v := settingString(settings, "CONFIGURATION_BUILD_DIR"); v != "" {
		add(filepath.Base(v))
	}
	if v := settingString(settings, "PODS_TARGET_SRCROOT"); v != "" {
		add(filepath.Base(v))
	}

	sort.Strings(out)
	return out
}
