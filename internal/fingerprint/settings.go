package fingerprint

import (
	"fmt"
	"sort"
	"strings"
)

// stableText renders an arbitrary decoded-plist value (map[string]interface{},
// []interface{}, or a scalar) as deterministic, key-sorted text. Map keys
// are sorted lexicographically at every level so the same logical value
// always produces byte-identical text regardless of the source map's
// iteration order.
func stableText(v interface{}) string {
	var b strings.Builder
	writeStable(&b, v, "")
	return b.String()
}

func writeStable(b *strings.Builder, v interface{}, indent string) {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(b, "%s%s:\n", indent, k)
			writeStable(b, t[k], indent+"  ")
		}
	case []interface{}:
		for _, e := range t {
			fmt.Fprintf(b, "%s-\n", indent)
			writeStable(b, e, indent+"  ")
		}
	case nil:
		fmt.Fprintf(b, "%snil\n", indent)
	default:
		fmt.Fprintf(b, "%s%v\n", indent, t)
	}
}

// settingString reads a string-valued build setting, returning "" if it is
// absent or not a string.
func settingString(settings map[string]interface{}, key string) string {
	v, ok := settings[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
