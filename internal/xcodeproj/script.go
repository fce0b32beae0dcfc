package xcodeproj

import "fmt"

// BuildInvocation constructs the shell command used inside an injected
// build phase to invoke the xcodecache binary with the given stage and
// arguments.
//
// When bundlerBinPath and bundlerConfigPath are both non-empty, the tool is
// assumed to be installed inside a bundler-managed Ruby environment (the
// signal the underlying CocoaPods toolchain itself uses): the invocation
// sources the user's shell profile, changes into the bundler root, and
// execs the tool through the bundler shim, so the correct gem environment
// is active even though Xcode's build phases run with a minimal PATH.
// Otherwise selfPath (the tool's own resolved program path) is invoked
// directly.
func BuildInvocation(selfPath, bundlerBinPath, bundlerConfigPath string, stage string, args ...string) string {
	quoted := make([]string, 0, len(args)+1)
	quoted = append(quoted, shellQuote(stage))
	for _, a := range args {
		quoted = append(quoted, shellQuote(a))
	}
	tail := ""
	for _, q := range quoted {
		tail += " " + q
	}

	if bundlerBinPath != "" && bundlerConfigPath != "" {
		bundlerRoot := shellQuote(bundlerBinPath)
		return fmt.Sprintf(
			`source ~/.profile >/dev/null 2>&1 || true; cd %s && BUNDLE_GEMFILE=%s bundle exec xcodecache%s`,
			bundlerRoot, shellQuote(bundlerConfigPath), tail,
		)
	}
	return shellQuote(selfPath) + tail
}

func shellQuote(s string) string {
	escaped := ""
	for _, r := range s {
		if r == '\'' {
			escaped += `'\''`
			continue
		}
		escaped += string(r)
	}
	return "'" + escaped + "'"
}
