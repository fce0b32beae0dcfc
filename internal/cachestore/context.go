package cachestore

import (
	"strings"

	"github.com/k-kohey/xcodecache/internal/hasher"
)

// BuildContext bundles the raw, machine-specific build-environment state an
// orchestrator run has captured for one target right before insert. It is
// never itself persisted; Strip projects it into a PersistedContext.
type BuildContext struct {
	TargetName            string
	TargetMD5             string
	Symroot               string
	ConfigurationBuildDir string
	Objroot               string
	TargetTempDir         string
	PodsXCFrameworksDir   string
	ModulemapFile         string
	Srcroot               string
	FullProductName       string
	ProductMD5            string
	Cwd                   string

	// DependencyCount records whether this target's fingerprint was bound
	// to its dependencies (XcodeCache_ENABLE_DEPENDENCY_HASHING): post sets
	// it to 1 when that flag is on and leaves it 0 otherwise. It is
	// persisted as dependency_count; CandidateLookup does not read it.
	DependencyCount int
}

// PersistedContext is the on-disk shape of context.yml: status, transient
// lookup lists, the raw md5 pre-image, and build-env absolute path
// variables are all stripped before persistence. Field order here is the
// serialization order (yaml.v3 preserves struct field order on encode).
type PersistedContext struct {
	TargetName           string `yaml:"target_name"`
	TargetMD5            string `yaml:"target_md5"`
	FullProductName      string `yaml:"full_product_name"`
	BuildProductDir      string `yaml:"build_product_dir"`
	BuildIntermediateDir string `yaml:"build_intermediate_dir"`
	ModulemapFile        string `yaml:"modulemap_file,omitempty"`
	ProductMD5           string `yaml:"product_md5"`
	DependencyCount      int    `yaml:"dependency_count,omitempty"`
}

// Strip projects a BuildContext into the PersistedContext written into
// context.yml: build_product_dir = CONFIGURATION_BUILD_DIR − SYMROOT/, and
// build_intermediate_dir = TARGET_TEMP_DIR − OBJROOT/, with MODULEMAP_FILE
// relativized via strip_pwd.
func Strip(bc BuildContext) PersistedContext {
	return PersistedContext{
		TargetName:           bc.TargetName,
		TargetMD5:            bc.TargetMD5,
		FullProductName:      bc.FullProductName,
		BuildProductDir:      trimDirPrefix(bc.ConfigurationBuildDir, bc.Symroot),
		BuildIntermediateDir: trimDirPrefix(bc.TargetTempDir, bc.Objroot),
		ModulemapFile:        hasher.StripPWD(bc.ModulemapFile, bc.Cwd),
		ProductMD5:           bc.ProductMD5,
		DependencyCount:      bc.DependencyCount,
	}
}

// trimDirPrefix removes prefix+"/" from the front of full, leaving full
// unchanged if it is not actually rooted under prefix.
func trimDirPrefix(full, prefix string) string {
	if prefix == "" {
		return full
	}
	return strings.TrimPrefix(full, prefix+"/")
}
