package orchestrator

import (
	"fmt"
	"os"
)

// Printenv runs the printenv stage: invoked from the shell-script phase
// pre injected into a MISS target, it captures the build-tool environment
// variables that were only observable once the real build reached this
// target, and upgrades the target's sidecar from MISS to MISS_READY.
// xcodeprojPath is the owning .xcodeproj directory itself, the same
// convention the sidecar is written under.
func Printenv(targetName, xcodeprojPath string) error {
	projectDir := xcodeprojPath

	ctx, err := ReadSidecar(projectDir, targetName)
	if err != nil {
		return fmt.Errorf("printenv %s: %w", targetName, err)
	}
	miss, ok := ctx.(MissContext)
	if !ok {
		return fmt.Errorf("printenv %s: sidecar is %s, expected MISS", targetName, ctx.Status())
	}

	ready := MissReadyContext{
		base:          miss.base,
		SourceFiles:   miss.SourceFiles,
		FileDigestMD5: miss.FileDigestMD5,
		Env: BuildEnv{
			Symroot:                  os.Getenv("SYMROOT"),
			ConfigurationBuildDir:    os.Getenv("CONFIGURATION_BUILD_DIR"),
			Objroot:                  os.Getenv("OBJROOT"),
			TargetTempDir:            os.Getenv("TARGET_TEMP_DIR"),
			TargetBuildDir:           os.Getenv("TARGET_BUILD_DIR"),
			PodsXCFrameworksBuildDir: os.Getenv("PODS_XCFRAMEWORKS_BUILD_DIR"),
			ModulemapFile:            os.Getenv("MODULEMAP_FILE"),
			Srcroot:                  os.Getenv("SRCROOT"),
			FullProductName:          os.Getenv("FULL_PRODUCT_NAME"),
		},
	}

	return WriteSidecar(projectDir, ready)
}
