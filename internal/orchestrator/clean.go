package orchestrator

import (
	"fmt"
	"path/filepath"

	"github.com/k-kohey/xcodecache/internal/xcodeproj"
)

// Clean restores every discovered project's project.pbxproj from its pre
// backup and removes any leftover target sidecars, without touching the
// cache store itself. It is the escape hatch for a build that was
// interrupted between pre and post.
func Clean(run *Run) error {
	podsProjectPath := filepath.Join(run.Srcroot, "Pods", "Pods.xcodeproj")
	projects, err := xcodeproj.DiscoverProjects(podsProjectPath)
	if err != nil {
		return fmt.Errorf("discovering projects: %w", err)
	}

	for _, proj := range projects {
		if err := xcodeproj.Restore(proj.PbxprojPath); err != nil {
			return fmt.Errorf("restoring %s: %w", proj.PbxprojPath, err)
		}
		if err := xcodeproj.CleanBackup(proj.PbxprojPath); err != nil {
			return fmt.Errorf("cleaning backup for %s: %w", proj.PbxprojPath, err)
		}

		projectDir := filepath.Dir(proj.PbxprojPath)
		sidecars, err := filepath.Glob(filepath.Join(projectDir, "*.xcodecache_target_context.yml"))
		if err != nil {
			return fmt.Errorf("listing sidecars in %s: %w", projectDir, err)
		}
		for _, s := range sidecars {
			if err := RemoveSidecar(projectDir, sidecarTargetName(s)); err != nil {
				return err
			}
		}
	}
	return nil
}
