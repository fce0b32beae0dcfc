package orchestrator

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/k-kohey/xcodecache/internal/archive"
	"github.com/k-kohey/xcodecache/internal/cachestore"
	"github.com/k-kohey/xcodecache/internal/fingerprint"
	"github.com/k-kohey/xcodecache/internal/hasher"
	"github.com/k-kohey/xcodecache/internal/xcodeproj"
)

const staticLibraryProductType = "com.apple.product-type.library.static"

// PostReport summarizes one post invocation.
type PostReport struct {
	Inserted int
	Refused  int
	Evicted  int
}

// Post runs the post stage: for every MISS_READY target, it verifies the
// source files pre fingerprinted are still exactly what got built,
// archives the product, and inserts it into the cache store. It then
// restores every project's project.pbxproj from its pre backup and evicts
// the cache store down to its configured bound.
func Post(run *Run) (PostReport, error) {
	podsProjectPath := filepath.Join(run.Srcroot, "Pods", "Pods.xcodeproj")
	projects, err := xcodeproj.DiscoverProjects(podsProjectPath)
	if err != nil {
		return PostReport{}, fmt.Errorf("discovering projects: %w", err)
	}

	targetsByName := map[string]*xcodeproj.Target{}
	for _, proj := range projects {
		targets, err := proj.Targets()
		if err != nil {
			return PostReport{}, fmt.Errorf("listing targets in %s: %w", proj.PbxprojPath, err)
		}
		for _, t := range targets {
			targetsByName[t.Name] = t
		}
	}

	var report PostReport
	for _, proj := range projects {
		projectDir := filepath.Dir(proj.PbxprojPath)
		sidecars, err := filepath.Glob(filepath.Join(projectDir, "*.xcodecache_target_context.yml"))
		if err != nil {
			return PostReport{}, fmt.Errorf("listing sidecars in %s: %w", projectDir, err)
		}

		for _, sidecarPath := range sidecars {
			targetName := sidecarTargetName(sidecarPath)
			ctx, err := ReadSidecar(projectDir, targetName)
			if err != nil {
				slog.Warn("[XcodeCache/W] skipping unreadable sidecar", "path", sidecarPath, "err", err)
				continue
			}

			switch c := ctx.(type) {
			case HitContext:
				verifyHitModulemap(run, targetName, c)
			case MissReadyContext:
				inserted, err := insertOne(run, targetsByName[targetName], c)
				if err != nil {
					slog.Warn("[XcodeCache/W] refusing to insert target into cache", "target", targetName, "err", err)
					report.Refused++
				} else if inserted {
					report.Inserted++
				} else {
					report.Refused++
				}
			default:
				// MISS: printenv never ran (or never completed) for this
				// target; nothing was built to verify or archive.
			}

			// Sidecars are consumed here regardless of status — the
			// lifecycle in spec.md §3 has post delete every sidecar it
			// reads, not just the ones it archives.
			if err := RemoveSidecar(projectDir, targetName); err != nil {
				slog.Warn("[XcodeCache/W] removing sidecar", "target", targetName, "err", err)
			}
		}

		if err := xcodeproj.Restore(proj.PbxprojPath); err != nil {
			return PostReport{}, fmt.Errorf("restoring %s: %w", proj.PbxprojPath, err)
		}
	}

	evicted, err := run.Store.Evict()
	if err != nil {
		return PostReport{}, err
	}
	report.Evicted = evicted

	slog.Info("post complete", "inserted", report.Inserted, "refused", report.Refused, "evicted", report.Evicted)
	return report, nil
}

func sidecarTargetName(sidecarPath string) string {
	base := filepath.Base(sidecarPath)
	const suffix = ".xcodecache_target_context.yml"
	if len(base) > len(suffix) {
		return base[:len(base)-len(suffix)]
	}
	return base
}

// verifyHitModulemap implements spec.md §4.F post's HIT step: "just
// verify the recorded modulemap (if any) still exists in the working
// tree; otherwise log and skip." There is nothing to archive for a HIT,
// so a missing modulemap is only ever a diagnostic, never a refusal.
func verifyHitModulemap(run *Run, targetName string, ctx HitContext) {
	if run.Config.NotDetectModuleMapDep || ctx.ModulemapFile == "" {
		return
	}
	rooted := ctx.ModulemapFile
	if !filepath.IsAbs(rooted) {
		rooted = filepath.Join(run.Srcroot, ctx.ModulemapFile)
	}
	if _, err := os.Stat(rooted); err != nil {
		slog.Warn("[XcodeCache/W] cached modulemap no longer present in working tree", "target", targetName, "path", rooted)
	}
}

// reRootModulemap strip_pwd-relativizes modulemapFile against cwd, then
// resolves that relative path under srcroot to check it still exists,
// per spec.md §4.F post's MISS_READY step. The returned path is always
// the strip_pwd-relative form, for use in diagnostics regardless of
// whether it resolved.
func reRootModulemap(cwd, srcroot, modulemapFile string) (relative string, exists bool) {
	relative = hasher.StripPWD(modulemapFile, cwd)
	rooted := relative
	if !filepath.IsAbs(rooted) {
		rooted = filepath.Join(srcroot, relative)
	}
	_, err := os.Stat(rooted)
	return relative, err == nil
}

// insertOne validates and archives a single MISS_READY target. A false,
// nil return means the target was deliberately skipped (not a failure);
// a non-nil error means a validation or I/O failure prevented insertion.
func insertOne(run *Run, target *xcodeproj.Target, ready MissReadyContext) (bool, error) {
	if err := validateBuildEnv(ready.Env); err != nil {
		return false, err
	}

	currentDigest, err := fingerprint.FileDigestsMD5(run.Digester, ready.SourceFiles, run.Srcroot, run.Cwd)
	if err != nil {
		return false, fmt.Errorf("recomputing source digests: %w", err)
	}
	if ready.FileDigestMD5 != "" && currentDigest != ready.FileDigestMD5 {
		return false, fmt.Errorf("source files changed between pre and build, refusing to cache a stale product")
	}

	modulemapRelative := ""
	if !run.Config.NotDetectModuleMapDep && ready.Env.ModulemapFile != "" {
		var rooted bool
		modulemapRelative, rooted = reRootModulemap(run.Cwd, ready.Env.Srcroot, ready.Env.ModulemapFile)
		if !rooted {
			return false, fmt.Errorf("modulemap %s not found under SRCROOT, refusing to cache", modulemapRelative)
		}
	}

	if err := archive.RewriteModulemaps(ready.Env.ConfigurationBuildDir); err != nil {
		slog.Warn("[XcodeCache/W] rewriting modulemaps", "target", ready.TargetName(), "err", err)
	}

	opts := archive.PackOptions{}
	if target != nil && target.ProductType == staticLibraryProductType {
		opts = archive.StaticLibraryPackOptions()
	}

	archivePath := filepath.Join(os.TempDir(), fmt.Sprintf("xcodecache-%s-%d.tar", ready.TargetName(), time.Now().UnixNano()))
	if err := archive.Pack(ready.Env.ConfigurationBuildDir, archivePath, opts); err != nil {
		return false, fmt.Errorf("archiving product: %w", err)
	}
	defer os.Remove(archivePath) //nolint:errcheck // Insert takes ownership via rename; this is a best-effort cleanup if it failed to.

	productMD5, err := run.Digester.Digest(archivePath, "")
	if err != nil {
		return false, fmt.Errorf("digesting archive: %w", err)
	}

	modulemapFile := ready.Env.ModulemapFile
	bc := cachestore.BuildContext{
		TargetName:            ready.TargetName(),
		TargetMD5:             ready.TargetMD5(),
		Symroot:               ready.Env.Symroot,
		ConfigurationBuildDir: ready.Env.ConfigurationBuildDir,
		Objroot:               ready.Env.Objroot,
		TargetTempDir:         ready.Env.TargetTempDir,
		PodsXCFrameworksDir:   ready.Env.PodsXCFrameworksBuildDir,
		ModulemapFile:         modulemapFile,
		Srcroot:               ready.Env.Srcroot,
		FullProductName:       ready.Env.FullProductName,
		ProductMD5:            productMD5,
		Cwd:                   run.Cwd,
	}
	if run.Config.EnableDependencyHashing {
		bc.DependencyCount = 1
	}

	message := fmt.Sprintf("cached %s at %s", ready.TargetName(), ready.TargetMD5())
	if _, err := run.Store.Insert(bc, archivePath, message); err != nil {
		return false, fmt.Errorf("inserting cache entry: %w", err)
	}
	return true, nil
}

func validateBuildEnv(env BuildEnv) error {
	missing := []string{}
	if env.Symroot == "" {
		missing = append(missing, "SYMROOT")
	}
	if env.ConfigurationBuildDir == "" {
		missing = append(missing, "CONFIGURATION_BUILD_DIR")
	}
	if env.Objroot == "" {
		missing = append(missing, "OBJROOT")
	}
	if env.TargetTempDir == "" {
		missing = append(missing, "TARGET_TEMP_DIR")
	}
	if env.Srcroot == "" {
		missing = append(missing, "SRCROOT")
	}
	if env.FullProductName == "" {
		missing = append(missing, "FULL_PRODUCT_NAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing captured environment variables: %v", missing)
	}
	return nil
}
