package orchestrator

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/k-kohey/xcodecache/internal/cachestore"
	"github.com/k-kohey/xcodecache/internal/fingerprint"
	"github.com/k-kohey/xcodecache/internal/xcodeproj"
)

// PreReport summarizes one pre invocation.
type PreReport struct {
	Hits    int
	Misses  int
	Skipped int
}

type targetState struct {
	project *xcodeproj.Project
	target  *xcodeproj.Target
	inputs  fingerprint.Inputs
	result  fingerprint.Result
	ctx     TargetContext
	// forcedMiss marks a target pinned to MISS because a dependency cycle
	// is reachable from it.
	forcedMiss bool
}

// Pre runs the pre stage: it fingerprints every cacheable target across
// the discovered project graph, resolves each to HIT or MISS against the
// cache store, mutates build phases accordingly, and writes one sidecar
// per target.
func Pre(run *Run, buildArgs []string) (PreReport, error) {
	if !hasConfigurationFlag(buildArgs) {
		return PreReport{}, fmt.Errorf("pre requires a -configuration or --configuration argument with a non-empty value")
	}

	if run.Config.ClearAll {
		if err := run.Store.ClearAll(); err != nil {
			return PreReport{}, err
		}
	}

	podsProjectPath := filepath.Join(run.Srcroot, "Pods", "Pods.xcodeproj")
	if err := cleanStaleArtifacts(podsProjectPath); err != nil {
		slog.Warn("[XcodeCache/W] cleaning stale project backups/sidecars", "err", err)
	}

	projects, err := xcodeproj.DiscoverProjects(podsProjectPath)
	if err != nil {
		return PreReport{}, fmt.Errorf("discovering projects: %w", err)
	}

	configurationName := configurationValueFromArgs(buildArgs)

	states, err := collectTargetFingerprints(run, projects, configurationName, buildArgs)
	if err != nil {
		return PreReport{}, err
	}

	if run.Config.EnableDependencyHashing {
		if err := resolveWithDependencyHashing(run, projects, states); err != nil {
			return PreReport{}, err
		}
	} else {
		for i, st := range states {
			states[i].ctx = resolveOne(run, st)
		}
	}

	// Fixed-point iteration over targets, attempting to promote
	// still-MISS targets to HIT. Preserved as an explicit loop — the
	// designed extension point for propagating HIT status across
	// dependency edges — even though today's resolution above already
	// stabilizes every target in one pass, so this always converges
	// immediately without ever finding a new transition.
	for {
		changed := false
		for i, st := range states {
			if st.ctx.Status() != StatusMiss || st.forcedMiss {
				continue
			}
			if e, pc, ok, err := run.Store.CandidateLookup(st.target.Name, st.result.TargetMD5); err == nil && ok {
				states[i].ctx = hitContextFrom(st.target.Name, st.result, e, pc)
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	report, err := applyResolutions(run, states)
	if err != nil {
		return PreReport{}, err
	}
	slog.Info("pre complete", "hits", report.Hits, "misses", report.Misses, "skipped", report.Skipped)
	return report, nil
}

func collectTargetFingerprints(run *Run, projects []*xcodeproj.Project, configurationName string, buildArgs []string) ([]targetState, error) {
	var states []targetState
	for _, proj := range projects {
		targets, err := proj.Targets()
		if err != nil {
			return nil, fmt.Errorf("listing targets in %s: %w", proj.PbxprojPath, err)
		}
		for _, t := range targets {
			if !t.Cacheable() {
				continue
			}
			sourceFiles, err := fingerprint.CollectSourceFiles(proj, t, run.Srcroot)
			if err != nil {
				slog.Warn("[XcodeCache/W] skipping target: cannot enumerate source files", "target", t.Name, "err", err)
				continue
			}
			if len(sourceFiles) < run.Config.MinSourceFileCount {
				continue
			}

			inputs := fingerprint.Inputs{
				Project: proj, Target: t, ConfigurationName: configurationName,
				Args: buildArgs, SRCROOT: run.Srcroot, Cwd: run.Cwd,
				Lockfile: run.Lockfile, Digester: run.Digester,
			}
			result, err := fingerprint.Build(inputs)
			if err != nil {
				slog.Warn("[XcodeCache/W] skipping target: fingerprint failed", "target", t.Name, "err", err)
				continue
			}
			states = append(states, targetState{project: proj, target: t, inputs: inputs, result: result})
		}
	}
	return states, nil
}

// resolveWithDependencyHashing recomputes each target's fingerprint in
// dependency order so a dependent's document embeds its dependencies'
// already-known target_md5 values, then resolves each against the store.
// Targets caught in a cycle are forced to MISS without ever querying the
// store, per spec.md §9's cycle-to-MISS design.
func resolveWithDependencyHashing(run *Run, projects []*xcodeproj.Project, states []targetState) error {
	graph, err := buildDepGraph(projects)
	if err != nil {
		return err
	}

	byName := map[string]int{}
	names := make([]string, len(states))
	for i, st := range states {
		byName[st.target.Name] = i
		names[i] = st.target.Name
	}

	md5ByName := map[string]string{}
	for _, name := range graph.topologicalOrder(names) {
		i, ok := byName[name]
		if !ok {
			continue
		}
		st := states[i]

		deps := []string{}
		for _, depName := range graph.direct[name] {
			if md5, ok := md5ByName[depName]; ok {
				deps = append(deps, md5)
			}
		}

		inputs := st.inputs
		inputs.DependencyFingerprints = deps
		result, err := fingerprint.Build(inputs)
		if err != nil {
			slog.Warn("[XcodeCache/W] skipping target: dependency-aware fingerprint failed", "target", name, "err", err)
			continue
		}
		states[i].result = result
		md5ByName[name] = result.TargetMD5
		states[i].ctx = resolveOne(run, states[i])
	}

	for i, st := range states {
		if graph.cyclic(st.target.Name) {
			slog.Warn("[XcodeCache/W] target participates in a dependency cycle, forcing MISS", "target", st.target.Name)
			states[i].ctx = missContextFor(run, st)
			states[i].forcedMiss = true
		}
	}
	return nil
}

func resolveOne(run *Run, st targetState) TargetContext {
	e, pc, ok, err := run.Store.CandidateLookup(st.target.Name, st.result.TargetMD5)
	if err != nil {
		slog.Warn("[XcodeCache/W] candidate lookup failed", "target", st.target.Name, "err", err)
	}
	if ok {
		return hitContextFrom(st.target.Name, st.result, e, pc)
	}
	return missContextFor(run, st)
}

func missContextFor(run *Run, st targetState) MissContext {
	fileDigestMD5, err := fingerprint.FileDigestsMD5(run.Digester, st.result.SourceFiles, run.Srcroot, run.Cwd)
	if err != nil {
		slog.Warn("[XcodeCache/W] hashing source files for drift detection failed", "target", st.target.Name, "err", err)
	}
	return MissContext{
		base:          base{Name: st.target.Name, MD5: st.result.TargetMD5, Document: st.result.Document},
		SourceFiles:   st.result.SourceFiles,
		FileDigestMD5: fileDigestMD5,
	}
}

func hitContextFrom(targetName string, result fingerprint.Result, e cachestore.Entry, pc cachestore.PersistedContext) TargetContext {
	return HitContext{
		base:                 base{Name: targetName, MD5: result.TargetMD5, Document: result.Document},
		HitTargetCacheDir:    e.Dir,
		BuildProductDir:      pc.BuildProductDir,
		BuildIntermediateDir: pc.BuildIntermediateDir,
		ModulemapFile:        pc.ModulemapFile,
	}
}

func applyResolutions(run *Run, states []targetState) (PreReport, error) {
	var report PreReport
	mutated := map[string]bool{}
	selfPath, err := os.Executable()
	if err != nil {
		return PreReport{}, fmt.Errorf("resolving own executable path: %w", err)
	}

	for _, st := range states {
		projectDir := filepath.Dir(st.project.PbxprojPath)

		switch ctx := st.ctx.(type) {
		case HitContext:
			report.Hits++
			st.target.RemoveSourceHeaderResourcePhases()
			script := xcodeproj.BuildInvocation(selfPath, run.Config.BundleBinPath, run.Config.BundleConfigPath,
				"extract", ctx.HitTargetCacheDir, ctx.BuildProductDir, ctx.BuildIntermediateDir)
			if _, err := st.target.AppendShellScriptPhase(xcodeproj.ExtractScriptName(st.target.Name), script); err != nil {
				return PreReport{}, fmt.Errorf("injecting extract phase for %s: %w", st.target.Name, err)
			}
			mutated[st.project.PbxprojPath] = true

		default:
			report.Misses++
			script := xcodeproj.BuildInvocation(selfPath, run.Config.BundleBinPath, run.Config.BundleConfigPath,
				"printenv", st.target.Name, st.project.XcodeprojPath)
			if _, err := st.target.AppendShellScriptPhase(xcodeproj.PrintenvScriptName(st.target.Name), script); err != nil {
				return PreReport{}, fmt.Errorf("injecting printenv phase for %s: %w", st.target.Name, err)
			}
			mutated[st.project.PbxprojPath] = true
		}

		if err := WriteSidecar(projectDir, st.ctx); err != nil {
			return PreReport{}, err
		}
	}

	for _, proj := range uniqueProjects(states) {
		if mutated[proj.PbxprojPath] {
			if err := xcodeproj.Backup(proj.PbxprojPath); err != nil {
				return PreReport{}, err
			}
			if err := proj.Save(); err != nil {
				return PreReport{}, err
			}
		} else if err := xcodeproj.CleanBackup(proj.PbxprojPath); err != nil {
			return PreReport{}, err
		}
	}

	return report, nil
}

func uniqueProjects(states []targetState) []*xcodeproj.Project {
	seen := map[string]bool{}
	var out []*xcodeproj.Project
	for _, st := range states {
		if seen[st.project.PbxprojPath] {
			continue
		}
		seen[st.project.PbxprojPath] = true
		out = append(out, st.project)
	}
	return out
}

func cleanStaleArtifacts(podsProjectPath string) error {
	pattern := filepath.Join(filepath.Dir(podsProjectPath), "*.xcodeproj")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}
	for _, xcodeprojDir := range matches {
		backup := xcodeproj.BackupPath(filepath.Join(xcodeprojDir, "project.pbxproj"))
		_ = os.Remove(backup)

		sidecars, _ := filepath.Glob(filepath.Join(xcodeprojDir, "*.xcodecache_target_context.yml"))
		for _, s := range sidecars {
			_ = os.Remove(s)
		}
	}
	return nil
}

func hasConfigurationFlag(args []string) bool {
	return configurationValueFromArgs(args) != ""
}

func configurationValueFromArgs(args []string) string {
	for i, a := range args {
		if (a == "-configuration" || a == "--configuration") && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(a, "--configuration=") {
			return strings.TrimPrefix(a, "--configuration=")
		}
	}
	return ""
}
