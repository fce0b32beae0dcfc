// Package orchestrator drives the pre/printenv/extract/post state machine
// that stands between a build tool and the actual compiler invocations,
// substituting cached products for targets whose full input equivalence
// class has already been built.
package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Status is a target's position in the pre/printenv/extract/post lifecycle.
type Status int

const (
	StatusMiss Status = iota
	StatusMissReady
	StatusHit
)

func (s Status) String() string {
	switch s {
	case StatusMiss:
		return "MISS"
	case StatusMissReady:
		return "MISS_READY"
	case StatusHit:
		return "HIT"
	default:
		return "UNKNOWN"
	}
}

// BuildEnv is the subset of build-tool-provided environment variables the
// orchestrator captures for a target during printenv.
type BuildEnv struct {
	Symroot                  string
	ConfigurationBuildDir    string
	Objroot                  string
	TargetTempDir            string
	TargetBuildDir           string
	PodsXCFrameworksBuildDir string
	ModulemapFile            string
	Srcroot                  string
	FullProductName          string
}

// TargetContext is the tagged union spec.md's Design Notes call for: each
// status carries exactly the fields valid for it, in memory, while the
// on-disk sidecar remains one flat YAML schema (sidecarDoc below).
type TargetContext interface {
	Status() Status
	TargetName() string
	TargetMD5() string
}

// base fields shared by every status.
type base struct {
	Name     string
	MD5      string
	Document string // target_md5_content, the pre-image, kept for debugging
}

func (b base) TargetName() string { return b.Name }
func (b base) TargetMD5() string  { return b.MD5 }

// MissContext: no cache candidate was found in pre.
type MissContext struct {
	base
	SourceFiles []string
	// FileDigestMD5 hashes only the per-file digest section of Document,
	// recomputed by post to refuse an insert if any source file changed
	// between pre and the real build actually running.
	FileDigestMD5 string
}

func (MissContext) Status() Status { return StatusMiss }

// MissReadyContext: printenv has captured the build environment; post may
// now archive and insert this target.
type MissReadyContext struct {
	base
	SourceFiles   []string
	FileDigestMD5 string
	Env           BuildEnv
}

func (MissReadyContext) Status() Status { return StatusMissReady }

// HitContext: pre bound this target to an existing cache entry and
// injected an extract phase in its place.
type HitContext struct {
	base
	HitTargetCacheDir    string
	BuildProductDir      string
	BuildIntermediateDir string
	// ModulemapFile is the matched cache entry's recorded modulemap path
	// (strip_pwd-relative, carried over from the entry's context.yml), if
	// any. post verifies it still exists in the working tree.
	ModulemapFile string
}

func (HitContext) Status() Status { return StatusHit }

// sidecarDoc is the single flat on-disk schema for
// {target_name}.xcodecache_target_context.yml. Field presence mirrors
// status per spec.md §3's invariant, but the struct itself is flat so an
// older or newer status can always be round-tripped without a schema
// migration.
type sidecarDoc struct {
	Status        string   `yaml:"status"`
	TargetName    string   `yaml:"target_name"`
	TargetMD5     string   `yaml:"target_md5"`
	Document      string   `yaml:"target_md5_content,omitempty"`
	SourceFiles   []string `yaml:"source_files,omitempty"`
	FileDigestMD5 string   `yaml:"file_digest_md5,omitempty"`

	Symroot                  string `yaml:"symroot,omitempty"`
	ConfigurationBuildDir    string `yaml:"configuration_build_dir,omitempty"`
	Objroot                  string `yaml:"objroot,omitempty"`
	TargetTempDir            string `yaml:"target_temp_dir,omitempty"`
	TargetBuildDir           string `yaml:"target_build_dir,omitempty"`
	PodsXCFrameworksBuildDir string `yaml:"pods_xcframeworks_build_dir,omitempty"`
	ModulemapFile            string `yaml:"modulemap_file,omitempty"`
	Srcroot                  string `yaml:"srcroot,omitempty"`
	FullProductName          string `yaml:"full_product_name,omitempty"`

	HitTargetCacheDir    string `yaml:"hit_target_cache_dir,omitempty"`
	BuildProductDir      string `yaml:"build_product_dir,omitempty"`
	BuildIntermediateDir string `yaml:"build_intermediate_dir,omitempty"`
}

func toSidecar(ctx TargetContext) sidecarDoc {
	switch c := ctx.(type) {
	case MissContext:
		return sidecarDoc{
			Status: StatusMiss.String(), TargetName: c.Name, TargetMD5: c.MD5,
			Document: c.Document, SourceFiles: c.SourceFiles, FileDigestMD5: c.FileDigestMD5,
		}
	case MissReadyContext:
		return sidecarDoc{
			Status: StatusMissReady.String(), TargetName: c.Name, TargetMD5: c.MD5,
			Document: c.Document, SourceFiles: c.SourceFiles, FileDigestMD5: c.FileDigestMD5,
			Symroot: c.Env.Symroot, ConfigurationBuildDir: c.Env.ConfigurationBuildDir,
			Objroot: c.Env.Objroot, TargetTempDir: c.Env.TargetTempDir,
			TargetBuildDir: c.Env.TargetBuildDir, PodsXCFrameworksBuildDir: c.Env.PodsXCFrameworksBuildDir,
			ModulemapFile: c.Env.ModulemapFile, Srcroot: c.Env.Srcroot,
			FullProductName: c.Env.FullProductName,
		}
	case HitContext:
		return sidecarDoc{
			Status: StatusHit.String(), TargetName: c.Name, TargetMD5: c.MD5,
			Document: c.Document,
			HitTargetCacheDir: c.HitTargetCacheDir, BuildProductDir: c.BuildProductDir,
			BuildIntermediateDir: c.BuildIntermediateDir, ModulemapFile: c.ModulemapFile,
		}
	default:
		return sidecarDoc{}
	}
}

func fromSidecar(d sidecarDoc) (TargetContext, error) {
	b := base{Name: d.TargetName, MD5: d.TargetMD5, Document: d.Document}
	switch d.Status {
	case StatusMiss.String():
		return MissContext{base: b, SourceFiles: d.SourceFiles, FileDigestMD5: d.FileDigestMD5}, nil
	case StatusMissReady.String():
		return MissReadyContext{
			base: b, SourceFiles: d.SourceFiles, FileDigestMD5: d.FileDigestMD5,
			Env: BuildEnv{
				Symroot: d.Symroot, ConfigurationBuildDir: d.ConfigurationBuildDir,
				Objroot: d.Objroot, TargetTempDir: d.TargetTempDir,
				TargetBuildDir: d.TargetBuildDir, PodsXCFrameworksBuildDir: d.PodsXCFrameworksBuildDir,
				ModulemapFile: d.ModulemapFile, Srcroot: d.Srcroot, FullProductName: d.FullProductName,
			},
		}, nil
	case StatusHit.String():
		return HitContext{
			base: b, HitTargetCacheDir: d.HitTargetCacheDir,
			BuildProductDir: d.BuildProductDir, BuildIntermediateDir: d.BuildIntermediateDir,
			ModulemapFile: d.ModulemapFile,
		}, nil
	default:
		return nil, fmt.Errorf("unknown target context status %q", d.Status)
	}
}

// SidecarPath returns the conventional sidecar path for targetName under
// the directory containing a project file.
func SidecarPath(projectDir, targetName string) string {
	return filepath.Join(projectDir, targetName+".xcodecache_target_context.yml")
}

// WriteSidecar serializes ctx to its conventional path under projectDir.
func WriteSidecar(projectDir string, ctx TargetContext) error {
	path := SidecarPath(projectDir, ctx.TargetName())
	data, err := yaml.Marshal(toSidecar(ctx))
	if err != nil {
		return fmt.Errorf("marshalling sidecar for %s: %w", ctx.TargetName(), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing sidecar %s: %w", path, err)
	}
	return nil
}

// ReadSidecar deserializes the sidecar at projectDir for targetName.
func ReadSidecar(projectDir, targetName string) (TargetContext, error) {
	path := SidecarPath(projectDir, targetName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sidecar %s: %w", path, err)
	}
	var doc sidecarDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing sidecar %s: %w", path, err)
	}
	return fromSidecar(doc)
}

// RemoveSidecar deletes targetName's sidecar under projectDir, if present.
func RemoveSidecar(projectDir, targetName string) error {
	if err := os.Remove(SidecarPath(projectDir, targetName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing sidecar for %s: %w", targetName, err)
	}
	return nil
}
