// Package xcodeproj is a thin reader/mutator over the Xcode project file
// format (.pbxproj), an OpenStep-style property list. It exposes only the
// operations the cache orchestrator needs: enumerating projects, targets,
// build configurations and build phases, and mutating a target's build
// phases in place. Full project-model fidelity is an explicit non-goal —
// this package consumes the same observable surface a build tool would.
package xcodeproj

import (
	"fmt"
	"path/filepath"
	"strings"

	"howett.net/plist"
)

// ISA values this package understands.
const (
	isaNativeTarget          = "PBXNativeTarget"
	isaFileReference         = "PBXFileReference"
	isaGroup                 = "PBXGroup"
	isaVariantGroup          = "PBXVariantGroup"
	isaVersionGroup          = "XCVersionGroup"
	isaBuildConfiguration    = "XCBuildConfiguration"
	isaConfigurationList     = "XCConfigurationList"
	isaSourcesBuildPhase     = "PBXSourcesBuildPhase"
	isaHeadersBuildPhase     = "PBXHeadersBuildPhase"
	isaResourcesBuildPhase   = "PBXResourcesBuildPhase"
	isaShellScriptBuildPhase = "PBXShellScriptBuildPhase"
	isaBuildFile             = "PBXBuildFile"
)

// wrapperProjectFileType is the lastKnownFileType Xcode assigns to a
// referenced sub-project (.xcodeproj) file reference.
const wrapperProjectFileType = "wrapper.pb-project"

// Cacheable product types, per spec: bundle, static library, framework.
var cacheableProductTypes = map[string]bool{
	"com.apple.product-type.bundle":         true,
	"com.apple.product-type.library.static": true,
	"com.apple.product-type.framework":      true,
}

type rawDict = map[string]interface{}

// document is the decoded root of a .pbxproj file.
type document struct {
	ArchiveVersion string             `plist:"archiveVersion"`
	ObjectVersion  string             `plist:"objectVersion"`
	RootObject     string             `plist:"rootObject"`
	Objects        map[string]rawDict `plist:"objects"`
}

// Project is one opened .pbxproj file (root pods project or a referenced
// sub-project).
type Project struct {
	// XcodeprojPath is the .xcodeproj directory path.
	XcodeprojPath string
	// PbxprojPath is XcodeprojPath/project.pbxproj.
	PbxprojPath string

	doc *document
}

// Target is a PBXNativeTarget within a Project.
type Target struct {
	UUID            string
	Name            string
	ProductType     string
	configListUUID  string
	buildPhaseUUIDs []string

	proj *Project
}

// BuildConfiguration is an XCBuildConfiguration: a named set of build
// settings plus an optional reference to a base .xcconfig file.
type BuildConfiguration struct {
	UUID          string
	Name          string
	BuildSettings rawDict
	baseConfigRef string
}

// BuildPhase is an ordered build phase (sources, headers, resources, or an
// injected shell script) belonging to a target.
type BuildPhase struct {
	UUID  string
	ISA   string
	Files []BuildFile
}

// BuildFile is one PBXBuildFile entry within a build phase: a reference to
// a file plus any per-file build settings.
type BuildFile struct {
	UUID       string
	FileRef    string
	Settings   rawDict
}

// FileReference is a PBXFileReference, PBXVariantGroup, XCVersionGroup, or
// PBXGroup node in the project's file tree.
type FileReference struct {
	UUID       string
	ISA        string
	Name       string
	Path       string
	SourceTree string
	Children   []string
}

// Cacheable reports whether t is a native target eligible for caching:
// its name does not begin with "Pods-" and its product type is one of
// bundle, static library, or framework.
func (t *Target) Cacheable() bool {
	if strings.HasPrefix(t.Name, "Pods-") {
		return false
	}
	return cacheableProductTypes[t.ProductType]
}

func (p *Project) object(uuid string) (rawDict, bool) {
	o, ok := p.doc.Objects[uuid]
	return o, ok
}

func isaOf(o rawDict) string {
	return asString(o["isa"])
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return ""
	}
}

func asArray(v interface{}) []interface{} {
	if a, ok := v.([]interface{}); ok {
		return a
	}
	return nil
}

func asStringArray(v interface{}) []string {
	a := asArray(v)
	out := make([]string, 0, len(a))
	for _, e := range a {
		out = append(out, asString(e))
	}
	return out
}

func asDict(v interface{}) rawDict {
	if d, ok := v.(rawDict); ok {
		return d
	}
	// plist.Unmarshal into interface{} yields map[string]interface{}, which
	// is the same underlying type as rawDict but the assertion above only
	// matches when the static type already is rawDict; handle the plain
	// map[string]interface{} case explicitly for safety.
	if d, ok := v.(map[string]interface{}); ok {
		return rawDict(d)
	}
	return nil
}

func decodeDocument(data []byte) (*document, error) {
	var doc document
	if _, err := plist.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding pbxproj: %w", err)
	}
	if doc.Objects == nil {
		return nil, fmt.Errorf("decoding pbxproj: no objects table")
	}
	return &doc, nil
}

// rootProjectObject returns the PBXProject object named by doc.RootObject.
func (p *Project) rootProjectObject() (rawDict, error) {
	o, ok := p.object(p.doc.RootObject)
	if !ok {
		return nil, fmt.Errorf("rootObject %s not found in %s", p.doc.RootObject, p.PbxprojPath)
	}
	return o, nil
}

// ConfigurationNames returns the project-level build configuration names
// (e.g. "Debug", "Release").
func (p *Project) ConfigurationNames() ([]string, error) {
	root, err := p.rootProjectObject()
	if err != nil {
		return nil, err
	}
	list, ok := p.object(asString(root["buildConfigurationList"]))
	if !ok {
		return nil, fmt.Errorf("project %s has no buildConfigurationList", p.PbxprojPath)
	}
	var names []string
	for _, uuid := range asStringArray(list["buildConfigurations"]) {
		if cfg, ok := p.object(uuid); ok {
			names = append(names, asString(cfg["name"]))
		}
	}
	return names, nil
}

// Configuration returns the project-level build configuration named name.
func (p *Project) Configuration(name string) (*BuildConfiguration, bool) {
	root, err := p.rootProjectObject()
	if err != nil {
		return nil, false
	}
	return p.configurationFromList(asString(root["buildConfigurationList"]), name)
}

func (p *Project) configurationFromList(listUUID, name string) (*BuildConfiguration, bool) {
	list, ok := p.object(listUUID)
	if !ok {
		return nil, false
	}
	for _, uuid := range asStringArray(list["buildConfigurations"]) {
		cfg, ok := p.object(uuid)
		if !ok || isaOf(cfg) != isaBuildConfiguration {
			continue
		}
		if asString(cfg["name"]) != name {
			continue
		}
		return &BuildConfiguration{
			UUID:          uuid,
			Name:          name,
			BuildSettings: asDict(cfg["buildSettings"]),
			baseConfigRef: asString(cfg["baseConfigurationReference"]),
		}, true
	}
	return nil, false
}

// XConfigPath resolves the .xcconfig file this configuration's base
// configuration reference points to, if any.
func (bc *BuildConfiguration) XConfigPath(p *Project, srcroot string) (string, bool) {
	if bc.baseConfigRef == "" {
		return "", false
	}
	ref, ok := p.ResolveFileReference(bc.baseConfigRef)
	if !ok {
		return "", false
	}
	path, err := p.ResolvePath(ref, srcroot)
	if err != nil {
		return "", false
	}
	return path, true
}

// Targets returns all native targets declared in the project, in the order
// they appear in the PBXProject's targets array.
func (p *Project) Targets() ([]*Target, error) {
	root, err := p.rootProjectObject()
	if err != nil {
		return nil, err
	}
	var out []*Target
	for _, uuid := range asStringArray(root["targets"]) {
		obj, ok := p.object(uuid)
		if !ok || isaOf(obj) != isaNativeTarget {
			continue
		}
		out = append(out, &Target{
			UUID:            uuid,
			Name:            asString(obj["name"]),
			ProductType:     asString(obj["productType"]),
			configListUUID:  asString(obj["buildConfigurationList"]),
			buildPhaseUUIDs: asStringArray(obj["buildPhases"]),
			proj:            p,
		})
	}
	return out, nil
}

// Configuration returns the target-level build configuration named name.
func (t *Target) Configuration(name string) (*BuildConfiguration, bool) {
	return t.proj.configurationFromList(t.configListUUID, name)
}

// BuildPhases returns the target's build phases in declared order.
func (t *Target) BuildPhases() []*BuildPhase {
	var out []*BuildPhase
	for _, uuid := range t.buildPhaseUUIDs {
		obj, ok := t.proj.object(uuid)
		if !ok {
			continue
		}
		out = append(out, &BuildPhase{
			UUID:  uuid,
			ISA:   isaOf(obj),
			Files: t.proj.buildFiles(obj),
		})
	}
	return out
}

// Phase returns the first build phase of t with the given ISA, if present.
func (t *Target) Phase(isa string) (*BuildPhase, bool) {
	for _, ph := range t.BuildPhases() {
		if ph.ISA == isa {
			return ph, true
		}
	}
	return nil, false
}

// SourcesPhase, HeadersPhase and ResourcesPhase return the target's
// respective build phase, if present.
func (t *Target) SourcesPhase() (*BuildPhase, bool)   { return t.Phase(isaSourcesBuildPhase) }
func (t *Target) HeadersPhase() (*BuildPhase, bool)   { return t.Phase(isaHeadersBuildPhase) }
func (t *Target) ResourcesPhase() (*BuildPhase, bool) { return t.Phase(isaResourcesBuildPhase) }

func (p *Project) buildFiles(phase rawDict) []BuildFile {
	var out []BuildFile
	for _, uuid := range asStringArray(phase["files"]) {
		bf, ok := p.object(uuid)
		if !ok || isaOf(bf) != isaBuildFile {
			continue
		}
		out = append(out, BuildFile{
			UUID:     uuid,
			FileRef:  asString(bf["fileRef"]),
			Settings: asDict(bf["settings"]),
		})
	}
	return out
}

// ResolveFileReference looks up a PBXFileReference/PBXVariantGroup/
// XCVersionGroup/PBXGroup node by UUID.
func (p *Project) ResolveFileReference(uuid string) (*FileReference, bool) {
	obj, ok := p.object(uuid)
	if !ok {
		return nil, false
	}
	isa := isaOf(obj)
	switch isa {
	case isaFileReference, isaGroup, isaVariantGroup, isaVersionGroup:
	default:
		return nil, false
	}
	return &FileReference{
		UUID:       uuid,
		ISA:        isa,
		Name:       asString(obj["name"]),
		Path:       asString(obj["path"]),
		SourceTree: asString(obj["sourceTree"]),
		Children:   asStringArray(obj["children"]),
	}, true
}

// ResolvePath resolves a file reference to a real filesystem path. Groups,
// variant groups and version groups have no path of their own; only plain
// file references are resolvable directly. Absolute source trees are
// returned as-is; everything else is resolved relative to srcroot, which
// approximates Xcode's own group-relative resolution closely enough for
// fingerprinting and archival purposes (full fidelity to every
// SourceTree variant is outside this package's scope).
func (p *Project) ResolvePath(ref *FileReference, srcroot string) (string, error) {
	if ref.Path == "" {
		return "", fmt.Errorf("file reference %s has no path", ref.UUID)
	}
	if ref.SourceTree == "<absolute>" || filepath.IsAbs(ref.Path) {
		return ref.Path, nil
	}
	return filepath.Join(srcroot, ref.Path), nil
}

// DependencyTargetUUIDs returns the native target UUIDs t directly depends
// on, resolved from its declared PBXTargetDependency objects. Remote
// (cross-workspace) target proxies are not resolvable this way and are
// silently skipped — dependency-hashing degrades to treating such an edge
// as absent rather than failing the whole computation.
func (t *Target) DependencyTargetUUIDs() []string {
	obj, ok := t.proj.object(t.UUID)
	if !ok {
		return nil
	}
	var out []string
	for _, depUUID := range asStringArray(obj["dependencies"]) {
		depObj, ok := t.proj.object(depUUID)
		if !ok {
			continue
		}
		if targetUUID := asString(depObj["target"]); targetUUID != "" {
			out = append(out, targetUUID)
		}
	}
	return out
}

// FlattenMembers expands a file reference into the plain file references
// it represents: a PBXVariantGroup/XCVersionGroup's localization/version
// members, or the reference itself if it is already a plain file.
func (p *Project) FlattenMembers(ref *FileReference) []*FileReference {
	switch ref.ISA {
	case isaVariantGroup, isaVersionGroup:
		var out []*FileReference
		for _, childUUID := range ref.Children {
			if child, ok := p.ResolveFileReference(childUUID); ok {
				out = append(out, p.FlattenMembers(child)...)
			}
		}
		return out
	default:
		return []*FileReference{ref}
	}
}
