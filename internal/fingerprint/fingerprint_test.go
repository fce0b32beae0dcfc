package fingerprint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/k-kohey/xcodecache/internal/hasher"
	"github.com/k-kohey/xcodecache/internal/podlock"
	"github.com/k-kohey/xcodecache/internal/xcodeproj"
)

// fixture builds a srcroot containing an App.xcodeproj with one cacheable
// framework target, one source file, and project/target xcconfig files
// that each carry a _SEARCH_PATHS line plus a stable setting.
func fixture(t *testing.T) (srcroot string, proj *xcodeproj.Project, target *xcodeproj.Target) {
	t.Helper()
	srcroot = t.TempDir()
	xcodeprojDir := filepath.Join(srcroot, "App.xcodeproj")
	if err := os.MkdirAll(xcodeprojDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(srcroot, "Sources"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcroot, "Sources", "A.swift"), []byte("struct A {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcroot, "Project.xcconfig"),
		[]byte("FRAMEWORK_SEARCH_PATHS = $(inherited) /foo\nGCC_PREPROCESSOR_DEFINITIONS = FOO=1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcroot, "Target.xcconfig"),
		[]byte("HEADER_SEARCH_PATHS = $(inherited) /bar\nSWIFT_VERSION = 5.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	pbxproj := `// !$*UTF8*$!
{
	archiveVersion = 1;
	objectVersion = 56;
	rootObject = ROOT000000000000000001;
	objects = {
		ROOT000000000000000001 = {
			isa = PBXProject;
			buildConfigurationList = CFGLIST0000000000000001;
			targets = ( TARGETFRAMEWORK00000001 );
		};
		CFGLIST0000000000000001 = {
			isa = XCConfigurationList;
			buildConfigurations = ( CFGPROJDEBUG000000001 );
		};
		CFGPROJDEBUG000000001 = {
			isa = XCBuildConfiguration;
			name = Debug;
			baseConfigurationReference = FILEREFXCCFGPROJ00001;
			buildSettings = { PRODUCT_NAME = MyFramework; };
		};
		FILEREFXCCFGPROJ00001 = {
			isa = PBXFileReference;
			path = Project.xcconfig;
			sourceTree = "<group>";
		};
		TARGETFRAMEWORK00000001 = {
			isa = PBXNativeTarget;
			name = MyFramework;
			productType = "com.apple.product-type.framework";
			buildConfigurationList = CFGLISTTARGET000000001;
			buildPhases = ( SOURCESPHASE0000000001 );
		};
		CFGLISTTARGET000000001 = {
			isa = XCConfigurationList;
			buildConfigurations = ( CFGTARGETDEBUG00000001 );
		};
		CFGTARGETDEBUG00000001 = {
			isa = XCBuildConfiguration;
			name = Debug;
			baseConfigurationReference = FILEREFXCCFGTGT00001;
			buildSettings = { PRODUCT_NAME = MyFramework; };
		};
		FILEREFXCCFGTGT00001 = {
			isa = PBXFileReference;
			path = Target.xcconfig;
			sourceTree = "<group>";
		};
		SOURCESPHASE0000000001 = {
			isa = PBXSourcesBuildPhase;
			files = ( BUILDFILE00000000000001 );
		};
		BUILDFILE00000000000001 = {
			isa = PBXBuildFile;
			fileRef = FILEREFA0000000000001;
		};
		FILEREFA0000000000001 = {
			isa = PBXFileReference;
			path = Sources/A.swift;
			sourceTree = "<group>";
		};
	};
}
`
	if err := os.WriteFile(filepath.Join(xcodeprojDir, "project.pbxproj"), []byte(pbxproj), 0o644); err != nil {
		t.Fatal(err)
	}

	var err error
	proj, err = xcodeproj.Open(xcodeprojDir)
	if err != nil {
		t.Fatal(err)
	}
	targets, err := proj.Targets()
	if err != nil {
		t.Fatal(err)
	}
	return srcroot, proj, targets[0]
}

func baseInputs(t *testing.T, srcroot string, proj *xcodeproj.Project, target *xcodeproj.Target) Inputs {
	t.Helper()
	return Inputs{
		Project:           proj,
		Target:            target,
		ConfigurationName: "Debug",
		Args:              []string{"-configuration", "Debug", "-derivedDataPath", "/tmp/dd", "SYMROOT=/tmp/sym"},
		SRCROOT:           srcroot,
		Cwd:               srcroot,
		Lockfile:          podlock.Lockfile{Checksums: map[string]string{}},
		Digester:          hasher.New(),
	}
}

func TestBuild_Deterministic(t *testing.T) {
	srcroot, proj, target := fixture(t)

	r1, err := Build(baseInputs(t, srcroot, proj, target))
	if err != nil {
		t.Fatal(err)
	}
	r2, err := Build(baseInputs(t, srcroot, proj, target))
	if err != nil {
		t.Fatal(err)
	}
	if r1.Document != r2.Document {
		t.Error("documents differ across identical runs")
	}
	if r1.TargetMD5 != r2.TargetMD5 {
		t.Error("digests differ across identical runs")
	}
}

func TestBuild_SensitiveToSourceFileChange(t *testing.T) {
	srcroot, proj, target := fixture(t)
	before, err := Build(baseInputs(t, srcroot, proj, target))
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(srcroot, "Sources", "A.swift"), []byte("struct A { var x = 1 }\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	after, err := Build(baseInputs(t, srcroot, proj, target))
	if err != nil {
		t.Fatal(err)
	}
	if before.TargetMD5 == after.TargetMD5 {
		t.Error("expected digest to change after editing a source file")
	}
}

func TestBuild_InsensitiveToSearchPathChange(t *testing.T) {
	srcroot, proj, target := fixture(t)
	before, err := Build(baseInputs(t, srcroot, proj, target))
	if err != nil {
		t.Fatal(err)
	}

	xconfig := filepath.Join(srcroot, "Target.xcconfig")
	data, _ := os.ReadFile(xconfig)
	appended := string(data) + "FRAMEWORK_SEARCH_PATHS = $(inherited) /a/new/path\n"
	if err := os.WriteFile(xconfig, []byte(appended), 0o644); err != nil {
		t.Fatal(err)
	}

	after, err := Build(baseInputs(t, srcroot, proj, target))
	if err != nil {
		t.Fatal(err)
	}
	if before.TargetMD5 != after.TargetMD5 {
		t.Error("expected digest to stay the same after only a search-path xcconfig edit")
	}
}

func TestBuild_PathInsensitive(t *testing.T) {
	srcroot, proj, target := fixture(t)
	in := baseInputs(t, srcroot, proj, target)
	result, err := Build(in)
	if err != nil {
		t.Fatal(err)
	}
	if contains := stringsContains(result.Document, srcroot); contains {
		t.Errorf("fingerprint document retains an absolute path containing srcroot: %q", srcroot)
	}
}

func stringsContains(s, substr string) bool {
	return len(substr) > 0 && (len(s) >= len(substr)) && (indexOf(s, substr) >= 0)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func TestBuild_ArgFilteringDropsOutputPaths(t *testing.T) {
	srcroot, proj, target := fixture(t)
	in := baseInputs(t, srcroot, proj, target)
	r1, err := Build(in)
	if err != nil {
		t.Fatal(err)
	}

	in2 := in
	in2.Args = []string{"-configuration", "Debug", "-derivedDataPath", "/somewhere/else", "SYMROOT=/somewhere/different"}
	r2, err := Build(in2)
	if err != nil {
		t.Fatal(err)
	}
	if r1.TargetMD5 != r2.TargetMD5 {
		t.Error("expected digest to be unaffected by different output-location arguments")
	}
}
