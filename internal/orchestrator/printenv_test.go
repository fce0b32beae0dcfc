package orchestrator

import (
	"testing"
)

func TestPrintenv_UpgradesMissToMissReady(t *testing.T) {
	_, xcodeprojDir := fixtureWorkspace(t)

	miss := MissContext{
		base:        base{Name: "MyFramework", MD5: "deadbeef", Document: "doc"},
		SourceFiles: []string{"Pods/MyFramework/Sources/A.swift"},
	}
	if err := WriteSidecar(xcodeprojDir, miss); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SYMROOT", "/tmp/sym")
	t.Setenv("CONFIGURATION_BUILD_DIR", "/tmp/sym/Debug")
	t.Setenv("OBJROOT", "/tmp/obj")
	t.Setenv("TARGET_TEMP_DIR", "/tmp/obj/MyFramework.build/Debug")
	t.Setenv("SRCROOT", "/tmp/src")
	t.Setenv("FULL_PRODUCT_NAME", "MyFramework.framework")

	if err := Printenv("MyFramework", xcodeprojDir); err != nil {
		t.Fatal(err)
	}

	ctx, err := ReadSidecar(xcodeprojDir, "MyFramework")
	if err != nil {
		t.Fatal(err)
	}
	ready, ok := ctx.(MissReadyContext)
	if !ok {
		t.Fatalf("status = %s, want MISS_READY", ctx.Status())
	}
	if ready.Env.Symroot != "/tmp/sym" || ready.Env.FullProductName != "MyFramework.framework" {
		t.Errorf("unexpected captured env: %+v", ready.Env)
	}
	if len(ready.SourceFiles) != 1 || ready.SourceFiles[0] != "Pods/MyFramework/Sources/A.swift" {
		t.Errorf("expected source files to carry over from the MISS sidecar, got %v", ready.SourceFiles)
	}
}

func TestPrintenv_RejectsNonMissSidecar(t *testing.T) {
	_, xcodeprojDir := fixtureWorkspace(t)

	hit := HitContext{base: base{Name: "MyFramework", MD5: "deadbeef"}, HitTargetCacheDir: "/tmp/cache/entry"}
	if err := WriteSidecar(xcodeprojDir, hit); err != nil {
		t.Fatal(err)
	}

	if err := Printenv("MyFramework", xcodeprojDir); err == nil {
		t.Error("expected printenv against a HIT sidecar to fail")
	}
}

func TestPrintenv_MissingSidecarFails(t *testing.T) {
	_, xcodeprojDir := fixtureWorkspace(t)
	if err := Printenv("NoSuchTarget", xcodeprojDir); err == nil {
		t.Error("expected printenv with no sidecar present to fail")
	}
}
