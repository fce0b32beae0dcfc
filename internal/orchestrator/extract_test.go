package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/k-kohey/xcodecache/internal/archive"
	"github.com/k-kohey/xcodecache/internal/cachestore"
)

func TestExtract_FailsWithoutRequiredEnv(t *testing.T) {
	srcroot := t.TempDir()
	run := newTestRun(t, srcroot)

	if err := Extract(run, filepath.Join(t.TempDir(), "entry"), "Debug/MyFramework.framework", "MyFramework.build/Debug"); err == nil {
		t.Error("expected extract with no captured build env to fail")
	}
}

func TestExtract_UnpacksIntoCurrentBuildDirs(t *testing.T) {
	srcroot := t.TempDir()
	run := newTestRun(t, srcroot)

	productSrc := filepath.Join(t.TempDir(), "Debug")
	if err := os.MkdirAll(filepath.Join(productSrc, "MyFramework.framework"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(productSrc, "MyFramework.framework", "MyFramework"), []byte("binary"), 0o644); err != nil {
		t.Fatal(err)
	}

	entryDir := t.TempDir()
	e := cachestore.Entry{Dir: entryDir, Name: filepath.Base(entryDir)}
	if err := archive.Pack(productSrc, e.ProductArchivePath(), archive.PackOptions{}); err != nil {
		t.Fatal(err)
	}

	symroot := filepath.Join(t.TempDir(), "sym")
	objroot := filepath.Join(t.TempDir(), "obj")
	t.Setenv("SYMROOT", symroot)
	t.Setenv("CONFIGURATION_BUILD_DIR", filepath.Join(symroot, "Debug"))
	t.Setenv("OBJROOT", objroot)
	t.Setenv("TARGET_TEMP_DIR", filepath.Join(objroot, "MyFramework.build", "Debug"))
	t.Setenv("SRCROOT", srcroot)
	t.Setenv("FULL_PRODUCT_NAME", "MyFramework.framework")

	if err := Extract(run, entryDir, "Debug", "MyFramework.build/Debug"); err != nil {
		t.Fatal(err)
	}

	placed := filepath.Join(symroot, "Debug", "MyFramework.framework", "MyFramework")
	if _, err := os.Stat(placed); err != nil {
		t.Errorf("expected extracted product at %s: %v", placed, err)
	}
}

func TestExtract_SymlinksIntoDivergentTargetBuildDir(t *testing.T) {
	srcroot := t.TempDir()
	run := newTestRun(t, srcroot)

	productSrc := filepath.Join(t.TempDir(), "Debug")
	if err := os.MkdirAll(filepath.Join(productSrc, "MyFramework.framework"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(productSrc, "MyFramework.framework", "MyFramework"), []byte("binary"), 0o644); err != nil {
		t.Fatal(err)
	}

	entryDir := t.TempDir()
	e := cachestore.Entry{Dir: entryDir, Name: filepath.Base(entryDir)}
	if err := archive.Pack(productSrc, e.ProductArchivePath(), archive.PackOptions{}); err != nil {
		t.Fatal(err)
	}

	symroot := filepath.Join(t.TempDir(), "sym")
	objroot := filepath.Join(t.TempDir(), "obj")
	targetBuildDir := filepath.Join(t.TempDir(), "other-platform-dir")
	t.Setenv("SYMROOT", symroot)
	t.Setenv("CONFIGURATION_BUILD_DIR", filepath.Join(symroot, "Debug"))
	t.Setenv("OBJROOT", objroot)
	t.Setenv("TARGET_TEMP_DIR", filepath.Join(objroot, "MyFramework.build", "Debug"))
	t.Setenv("TARGET_BUILD_DIR", targetBuildDir)
	t.Setenv("SRCROOT", srcroot)
	t.Setenv("FULL_PRODUCT_NAME", "MyFramework.framework")

	if err := Extract(run, entryDir, "Debug", "MyFramework.build/Debug"); err != nil {
		t.Fatal(err)
	}

	moved := filepath.Join(targetBuildDir, "MyFramework.framework")
	if _, err := os.Stat(filepath.Join(moved, "MyFramework")); err != nil {
		t.Fatalf("expected product moved into TARGET_BUILD_DIR at %s: %v", moved, err)
	}

	link := filepath.Join(symroot, "Debug", "MyFramework.framework")
	info, err := os.Lstat(link)
	if err != nil {
		t.Fatalf("expected a symlink at %s: %v", link, err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Errorf("expected %s to be a symlink, got mode %v", link, info.Mode())
	}
}
