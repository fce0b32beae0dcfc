package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/k-kohey/xcodecache/internal/xcodeproj"
)

func TestClean_RestoresBackupAndRemovesSidecars(t *testing.T) {
	srcroot, xcodeprojDir := fixtureWorkspace(t)
	run := newTestRun(t, srcroot)

	if _, err := Pre(run, []string{"-configuration", "Debug"}); err != nil {
		t.Fatal(err)
	}

	pbxprojPath := filepath.Join(xcodeprojDir, "project.pbxproj")
	if _, err := os.Stat(xcodeproj.BackupPath(pbxprojPath)); err != nil {
		t.Fatalf("expected a backup to exist before clean: %v", err)
	}
	if _, err := os.Stat(filepath.Join(xcodeprojDir, "MyFramework.xcodecache_target_context.yml")); err != nil {
		t.Fatalf("expected a sidecar to exist before clean: %v", err)
	}

	before, err := os.ReadFile(xcodeproj.BackupPath(pbxprojPath))
	if err != nil {
		t.Fatal(err)
	}

	if err := Clean(run); err != nil {
		t.Fatal(err)
	}

	after, err := os.ReadFile(pbxprojPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(after) != string(before) {
		t.Error("expected project.pbxproj to be restored to its pre-mutation contents")
	}
	if _, err := os.Stat(xcodeproj.BackupPath(pbxprojPath)); !os.IsNotExist(err) {
		t.Error("expected the backup sibling to be removed after clean")
	}
	if _, err := os.Stat(filepath.Join(xcodeprojDir, "MyFramework.xcodecache_target_context.yml")); !os.IsNotExist(err) {
		t.Error("expected the sidecar to be removed after clean")
	}
}

func TestClean_NoOpWithoutPriorPre(t *testing.T) {
	srcroot, _ := fixtureWorkspace(t)
	run := newTestRun(t, srcroot)

	if err := Clean(run); err != nil {
		t.Errorf("expected clean with nothing to clean to succeed, got %v", err)
	}
}
