package cachestore

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeArchive(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestInsert_CreatesEntryWithExpectedFiles(t *testing.T) {
	root := t.TempDir()
	s := New(root, 10)

	archiveDir := t.TempDir()
	archive := writeArchive(t, archiveDir, "product.tar", "fake-tar-bytes")

	bc := BuildContext{
		TargetName:            "MyFramework",
		TargetMD5:             "abc123",
		Symroot:               "/tmp/build",
		ConfigurationBuildDir: "/tmp/build/Debug",
		Objroot:               "/tmp/build/obj",
		TargetTempDir:         "/tmp/build/obj/MyFramework.build",
		ModulemapFile:         "/tmp/build/Debug/module.modulemap",
		FullProductName:       "MyFramework.framework",
		ProductMD5:            "",
		Cwd:                   "/tmp/build",
	}

	entry, err := s.Insert(bc, archive, "pre-image text")
	if err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{entry.ProductArchivePath(), entry.ContextPath(), entry.MessagePath()} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to exist: %v", p, err)
		}
	}
	if _, err := os.Stat(archive); !os.IsNotExist(err) {
		t.Error("expected source archive to be moved (renamed away), not copied")
	}

	data, _ := os.ReadFile(entry.ContextPath())
	content := string(data)
	if !contains(content, "target_name: MyFramework") {
		t.Errorf("context.yml missing target_name: %s", content)
	}
	if contains(content, "SYMROOT") || contains(content, "/tmp/build/Debug") && contains(content, "build_product_dir: /tmp") {
		t.Errorf("context.yml retained an absolute build path: %s", content)
	}
	if !contains(content, "build_product_dir: Debug") {
		t.Errorf("expected build_product_dir relative to SYMROOT, got: %s", content)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOfSubstr(s, substr) >= 0
}

func indexOfSubstr(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func TestCandidateLookup_ReturnsVerifiedHit(t *testing.T) {
	root := t.TempDir()
	s := New(root, 10)

	archiveDir := t.TempDir()
	archive := writeArchive(t, archiveDir, "product.tar", "stable-content")
	entry, err := s.Insert(BuildContext{TargetName: "Foo", TargetMD5: "deadbeef"}, archive, "msg")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(entry.ContextPath())
	_ = data

	found, _, ok, err := s.CandidateLookup("Foo", "deadbeef")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a candidate hit")
	}
	if found.Dir != entry.Dir {
		t.Errorf("expected hit on %s, got %s", entry.Dir, found.Dir)
	}
}

func TestCandidateLookup_NoMatchingDirReturnsMiss(t *testing.T) {
	root := t.TempDir()
	s := New(root, 10)
	_, _, ok, err := s.CandidateLookup("Nonexistent", "00000000")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected no candidate for an empty cache root")
	}
}

func TestCandidateLookup_DiscardsEntryWithTamperedProductMD5(t *testing.T) {
	root := t.TempDir()
	s := New(root, 10)

	archiveDir := t.TempDir()
	archive := writeArchive(t, archiveDir, "product.tar", "original-content")
	entry, err := s.Insert(BuildContext{TargetName: "Foo", TargetMD5: "cafef00d", ProductMD5: "will-not-match"}, archive, "msg")
	if err != nil {
		t.Fatal(err)
	}

	_, _, ok, err := s.CandidateLookup("Foo", "cafef00d")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected lookup to reject an entry whose archive content disagrees with its recorded product_md5")
	}
	if _, statErr := os.Stat(entry.Dir); !os.IsNotExist(statErr) {
		t.Error("expected the tampered entry directory to be removed")
	}
}

func TestEvict_KeepsOnlyMostRecentCacheCountEntries(t *testing.T) {
	root := t.TempDir()
	s := New(root, 2)

	var entries []Entry
	for i := 0; i < 3; i++ {
		archiveDir := t.TempDir()
		archive := writeArchive(t, archiveDir, "product.tar", "content")
		e, err := s.Insert(BuildContext{TargetName: "T", TargetMD5: "md5"}, archive, "msg")
		if err != nil {
			t.Fatal(err)
		}
		entries = append(entries, e)
		// Ensure distinct mtimes so eviction order is unambiguous: earlier
		// inserts are rolled further back (3h, 2h, 1h ago), so the very
		// first insert starts out as the oldest.
		past := time.Now().Add(-time.Duration(3-i) * time.Hour)
		_ = os.Chtimes(e.Dir, past, past)
	}
	// Re-touch the first (oldest-rolled-back) entry so it is the most
	// recent by mtime and therefore the one that should survive eviction.
	recent := time.Now()
	_ = os.Chtimes(entries[0].Dir, recent, recent)

	removed, err := s.Evict()
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 entry evicted, got %d", removed)
	}
	if _, err := os.Stat(entries[0].Dir); err != nil {
		t.Error("expected most-recently-touched entry to survive eviction")
	}
}

func TestTouch_UpdatesMtime(t *testing.T) {
	root := t.TempDir()
	s := New(root, 10)
	archiveDir := t.TempDir()
	archive := writeArchive(t, archiveDir, "product.tar", "content")
	e, err := s.Insert(BuildContext{TargetName: "T", TargetMD5: "md5"}, archive, "msg")
	if err != nil {
		t.Fatal(err)
	}

	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(e.Dir, old, old); err != nil {
		t.Fatal(err)
	}
	if err := s.Touch(e); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(e.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if info.ModTime().Before(old.Add(time.Hour)) {
		t.Error("expected Touch to bring mtime close to now")
	}
}

func TestRemove_DeletesEntryDirectory(t *testing.T) {
	root := t.TempDir()
	s := New(root, 10)
	archiveDir := t.TempDir()
	archive := writeArchive(t, archiveDir, "product.tar", "content")
	e, err := s.Insert(BuildContext{TargetName: "T", TargetMD5: "md5"}, archive, "msg")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Remove(e); err != nil {
		t.Fatal(err)
	}
	if _, statErr := os.Stat(e.Dir); !os.IsNotExist(statErr) {
		t.Error("expected Remove to delete the entry directory")
	}
}

func TestStrip_RemovesAbsolutePathVariablesButKeepsRelativeOnes(t *testing.T) {
	bc := BuildContext{
		TargetName:            "Foo",
		TargetMD5:             "md5",
		Symroot:               "/Users/x/build",
		ConfigurationBuildDir: "/Users/x/build/Debug-iphonesimulator",
		Objroot:               "/Users/x/build/obj",
		TargetTempDir:         "/Users/x/build/obj/Foo.build/Debug-iphonesimulator",
		ModulemapFile:         "/Users/x/build/Debug-iphonesimulator/module.modulemap",
		Cwd:                   "/Users/x/build",
	}
	p := Strip(bc)
	if p.BuildProductDir != "Debug-iphonesimulator" {
		t.Errorf("expected relative build_product_dir, got %q", p.BuildProductDir)
	}
	if p.BuildIntermediateDir != "Foo.build/Debug-iphonesimulator" {
		t.Errorf("expected relative build_intermediate_dir, got %q", p.BuildIntermediateDir)
	}
	if p.ModulemapFile != "Debug-iphonesimulator/module.modulemap" {
		t.Errorf("expected strip_pwd-relativized modulemap path, got %q", p.ModulemapFile)
	}
}
