package archive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeProduct(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	product := filepath.Join(dir, "MyFramework.framework")
	if err := os.MkdirAll(filepath.Join(product, "Modules"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(product, "MyFramework"), []byte("binary"), 0o644); err != nil {
		t.Fatal(err)
	}
	modulesDir := filepath.Join(product, "Modules")
	content := "framework module MyFramework {\n  umbrella header \"" + modulesDir + "/MyFramework.h\"\n}\n"
	if err := os.WriteFile(filepath.Join(modulesDir, "module.modulemap"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return product
}

func TestPackUnpack_RoundTrips(t *testing.T) {
	product := writeProduct(t)
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "product.tar")

	if err := Pack(product, archivePath, PackOptions{}); err != nil {
		t.Fatal(err)
	}

	destDir := t.TempDir()
	if err := Unpack(archivePath, destDir); err != nil {
		t.Fatal(err)
	}

	restored := filepath.Join(destDir, filepath.Base(product), "MyFramework")
	data, err := os.ReadFile(restored)
	if err != nil {
		t.Fatalf("restored binary missing: %v", err)
	}
	if string(data) != "binary" {
		t.Errorf("restored content = %q", data)
	}
}

func TestPack_ExcludesStaticLibraryBundlesAndFrameworks(t *testing.T) {
	dir := t.TempDir()
	product := filepath.Join(dir, "libFoo.a.dir")
	if err := os.MkdirAll(filepath.Join(product, "Resources.bundle"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(product, "Resources.bundle", "asset.png"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(product, "Vendored.framework"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(product, "Vendored.framework", "Vendored"), []byte("fw"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(product, "libFoo.a"), []byte("lib"), 0o644); err != nil {
		t.Fatal(err)
	}

	archivePath := filepath.Join(t.TempDir(), "product.tar")
	if err := Pack(product, archivePath, StaticLibraryPackOptions()); err != nil {
		t.Fatal(err)
	}

	destDir := t.TempDir()
	if err := Unpack(archivePath, destDir); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(destDir, filepath.Base(product), "Resources.bundle")); !os.IsNotExist(err) {
		t.Error("expected .bundle to be excluded")
	}
	if _, err := os.Stat(filepath.Join(destDir, filepath.Base(product), "Vendored.framework")); !os.IsNotExist(err) {
		t.Error("expected .framework to be excluded")
	}
	if _, err := os.Stat(filepath.Join(destDir, filepath.Base(product), "libFoo.a")); err != nil {
		t.Error("expected libFoo.a to be present")
	}
}

func TestRewriteModulemaps_StripsOwnParentDirectory(t *testing.T) {
	product := writeProduct(t)
	if err := RewriteModulemaps(product); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(product, "Modules", "module.modulemap"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), product) {
		t.Error("expected modulemap to no longer reference its own parent directory")
	}
}
