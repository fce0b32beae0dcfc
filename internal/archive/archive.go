// Package archive packs and unpacks the product directories the cache
// store archives, and rewrites modulemaps so cached products are
// path-independent.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// staticLibraryExclusions lists the glob patterns excluded from a static
// library target's archive, per spec: bundles and frameworks a static lib
// references are not themselves part of its cacheable product.
var staticLibraryExclusions = []string{"*.bundle", "*.framework"}

// PackOptions configures Pack.
type PackOptions struct {
	// Exclude lists glob patterns (matched against the base name of each
	// entry) to skip.
	Exclude []string
}

// StaticLibraryPackOptions returns the PackOptions used for static-library
// targets, excluding bundles and frameworks.
func StaticLibraryPackOptions() PackOptions {
	return PackOptions{Exclude: staticLibraryExclusions}
}

// Pack tars productDir into archivePath. Symlinks are followed (resolved
// to their target's content), matching spec's archival command. The
// archive's internal paths are relative to productDir's parent, so
// unpacking reproduces productDir's own base name.
func Pack(productDir, archivePath string, opts PackOptions) (err error) {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("creating archive %s: %w", archivePath, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	tw := tar.NewWriter(out)
	defer func() {
		if cerr := tw.Close(); err == nil {
			err = cerr
		}
	}()

	parent := filepath.Dir(productDir)
	walkErr := filepath.WalkDir(productDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if excluded(opts.Exclude, d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, statErr := os.Stat(path) // os.Stat follows symlinks.
		if statErr != nil {
			return fmt.Errorf("stat %s: %w", path, statErr)
		}

		rel, relErr := filepath.Rel(parent, path)
		if relErr != nil {
			return relErr
		}

		if info.IsDir() {
			hdr, hdrErr := tar.FileInfoHeader(info, "")
			if hdrErr != nil {
				return hdrErr
			}
			hdr.Name = rel + "/"
			return tw.WriteHeader(hdr)
		}

		hdr, hdrErr := tar.FileInfoHeader(info, "")
		if hdrErr != nil {
			return hdrErr
		}
		hdr.Name = rel
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, openErr := os.Open(path)
		if openErr != nil {
			return fmt.Errorf("opening %s: %w", path, openErr)
		}
		defer func() { _ = f.Close() }()
		_, err := io.Copy(tw, f)
		return err
	})
	if walkErr != nil {
		return fmt.Errorf("archiving %s: %w", productDir, walkErr)
	}
	return nil
}

func excluded(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

// Unpack extracts archivePath into destDir (the parent the archive's
// entries are relative to).
func Unpack(archivePath, destDir string) (err error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", archivePath, err)
	}
	defer func() { _ = f.Close() }()

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading archive %s: %w", archivePath, err)
		}

		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", filepath.Dir(target), err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return fmt.Errorf("creating %s: %w", target, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				_ = out.Close()
				return fmt.Errorf("writing %s: %w", target, err)
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("closing %s: %w", target, err)
			}
		}
	}
	return nil
}

// safeJoin joins base and name, refusing to escape base via ".." path
// segments in a maliciously or accidentally crafted archive entry.
func safeJoin(base, name string) (string, error) {
	target := filepath.Join(base, name)
	if !strings.HasPrefix(target, filepath.Clean(base)+string(filepath.Separator)) && target != filepath.Clean(base) {
		return "", fmt.Errorf("archive entry %q escapes %s", name, base)
	}
	return target, nil
}

// RewriteModulemaps finds every *.modulemap file under productDir and, for
// any whose content contains its own parent directory as an absolute
// prefix, rewrites those occurrences to the empty string. This makes a
// cached product path-independent before it is archived.
func RewriteModulemaps(productDir string) error {
	return filepath.WalkDir(productDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".modulemap") {
			return nil
		}
		return rewriteOne(path)
	})
}

func rewriteOne(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	parent := filepath.Dir(path)
	if !strings.Contains(string(data), parent) {
		return nil
	}
	rewritten := strings.ReplaceAll(string(data), parent, "")
	if err := os.WriteFile(path, []byte(rewritten), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
