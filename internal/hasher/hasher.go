// Package hasher computes per-file content digests for fingerprinting.
package hasher

import (
	"crypto/md5" //nolint:gosec // not security sensitive, only collision-resistant against accidental variation.
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// Digester computes and memoizes file digests for a single fingerprinting
// run. It is not safe for concurrent use; each orchestrator run owns one.
//
// Memoization is keyed by the requested path, not the resolved canonical
// path: a relative path resolved under two different SRCROOTs within the
// same Digester returns whichever result was computed first. This is
// harmless in practice: one Digester is shared by every target of a run,
// and that run passes the same SRCROOT for all of them.
type Digester struct {
	cache map[string]string
}

// New returns an empty Digester.
func New() *Digester {
	return &Digester{cache: make(map[string]string)}
}

// Digest returns the hex MD5 digest of the file at path. If path does not
// exist as given, it is retried under srcroot, joined with securejoin so
// the result cannot escape srcroot. Fails if neither location has the file.
func (d *Digester) Digest(path, srcroot string) (string, error) {
	if v, ok := d.cache[path]; ok {
		return v, nil
	}

	resolved := path
	if _, err := os.Stat(resolved); err != nil {
		if srcroot == "" {
			return "", fmt.Errorf("digesting %s: %w", path, err)
		}
		joined, joinErr := securejoin.SecureJoin(srcroot, path)
		if joinErr != nil {
			return "", fmt.Errorf("resolving %s under %s: %w", path, srcroot, joinErr)
		}
		resolved = joined
	}

	sum, err := digestFile(resolved)
	if err != nil {
		return "", fmt.Errorf("digesting %s: %w", path, err)
	}
	d.cache[path] = sum
	return sum, nil
}

// DigestBytes returns the hex MD5 digest of data directly, used to digest
// an assembled fingerprint document rather than a file on disk.
func (d *Digester) DigestBytes(data []byte) (string, error) {
	h := md5.New() //nolint:gosec
	if _, err := h.Write(data); err != nil {
		return "", fmt.Errorf("digesting document: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func digestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := md5.New() //nolint:gosec
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// StripPWD replaces occurrences of cwd+"/" in s with "", and bare
// occurrences of cwd (followed by a non-word rune, or at end of string)
// with that trailing rune. It is used to make absolute paths relative
// before they enter a fingerprint pre-image, so relocating the checkout
// does not change any digest.
func StripPWD(s, cwd string) string {
	if cwd == "" {
		return s
	}
	s = strings.ReplaceAll(s, cwd+string(filepath.Separator), "")

	var b strings.Builder
	for {
		idx := strings.Index(s, cwd)
		if idx == -1 {
			b.WriteString(s)
			break
		}
		after := idx + len(cwd)
		if after < len(s) && isWordRune(rune(s[after])) {
			// Not a boundary match (cwd is a prefix of a longer path
			// component); keep scanning past this occurrence.
			b.WriteString(s[:after])
			s = s[after:]
			continue
		}
		b.WriteString(s[:idx])
		s = s[after:]
	}
	return b.String()
}

func isWordRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
