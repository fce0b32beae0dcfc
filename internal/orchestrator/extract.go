package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cenkalti/backoff/v4"

	"github.com/k-kohey/xcodecache/internal/archive"
	"github.com/k-kohey/xcodecache/internal/cachestore"
)

// requiredExtractEnv lists the build-tool environment variables extract
// depends on; a HIT built without any of these is not something the
// orchestrator can place product for.
var requiredExtractEnv = []string{
	"SYMROOT", "CONFIGURATION_BUILD_DIR", "OBJROOT", "TARGET_TEMP_DIR", "SRCROOT", "FULL_PRODUCT_NAME",
}

// Extract runs the extract stage: invoked from the shell-script phase pre
// injected in place of a HIT target's real build, it unpacks the matched
// cache entry's archived product into the current build's directories.
func Extract(run *Run, hitTargetCacheDir, buildProductDirRel, buildIntermediateDirRel string) error {
	for _, k := range requiredExtractEnv {
		if os.Getenv(k) == "" {
			return fmt.Errorf("extract: required environment variable %s is not set", k)
		}
	}

	e := cachestore.Entry{Dir: hitTargetCacheDir, Name: filepath.Base(hitTargetCacheDir)}
	if err := run.Store.Touch(e); err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	symroot := os.Getenv("SYMROOT")
	objroot := os.Getenv("OBJROOT")
	configurationBuildDir := os.Getenv("CONFIGURATION_BUILD_DIR")
	targetBuildDir := os.Getenv("TARGET_BUILD_DIR")
	fullProductName := os.Getenv("FULL_PRODUCT_NAME")

	productDir := filepath.Join(symroot, buildProductDirRel)
	intermediateDir := filepath.Join(objroot, buildIntermediateDirRel)

	if err := os.MkdirAll(intermediateDir, 0o755); err != nil { //nolint:gosec
		return fmt.Errorf("extract: creating intermediate dir %s: %w", intermediateDir, err)
	}
	if err := os.MkdirAll(filepath.Dir(productDir), 0o755); err != nil { //nolint:gosec
		return fmt.Errorf("extract: creating product parent %s: %w", filepath.Dir(productDir), err)
	}

	unpack := func() error {
		return archive.Unpack(e.ProductArchivePath(), filepath.Dir(productDir))
	}
	if err := withRetry(unpack); err != nil {
		return fmt.Errorf("extract: unpacking %s: %w", e.ProductArchivePath(), err)
	}

	// CONFIGURATION_BUILD_DIR is shared across targets in a configuration;
	// TARGET_BUILD_DIR is usually the same path but can diverge (distinct
	// per-platform build dirs in a multi-platform build). When it does,
	// the product is moved into TARGET_BUILD_DIR and a symlink is left at
	// its CONFIGURATION_BUILD_DIR location, so downstream targets that
	// read from either still find it.
	if targetBuildDir != "" && targetBuildDir != configurationBuildDir && fullProductName != "" {
		extracted := filepath.Join(productDir, fullProductName)
		moved := filepath.Join(targetBuildDir, fullProductName)
		relocate := func() error {
			if err := os.RemoveAll(moved); err != nil {
				return err
			}
			if err := os.MkdirAll(targetBuildDir, 0o755); err != nil { //nolint:gosec
				return err
			}
			if err := os.Rename(extracted, moved); err != nil {
				return err
			}
			_ = os.RemoveAll(extracted)
			return os.Symlink(moved, extracted)
		}
		if err := withRetry(relocate); err != nil {
			return fmt.Errorf("extract: relocating %s into %s: %w", extracted, targetBuildDir, err)
		}
	}

	return nil
}

// withRetry wraps a filesystem operation with bounded exponential backoff,
// tolerating the transient ENOSPC/EBUSY conditions build-phase concurrency
// can produce against a shared SYMROOT.
func withRetry(op func() error) error {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4)
	return backoff.Retry(op, backoff.WithContext(policy, context.Background()))
}
