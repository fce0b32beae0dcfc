package orchestrator

import (
	"fmt"
	"os"

	"github.com/k-kohey/xcodecache/internal/cachestore"
	"github.com/k-kohey/xcodecache/internal/config"
	"github.com/k-kohey/xcodecache/internal/hasher"
	"github.com/k-kohey/xcodecache/internal/podlock"
)

// Run bundles the state spec.md §9's Design Notes call out as otherwise
// tempting process-wide mutable state: the resolved config, the cache
// store, a fresh per-run digester, and the parsed pod lockfile. A new Run
// is constructed for every stage invocation rather than held as package
// globals, so nothing here can alias across concurrent uses of this
// package in a larger process.
type Run struct {
	Config   config.Config
	Store    *cachestore.Store
	Digester *hasher.Digester
	Lockfile podlock.Lockfile
	Srcroot  string
	Cwd      string
}

// NewRun resolves Config from the environment and assembles a Run scoped
// to the workspace rooted at srcroot.
func NewRun(srcroot string) (*Run, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolving working directory: %w", err)
	}
	return &Run{
		Config:   cfg,
		Store:    cachestore.New(cfg.CacheRoot, cfg.CacheCount),
		Digester: hasher.New(),
		Lockfile: podlock.Read(podlock.Path(srcroot)),
		Srcroot:  srcroot,
		Cwd:      cwd,
	}, nil
}

// ResolveSrcroot returns the workspace SRCROOT a pre/post invocation runs
// against: the SRCROOT environment variable if the build tool exported
// one (e.g. when hooked from an existing build), otherwise the current
// working directory — the convention this tool is always invoked from the
// pods workspace root.
func ResolveSrcroot() (string, error) {
	if v := os.Getenv("SRCROOT"); v != "" {
		return v, nil
	}
	return os.Getwd()
}
