package cachestore

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	units "github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	"github.com/k-kohey/xcodecache/internal/hasher"
)

const maxCandidatesWithDependencies = 10

// Insert creates a new cache entry for bc, moving the archive at
// archivePath into it and writing context.yml and message.txt. archivePath
// is removed (via rename) as a side effect of taking ownership of it.
func (s *Store) Insert(bc BuildContext, archivePath, message string) (Entry, error) {
	if err := os.MkdirAll(s.Root, 0o755); err != nil { //nolint:gosec // cache root is a plain directory tree.
		return Entry{}, fmt.Errorf("creating cache root %s: %w", s.Root, err)
	}

	createdMS := time.Now().UnixMilli()
	name := entryName(bc.TargetName, bc.TargetMD5, createdMS)
	dir := filepath.Join(s.Root, name)
	// Two inserts of one fingerprint within the same millisecond would
	// share a name; bump the suffix until the directory is a new one.
	for {
		err := os.Mkdir(dir, 0o755) //nolint:gosec
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return Entry{}, fmt.Errorf("creating cache entry %s: %w", dir, err)
		}
		createdMS++
		name = entryName(bc.TargetName, bc.TargetMD5, createdMS)
		dir = filepath.Join(s.Root, name)
	}

	e := Entry{Dir: dir, Name: name, TargetName: bc.TargetName, TargetMD5: bc.TargetMD5, CreatedMS: createdMS}

	if err := os.Rename(archivePath, e.ProductArchivePath()); err != nil {
		_ = os.RemoveAll(dir)
		return Entry{}, fmt.Errorf("moving archive into %s: %w", dir, err)
	}

	if info, err := os.Stat(e.ProductArchivePath()); err == nil {
		slog.Info("inserted cache entry", "target", bc.TargetName, "entry", name, "size", units.HumanSize(float64(info.Size())))
	}

	persisted := Strip(bc)
	if err := writeYAMLAtomic(e.ContextPath(), persisted); err != nil {
		_ = os.RemoveAll(dir)
		return Entry{}, fmt.Errorf("writing context for %s: %w", dir, err)
	}
	if err := writeFileAtomic(e.MessagePath(), []byte(message)); err != nil {
		_ = os.RemoveAll(dir)
		return Entry{}, fmt.Errorf("writing message for %s: %w", dir, err)
	}

	return e, nil
}

// CandidateLookup globs {root}/{target_name}-{target_md5}-*, sorted by
// descending mtime, opening each entry's context.yml. An entry whose
// recorded target_md5 or product_md5 no longer matches its directory name
// or archive contents is deleted and skipped — a stale or tampered entry
// is worse than no entry. The first verified entry is touched and
// returned; at most maxCandidatesWithDependencies entries are examined.
// The dependency_count an entry records is not read: scanning stops at
// the first verified entry whatever that count is.
func (s *Store) CandidateLookup(targetName, targetMD5 string) (Entry, PersistedContext, bool, error) {
	pattern := filepath.Join(s.Root, targetName+"-"+targetMD5+"-*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return Entry{}, PersistedContext{}, false, fmt.Errorf("globbing %s: %w", pattern, err)
	}

	entries := make([]Entry, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.IsDir() {
			continue
		}
		tn, md5, created, ok := parseEntryName(filepath.Base(m))
		if !ok {
			continue
		}
		entries = append(entries, Entry{Dir: m, Name: filepath.Base(m), TargetName: tn, TargetMD5: md5, CreatedMS: created, mtimeHint: info.ModTime()})
	}
	sortEntriesByMtimeDesc(entries)

	checked := 0
	for _, e := range entries {
		if checked >= maxCandidatesWithDependencies {
			break
		}
		checked++

		ctx, ok, err := s.verifyEntry(e, targetMD5)
		if err != nil {
			return Entry{}, PersistedContext{}, false, err
		}
		if !ok {
			continue
		}
		if err := s.Touch(e); err != nil {
			return Entry{}, PersistedContext{}, false, err
		}
		return e, ctx, true, nil
	}
	return Entry{}, PersistedContext{}, false, nil
}

// verifyEntry loads e's context.yml and checks that its recorded
// target_md5 matches targetMD5 and its product_md5 matches the digest of
// its own product.tar. A mismatch on either deletes the entry.
func (s *Store) verifyEntry(e Entry, targetMD5 string) (PersistedContext, bool, error) {
	if !s.hasRequiredFiles(e) {
		slogError("discarding cache entry missing product.tar or context.yml", "dir", e.Dir)
		_ = s.Remove(e)
		return PersistedContext{}, false, nil
	}

	var ctx PersistedContext
	data, err := os.ReadFile(e.ContextPath())
	if err != nil {
		return PersistedContext{}, false, nil //nolint:nilerr // treated as corrupt, not fatal.
	}
	if err := yaml.Unmarshal(data, &ctx); err != nil {
		slogError("discarding cache entry with unparsable context.yml", "dir", e.Dir, "err", err)
		_ = s.Remove(e)
		return PersistedContext{}, false, nil
	}

	if ctx.TargetMD5 != targetMD5 {
		slogError("discarding cache entry whose context.yml target_md5 disagrees with its directory name", "dir", e.Dir)
		_ = s.Remove(e)
		return PersistedContext{}, false, nil
	}

	d := hasher.New()
	sum, err := d.Digest(e.ProductArchivePath(), "")
	if err != nil {
		slogError("discarding cache entry whose archive is unreadable", "dir", e.Dir, "err", err)
		_ = s.Remove(e)
		return PersistedContext{}, false, nil
	}
	if ctx.ProductMD5 != "" && sum != ctx.ProductMD5 {
		slogError("discarding cache entry whose archive content disagrees with its recorded product_md5", "dir", e.Dir)
		_ = s.Remove(e)
		return PersistedContext{}, false, nil
	}

	return ctx, true, nil
}

// Evict removes every entry after the cache_count most recently touched
// ones.
func (s *Store) Evict() (removed int, err error) {
	entries, err := s.listEntries()
	if err != nil {
		return 0, err
	}
	if s.CacheCount < 0 || len(entries) <= s.CacheCount {
		return 0, nil
	}

	var reclaimed int64
	for _, e := range entries[s.CacheCount:] {
		reclaimed += dirSize(e.Dir)
		if err := s.Remove(e); err != nil {
			return removed, fmt.Errorf("evicting %s: %w", e.Dir, err)
		}
		removed++
	}
	if removed > 0 {
		slog.Info("evicted cache entries over cache_count",
			"removed", removed, "reclaimed", units.HumanSize(float64(reclaimed)))
	}
	return removed, nil
}

func dirSize(dir string) int64 {
	var total int64
	_ = filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}

// ReadContext loads and parses e's context.yml, for read-only inspection.
func (s *Store) ReadContext(e Entry) (PersistedContext, error) {
	data, err := os.ReadFile(e.ContextPath())
	if err != nil {
		return PersistedContext{}, fmt.Errorf("reading %s: %w", e.ContextPath(), err)
	}
	var ctx PersistedContext
	if err := yaml.Unmarshal(data, &ctx); err != nil {
		return PersistedContext{}, fmt.Errorf("parsing %s: %w", e.ContextPath(), err)
	}
	return ctx, nil
}

// ReadMessage loads e's message.txt, for read-only inspection.
func (s *Store) ReadMessage(e Entry) (string, error) {
	data, err := os.ReadFile(e.MessagePath())
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", e.MessagePath(), err)
	}
	return string(data), nil
}

// Touch refreshes e's mtime for LRU purposes.
func (s *Store) Touch(e Entry) error {
	now := time.Now()
	if err := os.Chtimes(e.Dir, now, now); err != nil {
		return fmt.Errorf("touching %s: %w", e.Dir, err)
	}
	return nil
}

// ClearAll removes the entire cache root.
func (s *Store) ClearAll() error {
	if err := os.RemoveAll(s.Root); err != nil {
		return fmt.Errorf("clearing cache root %s: %w", s.Root, err)
	}
	return nil
}
