package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ritzau/build-intel/pkg/events"
	"github.com/ritzau/build-intel/pkg/logging"
	"github.com/ritzau/build-intel/pkg/model"
)

// ErrCacheMiss is returned by Retrieve when no valid entry exists for the
// requested target and fingerprint. Stale fingerprints, missing artifact
// files, and checksum mismatches all surface as a miss.
var ErrCacheMiss = errors.New("cache miss")

// keyScheme versions the cache key derivation. Bump it to invalidate every
// entry created by older layouts.
const keyScheme = "v1"

// evictionTargetRatio is how full the cache may be after maintenance
const evictionTargetRatio = 0.8

// Options configures an artifact cache. Replaces any notion of a global
// cache directory; callers pass this explicitly at construction time.
type Options struct {
	Root    string           // Cache root directory
	MaxSize int64            // Total size cap in bytes
	MaxAge  time.Duration    // Entries older than this are expired
	Events  events.Publisher // Optional; maintenance outcomes are published here
}

// TargetStatus is the cache state of a single target
type TargetStatus string

const (
	StatusHit   TargetStatus = "hit"
	StatusMiss  TargetStatus = "miss"
	StatusStale TargetStatus = "stale"
)

// StatusReport summarizes cache health for a set of targets
type StatusReport struct {
	HitRate float64                 `json:"hitRate"`
	Targets map[string]TargetStatus `json:"targets"`
}

// Cache is a content-addressed, size-bounded store of build artifacts with
// LRU eviction and checksum verification. It exclusively owns its metadata
// and backing storage; single-process use only.
type Cache struct {
	opts  Options
	store *metaStore

	mu        sync.Mutex
	totalSize int64
	hits      int64
	misses    int64
	stale     int64
}

// New opens an artifact cache rooted at opts.Root, creating the directory
// layout and metadata store as needed
func New(opts Options) (*Cache, error) {
	if err := os.MkdirAll(filepath.Join(opts.Root, "objects"), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache root: %w", err)
	}

	store, err := openMetaStore(filepath.Join(opts.Root, "metadata.db"))
	if err != nil {
		return nil, err
	}

	c := &Cache{opts: opts, store: store}

	// Rebuild the running size counter from persisted entries
	entries, err := store.all()
	if err != nil {
		_ = store.close()
		return nil, err
	}
	for _, entry := range entries {
		c.totalSize += entry.TotalSize
	}

	logging.Debug("artifact cache opened",
		"root", opts.Root, "entries", len(entries), "size", c.totalSize)
	return c, nil
}

// Close releases the metadata store
func (c *Cache) Close() error {
	return c.store.close()
}

// Key derives the deterministic cache key for a target within a project
func Key(project, target string) string {
	sum := sha256.Sum256([]byte(keyScheme + "|" + project + "|" + target))
	return keyScheme + "-" + hex.EncodeToString(sum[:16])
}

// Store copies the given artifact files into a per-entry directory, computes
// a checksum per artifact, and writes the entry metadata. Overwrites any
// previous entry for the same target. Triggers maintenance when the total
// cache size exceeds the configured cap.
func (c *Cache) Store(target, project string, artifactPaths []string, fingerprint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(project, target)
	id := uuid.NewString()
	entryDir := filepath.Join(c.opts.Root, "objects", id)
	if err := os.MkdirAll(entryDir, 0o755); err != nil {
		return fmt.Errorf("creating entry directory: %w", err)
	}

	entry := &CacheEntry{
		Key:          key,
		ID:           id,
		Target:       target,
		Project:      project,
		Fingerprint:  fingerprint,
		CreatedAt:    time.Now(),
		LastAccessed: time.Now(),
	}

	for _, src := range artifactPaths {
		name := filepath.Base(src)
		dst := filepath.Join(entryDir, name)
		size, checksum, err := copyAndHash(src, dst)
		if err != nil {
			// Abort the whole store: a partial entry must never look valid
			_ = os.RemoveAll(entryDir)
			return fmt.Errorf("copying artifact %s: %w", src, err)
		}
		entry.Artifacts = append(entry.Artifacts, model.Artifact{
			Name:     name,
			Path:     dst,
			Size:     size,
			Checksum: checksum,
		})
		entry.TotalSize += size
	}

	prev, _ := c.store.get(key)

	// Commit the new metadata before touching the previous entry: if the put
	// fails, the old entry must still point at intact artifacts
	if err := c.store.put(entry); err != nil {
		_ = os.RemoveAll(entryDir)
		return err
	}
	c.totalSize += entry.TotalSize

	if prev != nil {
		c.totalSize -= prev.TotalSize
		_ = os.RemoveAll(filepath.Join(c.opts.Root, "objects", prev.ID))
	}

	logging.Debug("stored artifacts",
		"target", target, "artifacts", len(entry.Artifacts), "size", entry.TotalSize)

	if c.totalSize > c.opts.MaxSize {
		if err := c.maintainLocked(); err != nil {
			logging.Warn("cache maintenance failed", "error", err)
		}
	}
	return nil
}

// Retrieve returns the verified artifacts cached for target under the given
// fingerprint, or ErrCacheMiss. Every artifact must exist on disk and match
// its stored checksum; partially-verified entries are never returned.
func (c *Cache) Retrieve(target, project, fingerprint string) ([]model.Artifact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(project, target)
	entry, err := c.store.get(key)
	if err != nil {
		c.misses++
		return nil, fmt.Errorf("%w: %v", ErrCacheMiss, err)
	}
	if entry == nil {
		c.misses++
		return nil, ErrCacheMiss
	}

	if entry.Fingerprint != fingerprint {
		c.stale++
		logging.Debug("cache entry stale",
			"target", target, "stored", entry.Fingerprint, "requested", fingerprint)
		return nil, ErrCacheMiss
	}

	for _, artifact := range entry.Artifacts {
		checksum, err := hashFile(artifact.Path)
		if err != nil {
			c.misses++
			logging.Warn("cached artifact unreadable, treating entry as miss",
				"target", target, "artifact", artifact.Name, "error", err)
			return nil, ErrCacheMiss
		}
		if checksum != artifact.Checksum {
			c.misses++
			logging.Warn("cached artifact checksum mismatch, treating entry as miss",
				"target", target, "artifact", artifact.Name)
			return nil, ErrCacheMiss
		}
	}

	entry.LastAccessed = time.Now()
	if err := c.store.put(entry); err != nil {
		logging.Warn("failed to update last-accessed time", "target", target, "error", err)
	}

	c.hits++
	return entry.Artifacts, nil
}

// AnalyzeStatus reports per-target cache state without counting toward the
// running hit-rate statistics. A target is a hit when a fresh entry exists
// and all its artifacts are still on disk.
func (c *Cache) AnalyzeStatus(targets []string, project string) (*StatusReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	report := &StatusReport{Targets: make(map[string]TargetStatus, len(targets))}
	hits := 0

	for _, target := range targets {
		entry, err := c.store.get(Key(project, target))
		if err != nil {
			return nil, err
		}

		switch {
		case entry == nil:
			report.Targets[target] = StatusMiss
		case time.Since(entry.CreatedAt) > c.opts.MaxAge:
			report.Targets[target] = StatusStale
		case !artifactsPresent(entry):
			report.Targets[target] = StatusMiss
		default:
			report.Targets[target] = StatusHit
			hits++
		}
	}

	if len(targets) > 0 {
		report.HitRate = float64(hits) / float64(len(targets))
	}
	return report, nil
}

// HitRate returns the running effectiveness metric hits/(hits+misses+stale)
func (c *Cache) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses + c.stale
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// TotalSize returns the current total size of all cached artifacts in bytes
func (c *Cache) TotalSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalSize
}

// Maintain expires entries older than MaxAge and, if the cache is still over
// its size cap, evicts entries in ascending last-accessed order (strict LRU)
// until total size falls below the eviction target.
func (c *Cache) Maintain() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maintainLocked()
}

func (c *Cache) maintainLocked() error {
	entries, err := c.store.all()
	if err != nil {
		return err
	}

	var live []*CacheEntry
	expired := 0
	for _, entry := range entries {
		if time.Since(entry.CreatedAt) > c.opts.MaxAge {
			if err := c.removeEntryLocked(entry); err != nil {
				logging.Warn("failed to expire cache entry", "key", entry.Key, "error", err)
				continue
			}
			expired++
			continue
		}
		live = append(live, entry)
	}

	evicted := 0
	if c.totalSize > c.opts.MaxSize {
		sort.Slice(live, func(i, j int) bool {
			return live[i].LastAccessed.Before(live[j].LastAccessed)
		})

		limit := int64(float64(c.opts.MaxSize) * evictionTargetRatio)
		for _, entry := range live {
			if c.totalSize <= limit {
				break
			}
			if err := c.removeEntryLocked(entry); err != nil {
				logging.Warn("failed to evict cache entry", "key", entry.Key, "error", err)
				continue
			}
			evicted++
		}
	}

	if expired > 0 || evicted > 0 {
		logging.Info("cache maintenance complete",
			"expired", expired, "evicted", evicted, "size", c.totalSize)
		if c.opts.Events != nil {
			if err := c.opts.Events.Publish(events.TopicCache, "evicted", map[string]int64{
				"expired": int64(expired),
				"evicted": int64(evicted),
				"size":    c.totalSize,
			}); err != nil {
				logging.Debug("cache event publish failed", "error", err)
			}
		}
	}
	return nil
}

func (c *Cache) removeEntryLocked(entry *CacheEntry) error {
	if err := c.store.delete(entry.Key); err != nil {
		return err
	}
	_ = os.RemoveAll(filepath.Join(c.opts.Root, "objects", entry.ID))
	c.totalSize -= entry.TotalSize
	return nil
}

func artifactsPresent(entry *CacheEntry) bool {
	for _, artifact := range entry.Artifacts {
		if _, err := os.Stat(artifact.Path); err != nil {
			return false
		}
	}
	return true
}

// copyAndHash copies src to dst, returning the number of bytes copied and
// the hex-encoded SHA-256 of the content
func copyAndHash(src, dst string) (int64, string, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = out.Close() }()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(out, hasher), in)
	if err != nil {
		return 0, "", err
	}

	return size, hex.EncodeToString(hasher.Sum(nil)), nil
}

// hashFile returns the hex-encoded SHA-256 of a file's content
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
