// Package summary implements the TTL-bounded summarization cache and the
// LLM summarizer that consults it.
package summary

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"inbox_worker/core/domain"
	"inbox_worker/pkg/logger"
)

// DefaultTTL is how long a cached summary stays valid.
const DefaultTTL = 24 * time.Hour

// CacheEntry is one cached summarization result. Timestamp is the
// cache-write time (unix seconds) used for TTL, distinct from any message
// timestamp.
type CacheEntry struct {
	Summary              string            `json:"summary"`
	Role                 domain.Role       `json:"role,omitempty"`
	RoleConfidence       float64           `json:"role_confidence,omitempty"`
	Importance           domain.Importance `json:"importance,omitempty"`
	ImportanceConfidence float64           `json:"importance_confidence,omitempty"`
	Timestamp            int64             `json:"timestamp"`
}

// cacheFile is the on-disk layout: summaries plus bookkeeping.
type cacheFile struct {
	Summaries   map[string]*CacheEntry `json:"summaries"`
	Seen        map[string][]string    `json:"seen"`
	LastUpdated string                 `json:"last_updated,omitempty"`
}

// SummaryCache is the explicit cache object injected into every component
// that needs it. Single writer process; the whole file is read at load and
// written back on flush.
type SummaryCache struct {
	mu   sync.Mutex
	path string
	ttl  time.Duration

	entries map[string]*CacheEntry
	seen    map[domain.Source]map[string]bool

	// now is swappable for TTL tests.
	now func() time.Time
}

// NewSummaryCache creates a cache backed by the given JSON file.
// A non-positive ttl falls back to DefaultTTL.
func NewSummaryCache(path string, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SummaryCache{
		path:    path,
		ttl:     ttl,
		entries: make(map[string]*CacheEntry),
		seen:    make(map[domain.Source]map[string]bool),
		now:     time.Now,
	}
}

// Key builds the canonical per-thread cache key. All three dimensions are
// included so keys never collide across sources or contacts.
func Key(source domain.Source, contactEmail, threadID string) string {
	return string(source) + ":" + strings.ToLower(contactEmail) + ":" + threadID
}

// ContactKey builds the contact-level rollup key.
func ContactKey(source domain.Source, contactEmail string) string {
	return string(source) + ":" + strings.ToLower(contactEmail)
}

// Load reads the cache file. A missing file yields an empty cache. A file
// with invalid JSON is preserved under a ".corrupt" suffix and replaced by
// an empty cache, so the worker degrades to re-summarizing everything
// instead of crashing. Expired entries are dropped as part of loading.
func (c *SummaryCache) Load() error {
	c.mu.Lock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.WithError(err).Warn("summary cache read failed, starting fresh")
		}
		c.mu.Unlock()
		return nil
	}

	var file cacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		corruptPath := c.path + ".corrupt"
		if renameErr := os.Rename(c.path, corruptPath); renameErr != nil {
			logger.WithError(renameErr).Error("failed to quarantine corrupt cache file")
		} else {
			logger.WithField("path", corruptPath).Warn("corrupt cache file quarantined, starting fresh")
		}
		c.mu.Unlock()
		return nil
	}

	c.entries = file.Summaries
	if c.entries == nil {
		c.entries = make(map[string]*CacheEntry)
	}
	c.seen = make(map[domain.Source]map[string]bool)
	for src, ids := range file.Seen {
		set := make(map[string]bool, len(ids))
		for _, id := range ids {
			set[id] = true
		}
		c.seen[domain.Source(src)] = set
	}
	c.mu.Unlock()

	c.CleanupExpired()
	return nil
}

// Flush writes the whole cache back to disk.
func (c *SummaryCache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

func (c *SummaryCache) flushLocked() error {
	file := cacheFile{
		Summaries:   c.entries,
		Seen:        make(map[string][]string, len(c.seen)),
		LastUpdated: c.now().UTC().Format(time.RFC3339),
	}
	for src, set := range c.seen {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		file.Seen[string(src)] = ids
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(c.path, data, 0o644)
}

func (c *SummaryCache) expiredLocked(e *CacheEntry) bool {
	return c.now().Unix()-e.Timestamp > int64(c.ttl/time.Second)
}

// Get returns the cached thread summary, or misses when absent or expired.
// Expired entries are removed and the removal persisted.
func (c *SummaryCache) Get(source domain.Source, contactEmail, threadID string) (string, bool) {
	entry, ok := c.GetEntry(source, contactEmail, threadID)
	if !ok {
		return "", false
	}
	return entry.Summary, true
}

// GetEntry returns a copy of the full cache entry for a thread.
func (c *SummaryCache) GetEntry(source domain.Source, contactEmail, threadID string) (CacheEntry, bool) {
	return c.getByKey(Key(source, contactEmail, threadID))
}

// GetContactEntry returns the contact-level rollup entry.
func (c *SummaryCache) GetContactEntry(source domain.Source, contactEmail string) (CacheEntry, bool) {
	return c.getByKey(ContactKey(source, contactEmail))
}

func (c *SummaryCache) getByKey(key string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return CacheEntry{}, false
	}
	if c.expiredLocked(entry) {
		delete(c.entries, key)
		if err := c.flushLocked(); err != nil {
			logger.WithError(err).Warn("cache flush after expiry failed")
		}
		return CacheEntry{}, false
	}
	return *entry, true
}

// Set stores a thread summary with its classification, stamping the write
// time. Re-setting an existing key resets its TTL.
func (c *SummaryCache) Set(source domain.Source, contactEmail, threadID string, entry CacheEntry) {
	c.setByKey(Key(source, contactEmail, threadID), entry)
}

// SetContactSummary stores the contact-level rollup summary.
func (c *SummaryCache) SetContactSummary(source domain.Source, contactEmail, summaryText string) {
	c.setByKey(ContactKey(source, contactEmail), CacheEntry{Summary: summaryText})
}

func (c *SummaryCache) setByKey(key string, entry CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry.Timestamp = c.now().Unix()
	c.entries[key] = &entry
	if err := c.flushLocked(); err != nil {
		logger.WithError(err).Warn("cache flush failed")
	}
}

// UpdateEntry mutates an existing thread entry in place (used to backfill
// classification fields on older entries) without resetting its TTL.
func (c *SummaryCache) UpdateEntry(source domain.Source, contactEmail, threadID string, update func(*CacheEntry)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(source, contactEmail, threadID)
	entry, ok := c.entries[key]
	if !ok || c.expiredLocked(entry) {
		return false
	}
	update(entry)
	if err := c.flushLocked(); err != nil {
		logger.WithError(err).Warn("cache flush failed")
	}
	return true
}

// Invalidate drops one thread-scoped key, forcing regeneration on the next
// lookup. Called when a thread gained new messages.
func (c *SummaryCache) Invalidate(source domain.Source, contactEmail, threadID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(source, contactEmail, threadID)
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	if err := c.flushLocked(); err != nil {
		logger.WithError(err).Warn("cache flush after invalidate failed")
	}
}

// ClearContact removes every key belonging to a contact: the thread-scoped
// keys and the contact-level rollup. Used on force-refresh.
func (c *SummaryCache) ClearContact(source domain.Source, contactEmail string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := ContactKey(source, contactEmail)
	removed := 0
	for key := range c.entries {
		if key == prefix || strings.HasPrefix(key, prefix+":") {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		if err := c.flushLocked(); err != nil {
			logger.WithError(err).Warn("cache flush after clear failed")
		}
	}
	return removed
}

// CleanupExpired removes every entry past its TTL. The file is rewritten
// only when at least one key was removed.
func (c *SummaryCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if c.expiredLocked(entry) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		if err := c.flushLocked(); err != nil {
			logger.WithError(err).Warn("cache flush after cleanup failed")
		}
	}
	return removed
}

// MarkSeen records a processed thread ID for a source.
func (c *SummaryCache) MarkSeen(source domain.Source, threadID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seen[source] == nil {
		c.seen[source] = make(map[string]bool)
	}
	c.seen[source][threadID] = true
}

// Seen reports whether a thread ID was processed before.
func (c *SummaryCache) Seen(source domain.Source, threadID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen[source][threadID]
}

// Len returns the number of live summary entries.
func (c *SummaryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
