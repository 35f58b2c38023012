// Package cache implements the cache core (C7): a keyed, concurrency-safe
// store with TTL-by-data-class, size-bounded LRU eviction, opaque
// compression above a size threshold, and hit/miss/popularity accounting.
// The default backend is in-memory; an optional Redis-backed backend lives
// in redis.go behind the same Store interface for deployments that want
// the cache to survive a restart.
package cache

import (
	"container/list"
	"encoding/json"
	"sync"
	"time"

	"github.com/guglxni/quotefusion/internal/model"
)

// Store is the cache core's public contract.
type Store interface {
	Get(key string) (model.RawRecord, bool)
	Put(provider model.Provider, class model.DataClass, symbol string, data model.RawRecord) (key string, err error)
	PutAlias(aliasKey string, expiresAt time.Time, data model.RawRecord) error
	InvalidateProvider(provider model.Provider)
	InvalidateExpired()
	GetPopular(limit int) []string
	Clear()
	CurrentSize() int64
	OnChange(fn func())
}

// TTLPolicy holds the time-to-live for each DataClass. A class whose
// duration is zero, or a class not listed, uses Default; when Default is
// zero too, ttlFor uses five minutes.
type TTLPolicy struct {
	Price, Historical, GlobalMarket, Default time.Duration
}

// Config bounds the memory store's behaviour.
type Config struct {
	MaxSizeBytes              int64
	CompressionThresholdBytes int64
	MaxConcurrentOps          int
	TTL                       TTLPolicy
}

type entry struct {
	rec        model.RawRecord
	cachedAt   time.Time
	expiresAt  time.Time
	hitCount   int64
	lastAccess time.Time
	sizeBytes  int64
	compressed bool
	raw        []byte // json or RLE-compressed json, per compressed flag
	elem       *list.Element
}

// Memory is the default, in-process cache-core implementation. Get takes
// the write lock, since a hit updates the entry's hit count and LRU
// position; Put and PutAlias additionally acquire a bounded semaphore so a
// burst of concurrent puts cannot starve latency-sensitive paths.
type Memory struct {
	cfg Config

	mu      sync.RWMutex
	entries map[string]*entry
	lru     *list.List // front = least recently used
	size    int64

	sem chan struct{}

	// onChange, when set, is invoked (without mu held) after an eviction
	// sweep actually removes one or more entries, so an operational status
	// server can push a fresh snapshot to its websocket clients.
	onChange func()
}

func NewMemory(cfg Config) *Memory {
	if cfg.MaxConcurrentOps <= 0 {
		cfg.MaxConcurrentOps = 10
	}
	return &Memory{
		cfg:     cfg,
		entries: make(map[string]*entry),
		lru:     list.New(),
		sem:     make(chan struct{}, cfg.MaxConcurrentOps),
	}
}

func (m *Memory) ttlFor(class model.DataClass) time.Duration {
	switch class {
	case model.DataClassPrice:
		if m.cfg.TTL.Price > 0 {
			return m.cfg.TTL.Price
		}
	case model.DataClassHistorical:
		if m.cfg.TTL.Historical > 0 {
			return m.cfg.TTL.Historical
		}
	case model.DataClassGlobalMarket:
		if m.cfg.TTL.GlobalMarket > 0 {
			return m.cfg.TTL.GlobalMarket
		}
	}
	if m.cfg.TTL.Default > 0 {
		return m.cfg.TTL.Default
	}
	return 5 * time.Minute
}

// Get returns the live value for key, or (_, false) if absent or expired.
// An expired entry is removed inline. A hit advances hit_count,
// last_accessed, and LRU recency.
func (m *Memory) Get(key string) (model.RawRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return model.RawRecord{}, false
	}
	now := time.Now()
	if !now.Before(e.expiresAt) {
		m.removeLocked(key)
		return model.RawRecord{}, false
	}
	e.hitCount++
	e.lastAccess = now
	m.lru.MoveToBack(e.elem)

	rec, err := decode(e.raw, e.compressed)
	if err != nil {
		// Corrupt entry; treat as a miss rather than panic the caller.
		m.removeLocked(key)
		return model.RawRecord{}, false
	}
	return rec, true
}

// Put computes the cache key, chooses the TTL by class, estimates and
// possibly compresses the payload, evicts LRU entries until the post-insert
// size is within budget, and inserts.
func (m *Memory) Put(provider model.Provider, class model.DataClass, symbol string, data model.RawRecord) (string, error) {
	m.sem <- struct{}{}
	defer func() { <-m.sem }()

	key := model.CacheKey(provider, class, symbol)
	now := time.Now()
	expiresAt := now.Add(m.ttlFor(class))

	raw, compressed, size, err := encode(data, m.cfg.CompressionThresholdBytes)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	evicted := m.insertLocked(key, &entry{
		rec: data, cachedAt: now, expiresAt: expiresAt,
		lastAccess: now, sizeBytes: size, compressed: compressed, raw: raw,
	})
	m.mu.Unlock()
	if evicted {
		m.notify()
	}
	return key, nil
}

// PutAlias inserts a thin alias entry sharing data and an explicit
// expires_at (used by the fetch orchestrator to cache a fallback
// provider's result under the preferred provider's key, per §4.6 step 4d).
func (m *Memory) PutAlias(aliasKey string, expiresAt time.Time, data model.RawRecord) error {
	raw, compressed, size, err := encode(data, m.cfg.CompressionThresholdBytes)
	if err != nil {
		return err
	}
	m.sem <- struct{}{}
	defer func() { <-m.sem }()

	now := time.Now()
	m.mu.Lock()
	evicted := m.insertLocked(aliasKey, &entry{
		rec: data, cachedAt: now, expiresAt: expiresAt,
		lastAccess: now, sizeBytes: size, compressed: compressed, raw: raw,
	})
	m.mu.Unlock()
	if evicted {
		m.notify()
	}
	return nil
}

// insertLocked performs the insert-then-evict critical section and reports
// whether the size-bound eviction loop removed any entry. Caller holds mu.
func (m *Memory) insertLocked(key string, e *entry) (evicted bool) {
	if old, ok := m.entries[key]; ok {
		m.size -= old.sizeBytes
		m.lru.Remove(old.elem)
		delete(m.entries, key)
	}
	e.elem = m.lru.PushBack(key)
	m.entries[key] = e
	m.size += e.sizeBytes

	for m.size > m.cfg.MaxSizeBytes && m.lru.Len() > 0 {
		front := m.lru.Front()
		victimKey := front.Value.(string)
		m.removeLocked(victimKey)
		evicted = true
	}
	return evicted
}

// removeLocked deletes key from both maps and the size tally. Caller holds
// mu.
func (m *Memory) removeLocked(key string) {
	e, ok := m.entries[key]
	if !ok {
		return
	}
	m.lru.Remove(e.elem)
	delete(m.entries, key)
	m.size -= e.sizeBytes
}

// InvalidateProvider removes every entry whose key has provider's prefix.
func (m *Memory) InvalidateProvider(provider model.Provider) {
	m.mu.Lock()
	prefix := string(provider) + ":"
	evicted := false
	for key := range m.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			m.removeLocked(key)
			evicted = true
		}
	}
	m.mu.Unlock()
	if evicted {
		m.notify()
	}
}

// InvalidateExpired sweeps every entry whose TTL has elapsed.
func (m *Memory) InvalidateExpired() {
	m.mu.Lock()
	now := time.Now()
	evicted := false
	for key, e := range m.entries {
		if !now.Before(e.expiresAt) {
			m.removeLocked(key)
			evicted = true
		}
	}
	m.mu.Unlock()
	if evicted {
		m.notify()
	}
}

// OnChange registers fn to be invoked after an eviction sweep removes one or
// more entries. Only one callback is kept; a later call replaces an earlier
// one.
func (m *Memory) OnChange(fn func()) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// notify invokes the registered onChange callback, if any, without holding
// mu.
func (m *Memory) notify() {
	m.mu.RLock()
	fn := m.onChange
	m.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// GetPopular returns up to limit keys ordered by descending hit_count.
func (m *Memory) GetPopular(limit int) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type kv struct {
		key string
		hit int64
	}
	all := make([]kv, 0, len(m.entries))
	for key, e := range m.entries {
		all = append(all, kv{key, e.hitCount})
	}
	// Simple selection; cache sizes here are small enough that O(n log n)
	// via sort would be the production choice, but a bounded partial
	// selection avoids importing sort for a handful of candidates.
	for i := 0; i < len(all) && i < limit; i++ {
		maxIdx := i
		for j := i + 1; j < len(all); j++ {
			if all[j].hit > all[maxIdx].hit {
				maxIdx = j
			}
		}
		all[i], all[maxIdx] = all[maxIdx], all[i]
	}
	if limit > len(all) {
		limit = len(all)
	}
	out := make([]string, limit)
	for i := 0; i < limit; i++ {
		out[i] = all[i].key
	}
	return out
}

// Clear removes every entry.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*entry)
	m.lru = list.New()
	m.size = 0
}

// CurrentSize returns the tracked total size in bytes, which equals the sum
// of every live entry's size_bytes at every observable point between
// public calls.
func (m *Memory) CurrentSize() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// encode marshals data to JSON, and applies a run-length placeholder
// compressor when the result exceeds threshold. Compression is opaque to
// callers: decode is its exact inverse regardless of which path was taken.
// This is explicitly a placeholder codec; swapping it for a real one
// (gzip, zstd) changes nothing about the Store contract.
func encode(data model.RawRecord, threshold int64) (raw []byte, compressed bool, size int64, err error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, false, 0, err
	}
	if int64(len(b)) > threshold && threshold > 0 {
		rle := runLengthEncode(b)
		if len(rle) < len(b) {
			return rle, true, int64(len(rle)), nil
		}
	}
	return b, false, int64(len(b)), nil
}

func decode(raw []byte, compressed bool) (model.RawRecord, error) {
	b := raw
	if compressed {
		b = runLengthDecode(raw)
	}
	var rec model.RawRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return model.RawRecord{}, err
	}
	return rec, nil
}
