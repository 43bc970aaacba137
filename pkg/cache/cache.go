// Package cache implements the process-wide NodeId -> DataValue
// mapping specified as C1 in spec.md §4.1: a single-writer-at-a-time,
// multi-reader dictionary with reference semantics (values are owned
// by the cache). It mirrors the lock-around-critical-section idiom
// the teacher module uses for its own shared state (pkg/kgo/broker.go
// guards connection/request maps with a plain sync.RWMutex, taking the
// lock only around the section that touches the map) and the
// dictionary-plus-mutex design of the original source's uam_cache.c
// (a single SOPC_Dict guarded by one Mutex).
package cache

import (
	"sync"

	"github.com/systerel/S2OPC-sub031/pkg/uas"
)

// ReadValueId names one entry to read in a GetSource batch.
type ReadValueId struct {
	NodeId uas.NodeId
}

// WriteValue names one entry to write in a SetTarget batch.
type WriteValue struct {
	NodeId uas.NodeId
	Value  uas.DataValue
}

// Cache is the C1 component. The zero value is not usable; construct
// with New.
type Cache struct {
	mu         sync.RWMutex
	entries    map[uas.NodeId]uas.DataValue
	maxEntries int // 0 means unbounded
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithMaxEntries bounds the number of distinct NodeIds the cache will
// hold. Exceeding it on Set/SetTarget is this implementation's
// concrete trigger for the *out-of-memory* error kind (spec.md §7);
// see DESIGN.md's Open Question decision. Zero (the default) means
// unbounded.
func WithMaxEntries(n int) Option {
	return func(c *Cache) { c.maxEntries = n }
}

// New constructs an empty Cache.
func New(opts ...Option) *Cache {
	c := &Cache{entries: make(map[uas.NodeId]uas.DataValue)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Seed is one (NodeId, default DataValue) pair used by Init to
// pre-populate the cache from configuration (spec.md §4.1: "seeds an
// entry of default value for every publisher and every subscriber
// field declared in the configuration").
type Seed struct {
	NodeId  uas.NodeId
	Default uas.DataValue
}

// Init seeds the cache from the given configuration. It fails with
// uas.ErrOutOfMemory if adding the seeds would exceed WithMaxEntries.
func (c *Cache) Init(seeds []Seed) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxEntries > 0 {
		need := len(c.entries)
		for _, s := range seeds {
			if _, exists := c.entries[s.NodeId]; !exists {
				need++
			}
		}
		if need > c.maxEntries {
			return uas.ErrOutOfMemory
		}
	}
	for _, s := range seeds {
		c.entries[s.NodeId] = s.Default
	}
	return nil
}

// Get returns the currently stored value for id. The caller does not
// get a reference into cache-owned memory across calls — Go's GC
// means there is no borrow-lifetime hazard the way spec.md §4.1
// describes for the source language, but callers still must not
// mutate the returned DataValue.Bytes/ExtObject.Body in place; treat
// it as read-only.
func (c *Cache) Get(id uas.NodeId) (uas.DataValue, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[id]
	if !ok {
		return uas.DataValue{}, uas.New(uas.KindNotFound, "node %s not found", id)
	}
	return v, nil
}

// Set transfers ownership of value into the cache under id, replacing
// any previous value. Returns uas.ErrOutOfMemory if this would add a
// new key past WithMaxEntries.
func (c *Cache) Set(id uas.NodeId, value uas.DataValue) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setLocked(id, value)
}

func (c *Cache) setLocked(id uas.NodeId, value uas.DataValue) error {
	if _, exists := c.entries[id]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		return uas.ErrOutOfMemory
	}
	c.entries[id] = value
	return nil
}

// GetSource returns deep copies of the current values for a batch of
// reads, used by the publisher scheduler (spec.md §4.1, §6). The
// whole batch is read under a single lock acquisition so the snapshot
// is coherent.
func (c *Cache) GetSource(ids []ReadValueId) ([]uas.DataValue, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]uas.DataValue, len(ids))
	for i, rv := range ids {
		v, ok := c.entries[rv.NodeId]
		if !ok {
			return nil, uas.New(uas.KindNotFound, "node %s not found", rv.NodeId)
		}
		out[i] = v.Clone()
	}
	return out, nil
}

// SetTarget performs a batch write from the subscriber; each write
// moves the incoming DataValue into the cache (not a copy). The whole
// batch is written under a single lock acquisition.
func (c *Cache) SetTarget(writes []WriteValue) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range writes {
		if err := c.setLocked(w.NodeId, w.Value); err != nil {
			return err
		}
	}
	return nil
}

// Lock acquires the cache's write lock for the duration of a codec
// decode/encode-in-place call (spec.md §4.1: "exposed so the safety
// core can hold the lock while reading an entry and decoding its
// ExtensionObject contents"). Callers must not call back into the
// Cache's own Get/Set/GetSource/SetTarget while holding it — the lock
// is non-recursive.
func (c *Cache) Lock() { c.mu.Lock() }

// Unlock releases the lock acquired by Lock.
func (c *Cache) Unlock() { c.mu.Unlock() }

// GetLocked is Get without acquiring the lock, for use by a caller
// that already holds it via Lock().
func (c *Cache) GetLocked(id uas.NodeId) (uas.DataValue, error) {
	v, ok := c.entries[id]
	if !ok {
		return uas.DataValue{}, uas.New(uas.KindNotFound, "node %s not found", id)
	}
	return v, nil
}

// SetLocked is Set without acquiring the lock, for use by a caller
// that already holds it via Lock().
func (c *Cache) SetLocked(id uas.NodeId, value uas.DataValue) error {
	return c.setLocked(id, value)
}

// Len reports the number of entries currently held, for diagnostics.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns a deep copy of every (NodeId, DataValue) pair
// currently held, for forensic capture (bridge.DiagnosticDump) rather
// than steady-state scheduler traffic — prefer GetSource for that.
func (c *Cache) Snapshot() map[uas.NodeId]uas.DataValue {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[uas.NodeId]uas.DataValue, len(c.entries))
	for k, v := range c.entries {
		out[k] = v.Clone()
	}
	return out
}
