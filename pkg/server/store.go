package server

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Entry is the per-session instance table: the session's socket plus at most
// one component per registered type.
type Entry struct {
	key    string
	socket *Socket

	mu         sync.Mutex
	components map[string]Component
	order      []string
	removed    bool

	// dispatch serializes message handling for the session.
	dispatch sync.Mutex
}

// Key returns the session key.
func (e *Entry) Key() string {
	return e.key
}

// Socket returns the session socket.
func (e *Entry) Socket() *Socket {
	return e.socket
}

// Component returns the live instance for typeID, if any.
func (e *Entry) Component(typeID string) (Component, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.components[typeID]
	return c, ok
}

// Components returns the session's instances in creation order.
func (e *Entry) Components() []Component {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Component, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.components[id])
	}
	return out
}

// component returns the instance for typeID, constructing it on first use.
// Construction happens under the entry lock, so concurrent first messages
// build exactly one instance.
func (e *Entry) component(typeID string, factory Factory) (Component, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return nil, errEntryRemoved
	}
	if c, ok := e.components[typeID]; ok {
		return c, nil
	}

	c := factory(e.socket)
	if c == nil {
		return nil, fmt.Errorf("%w: %q", ErrNilComponent, typeID)
	}
	c.base().bind(typeID, c)
	c.LinkSocket(e.socket)

	e.components[typeID] = c
	e.order = append(e.order, typeID)
	return c, nil
}

// teardown shuts the socket down and closes every component.
// It reports whether the socket was still open.
func (e *Entry) teardown() bool {
	e.mu.Lock()
	e.removed = true
	comps := make([]Component, 0, len(e.order))
	for _, id := range e.order {
		comps = append(comps, e.components[id])
	}
	e.mu.Unlock()

	closed := e.socket.Shutdown()
	for _, c := range comps {
		c.Close()
	}
	return closed
}

// StoreStats are cumulative session counters.
type StoreStats struct {
	Created uint64
	Removed uint64
	Reaped  uint64
}

type storeShard struct {
	mu       sync.RWMutex
	sessions map[string]*Entry
}

// Store maps session keys to entries. The table is sharded by key hash so
// lookups and inserts for unrelated sessions never contend on one lock.
type Store struct {
	shards   []*storeShard
	mask     uint32
	registry *Registry
	config   *SessionConfig
	logger   *slog.Logger

	created atomic.Uint64
	removed atomic.Uint64
	reaped  atomic.Uint64
}

// NewStore creates a store resolving component types through registry.
func NewStore(registry *Registry, config *SessionConfig, logger *slog.Logger) *Store {
	config = config.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	n := nextPowerOfTwo(uint32(config.Shards))
	shards := make([]*storeShard, n)
	for i := range shards {
		shards[i] = &storeShard{sessions: make(map[string]*Entry)}
	}
	return &Store{
		shards:   shards,
		mask:     n - 1,
		registry: registry,
		config:   config,
		logger:   logger.With("component", "store"),
	}
}

// Registry returns the component registry.
func (s *Store) Registry() *Registry {
	return s.registry
}

// Config returns the store's effective session configuration.
func (s *Store) Config() *SessionConfig {
	return s.config
}

func (s *Store) shard(key string) *storeShard {
	return s.shards[fnv32(key)&s.mask]
}

// entry returns the entry for key, creating it and its socket if absent.
func (s *Store) entry(key string) *Entry {
	sh := s.shard(key)

	sh.mu.RLock()
	e, ok := sh.sessions[key]
	sh.mu.RUnlock()
	if ok {
		return e
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok := sh.sessions[key]; ok {
		return e
	}
	e = &Entry{
		key:        key,
		socket:     newSocket(key, s.config, s.logger),
		components: make(map[string]Component),
	}
	sh.sessions[key] = e
	s.created.Add(1)
	s.logger.Debug("session created", "session", key)
	return e
}

// GetOrCreate resolves the session's socket and its component of type
// typeID, creating either if absent. Concurrent callers for the same pair
// receive the same instances.
func (s *Store) GetOrCreate(key, typeID string) (*Entry, *Socket, Component, error) {
	reg, ok := s.registry.Lookup(typeID)
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %q", ErrUnknownComponent, typeID)
	}

	for {
		e := s.entry(key)
		c, err := e.component(typeID, reg.Factory)
		if err == errEntryRemoved {
			continue
		}
		if err != nil {
			return nil, nil, nil, err
		}
		return e, e.socket, c, nil
	}
}

// Get returns the entry for key, or nil.
func (s *Store) Get(key string) *Entry {
	sh := s.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.sessions[key]
}

// Remove detaches the entry for key and returns it. Later lookups start fresh.
func (s *Store) Remove(key string) *Entry {
	sh := s.shard(key)
	sh.mu.Lock()
	e, ok := sh.sessions[key]
	if ok {
		delete(sh.sessions, key)
	}
	sh.mu.Unlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
	s.removed.Add(1)
	return e
}

// removeIf removes key only while it still maps to e.
func (s *Store) removeIf(key string, e *Entry) bool {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.sessions[key] != e {
		return false
	}
	delete(sh.sessions, key)
	s.removed.Add(1)
	return true
}

// Close removes the session and tears it down: the socket is shut down and
// every component is closed. It reports whether the session existed.
func (s *Store) Close(key string) bool {
	e := s.Remove(key)
	if e == nil {
		return false
	}
	e.teardown()
	s.logger.Debug("session closed", "session", key)
	return true
}

// ForEach calls fn for every session until fn returns false. Each shard is
// snapshotted under its read lock and fn runs outside all store locks, so
// sessions created during the walk may or may not be visited.
func (s *Store) ForEach(fn func(*Entry) bool) {
	for _, sh := range s.shards {
		sh.mu.RLock()
		snapshot := make([]*Entry, 0, len(sh.sessions))
		for _, e := range sh.sessions {
			snapshot = append(snapshot, e)
		}
		sh.mu.RUnlock()

		for _, e := range snapshot {
			if !fn(e) {
				return
			}
		}
	}
}

// Count returns the number of sessions.
func (s *Store) Count() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// Attached returns the number of sessions with a bound connection.
func (s *Store) Attached() int {
	n := 0
	s.ForEach(func(e *Entry) bool {
		if e.socket.Attached() {
			n++
		}
		return true
	})
	return n
}

// Stats returns cumulative session counters.
func (s *Store) Stats() StoreStats {
	return StoreStats{
		Created: s.created.Load(),
		Removed: s.removed.Load(),
		Reaped:  s.reaped.Load(),
	}
}

// Reap tears down sessions that have been detached and silent for at least
// the resume window. A zero window disables reaping.
func (s *Store) Reap(now time.Time) int {
	window := s.config.ResumeWindow
	if window <= 0 {
		return 0
	}

	n := 0
	s.ForEach(func(e *Entry) bool {
		if e.socket.Idle(now) < window {
			return true
		}
		if !s.removeIf(e.key, e) {
			return true
		}
		e.teardown()
		n++
		return true
	})
	if n > 0 {
		s.reaped.Add(uint64(n))
		s.logger.Info("reaped idle sessions", "count", n)
	}
	return n
}

// Run reaps idle sessions every ReapInterval until ctx is done.
func (s *Store) Run(ctx context.Context) {
	if s.config.ResumeWindow <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(s.config.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Reap(now)
		}
	}
}

// fnv32 hashes a session key.
func fnv32(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

// nextPowerOfTwo returns the smallest power of two >= v.
func nextPowerOfTwo(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	return v + 1
}
