package cache

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/ifs-auth/internal/repository"
)

// MemoryStore is a process-local CacheStore. It only suits a single instance
// (local development and tests) since revocations are not shared.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
	failErr error
	writes  int
}

// sweepEvery is the number of writes between full expiry sweeps.
const sweepEvery = 1024

type memoryEntry struct {
	value     string
	count     int64
	expiresAt time.Time
}

var _ repository.CacheStore = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty store. A nil clock uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{entries: make(map[string]memoryEntry), now: now}
}

// FailWith makes every call return an ErrRegistryUnavailable wrapping err.
// Passing nil restores normal operation.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

func (s *MemoryStore) check(op string) error {
	if s.failErr != nil {
		return unavailable(op, s.failErr)
	}
	return nil
}

// get returns the live entry for key, evicting it when expired. Caller holds mu.
func (s *MemoryStore) get(key string) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

// noteWrite drops expired entries that were never read again. Caller holds mu.
func (s *MemoryStore) noteWrite() {
	s.writes++
	if s.writes%sweepEvery != 0 {
		return
	}
	now := s.now()
	for key, e := range s.entries {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}

func (s *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("setnx"); err != nil {
		return false, err
	}
	if _, ok := s.get(key); ok {
		return false, nil
	}
	s.entries[key] = memoryEntry{value: value, expiresAt: s.expiry(ttl)}
	s.noteWrite()
	return true, nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("exists"); err != nil {
		return false, err
	}
	_, ok := s.get(key)
	return ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("del"); err != nil {
		return err
	}
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("incr"); err != nil {
		return 0, err
	}
	e, _ := s.get(key)
	e.count++
	e.expiresAt = s.expiry(ttl)
	s.entries[key] = e
	s.noteWrite()
	return e.count, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.check("ping")
}

// TTL returns the remaining lifetime of key, or zero when absent or persistent.
func (s *MemoryStore) TTL(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.get(key)
	if !ok || e.expiresAt.IsZero() {
		return 0
	}
	return e.expiresAt.Sub(s.now())
}

// Len reports the number of live keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.entries {
		if _, ok := s.get(key); ok {
			n++
		}
	}
	return n
}
