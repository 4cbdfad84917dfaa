package state

import (
	"sync"
	"time"
)

// Tracker is the run-wide dedup service shared by all parse workers.
// Every check-and-insert is a single critical section.
type Tracker interface {
	ClaimFile(hash string) bool
	LookupMessage(hash string) (*time.Location, bool)
	ClaimMessage(hash string, loc *time.Location) (*time.Location, bool)
	Snapshot() Snapshot
}

type Snapshot struct {
	Files    int
	Messages int
}

// MemoryTracker keeps both caches behind one mutex. Nothing is persisted;
// every run starts empty.
type MemoryTracker struct {
	mu       sync.Mutex
	files    map[string]struct{}
	messages map[string]*time.Location
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		files:    make(map[string]struct{}),
		messages: make(map[string]*time.Location),
	}
}

// ClaimFile records a whole-file hash. It returns false when another worker
// already claimed the same content.
func (m *MemoryTracker) ClaimFile(hash string) bool {
	if hash == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[hash]; ok {
		return false
	}
	m.files[hash] = struct{}{}
	return true
}

// LookupMessage returns the zone stored for a message hash, if any.
func (m *MemoryTracker) LookupMessage(hash string) (*time.Location, bool) {
	m.mu.Lock()
	loc, ok := m.messages[hash]
	m.mu.Unlock()
	return loc, ok
}

// ClaimMessage stores loc under hash unless the hash is already known. The
// returned location is whatever the cache holds afterwards; claimed reports
// whether this call inserted it.
func (m *MemoryTracker) ClaimMessage(hash string, loc *time.Location) (*time.Location, bool) {
	if loc == nil {
		loc = time.UTC
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.messages[hash]; ok {
		return existing, false
	}
	m.messages[hash] = loc
	return loc, true
}

func (m *MemoryTracker) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{Files: len(m.files), Messages: len(m.messages)}
}

// Reset drops both caches.
func (m *MemoryTracker) Reset() {
	m.mu.Lock()
	m.files = make(map[string]struct{})
	m.messages = make(map[string]*time.Location)
	m.mu.Unlock()
}
