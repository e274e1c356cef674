package farez

import (
	"fmt"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zoobzio/clockz"
)

// Encode serializes a value with msgpack.
func Encode[T any](value T) ([]byte, error) {
	return msgpack.Marshal(value)
}

// Decode deserializes msgpack bytes into a value of type T.
func Decode[T any](data []byte) (T, error) {
	var value T
	err := msgpack.Unmarshal(data, &value)
	return value, err
}

type storeEntry struct {
	stored time.Time
	data   []byte
}

// Store is a keyed store for cross-step snapshots, safe for concurrent
// use. Values are held encoded, so a stored snapshot cannot be changed
// through the caller's copy. Entries older than the TTL read as absent.
type Store[V any] struct {
	clock   clockz.Clock
	entries map[string]storeEntry
	ttl     time.Duration
	mu      sync.RWMutex
}

// NewStore creates an empty store. A ttl of zero keeps entries forever.
func NewStore[V any](ttl time.Duration) *Store[V] {
	return &Store[V]{
		clock:   clockz.RealClock,
		entries: make(map[string]storeEntry),
		ttl:     ttl,
	}
}

// WithClock sets the clock used for expiry.
func (s *Store[V]) WithClock(clock clockz.Clock) *Store[V] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
	return s
}

// Put stores value under key, replacing any previous value.
func (s *Store[V]) Put(key string, value V) error {
	data, err := Encode(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = storeEntry{data: data, stored: s.clock.Now()}
	return nil
}

// Get returns the value stored under key, or ErrSnapshotNotFound.
func (s *Store[V]) Get(key string) (V, error) {
	var zero V
	s.mu.RLock()
	entry, ok := s.entries[key]
	clock, ttl := s.clock, s.ttl
	s.mu.RUnlock()

	if !ok || (ttl > 0 && clock.Since(entry.stored) > ttl) {
		return zero, fmt.Errorf("%w: %q", ErrSnapshotNotFound, key)
	}
	value, err := Decode[V](entry.data)
	if err != nil {
		return zero, fmt.Errorf("decode %q: %w", key, err)
	}
	return value, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Len returns the number of entries, expired ones included.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot is a captured response body with the facts needed to find it
// again.
type Snapshot struct {
	Captured time.Time `msgpack:"captured"`
	OfferID  string    `msgpack:"offer_id"`
	Body     []byte    `msgpack:"body"`
	Status   int       `msgpack:"status"`
}

// SnapshotStore holds FareConfirm snapshots keyed by offer id.
type SnapshotStore = Store[Snapshot]

// ContextStore holds booking contexts keyed by test case id.
type ContextStore = Store[BookingContext]
