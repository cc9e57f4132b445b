// Package ids implements the arena-of-tagged-handles strategy called out as
// the equivalent of the original's intrusive reference-counted port lists:
// "tagged handles stored in an arena keyed by a stable id; lookups by
// address iterate the arena. Ownership is the arena; observers hold ids,
// not pointers."
package ids

import (
	"sync"

	"github.com/google/uuid"
)

// ID is a stable handle into an Arena. It survives moves between the arena's
// internal sets and remains a valid lookup key even after the referenced
// value has been removed (a removed ID simply misses on Get).
type ID uuid.UUID

// String renders the ID in the usual UUID textual form.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// NewID mints a fresh random ID.
func NewID() ID {
	return ID(uuid.New())
}

// Arena is the sole owner of the values it stores, keyed by ID. Callers
// outside the loop goroutine hold IDs, never pointers to the stored value,
// so ownership and lifetime stay with the Arena regardless of how many
// observers reference an entry by id.
type Arena[T any] struct {
	mu      sync.RWMutex
	entries map[ID]T
}

// NewArena creates an empty arena.
func NewArena[T any]() *Arena[T] {
	return &Arena[T]{entries: make(map[ID]T)}
}

// Insert adds v under a freshly minted ID and returns it.
func (a *Arena[T]) Insert(v T) ID {
	id := NewID()
	a.InsertWithID(id, v)
	return id
}

// InsertWithID adds v under an already-minted ID, overwriting any existing
// entry for that ID. Used when moving an entry between arenas (e.g. from an
// open-ports arena to a closing-ports arena) while preserving the ID that
// observers already hold.
func (a *Arena[T]) InsertWithID(id ID, v T) {
	a.mu.Lock()
	a.entries[id] = v
	a.mu.Unlock()
}

// Get looks up the value for id.
func (a *Arena[T]) Get(id ID) (T, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.entries[id]
	return v, ok
}

// Remove deletes id from the arena and returns the removed value, if any.
func (a *Arena[T]) Remove(id ID) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.entries[id]
	if ok {
		delete(a.entries, id)
	}
	return v, ok
}

// Len reports the number of entries currently held.
func (a *Arena[T]) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}

// Each calls fn for every entry. fn must not mutate the arena; collect ids
// to remove and call Remove after Each returns.
func (a *Arena[T]) Each(fn func(ID, T)) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for id, v := range a.entries {
		fn(id, v)
	}
}

// Find returns the id and value of the first entry for which match returns
// true, used for the address-keyed lookups the port sets need
// ("lookups by address iterate the arena").
func (a *Arena[T]) Find(match func(T) bool) (ID, T, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for id, v := range a.entries {
		if match(v) {
			return id, v, true
		}
	}
	var zero T
	return ID{}, zero, false
}
