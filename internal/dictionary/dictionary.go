// Package dictionary implements the per-engine field-name dictionary and
// the document codec layered over it (spec.md §4.1). One Dictionary exists
// per engine (database); ids are assigned monotonically and never reused.
package dictionary

import (
	"strings"
	"sync"
)

// ID is a small unsigned field id. 0 is reserved and never assigned.
type ID = uint32

// Dictionary is a thread-safe, append-only name<->id mapping.
//
// Registration uses a read-then-write double-check (the same shape the
// teacher's serviceauth token cache uses for its validated-token map):
// the common case (name already known) is served under a read lock; a new
// name promotes to a write lock and is re-checked before an id is minted,
// so concurrent registrations of the same new name resolve to one winner.
type Dictionary struct {
	mu      sync.RWMutex
	forward map[string]ID
	reverse map[ID]string
	next    ID
}

// New returns an empty Dictionary with the next id starting at 1.
func New() *Dictionary {
	return &Dictionary{
		forward: make(map[string]ID),
		reverse: make(map[ID]string),
		next:    1,
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register assigns ids to any names not yet known and returns the full
// name->id map restricted to the requested names. collectionHint is
// informational only (future schema-aware assignment hook) and is not
// currently used to partition the id space.
func (d *Dictionary) Register(collectionHint string, names []string) map[string]ID {
	result := make(map[string]ID, len(names))

	// Fast path: everything already known, read lock only.
	d.mu.RLock()
	missing := make([]string, 0)
	for _, raw := range names {
		n := normalize(raw)
		if n == "" {
			continue
		}
		if id, ok := d.forward[n]; ok {
			result[n] = id
		} else {
			missing = append(missing, n)
		}
	}
	d.mu.RUnlock()

	if len(missing) == 0 {
		return result
	}

	d.mu.Lock()
	for _, n := range missing {
		if id, ok := d.forward[n]; ok {
			result[n] = id
			continue
		}
		id := d.next
		d.next++
		d.forward[n] = id
		d.reverse[id] = n
		result[n] = id
	}
	d.mu.Unlock()

	return result
}

// Snapshot returns a point-in-time copy of the entire mapping.
func (d *Dictionary) Snapshot() map[string]ID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]ID, len(d.forward))
	for k, v := range d.forward {
		out[k] = v
	}
	return out
}

// ResolveName returns the id for a name, or ok=false if unregistered.
func (d *Dictionary) ResolveName(name string) (ID, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.forward[normalize(name)]
	return id, ok
}

// ResolveID returns the name for an id, or ok=false if unregistered.
func (d *Dictionary) ResolveID(id ID) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.reverse[id]
	return name, ok
}

// Len returns the number of registered names.
func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.forward)
}
