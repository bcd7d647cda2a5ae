package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blite-io/blite-server/internal/svcerr"
)

// SystemDatabaseID is the canonical in-process form of the system
// database id (spec.md §9's "consolidate on one canonical in-process
// form"): the Go zero value.
const SystemDatabaseID = ""

// NormalizeDatabaseID maps every URL/wire spelling of the system database
// ("null", "", "default", and "_system" on backup routes) onto the
// canonical in-process form, and lowercases/trims tenant ids.
func NormalizeDatabaseID(raw string) string {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	switch trimmed {
	case "", "null", "default", "_system":
		return SystemDatabaseID
	default:
		return trimmed
	}
}

// TenantDescriptor describes one known tenant database.
type TenantDescriptor struct {
	ID     string
	Active bool
}

// Factory constructs and opens a new Engine for the given database id.
type Factory func(id string) (Engine, error)

// Registry is the concurrent lifecycle manager for the system engine plus
// zero or more tenant engines (spec.md §4.2).
type Registry struct {
	factory Factory
	system  Engine

	mu      sync.RWMutex
	tenants map[string]Engine
	known   map[string]bool // id -> active; Deprovision removes the entry

	// provisionLocks serializes Provision/Deprovision per id so two
	// concurrent calls for the same id cannot race past the existence
	// check.
	provisionLocks sync.Map
}

// NewRegistry opens the system engine via factory and returns a Registry.
func NewRegistry(factory Factory) (*Registry, error) {
	sys, err := factory(SystemDatabaseID)
	if err != nil {
		return nil, fmt.Errorf("engine: opening system engine: %w", err)
	}
	return &Registry{
		factory: factory,
		system:  sys,
		tenants: make(map[string]Engine),
		known:   make(map[string]bool),
	}, nil
}

// System returns the always-present system engine.
func (r *Registry) System() Engine { return r.system }

// Get returns the engine for id ("" for the system engine).
func (r *Registry) Get(id string) (Engine, error) {
	id = NormalizeDatabaseID(id)
	if id == SystemDatabaseID {
		return r.system, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	eng, ok := r.tenants[id]
	if !ok {
		return nil, svcerr.NotFound(fmt.Sprintf("database %q not found", id))
	}
	return eng, nil
}

// List enumerates all known tenants with their active flag (not including
// the system database).
func (r *Registry) List() []TenantDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TenantDescriptor, 0, len(r.known))
	for id, active := range r.known {
		out = append(out, TenantDescriptor{ID: id, Active: active})
	}
	return out
}

func (r *Registry) idLock(id string) *sync.Mutex {
	v, _ := r.provisionLocks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Provision creates and opens a new tenant engine. Fails with Conflict if
// id already exists.
func (r *Registry) Provision(ctx context.Context, id string) error {
	id = NormalizeDatabaseID(id)
	if id == SystemDatabaseID {
		return svcerr.InvalidInput("cannot provision the system database")
	}
	lock := r.idLock(id)
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	_, exists := r.known[id]
	r.mu.RUnlock()
	if exists {
		return svcerr.Conflict(fmt.Sprintf("database %q already exists", id))
	}

	eng, err := r.factory(id)
	if err != nil {
		return svcerr.Internal("provisioning tenant engine", err)
	}

	r.mu.Lock()
	r.tenants[id] = eng
	r.known[id] = true
	r.mu.Unlock()
	return nil
}

// Deprovision closes the engine for id; if deleteFiles, instructs the
// engine to remove its on-disk files. Idempotent on absence (NotFound).
func (r *Registry) Deprovision(ctx context.Context, id string, deleteFiles bool) error {
	id = NormalizeDatabaseID(id)
	if id == SystemDatabaseID {
		return svcerr.InvalidInput("cannot deprovision the system database")
	}
	lock := r.idLock(id)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	eng, exists := r.tenants[id]
	if !exists {
		r.mu.Unlock()
		return svcerr.NotFound(fmt.Sprintf("database %q not found", id))
	}
	delete(r.tenants, id)
	delete(r.known, id)
	r.mu.Unlock()

	if err := eng.Close(); err != nil {
		return svcerr.Internal("closing tenant engine", err)
	}
	if deleteFiles {
		if purger, ok := eng.(interface{ Purge() error }); ok {
			if err := purger.Purge(); err != nil {
				return svcerr.Internal("deleting tenant engine files", err)
			}
		}
		// Real on-disk file layout is engine-internal and out of scope
		// (spec.md §1); engines that don't support Purge are a no-op here.
	}
	return nil
}

// SubscribeChange returns a bounded stream of change events for
// (id, collection) and a detach function.
func (r *Registry) SubscribeChange(id, collection string) (<-chan ChangeEvent, func(), error) {
	eng, err := r.Get(id)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := eng.SubscribeChange(collection)
	return ch, cancel, nil
}
