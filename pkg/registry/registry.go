// Package registry implements the Tenant Registry: the single piece of
// shared mutable state in the dispatcher, mapping each registered tenant id
// to its corpus cache and reply stream. While the dispatcher runs, its worker
// is the only writer; readers (the search path, the change-event path) run on
// the same worker goroutine, so the mutex here exists to make the registry
// safe to use from outside that goroutine (Shutdown's eviction of every
// tenant, tests).
package registry

import (
	"net"
	"sync"

	"github.com/curserve/memsearchd/pkg/corpus"
)

// tenant bundles everything the dispatcher tracks for one registered
// session.
type tenant struct {
	cache *corpus.Cache
	reply net.Conn
}

// Registry is the mutex-guarded map of tenant id to tenant state.
type Registry struct {
	mu      sync.Mutex
	tenants map[string]*tenant
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{tenants: make(map[string]*tenant)}
}

// Register records a newly built cache and reply stream for tenant,
// overwriting any prior entry for the same id.
func (r *Registry) Register(id string, cache *corpus.Cache, reply net.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[id] = &tenant{cache: cache, reply: reply}
}

// Cache returns the corpus cache registered for id, or nil if id is unknown.
func (r *Registry) Cache(id string) *corpus.Cache {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil
	}
	return t.cache
}

// Reply returns the reply stream registered for id, or nil if id is unknown.
func (r *Registry) Reply(id string) net.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil
	}
	return t.reply
}

// Evict drops id from the registry, closing its reply stream and cache. It
// is a no-op if id is unknown. It is invoked both when a tenant's reply
// stream write fails and when the dispatcher shuts down.
func (r *Registry) Evict(id string) {
	r.mu.Lock()
	t, ok := r.tenants[id]
	if ok {
		delete(r.tenants, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if t.reply != nil {
		t.reply.Close()
	}
	if t.cache != nil {
		t.cache.Close()
	}
}

// Ids returns a snapshot of every currently registered tenant id.
func (r *Registry) Ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.tenants))
	for id := range r.tenants {
		ids = append(ids, id)
	}
	return ids
}
