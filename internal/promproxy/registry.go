package promproxy

import (
	"fmt"
	"log"
	"sync"

	"github.com/promtun/promtun/internal/config"
)

// Registry holds the configured datasources keyed by name.
type Registry struct {
	mu sync.RWMutex
	ds map[string]*Datasource
}

// NewRegistry builds a registry from datasource definitions. Construction
// validates every definition; tunnels are still created lazily.
func NewRegistry(defs []config.Datasource) (*Registry, error) {
	r := &Registry{ds: make(map[string]*Datasource, len(defs))}
	for _, def := range defs {
		ds, err := New(def)
		if err != nil {
			return nil, fmt.Errorf("datasource %q: %w", def.Name, err)
		}
		r.ds[def.Name] = ds
	}
	return r, nil
}

// Get returns the datasource with the given name.
func (r *Registry) Get(name string) (*Datasource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ds, ok := r.ds[name]
	return ds, ok
}

// Names returns the configured datasource names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ds))
	for name := range r.ds {
		names = append(names, name)
	}
	return names
}

// DisposeAll tears down every datasource, closing any live tunnels. Used
// during shutdown.
func (r *Registry) DisposeAll() {
	r.mu.Lock()
	all := r.ds
	r.ds = make(map[string]*Datasource)
	r.mu.Unlock()

	for name, ds := range all {
		ds.Dispose()
		log.Printf("[promproxy] disposed datasource %q", name)
	}
}
