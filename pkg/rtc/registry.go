package rtc

import (
	"iter"
	"sync"

	"github.com/pkg/errors"
)

// Registry maps identities to handles. It is the only state shared between
// the goroutines of different peers.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*Handle
}

func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[string]*Handle),
	}
}

func (r *Registry) Add(id string, h *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handles[id]; ok {
		return errors.Wrap(ErrDuplicateIdentity, id)
	}

	r.handles[id] = h

	return nil
}

// Remove is a no-op for unknown identities.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.handles, id)
}

// removeHandle removes id only while it still maps to h.
func (r *Registry) removeHandle(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handles[h.id] == h {
		delete(r.handles, h.id)
	}
}

func (r *Registry) Get(id string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handles[id]

	return h, ok
}

// AllConnected yields the handles that are Connected when iteration starts.
// Every range over the sequence takes a fresh snapshot.
func (r *Registry) AllConnected() iter.Seq[*Handle] {
	return func(yield func(*Handle) bool) {
		for _, h := range r.snapshot() {
			if h.State() != Connected {
				continue
			}

			if !yield(h) {
				return
			}
		}
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.handles)
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}

	return ids
}

func (r *Registry) snapshot() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}

	return handles
}

// clear drops every entry. Only a shutting down server does this.
func (r *Registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.handles)
}
