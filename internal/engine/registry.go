package engine

import "sync"

// Registry maps a chat id to its current worker. The dispatcher is the only
// writer; it replaces entries only after the previous worker has been stopped
// and joined, so at most one live worker is reachable per chat at any time.
type Registry struct {
	mu      sync.RWMutex
	workers map[int64]*Worker
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[int64]*Worker)}
}

// Get returns the registered worker for a chat, or nil.
func (r *Registry) Get(chatID int64) *Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.workers[chatID]
}

// Put registers a worker for a chat, replacing any previous entry. It does
// not stop the old worker; callers must stop it first.
func (r *Registry) Put(chatID int64, w *Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[chatID] = w
}

// Remove drops the entry for a chat.
func (r *Registry) Remove(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, chatID)
}

// Drain removes and returns every registered worker, for process shutdown.
func (r *Registry) Drain() []*Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Worker, 0, len(r.workers))
	for id, w := range r.workers {
		out = append(out, w)
		delete(r.workers, id)
	}
	return out
}

// Len reports the number of registered workers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}
