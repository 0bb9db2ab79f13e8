package worker

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry tracks which workers are allowed to act.
//
// Invariant: every mutation is applied under one lock, so no reader observes
// a partially applied bulk operation.
// Invariant: PauseAllExcept never changes a pinned worker.
type Registry struct {
	logger *zap.Logger
	pinned map[string]bool

	mu     sync.Mutex
	active map[string]bool
}

// NewRegistry returns a Registry with every name in names active. Pinned names
// are registered as well.
//
// Precondition: logger must be non-nil.
func NewRegistry(logger *zap.Logger, names, pinned []string) *Registry {
	r := &Registry{
		logger: logger,
		pinned: make(map[string]bool, len(pinned)),
		active: make(map[string]bool, len(names)+len(pinned)),
	}
	for _, n := range names {
		r.active[n] = true
	}
	for _, p := range pinned {
		r.pinned[p] = true
		r.active[p] = true
	}
	return r
}

// IsActive reports whether name may act. Unknown names are active.
func (r *Registry) IsActive(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	active, ok := r.active[name]
	return !ok || active
}

// Pinned reports whether name is exempt from PauseAllExcept.
func (r *Registry) Pinned(name string) bool {
	return r.pinned[name]
}

// Activate marks name active.
func (r *Registry) Activate(name string) {
	r.mu.Lock()
	was, known := r.active[name]
	r.active[name] = true
	r.mu.Unlock()

	if !known || !was {
		r.logger.Debug("worker activated", zap.String("worker", name))
	}
}

// PauseAll marks every worker inactive, pinned workers included.
func (r *Registry) PauseAll() {
	r.mu.Lock()
	for name := range r.active {
		r.active[name] = false
	}
	r.mu.Unlock()

	r.logger.Info("all workers paused")
}

// PauseAllExcept activates name and pauses every other non-pinned worker.
//
// Postcondition: IsActive(name) is true and pinned workers keep their previous state.
func (r *Registry) PauseAllExcept(name string) {
	r.mu.Lock()
	r.active[name] = true
	for other := range r.active {
		if other != name && !r.pinned[other] {
			r.active[other] = false
		}
	}
	r.mu.Unlock()

	r.logger.Debug("workers paused except one", zap.String("worker", name))
}

// ReactivateAll marks every worker active.
func (r *Registry) ReactivateAll() {
	r.mu.Lock()
	for name := range r.active {
		r.active[name] = true
	}
	r.mu.Unlock()

	r.logger.Debug("all workers reactivated")
}

// Snapshot returns a copy of the activation map.
func (r *Registry) Snapshot() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]bool, len(r.active))
	for k, v := range r.active {
		out[k] = v
	}
	return out
}

// Names returns the registered worker names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.active))
	for k := range r.active {
		names = append(names, k)
	}
	r.mu.Unlock()
	sort.Strings(names)
	return names
}
