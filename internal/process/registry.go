package process

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/smazurov/cmdpanel/internal/commands"
)

// Registry tracks which commands are running and which are being stopped.
// An id is never registered more than once at a time.
type Registry struct {
	mu       sync.Mutex
	runs     map[int64]*run
	stopping map[int64]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		runs:     make(map[int64]*run),
		stopping: make(map[int64]struct{}),
	}
}

// Register records rn as the active run for id. It fails while another run
// for id is starting, running or stopping.
func (r *Registry) Register(id int64, rn *run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[id]; exists {
		return fmt.Errorf("command %d: %w", id, commands.ErrAlreadyRunning)
	}
	if _, exists := r.stopping[id]; exists {
		return fmt.Errorf("command %d is stopping: %w", id, commands.ErrAlreadyRunning)
	}
	r.runs[id] = rn
	return nil
}

// Take removes rn from the registry if it is still the active run for id.
func (r *Registry) Take(id int64, rn *run) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.runs[id] != rn {
		return false
	}
	delete(r.runs, id)
	return true
}

// TakeForStop claims the active run for id on behalf of Kill and moves id to
// the stopping set. A run whose child has exited but whose output is still
// draining can be claimed too. It returns nil when nothing is left to stop:
// no run is registered, the spawn failed, or the run finished on its own.
func (r *Registry) TakeForStop(ctx context.Context, id int64) (*run, error) {
	for {
		r.mu.Lock()
		rn, exists := r.runs[id]
		if !exists {
			r.mu.Unlock()
			return nil, nil
		}
		if rn.phase.CompareAndSwap(phaseWatching, phaseKilling) ||
			rn.phase.CompareAndSwap(phaseDraining, phaseKilling) {
			delete(r.runs, id)
			r.stopping[id] = struct{}{}
			r.mu.Unlock()
			return rn, nil
		}
		current := rn.phase.Load()
		r.mu.Unlock()

		wait := rn.done
		if current == phaseStarting {
			wait = rn.ready
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// FinishStop removes id from the stopping set.
func (r *Registry) FinishStop(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stopping, id)
}

// Status reports whether id is running, stopping or stopped.
func (r *Registry) Status(id int64) commands.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[id]; exists {
		return commands.StatusRunning
	}
	if _, exists := r.stopping[id]; exists {
		return commands.StatusStopping
	}
	return commands.StatusStopped
}

// IDs returns the ids of all registered runs in ascending order.
func (r *Registry) IDs() []int64 {
	r.mu.Lock()
	ids := make([]int64, 0, len(r.runs))
	for id := range r.runs {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
