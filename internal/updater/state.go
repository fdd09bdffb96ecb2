package updater

import (
	"log/slog"
	"slices"
	"sync"
	"time"
)

// States a check may start from.
var checkableFrom = []State{StateIdle, StateAvailable, StateError, StateRolledBack}

// tracker holds the update state machine and what the last check found.
type tracker struct {
	mu      sync.RWMutex
	state   State
	pending *release
	checked *time.Time
	err     error
	logger  *slog.Logger
}

// enter moves to next when the current state is one of from (or from is
// empty) and clears the last error.
func (t *tracker) enter(next State, from ...State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(from) > 0 && !slices.Contains(from, t.state) {
		return false
	}
	t.logger.Debug("Update state changed", "from", t.state, "to", next)
	t.state = next
	t.err = nil
	return true
}

// settle records a terminal state together with the error that led to it.
func (t *tracker) settle(state State, err error) {
	t.mu.Lock()
	t.state = state
	t.err = err
	t.mu.Unlock()
}

func (t *tracker) fail(err error) { t.settle(StateError, err) }

func (t *tracker) current() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *tracker) found(rel *release, at time.Time) {
	t.mu.Lock()
	t.pending = rel
	t.checked = &at
	t.mu.Unlock()
}

func (t *tracker) release() *release {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pending
}

func (t *tracker) fill(st *Status) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st.State = t.state
	st.LastChecked = t.checked
	if t.pending != nil {
		st.TargetVersion = t.pending.version
	}
	if t.err != nil {
		st.Error = t.err.Error()
	}
}
