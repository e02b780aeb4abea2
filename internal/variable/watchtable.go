package variable

import (
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// WatchTable is the small append-mostly store of pinned composite values
// produced by evaluate under context "watch" (spec.md §4.4). Slot 0 is
// reserved/invalid so a zero VariableReference payload is never mistaken
// for a live watch.
type WatchTable struct {
	mu     sync.Mutex
	values []lua.LValue // index 0 unused
}

// NewWatchTable creates an empty WatchTable.
func NewWatchTable() *WatchTable {
	return &WatchTable{values: make([]lua.LValue, 1)}
}

// Add pins v and returns its fresh slot.
func (w *WatchTable) Add(v lua.LValue) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.values = append(w.values, v)
	return len(w.values) - 1
}

// Get returns the value pinned at slot, or ok=false if the slot is out of
// range or was cleared.
func (w *WatchTable) Get(slot int) (lua.LValue, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if slot <= 0 || slot >= len(w.values) {
		return nil, false
	}
	return w.values[slot], true
}

// Clear drops all pinned values; call on every resume of the debuggee so
// stale watch references can't outlive the VM state they were pinned
// against.
func (w *WatchTable) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.values = make([]lua.LValue, 1)
}
