// Package param implements the process-wide parameter store: a 15×6
// matrix of detection parameters with a wait-free atomic "active" view
// for the audio thread, and mutex-guarded mutation, undo/redo, commit,
// and named-state persistence for the editor thread.
//
// This mirrors the original NoteDetectionStore/NoteDetectionParameterSet
// split: defaults never change, current is the in-edit copy, committed
// is the last explicitly-accepted state, and active is the atomic
// snapshot trackers read every block.
package param

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/sixstring/hextab/paramschema"
)

const (
	numParams  = 15
	numStrings = paramschema.NumStrings
	maxUndo    = 32
)

// Set is a full 15×6 parameter matrix, passed by value.
type Set struct {
	values [numParams][numStrings]float64
}

// Value reads one cell. Out-of-range parameter/string indices return 0.
func (s Set) Value(p paramschema.Parameter, stringIdx int) float64 {
	if int(p) < 0 || int(p) >= numParams || stringIdx < 0 || stringIdx >= numStrings {
		return 0
	}
	return s.values[p][stringIdx]
}

func (s *Set) set(p paramschema.Parameter, stringIdx int, v float64) {
	if int(p) < 0 || int(p) >= numParams || stringIdx < 0 || stringIdx >= numStrings {
		return
	}
	s.values[p][stringIdx] = v
}

// SetCell returns a copy of s with one cell overwritten. Exposed so
// code outside this package (persistence, tests) can assemble a Set
// without going through a live Store.
func (s Set) SetCell(p paramschema.Parameter, stringIdx int, v float64) Set {
	s.set(p, stringIdx, v)
	return s
}

// Defaults builds the process-initialized constant parameter set.
func Defaults() Set {
	var s Set
	for p := paramschema.Parameter(0); int(p) < numParams; p++ {
		for str := 0; str < numStrings; str++ {
			s.set(p, str, paramschema.Default(p, str))
		}
	}
	return s
}

// activeCell is a single wait-free, allocation-free parameter cell. It
// stores a float64 bit pattern behind atomic.Uint64 because Go has no
// atomic.Float64 in the versions this module targets; acquire/release
// semantics come from atomic.Uint64's Load/Store.
type activeCell struct {
	bits atomic.Uint64
}

func (c *activeCell) load() float64 {
	return math.Float64frombits(c.bits.Load())
}

func (c *activeCell) store(v float64) {
	c.bits.Store(math.Float64bits(v))
}

// Store is the process-wide parameter registry. Zero value is not
// usable; construct with New.
type Store struct {
	mu sync.Mutex

	defaults  Set
	current   Set
	committed Set

	active [numParams][numStrings]activeCell

	undoStack []Set
	redoStack []Set

	batchDepth      int
	batchPushedUndo bool

	savedMu    sync.Mutex
	savedNames map[string]Set

	generation atomic.Uint64
}

// New creates a parameter store initialized to its tabulated defaults.
func New() *Store {
	st := &Store{
		savedNames: make(map[string]Set),
	}
	st.defaults = Defaults()
	st.current = st.defaults
	st.committed = st.defaults
	st.generation.Store(1)
	st.publishActive()
	return st
}

func (st *Store) publishActive() {
	for p := 0; p < numParams; p++ {
		for str := 0; str < numStrings; str++ {
			st.active[p][str].store(st.current.values[p][str])
		}
	}
	st.generation.Add(1)
}

// ActiveValue is the wait-free, allocation-free read path the audio
// thread uses every block. Must never take a lock.
func (st *Store) ActiveValue(p paramschema.Parameter, stringIdx int) float64 {
	if int(p) < 0 || int(p) >= numParams || stringIdx < 0 || stringIdx >= numStrings {
		return 0
	}
	return st.active[p][stringIdx].load()
}

// Generation returns the monotonically increasing publication counter.
// Trackers compare this against their last-seen value to know whether
// to reconfigure.
func (st *Store) Generation() uint64 {
	return st.generation.Load()
}

// SetValue mutates the editor ("current") copy. Unknown parameter or
// string indices are silently ignored (spec §7: "parameter key miss is
// silently ignored at the API boundary").
func (st *Store) SetValue(p paramschema.Parameter, stringIdx int, v float64) {
	if int(p) < 0 || int(p) >= numParams || stringIdx < 0 || stringIdx >= numStrings {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.batchDepth > 0 {
		if !st.batchPushedUndo {
			st.pushUndoLocked()
			st.batchPushedUndo = true
		}
	} else {
		st.pushUndoLocked()
	}

	st.current.set(p, stringIdx, v)
	st.redoStack = st.redoStack[:0]
	if st.batchDepth == 0 {
		st.publishActive()
	}
}

func (st *Store) pushUndoLocked() {
	st.undoStack = append(st.undoStack, st.current)
	if len(st.undoStack) > maxUndo {
		st.undoStack = st.undoStack[1:]
	}
}

// BeginBatch groups subsequent SetValue calls under a single undo
// snapshot. Nestable; only the outermost BeginBatch records.
func (st *Store) BeginBatch() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.batchDepth++
	if st.batchDepth == 1 {
		st.batchPushedUndo = false
	}
}

// EndBatch closes one nesting level opened by BeginBatch. Closing the
// outermost level publishes the active view once, so a batch of N
// SetValue calls becomes visible to the audio thread as a single
// atomic generation bump rather than N separate ones (spec §5).
func (st *Store) EndBatch() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.batchDepth <= 0 {
		st.batchDepth = 0
		st.batchPushedUndo = false
		return
	}
	st.batchDepth--
	if st.batchDepth == 0 {
		pushed := st.batchPushedUndo
		st.batchPushedUndo = false
		if pushed {
			st.publishActive()
		}
	}
}

// Undo pops the undo stack, moving "current" to the redo stack. No-op
// if the undo stack is empty.
func (st *Store) Undo() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.undoStack) == 0 {
		return
	}
	st.redoStack = append(st.redoStack, st.current)
	last := len(st.undoStack) - 1
	st.current = st.undoStack[last]
	st.undoStack = st.undoStack[:last]
	st.publishActive()
}

// Redo reapplies the most recently undone state.
func (st *Store) Redo() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.redoStack) == 0 {
		return
	}
	st.undoStack = append(st.undoStack, st.current)
	last := len(st.redoStack) - 1
	st.current = st.redoStack[last]
	st.redoStack = st.redoStack[:last]
	st.publishActive()
}

// Commit overwrites committed with current and clears undo/redo
// history.
func (st *Store) Commit() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.committed = st.current
	st.clearHistoryLocked()
	st.publishActive()
}

// Revert overwrites current with committed and clears history.
func (st *Store) Revert() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.current = st.committed
	st.clearHistoryLocked()
	st.publishActive()
}

// ResetToDefaults sets current back to the tabulated defaults and
// clears history.
func (st *Store) ResetToDefaults() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.current = st.defaults
	st.clearHistoryLocked()
	st.publishActive()
}

func (st *Store) clearHistoryLocked() {
	st.undoStack = st.undoStack[:0]
	st.redoStack = st.redoStack[:0]
}

// SnapshotCurrent returns a copy of the current (in-edit) set.
func (st *Store) SnapshotCurrent() Set {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.current
}

// SnapshotCommitted returns a copy of the committed set.
func (st *Store) SnapshotCommitted() Set {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.committed
}

// ApplyCommittedSnapshot overwrites both committed and current with
// set, clearing history. Used by persistence on load.
func (st *Store) ApplyCommittedSnapshot(set Set) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.committed = set
	st.current = set
	st.clearHistoryLocked()
	st.publishActive()
}

// ApplyCurrentSnapshot overwrites only current with set.
func (st *Store) ApplyCurrentSnapshot(set Set) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.current = set
	st.publishActive()
}

// Defaults returns the tabulated constant defaults.
func (st *Store) Defaults() Set {
	return st.defaults
}

// SaveState stores a copy of current under name. Empty names are
// ignored.
func (st *Store) SaveState(name string) {
	if name == "" {
		return
	}
	snapshot := st.SnapshotCurrent()
	st.savedMu.Lock()
	defer st.savedMu.Unlock()
	st.savedNames[name] = snapshot
}

// LoadState overwrites current with the named saved state, clearing
// history, and reports whether the name was found. Unknown names fail
// silently (return false) per spec §4.1.
func (st *Store) LoadState(name string) bool {
	st.savedMu.Lock()
	set, ok := st.savedNames[name]
	st.savedMu.Unlock()
	if !ok {
		return false
	}
	st.ApplyCurrentSnapshot(set)
	st.mu.Lock()
	st.clearHistoryLocked()
	st.mu.Unlock()
	return true
}

// DeleteState removes a named saved state, if present.
func (st *Store) DeleteState(name string) {
	st.savedMu.Lock()
	defer st.savedMu.Unlock()
	delete(st.savedNames, name)
}

// ListStates returns the names of all saved states.
func (st *Store) ListStates() []string {
	st.savedMu.Lock()
	defer st.savedMu.Unlock()
	names := make([]string, 0, len(st.savedNames))
	for name := range st.savedNames {
		names = append(names, name)
	}
	return names
}

// SavedStatesSnapshot returns a copy of the full named-state map, for
// persistence.
func (st *Store) SavedStatesSnapshot() map[string]Set {
	st.savedMu.Lock()
	defer st.savedMu.Unlock()
	out := make(map[string]Set, len(st.savedNames))
	for name, set := range st.savedNames {
		out[name] = set
	}
	return out
}

// ReplaceSavedStates overwrites the named-state map wholesale, used
// when loading persisted state from disk.
func (st *Store) ReplaceSavedStates(states map[string]Set) {
	st.savedMu.Lock()
	defer st.savedMu.Unlock()
	st.savedNames = make(map[string]Set, len(states))
	for name, set := range states {
		st.savedNames[name] = set
	}
}
