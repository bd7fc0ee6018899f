// Package tuning is the editor-facing facade over param.Store: the
// thing a parameter-editing UI or RPC layer actually calls. It adds
// nothing the store doesn't already provide except label lookups and
// on-disk persistence (committed set, named states, legacy migration).
package tuning

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sixstring/hextab/param"
	"github.com/sixstring/hextab/paramschema"
)

// legacyCalibrationLift is the historical conversion factor for
// snapshot files written before targetRms existed: targetRms = 0.0018
// * calibrationLift.
const legacyCalibrationLift = 0.0018

const (
	committedFileName = "committed.json"
	statesFileName    = "states.json"
)

// Facade wraps a param.Store with category/label metadata and
// persistence. It holds no state of its own beyond the store
// reference.
type Facade struct {
	store *param.Store
}

// New wraps an existing parameter store.
func New(store *param.Store) *Facade {
	return &Facade{store: store}
}

// Categories lists the three editor-facing parameter groupings.
func (f *Facade) Categories() []paramschema.Category {
	return paramschema.Categories()
}

// StringLabels returns the six open-string labels, low to high.
func (f *Facade) StringLabels() [paramschema.NumStrings]string {
	var labels [paramschema.NumStrings]string
	for s := 0; s < paramschema.NumStrings; s++ {
		labels[s] = paramschema.StringLabel(s)
	}
	return labels
}

// ActiveValue reads the audio-thread-visible value for one cell.
func (f *Facade) ActiveValue(p paramschema.Parameter, stringIdx int) float64 {
	return f.store.ActiveValue(p, stringIdx)
}

// CommittedValue reads one cell of the last-committed set.
func (f *Facade) CommittedValue(p paramschema.Parameter, stringIdx int) float64 {
	return f.store.SnapshotCommitted().Value(p, stringIdx)
}

// SetValue edits the in-progress ("current") copy.
func (f *Facade) SetValue(p paramschema.Parameter, stringIdx int, v float64) {
	f.store.SetValue(p, stringIdx, v)
}

// BeginBatch / EndBatch group a run of SetValue calls under one undo
// snapshot.
func (f *Facade) BeginBatch() { f.store.BeginBatch() }
func (f *Facade) EndBatch()   { f.store.EndBatch() }

// Undo / Redo / Commit / Revert / ResetToDefaults delegate straight to
// the store.
func (f *Facade) Undo()           { f.store.Undo() }
func (f *Facade) Redo()           { f.store.Redo() }
func (f *Facade) Commit()         { f.store.Commit() }
func (f *Facade) Revert()         { f.store.Revert() }
func (f *Facade) ResetToDefaults() { f.store.ResetToDefaults() }

// SaveState / LoadState / DeleteState / ListStates delegate to the
// store's named-state map.
func (f *Facade) SaveState(name string) bool {
	if name == "" {
		return false
	}
	f.store.SaveState(name)
	return true
}

func (f *Facade) LoadState(name string) bool {
	return f.store.LoadState(name)
}

func (f *Facade) DeleteState(name string) {
	f.store.DeleteState(name)
}

func (f *Facade) ListStates() []string {
	names := f.store.ListStates()
	sort.Strings(names)
	return names
}

// snapshotJSON is the on-disk shape of one parameter set: one array of
// six floats per parameter key, plus an optional label for named-state
// files.
type snapshotJSON map[string]interface{}

func encodeSet(set param.Set, label string) snapshotJSON {
	out := make(snapshotJSON, len(paramschema.Descriptors())+1)
	for _, d := range paramschema.Descriptors() {
		var row [paramschema.NumStrings]float64
		for s := 0; s < paramschema.NumStrings; s++ {
			row[s] = set.Value(d.ID, s)
		}
		out[d.Key] = row
	}
	if label != "" {
		out["label"] = label
	}
	return out
}

// decodeSet parses a snapshot JSON blob into a param.Set, migrating
// the legacy calibrationLift key to targetRms if present and targetRms
// itself is absent.
func decodeSet(blob map[string]json.RawMessage) (param.Set, error) {
	var set param.Set

	readRow := func(raw json.RawMessage) ([paramschema.NumStrings]float64, error) {
		var row [paramschema.NumStrings]float64
		if err := json.Unmarshal(raw, &row); err != nil {
			return row, err
		}
		return row, nil
	}

	for _, d := range paramschema.Descriptors() {
		raw, ok := blob[d.Key]
		if !ok {
			for s := 0; s < paramschema.NumStrings; s++ {
				set = set.SetCell(d.ID, s, paramschema.Default(d.ID, s))
			}
			continue
		}
		row, err := readRow(raw)
		if err != nil {
			return set, fmt.Errorf("tuning: decode %s: %w", d.Key, err)
		}
		for s := 0; s < paramschema.NumStrings; s++ {
			set = set.SetCell(d.ID, s, row[s])
		}
	}

	if _, hasTarget := blob["targetRms"]; !hasTarget {
		if raw, hasLift := blob["calibrationLift"]; hasLift {
			row, err := readRow(raw)
			if err != nil {
				return set, fmt.Errorf("tuning: decode calibrationLift: %w", err)
			}
			for s := 0; s < paramschema.NumStrings; s++ {
				set = set.SetCell(paramschema.TargetRms, s, legacyCalibrationLift*row[s])
			}
		}
	}

	return set, nil
}

// SaveAll persists the committed set, the named-state index, and one
// snapshot file per named state under dir (spec §6's config directory
// layout: committed.json, states.json, and {label}_{sha1(label)[0:8]}.json
// per state).
func (f *Facade) SaveAll(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	committed := encodeSet(f.store.SnapshotCommitted(), "")
	if err := writeJSON(filepath.Join(dir, committedFileName), committed); err != nil {
		return err
	}

	states := f.store.SavedStatesSnapshot()
	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)
	if err := writeJSON(filepath.Join(dir, statesFileName), names); err != nil {
		return err
	}

	for name, set := range states {
		path := filepath.Join(dir, snapshotFileName(name))
		if err := writeJSON(path, encodeSet(set, name)); err != nil {
			return err
		}
	}
	return nil
}

// LoadAll restores the committed set and every named state from dir.
// calibrationGainMultiplier is deliberately left untouched on the
// committed set being applied: per spec §4.6 it is owned by the
// calibration profile, never by tuning persistence.
func (f *Facade) LoadAll(dir string) error {
	committedPath := filepath.Join(dir, committedFileName)
	raw, err := os.ReadFile(committedPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var blob map[string]json.RawMessage
	if err := json.Unmarshal(raw, &blob); err != nil {
		return fmt.Errorf("tuning: parse %s: %w", committedFileName, err)
	}
	set, err := decodeSet(blob)
	if err != nil {
		return err
	}

	preserved := f.store.SnapshotCommitted()
	for s := 0; s < paramschema.NumStrings; s++ {
		set = set.SetCell(paramschema.CalibrationGainMultiplier, s,
			preserved.Value(paramschema.CalibrationGainMultiplier, s))
	}
	f.store.ApplyCommittedSnapshot(set)

	namesRaw, err := os.ReadFile(filepath.Join(dir, statesFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var names []string
	if err := json.Unmarshal(namesRaw, &names); err != nil {
		return fmt.Errorf("tuning: parse %s: %w", statesFileName, err)
	}

	loaded := make(map[string]param.Set, len(names))
	for _, name := range names {
		path := filepath.Join(dir, snapshotFileName(name))
		raw, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		var blob map[string]json.RawMessage
		if err := json.Unmarshal(raw, &blob); err != nil {
			return fmt.Errorf("tuning: parse %s: %w", path, err)
		}
		set, err := decodeSet(blob)
		if err != nil {
			return err
		}
		loaded[name] = set
	}
	f.store.ReplaceSavedStates(loaded)
	return nil
}

// snapshotFileName implements spec §6's sanitized filename scheme:
// {label}_{sha1(label)[0:8]}.json.
func snapshotFileName(label string) string {
	sum := sha1.Sum([]byte(label))
	hash := fmt.Sprintf("%x", sum)[:8]
	return fmt.Sprintf("%s_%s.json", sanitizeLabel(label), hash)
}

// sanitizeLabel keeps filenames portable: anything outside
// [A-Za-z0-9._-] becomes an underscore.
func sanitizeLabel(label string) string {
	out := make([]byte, len(label))
	for i := 0; i < len(label); i++ {
		c := label[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '-', c == '_':
			out[i] = c
		default:
			out[i] = '_'
		}
	}
	if len(out) == 0 {
		return "state"
	}
	return string(out)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
