package param

import (
	"testing"

	"github.com/sixstring/hextab/paramschema"
)

func TestSetValueThenCommitIsActive(t *testing.T) {
	st := New()
	st.SetValue(paramschema.OnsetThresholdScale, 0, 0.5)
	st.Commit()
	if got := st.ActiveValue(paramschema.OnsetThresholdScale, 0); got != 0.5 {
		t.Fatalf("active value = %v, want 0.5", got)
	}
}

func TestUndoRedoRoundTrip(t *testing.T) {
	st := New()
	before := st.ActiveValue(paramschema.GateRatio, 2)

	st.BeginBatch()
	st.SetValue(paramschema.GateRatio, 2, 1.23)
	st.SetValue(paramschema.BaselineFloor, 2, 0.001)
	st.EndBatch()

	st.Undo()
	if got := st.ActiveValue(paramschema.GateRatio, 2); got != before {
		t.Fatalf("after undo, gateRatio = %v, want %v", got, before)
	}

	st.Redo()
	if got := st.ActiveValue(paramschema.GateRatio, 2); got != 1.23 {
		t.Fatalf("after redo, gateRatio = %v, want 1.23", got)
	}
	if got := st.ActiveValue(paramschema.BaselineFloor, 2); got != 0.001 {
		t.Fatalf("after redo, baselineFloor = %v, want 0.001", got)
	}
}

func TestUndoStackBoundedAt32(t *testing.T) {
	st := New()
	for i := 0; i < 40; i++ {
		st.SetValue(paramschema.OnsetThresholdScale, 0, float64(i))
	}
	undoCount := 0
	for {
		before := st.ActiveValue(paramschema.OnsetThresholdScale, 0)
		st.Undo()
		after := st.ActiveValue(paramschema.OnsetThresholdScale, 0)
		if after == before {
			break
		}
		undoCount++
		if undoCount > 100 {
			t.Fatal("undo stack did not terminate, bound not enforced")
		}
	}
	if undoCount != 32 {
		t.Fatalf("undo stack depth = %d, want 32", undoCount)
	}
}

func TestGenerationStrictlyIncreasing(t *testing.T) {
	st := New()
	last := st.Generation()
	ops := []func(){
		func() { st.SetValue(paramschema.PitchTolerance, 1, 0.5) },
		func() { st.Commit() },
		func() { st.SetValue(paramschema.PitchTolerance, 1, 0.6) },
		func() { st.Undo() },
		func() { st.Redo() },
		func() { st.Revert() },
		func() { st.ResetToDefaults() },
	}
	for i, op := range ops {
		op()
		next := st.Generation()
		if next <= last {
			t.Fatalf("op %d: generation did not increase (%d -> %d)", i, last, next)
		}
		last = next
	}
}

func TestBatchedEditsBumpGenerationOnce(t *testing.T) {
	st := New()
	last := st.Generation()

	st.BeginBatch()
	st.SetValue(paramschema.GateRatio, 1, 1.1)
	st.SetValue(paramschema.BaselineFloor, 1, 0.002)
	if got := st.Generation(); got != last {
		t.Fatalf("generation changed mid-batch: %d -> %d", last, got)
	}
	st.EndBatch()

	afterBatch := st.Generation()
	if afterBatch != last+1 {
		t.Fatalf("generation after batch = %d, want %d (exactly one bump for the whole batch)", afterBatch, last+1)
	}

	st.Undo()
	afterUndo := st.Generation()
	if afterUndo != afterBatch+1 {
		t.Fatalf("generation after undo = %d, want %d", afterUndo, afterBatch+1)
	}

	st.Redo()
	afterRedo := st.Generation()
	if afterRedo != afterUndo+1 {
		t.Fatalf("generation after redo = %d, want %d", afterRedo, afterUndo+1)
	}

	if afterRedo != last+3 {
		t.Fatalf("generation bumped %d times across batch+undo+redo, want exactly 3", afterRedo-last)
	}
}

func TestResetToDefaultsMatchesTabulatedDefaults(t *testing.T) {
	st := New()
	st.SetValue(paramschema.TargetRms, 3, 0.999)
	st.Commit()
	st.ResetToDefaults()

	for p := paramschema.Parameter(0); int(p) < 15; p++ {
		for s := 0; s < paramschema.NumStrings; s++ {
			want := paramschema.Default(p, s)
			got := st.ActiveValue(p, s)
			if got != want {
				t.Fatalf("param %d string %d = %v, want default %v", p, s, got, want)
			}
		}
	}
}

func TestSaveLoadStateRoundTrip(t *testing.T) {
	st := New()
	st.SetValue(paramschema.EnvelopeFloor, 4, 0.0042)
	st.SaveState("my-state")

	st.SetValue(paramschema.EnvelopeFloor, 4, 0.9)
	if !st.LoadState("my-state") {
		t.Fatal("LoadState(\"my-state\") = false, want true")
	}
	if got := st.ActiveValue(paramschema.EnvelopeFloor, 4); got != 0.0042 {
		t.Fatalf("after load, envelopeFloor = %v, want 0.0042", got)
	}
}

func TestLoadUnknownStateFailsSilently(t *testing.T) {
	st := New()
	before := st.ActiveValue(paramschema.GateRatio, 0)
	if st.LoadState("does-not-exist") {
		t.Fatal("LoadState for unknown name returned true")
	}
	if got := st.ActiveValue(paramschema.GateRatio, 0); got != before {
		t.Fatalf("state mutated after failed load: got %v want %v", got, before)
	}
}

func TestSetValueUnknownKeyIsNoOp(t *testing.T) {
	st := New()
	before := st.SnapshotCurrent()
	st.SetValue(paramschema.Parameter(999), 0, 42)
	after := st.SnapshotCurrent()
	if before != after {
		t.Fatal("SetValue with out-of-range parameter mutated state")
	}
}
