package tracker

import (
	"math"
	"testing"

	"github.com/sixstring/hextab/param"
)

func newTestTracker(stringIdx int, fast bool) (*StringTracker, *[]NoteEvent, *int) {
	events := make([]NoteEvent, 0)
	activeIdx := -1
	st := param.New()
	tr := NewStringTracker(stringIdx, DefaultTuning(), DefaultConfig(), st, fast, &events, &activeIdx)
	return tr, &events, &activeIdx
}

// injectFrame appends a synthetic feature frame directly, bypassing
// the FFT detector, so the onset/release state machine can be
// exercised deterministically.
func (t *StringTracker) injectFrame(f FrameFeatures) int {
	t.feat = append(t.feat, f)
	t.currentHopSec = 0.01
	return len(t.feat) - 1
}

func TestFinishedEventFretAndVelocityBounds(t *testing.T) {
	tr, events, activeIdx := newTestTracker(0, false)
	_ = activeIdx

	idx := tr.injectFrame(FrameFeatures{TSec: 0.0, EnvelopeRms: 0.05, OnsetStrength: 1.0, PitchHz: MidiToHz(40)})
	if !tr.detectOnset(idx) {
		t.Fatalf("expected onset to be accepted")
	}
	midi := tr.estimateMidi(tr.feat[idx])
	fret := MidiToFret(midi, tr.tuning.StringMidi[tr.s])
	ev := NoteEvent{StringIdx: tr.s, Fret: fret, Midi: midi, StartSec: 0, EndSec: 0, Velocity: energyToVelocity(0.05)}
	*events = append(*events, ev)
	*activeIdx = 0

	tr.closeActive(0.2)
	got := (*events)[0]

	if got.Fret < 0 || got.Fret > 24 {
		t.Fatalf("fret out of range: %d", got.Fret)
	}
	if got.EndSec < got.StartSec+tr.cfg.MinNoteDurSec-1e-6 {
		t.Fatalf("endSec %v < startSec+minNoteDurSec (%v)", got.EndSec, got.StartSec+tr.cfg.MinNoteDurSec)
	}
	if got.Velocity < 0 || got.Velocity > 1 {
		t.Fatalf("velocity out of range: %v", got.Velocity)
	}
	if got.StringIdx < 0 || got.StringIdx > 5 {
		t.Fatalf("stringIdx out of range: %d", got.StringIdx)
	}
}

func TestAtMostOneActiveEventPerString(t *testing.T) {
	tr, events, activeIdx := newTestTracker(2, true)

	open := func(tSec float64) {
		idx := tr.injectFrame(FrameFeatures{TSec: tSec, EnvelopeRms: 0.05, OnsetStrength: 1.0, PitchHz: MidiToHz(50)})
		if tr.detectOnset(idx) {
			tr.closeActive(tSec)
			*events = append(*events, NoteEvent{StringIdx: tr.s, StartSec: tSec, EndSec: tSec})
			*activeIdx = len(*events) - 1
		}
	}

	open(0.0)
	firstActive := *activeIdx
	open(0.5)
	secondActive := *activeIdx

	activeCount := 0
	for _, e := range *events {
		if e.Active() {
			activeCount++
		}
	}
	if activeCount > 1 {
		t.Fatalf("more than one active event for string %d: %d", tr.s, activeCount)
	}
	if firstActive == secondActive && len(*events) > 1 {
		t.Fatalf("second onset did not replace the active slot")
	}
}

func TestOnsetSeparationGuard(t *testing.T) {
	tr, _, _ := newTestTracker(1, false)
	tr.lastOnsetSec = 0.0
	tr.currentHopSec = 0.01

	idx := tr.injectFrame(FrameFeatures{TSec: 0.03, EnvelopeRms: 0.05, OnsetStrength: 1.0, PitchHz: MidiToHz(45)})
	if tr.detectOnset(idx) {
		t.Fatalf("onset accepted only 30ms after the previous one, want rejection (guard = max(hop, 60ms))")
	}

	idx2 := tr.injectFrame(FrameFeatures{TSec: 0.07, EnvelopeRms: 0.05, OnsetStrength: 1.0, PitchHz: MidiToHz(45)})
	if !tr.detectOnset(idx2) {
		t.Fatalf("onset rejected 70ms after the previous one, want acceptance")
	}
}

func TestSilenceProducesNoOnsetOrPitch(t *testing.T) {
	tr, _, _ := newTestTracker(3, true)
	block := make([]float64, 1024)
	tr.ProcessBlock(block, 48000, 0)
	if len(tr.feat) != 0 {
		t.Fatalf("all-zero block should not advance the feature window, got %d frames", len(tr.feat))
	}
}

func TestFretMappingAtOpenAndTwentyFourthFret(t *testing.T) {
	tr, _, _ := newTestTracker(0, false)
	openMidi := tr.tuning.StringMidi[0]

	if got := MidiToFret(openMidi, openMidi); got != 0 {
		t.Fatalf("open-string fundamental mapped to fret %d, want 0", got)
	}
	if got := MidiToFret(openMidi+24, openMidi); got != 24 {
		t.Fatalf("24th-fret pitch mapped to fret %d, want 24", got)
	}

	// estimateMidi clamps outside [openMidi, openMidi+24], so a pitch far
	// beyond the 24th fret still resolves to a valid (if saturated) midi.
	// MidiToFret itself does not clamp: this checks that an offset past
	// 24 comes back out of range, the value ProcessBlock's
	// (fret < 0 || fret > 24) check rejects.
	fret := MidiToFret(openMidi+30, openMidi)
	if fret <= 24 {
		t.Fatalf("expected an out-of-range fret candidate, got %d", fret)
	}
}

func TestLowStringHarmonicBiasRemapsToOpenFret(t *testing.T) {
	tr, _, _ := newTestTracker(0, false)
	openMidi := tr.tuning.StringMidi[0]
	openHz := MidiToHz(openMidi)

	// 2x the open fundamental, comfortably above the harmonic-bias
	// envelope/onset floors.
	frame := FrameFeatures{
		TSec:          0.1,
		EnvelopeRms:   0.05,
		OnsetStrength: 1.0,
		PitchHz:       openHz * 2.0,
	}
	midiBefore := tr.estimateMidi(frame)
	if midiBefore != openMidi+12 {
		t.Fatalf("pre-bias midi = %d, want open+12 (%d)", midiBefore, openMidi+12)
	}

	midiAfter := tr.applyLowStringBias(midiBefore, frame)
	fret := MidiToFret(midiAfter, openMidi)
	if fret != 0 {
		t.Fatalf("2x-harmonic low-E input remapped to fret %d, want fret 0", fret)
	}
}

func TestHighStringDoesNotGetLowStringBias(t *testing.T) {
	tr, _, _ := newTestTracker(1, true)
	openMidi := tr.tuning.StringMidi[1]
	openHz := MidiToHz(openMidi)

	frame := FrameFeatures{TSec: 0.1, EnvelopeRms: 0.05, OnsetStrength: 1.0, PitchHz: openHz * 2.0}
	midi := tr.estimateMidi(frame)
	got := tr.applyLowStringBias(midi, frame)
	if got != midi {
		t.Fatalf("string 1 (not the low-E string) had its midi changed by the low-string bias: %d -> %d", midi, got)
	}
}

func TestNoteShouldCloseOnSustainedQuiet(t *testing.T) {
	tr, events, activeIdx := newTestTracker(0, false)
	*events = append(*events, NoteEvent{StringIdx: 0, StartSec: 0, EndSec: 0})
	*activeIdx = 0

	t0 := tr.cfg.MinNoteDurSec + 0.01
	for i := 0; i < releaseQuietFrameCount+1; i++ {
		tSec := t0 + float64(i)*0.01
		tr.injectFrame(FrameFeatures{TSec: tSec, EnvelopeRms: 1e-7, OnsetStrength: 0})
	}

	closed := false
	for idx := range tr.feat {
		if tr.noteShouldClose(idx) {
			closed = true
			break
		}
	}
	if !closed {
		t.Fatalf("expected note to close after %d consecutive quiet frames", releaseQuietFrameCount)
	}
}

func TestAmplitudeDbMonotonic(t *testing.T) {
	if AmplitudeDb(0.1) <= AmplitudeDb(0.01) {
		t.Fatalf("AmplitudeDb should increase with RMS")
	}
	if math.IsInf(AmplitudeDb(0), 0) {
		t.Fatalf("AmplitudeDb(0) should be clamped, not -Inf")
	}
}
