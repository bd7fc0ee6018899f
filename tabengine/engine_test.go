package tabengine

import (
	"testing"

	"github.com/sixstring/hextab/param"
	"github.com/sixstring/hextab/tracker"
)

func newTestEngine() *Engine {
	return New(tracker.DefaultTuning(), tracker.DefaultConfig(), param.New())
}

func TestFuseEventsLabelsSlideOnLargeFretJump(t *testing.T) {
	e := newTestEngine()
	e.events = []tracker.NoteEvent{
		{StringIdx: 0, Fret: 0, StartSec: 0.000, EndSec: 0.200, Velocity: 0.5},
		{StringIdx: 0, Fret: 5, StartSec: 0.215, EndSec: 0.400, Velocity: 0.5},
	}
	e.fuseEvents()

	if e.events[0].Articulation != "slide" {
		t.Fatalf("prev event articulation = %q, want slide", e.events[0].Articulation)
	}
	if e.events[1].Articulation != "slide" {
		t.Fatalf("current event articulation = %q, want slide", e.events[1].Articulation)
	}
}

func TestFuseEventsLabelsHammerAndPull(t *testing.T) {
	e := newTestEngine()
	e.events = []tracker.NoteEvent{
		{StringIdx: 0, Fret: 3, StartSec: 0.0, EndSec: 0.1, Velocity: 0.5},
		{StringIdx: 0, Fret: 4, StartSec: 0.11, EndSec: 0.2, Velocity: 0.5},
		{StringIdx: 0, Fret: 3, StartSec: 0.21, EndSec: 0.3, Velocity: 0.5},
	}
	e.fuseEvents()

	if e.events[1].Articulation != "hammer" {
		t.Fatalf("delta +1 articulation = %q, want hammer", e.events[1].Articulation)
	}
	if e.events[2].Articulation != "pull" {
		t.Fatalf("delta -1 articulation = %q, want pull", e.events[2].Articulation)
	}
}

func TestFuseEventsLabelsPalmMuteOnQuietRepeat(t *testing.T) {
	e := newTestEngine()
	e.events = []tracker.NoteEvent{
		{StringIdx: 0, Fret: 2, StartSec: 0.0, EndSec: 0.1, Velocity: 0.8},
		{StringIdx: 0, Fret: 2, StartSec: 0.13, EndSec: 0.2, Velocity: 0.4},
	}
	e.fuseEvents()

	if e.events[1].Articulation != "pm" {
		t.Fatalf("quiet repeat articulation = %q, want pm", e.events[1].Articulation)
	}
}

func TestFuseEventsLabelsPalmMuteOnShortQuietNote(t *testing.T) {
	e := newTestEngine()
	e.events = []tracker.NoteEvent{
		{StringIdx: 0, Fret: 2, StartSec: 0.0, EndSec: 0.1, Velocity: 0.1},
	}
	e.fuseEvents()

	if e.events[0].Articulation != "pm" {
		t.Fatalf("short quiet note articulation = %q, want pm", e.events[0].Articulation)
	}
}

func TestFuseEventsNeverOverwritesExistingLabel(t *testing.T) {
	e := newTestEngine()
	e.events = []tracker.NoteEvent{
		{StringIdx: 0, Fret: 0, StartSec: 0.0, EndSec: 0.1, Velocity: 0.5, Articulation: "bend"},
		{StringIdx: 0, Fret: 5, StartSec: 0.11, EndSec: 0.2, Velocity: 0.5},
	}
	e.fuseEvents()

	if e.events[0].Articulation != "bend" {
		t.Fatalf("existing articulation overwritten: %q", e.events[0].Articulation)
	}
}

func TestFuseEventsIgnoresActiveEvents(t *testing.T) {
	e := newTestEngine()
	e.events = []tracker.NoteEvent{
		{StringIdx: 0, Fret: 0, StartSec: 0.0, EndSec: 0.0, Velocity: 0.5},
	}
	e.fuseEvents()
	if e.events[0].Articulation != "" {
		t.Fatalf("active (unfinished) event got an articulation: %q", e.events[0].Articulation)
	}
}

func TestImportEventsResetsActiveIndicesAndTrackers(t *testing.T) {
	e := newTestEngine()
	e.events = []tracker.NoteEvent{{StringIdx: 0, Fret: 0, StartSec: 0, EndSec: 0}}
	e.activeIdx[0] = 0

	e.ImportEvents(nil)

	if len(e.Events()) != 0 {
		t.Fatalf("ImportEvents(nil) left %d events, want 0", len(e.Events()))
	}
	for s, idx := range e.activeIdx {
		if idx != -1 {
			t.Fatalf("activeIdx[%d] = %d after ImportEvents(nil), want -1", s, idx)
		}
	}
}

func TestImportEventsPreservesNonEmptyHistory(t *testing.T) {
	e := newTestEngine()
	imported := []tracker.NoteEvent{
		{StringIdx: 2, Fret: 3, StartSec: 1.0, EndSec: 1.2},
	}
	e.ImportEvents(imported)

	if len(e.Events()) != 1 {
		t.Fatalf("ImportEvents did not preserve the provided history")
	}
	if e.activeIdx[2] != -1 {
		t.Fatalf("activeIdx not cleared after ImportEvents")
	}
}

func TestTuningDeviationCentsZeroWithNoPitchSeen(t *testing.T) {
	e := newTestEngine()
	dev := e.TuningDeviationCents()
	for s, c := range dev {
		if c != 0 {
			t.Fatalf("string %d deviation = %v before any pitch seen, want 0", s, c)
		}
	}
}
