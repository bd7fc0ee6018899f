// Package tabengine coordinates the six per-string trackers that make
// up a hex-pickup tab engine: it owns the shared event vector and
// active-index table the trackers write into, drives all six in
// lockstep per audio block, and runs a fusion pass afterward that
// labels slides, hammers, pulls, and palm mutes on finished events.
package tabengine

import (
	"github.com/sixstring/hextab/param"
	"github.com/sixstring/hextab/tracker"
)

const (
	fusionGapWindowSec  = 0.12
	fusionPmGapSec       = 0.06
	fusionPmMaxDuration  = 0.18
	fusionPmMaxVelocity  = 0.30
	fusionPmVelocityRatio = 0.7
)

// Engine owns six StringTrackers and the event storage they mutate in
// place.
type Engine struct {
	tuning      tracker.Tuning
	cfg         tracker.Config
	calibration tracker.CalibrationProfile

	events    []tracker.NoteEvent
	activeIdx [tracker.NumStrings]int
	trackers  [tracker.NumStrings]*tracker.StringTracker
}

// New builds an Engine with one StringTracker per string. Strings 0-1
// run the full ("yin") pitch search every hop; strings 2-5 run the
// narrow-band-first ("yin-fast") search.
func New(tuning tracker.Tuning, cfg tracker.Config, params *param.Store) *Engine {
	e := &Engine{tuning: tuning, cfg: cfg}
	for s := range e.activeIdx {
		e.activeIdx[s] = -1
	}
	for s := 0; s < tracker.NumStrings; s++ {
		fast := s >= 2
		e.trackers[s] = tracker.NewStringTracker(s, tuning, cfg, params, fast, &e.events, &e.activeIdx[s])
	}
	return e
}

// ProcessBlock runs each string's tracker over its channel (channels[s]
// may be nil to mean silence) and then fuses the resulting events.
func (e *Engine) ProcessBlock(channels [tracker.NumStrings][]float64, sr, t0 float64) {
	for s := 0; s < tracker.NumStrings; s++ {
		e.trackers[s].ProcessBlock(channels[s], sr, t0)
	}
	e.fuseEvents()
}

// fuseEvents walks the full event list index-forward, tracking the
// most recent finished event per string, and labels articulations on
// gap/fret-delta/velocity relationships between consecutive finished
// events. Labels never overwrite an existing articulation, so running
// this every block over the whole history is idempotent.
func (e *Engine) fuseEvents() {
	var lastFinished [tracker.NumStrings]int
	for s := range lastFinished {
		lastFinished[s] = -1
	}

	for i := range e.events {
		ev := &e.events[i]
		if ev.StringIdx < 0 || ev.StringIdx >= tracker.NumStrings {
			continue
		}
		if !(ev.EndSec > ev.StartSec) {
			continue
		}

		prevIdx := lastFinished[ev.StringIdx]
		if prevIdx >= 0 {
			prev := &e.events[prevIdx]
			if prev.EndSec > prev.StartSec {
				gap := ev.StartSec - prev.EndSec
				if gap >= 0 && gap < fusionGapWindowSec {
					delta := ev.Fret - prev.Fret
					absDelta := delta
					if absDelta < 0 {
						absDelta = -absDelta
					}
					switch {
					case absDelta >= 2:
						if ev.Articulation == "" {
							ev.Articulation = "slide"
						}
						if prev.Articulation == "" {
							prev.Articulation = "slide"
						}
					case delta == 1 || delta == 2:
						if ev.Articulation == "" {
							ev.Articulation = "hammer"
						}
					case delta == -1 || delta == -2:
						if ev.Articulation == "" {
							ev.Articulation = "pull"
						}
					case absDelta == 0 && gap < fusionPmGapSec:
						if ev.Velocity < prev.Velocity*fusionPmVelocityRatio && ev.Articulation == "" {
							ev.Articulation = "pm"
						}
					}
				}
			}
		}

		if ev.Articulation == "" {
			duration := ev.EndSec - ev.StartSec
			if duration < fusionPmMaxDuration && ev.Velocity < fusionPmMaxVelocity {
				ev.Articulation = "pm"
			}
		}

		lastFinished[ev.StringIdx] = i
	}
}

// Events returns the full event history, finished and active.
func (e *Engine) Events() []tracker.NoteEvent {
	return e.events
}

// ImportEvents replaces the event vector wholesale and clears active
// indices. An empty slice additionally resets every tracker's internal
// detection state (spec: "if events is empty, also resets each
// tracker's internal state").
func (e *Engine) ImportEvents(events []tracker.NoteEvent) {
	e.events = append([]tracker.NoteEvent(nil), events...)
	for s := range e.activeIdx {
		e.activeIdx[s] = -1
	}
	if len(events) == 0 {
		for _, t := range e.trackers {
			t.ResetState()
		}
	}
}

// ApplyCalibration forwards a calibration profile to every tracker.
func (e *Engine) ApplyCalibration(profile tracker.CalibrationProfile) {
	e.calibration = profile
	for _, t := range e.trackers {
		t.SetCalibration(profile)
	}
}

// TuningDeviationCents reports, per string, the cents between the
// tracker's last observed pitch and the open-string target; 0 if no
// recent pitch has been seen.
func (e *Engine) TuningDeviationCents() [tracker.NumStrings]float64 {
	var out [tracker.NumStrings]float64
	for s, t := range e.trackers {
		hz := t.LastPitchHz()
		targetHz := tracker.MidiToHz(e.tuning.StringMidi[s])
		if hz > 0 && targetHz > 0 {
			out[s] = tracker.CentsBetween(hz, targetHz)
		}
	}
	return out
}
