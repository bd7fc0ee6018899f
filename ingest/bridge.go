// Package ingest is the single front door for live audio blocks: the
// hot path that applies calibration gain, drives the tab engine, feeds
// the always-on wave tap and (when armed) the capture buffers, and
// marshals new note events to a consumer thread.
package ingest

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/sixstring/hextab/calibration"
	"github.com/sixstring/hextab/capture"
	"github.com/sixstring/hextab/internal/telemetry"
	"github.com/sixstring/hextab/param"
	"github.com/sixstring/hextab/paramschema"
	"github.com/sixstring/hextab/tabengine"
	"github.com/sixstring/hextab/tracker"
)

// duplicateEventWindowSec is the dedup window: a newly appended event
// within this many seconds of the last dispatched event for the same
// string, at the same fret, is treated as a repeat and dropped.
const duplicateEventWindowSec = 0.060

// MeterSnapshot is the live per-string RMS broadcast after every
// block.
type MeterSnapshot [tracker.NumStrings]float64

// Callbacks is the typed replacement for the original's Qt
// signals/slots surface (spec §9 redesign flag).
type Callbacks struct {
	OnMeterSnapshot       func(MeterSnapshot)
	OnEvent               func(tracker.NoteEvent)
	OnCalibrationStarted  func()
	OnCalibrationStep     func(stringOrNeg1 int, capturing bool)
	OnCalibrationFinished func(avg, peak [tracker.NumStrings]float64)
}

type lastDispatchRecord struct {
	valid    bool
	startSec float64
	fret     int
}

type pendingCapture struct {
	buffers    [tracker.NumStrings][]float32
	sampleRate float64
	events     []tracker.NoteEvent
}

// atomicFloat64 is a wait-free float64 cell, the same
// atomic.Uint64-plus-bit-pattern trick param.activeCell uses: Go's
// atomic package has no Float64 for the versions this module targets.
type atomicFloat64 struct {
	bits atomic.Uint64
}

func (a *atomicFloat64) Load() float64 {
	return math.Float64frombits(a.bits.Load())
}

func (a *atomicFloat64) Store(v float64) {
	a.bits.Store(math.Float64bits(v))
}

// Bridge is the live ingest bridge: one per audio stream.
type Bridge struct {
	params  *param.Store
	engine  *tabengine.Engine
	cal     *calibration.Controller
	waveTap *capture.SessionWaveTap
	cb      Callbacks

	waveTapRate float64

	tuning      tracker.Tuning
	captureRoot string

	lastBlockFrames atomic.Int64
	externalMeters  atomic.Bool

	// sampleRate/streamClock are touched every block on the audio
	// thread and occasionally read from SetRecording on the control
	// thread; atomics keep both sides lock-free.
	sampleRate  atomicFloat64
	streamClock atomicFloat64

	// scratch holds the calibrated samples for the block currently in
	// flight. Owned and only ever touched by the audio thread inside
	// ProcessLiveBlock; reused across calls so the hot path never
	// allocates once warmed up to a given block size.
	scratch    [tracker.NumStrings][]float64
	calibrated [tracker.NumStrings][]float64

	mu                     sync.Mutex
	scannedUpTo            int
	lastDispatchedByString [tracker.NumStrings]lastDispatchRecord
	dispatchQueue          []tracker.NoteEvent
	dispatchPending        atomic.Bool

	recording         atomic.Bool
	capMu             sync.Mutex
	captureBuffers    [tracker.NumStrings][]float32
	captureSampleRate float64
	pending           *pendingCapture

	profile tracker.CalibrationProfile
}

// New builds a ready-to-run bridge. waveTapSampleRate seeds the
// always-on wave tap's ring buffer sizing; ProcessLiveBlock replaces
// the tap with one sized for the live rate whenever it observes a
// stream sample rate different from the tap's.
func New(params *param.Store, tuning tracker.Tuning, cfg tracker.Config, captureRoot string, waveTapSampleRate float64, cb Callbacks) *Bridge {
	b := &Bridge{
		params:      params,
		engine:      tabengine.New(tuning, cfg, params),
		tuning:      tuning,
		captureRoot: captureRoot,
		waveTap:     capture.NewSessionWaveTap(waveTapSampleRate),
		waveTapRate: waveTapSampleRate,
		cb:          cb,
	}
	b.cal = calibration.New(calibration.Callbacks{
		OnStep: func(stringIdx int, capturing bool) {
			if b.cb.OnCalibrationStep != nil {
				b.cb.OnCalibrationStep(stringIdx, capturing)
			}
		},
		OnFinished: b.onCalibrationFinished,
	})
	return b
}

// LastBlockFrames is the wait-free hint external players use to pace
// against the live stream's block size.
func (b *Bridge) LastBlockFrames() int {
	return int(b.lastBlockFrames.Load())
}

// SetExternalMeterSource toggles whether an external source has taken
// over meter reporting; while active, ProcessLiveBlock still computes
// meters internally but stops broadcasting them.
func (b *Bridge) SetExternalMeterSource(active bool) {
	b.externalMeters.Store(active)
}

// TuningDeviationCents exposes the tab engine's per-string deviation.
func (b *Bridge) TuningDeviationCents() [tracker.NumStrings]float64 {
	return b.engine.TuningDeviationCents()
}

// ProcessLiveBlock is the audio-thread hot path: one call per audio
// callback, string channels already demultiplexed. The bridge's own
// per-string scratch buffers are reused once grown to the live block
// size; the wave tap, the trackers and event dispatch still allocate
// per block. It takes capMu only while a capture is in progress, and
// takes mu briefly on a sample-rate change and in scanAndDispatch to
// stage new events.
func (b *Bridge) ProcessLiveBlock(channels [tracker.NumStrings][]float64, n int, sampleRate float64) {
	b.lastBlockFrames.Store(int64(n))
	if n <= 0 || sampleRate <= 0 {
		return
	}

	var blockStartSec float64
	if sampleRate != b.sampleRate.Load() {
		b.sampleRate.Store(sampleRate)
		b.streamClock.Store(float64(n) / sampleRate)
		b.mu.Lock()
		b.scannedUpTo = 0
		b.lastDispatchedByString = [tracker.NumStrings]lastDispatchRecord{}
		b.mu.Unlock()
		b.engine.ImportEvents(nil)
		if sampleRate != b.waveTapRate {
			b.waveTap = capture.NewSessionWaveTap(sampleRate)
			b.waveTapRate = sampleRate
		}
	} else {
		blockStartSec = b.streamClock.Load()
		b.streamClock.Store(blockStartSec + float64(n)/sampleRate)
	}

	b.growScratch(n)

	var meters MeterSnapshot
	for s := 0; s < tracker.NumStrings; s++ {
		gain := b.params.ActiveValue(paramschema.CalibrationGainMultiplier, s)
		src := channels[s]
		buf := b.scratch[s][:len(src)]
		for i, v := range src {
			buf[i] = v * gain
		}
		b.calibrated[s] = buf
		meters[s] = tracker.Rms(buf)
		b.waveTap.Write(s, buf)
	}

	if b.recording.Load() {
		b.capMu.Lock()
		for s := 0; s < tracker.NumStrings; s++ {
			for _, v := range b.calibrated[s] {
				b.captureBuffers[s] = append(b.captureBuffers[s], float32(v))
			}
		}
		b.capMu.Unlock()
	}

	if !b.externalMeters.Load() && b.cb.OnMeterSnapshot != nil {
		b.cb.OnMeterSnapshot(meters)
	}

	if b.cal.Active() {
		b.cal.ObserveBlock(meters, n, sampleRate)
	}

	b.engine.ProcessBlock(b.calibrated, sampleRate, blockStartSec)

	b.scanAndDispatch()
}

// growScratch enlarges the per-string scratch buffers to hold n
// samples if they aren't already big enough. Only the first call at a
// given block size allocates; every later call at the same size just
// reslices.
func (b *Bridge) growScratch(n int) {
	for s := 0; s < tracker.NumStrings; s++ {
		if cap(b.scratch[s]) < n {
			b.scratch[s] = make([]float64, n)
		}
	}
}

// scanAndDispatch pulls newly appended events out of the tab engine's
// event vector, drops repeats per the dedup rule, and schedules a
// single-shot drain to the consumer callback.
func (b *Bridge) scanAndDispatch() {
	b.mu.Lock()
	events := b.engine.Events()
	var fresh []tracker.NoteEvent
	for idx := b.scannedUpTo; idx < len(events); idx++ {
		e := events[idx]
		if e.StringIdx < 0 || e.StringIdx >= tracker.NumStrings {
			continue
		}
		last := b.lastDispatchedByString[e.StringIdx]
		dup := last.valid && math.Abs(e.StartSec-last.startSec) < duplicateEventWindowSec && e.Fret == last.fret
		if dup {
			continue
		}
		fresh = append(fresh, e)
		b.lastDispatchedByString[e.StringIdx] = lastDispatchRecord{valid: true, startSec: e.StartSec, fret: e.Fret}
	}
	b.scannedUpTo = len(events)
	if len(fresh) > 0 {
		b.dispatchQueue = append(b.dispatchQueue, fresh...)
	}
	hasWork := len(b.dispatchQueue) > 0
	b.mu.Unlock()

	if hasWork && b.dispatchPending.CompareAndSwap(false, true) {
		go b.runDispatch()
	}
}

func (b *Bridge) runDispatch() {
	defer b.dispatchPending.Store(false)
	b.mu.Lock()
	queued := b.dispatchQueue
	b.dispatchQueue = nil
	b.mu.Unlock()
	if b.cb.OnEvent == nil {
		return
	}
	for _, e := range queued {
		b.cb.OnEvent(e)
	}
}

// SetRecording toggles capture. Rising edge clears capture buffers and
// resets the engine's event history; falling edge snapshots what was
// captured into a pending export. A capture armed before the first
// block takes the stream's sample rate as of the falling edge.
func (b *Bridge) SetRecording(recording bool) {
	b.capMu.Lock()
	defer b.capMu.Unlock()
	if recording == b.recording.Load() {
		return
	}
	b.recording.Store(recording)

	if recording {
		b.mu.Lock()
		b.engine.ImportEvents(nil)
		b.scannedUpTo = 0
		b.lastDispatchedByString = [tracker.NumStrings]lastDispatchRecord{}
		b.mu.Unlock()
		sampleRate := b.sampleRate.Load()

		for s := range b.captureBuffers {
			b.captureBuffers[s] = nil
		}
		b.captureSampleRate = sampleRate
		b.pending = nil
		return
	}

	events := append([]tracker.NoteEvent(nil), b.engine.Events()...)
	sampleRate := b.captureSampleRate
	if sampleRate <= 0 {
		sampleRate = b.sampleRate.Load()
	}
	b.pending = &pendingCapture{
		buffers:    b.captureBuffers,
		sampleRate: sampleRate,
		events:     events,
	}
	for s := range b.captureBuffers {
		b.captureBuffers[s] = nil
	}
}

// ExportPendingCapture writes out whatever was most recently recorded,
// if anything is pending. Returns false if there is nothing to export
// or the export failed.
func (b *Bridge) ExportPendingCapture(label string) bool {
	b.capMu.Lock()
	pending := b.pending
	b.capMu.Unlock()
	if pending == nil {
		return false
	}

	if _, err := capture.ExportSession(b.captureRoot, label, pending.sampleRate, b.tuning.StringMidi, pending.buffers, pending.events); err != nil {
		telemetry.Once("capture-export-failed", "session capture export failed", "err", err)
		return false
	}

	b.capMu.Lock()
	b.pending = nil
	b.capMu.Unlock()
	return true
}

// FlushSessionWaveTap writes the always-on ring buffers to disk once,
// intended for shutdown.
func (b *Bridge) FlushSessionWaveTap(sessionID string) error {
	return b.waveTap.Flush(b.captureRoot, sessionID, b.tuning.StringMidi)
}

// StartCalibration begins a full six-string calibration run.
func (b *Bridge) StartCalibration() {
	if b.cb.OnCalibrationStarted != nil {
		b.cb.OnCalibrationStarted()
	}
	b.cal.Start(-1)
}

// RecalibrateString begins a calibration run targeting a single
// string.
func (b *Bridge) RecalibrateString(stringIdx int) {
	if b.cb.OnCalibrationStarted != nil {
		b.cb.OnCalibrationStarted()
	}
	b.cal.Start(stringIdx)
}

// onCalibrationFinished derives per-string gain multipliers from the
// capture result, writes them into the parameter store's
// calibrationGainMultiplier row, and forwards the resulting profile to
// the tab engine. A single-string run (RecalibrateString) leaves the
// other five strings' AvgRms/PeakRms at calibration's uncaptured
// sentinel (< 0); those rows carry the prior profile forward untouched
// rather than being overwritten with a bogus Multiplier(target, 0).
func (b *Bridge) onCalibrationFinished(result calibration.Result) {
	profile := b.profile
	profile.Valid = true
	for s := 0; s < tracker.NumStrings; s++ {
		if result.AvgRms[s] < 0 || result.PeakRms[s] < 0 {
			if profile.Multipliers[s] == 0 {
				profile.Multipliers[s] = b.params.ActiveValue(paramschema.CalibrationGainMultiplier, s)
			}
			continue
		}
		targetRms := b.params.ActiveValue(paramschema.TargetRms, s)
		multiplier := calibration.Multiplier(targetRms, result.AvgRms[s])
		profile.AvgRms[s] = result.AvgRms[s]
		profile.PeakRms[s] = result.PeakRms[s]
		profile.Multipliers[s] = multiplier
		b.params.SetValue(paramschema.CalibrationGainMultiplier, s, multiplier)
	}
	b.params.Commit()

	b.profile = profile
	b.engine.ApplyCalibration(profile)

	if b.cb.OnCalibrationFinished != nil {
		b.cb.OnCalibrationFinished(profile.AvgRms, profile.PeakRms)
	}
}

// CalibrationProfile returns the most recently finalized calibration
// profile.
func (b *Bridge) CalibrationProfile() tracker.CalibrationProfile {
	return b.profile
}

// LoadCalibrationProfile applies a previously persisted calibration
// profile (spec §6's calibration_profile.json) without running a live
// capture: it writes the multipliers into the parameter store's
// calibrationGainMultiplier row and forwards the profile to the tab
// engine, the same two side effects onCalibrationFinished performs.
func (b *Bridge) LoadCalibrationProfile(profile calibration.ProfileFile) {
	var applied tracker.CalibrationProfile
	applied.Valid = profile.Valid
	applied.AvgRms = profile.Avg
	applied.PeakRms = profile.Peak
	applied.Multipliers = profile.Multipliers

	for s := 0; s < tracker.NumStrings; s++ {
		b.params.SetValue(paramschema.CalibrationGainMultiplier, s, applied.Multipliers[s])
	}
	b.params.Commit()

	b.profile = applied
	b.engine.ApplyCalibration(applied)
}

// CalibrationProfileFile converts the most recently finalized
// calibration profile to its on-disk shape, stamped with timestamp.
func (b *Bridge) CalibrationProfileFile(timestamp string) calibration.ProfileFile {
	return calibration.ProfileFile{
		Valid:       b.profile.Valid,
		Avg:         b.profile.AvgRms,
		Peak:        b.profile.PeakRms,
		Multipliers: b.profile.Multipliers,
		Timestamp:   timestamp,
	}
}
