package tracker

import (
	"math"
	"sort"

	"github.com/sixstring/hextab/param"
	"github.com/sixstring/hextab/paramschema"
)

const (
	minPitchHz             = 60.0
	maxPitchHz             = 6000.0
	minOnsetSeparationSec  = 0.060
	pitchConfidenceFrames  = 3
	pitchConfidenceMaxCents = 28.0
	pitchHoldFrames        = 4
	pitchHoldReleaseFrames = 10
	envRiseAlpha           = 0.15
	envFallAlpha           = 0.03
	envMin                 = 1.0e-5
	releaseQuietFrameCount = 8
	openBiasMinHoldSec     = 0.36
	lowStringRetriggerGuardSec = 0.22
	calibrationBaseTargetRms = 0.0018
	calibrationMinTargetRms  = 5.0e-5
	calibrationMaxTargetRms  = 0.02
	sliderMixEpsilon         = 1.0e-7
	featureWindowSec         = 0.8
	pitchMedianWindow        = 5
)

func energyToVelocity(rms float64) float64 {
	v := rms * 12.0
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// sliderDominantMix keeps an automatic floor estimate from overwhelming
// a user-provided slider value: the slider value wins unless the
// candidate climbs above it, and even then the climb is capped at
// maxBoost times the slider value.
func sliderDominantMix(base, candidate, maxBoost float64) float64 {
	minBase := math.Max(base, sliderMixEpsilon)
	if candidate <= minBase || maxBoost <= 1 {
		return minBase
	}
	ratio := candidate / minBase
	if ratio < 1 {
		ratio = 1
	} else if ratio > maxBoost {
		ratio = maxBoost
	}
	return minBase * ratio
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// StringTracker runs one hex-pickup string's signal through bandpass
// filtering, onset/pitch detection, and the note-on/note-off state
// machine, appending finished and in-progress notes into a shared
// event slice that the tab engine owns across all six strings.
type StringTracker struct {
	s      int
	tuning Tuning
	cfg    Config
	params *param.Store

	detector FrameDetector
	feat     []FrameFeatures

	events    *[]NoteEvent
	activeIdx *int // this string's slot, owned by the tab engine

	lastOnsetPeakRms float64
	lastOnsetSec     float64
	currentSr        float64
	hopSamples       int
	fftSize          int
	currentHopSec    float64
	paramGeneration  uint64

	filter           bandpassFilter
	filteredScratch  []float64
	detectorReady    bool
	onsetLatched     bool

	pitchConfidenceHz     float64
	pitchConfidenceMidi   int
	pitchConfidenceFrames int

	pitchHoldMidi          int
	pitchHoldPendingMidi   int
	pitchHoldPendingFrames int
	pitchHoldSilenceFrames int

	envAdaptiveRms         float64
	releaseQuietFrames     int
	activeHoldUntilSec     float64
	retriggerBlockUntilSec float64
	activeForcedOpen       bool

	calibrationAvgRms     float64
	calibrationGain       float64
	calibrationTargetRms  float64
	calibrationValid      bool

	lastFeaturePitchHz float64
	pitchMedianWin     []float64
}

// NewStringTracker builds one string's tracker. fast selects the
// yin-fast search strategy (strings 2-5); events/activeIdx are owned
// by the coordinating tab engine and shared across all six trackers.
func NewStringTracker(stringIdx int, tuning Tuning, cfg Config, params *param.Store, fast bool, events *[]NoteEvent, activeIdx *int) *StringTracker {
	t := &StringTracker{
		s:                 stringIdx,
		tuning:            tuning,
		cfg:               cfg,
		params:            params,
		detector:          NewFrameDetector(fast),
		events:            events,
		activeIdx:         activeIdx,
		lastOnsetSec:      -1,
		envAdaptiveRms:    0.001,
		pitchHoldMidi:     -1,
		pitchConfidenceMidi: -1,
		pitchConfidenceHz:   -1,
		lastFeaturePitchHz:  -1,
		calibrationAvgRms:   0.001,
	}
	t.refreshCalibrationTarget()
	return t
}

func (t *StringTracker) onsetThresholdScale() float64 {
	return t.params.ActiveValue(paramschema.OnsetThresholdScale, t.s)
}
func (t *StringTracker) baselineFloor() float64 {
	return t.params.ActiveValue(paramschema.BaselineFloor, t.s)
}
func (t *StringTracker) envelopeFloorParam() float64 {
	return t.params.ActiveValue(paramschema.EnvelopeFloor, t.s)
}
func (t *StringTracker) gateRatio() float64 {
	return t.params.ActiveValue(paramschema.GateRatio, t.s)
}
func (t *StringTracker) sustainFloorScale() float64 {
	return t.params.ActiveValue(paramschema.SustainFloorScale, t.s)
}
func (t *StringTracker) retriggerGateScale() float64 {
	return t.params.ActiveValue(paramschema.RetriggerGateScale, t.s)
}
func (t *StringTracker) pitchTolerance() float64 {
	return t.params.ActiveValue(paramschema.PitchTolerance, t.s)
}
func (t *StringTracker) aubioThresholdScale() float64 {
	return t.params.ActiveValue(paramschema.AubioThresholdScale, t.s)
}
func (t *StringTracker) onsetSilenceDb() float64 {
	return t.params.ActiveValue(paramschema.OnsetSilenceDb, t.s)
}
func (t *StringTracker) pitchSilenceDb() float64 {
	return t.params.ActiveValue(paramschema.PitchSilenceDb, t.s)
}
func (t *StringTracker) lowCutMultiplier() float64 {
	return t.params.ActiveValue(paramschema.LowCutMultiplier, t.s)
}
func (t *StringTracker) highCutMultiplier() float64 {
	return t.params.ActiveValue(paramschema.HighCutMultiplier, t.s)
}

func (t *StringTracker) configureProcessing(sr float64, blockSamples int) {
	if sr <= 0 || blockSamples <= 0 {
		return
	}

	storeGen := t.params.Generation()
	paramsChanged := storeGen != t.paramGeneration
	desiredHop := blockSamples
	if desiredHop < 64 {
		desiredHop = 64
	}
	if !paramsChanged && math.Abs(sr-t.currentSr) < 1e-3 && desiredHop == t.hopSamples {
		return
	}

	if paramsChanged {
		t.refreshCalibrationTarget()
	}
	t.paramGeneration = storeGen
	t.currentSr = sr
	t.hopSamples = desiredHop
	t.currentHopSec = float64(t.hopSamples) / t.currentSr

	fftTarget := t.hopSamples * paramschema.FFTMultiple(t.s)
	if minTarget := t.hopSamples * 4; fftTarget < minTarget {
		fftTarget = minTarget
	}
	fftSize := 1
	for fftSize < fftTarget {
		fftSize <<= 1
	}
	t.fftSize = fftSize

	openMidi := t.tuning.StringMidi[t.s]
	openHz := MidiToHz(openMidi)
	lowCut := math.Max(20, openHz*t.lowCutMultiplier())
	highestNoteHz := MidiToHz(openMidi + 24)
	highCut := math.Min(6000, highestNoteHz*t.highCutMultiplier())
	t.filter.configure(sr, lowCut, highCut)

	aubioScale := t.aubioThresholdScale()
	onsetGateThreshold := clampFloat(t.cfg.OnsetThreshold*aubioScale, 0.01, 0.18)

	err := t.detector.Configure(sr, t.hopSamples, t.fftSize, minPitchHz, maxPitchHz,
		onsetGateThreshold, t.onsetSilenceDb(), t.pitchSilenceDb(), t.pitchTolerance())
	t.detectorReady = err == nil
}

// updateFeatures bandpass-filters the incoming block, normalizes its
// gain against clipping the detector, and folds it into hop-sized
// frames appended to the rolling feature window. The filtered signal
// feeds both onset and pitch estimation: the original aubio-backed
// implementation fed the two detectors different signals (raw for
// onset, filtered-only-for-low-strings for pitch); FrameDetector
// performs both from one spectral analysis pass, so they share input
// here.
func (t *StringTracker) updateFeatures(samples []float64, sr, t0 float64) {
	if t.hopSamples <= 0 || !t.detectorReady {
		return
	}

	n := len(samples)
	if n == 0 {
		t.feat = append(t.feat, FrameFeatures{TSec: t0})
		t.trimFeatureWindow()
		return
	}

	if cap(t.filteredScratch) < n {
		t.filteredScratch = make([]float64, n)
	} else {
		t.filteredScratch = t.filteredScratch[:n]
	}
	for i, x := range samples {
		t.filteredScratch[i] = t.filter.process(x * t.calibrationGain)
	}

	hop := t.hopSamples
	offset := 0
	for offset < n {
		frameLen := hop
		if n-offset < frameLen {
			frameLen = n - offset
		}
		if frameLen <= 0 {
			break
		}

		frame := FrameFeatures{TSec: t0 + (float64(offset)+0.5*float64(frameLen))/sr}
		framePtr := t.filteredScratch[offset : offset+frameLen]
		frame.EnvelopeRms = Rms(framePtr)

		framePeak := 0.0
		for _, v := range framePtr {
			if a := math.Abs(v); a > framePeak {
				framePeak = a
			}
		}
		gain := 1.0
		if framePeak > 1e-5 {
			gain = math.Min(1.0, 0.4/framePeak)
		}

		hopBuf := make([]float64, hop)
		for i := 0; i < hop; i++ {
			if i < frameLen {
				hopBuf[i] = framePtr[i] * gain
			}
		}
		onsetStrength, detectedPitchHz := t.detector.Feed(hopBuf)

		if detectedPitchHz > 0 {
			smoothed := t.applyPitchMedian(detectedPitchHz)
			frame.PitchHz = smoothed
			refHz := MidiToHz(t.tuning.StringMidi[t.s])
			frame.PitchCents = CentsBetween(frame.PitchHz, refHz)
		} else {
			t.pitchMedianWin = t.pitchMedianWin[:0]
		}

		if frame.PitchHz > 0 {
			t.lastFeaturePitchHz = frame.PitchHz
		}
		frame.OnsetStrength = onsetStrength

		t.feat = append(t.feat, frame)
		offset += hop
	}

	t.trimFeatureWindow()
}

func (t *StringTracker) trimFeatureWindow() {
	for len(t.feat) > 0 && t.feat[len(t.feat)-1].TSec-t.feat[0].TSec > featureWindowSec {
		t.feat = t.feat[1:]
	}
}

func (t *StringTracker) detectOnset(frameIdx int) bool {
	if frameIdx < 0 || frameIdx >= len(t.feat) {
		return false
	}
	frame := t.feat[frameIdx]
	onsetStrength := frame.OnsetStrength
	envelope := frame.EnvelopeRms

	sliderOnsetScale := t.onsetThresholdScale()
	onsetThreshold := sliderOnsetScale * t.cfg.OnsetThreshold
	baseFloor := t.baselineFloor()
	gateRatio := t.gateRatio()
	envelopeFloorParam := t.envelopeFloorParam()
	sliderBaseline := math.Max(baseFloor, sliderMixEpsilon)
	baseline := sliderBaseline
	baseline = sliderDominantMix(baseline, t.envAdaptiveRms*0.4, 4.0)
	baseline = sliderDominantMix(baseline, t.lastOnsetPeakRms*0.9, 3.0)
	gateThreshold := baseline * gateRatio
	envFloor := math.Max(envelopeFloorParam, baseline*0.7)
	envFloor = sliderDominantMix(envFloor, t.envAdaptiveRms*0.6, 3.0)
	envFloor = sliderDominantMix(envFloor, t.lastOnsetPeakRms*0.5, 2.5)
	separationGuard := math.Max(t.currentHopSec, minOnsetSeparationSec)

	if onsetStrength <= 0 {
		return false
	}
	if onsetStrength < onsetThreshold {
		return false
	}
	if t.onsetLatched {
		return false
	}
	if envelope < gateThreshold {
		return false
	}
	if envelope < envFloor {
		return false
	}
	if t.lastOnsetSec >= 0 && frame.TSec-t.lastOnsetSec < separationGuard {
		return false
	}
	if *t.activeIdx >= 0 && *t.activeIdx < len(*t.events) {
		active := (*t.events)[*t.activeIdx]
		if frame.TSec-active.StartSec < t.cfg.MinNoteDurSec*0.6 {
			return false
		}
	}

	t.onsetLatched = true
	return true
}

func (t *StringTracker) estimateMidi(frame FrameFeatures) int {
	if frame.PitchHz <= 0 {
		return -1
	}
	openMidi := t.tuning.StringMidi[t.s]
	midi := HzToMidi(frame.PitchHz)
	if midi < openMidi {
		midi = openMidi
	} else if midi > openMidi+24 {
		midi = openMidi + 24
	}
	return midi
}

// applyLowStringBias remaps the low-E string's pitch estimate when the
// detector locks onto a 2nd/3rd/4th harmonic of the open string instead
// of the (quieter, harder to track) fundamental.
func (t *StringTracker) applyLowStringBias(midi int, frame FrameFeatures) int {
	if t.s > 0 || midi < 0 || frame.PitchHz <= 0 {
		return midi
	}
	openMidi := t.tuning.StringMidi[t.s]
	if midi <= openMidi {
		return midi
	}
	openHz := MidiToHz(openMidi)
	if openHz <= 0 {
		return midi
	}
	ratio := frame.PitchHz / openHz
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) || ratio < 1.7 {
		return midi
	}
	harmonic := int(math.Round(ratio))
	if harmonic < 2 || harmonic > 4 {
		return midi
	}
	harmonicError := math.Abs(ratio - float64(harmonic))
	tolerance := 0.08 * float64(harmonic)
	if harmonicError > tolerance {
		return midi
	}

	minEnv := math.Max(t.envelopeFloorParam()*0.65, t.calibrationTargetRms*0.55)
	minOnset := t.onsetThresholdScale() * t.cfg.OnsetThreshold * 1.6
	if frame.EnvelopeRms < minEnv || frame.OnsetStrength < minOnset {
		return midi
	}

	fundamentalHz := frame.PitchHz / float64(harmonic)
	candidateMidi := HzToMidi(fundamentalHz)
	if candidateMidi < openMidi {
		candidateMidi = openMidi
	} else if candidateMidi > openMidi+24 {
		candidateMidi = openMidi + 24
	}
	if candidateMidi == openMidi && candidateMidi < midi {
		return candidateMidi
	}
	return midi
}

func (t *StringTracker) noteShouldClose(frameIdx int) bool {
	if *t.activeIdx < 0 || *t.activeIdx >= len(*t.events) {
		return false
	}
	if frameIdx < 0 || frameIdx >= len(t.feat) {
		return false
	}
	frame := t.feat[frameIdx]
	ev := (*t.events)[*t.activeIdx]
	age := frame.TSec - ev.StartSec
	if age < t.cfg.MinNoteDurSec {
		return false
	}
	if t.activeHoldUntilSec > 0 && frame.TSec < t.activeHoldUntilSec {
		return false
	}
	if t.s == 0 && t.retriggerBlockUntilSec > 0 && frame.TSec < t.retriggerBlockUntilSec {
		return false
	}

	avgEnv := 0.0
	count := 0
	for k := 0; k < 5; k++ {
		if frameIdx < k {
			break
		}
		avgEnv += t.feat[frameIdx-k].EnvelopeRms
		count++
	}
	if count == 0 {
		return false
	}
	avgEnv /= float64(count)

	sliderEnvFloor := math.Max(t.envelopeFloorParam(), sliderMixEpsilon)
	sustainScale := math.Max(0.05, t.sustainFloorScale())
	sustainFloor := sliderEnvFloor * sustainScale

	quiet := avgEnv < sustainFloor
	if quiet {
		t.releaseQuietFrames++
		if t.releaseQuietFrames > releaseQuietFrameCount {
			t.releaseQuietFrames = releaseQuietFrameCount
		}
	} else {
		t.releaseQuietFrames = 0
	}

	if t.releaseQuietFrames >= releaseQuietFrameCount {
		return true
	}

	cappedPeak := sliderDominantMix(sustainFloor, t.lastOnsetPeakRms, 6.0)
	retriggerGate := math.Max(sustainFloor, cappedPeak*0.4)
	retriggerGate = math.Max(sliderEnvFloor*0.3, retriggerGate*t.retriggerGateScale())
	retriggerGate = math.Min(retriggerGate, sustainFloor*6.0)

	allowRetriggerRelease := true
	if t.s == 0 && t.activeForcedOpen {
		holdExpired := !(t.activeHoldUntilSec > 0 && frame.TSec < t.activeHoldUntilSec)
		peakRef := math.Max(t.lastOnsetPeakRms, 1.0e-6)
		envRatio := 0.0
		if peakRef > 0 {
			envRatio = avgEnv / peakRef
		}
		if !holdExpired || envRatio > 0.55 {
			allowRetriggerRelease = false
		} else {
			retriggerGate *= 1.8
		}
	}

	if allowRetriggerRelease && frame.OnsetStrength > retriggerGate && age >= t.cfg.MinNoteDurSec*0.75 {
		return true
	}

	return false
}

func (t *StringTracker) applyPitchMedian(pitchHz float64) float64 {
	if pitchHz <= 0 {
		return pitchHz
	}
	t.pitchMedianWin = append(t.pitchMedianWin, pitchHz)
	if len(t.pitchMedianWin) > pitchMedianWindow {
		t.pitchMedianWin = t.pitchMedianWin[1:]
	}
	if len(t.pitchMedianWin) < 3 {
		return pitchHz
	}
	scratch := make([]float64, len(t.pitchMedianWin))
	copy(scratch, t.pitchMedianWin)
	sort.Float64s(scratch)
	return scratch[len(scratch)/2]
}

func (t *StringTracker) updatePitchConfidence(midi int, pitchHz float64) bool {
	if midi < 0 || pitchHz <= 0 {
		t.pitchConfidenceFrames = 0
		t.pitchConfidenceMidi = -1
		t.pitchConfidenceHz = -1
		return false
	}

	if t.pitchConfidenceMidi < 0 {
		t.pitchConfidenceMidi = midi
		t.pitchConfidenceHz = pitchHz
		t.pitchConfidenceFrames = 1
		return t.pitchConfidenceFrames >= pitchConfidenceFrames
	}

	referenceHz := t.pitchConfidenceHz
	if referenceHz <= 0 {
		referenceHz = MidiToHz(t.pitchConfidenceMidi)
	}
	centsDiff := math.Abs(CentsBetween(pitchHz, referenceHz))

	switch {
	case midi == t.pitchConfidenceMidi && centsDiff <= pitchConfidenceMaxCents:
		t.pitchConfidenceFrames++
		if t.pitchConfidenceFrames > 8 {
			t.pitchConfidenceFrames = 8
		}
		t.pitchConfidenceHz = 0.8*referenceHz + 0.2*pitchHz
	case centsDiff <= pitchConfidenceMaxCents*0.6:
		t.pitchConfidenceMidi = midi
		t.pitchConfidenceHz = pitchHz
		t.pitchConfidenceFrames = 1
	default:
		t.pitchConfidenceMidi = midi
		t.pitchConfidenceHz = pitchHz
		t.pitchConfidenceFrames = 1
	}

	return t.pitchConfidenceFrames >= pitchConfidenceFrames
}

func (t *StringTracker) applyPitchHold(midi int, stable bool) int {
	if !stable || midi < 0 {
		t.pitchHoldPendingMidi = -1
		t.pitchHoldPendingFrames = 0
		t.pitchHoldSilenceFrames++
		if t.pitchHoldSilenceFrames > pitchHoldReleaseFrames {
			t.pitchHoldSilenceFrames = pitchHoldReleaseFrames
		}
		if t.pitchHoldSilenceFrames >= pitchHoldReleaseFrames {
			t.pitchHoldMidi = -1
		}
		return t.pitchHoldMidi
	}

	t.pitchHoldSilenceFrames = 0

	if t.pitchHoldMidi < 0 {
		t.pitchHoldMidi = midi
		t.pitchHoldPendingMidi = -1
		t.pitchHoldPendingFrames = 0
		return t.pitchHoldMidi
	}

	if midi == t.pitchHoldMidi {
		t.pitchHoldPendingMidi = -1
		t.pitchHoldPendingFrames = 0
		return t.pitchHoldMidi
	}

	if t.pitchHoldPendingMidi != midi {
		t.pitchHoldPendingMidi = midi
		t.pitchHoldPendingFrames = 1
		return t.pitchHoldMidi
	}

	t.pitchHoldPendingFrames++
	if t.pitchHoldPendingFrames > pitchHoldFrames {
		t.pitchHoldPendingFrames = pitchHoldFrames
	}
	if t.pitchHoldPendingFrames >= pitchHoldFrames {
		t.pitchHoldMidi = t.pitchHoldPendingMidi
		t.pitchHoldPendingMidi = -1
		t.pitchHoldPendingFrames = 0
	}

	return t.pitchHoldMidi
}

// refreshCalibrationTarget clamps the calibration target RMS, which
// applyLowStringBias uses as one of its envelope floors and
// SetCalibration uses to prime the adaptive envelope. The ingest bridge
// applies the actual calibration gain before samples ever reach
// ProcessBlock (spec's Live Ingest Bridge owns the gain multiply), so
// calibrationGain here always settles back to 1.0.
func (t *StringTracker) refreshCalibrationTarget() {
	t.calibrationTargetRms = clampFloat(calibrationBaseTargetRms, calibrationMinTargetRms, calibrationMaxTargetRms)
	t.calibrationGain = 1.0
}

// LastPitchHz returns the most recent resolved pitch for metering /
// debug display, independent of the note-on/off state machine.
func (t *StringTracker) LastPitchHz() float64 {
	return t.lastFeaturePitchHz
}

// ProcessBlock feeds one hop (or multiple hops' worth) of mono samples
// through filtering, detection, and the onset/release state machine,
// opening and closing NoteEvents in the shared event slice as it goes.
// A nil or empty sample slice is treated as silence.
func (t *StringTracker) ProcessBlock(samples []float64, sr, t0 float64) {
	if sr <= 0 {
		return
	}
	t.configureProcessing(sr, len(samples))
	if !t.detectorReady {
		return
	}
	if len(samples) == 0 {
		return
	}

	channelPeak := 0.0
	for _, v := range samples {
		if a := math.Abs(v); a > channelPeak {
			channelPeak = a
		}
	}
	if channelPeak < 1e-6 {
		return
	}

	prevFrames := len(t.feat)
	prevTailSec := math.Inf(-1)
	if prevFrames > 0 {
		prevTailSec = t.feat[prevFrames-1].TSec
	}

	t.updateFeatures(samples, sr, t0)
	if len(t.feat) == 0 {
		return
	}

	startIdx := 0
	if prevFrames > 0 {
		for startIdx < len(t.feat) && t.feat[startIdx].TSec <= prevTailSec {
			startIdx++
		}
	}

	for idx := startIdx; idx < len(t.feat); idx++ {
		frame := t.feat[idx]

		env := math.Max(frame.EnvelopeRms, 0)
		alpha := envFallAlpha
		if env > t.envAdaptiveRms {
			alpha = envRiseAlpha
		}
		t.envAdaptiveRms = (1-alpha)*t.envAdaptiveRms + alpha*env
		if t.envAdaptiveRms < envMin {
			t.envAdaptiveRms = envMin
		}

		t.lastOnsetPeakRms *= 0.995

		latchRelease := t.onsetThresholdScale() * t.cfg.OnsetThreshold * 0.6
		if frame.OnsetStrength < latchRelease {
			t.onsetLatched = false
		}

		midiCandidate := -1
		if frame.PitchHz > 0 {
			midiCandidate = t.estimateMidi(frame)
		}
		pitchStable := t.updatePitchConfidence(midiCandidate, frame.PitchHz)
		heldMidi := t.applyPitchHold(midiCandidate, pitchStable)

		if *t.activeIdx >= 0 && *t.activeIdx < len(*t.events) {
			active := &(*t.events)[*t.activeIdx]
			active.EndSec = frame.TSec
			if v := energyToVelocity(frame.EnvelopeRms); v > active.Velocity {
				active.Velocity = v
			}
		}

		if t.detectOnset(idx) {
			t.closeActive(frame.TSec)

			if frame.PitchHz <= 0 || heldMidi < 0 {
				t.onsetLatched = false
				continue
			}
			if !pitchStable {
				t.onsetLatched = false
				continue
			}

			midi := heldMidi
			beforeBiasMidi := midi
			midi = t.applyLowStringBias(midi, frame)
			if midi < 0 {
				t.onsetLatched = false
				continue
			}

			fret := MidiToFret(midi, t.tuning.StringMidi[t.s])
			if fret < 0 || fret > 24 {
				continue
			}

			velocity := energyToVelocity(frame.EnvelopeRms)
			ev := NoteEvent{
				StringIdx: t.s,
				Fret:      fret,
				Midi:      midi,
				StartSec:  frame.TSec,
				EndSec:    frame.TSec,
				Velocity:  velocity,
			}
			*t.events = append(*t.events, ev)
			*t.activeIdx = len(*t.events) - 1
			t.lastOnsetPeakRms = frame.EnvelopeRms
			t.lastOnsetSec = frame.TSec
			t.releaseQuietFrames = 0
			t.activeHoldUntilSec = 0
			t.retriggerBlockUntilSec = 0
			t.activeForcedOpen = false

			if t.s == 0 {
				t.retriggerBlockUntilSec = frame.TSec + lowStringRetriggerGuardSec
				forcedOpenBias := midi == t.tuning.StringMidi[t.s] && midi != beforeBiasMidi
				if forcedOpenBias {
					t.activeHoldUntilSec = frame.TSec + openBiasMinHoldSec
					t.activeForcedOpen = true
				}
			}
			continue
		}

		if t.noteShouldClose(idx) {
			t.closeActive(frame.TSec)
		}
	}
}

func (t *StringTracker) closeActive(tSec float64) {
	if *t.activeIdx < 0 || *t.activeIdx >= len(*t.events) {
		return
	}
	active := &(*t.events)[*t.activeIdx]
	end := tSec
	if minEnd := active.StartSec + t.cfg.MinNoteDurSec; end < minEnd {
		end = minEnd
	}
	active.EndSec = end
	*t.activeIdx = -1
	t.releaseQuietFrames = 0
	t.activeHoldUntilSec = 0
	t.retriggerBlockUntilSec = 0
	t.activeForcedOpen = false
}

// ResetState clears all rolling detection state, e.g. on session
// restart or tuning change. It does not touch calibration.
func (t *StringTracker) ResetState() {
	t.feat = t.feat[:0]
	t.lastOnsetPeakRms = 0
	t.lastOnsetSec = -1
	t.filter.reset()
	t.filteredScratch = t.filteredScratch[:0]
	t.currentSr = 0
	t.hopSamples = 0
	t.fftSize = 0
	t.currentHopSec = 0
	t.detectorReady = false
	t.onsetLatched = false
	t.pitchMedianWin = t.pitchMedianWin[:0]
	t.pitchConfidenceFrames = 0
	t.pitchConfidenceMidi = -1
	t.pitchConfidenceHz = -1
	t.pitchHoldMidi = -1
	t.pitchHoldPendingMidi = -1
	t.pitchHoldPendingFrames = 0
	t.pitchHoldSilenceFrames = 0
	t.envAdaptiveRms = 0.001
	t.releaseQuietFrames = 0
	t.activeHoldUntilSec = 0
	t.retriggerBlockUntilSec = 0
	t.activeForcedOpen = false
	t.lastFeaturePitchHz = -1
}

// SetCalibration applies (or clears) a calibration profile: it records
// the profile's validity and this string's average RMS, and for a valid
// profile raises the adaptive envelope to at least the calibration
// target RMS. The recorded average RMS is not read by any detection
// step; the actual gain multiply happens upstream in the ingest bridge.
func (t *StringTracker) SetCalibration(profile CalibrationProfile) {
	if !profile.Valid {
		t.calibrationValid = false
		t.calibrationAvgRms = 0.001
		t.refreshCalibrationTarget()
		return
	}
	t.calibrationAvgRms = math.Max(profile.AvgRms[t.s], 1.0e-4)
	t.calibrationValid = true
	t.refreshCalibrationTarget()
	if t.calibrationTargetRms > t.envAdaptiveRms {
		t.envAdaptiveRms = t.calibrationTargetRms
	}
}
