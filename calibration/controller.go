// Package calibration implements the per-string gain calibration state
// machine: Idle -> Arming[s] -> Capturing[s] -> Finished, driven one
// audio block at a time by whatever owns the live input stream.
package calibration

import "math"

const (
	// NumStrings mirrors tracker.NumStrings; kept independent so this
	// package has no dependency on the tracker package.
	NumStrings = 6

	triggerRms         = 0.008
	captureDurationSec = 1.25

	multiplierMin = 0.2
	multiplierMax = 8.0
)

// State identifies where the controller sits in its sequencer.
type State int

const (
	Idle State = iota
	Arming
	Capturing
	Finished
)

// Result is the finalized per-string average/peak RMS captured across
// one calibration run. Strings outside the run's sequence (a
// single-string Start(target) leaves the other five untouched) are
// seeded with the sentinel -1 rather than 0, so callers can tell "not
// captured this run" apart from "captured a silent string".
type Result struct {
	AvgRms  [NumStrings]float64
	PeakRms [NumStrings]float64
}

// uncapturedSentinel marks a Result slot as not part of the current
// run.
const uncapturedSentinel = -1

// Callbacks lets the owner observe state transitions without the
// controller knowing anything about UI or transport. stringIdx is -1
// for the "finished, not currently on any string" broadcasts.
type Callbacks struct {
	OnStep     func(stringIdx int, capturing bool)
	OnFinished func(Result)
}

// Controller sequences through one or more strings, capturing
// steady-state RMS for each. It is driven on the audio thread by
// repeated calls to ObserveBlock; it performs no I/O itself.
type Controller struct {
	cb Callbacks

	state    State
	sequence []int
	seqPos   int

	framesNeeded int
	framesSeen   int
	sumRms       float64
	peakRms      float64

	result Result
}

// New builds an idle controller.
func New(cb Callbacks) *Controller {
	return &Controller{cb: cb, state: Idle}
}

// State reports the current state.
func (c *Controller) State() State {
	return c.state
}

// Active reports whether a calibration run is in progress.
func (c *Controller) Active() bool {
	return c.state != Idle && c.state != Finished
}

// Start begins a calibration run. target == -1 calibrates every
// string in order 0..5; target in [0,5] calibrates only that string.
// Any in-progress run is discarded.
func (c *Controller) Start(target int) {
	if target < -1 || target >= NumStrings {
		return
	}
	c.sequence = c.sequence[:0]
	if target == -1 {
		for s := 0; s < NumStrings; s++ {
			c.sequence = append(c.sequence, s)
		}
	} else {
		c.sequence = append(c.sequence, target)
	}
	c.seqPos = 0
	c.result = Result{}
	for s := 0; s < NumStrings; s++ {
		c.result.AvgRms[s] = uncapturedSentinel
		c.result.PeakRms[s] = uncapturedSentinel
	}
	c.enterArming()
}

// Reset abandons any in-progress run, returning to Idle. Per spec §4.4
// this is how a stopped audio stream mid-calibration is handled: the
// owner calls Reset, and the next Start reinitializes cleanly.
func (c *Controller) Reset() {
	c.state = Idle
	c.sequence = c.sequence[:0]
	c.seqPos = 0
	c.framesNeeded = 0
	c.framesSeen = 0
	c.sumRms = 0
	c.peakRms = 0
}

func (c *Controller) currentString() int {
	if c.seqPos < 0 || c.seqPos >= len(c.sequence) {
		return -1
	}
	return c.sequence[c.seqPos]
}

func (c *Controller) enterArming() {
	c.state = Arming
	c.framesNeeded = 0
	c.framesSeen = 0
	c.sumRms = 0
	c.peakRms = 0
	if c.cb.OnStep != nil {
		c.cb.OnStep(c.currentString(), false)
	}
}

func (c *Controller) enterCapturing(sampleRate float64) {
	c.state = Capturing
	c.framesNeeded = captureFramesPerString(sampleRate)
	c.framesSeen = 0
	c.sumRms = 0
	c.peakRms = 0
	if c.cb.OnStep != nil {
		c.cb.OnStep(c.currentString(), true)
	}
}

func captureFramesPerString(sampleRate float64) int {
	n := int(sampleRate * captureDurationSec)
	if n < 1 {
		n = 1
	}
	return n
}

// ObserveBlock advances the state machine by one audio block. meters
// holds the current per-string RMS for this block; n is the block's
// sample count (used to weight the capture average and to know when
// 1.25s of audio has been accumulated); sampleRate must be the live
// stream's current sample rate.
func (c *Controller) ObserveBlock(meters [NumStrings]float64, n int, sampleRate float64) {
	if c.state == Idle || c.state == Finished || n <= 0 || sampleRate <= 0 {
		return
	}

	s := c.currentString()
	if s < 0 {
		c.state = Finished
		return
	}

	switch c.state {
	case Arming:
		if meters[s] >= triggerRms {
			c.enterCapturing(sampleRate)
		}
	case Capturing:
		rms := meters[s]
		c.sumRms += rms * float64(n)
		if rms > c.peakRms {
			c.peakRms = rms
		}
		c.framesSeen += n
		if c.framesSeen >= c.framesNeeded {
			avg := 0.0
			if c.framesSeen > 0 {
				avg = c.sumRms / float64(c.framesSeen)
			}
			c.result.AvgRms[s] = avg
			c.result.PeakRms[s] = c.peakRms
			c.advance(sampleRate)
		}
	}
}

func (c *Controller) advance(sampleRate float64) {
	c.seqPos++
	if c.seqPos >= len(c.sequence) {
		c.finish()
		return
	}
	c.enterArming()
}

func (c *Controller) finish() {
	c.state = Finished
	if c.cb.OnStep != nil {
		c.cb.OnStep(-1, false)
	}
	if c.cb.OnFinished != nil {
		c.cb.OnFinished(c.result)
	}
}

// Multiplier derives the calibration gain multiplier for one string:
// clamp(targetRms / avgRms, 0.2, 8.0). avgRms <= 0 returns 1.0 (no
// correction) rather than dividing by zero.
func Multiplier(targetRms, avgRms float64) float64 {
	if avgRms <= 0 {
		return 1.0
	}
	m := targetRms / avgRms
	if m < multiplierMin {
		return multiplierMin
	}
	if m > multiplierMax {
		return multiplierMax
	}
	if math.IsNaN(m) || math.IsInf(m, 0) {
		return multiplierMax
	}
	return m
}
