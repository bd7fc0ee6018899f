package capture

import (
	"os"
	"path/filepath"

	"github.com/sixstring/hextab/tracker"
)

// sessionWaveTapSeconds is the fixed retention window for the
// always-on per-string wave tap (spec §6: "up to 8s of ring-buffered
// per-string audio").
const sessionWaveTapSeconds = 8.0

// SessionWaveTap mirrors the live input into six fixed-size ring
// buffers, fed every audio block regardless of recording state, and
// flushed to disk exactly once on shutdown.
type SessionWaveTap struct {
	sampleRate float64
	taps       [tracker.NumStrings]*waveTap
}

// NewSessionWaveTap sizes each string's ring buffer to hold
// sessionWaveTapSeconds of audio at sampleRate.
func NewSessionWaveTap(sampleRate float64) *SessionWaveTap {
	capacity := int(sampleRate * sessionWaveTapSeconds)
	t := &SessionWaveTap{sampleRate: sampleRate}
	for s := range t.taps {
		t.taps[s] = newWaveTap(capacity)
	}
	return t
}

// Write appends one string's block of calibrated samples.
func (t *SessionWaveTap) Write(stringIdx int, samples []float64) {
	if stringIdx < 0 || stringIdx >= tracker.NumStrings {
		return
	}
	t.taps[stringIdx].write(samples)
}

// Flush writes each string's current ring buffer contents to
// {root}/logs/sessionwavs/{sessionID}/{stringToken}.wav.
func (t *SessionWaveTap) Flush(root, sessionID string, stringMidi [tracker.NumStrings]int) error {
	dir := filepath.Join(root, "logs", "sessionwavs", sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tokens := stringTokens(stringMidi)
	for s := 0; s < tracker.NumStrings; s++ {
		samples := t.taps[s].snapshot()
		path := filepath.Join(dir, tokens[s]+".wav")
		if err := writeMonoFloatWav(path, t.sampleRate, samples); err != nil {
			return err
		}
	}
	return nil
}
