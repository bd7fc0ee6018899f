package tracker

import "math"

// MidiToHz converts an absolute MIDI pitch to frequency using A4=440Hz.
func MidiToHz(midi int) float64 {
	return 440.0 * math.Pow(2.0, (float64(midi)-69.0)/12.0)
}

// HzToMidi rounds a frequency to the nearest absolute MIDI pitch.
// Returns -1 for non-positive frequencies.
func HzToMidi(hz float64) int {
	if hz <= 0 {
		return -1
	}
	return int(math.Round(69.0 + 12.0*math.Log2(hz/440.0)))
}

// MidiToFret is a plain offset; range validation happens at the call
// site (spec §4.2: fret must land in 0..24 or the onset is rejected).
func MidiToFret(midi, openMidi int) int {
	return midi - openMidi
}

// CentsBetween is the signed cents deviation of hzA from hzB.
func CentsBetween(hzA, hzB float64) float64 {
	if hzA <= 0 || hzB <= 0 {
		return 0
	}
	return 1200.0 * math.Log2(hzA/hzB)
}

// Rms computes the root-mean-square of a real sample block.
func Rms(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

// AmplitudeDb converts a linear RMS amplitude to dB full-scale,
// clamped away from -Inf for silence.
func AmplitudeDb(rms float64) float64 {
	if rms <= 1e-12 {
		return -240.0
	}
	return 20.0 * math.Log10(rms)
}
