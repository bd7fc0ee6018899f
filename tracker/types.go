package tracker

// NumStrings is the fixed hex-pickup string count.
const NumStrings = 6

// Tuning is the fixed ordered sequence of open-string MIDI pitches,
// low string to high string.
type Tuning struct {
	StringMidi [NumStrings]int
}

// DefaultTuning is standard guitar tuning: E2 A2 D3 G3 B3 E4.
func DefaultTuning() Tuning {
	return Tuning{StringMidi: [NumStrings]int{40, 45, 50, 55, 59, 64}}
}

// NoteEvent is one detected note. Immutable once the fusion pass labels
// its articulation.
type NoteEvent struct {
	StringIdx    int
	Fret         int
	Midi         int
	StartSec     float64
	EndSec       float64 // equal to StartSec until the tracker closes it
	Velocity     float64
	Articulation string // "", "slide", "hammer", "pull", "pm"
}

// Active reports whether this event is still open (never closed).
func (e NoteEvent) Active() bool {
	return e.EndSec <= e.StartSec
}

// CalibrationProfile is the persisted per-string gain characterization.
type CalibrationProfile struct {
	AvgRms      [NumStrings]float64
	PeakRms     [NumStrings]float64
	Multipliers [NumStrings]float64
	Valid       bool
}

// Config carries the few tracker-wide constants that are not part of
// the per-string parameter store (spec's TrackerConfig).
type Config struct {
	OnsetThreshold float64 // base onset threshold, scaled per-string by onsetThresholdScale
	MinNoteDurSec  float64
	HopSec         float64 // informational target hop, actual hop is max(64, blockSamples)
}

// DefaultConfig mirrors the original TrackerConfig defaults.
func DefaultConfig() Config {
	return Config{
		OnsetThreshold: 0.020,
		MinNoteDurSec:  0.045,
		HopSec:         0.010,
	}
}

// FrameFeatures is one hop's worth of analyzed signal state.
type FrameFeatures struct {
	TSec          float64
	PitchHz       float64 // negative = none
	PitchCents    float64
	OnsetStrength float64
	EnvelopeRms   float64
}
