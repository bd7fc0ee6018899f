// Package paramschema enumerates the fifteen per-string detection
// parameters: their keys, display labels, slider ranges, and units.
// It has no runtime state of its own; param.Store is the place that
// actually holds values.
package paramschema

// NumStrings is the fixed string count of a hex pickup.
const NumStrings = 6

// Parameter identifies one of the fifteen tunable detection parameters.
type Parameter int

const (
	OnsetThresholdScale Parameter = iota
	BaselineFloor
	EnvelopeFloor
	GateRatio
	SustainFloorScale
	RetriggerGateScale
	PeakReleaseRatio
	PitchTolerance
	TargetRms
	CalibrationGainMultiplier
	LowCutMultiplier
	HighCutMultiplier
	AubioThresholdScale
	OnsetSilenceDb
	PitchSilenceDb

	numParameters
)

// Descriptor describes a parameter for UI/editor consumption: label,
// suggested range, step, and unit.
type Descriptor struct {
	ID    Parameter
	Key   string
	Label string
	Unit  string
	Min   float64
	Max   float64
	Step  float64
}

// Category groups descriptors the way the tuning facade presents them.
type Category struct {
	Name        string
	Descriptors []Descriptor
}

var descriptors = [numParameters]Descriptor{
	OnsetThresholdScale:       {OnsetThresholdScale, "onsetThresholdScale", "Onset Threshold", "× base", 0.02, 4.0, 0.001},
	BaselineFloor:             {BaselineFloor, "baselineFloor", "Baseline Floor", "RMS", 2e-5, 0.01, 1e-5},
	EnvelopeFloor:             {EnvelopeFloor, "envelopeFloor", "Envelope Floor", "RMS", 5e-5, 0.008, 5e-5},
	GateRatio:                 {GateRatio, "gateRatio", "Gate Ratio", "× baseline", 0.005, 10, 0.005},
	SustainFloorScale:         {SustainFloorScale, "sustainFloorScale", "Sustain Floor Scale", "× envFloor", 0.10, 2.5, 0.01},
	RetriggerGateScale:        {RetriggerGateScale, "retriggerGateScale", "Retrigger Gate Scale", "× gate", 0.20, 3.0, 0.01},
	PeakReleaseRatio:          {PeakReleaseRatio, "peakReleaseRatio", "Peak Release Ratio", "fraction", 0.02, 0.60, 0.005},
	PitchTolerance:            {PitchTolerance, "pitchTolerance", "Pitch Tolerance", "—", 0.2, 1.0, 0.01},
	TargetRms:                 {TargetRms, "targetRms", "Target RMS", "RMS", 1e-4, 0.35, 1e-4},
	CalibrationGainMultiplier: {CalibrationGainMultiplier, "calibrationGainMultiplier", "Gain Multiplier", "×", 0.2, 8.0, 0.01},
	LowCutMultiplier:          {LowCutMultiplier, "lowCutMultiplier", "Low Cut Multiplier", "× openHz", 0.3, 0.9, 0.01},
	HighCutMultiplier:         {HighCutMultiplier, "highCutMultiplier", "High Cut Multiplier", "× fret24Hz", 0.8, 1.8, 0.02},
	AubioThresholdScale:       {AubioThresholdScale, "aubioThresholdScale", "Onset Threshold (aubio)", "× base", 0.5, 3.0, 0.05},
	OnsetSilenceDb:            {OnsetSilenceDb, "onsetSilenceDb", "Onset Silence", "dB", -120, -30, 1},
	PitchSilenceDb:            {PitchSilenceDb, "pitchSilenceDb", "Pitch Silence", "dB", -120, -30, 1},
}

// defaultValues[param][string] — carried over exactly from the original
// NoteDetectionConfig.cpp constants.
var defaultValues = [numParameters][NumStrings]float64{
	OnsetThresholdScale:       {0.006, 0.009, 0.0116, 0.014, 0.016, 0.018},
	BaselineFloor:             {0.00018, 0.00022, 0.00026, 0.00032, 0.00037, 0.00042},
	EnvelopeFloor:             {0.00045, 0.00055, 0.00065, 0.00078, 0.00090, 0.00105},
	GateRatio:                 {0.055, 0.10, 0.13, 0.17, 0.21, 0.25},
	SustainFloorScale:         {0.58, 0.70, 0.82, 1.0, 1.0, 1.0},
	RetriggerGateScale:        {1.40, 1.25, 1.10, 1.0, 1.0, 1.0},
	PeakReleaseRatio:          {0.12, 0.13, 0.14, 0.16, 0.18, 0.20},
	PitchTolerance:            {0.40, 0.40, 0.45, 0.44, 0.50, 0.55},
	TargetRms:                 {0.25, 0.25, 0.25, 0.25, 0.25, 0.25},
	CalibrationGainMultiplier: {5.0, 5.0, 5.0, 5.0, 5.0, 5.0},
	LowCutMultiplier:          {0.45, 0.50, 0.58, 0.65, 0.65, 0.65},
	HighCutMultiplier:         {1.35, 1.28, 1.18, 1.10, 1.10, 1.10},
	AubioThresholdScale:       {1.2, 1.35, 1.6, 1.8, 1.8, 1.8},
	OnsetSilenceDb:            {-85, -85, -75, -75, -75, -75},
	PitchSilenceDb:            {-90, -90, -80, -80, -80, -80},
}

var stringLabels = [NumStrings]string{"E", "A", "D", "G", "B", "e"}

// DefaultStringMidi is the default open tuning, low string to high
// string: E2 A2 D3 G3 B3 E4.
var DefaultStringMidi = [NumStrings]int{40, 45, 50, 55, 59, 64}

// Descriptors returns the full ordered list of parameter descriptors.
func Descriptors() []Descriptor {
	out := make([]Descriptor, 0, numParameters)
	for _, d := range descriptors {
		out = append(out, d)
	}
	return out
}

// DescriptorFor looks up a single parameter's descriptor.
func DescriptorFor(p Parameter) Descriptor {
	return descriptors[p]
}

// ByKey resolves a parameter by its string key, reporting whether the
// key was recognized.
func ByKey(key string) (Parameter, bool) {
	for _, d := range descriptors {
		if d.Key == key {
			return d.ID, true
		}
	}
	return 0, false
}

// Default returns the default value for a parameter/string pair.
func Default(p Parameter, stringIdx int) float64 {
	if stringIdx < 0 || stringIdx >= NumStrings {
		return 0
	}
	return defaultValues[p][stringIdx]
}

// StringLabel returns the conventional open-string label ("E","A","D",
// "G","B","e"), falling back to the plain "String" for out-of-range
// indices.
func StringLabel(stringIdx int) string {
	if stringIdx < 0 || stringIdx >= NumStrings {
		return "String"
	}
	return stringLabels[stringIdx]
}

// Categories groups the fifteen parameters into the three buckets the
// tuning facade presents to an editor UI.
func Categories() []Category {
	group := func(name string, ids ...Parameter) Category {
		ds := make([]Descriptor, 0, len(ids))
		for _, id := range ids {
			ds = append(ds, descriptors[id])
		}
		return Category{Name: name, Descriptors: ds}
	}
	return []Category{
		group("Envelope & Gate",
			OnsetThresholdScale, BaselineFloor, EnvelopeFloor, GateRatio,
			SustainFloorScale, RetriggerGateScale, PeakReleaseRatio),
		group("Pitch Tracking",
			PitchTolerance, AubioThresholdScale, OnsetSilenceDb, PitchSilenceDb),
		group("Calibration & Filters",
			TargetRms, CalibrationGainMultiplier, LowCutMultiplier, HighCutMultiplier),
	}
}

// FFTMultiple is the per-string FFT-size multiplier used to size the
// tracker's analysis window relative to its hop: {8,7,6,5,4,4}.
func FFTMultiple(stringIdx int) int {
	multiples := [NumStrings]int{8, 7, 6, 5, 4, 4}
	if stringIdx < 0 || stringIdx >= NumStrings {
		return 4
	}
	return multiples[stringIdx]
}
