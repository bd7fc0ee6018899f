package tracker

import "math"

// bandpassFilter is a one-pole high-pass followed by a one-pole
// low-pass, configured per string from the open-string pitch and the
// 24th-fret pitch so each string only sees the band it can plausibly
// ring in.
type bandpassFilter struct {
	hpAlpha     float64
	lpBeta      float64
	hpState     float64
	hpPrevInput float64
	lpState     float64
}

func (f *bandpassFilter) reset() {
	f.hpState = 0
	f.hpPrevInput = 0
	f.lpState = 0
}

func (f *bandpassFilter) configure(sr, lowCutHz, highCutHz float64) {
	f.reset()
	if sr <= 0 {
		f.hpAlpha = 0
		f.lpBeta = 1
		return
	}
	low := math.Max(1, lowCutHz)
	high := math.Max(low+10, highCutHz)
	f.hpAlpha = math.Exp(-2.0 * math.Pi * low / sr)
	f.lpBeta = math.Exp(-2.0 * math.Pi * high / sr)
}

func (f *bandpassFilter) process(x float64) float64 {
	hp := f.hpAlpha * (f.hpState + x - f.hpPrevInput)
	f.hpPrevInput = x
	f.hpState = hp

	lp := (1.0-f.lpBeta)*hp + f.lpBeta*f.lpState
	f.lpState = lp
	return lp
}
