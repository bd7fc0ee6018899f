package calibration

import "testing"

func TestSingleStringCalibrationProducesExpectedMultiplier(t *testing.T) {
	var steps []struct {
		s         int
		capturing bool
	}
	var finished *Result

	c := New(Callbacks{
		OnStep: func(stringIdx int, capturing bool) {
			steps = append(steps, struct {
				s         int
				capturing bool
			}{stringIdx, capturing})
		},
		OnFinished: func(r Result) {
			finished = &r
		},
	})

	c.Start(2)
	if c.State() != Arming || c.currentString() != 2 {
		t.Fatalf("after Start(2), state=%v string=%d, want Arming/2", c.State(), c.currentString())
	}

	sampleRate := 48000.0
	blockSamples := 1024

	armMeters := [NumStrings]float64{}
	armMeters[2] = 0.01 // above triggerRms
	c.ObserveBlock(armMeters, blockSamples, sampleRate)
	if c.State() != Capturing {
		t.Fatalf("expected transition to Capturing after trigger, got %v", c.State())
	}

	captureMeters := [NumStrings]float64{}
	captureMeters[2] = 0.003
	needed := captureFramesPerString(sampleRate)
	seen := 0
	for seen < needed {
		c.ObserveBlock(captureMeters, blockSamples, sampleRate)
		seen += blockSamples
	}

	if c.State() != Finished {
		t.Fatalf("expected Finished after capturing 1.25s, got %v", c.State())
	}
	if finished == nil {
		t.Fatal("OnFinished was never called")
	}

	got := finished.AvgRms[2]
	if diff := got - 0.003; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("avgRms[2] = %v, want ~0.003", got)
	}

	multiplier := Multiplier(0.25, got)
	if multiplier != 8.0 {
		t.Fatalf("multiplier = %v, want 8.0 (clamp(0.25/0.003, 0.2, 8.0))", multiplier)
	}

	for s := 0; s < NumStrings; s++ {
		if s == 2 {
			continue
		}
		if finished.AvgRms[s] != uncapturedSentinel || finished.PeakRms[s] != uncapturedSentinel {
			t.Fatalf("string %d avgRms/peakRms = %v/%v, want uncaptured sentinel %v", s, finished.AvgRms[s], finished.PeakRms[s], uncapturedSentinel)
		}
	}
}

func TestAllStringCalibrationVisitsEveryStringInOrder(t *testing.T) {
	var order []int
	c := New(Callbacks{
		OnStep: func(stringIdx int, capturing bool) {
			if capturing {
				order = append(order, stringIdx)
			}
		},
	})
	c.Start(-1)

	sampleRate := 48000.0
	blockSamples := 2048
	needed := captureFramesPerString(sampleRate)

	for s := 0; s < NumStrings; s++ {
		meters := [NumStrings]float64{}
		meters[s] = 0.01
		c.ObserveBlock(meters, blockSamples, sampleRate)
		if c.State() != Capturing {
			t.Fatalf("string %d: expected Capturing after trigger, got %v", s, c.State())
		}
		seen := 0
		captureMeters := [NumStrings]float64{}
		captureMeters[s] = 0.005
		for seen < needed {
			c.ObserveBlock(captureMeters, blockSamples, sampleRate)
			seen += blockSamples
		}
	}

	if c.State() != Finished {
		t.Fatalf("expected Finished after all six strings, got %v", c.State())
	}
	if len(order) != NumStrings {
		t.Fatalf("visited %d strings, want %d", len(order), NumStrings)
	}
	for s := 0; s < NumStrings; s++ {
		if order[s] != s {
			t.Fatalf("visit order[%d] = %d, want %d", s, order[s], s)
		}
	}
}

func TestResetAbandonsInProgressRun(t *testing.T) {
	c := New(Callbacks{})
	c.Start(0)
	meters := [NumStrings]float64{}
	meters[0] = 0.01
	c.ObserveBlock(meters, 1024, 48000)
	if c.State() != Capturing {
		t.Fatalf("expected Capturing before Reset, got %v", c.State())
	}

	c.Reset()
	if c.State() != Idle {
		t.Fatalf("state after Reset = %v, want Idle", c.State())
	}
	if c.Active() {
		t.Fatal("controller reports Active after Reset")
	}
}

func TestMultiplierClampsToRange(t *testing.T) {
	cases := []struct {
		target, avg, want float64
	}{
		{0.25, 0.003, 8.0},
		{0.25, 2.0, 0.2},
		{0.0018, 0.0018, 1.0},
		{0.25, 0, 1.0},
	}
	for _, tc := range cases {
		got := Multiplier(tc.target, tc.avg)
		if got != tc.want {
			t.Fatalf("Multiplier(%v, %v) = %v, want %v", tc.target, tc.avg, got, tc.want)
		}
	}
}
