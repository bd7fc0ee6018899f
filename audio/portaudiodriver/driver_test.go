package portaudiodriver

import (
	"testing"

	"github.com/sixstring/hextab/tracker"
)

type recordingSink struct {
	channels [tracker.NumStrings][]float64
	n        int
	rate     float64
	calls    int
}

func (r *recordingSink) ProcessLiveBlock(channels [tracker.NumStrings][]float64, n int, sampleRate float64) {
	r.calls++
	r.n = n
	r.rate = sampleRate
	for s := range channels {
		r.channels[s] = append([]float64(nil), channels[s]...)
	}
}

func TestProcessAudioDeinterleavesFrameMajorInput(t *testing.T) {
	sink := &recordingSink{}
	d := &Driver{sink: sink, sampleRate: 48000}
	for s := range d.channels {
		d.channels[s] = make([]float64, 0, 4)
	}

	frames := 3
	interleaved := make([]float32, frames*tracker.NumStrings)
	for frame := 0; frame < frames; frame++ {
		for s := 0; s < tracker.NumStrings; s++ {
			interleaved[frame*tracker.NumStrings+s] = float32(frame*10 + s)
		}
	}

	d.processAudio(interleaved)

	if sink.calls != 1 {
		t.Fatalf("calls = %d, want 1", sink.calls)
	}
	if sink.n != frames {
		t.Fatalf("n = %d, want %d", sink.n, frames)
	}
	if sink.rate != 48000 {
		t.Fatalf("rate = %v, want 48000", sink.rate)
	}

	for s := 0; s < tracker.NumStrings; s++ {
		for frame := 0; frame < frames; frame++ {
			want := float64(float32(frame*10 + s))
			if sink.channels[s][frame] != want {
				t.Fatalf("channel %d frame %d = %v, want %v", s, frame, sink.channels[s][frame], want)
			}
		}
	}
}
