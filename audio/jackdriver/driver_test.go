package jackdriver

import (
	"testing"

	"github.com/xthexder/go-jack"
)

func TestConvertPortBufferCopiesAndWidens(t *testing.T) {
	src := []jack.AudioSample{0.1, -0.2, 0.3}
	got := convertPortBuffer(nil, src, 3)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, s := range src {
		want := float64(s)
		if got[i] != want {
			t.Fatalf("index %d = %v, want %v", i, got[i], want)
		}
	}
}

func TestConvertPortBufferReusesBackingArrayWhenLargeEnough(t *testing.T) {
	dst := make([]float64, 0, 8)
	src := []jack.AudioSample{1, 2}
	got := convertPortBuffer(dst, src, 2)
	if cap(got) != cap(dst) {
		t.Fatalf("expected backing array reuse, cap = %d want %d", cap(got), cap(dst))
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("got = %v, want [1 2]", got)
	}
}

func TestConvertPortBufferTruncatesWhenSourceShorterThanN(t *testing.T) {
	src := []jack.AudioSample{5}
	got := convertPortBuffer(nil, src, 3)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0] != 5 || got[1] != 0 || got[2] != 0 {
		t.Fatalf("got = %v, want [5 0 0]", got)
	}
}
