package capture

import (
	"fmt"
	"sync"
)

// float32Ring is a fixed-size, overwrite-on-full circular buffer of
// float32 samples. Retyped and trimmed from the teacher's generic
// circular.Buffer[T]: no At() (nothing here ever needs random-access
// into the ring, only a full sequential dump), no type parameter (the
// wave tap only ever stores audio samples).
type float32Ring struct {
	mutex   sync.RWMutex
	values  []float32
	pointer int
}

func newFloat32Ring(size int) *float32Ring {
	return &float32Ring{values: make([]float32, size)}
}

// enqueue adds elements to the ring, potentially overwriting unread
// ones. Semantics: first write to the buffer, then advance the
// pointer, which always points at the oldest element (next to be
// overwritten).
func (b *float32Ring) enqueue(elems ...float32) {
	numElems := len(elems)
	values := b.values
	n := len(values)

	if numElems >= n {
		idx := numElems - n
		b.mutex.Lock()
		copy(values, elems[idx:numElems])
		b.pointer = 0
		b.mutex.Unlock()
		return
	}

	b.mutex.Lock()
	ptr := b.pointer
	ptrInc := ptr + numElems
	if ptrInc < n {
		copy(values[ptr:ptrInc], elems)
		b.pointer = ptrInc
	} else {
		head := ptrInc - n
		tail := n - ptr
		copy(values[ptr:n], elems[0:tail])
		copy(values[0:head], elems[tail:numElems])
		b.pointer = head
	}
	b.mutex.Unlock()
}

func (b *float32Ring) length() int {
	return len(b.values)
}

// retrieve copies every element out in oldest-to-newest order. buf must
// be exactly length() long.
func (b *float32Ring) retrieve(buf []float32) error {
	values := b.values
	n := len(values)
	if n != len(buf) {
		return fmt.Errorf("float32Ring: target buffer must be of the same size as source buffer")
	}

	b.mutex.RLock()
	ptr := b.pointer
	tailSize := n - ptr
	copy(buf[0:tailSize], values[ptr:n])
	copy(buf[tailSize:n], values[0:ptr])
	b.mutex.RUnlock()
	return nil
}

// waveTap is a fixed-size, overwrite-on-full ring buffer holding the
// most recent samples of one string's live audio. It exists only to
// answer "what did this string just play", not for recording.
type waveTap struct {
	buf *float32Ring
}

func newWaveTap(capacitySamples int) *waveTap {
	if capacitySamples < 1 {
		capacitySamples = 1
	}
	return &waveTap{buf: newFloat32Ring(capacitySamples)}
}

func (w *waveTap) write(samples []float64) {
	if len(samples) == 0 {
		return
	}
	converted := make([]float32, len(samples))
	for i, v := range samples {
		converted[i] = float32(v)
	}
	w.buf.enqueue(converted...)
}

func (w *waveTap) snapshot() []float32 {
	out := make([]float32, w.buf.length())
	_ = w.buf.retrieve(out)
	return out
}
