// Package jackdriver is the second live-audio driver: a true
// six-port JACK client, one port per string, mirroring the original's
// HexJackClient rather than demultiplexing an interleaved interface.
package jackdriver

import (
	"fmt"

	"github.com/xthexder/go-jack"

	"github.com/sixstring/hextab/tracker"
)

const clientName = "hextab_hex"

// BlockSink is the subset of ingest.Bridge this driver needs.
type BlockSink interface {
	ProcessLiveBlock(channels [tracker.NumStrings][]float64, n int, sampleRate float64)
}

// Driver owns a six-input-port JACK client.
type Driver struct {
	client *jack.Client
	ports  [tracker.NumStrings]*jack.Port
	sink   BlockSink
	buf    [tracker.NumStrings][]float64
}

// Open registers a six-port JACK client named "hextab_hex" with ports
// hex_in_1..hex_in_6 and wires its process callback to sink.
func Open(sink BlockSink) (*Driver, error) {
	client, status := jack.ClientOpen(clientName, jack.NoStartServer)
	if client == nil {
		return nil, fmt.Errorf("jackdriver: failed to open client: %v", status)
	}

	d := &Driver{client: client, sink: sink}
	for s := 0; s < tracker.NumStrings; s++ {
		name := fmt.Sprintf("hex_in_%d", s+1)
		port := client.PortRegister(name, jack.DEFAULT_AUDIO_TYPE, jack.PortIsInput, 0)
		if port == nil {
			client.Close()
			return nil, fmt.Errorf("jackdriver: failed to register port %s", name)
		}
		d.ports[s] = port
	}

	client.SetProcessCallback(d.process)

	if code := client.Activate(); code != 0 {
		client.Close()
		return nil, fmt.Errorf("jackdriver: failed to activate client (code %d)", code)
	}

	return d, nil
}

func (d *Driver) process(nframes uint32) int {
	n := int(nframes)
	sampleRate := float64(d.client.GetSampleRate())

	var channels [tracker.NumStrings][]float64
	for s := 0; s < tracker.NumStrings; s++ {
		samples := d.ports[s].GetBuffer(nframes)
		d.buf[s] = convertPortBuffer(d.buf[s], samples, n)
		channels[s] = d.buf[s]
	}

	d.sink.ProcessLiveBlock(channels, n, sampleRate)
	return 0
}

// convertPortBuffer widens one port's float32 samples into dst,
// reusing dst's backing array when it already has room.
func convertPortBuffer(dst []float64, src []jack.AudioSample, n int) []float64 {
	if cap(dst) < n {
		dst = make([]float64, n)
	} else {
		dst = dst[:n]
	}
	for i := 0; i < n && i < len(src); i++ {
		dst[i] = float64(src[i])
	}
	return dst
}

// Close deactivates and closes the JACK client.
func (d *Driver) Close() error {
	if d.client == nil {
		return nil
	}
	d.client.Close()
	d.client = nil
	return nil
}

// SampleRate reports the JACK server's current sample rate.
func (d *Driver) SampleRate() float64 {
	if d.client == nil {
		return 0
	}
	return float64(d.client.GetSampleRate())
}
