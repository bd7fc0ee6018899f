// Package portaudiodriver is the default live-audio driver: it opens
// one PortAudio input stream with one channel per string and feeds
// each deinterleaved block straight to an ingest bridge.
package portaudiodriver

import (
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"

	"github.com/sixstring/hextab/internal/telemetry"
	"github.com/sixstring/hextab/tracker"
)

// BlockSink is the subset of ingest.Bridge this driver needs; kept
// narrow so tests can stub it without constructing a real bridge.
type BlockSink interface {
	ProcessLiveBlock(channels [tracker.NumStrings][]float64, n int, sampleRate float64)
}

// Driver owns one PortAudio input stream.
type Driver struct {
	stream     *portaudio.Stream
	sink       BlockSink
	sampleRate float64
	channels   [tracker.NumStrings][]float64
}

// deviceMatching finds the first input-capable device whose name
// contains substr, falling back to the host API's default input
// device when substr is empty or nothing matches.
func deviceMatching(substr string) (*portaudio.DeviceInfo, error) {
	host, err := portaudio.DefaultHostApi()
	if err != nil {
		return nil, err
	}
	if substr != "" {
		for _, device := range host.Devices {
			if device.MaxInputChannels >= tracker.NumStrings && strings.Contains(device.Name, substr) {
				return device, nil
			}
		}
		telemetry.Once("portaudio-device-not-found", "no matching hex-pickup input device found, falling back to default", "want", substr)
	}
	if host.DefaultInputDevice == nil {
		return nil, fmt.Errorf("portaudiodriver: no default input device")
	}
	return host.DefaultInputDevice, nil
}

// Open opens a NumStrings-channel input stream on the device whose
// name contains deviceNameSubstr (or the host default if empty/not
// found) and wires its callback to sink.ProcessLiveBlock.
func Open(deviceNameSubstr string, framesPerBuffer int, sink BlockSink) (*Driver, error) {
	device, err := deviceMatching(deviceNameSubstr)
	if err != nil {
		return nil, err
	}
	if device.MaxInputChannels < tracker.NumStrings {
		return nil, fmt.Errorf("portaudiodriver: device %q has %d input channels, need %d", device.Name, device.MaxInputChannels, tracker.NumStrings)
	}

	params := portaudio.HighLatencyParameters(device, nil)
	params.Input.Channels = tracker.NumStrings
	params.Output.Channels = 0
	if framesPerBuffer > 0 {
		params.FramesPerBuffer = framesPerBuffer
	}

	d := &Driver{sink: sink, sampleRate: params.SampleRate}
	for s := range d.channels {
		d.channels[s] = make([]float64, 0, params.FramesPerBuffer)
	}

	stream, err := portaudio.OpenStream(params, d.processAudio)
	if err != nil {
		return nil, err
	}
	d.stream = stream
	return d, nil
}

// processAudio deinterleaves one block of NumStrings-channel input
// and hands it to the sink. in is interleaved frame-major:
// [s0,s1,...,s5, s0,s1,...,s5, ...].
func (d *Driver) processAudio(in []float32) {
	n := len(in) / tracker.NumStrings
	for s := range d.channels {
		if cap(d.channels[s]) < n {
			d.channels[s] = make([]float64, n)
		} else {
			d.channels[s] = d.channels[s][:n]
		}
	}
	for frame := 0; frame < n; frame++ {
		base := frame * tracker.NumStrings
		for s := 0; s < tracker.NumStrings; s++ {
			d.channels[s][frame] = float64(in[base+s])
		}
	}
	d.sink.ProcessLiveBlock(d.channels, n, d.sampleRate)
}

// Start begins streaming.
func (d *Driver) Start() error {
	return d.stream.Start()
}

// Stop halts streaming without closing the underlying device.
func (d *Driver) Stop() error {
	return d.stream.Stop()
}

// Close stops (if needed) and releases the stream.
func (d *Driver) Close() error {
	return d.stream.Close()
}

// SampleRate reports the stream's negotiated sample rate.
func (d *Driver) SampleRate() float64 {
	return d.sampleRate
}
