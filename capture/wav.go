package capture

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/sixstring/hextab/tracker"
)

// wavFloatFormat is the WAVE_FORMAT_IEEE_FLOAT tag; spec §6 requires
// mono float32 output.
const wavFloatFormat = 3

func writeMonoFloatWav(path string, sampleRate float64, samples []float32) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := wav.NewEncoder(file, int(sampleRate), 32, 1, wavFloatFormat)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(int32(math.Float32bits(s)))
	}
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			SampleRate:  int(sampleRate),
			NumChannels: 1,
		},
		Data:           data,
		SourceBitDepth: 32,
	}
	if err := encoder.Write(buf); err != nil {
		return err
	}
	return encoder.Close()
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

func noteNameAndOctave(midi int) (string, int) {
	pc := ((midi % 12) + 12) % 12
	octave := midi/12 - 1
	return noteNames[pc], octave
}

// stringTokens builds the open-string WAV filename tokens per spec §6:
// the bare note letter, with an octave suffix added only where two
// strings share the same base letter (case-insensitively — standard
// tuning's low E and high e collide this way).
func stringTokens(stringMidi [tracker.NumStrings]int) [tracker.NumStrings]string {
	var letters [tracker.NumStrings]string
	var octaves [tracker.NumStrings]int
	baseCount := make(map[string]int, tracker.NumStrings)
	for s, midi := range stringMidi {
		letter, octave := noteNameAndOctave(midi)
		letters[s] = letter
		octaves[s] = octave
		baseCount[strings.ToLower(letter)]++
	}

	var tokens [tracker.NumStrings]string
	for s := range tokens {
		if baseCount[strings.ToLower(letters[s])] > 1 {
			tokens[s] = fmt.Sprintf("%s%d", letters[s], octaves[s])
		} else {
			tokens[s] = letters[s]
		}
	}
	return tokens
}
