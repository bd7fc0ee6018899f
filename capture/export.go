// Package capture writes finished recording sessions to disk: one WAV
// per string plus metadata and the note events that were captured
// alongside them, and a short always-on per-string wave tap flushed
// once on shutdown.
package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sixstring/hextab/paramschema"
	"github.com/sixstring/hextab/tracker"
)

// SanitizeLabel implements spec §6's session-folder sanitization:
// letters and digits preserved; spaces, '-' and '_' retained; every
// other character replaced with '_'; leading underscores stripped;
// an empty result becomes "session".
func SanitizeLabel(label string) string {
	out := make([]byte, 0, len(label))
	for i := 0; i < len(label); i++ {
		c := label[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == ' ', c == '-', c == '_':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	sanitized := strings.TrimLeft(string(out), "_")
	if sanitized == "" {
		return "session"
	}
	return sanitized
}

// resolveSessionDir finds the first unused "{root}/live/{label}[_n]"
// directory.
func resolveSessionDir(root, label string) (string, error) {
	base := SanitizeLabel(label)
	dir := filepath.Join(root, "live", base)
	for n := 1; ; n++ {
		_, err := os.Stat(dir)
		if os.IsNotExist(err) {
			return dir, nil
		}
		if err != nil {
			return "", err
		}
		dir = filepath.Join(root, "live", fmt.Sprintf("%s_%d", base, n))
	}
}

type sessionMetadata struct {
	Label       string                          `json:"label"`
	Folder      string                          `json:"folder"`
	Timestamp   string                          `json:"timestamp"`
	SampleRate  float64                         `json:"sampleRate"`
	DurationSec float64                          `json:"durationSec"`
	StringMidi  [tracker.NumStrings]int          `json:"stringMidi"`
	StringNames [tracker.NumStrings]string       `json:"stringNames"`
}

type eventJSON struct {
	String       int     `json:"string"`
	Fret         int     `json:"fret"`
	Midi         int     `json:"midi"`
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Velocity     float64 `json:"velocity"`
	Articulation string  `json:"articulation"`
}

// ExportSession writes one completed recording session to
// {root}/live/{sanitized-label}[_n]/: one WAV per string (open-string
// note tokens), metadata.json, and events.json. Returns the directory
// written.
func ExportSession(root, label string, sampleRate float64, stringMidi [tracker.NumStrings]int, buffers [tracker.NumStrings][]float32, events []tracker.NoteEvent) (string, error) {
	dir, err := resolveSessionDir(root, label)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	tokens := stringTokens(stringMidi)
	var durationSec float64
	for s := 0; s < tracker.NumStrings; s++ {
		path := filepath.Join(dir, tokens[s]+".wav")
		if err := writeMonoFloatWav(path, sampleRate, buffers[s]); err != nil {
			return "", err
		}
		if sampleRate > 0 {
			if d := float64(len(buffers[s])) / sampleRate; d > durationSec {
				durationSec = d
			}
		}
	}

	var stringNames [tracker.NumStrings]string
	for s := range stringNames {
		stringNames[s] = paramschema.StringLabel(s)
	}

	meta := sessionMetadata{
		Label:       label,
		Folder:      filepath.Base(dir),
		Timestamp:   time.Now().UTC().Format("20060102-150405"),
		SampleRate:  sampleRate,
		DurationSec: durationSec,
		StringMidi:  stringMidi,
		StringNames: stringNames,
	}
	if err := writeJSONFile(filepath.Join(dir, "metadata.json"), meta); err != nil {
		return "", err
	}

	evOut := make([]eventJSON, 0, len(events))
	for _, e := range events {
		evOut = append(evOut, eventJSON{
			String:       e.StringIdx,
			Fret:         e.Fret,
			Midi:         e.Midi,
			Start:        e.StartSec,
			End:          e.EndSec,
			Velocity:     e.Velocity,
			Articulation: e.Articulation,
		})
	}
	if err := writeJSONFile(filepath.Join(dir, "events.json"), evOut); err != nil {
		return "", err
	}

	return dir, nil
}

func writeJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
