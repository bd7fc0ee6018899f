// Package config resolves the writable directories and environment
// overrides the rest of the module reads at startup: the parameter
// persistence directory, the session capture root, and a handful of
// named toggles.
package config

import (
	"os"
	"path/filepath"
)

const appConfigSubdir = "note_detection"

// EnvCaptureDir, when set, overrides the session capture root
// directory in place of the default "sessions" subdirectory of the
// working directory.
const EnvCaptureDir = "HEXTAB_CAPTURE_DIR"

// EnvDebugNotes selects a single string for debug note logging: the
// value is the string index as a decimal digit, "-1" or empty to
// disable. cmd/hextab reads it via DebugNoteString and reports the
// selection once at startup; the trackers emit no per-frame logs.
const EnvDebugNotes = "HEXTAB_DEBUG_NOTES"

// EnvDisableMonitorBackend, when non-empty, marks the alternate
// live-monitor backend as disabled. This module has no monitor backend;
// cmd/hextab only reports the setting at startup.
const EnvDisableMonitorBackend = "HEXTAB_DISABLE_MONITOR_BACKEND"

// EnvAutoplaySession names a recorded session directory to auto-play
// on startup. This module has no session player; cmd/hextab only
// reports the requested path at startup.
const EnvAutoplaySession = "HEXTAB_AUTOPLAY_SESSION"

// ParameterDir resolves the directory committed.json / states.json /
// the named-state snapshot directory live under: the OS user config
// directory's "note_detection" subdirectory.
func ParameterDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appConfigSubdir), nil
}

// CaptureRootDir resolves the session capture root: EnvCaptureDir if
// set, otherwise "sessions" relative to the current working directory.
func CaptureRootDir() string {
	if dir := os.Getenv(EnvCaptureDir); dir != "" {
		return dir
	}
	return "sessions"
}

// DebugNoteString returns the string index selected via EnvDebugNotes,
// or -1 if disabled or unset/unparseable.
func DebugNoteString() int {
	raw := os.Getenv(EnvDebugNotes)
	if raw == "" {
		return -1
	}
	n := 0
	neg := false
	for i, c := range raw {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			return -1
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	if n < 0 || n > 5 {
		return -1
	}
	return n
}

// MonitorBackendDisabled reports whether the alternate live-monitor
// backend should be skipped.
func MonitorBackendDisabled() bool {
	return os.Getenv(EnvDisableMonitorBackend) != ""
}

// AutoplaySessionPath returns the session directory to auto-play on
// startup, or "" if unset.
func AutoplaySessionPath() string {
	return os.Getenv(EnvAutoplaySession)
}
