package config

import (
	"os"
	"testing"
)

func TestCaptureRootDirDefaultsWithoutEnv(t *testing.T) {
	old, had := os.LookupEnv(EnvCaptureDir)
	os.Unsetenv(EnvCaptureDir)
	defer func() {
		if had {
			os.Setenv(EnvCaptureDir, old)
		}
	}()

	if got := CaptureRootDir(); got != "sessions" {
		t.Fatalf("CaptureRootDir() = %q, want %q", got, "sessions")
	}
}

func TestCaptureRootDirHonorsEnvOverride(t *testing.T) {
	old, had := os.LookupEnv(EnvCaptureDir)
	os.Setenv(EnvCaptureDir, "/tmp/custom-sessions")
	defer func() {
		if had {
			os.Setenv(EnvCaptureDir, old)
		} else {
			os.Unsetenv(EnvCaptureDir)
		}
	}()

	if got := CaptureRootDir(); got != "/tmp/custom-sessions" {
		t.Fatalf("CaptureRootDir() = %q, want override", got)
	}
}

func TestDebugNoteStringParsesValidIndices(t *testing.T) {
	old, had := os.LookupEnv(EnvDebugNotes)
	defer func() {
		if had {
			os.Setenv(EnvDebugNotes, old)
		} else {
			os.Unsetenv(EnvDebugNotes)
		}
	}()

	cases := map[string]int{
		"":   -1,
		"0":  0,
		"5":  5,
		"6":  -1,
		"-1": -1,
		"xy": -1,
	}
	for in, want := range cases {
		if in == "" {
			os.Unsetenv(EnvDebugNotes)
		} else {
			os.Setenv(EnvDebugNotes, in)
		}
		if got := DebugNoteString(); got != want {
			t.Fatalf("DebugNoteString() with env=%q = %d, want %d", in, got, want)
		}
	}
}

func TestMonitorBackendDisabled(t *testing.T) {
	old, had := os.LookupEnv(EnvDisableMonitorBackend)
	defer func() {
		if had {
			os.Setenv(EnvDisableMonitorBackend, old)
		} else {
			os.Unsetenv(EnvDisableMonitorBackend)
		}
	}()

	os.Unsetenv(EnvDisableMonitorBackend)
	if MonitorBackendDisabled() {
		t.Fatal("expected false when env unset")
	}
	os.Setenv(EnvDisableMonitorBackend, "1")
	if !MonitorBackendDisabled() {
		t.Fatal("expected true when env set")
	}
}

func TestAutoplaySessionPath(t *testing.T) {
	old, had := os.LookupEnv(EnvAutoplaySession)
	defer func() {
		if had {
			os.Setenv(EnvAutoplaySession, old)
		} else {
			os.Unsetenv(EnvAutoplaySession)
		}
	}()

	os.Unsetenv(EnvAutoplaySession)
	if got := AutoplaySessionPath(); got != "" {
		t.Fatalf("AutoplaySessionPath() = %q, want empty", got)
	}
	os.Setenv(EnvAutoplaySession, "/tmp/sessions/abc")
	if got := AutoplaySessionPath(); got != "/tmp/sessions/abc" {
		t.Fatalf("AutoplaySessionPath() = %q, want override", got)
	}
}

func TestParameterDirIncludesAppSubdir(t *testing.T) {
	dir, err := ParameterDir()
	if err != nil {
		t.Skipf("UserConfigDir unavailable: %v", err)
	}
	if dir == "" {
		t.Fatal("ParameterDir() returned empty string")
	}
}
