package telemetry

import (
	"bytes"
	"log/slog"
	"testing"
)

func TestOnceLogsOnlyFirstCall(t *testing.T) {
	ResetOnce()
	var buf bytes.Buffer
	old := Logger()
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	defer SetLogger(old)

	Once("missing-device", "no audio device found")
	Once("missing-device", "no audio device found")
	Once("missing-device", "no audio device found")

	count := bytes.Count(buf.Bytes(), []byte("no audio device found"))
	if count != 1 {
		t.Fatalf("logged %d times, want exactly 1", count)
	}
}

func TestOnceDistinguishesKeys(t *testing.T) {
	ResetOnce()
	var buf bytes.Buffer
	old := Logger()
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	defer SetLogger(old)

	Once("a", "message a")
	Once("b", "message b")

	if bytes.Count(buf.Bytes(), []byte("message a")) != 1 {
		t.Fatal("message a not logged exactly once")
	}
	if bytes.Count(buf.Bytes(), []byte("message b")) != 1 {
		t.Fatal("message b not logged exactly once")
	}
}
