// Command hextab runs the live hex-pickup tab engine: it opens one of
// the two audio drivers, feeds every block through the ingest bridge,
// and persists tuning/calibration state across runs.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/sixstring/hextab/audio/jackdriver"
	"github.com/sixstring/hextab/audio/portaudiodriver"
	"github.com/sixstring/hextab/calibration"
	"github.com/sixstring/hextab/config"
	"github.com/sixstring/hextab/ingest"
	"github.com/sixstring/hextab/internal/telemetry"
	"github.com/sixstring/hextab/param"
	"github.com/sixstring/hextab/paramschema"
	"github.com/sixstring/hextab/tracker"
	"github.com/sixstring/hextab/tuning"
)

const calibrationProfileFileName = "calibration_profile.json"

func main() {
	backend := flag.String("backend", "portaudio", "live audio driver: portaudio or jack")
	device := flag.String("device", "", "portaudio input device name substring (ignored for -backend=jack)")
	frames := flag.Int("frames", 0, "frames per buffer, 0 lets the driver pick")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		log.Println("shutting down")
		cancel()
	}()

	cfgDir, err := config.ParameterDir()
	if err != nil {
		telemetry.Once("config-dir-unavailable", "could not resolve parameter config directory", "err", err)
		cfgDir = ""
	}

	params := param.New()
	facade := tuning.New(params)
	if cfgDir != "" {
		if err := facade.LoadAll(cfgDir); err != nil {
			telemetry.Once("tuning-load-failed", "failed to load saved tuning state", "err", err)
		}
	}

	captureRoot := config.CaptureRootDir()
	tuningCfg := tracker.DefaultTuning()
	trackerCfg := tracker.DefaultConfig()

	bridge := ingest.New(params, tuningCfg, trackerCfg, captureRoot, 48000, ingest.Callbacks{
		OnEvent: func(e tracker.NoteEvent) {
			log.Printf("note string=%d fret=%d midi=%d start=%.3f velocity=%.2f art=%q",
				e.StringIdx, e.Fret, e.Midi, e.StartSec, e.Velocity, e.Articulation)
		},
		OnCalibrationStarted: func() {
			log.Println("calibration started")
		},
		OnCalibrationStep: func(stringIdx int, capturing bool) {
			if stringIdx < 0 {
				return
			}
			log.Printf("calibration string=%d capturing=%v", stringIdx, capturing)
		},
		OnCalibrationFinished: func(avg, peak [tracker.NumStrings]float64) {
			log.Println("calibration finished")
		},
	})

	if cfgDir != "" {
		targetRms := [tracker.NumStrings]float64{}
		for s := 0; s < tracker.NumStrings; s++ {
			targetRms[s] = params.ActiveValue(paramschema.TargetRms, s)
		}
		profilePath := filepath.Join(cfgDir, calibrationProfileFileName)
		if profile, err := calibration.LoadProfile(profilePath, targetRms); err == nil {
			bridge.LoadCalibrationProfile(profile)
		} else if !os.IsNotExist(err) {
			telemetry.Once("calibration-profile-load-failed", "failed to load calibration profile", "err", err)
		}
	}

	if debugString := config.DebugNoteString(); debugString >= 0 {
		log.Printf("debug note logging enabled for string %d", debugString)
	}
	if config.MonitorBackendDisabled() {
		log.Println("alternate monitor backend disabled by environment")
	}

	var closeDriver func() error
	switch *backend {
	case "jack":
		driver, err := jackdriver.Open(bridge)
		if err != nil {
			log.Fatalf("jackdriver: %v", err)
		}
		closeDriver = driver.Close
	default:
		driver, err := portaudiodriver.Open(*device, *frames, bridge)
		if err != nil {
			log.Fatalf("portaudiodriver: %v", err)
		}
		if err := driver.Start(); err != nil {
			log.Fatalf("portaudiodriver start: %v", err)
		}
		closeDriver = func() error {
			driver.Stop()
			return driver.Close()
		}
	}

	if autoplay := config.AutoplaySessionPath(); autoplay != "" {
		log.Printf("autoplay requested for session at %s (recorded-session playback is a separate entry point)", autoplay)
	}

	log.Println("ready")
	<-ctx.Done()

	if closeDriver != nil {
		if err := closeDriver(); err != nil {
			log.Printf("driver close: %v", err)
		}
	}

	sessionID := uuid.New().String()
	if err := bridge.FlushSessionWaveTap(sessionID); err != nil {
		telemetry.Once("wave-tap-flush-failed", "failed to flush session wave tap", "err", err)
	}

	if cfgDir != "" {
		if err := facade.SaveAll(cfgDir); err != nil {
			telemetry.Once("tuning-save-failed", "failed to save tuning state", "err", err)
		}
		profile := bridge.CalibrationProfileFile(time.Now().UTC().Format(time.RFC3339))
		if profile.Valid {
			profilePath := filepath.Join(cfgDir, calibrationProfileFileName)
			if err := calibration.SaveProfile(profilePath, profile); err != nil {
				telemetry.Once("calibration-profile-save-failed", "failed to save calibration profile", "err", err)
			}
		}
	}

	log.Println("done")
}
