// Package config loads the kiosk settings document.
//
// The document is a flat JSON file read once at startup (the GUI settings
// panel that edits it is a separate tool). Values land in a typed struct
// with explicit defaults and are validated once; an out-of-range value is
// fatal before the orchestrator starts.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/cmerch/go-kiosk/pkg/playback"
	"github.com/cmerch/go-kiosk/pkg/proximity"
	"github.com/cmerch/go-kiosk/pkg/stage"
)

// Media names the asset files each stage plays. Durations are supplied here
// because the kiosk core never decodes media.
type Media struct {
	IdleVideo         string  `json:"idle_video"`
	AttractVideo      string  `json:"attract_video"`
	AttractAudio      string  `json:"attract_audio"`
	AttractAudioDelay float64 `json:"attract_audio_delay"` // seconds into the attract stage
	PromptAudio       string  `json:"prompt_audio"`
	ThankYouVideo     string  `json:"thank_you_video"`
	ThankYouDuration  float64 `json:"thank_you_duration"` // seconds, drives the IDLE return
}

// Config is the full kiosk configuration. Immutable for a session.
type Config struct {
	// Camera / detection
	CameraIndex      int     `json:"camera_index"`
	DistanceFar      float64 `json:"distance_far"`
	DistanceNear     float64 `json:"distance_near"`
	DistanceVeryNear float64 `json:"distance_very_near"`

	// DetectorURL points at an external inference process (ws://...).
	// Empty runs the built-in local HOG detector.
	DetectorURL string `json:"detector_url"`

	// Stage timeouts, in seconds
	Stage2Countdown   float64 `json:"stage2_countdown"`
	Stage2FarTimeout  float64 `json:"stage2_far_timeout"` // 0 disables
	Stage3Timeout     float64 `json:"stage3_timeout"`
	Stage4IdleTimeout float64 `json:"stage4_idle_timeout"`
	Stage4Countdown   float64 `json:"stage4_countdown"`

	// VeryNearHoldTicks is the dwell guard at the VERY_NEAR boundary;
	// 1 means the instantaneous rule.
	VeryNearHoldTicks int `json:"very_near_hold_ticks"`

	// Web catalog
	WebURL string `json:"web_url"`

	// Display flags
	Fullscreen bool `json:"fullscreen"`
	DebugMode  bool `json:"debug_mode"`

	// Runtime
	TickRateMs int    `json:"tick_rate_ms"`
	HTTPPort   string `json:"http_port"`
	StorePath  string `json:"store_path"`
	LogLevel   string `json:"log_level"`

	Media Media `json:"media"`
}

// Default returns the development defaults, matching a portrait 540x960
// camera setup.
func Default() Config {
	return Config{
		CameraIndex:       0,
		DistanceFar:       150,
		DistanceNear:      300,
		DistanceVeryNear:  450,
		Stage2Countdown:   10,
		Stage2FarTimeout:  3,
		Stage3Timeout:     15,
		Stage4IdleTimeout: 15,
		Stage4Countdown:   5,
		VeryNearHoldTicks: 1,
		WebURL:            "http://localhost:5173/",
		DebugMode:         true,
		TickRateMs:        100,
		HTTPPort:          "8090",
		StorePath:         "kiosk.db",
		LogLevel:          "info",
		Media: Media{
			IdleVideo:         "assets/welcome-animation.mp4",
			AttractVideo:      "assets/hand-waving.mp4",
			AttractAudio:      "assets/hand-waving.mp3",
			AttractAudioDelay: 2,
			PromptAudio:       "assets/prompt.mp3",
			ThankYouVideo:     "assets/thank-you.mp4",
			ThankYouDuration:  6,
		},
	}
}

// Load reads and validates the settings document. A missing file falls
// back to defaults; a malformed or out-of-range file is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Validate()
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate fails fast on values the orchestrator cannot run with.
func (c Config) Validate() error {
	if err := c.Calibration().Validate(); err != nil {
		return err
	}
	if c.Stage2Countdown <= 0 || c.Stage3Timeout <= 0 ||
		c.Stage4IdleTimeout <= 0 || c.Stage4Countdown <= 0 {
		return fmt.Errorf("stage timeouts must be positive (stage2=%v stage3=%v stage4_idle=%v stage4_countdown=%v)",
			c.Stage2Countdown, c.Stage3Timeout, c.Stage4IdleTimeout, c.Stage4Countdown)
	}
	if c.Stage2FarTimeout < 0 {
		return fmt.Errorf("stage2_far_timeout must not be negative (got %v)", c.Stage2FarTimeout)
	}
	if c.WebURL == "" {
		return fmt.Errorf("web_url must be set")
	}
	if c.TickRateMs <= 0 {
		return fmt.Errorf("tick_rate_ms must be positive (got %d)", c.TickRateMs)
	}
	if c.Media.ThankYouDuration <= 0 {
		return fmt.Errorf("media.thank_you_duration must be positive (got %v)", c.Media.ThankYouDuration)
	}
	return nil
}

// Calibration returns the distance thresholds as a calibration struct.
func (c Config) Calibration() proximity.Calibration {
	return proximity.Calibration{
		FarPx:      c.DistanceFar,
		NearPx:     c.DistanceNear,
		VeryNearPx: c.DistanceVeryNear,
	}
}

// TickRate returns the orchestrator tick interval.
func (c Config) TickRate() time.Duration {
	return time.Duration(c.TickRateMs) * time.Millisecond
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// StageConfig assembles the state machine configuration.
func (c Config) StageConfig() stage.Config {
	return stage.Config{
		Stage2Countdown:   seconds(c.Stage2Countdown),
		Stage2FarTimeout:  seconds(c.Stage2FarTimeout),
		Stage3Timeout:     seconds(c.Stage3Timeout),
		Stage4Idle:        seconds(c.Stage4IdleTimeout),
		Stage4Countdown:   seconds(c.Stage4Countdown),
		VeryNearHoldTicks: c.VeryNearHoldTicks,
		WebURL:            c.WebURL,
		Strict:            c.DebugMode,
		Assets: stage.Assets{
			IdleLoop: playback.AssetRef{
				Name: "idle_loop", Path: c.Media.IdleVideo, Loop: true,
			},
			AttractVideo: playback.AssetRef{
				Name: "attract_video", Path: c.Media.AttractVideo, Loop: true,
			},
			AttractAudio: playback.AssetRef{
				Name: "attract_audio", Path: c.Media.AttractAudio, Loop: true,
				Delay: seconds(c.Media.AttractAudioDelay),
			},
			PromptAudio: playback.AssetRef{
				Name: "prompt_audio", Path: c.Media.PromptAudio, Loop: true,
			},
			ThankYouVideo: playback.AssetRef{
				Name: "thank_you", Path: c.Media.ThankYouVideo,
				Duration: seconds(c.Media.ThankYouDuration),
			},
		},
	}
}
