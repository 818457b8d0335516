// Package stage implements the kiosk's stage orchestration state machine.
//
// Exactly one stage is active at any time. The machine consumes one
// classified proximity sample per tick, polls its timer bank, and commands
// the playback coordinator and web view on stage entry. It never blocks and
// is driven from a single control loop.
package stage

import (
	"time"

	"github.com/cmerch/go-kiosk/pkg/playback"
	"github.com/cmerch/go-kiosk/pkg/timer"
)

// ID names one of the five mutually-exclusive kiosk stages.
type ID int

const (
	Idle ID = iota
	Detected
	Audio
	Web
	ThankYou
)

func (id ID) String() string {
	switch id {
	case Idle:
		return "idle"
	case Detected:
		return "detected"
	case Audio:
		return "audio"
	case Web:
		return "web"
	case ThankYou:
		return "thank_you"
	default:
		return "unknown"
	}
}

// Timer IDs owned by the machine. Each stage owns the timers it arms and
// they are canceled when that stage exits.
const (
	TimerStage2Countdown timer.ID = "stage2_countdown"
	TimerStage2Far       timer.ID = "stage2_far_timeout"
	TimerStage3Timeout   timer.ID = "stage3_timeout"
	TimerStage4Idle      timer.ID = "stage4_idle_timeout"
	TimerStage4Countdown timer.ID = "stage4_countdown"
)

// timerOwners maps each stage to the timers it may arm. Used to cancel an
// exiting stage's timers before the next stage's entry actions run.
var timerOwners = map[ID][]timer.ID{
	Detected: {TimerStage2Countdown, TimerStage2Far},
	Audio:    {TimerStage3Timeout},
	Web:      {TimerStage4Idle, TimerStage4Countdown},
}

// Player is the playback command surface the machine drives. The production
// implementation pairs the playback coordinator with an external player
// process; tests substitute a recorder.
type Player interface {
	Start(role playback.Role, ref playback.AssetRef, now time.Time) error
	Stop(role playback.Role) error
	StopAll() error
	// Finished reports whether the role's non-looping asset played through.
	Finished(role playback.Role, now time.Time) bool
}

// WebView controls the catalog browser. Open is issued fire-and-forget on
// WEB entry; Close must be idempotent.
type WebView interface {
	Open(url string) error
	Close() error
}

// Event records one stage transition for logging and telemetry.
type Event struct {
	ID     string    `json:"id"`
	From   ID        `json:"-"`
	To     ID        `json:"-"`
	FromS  string    `json:"from"`
	ToS    string    `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason"`
}

// Assets names the media each stage plays. Durations and loop flags come
// from configuration because the core never decodes media.
type Assets struct {
	IdleLoop      playback.AssetRef
	AttractVideo  playback.AssetRef
	AttractAudio  playback.AssetRef
	PromptAudio   playback.AssetRef
	ThankYouVideo playback.AssetRef
}

// Config holds the machine's timeouts and media references, immutable for
// the session.
type Config struct {
	Stage2Countdown  time.Duration
	Stage2FarTimeout time.Duration // 0 disables the FAR give-up path
	Stage3Timeout    time.Duration
	Stage4Idle       time.Duration
	Stage4Countdown  time.Duration

	// VeryNearHoldTicks is the dwell requirement at the VERY_NEAR
	// boundary: the class must hold for this many consecutive ticks
	// before DETECTED advances to AUDIO and AUDIO advances to WEB.
	// Values <= 1 mean the instantaneous rule.
	VeryNearHoldTicks int

	WebURL string
	Assets Assets

	// Strict makes timer misuse panic instead of being logged and ignored.
	Strict bool
}
