package stage

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cmerch/go-kiosk/pkg/playback"
	"github.com/cmerch/go-kiosk/pkg/proximity"
)

var t0 = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

// recPlayer records commands and delegates timing to a real coordinator so
// Finished behaves exactly like production.
type recPlayer struct {
	coord *playback.Coordinator
	calls []string
	fail  map[string]error // asset name -> error to return from Start
}

func newRecPlayer() *recPlayer {
	return &recPlayer{coord: playback.NewCoordinator(), fail: map[string]error{}}
}

func (p *recPlayer) Start(role playback.Role, ref playback.AssetRef, now time.Time) error {
	p.calls = append(p.calls, fmt.Sprintf("start %s %s", role, ref.Name))
	if err := p.fail[ref.Name]; err != nil {
		return err
	}
	p.coord.Start(role, ref, now)
	return nil
}

func (p *recPlayer) Stop(role playback.Role) error {
	p.calls = append(p.calls, "stop "+role.String())
	p.coord.Stop(role)
	return nil
}

func (p *recPlayer) StopAll() error {
	p.calls = append(p.calls, "stop_all")
	p.coord.StopAll()
	return nil
}

func (p *recPlayer) Finished(role playback.Role, now time.Time) bool {
	return p.coord.Finished(role, now)
}

type recWeb struct {
	opens  []string
	closes int
	fail   error
}

func (w *recWeb) Open(url string) error {
	w.opens = append(w.opens, url)
	return w.fail
}

func (w *recWeb) Close() error {
	w.closes++
	return nil
}

func testConfig() Config {
	return Config{
		Stage2Countdown:  10 * time.Second,
		Stage2FarTimeout: 3 * time.Second,
		Stage3Timeout:    15 * time.Second,
		Stage4Idle:       15 * time.Second,
		Stage4Countdown:  5 * time.Second,
		WebURL:           "http://localhost:5173/",
		Assets: Assets{
			IdleLoop:      playback.AssetRef{Name: "idle", Loop: true},
			AttractVideo:  playback.AssetRef{Name: "attract_video", Loop: true},
			AttractAudio:  playback.AssetRef{Name: "attract_audio", Loop: true, Delay: 2 * time.Second},
			PromptAudio:   playback.AssetRef{Name: "prompt", Loop: true},
			ThankYouVideo: playback.AssetRef{Name: "thanks", Duration: 6 * time.Second},
		},
	}
}

// harness ticks a machine on a synthetic half-second clock.
type harness struct {
	m      *Machine
	player *recPlayer
	web    *recWeb
	now    time.Time
	events []Event
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		player: newRecPlayer(),
		web:    &recWeb{},
		now:    t0,
	}
	h.m = NewMachine(cfg, h.player, h.web)
	h.m.OnTransition(func(ev Event) { h.events = append(h.events, ev) })
	h.m.Start(h.now)
	return h
}

const step = 500 * time.Millisecond

func (h *harness) tick(class proximity.Class) {
	h.now = h.now.Add(step)
	h.m.Tick(h.now, class)
}

// hold ticks the same class for the given duration.
func (h *harness) hold(d time.Duration, class proximity.Class) {
	for i := 0; i < int(d/step); i++ {
		h.tick(class)
	}
}

func (h *harness) wantStage(t *testing.T, want ID) {
	t.Helper()
	if got := h.m.Current(); got != want {
		t.Fatalf("stage = %v, want %v (events so far: %v)", got, want, reasons(h.events))
	}
}

func reasons(events []Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = fmt.Sprintf("%s->%s(%s)", ev.FromS, ev.ToS, ev.Reason)
	}
	return out
}

func TestStartRunsIdleEntry(t *testing.T) {
	h := newHarness(t, testConfig())

	ref, ok := h.player.coord.Playing(playback.RoleBackgroundVideo)
	if !ok || ref.Name != "idle" {
		t.Errorf("idle loop not playing after start, got %q", ref.Name)
	}
	// Start twice is a no-op.
	before := len(h.player.calls)
	h.m.Start(h.now)
	if len(h.player.calls) != before {
		t.Error("second Start re-ran entry actions")
	}
}

func TestIdleToDetectedOnAnyPresence(t *testing.T) {
	for _, class := range []proximity.Class{proximity.ClassFar, proximity.ClassNear, proximity.ClassVeryNear} {
		t.Run(class.String(), func(t *testing.T) {
			h := newHarness(t, testConfig())
			h.tick(class)
			h.wantStage(t, Detected)
		})
	}
}

func TestIdleNeverSkipsDetected(t *testing.T) {
	// Even a person who appears instantly at the screen passes through
	// DETECTED: the dwell counter resets on the transition, so AUDIO is
	// reachable on the following tick at the earliest.
	h := newHarness(t, testConfig())
	h.tick(proximity.ClassVeryNear)
	h.wantStage(t, Detected)
	h.tick(proximity.ClassVeryNear)
	h.wantStage(t, Audio)
}

func TestDetectedEntryActions(t *testing.T) {
	h := newHarness(t, testConfig())
	h.tick(proximity.ClassNear)

	if ref, _ := h.player.coord.Playing(playback.RoleBackgroundVideo); ref.Name != "attract_video" {
		t.Errorf("background = %q, want attract_video", ref.Name)
	}
	if ref, _ := h.player.coord.Playing(playback.RoleOverlayAudio); ref.Name != "attract_audio" {
		t.Errorf("overlay audio = %q, want attract_audio", ref.Name)
	}
	if _, running := h.m.CountdownRemaining(h.now); !running {
		t.Error("leave countdown should be armed on entry")
	}
}

func TestDetectedCountdownRunsOnAbsence(t *testing.T) {
	h := newHarness(t, testConfig())
	h.tick(proximity.ClassNear)
	h.wantStage(t, Detected)

	// Absent for just under the countdown: still waiting.
	h.hold(9*time.Second+step, proximity.ClassNone)
	h.wantStage(t, Detected)

	// 11 seconds of total absence crosses the 10s countdown.
	h.hold(2*time.Second, proximity.ClassNone)
	h.wantStage(t, Idle)

	last := h.events[len(h.events)-1]
	if last.Reason != "person left" {
		t.Errorf("reason = %q, want person left", last.Reason)
	}
}

func TestDetectedPresenceRearmsCountdown(t *testing.T) {
	h := newHarness(t, testConfig())
	h.tick(proximity.ClassNear)

	// 9s gone, one glimpse, 9s gone again: countdown restarted in between.
	h.hold(9*time.Second, proximity.ClassNone)
	h.tick(proximity.ClassNear)
	h.hold(9*time.Second, proximity.ClassNone)
	h.wantStage(t, Detected)

	h.hold(2*time.Second, proximity.ClassNone)
	h.wantStage(t, Idle)
}

func TestDetectedFarTimeout(t *testing.T) {
	h := newHarness(t, testConfig())
	h.tick(proximity.ClassFar)
	h.wantStage(t, Detected)

	h.hold(4*time.Second, proximity.ClassFar)
	h.wantStage(t, Idle)
	last := h.events[len(h.events)-1]
	if last.Reason != "person stayed far" {
		t.Errorf("reason = %q, want person stayed far", last.Reason)
	}
}

func TestDetectedFarTimerResetsOnApproach(t *testing.T) {
	h := newHarness(t, testConfig())
	h.tick(proximity.ClassFar)
	h.hold(2*time.Second, proximity.ClassFar)
	h.tick(proximity.ClassNear) // stepping closer clears the far timer
	h.hold(2*time.Second, proximity.ClassFar)
	h.wantStage(t, Detected)
	h.hold(2*time.Second, proximity.ClassFar)
	h.wantStage(t, Idle)
}

func TestDetectedFarTimeoutDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Stage2FarTimeout = 0
	h := newHarness(t, cfg)
	h.tick(proximity.ClassFar)
	h.hold(time.Minute, proximity.ClassFar)
	h.wantStage(t, Detected)
}

func TestDetectedToAudioOnVeryNear(t *testing.T) {
	h := newHarness(t, testConfig())
	h.tick(proximity.ClassNear)
	h.tick(proximity.ClassVeryNear)
	h.wantStage(t, Audio)

	if ref, _ := h.player.coord.Playing(playback.RoleOverlayAudio); ref.Name != "prompt" {
		t.Errorf("overlay audio = %q, want prompt", ref.Name)
	}
	// The attract background keeps playing under the prompt.
	if ref, _ := h.player.coord.Playing(playback.RoleBackgroundVideo); ref.Name != "attract_video" {
		t.Errorf("background = %q, want attract_video", ref.Name)
	}
}

func TestVeryNearHoldTicks(t *testing.T) {
	cfg := testConfig()
	cfg.VeryNearHoldTicks = 3
	h := newHarness(t, cfg)
	h.tick(proximity.ClassNear)

	h.tick(proximity.ClassVeryNear)
	h.tick(proximity.ClassVeryNear)
	h.wantStage(t, Detected)

	// A flicker resets the dwell counter.
	h.tick(proximity.ClassNear)
	h.tick(proximity.ClassVeryNear)
	h.tick(proximity.ClassVeryNear)
	h.wantStage(t, Detected)

	h.tick(proximity.ClassVeryNear)
	h.wantStage(t, Audio)
}

func toAudio(t *testing.T, h *harness) {
	t.Helper()
	h.tick(proximity.ClassNear)
	h.tick(proximity.ClassVeryNear)
	h.wantStage(t, Audio)
}

func toWeb(t *testing.T, h *harness) {
	t.Helper()
	toAudio(t, h)
	h.tick(proximity.ClassVeryNear)
	h.wantStage(t, Web)
}

func TestAudioToWebOnVeryNear(t *testing.T) {
	h := newHarness(t, testConfig())
	toWeb(t, h)

	if len(h.web.opens) != 1 || h.web.opens[0] != "http://localhost:5173/" {
		t.Errorf("web opens = %v", h.web.opens)
	}
	// All playback is stopped for the catalog.
	if _, ok := h.player.coord.Playing(playback.RoleBackgroundVideo); ok {
		t.Error("background still playing in web stage")
	}
}

func TestAudioTimeoutBacksOff(t *testing.T) {
	h := newHarness(t, testConfig())
	toAudio(t, h)

	h.hold(16*time.Second, proximity.ClassNear)
	h.wantStage(t, Detected)
	last := h.events[len(h.events)-1]
	if last.Reason != "no response before timeout" {
		t.Errorf("reason = %q", last.Reason)
	}
}

func TestAudioVeryNearBeatsTimeout(t *testing.T) {
	// The person steps up exactly when the timeout has already expired:
	// the sensor wins, the timeout must not bounce them back.
	h := newHarness(t, testConfig())
	toAudio(t, h)

	h.hold(16*time.Second, proximity.ClassNear)
	h.wantStage(t, Detected)

	// Same setup, but very_near arrives on the expiry tick.
	h2 := newHarness(t, testConfig())
	toAudio(t, h2)
	h2.hold(15*time.Second-step, proximity.ClassNear)
	h2.wantStage(t, Audio)
	h2.tick(proximity.ClassVeryNear)
	h2.wantStage(t, Web)
}

func TestWebCompletionSignal(t *testing.T) {
	h := newHarness(t, testConfig())
	toWeb(t, h)

	h.m.SignalWebDone()
	h.tick(proximity.ClassVeryNear)
	h.wantStage(t, ThankYou)

	if h.web.closes == 0 {
		t.Error("web view not closed on exit")
	}
	if ref, _ := h.player.coord.Playing(playback.RoleBackgroundVideo); ref.Name != "thanks" {
		t.Errorf("background = %q, want thanks", ref.Name)
	}
}

func TestWebCompletionSignalIgnoredElsewhere(t *testing.T) {
	h := newHarness(t, testConfig())
	h.m.SignalWebDone()
	h.tick(proximity.ClassNone)
	h.wantStage(t, Idle)
}

func TestWebAbandonedGoesToThankYou(t *testing.T) {
	h := newHarness(t, testConfig())
	toWeb(t, h)

	// 15s idle arms the 5s countdown; nobody in front at expiry.
	h.hold(15*time.Second, proximity.ClassNone)
	h.wantStage(t, Web)
	h.hold(6*time.Second, proximity.ClassNone)
	h.wantStage(t, ThankYou)

	last := h.events[len(h.events)-1]
	if last.Reason != "session abandoned" {
		t.Errorf("reason = %q", last.Reason)
	}
}

func TestWebNewPersonGoesToIdle(t *testing.T) {
	h := newHarness(t, testConfig())
	toWeb(t, h)

	h.hold(15*time.Second, proximity.ClassNone)
	h.hold(6*time.Second, proximity.ClassNear)
	h.wantStage(t, Idle)

	last := h.events[len(h.events)-1]
	if last.Reason != "new person waiting" {
		t.Errorf("reason = %q", last.Reason)
	}
	if h.web.closes == 0 {
		t.Error("web view not closed on exit")
	}
}

func TestWebInteractionRearmsIdle(t *testing.T) {
	h := newHarness(t, testConfig())
	toWeb(t, h)

	// Keep poking just before the idle timeout would fire.
	for i := 0; i < 3; i++ {
		h.hold(14*time.Second, proximity.ClassNone)
		h.m.SignalInteraction()
		h.tick(proximity.ClassNone)
	}
	h.wantStage(t, Web)
}

func TestWebInteractionAbortsCountdown(t *testing.T) {
	h := newHarness(t, testConfig())
	toWeb(t, h)

	h.hold(16*time.Second, proximity.ClassNone)
	if _, running := h.m.CountdownRemaining(h.now); !running {
		t.Fatal("countdown should be running")
	}

	h.m.SignalInteraction()
	h.tick(proximity.ClassNone)
	if _, running := h.m.CountdownRemaining(h.now); running {
		t.Error("interaction should abort the countdown")
	}

	// The full idle window applies again afterwards.
	h.hold(14*time.Second, proximity.ClassNone)
	h.wantStage(t, Web)
}

func TestThankYouEndsWithVideo(t *testing.T) {
	h := newHarness(t, testConfig())
	toWeb(t, h)
	h.m.SignalWebDone()
	h.tick(proximity.ClassNone)
	h.wantStage(t, ThankYou)

	h.hold(5*time.Second, proximity.ClassNone)
	h.wantStage(t, ThankYou)
	h.hold(2*time.Second, proximity.ClassNone)
	h.wantStage(t, Idle)

	if ref, _ := h.player.coord.Playing(playback.RoleBackgroundVideo); ref.Name != "idle" {
		t.Errorf("background = %q, want idle", ref.Name)
	}
}

func TestThankYouIgnoresPresence(t *testing.T) {
	// The outro plays through even if someone is standing there; they get
	// picked up again from IDLE.
	h := newHarness(t, testConfig())
	toWeb(t, h)
	h.m.SignalWebDone()
	h.tick(proximity.ClassVeryNear)

	h.hold(5*time.Second, proximity.ClassVeryNear)
	h.wantStage(t, ThankYou)
	h.hold(2*time.Second, proximity.ClassVeryNear)
	h.wantStage(t, Idle)
}

func TestResetFromAnyStage(t *testing.T) {
	h := newHarness(t, testConfig())
	toWeb(t, h)

	h.m.Reset(h.now)
	h.wantStage(t, Idle)
	if h.web.closes == 0 {
		t.Error("reset from web should close the web view")
	}
	last := h.events[len(h.events)-1]
	if last.Reason != "manual reset" {
		t.Errorf("reason = %q", last.Reason)
	}

	// Reset in IDLE is a no-op, entry actions do not re-run.
	before := len(h.player.calls)
	h.m.Reset(h.now)
	if len(h.player.calls) != before {
		t.Error("reset in idle re-ran entry actions")
	}
}

func TestEntryFailureDoesNotBlockTransition(t *testing.T) {
	h := newHarness(t, testConfig())
	h.player.fail["attract_video"] = errors.New("player exploded")

	h.tick(proximity.ClassNear)
	h.wantStage(t, Detected)

	// The rest of the entry actions still ran.
	if ref, _ := h.player.coord.Playing(playback.RoleOverlayAudio); ref.Name != "attract_audio" {
		t.Errorf("overlay audio = %q, want attract_audio", ref.Name)
	}
	// And the stage still times out normally.
	h.hold(11*time.Second, proximity.ClassNone)
	h.wantStage(t, Idle)
}

func TestWebOpenFailureStillEntersWeb(t *testing.T) {
	h := newHarness(t, testConfig())
	h.web.fail = errors.New("no browser")
	toWeb(t, h)

	// The idle timeout still recycles the kiosk.
	h.hold(21*time.Second, proximity.ClassNone)
	h.wantStage(t, ThankYou)
}

func TestAtMostOneTransitionPerTick(t *testing.T) {
	h := newHarness(t, testConfig())
	h.tick(proximity.ClassVeryNear)
	if len(h.events) != 1 {
		t.Fatalf("got %d transitions in one tick, want 1: %v", len(h.events), reasons(h.events))
	}
}

func TestTimersResetAcrossReentry(t *testing.T) {
	h := newHarness(t, testConfig())
	toAudio(t, h)

	// Bounce back to DETECTED; the new visit gets a fresh countdown.
	h.hold(16*time.Second, proximity.ClassNear)
	h.wantStage(t, Detected)
	h.hold(9*time.Second, proximity.ClassNone)
	h.wantStage(t, Detected)
	h.hold(2*time.Second, proximity.ClassNone)
	h.wantStage(t, Idle)
}

func TestCountdownRemaining(t *testing.T) {
	h := newHarness(t, testConfig())
	if _, running := h.m.CountdownRemaining(h.now); running {
		t.Error("no countdown in idle")
	}

	h.tick(proximity.ClassNone) // still idle
	h.tick(proximity.ClassNear)
	remain, running := h.m.CountdownRemaining(h.now)
	if !running || remain != 10*time.Second {
		t.Errorf("remaining = %v, %v; want 10s, true", remain, running)
	}
}

func TestShutdownStopsEverything(t *testing.T) {
	h := newHarness(t, testConfig())
	toWeb(t, h)

	h.m.Shutdown()
	if h.web.closes == 0 {
		t.Error("shutdown should close the web view")
	}
	if h.player.calls[len(h.player.calls)-1] != "stop_all" {
		t.Error("shutdown should stop playback")
	}
}
