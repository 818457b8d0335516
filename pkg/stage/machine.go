package stage

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cmerch/go-kiosk/internal/log"
	"github.com/cmerch/go-kiosk/pkg/playback"
	"github.com/cmerch/go-kiosk/pkg/proximity"
	"github.com/cmerch/go-kiosk/pkg/timer"
)

// EntryError reports a failed entry-action command. The stage is still
// considered entered; the kiosk degrades instead of deadlocking, and the
// command is not retried.
type EntryError struct {
	Stage ID
	Cmd   string
	Err   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("stage %s entry: %s: %v", e.Stage, e.Cmd, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

// stageCtx is the per-stage scratch state. Created on entry, destroyed on
// exit; nothing in it survives a transition.
type stageCtx struct {
	enteredAt     time.Time
	veryNearTicks int  // consecutive VERY_NEAR ticks (dwell guard)
	countdownOn   bool // WEB: final countdown phase armed
}

// Machine is the stage orchestrator. All state lives on the machine object;
// there is no ambient state, so multiple independent kiosk instances and
// simulated-clock tests are straightforward.
//
// Tick, Reset and Shutdown must be called from a single control loop.
// Signal* methods are safe to call from other goroutines; they latch and
// are consumed by the next tick.
type Machine struct {
	cfg     Config
	player  Player
	webview WebView
	bank    *timer.Bank

	current ID
	ctx     stageCtx
	started bool

	listeners []func(Event)

	sigMu       sync.Mutex
	webDone     bool
	interaction bool
}

// NewMachine creates a machine in IDLE. Start must be called once with the
// starting wall time before the first tick so IDLE's entry actions run.
func NewMachine(cfg Config, player Player, webview WebView) *Machine {
	return &Machine{
		cfg:     cfg,
		player:  player,
		webview: webview,
		bank: timer.NewBank(cfg.Strict,
			TimerStage2Countdown, TimerStage2Far,
			TimerStage3Timeout,
			TimerStage4Idle, TimerStage4Countdown,
		),
		current: Idle,
	}
}

// OnTransition registers a listener for transition events. Listeners run
// synchronously inside the tick; keep them cheap.
func (m *Machine) OnTransition(fn func(Event)) {
	m.listeners = append(m.listeners, fn)
}

// Start runs IDLE's entry actions. Calling it twice is a no-op.
func (m *Machine) Start(now time.Time) {
	if m.started {
		return
	}
	m.started = true
	m.ctx = stageCtx{enteredAt: now}
	m.runEntry(Idle, now)
}

// Current returns the active stage.
func (m *Machine) Current() ID { return m.current }

// Elapsed returns how long the active stage has been active.
func (m *Machine) Elapsed(now time.Time) time.Duration {
	return now.Sub(m.ctx.enteredAt)
}

// CountdownRemaining returns the time left on the active stage's
// reset countdown, if one is running.
func (m *Machine) CountdownRemaining(now time.Time) (time.Duration, bool) {
	switch m.current {
	case Detected:
		return m.bank.Remaining(TimerStage2Countdown, now)
	case Web:
		return m.bank.Remaining(TimerStage4Countdown, now)
	}
	return 0, false
}

// SignalWebDone reports that the catalog UI signaled a completed
// interaction. Consumed by the next tick; only meaningful in WEB.
func (m *Machine) SignalWebDone() {
	m.sigMu.Lock()
	m.webDone = true
	m.sigMu.Unlock()
}

// SignalInteraction reports user activity on the web view (touch, mouse).
// In WEB it re-arms the idle timeout and aborts a running countdown.
func (m *Machine) SignalInteraction() {
	m.sigMu.Lock()
	m.interaction = true
	m.sigMu.Unlock()
}

func (m *Machine) consumeSignals() (webDone, interaction bool) {
	m.sigMu.Lock()
	webDone, interaction = m.webDone, m.interaction
	m.webDone, m.interaction = false, false
	m.sigMu.Unlock()
	return
}

// Tick evaluates the machine once against the classified proximity sample.
// At most one transition is applied per tick; if no transition condition
// holds, the tick is a no-op and entry actions are not re-run.
func (m *Machine) Tick(now time.Time, class proximity.Class) {
	if !m.started {
		m.Start(now)
	}

	webDone, interaction := m.consumeSignals()

	// Dwell counter for the VERY_NEAR boundary.
	if class == proximity.ClassVeryNear {
		m.ctx.veryNearTicks++
	} else {
		m.ctx.veryNearTicks = 0
	}

	var target ID
	var reason string

	switch m.current {
	case Idle:
		target, reason = m.tickIdle(class)
	case Detected:
		target, reason = m.tickDetected(now, class)
	case Audio:
		target, reason = m.tickAudio(now, class)
	case Web:
		target, reason = m.tickWeb(now, class, webDone, interaction)
	case ThankYou:
		target, reason = m.tickThankYou(now)
	}

	if target != m.current {
		m.transition(now, target, reason)
	}
}

func (m *Machine) tickIdle(class proximity.Class) (ID, string) {
	if class.Present() {
		return Detected, "person detected at " + class.String()
	}
	return Idle, ""
}

func (m *Machine) tickDetected(now time.Time, class proximity.Class) (ID, string) {
	// Sensor signal first: a person right at the screen wins over any
	// timer, including an already-expired countdown.
	if m.veryNearHeld() {
		return Audio, "person at very_near"
	}

	if class.Present() {
		// Presence keeps resetting the leave countdown, so expiry means
		// the person was gone for the whole window.
		m.arm(TimerStage2Countdown, m.cfg.Stage2Countdown, now)
	} else {
		m.cancel(TimerStage2Far)
		if m.bank.Expired(TimerStage2Countdown, now) {
			return Idle, "person left"
		}
		return Detected, ""
	}

	if m.cfg.Stage2FarTimeout > 0 && class == proximity.ClassFar {
		if !m.bank.Armed(TimerStage2Far) {
			m.arm(TimerStage2Far, m.cfg.Stage2FarTimeout, now)
		}
		if m.bank.Expired(TimerStage2Far, now) {
			return Idle, "person stayed far"
		}
	} else {
		m.cancel(TimerStage2Far)
	}

	return Detected, ""
}

func (m *Machine) tickAudio(now time.Time, class proximity.Class) (ID, string) {
	// Success path first: the timeout must never preempt a person who is
	// still very near.
	if m.veryNearHeld() {
		return Web, "very_near confirmed"
	}

	if class != proximity.ClassVeryNear && m.bank.Expired(TimerStage3Timeout, now) {
		return Detected, "no response before timeout"
	}

	return Audio, ""
}

func (m *Machine) tickWeb(now time.Time, class proximity.Class, webDone, interaction bool) (ID, string) {
	if webDone {
		return ThankYou, "web reported completion"
	}

	if interaction {
		m.arm(TimerStage4Idle, m.cfg.Stage4Idle, now)
		m.cancel(TimerStage4Countdown)
		m.ctx.countdownOn = false
	}

	// Phase one: the idle timeout arms the final countdown.
	if !m.ctx.countdownOn && m.bank.Expired(TimerStage4Idle, now) {
		m.cancel(TimerStage4Idle)
		m.arm(TimerStage4Countdown, m.cfg.Stage4Countdown, now)
		m.ctx.countdownOn = true
	}

	// Phase two: countdown expiry with a presence recheck. A person still
	// in front of the kiosk is assumed to be a new customer, so the
	// thank-you message for a completed interaction is skipped.
	if m.ctx.countdownOn && m.bank.Expired(TimerStage4Countdown, now) {
		if class == proximity.ClassNone {
			return ThankYou, "session abandoned"
		}
		return Idle, "new person waiting"
	}

	return Web, ""
}

func (m *Machine) tickThankYou(now time.Time) (ID, string) {
	if m.player.Finished(playback.RoleBackgroundVideo, now) {
		return Idle, "thank-you video finished"
	}
	return ThankYou, ""
}

func (m *Machine) veryNearHeld() bool {
	hold := m.cfg.VeryNearHoldTicks
	if hold < 1 {
		hold = 1
	}
	return m.ctx.veryNearTicks >= hold
}

// Reset forces the machine back to IDLE from any stage. Operator override.
func (m *Machine) Reset(now time.Time) {
	if m.current == Idle {
		return
	}
	m.transition(now, Idle, "manual reset")
}

// Shutdown stops all timers, playback and the web view. The machine must
// not be ticked afterwards.
func (m *Machine) Shutdown() {
	m.bank.CancelAll()
	if err := m.player.StopAll(); err != nil {
		log.Warn("shutdown: stop playback", "err", err)
	}
	if err := m.webview.Close(); err != nil {
		log.Warn("shutdown: close web view", "err", err)
	}
}

// transition applies a single stage change: cancel the exiting stage's
// timers, destroy its context, run the entering stage's entry actions
// exactly once, then notify listeners. Exit cleanup completes before entry
// actions so two stages' commands are never live at once.
func (m *Machine) transition(now time.Time, to ID, reason string) {
	from := m.current

	for _, id := range timerOwners[from] {
		m.cancel(id)
	}
	if from == Web {
		// The browser must be gone before the next stage paints.
		if err := m.webview.Close(); err != nil {
			log.Warn("close web view", "stage", from.String(), "err", err)
		}
	}

	m.current = to
	m.ctx = stageCtx{enteredAt: now}
	m.runEntry(to, now)

	ev := Event{
		ID:     uuid.NewString(),
		From:   from,
		To:     to,
		FromS:  from.String(),
		ToS:    to.String(),
		At:     now,
		Reason: reason,
	}
	log.Info("stage transition", "from", ev.FromS, "to", ev.ToS, "reason", reason)
	for _, fn := range m.listeners {
		fn(ev)
	}
}

// runEntry issues the entering stage's commands. Failures are logged as
// StageEntryFailure and do not block the transition.
func (m *Machine) runEntry(to ID, now time.Time) {
	a := m.cfg.Assets
	switch to {
	case Idle:
		m.command(to, "stop overlay audio", m.player.Stop(playback.RoleOverlayAudio))
		m.command(to, "stop overlay video", m.player.Stop(playback.RoleOverlayVideo))
		m.command(to, "start idle loop", m.player.Start(playback.RoleBackgroundVideo, a.IdleLoop, now))

	case Detected:
		m.command(to, "start attract video", m.player.Start(playback.RoleBackgroundVideo, a.AttractVideo, now))
		m.command(to, "start attract audio", m.player.Start(playback.RoleOverlayAudio, a.AttractAudio, now))
		m.arm(TimerStage2Countdown, m.cfg.Stage2Countdown, now)

	case Audio:
		m.command(to, "start prompt audio", m.player.Start(playback.RoleOverlayAudio, a.PromptAudio, now))
		m.arm(TimerStage3Timeout, m.cfg.Stage3Timeout, now)

	case Web:
		m.command(to, "stop playback", m.player.StopAll())
		m.command(to, "open web view", m.webview.Open(m.cfg.WebURL))
		m.arm(TimerStage4Idle, m.cfg.Stage4Idle, now)

	case ThankYou:
		m.command(to, "stop overlay audio", m.player.Stop(playback.RoleOverlayAudio))
		m.command(to, "start thank-you video", m.player.Start(playback.RoleBackgroundVideo, a.ThankYouVideo, now))
	}
}

func (m *Machine) command(st ID, name string, err error) {
	if err == nil {
		return
	}
	log.Warn("stage entry failure", "err", &EntryError{Stage: st, Cmd: name, Err: err})
}

func (m *Machine) arm(id timer.ID, d time.Duration, now time.Time) {
	if err := m.bank.Arm(id, d, now); err != nil {
		log.Error("timer misuse", "timer", string(id), "err", err)
	}
}

func (m *Machine) cancel(id timer.ID) {
	if err := m.bank.Cancel(id); err != nil {
		log.Error("timer misuse", "timer", string(id), "err", err)
	}
}
