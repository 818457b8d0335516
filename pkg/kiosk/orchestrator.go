// Package kiosk runs the control loop that ties the detector, the distance
// classifier and the stage machine together.
//
// Everything stage-related happens on one goroutine at a fixed tick rate.
// Inputs from other goroutines (detector samples, web signals, operator
// resets) are latched and consumed at the next tick, so the stage machine
// itself never needs locks.
package kiosk

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cmerch/go-kiosk/internal/log"
	"github.com/cmerch/go-kiosk/internal/store"
	"github.com/cmerch/go-kiosk/pkg/hub"
	"github.com/cmerch/go-kiosk/pkg/protocol"
	"github.com/cmerch/go-kiosk/pkg/proximity"
	"github.com/cmerch/go-kiosk/pkg/stage"
)

// Detector supplies proximity samples. Poll never blocks; fresh reports
// whether the sample is new since the last poll.
type Detector interface {
	Poll() (proximity.Sample, bool)
}

// statusEvery throttles dashboard status broadcasts to every Nth tick.
const statusEvery = 5

// Options wires an orchestrator. Machine, Detector and Calibration are
// required; the rest are optional integrations.
type Options struct {
	Calibration proximity.Calibration
	TickRate    time.Duration
	Machine     *stage.Machine
	Detector    Detector

	// Connected reports detector transport health for the status feed.
	Connected func() bool

	// Activity log. Nil disables persistence.
	Store *store.Store

	// Dashboard feeds. Nil disables the respective broadcast.
	StatusHub *hub.Hub
	EventHub  *hub.Hub
}

// Orchestrator owns the kiosk control loop.
type Orchestrator struct {
	opts    Options
	metrics *Metrics

	mu       sync.Mutex
	status   protocol.StatusData
	resetReq bool

	// Tick-goroutine state: last sample and session bookkeeping.
	lastSample proximity.Sample
	sessionID  string
	reached    stage.ID
	completed  bool

	tickCount uint64
}

// New creates an orchestrator and hooks it into the machine's transition
// stream.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		opts:    opts,
		metrics: NewMetrics(time.Second),
	}
	opts.Machine.OnTransition(o.onTransition)
	return o
}

// Run drives the loop until ctx is canceled, then shuts the machine down.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.opts.Machine.Start(time.Now())

	ticker := time.NewTicker(o.opts.TickRate)
	defer ticker.Stop()

	log.Info("orchestrator started", "tick_rate", o.opts.TickRate)

	for {
		select {
		case <-ctx.Done():
			o.opts.Machine.Shutdown()
			log.Info("orchestrator stopped")
			return ctx.Err()
		case now := <-ticker.C:
			o.tick(now)
		}
	}
}

func (o *Orchestrator) tick(now time.Time) {
	// Between detector frames the last sample stays authoritative; the
	// stage machine's own timeouts handle a detector that has gone quiet.
	if s, fresh := o.opts.Detector.Poll(); fresh {
		o.lastSample = s
	}

	class, err := proximity.Classify(o.lastSample, o.opts.Calibration)
	if err != nil {
		log.Warn("sample rejected", "err", err, "bbox_height", o.lastSample.BBoxHeight)
		class = proximity.ClassNone
	}

	if o.consumeReset() {
		o.opts.Machine.Reset(now)
	}
	o.opts.Machine.Tick(now, class)

	o.metrics.MarkTick(now)
	o.tickCount++
	o.snapshot(now, class, o.lastSample)

	if o.opts.StatusHub != nil && o.tickCount%statusEvery == 0 {
		o.opts.StatusHub.BroadcastJSON(o.Status())
	}
}

// snapshot caches the status under the lock so web handlers never touch the
// machine directly.
func (o *Orchestrator) snapshot(now time.Time, class proximity.Class, sample proximity.Sample) {
	m := o.opts.Machine
	st := protocol.StatusData{
		Stage:          m.Current().String(),
		StageElapsedMs: m.Elapsed(now).Milliseconds(),
		Class:          class.String(),
		TicksPerSecond: o.metrics.Snapshot().TicksPerSecond,
	}
	if remain, running := m.CountdownRemaining(now); running {
		st.CountdownRunning = true
		st.CountdownRemainMs = remain.Milliseconds()
	}
	if o.opts.Connected != nil {
		st.DetectorConnected = o.opts.Connected()
	}
	if !sample.Timestamp.IsZero() {
		st.LastSampleAgeMs = now.Sub(sample.Timestamp).Milliseconds()
		st.LastBBoxHeightPx = sample.BBoxHeight
	}

	o.mu.Lock()
	o.status = st
	o.mu.Unlock()
}

// Status returns the latest cached snapshot. Stale by at most one tick.
func (o *Orchestrator) Status() protocol.StatusData {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// SignalWebDone forwards the catalog UI's completion signal.
func (o *Orchestrator) SignalWebDone() { o.opts.Machine.SignalWebDone() }

// SignalInteraction forwards a web view activity ping.
func (o *Orchestrator) SignalInteraction() { o.opts.Machine.SignalInteraction() }

// RequestReset asks the loop to force the machine back to IDLE on the next
// tick. Safe from any goroutine.
func (o *Orchestrator) RequestReset() {
	o.mu.Lock()
	o.resetReq = true
	o.mu.Unlock()
}

func (o *Orchestrator) consumeReset() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	req := o.resetReq
	o.resetReq = false
	return req
}

// onTransition runs inside the tick: persist the event, maintain session
// bookkeeping and feed the dashboard event stream.
func (o *Orchestrator) onTransition(ev stage.Event) {
	if ev.From == stage.Idle && ev.To == stage.Detected {
		o.sessionID = uuid.NewString()
		o.reached = stage.Detected
		o.completed = false
		if o.opts.Store != nil {
			if err := o.opts.Store.StartSession(o.sessionID, ev.At); err != nil {
				log.Warn("record session start", "err", err)
			}
		}
	}
	if o.sessionID != "" && ev.To > o.reached {
		o.reached = ev.To
	}
	if ev.From == stage.Web && ev.To == stage.ThankYou && ev.Reason == "web reported completion" {
		o.completed = true
	}

	if o.opts.Store != nil {
		if err := o.opts.Store.RecordTransition(ev, o.sessionID); err != nil {
			log.Warn("record transition", "err", err)
		}
	}

	if ev.To == stage.Idle && o.sessionID != "" {
		if o.opts.Store != nil {
			if err := o.opts.Store.EndSession(o.sessionID, ev.At, o.reached, o.completed); err != nil {
				log.Warn("record session end", "err", err)
			}
		}
		o.sessionID = ""
	}

	if o.opts.EventHub != nil {
		msg, err := protocol.NewMessage(protocol.TypeTransition, protocol.TransitionData{
			ID:     ev.ID,
			From:   ev.FromS,
			To:     ev.ToS,
			At:     ev.At.UnixMilli(),
			Reason: ev.Reason,
		})
		if err == nil {
			if data, err := msg.Bytes(); err == nil {
				o.opts.EventHub.Broadcast(hub.NewJSONMessage(data))
			}
		}
	}
}
