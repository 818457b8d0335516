// Package playback coordinates the kiosk's media roles.
//
// The coordinator does not decode or render anything. It tracks what each
// role should currently be playing, with a per-role clock rooted at that
// role's own start time, and answers pull-style queries from the display
// layer. It is commanded by the stage machine and never drives it.
package playback

import (
	"sync"
	"time"
)

// Role is a media slot. At most one asset plays per role at a time;
// starting a role implicitly stops its predecessor.
type Role int

const (
	RoleBackgroundVideo Role = iota
	RoleOverlayVideo
	RoleOverlayAudio
)

func (r Role) String() string {
	switch r {
	case RoleBackgroundVideo:
		return "background_video"
	case RoleOverlayVideo:
		return "overlay_video"
	case RoleOverlayAudio:
		return "overlay_audio"
	default:
		return "unknown_role"
	}
}

// AssetRef identifies a media asset and how it should play.
//
// Duration comes from configuration: decoding is out of scope here, so the
// coordinator cannot measure it. A looping asset with zero duration plays
// forever; a non-looping asset with zero duration finishes immediately.
type AssetRef struct {
	Name     string        `json:"name"`
	Path     string        `json:"path"`
	Duration time.Duration `json:"duration"`
	Loop     bool          `json:"loop"`

	// Delay holds back the start of playback relative to the role's own
	// start time. The attract stage uses this to begin its audio a few
	// seconds into the video; because the clock is rooted at the role's
	// start, the offset survives video loop restarts.
	Delay time.Duration `json:"delay,omitempty"`
}

type track struct {
	ref       AssetRef
	startedAt time.Time
}

// FrameCommand describes what one role should currently be showing.
type FrameCommand struct {
	Role     Role          `json:"role"`
	Asset    AssetRef      `json:"asset"`
	Position time.Duration `json:"position"` // offset into the asset
	Waiting  bool          `json:"waiting"`  // start delay not yet elapsed
	Finished bool          `json:"finished"` // non-looping asset ran out
}

// FrameCommands is the full answer to one Advance call, ordered
// background first so the display layer can composite in order.
type FrameCommands struct {
	At    time.Time      `json:"at"`
	Items []FrameCommand `json:"items"`
}

// Coordinator tracks the commanded playback state for all roles.
// Safe for concurrent use: the orchestrator commands it while the display
// layer polls Advance at render cadence.
type Coordinator struct {
	mu     sync.RWMutex
	tracks map[Role]track
}

// NewCoordinator returns an empty coordinator with no roles playing.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		tracks: make(map[Role]track, 3),
	}
}

// Start begins playing ref on the role at now, replacing whatever the role
// was playing. The role's elapsed clock restarts from zero.
func (c *Coordinator) Start(role Role, ref AssetRef, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks[role] = track{ref: ref, startedAt: now}
}

// Stop clears the role. Idempotent.
func (c *Coordinator) Stop(role Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tracks, role)
}

// StopAll clears every role.
func (c *Coordinator) StopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.tracks)
}

// Playing returns the asset currently commanded on the role, if any.
func (c *Coordinator) Playing(role Role) (AssetRef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tracks[role]
	return t.ref, ok
}

// ElapsedInRole returns how long the role has been playing its current
// asset, measured from the role's own start time (not the stage's).
func (c *Coordinator) ElapsedInRole(role Role, now time.Time) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tracks[role]
	if !ok {
		return 0, false
	}
	return now.Sub(t.startedAt), true
}

// Finished reports whether the role's non-looping asset has played through.
// Looping and idle roles never finish.
func (c *Coordinator) Finished(role Role, now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tracks[role]
	if !ok || t.ref.Loop {
		return false
	}
	return now.Sub(t.startedAt) >= t.ref.Delay+t.ref.Duration
}

// Advance reports what every active role should be showing at now.
// Pure with respect to its inputs: safe to call at arbitrary rates with no
// side effects beyond the returned commands.
func (c *Coordinator) Advance(now time.Time) FrameCommands {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := FrameCommands{At: now}
	for _, role := range []Role{RoleBackgroundVideo, RoleOverlayVideo, RoleOverlayAudio} {
		t, ok := c.tracks[role]
		if !ok {
			continue
		}
		elapsed := now.Sub(t.startedAt)
		cmd := FrameCommand{Role: role, Asset: t.ref}

		switch {
		case elapsed < t.ref.Delay:
			cmd.Waiting = true
		case t.ref.Loop && t.ref.Duration > 0:
			cmd.Position = (elapsed - t.ref.Delay) % t.ref.Duration
		case t.ref.Loop:
			cmd.Position = elapsed - t.ref.Delay
		case elapsed-t.ref.Delay >= t.ref.Duration:
			cmd.Position = t.ref.Duration
			cmd.Finished = true
		default:
			cmd.Position = elapsed - t.ref.Delay
		}
		out.Items = append(out.Items, cmd)
	}
	return out
}
