package playback

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func TestPerRoleClocks(t *testing.T) {
	c := NewCoordinator()
	c.Start(RoleBackgroundVideo, AssetRef{Name: "bg", Loop: true}, t0)
	c.Start(RoleOverlayAudio, AssetRef{Name: "audio", Loop: true}, t0.Add(2*time.Second))

	now := t0.Add(5 * time.Second)
	bg, ok := c.ElapsedInRole(RoleBackgroundVideo, now)
	if !ok || bg != 5*time.Second {
		t.Errorf("background elapsed = %v, %v; want 5s", bg, ok)
	}
	au, ok := c.ElapsedInRole(RoleOverlayAudio, now)
	if !ok || au != 3*time.Second {
		t.Errorf("audio elapsed = %v, %v; want 3s", au, ok)
	}
}

func TestStartRestartsClock(t *testing.T) {
	c := NewCoordinator()
	c.Start(RoleBackgroundVideo, AssetRef{Name: "one"}, t0)
	c.Start(RoleBackgroundVideo, AssetRef{Name: "two"}, t0.Add(10*time.Second))

	ref, ok := c.Playing(RoleBackgroundVideo)
	if !ok || ref.Name != "two" {
		t.Fatalf("playing %q, want two", ref.Name)
	}
	e, _ := c.ElapsedInRole(RoleBackgroundVideo, t0.Add(12*time.Second))
	if e != 2*time.Second {
		t.Errorf("elapsed = %v, want 2s after restart", e)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	c := NewCoordinator()
	c.Start(RoleOverlayAudio, AssetRef{Name: "audio"}, t0)
	c.Stop(RoleOverlayAudio)
	c.Stop(RoleOverlayAudio)
	if _, ok := c.Playing(RoleOverlayAudio); ok {
		t.Error("role still playing after stop")
	}
}

func TestFinished(t *testing.T) {
	c := NewCoordinator()
	c.Start(RoleBackgroundVideo, AssetRef{Name: "outro", Duration: 6 * time.Second}, t0)

	if c.Finished(RoleBackgroundVideo, t0.Add(5*time.Second)) {
		t.Error("finished before duration elapsed")
	}
	if !c.Finished(RoleBackgroundVideo, t0.Add(6*time.Second)) {
		t.Error("should be finished at duration")
	}

	// Looping assets never finish.
	c.Start(RoleBackgroundVideo, AssetRef{Name: "loop", Duration: time.Second, Loop: true}, t0)
	if c.Finished(RoleBackgroundVideo, t0.Add(time.Hour)) {
		t.Error("looping asset reported finished")
	}

	// Idle roles never finish.
	if c.Finished(RoleOverlayVideo, t0.Add(time.Hour)) {
		t.Error("idle role reported finished")
	}
}

func TestFinishedIncludesDelay(t *testing.T) {
	c := NewCoordinator()
	c.Start(RoleOverlayAudio, AssetRef{
		Name: "late", Duration: 4 * time.Second, Delay: 2 * time.Second,
	}, t0)

	if c.Finished(RoleOverlayAudio, t0.Add(5*time.Second)) {
		t.Error("delay must push the finish point out")
	}
	if !c.Finished(RoleOverlayAudio, t0.Add(6*time.Second)) {
		t.Error("should finish at delay+duration")
	}
}

func TestAdvanceDelayAndLoop(t *testing.T) {
	c := NewCoordinator()
	c.Start(RoleBackgroundVideo, AssetRef{Name: "bg", Duration: 10 * time.Second, Loop: true}, t0)
	c.Start(RoleOverlayAudio, AssetRef{Name: "audio", Duration: 8 * time.Second, Loop: true, Delay: 2 * time.Second}, t0)

	// Before the audio delay elapses it reports waiting.
	cmds := c.Advance(t0.Add(time.Second))
	if len(cmds.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(cmds.Items))
	}
	if cmds.Items[0].Role != RoleBackgroundVideo {
		t.Error("background must composite first")
	}
	if !cmds.Items[1].Waiting {
		t.Error("audio should be waiting during its delay")
	}

	// Loop position wraps modulo duration, measured from the delay point.
	cmds = c.Advance(t0.Add(25 * time.Second))
	if got := cmds.Items[0].Position; got != 5*time.Second {
		t.Errorf("background position = %v, want 5s", got)
	}
	if got := cmds.Items[1].Position; got != 7*time.Second {
		t.Errorf("audio position = %v, want 7s", got)
	}
}

func TestAdvanceNonLoopClamps(t *testing.T) {
	c := NewCoordinator()
	c.Start(RoleBackgroundVideo, AssetRef{Name: "outro", Duration: 6 * time.Second}, t0)

	cmds := c.Advance(t0.Add(10 * time.Second))
	item := cmds.Items[0]
	if !item.Finished {
		t.Error("non-looping asset past duration should report finished")
	}
	if item.Position != 6*time.Second {
		t.Errorf("position = %v, want clamped to duration", item.Position)
	}
}

func TestAdvancePure(t *testing.T) {
	c := NewCoordinator()
	c.Start(RoleBackgroundVideo, AssetRef{Name: "bg", Duration: 10 * time.Second, Loop: true}, t0)

	a := c.Advance(t0.Add(3 * time.Second))
	b := c.Advance(t0.Add(3 * time.Second))
	if a.Items[0].Position != b.Items[0].Position {
		t.Error("Advance at the same instant must give the same answer")
	}
}
