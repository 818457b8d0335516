package timer

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func newTestBank() *Bank {
	return NewBank(false, "a", "b")
}

func TestArmAndExpire(t *testing.T) {
	b := newTestBank()
	if err := b.Arm("a", 5*time.Second, t0); err != nil {
		t.Fatal(err)
	}

	if !b.Armed("a") {
		t.Error("timer should be armed")
	}
	if b.Expired("a", t0.Add(4*time.Second)) {
		t.Error("expired before deadline")
	}
	if !b.Expired("a", t0.Add(5*time.Second)) {
		t.Error("deadline instant should count as expired")
	}
	if !b.Expired("a", t0.Add(6*time.Second)) {
		t.Error("expiry is level-triggered, must stay true")
	}
}

func TestRearmResetsDeadline(t *testing.T) {
	b := newTestBank()
	b.Arm("a", 5*time.Second, t0)
	b.Arm("a", 5*time.Second, t0.Add(3*time.Second))

	if b.Expired("a", t0.Add(6*time.Second)) {
		t.Error("re-arm should have pushed the deadline to t0+8s")
	}
	if !b.Expired("a", t0.Add(8*time.Second)) {
		t.Error("should expire at the re-armed deadline")
	}
}

func TestCancel(t *testing.T) {
	b := newTestBank()
	b.Arm("a", time.Second, t0)
	if err := b.Cancel("a"); err != nil {
		t.Fatal(err)
	}

	if b.Armed("a") {
		t.Error("canceled timer reports armed")
	}
	if b.Expired("a", t0.Add(time.Hour)) {
		t.Error("canceled timer reports expired")
	}
	// Idempotent
	if err := b.Cancel("a"); err != nil {
		t.Errorf("second cancel: %v", err)
	}
}

func TestCancelAll(t *testing.T) {
	b := newTestBank()
	b.Arm("a", time.Second, t0)
	b.Arm("b", time.Second, t0)
	b.CancelAll()
	if b.Armed("a") || b.Armed("b") {
		t.Error("CancelAll left a timer armed")
	}
}

func TestRemaining(t *testing.T) {
	b := newTestBank()
	if _, ok := b.Remaining("a", t0); ok {
		t.Error("unarmed timer should have no remaining")
	}

	b.Arm("a", 10*time.Second, t0)
	left, ok := b.Remaining("a", t0.Add(4*time.Second))
	if !ok || left != 6*time.Second {
		t.Errorf("Remaining = %v, %v; want 6s, true", left, ok)
	}

	left, ok = b.Remaining("a", t0.Add(time.Minute))
	if !ok || left != 0 {
		t.Errorf("past deadline Remaining = %v, %v; want 0, true", left, ok)
	}
}

func TestUnknownID(t *testing.T) {
	b := newTestBank()
	if err := b.Arm("nope", time.Second, t0); !errors.Is(err, ErrUnknownTimer) {
		t.Errorf("Arm unknown = %v, want ErrUnknownTimer", err)
	}
	if err := b.Cancel("nope"); !errors.Is(err, ErrUnknownTimer) {
		t.Errorf("Cancel unknown = %v, want ErrUnknownTimer", err)
	}
	if b.Armed("nope") || b.Expired("nope", t0) {
		t.Error("unknown timer should read as inert")
	}
}

func TestStrictPanics(t *testing.T) {
	b := NewBank(true, "a")
	defer func() {
		if recover() == nil {
			t.Error("strict bank should panic on unknown id")
		}
	}()
	b.Arm("nope", time.Second, t0)
}

func TestTimersIndependent(t *testing.T) {
	b := newTestBank()
	b.Arm("a", time.Second, t0)
	b.Arm("b", time.Minute, t0)
	b.Cancel("a")
	if !b.Armed("b") {
		t.Error("canceling one timer disturbed another")
	}
	if !b.Expired("b", t0.Add(2*time.Minute)) {
		t.Error("b should expire on its own deadline")
	}
}
