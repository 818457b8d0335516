// Package timer implements the bank of per-stage countdown timers.
//
// Timers never fire on their own: they are armed and canceled by the stage
// machine and polled once per orchestrator tick. Expiration is
// level-triggered: Expired stays true until the timer is canceled or
// re-armed, so the consumer must cancel a timer when it acts on it.
package timer

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownTimer is returned when an undeclared timer ID is used.
// This is a programming error, not a runtime condition.
var ErrUnknownTimer = errors.New("timer: unknown timer id")

// ID names one timer in the bank.
type ID string

type entry struct {
	duration time.Duration
	deadline time.Time
	armed    bool
}

// Bank stores a fixed set of independently armed countdown timers.
// It only stores and reports; it never initiates anything.
//
// Bank is not goroutine-safe. It is owned by the stage machine and only
// touched from the orchestrator tick.
type Bank struct {
	timers map[ID]*entry

	// strict panics on unknown IDs instead of reporting them, so misuse
	// surfaces immediately in development builds.
	strict bool
}

// NewBank creates a bank with the declared timer IDs. Arming or canceling
// any other ID is misuse.
func NewBank(strict bool, ids ...ID) *Bank {
	b := &Bank{
		timers: make(map[ID]*entry, len(ids)),
		strict: strict,
	}
	for _, id := range ids {
		b.timers[id] = &entry{}
	}
	return b
}

func (b *Bank) lookup(id ID) (*entry, error) {
	e, ok := b.timers[id]
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownTimer, id)
		if b.strict {
			panic(err)
		}
		return nil, err
	}
	return e, nil
}

// Arm starts (or restarts) the timer. Arming an already-armed timer resets
// its deadline; there is no stacking.
func (b *Bank) Arm(id ID, d time.Duration, now time.Time) error {
	e, err := b.lookup(id)
	if err != nil {
		return err
	}
	e.duration = d
	e.deadline = now.Add(d)
	e.armed = true
	return nil
}

// Cancel disarms the timer. Idempotent.
func (b *Bank) Cancel(id ID) error {
	e, err := b.lookup(id)
	if err != nil {
		return err
	}
	e.armed = false
	e.deadline = time.Time{}
	return nil
}

// CancelAll disarms every timer in the bank.
func (b *Bank) CancelAll() {
	for _, e := range b.timers {
		e.armed = false
		e.deadline = time.Time{}
	}
}

// Armed reports whether the timer is currently armed.
func (b *Bank) Armed(id ID) bool {
	e, err := b.lookup(id)
	if err != nil {
		return false
	}
	return e.armed
}

// Expired reports whether the timer's deadline has passed. Level-triggered:
// it keeps reporting true every poll until the timer is canceled or re-armed.
func (b *Bank) Expired(id ID, now time.Time) bool {
	e, err := b.lookup(id)
	if err != nil {
		return false
	}
	return e.armed && !now.Before(e.deadline)
}

// Remaining returns the time left on an armed timer. The second return is
// false when the timer is not armed or unknown. A timer past its deadline
// reports zero remaining.
func (b *Bank) Remaining(id ID, now time.Time) (time.Duration, bool) {
	e, err := b.lookup(id)
	if err != nil || !e.armed {
		return 0, false
	}
	left := e.deadline.Sub(now)
	if left < 0 {
		left = 0
	}
	return left, true
}
