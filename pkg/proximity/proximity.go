// Package proximity turns raw person-detection output into the discrete
// distance classes the stage machine runs on.
package proximity

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSample is returned by Classify for malformed detector input.
// Callers recover by substituting ClassNone.
var ErrInvalidSample = errors.New("proximity: invalid sample")

// Sample is one detector observation for one processed camera frame.
// Ephemeral: only the latest sample is retained between ticks.
type Sample struct {
	Detected   bool      `json:"detected"`
	BBoxHeight float64   `json:"bbox_height_px"`
	Confidence float64   `json:"confidence,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Class is a discretized distance bucket. Classes are categorical, but
// ordering is monotonic in physical closeness: a taller bounding box means
// a closer person and a "more near" class.
type Class int

const (
	ClassNone Class = iota
	ClassFar
	ClassNear
	ClassVeryNear
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassFar:
		return "far"
	case ClassNear:
		return "near"
	case ClassVeryNear:
		return "very_near"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Present reports whether the class corresponds to a detected person.
func (c Class) Present() bool {
	return c != ClassNone
}

// Calibration holds the bbox-height thresholds, in pixels, for one camera
// setup. Immutable for the lifetime of a session.
type Calibration struct {
	FarPx      float64
	NearPx     float64
	VeryNearPx float64
}

// Validate checks the thresholds are positive and strictly ordered.
func (c Calibration) Validate() error {
	if c.FarPx <= 0 || c.NearPx <= 0 || c.VeryNearPx <= 0 {
		return fmt.Errorf("calibration thresholds must be positive (far=%v near=%v very_near=%v)",
			c.FarPx, c.NearPx, c.VeryNearPx)
	}
	if !(c.FarPx < c.NearPx && c.NearPx < c.VeryNearPx) {
		return fmt.Errorf("calibration thresholds must satisfy far < near < very_near (far=%v near=%v very_near=%v)",
			c.FarPx, c.NearPx, c.VeryNearPx)
	}
	return nil
}

// Classify maps a sample to a proximity class. Pure and stateless; any
// hysteresis or dwell filtering belongs to the stage machine.
//
// A height equal to a threshold counts as the closer class. Any detection
// below the near threshold classifies as far: the far threshold marks the
// edge of the usable detection range and is kept for calibration checks
// and diagnostics, not for bucketing.
func Classify(s Sample, calib Calibration) (Class, error) {
	if !s.Detected {
		return ClassNone, nil
	}
	if s.BBoxHeight < 0 {
		return ClassNone, fmt.Errorf("%w: negative bbox height %v", ErrInvalidSample, s.BBoxHeight)
	}
	switch {
	case s.BBoxHeight >= calib.VeryNearPx:
		return ClassVeryNear, nil
	case s.BBoxHeight >= calib.NearPx:
		return ClassNear, nil
	default:
		return ClassFar, nil
	}
}
