// Package detect provides person detection feeds for the kiosk.
//
// Two feeds are available: a local gocv HOG detector and a websocket client
// for an external inference process. Both publish into a single-slot
// latest-sample handoff that the orchestrator polls once per tick.
package detect

import (
	"sync"
	"time"

	"github.com/cmerch/go-kiosk/pkg/proximity"
)

// Detection is one person bounding box in camera pixels.
type Detection struct {
	X, Y       int     // Top-left corner
	W, H       int     // Width and height in pixels
	Confidence float64 // Detection confidence (0-1); 1 when the backend has none
}

// SelectBest picks the detection to track when several people are visible.
// Priority: confidence first, bbox height (closeness) as a tiebreak weight.
func SelectBest(dets []Detection) *Detection {
	if len(dets) == 0 {
		return nil
	}
	if len(dets) == 1 {
		return &dets[0]
	}

	maxH := 0
	for _, d := range dets {
		if d.H > maxH {
			maxH = d.H
		}
	}

	bestScore := -1.0
	var best *Detection
	for i := range dets {
		score := dets[i].Confidence*0.7 + (float64(dets[i].H)/float64(maxH))*0.3
		if score > bestScore {
			bestScore = score
			best = &dets[i]
		}
	}
	return best
}

// Latest is the single-slot sample handoff between a detector feed and the
// orchestrator. The writer overwrites, the reader never blocks, and Poll
// reports whether the sample is new since the last poll.
type Latest struct {
	mu     sync.Mutex
	sample proximity.Sample
	fresh  bool
}

// Store publishes a sample, overwriting any unread one.
func (l *Latest) Store(s proximity.Sample) {
	l.mu.Lock()
	l.sample = s
	l.fresh = true
	l.mu.Unlock()
}

// Poll returns the latest sample. The second return is false when nothing
// new arrived since the previous poll; the caller reuses its last sample.
func (l *Latest) Poll() (proximity.Sample, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fresh := l.fresh
	l.fresh = false
	return l.sample, fresh
}

// Age returns how old the stored sample is, or false when none was stored.
func (l *Latest) Age(now time.Time) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sample.Timestamp.IsZero() {
		return 0, false
	}
	return now.Sub(l.sample.Timestamp), true
}
