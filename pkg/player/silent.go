package player

import (
	"time"

	"github.com/cmerch/go-kiosk/pkg/playback"
)

// Silent is a player that tracks state on the coordinator without spawning
// any processes. Used by the simulator and on headless machines.
type Silent struct {
	coord *playback.Coordinator
}

// NewSilent wraps the coordinator in a no-op renderer.
func NewSilent(coord *playback.Coordinator) *Silent {
	return &Silent{coord: coord}
}

func (s *Silent) Start(role playback.Role, ref playback.AssetRef, now time.Time) error {
	s.coord.Start(role, ref, now)
	return nil
}

func (s *Silent) Stop(role playback.Role) error {
	s.coord.Stop(role)
	return nil
}

func (s *Silent) StopAll() error {
	s.coord.StopAll()
	return nil
}

func (s *Silent) Finished(role playback.Role, now time.Time) bool {
	return s.coord.Finished(role, now)
}
