// Package player renders the playback coordinator's decisions with an
// external media player process (mpv by default). One process per role;
// starting a role kills its predecessor first so at most one asset plays
// per role.
package player

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/cmerch/go-kiosk/internal/log"
	"github.com/cmerch/go-kiosk/pkg/playback"
)

// ExecPlayer drives media through a command-line player while the
// coordinator keeps the authoritative per-role clocks. The stage machine's
// Finished checks answer off the coordinator, never off process exit, so
// timing stays deterministic even if a player process dies early.
type ExecPlayer struct {
	coord      *playback.Coordinator
	binary     string
	fullscreen bool

	mu    sync.Mutex
	procs map[playback.Role]*proc
}

type proc struct {
	cmd *exec.Cmd
	gen uint64 // invalidates a pending delayed start
}

// New creates a player using the given binary ("mpv"). fullscreen applies
// to video roles only.
func New(coord *playback.Coordinator, binary string, fullscreen bool) *ExecPlayer {
	return &ExecPlayer{
		coord:      coord,
		binary:     binary,
		fullscreen: fullscreen,
		procs:      make(map[playback.Role]*proc),
	}
}

// Start begins playing ref on the role. A missing asset file is an error;
// the coordinator is still updated so stage timing proceeds without media.
func (p *ExecPlayer) Start(role playback.Role, ref playback.AssetRef, now time.Time) error {
	p.coord.Start(role, ref, now)

	if _, err := os.Stat(ref.Path); err != nil {
		return fmt.Errorf("asset %s: %w", ref.Name, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.killLocked(role)
	entry := &proc{}
	p.procs[role] = entry
	gen := entry.gen

	if ref.Delay > 0 {
		// The delayed start is dropped if the role is stopped or restarted
		// before the delay elapses.
		time.AfterFunc(ref.Delay, func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			cur, ok := p.procs[role]
			if !ok || cur != entry || cur.gen != gen {
				return
			}
			if err := p.spawnLocked(role, ref, entry); err != nil {
				log.Warn("delayed playback start failed", "asset", ref.Name, "err", err)
			}
		})
		return nil
	}

	return p.spawnLocked(role, ref, entry)
}

// spawnLocked launches the player process for one role. Caller holds mu.
func (p *ExecPlayer) spawnLocked(role playback.Role, ref playback.AssetRef, entry *proc) error {
	args := []string{"--no-terminal", "--really-quiet"}
	if ref.Loop {
		args = append(args, "--loop-file=inf")
	}
	switch role {
	case playback.RoleOverlayAudio:
		args = append(args, "--no-video")
	default:
		if p.fullscreen {
			args = append(args, "--fs")
		}
	}
	args = append(args, ref.Path)

	cmd := exec.Command(p.binary, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s for %s: %w", p.binary, ref.Name, err)
	}
	entry.cmd = cmd

	go func() {
		cmd.Wait()
	}()

	log.Debug("playback started", "role", role.String(), "asset", ref.Name, "pid", cmd.Process.Pid)
	return nil
}

// Stop clears the role and kills its process. Idempotent.
func (p *ExecPlayer) Stop(role playback.Role) error {
	p.coord.Stop(role)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killLocked(role)
	return nil
}

// StopAll clears every role.
func (p *ExecPlayer) StopAll() error {
	p.coord.StopAll()
	p.mu.Lock()
	defer p.mu.Unlock()
	for role := range p.procs {
		p.killLocked(role)
	}
	return nil
}

// Finished reports whether the role's non-looping asset has played through,
// measured on the coordinator's clock.
func (p *ExecPlayer) Finished(role playback.Role, now time.Time) bool {
	return p.coord.Finished(role, now)
}

func (p *ExecPlayer) killLocked(role playback.Role) {
	entry, ok := p.procs[role]
	if !ok {
		return
	}
	entry.gen++
	if entry.cmd != nil && entry.cmd.Process != nil {
		entry.cmd.Process.Kill()
	}
	delete(p.procs, role)
}
