// Package webview launches and tears down the kiosk's catalog browser.
//
// The browser is an external process started in kiosk mode. Open is
// fire-and-forget: the stage machine does not wait for the page, it only
// needs the window up. Close must be idempotent because it is called both
// on the WEB exit path and again on shutdown.
package webview

import (
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/cmerch/go-kiosk/internal/httpc"
	"github.com/cmerch/go-kiosk/internal/log"
)

// Controller manages a single browser process.
type Controller struct {
	binary     string
	fullscreen bool
	extraArgs  []string

	mu  sync.Mutex
	cmd *exec.Cmd
}

// Option configures a Controller.
type Option func(*Controller)

// WithArgs appends extra command-line arguments to the browser invocation.
func WithArgs(args ...string) Option {
	return func(c *Controller) { c.extraArgs = append(c.extraArgs, args...) }
}

// New creates a controller for the given browser binary ("chromium-browser",
// "chromium", "google-chrome"). fullscreen selects kiosk mode.
func New(binary string, fullscreen bool, opts ...Option) *Controller {
	c := &Controller{binary: binary, fullscreen: fullscreen}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Open launches the browser pointed at url, replacing any previous window.
// It returns as soon as the process is spawned: Open runs inside the
// orchestrator tick, so nothing here may wait on the network. A readiness
// probe against the URL runs on its own goroutine and is logged but never
// fatal; the catalog server may still be warming up and the browser will
// retry itself.
func (c *Controller) Open(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.killLocked()

	go probeTarget(url)

	args := []string{
		"--noerrdialogs",
		"--disable-infobars",
		"--no-first-run",
	}
	if c.fullscreen {
		args = append(args, "--kiosk")
	}
	args = append(args, c.extraArgs...)
	args = append(args, url)

	cmd := exec.Command(c.binary, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch %s: %w", c.binary, err)
	}
	c.cmd = cmd

	// Reap the process so a crashed browser does not linger as a zombie.
	go func() {
		err := cmd.Wait()
		c.mu.Lock()
		if c.cmd == cmd {
			c.cmd = nil
			if err != nil {
				log.Warn("web view exited", "err", err)
			}
		}
		c.mu.Unlock()
	}()

	log.Info("web view opened", "url", url, "pid", cmd.Process.Pid)
	return nil
}

// Close terminates the browser if one is running. Idempotent.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.killLocked()
	return nil
}

// Running reports whether a browser process is currently alive.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cmd != nil
}

func probeTarget(url string) {
	resp, err := httpc.NewClient(2 * time.Second).Get(url)
	if err != nil {
		log.Warn("web view target not reachable yet", "url", url, "err", err)
		return
	}
	resp.Body.Close()
}

func (c *Controller) killLocked() {
	if c.cmd == nil || c.cmd.Process == nil {
		c.cmd = nil
		return
	}
	pid := c.cmd.Process.Pid
	if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		c.cmd.Process.Kill()
	}
	log.Debug("web view closed", "pid", pid)
	c.cmd = nil
}
