// kioskd is the kiosk daemon: camera in, stages out.
//
// It runs the detector, the stage orchestrator, media playback, the catalog
// browser and the HTTP/websocket surface, and shuts everything down cleanly
// on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cmerch/go-kiosk/internal/config"
	"github.com/cmerch/go-kiosk/internal/log"
	"github.com/cmerch/go-kiosk/internal/store"
	"github.com/cmerch/go-kiosk/pkg/detect"
	"github.com/cmerch/go-kiosk/pkg/hub"
	"github.com/cmerch/go-kiosk/pkg/kiosk"
	"github.com/cmerch/go-kiosk/pkg/playback"
	"github.com/cmerch/go-kiosk/pkg/player"
	"github.com/cmerch/go-kiosk/pkg/stage"
	"github.com/cmerch/go-kiosk/pkg/web"
	"github.com/cmerch/go-kiosk/pkg/webview"
)

func main() {
	var (
		configPath = flag.String("config", "settings.json", "path to the settings document")
		browserBin = flag.String("browser", "chromium-browser", "browser binary for the catalog web view")
		playerBin  = flag.String("player", "mpv", "media player binary")
		silent     = flag.Bool("silent", false, "track playback state without spawning player processes")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kioskd: %v\n", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)
	log.Info("kioskd starting", "config", *configPath, "debug", cfg.DebugMode)

	if err := run(cfg, *browserBin, *playerBin, *silent); err != nil &&
		!errors.Is(err, context.Canceled) {
		log.Error("kioskd exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, browserBin, playerBin string, silent bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Playback and display
	coord := playback.NewCoordinator()
	var pl stage.Player
	if silent {
		pl = player.NewSilent(coord)
	} else {
		pl = player.New(coord, playerBin, cfg.Fullscreen)
	}
	wv := webview.New(browserBin, cfg.Fullscreen)

	machine := stage.NewMachine(cfg.StageConfig(), pl, wv)

	// Detector: external inference feed when configured, local HOG otherwise.
	var (
		det       kiosk.Detector
		connected func() bool
	)
	if cfg.DetectorURL != "" {
		feed := detect.NewRemoteFeed(cfg.DetectorURL)
		go feed.Run()
		defer feed.Close()
		det = feed
		connected = feed.Connected
	} else {
		hogCfg := detect.DefaultHOGConfig()
		hogCfg.CameraIndex = cfg.CameraIndex
		hogCfg.Interval = cfg.TickRate()
		hog, err := detect.NewHOG(hogCfg)
		if err != nil {
			return fmt.Errorf("local detector: %w", err)
		}
		go hog.Run()
		defer hog.Close()
		det = hog
		connected = func() bool { return true }
	}

	// Activity log
	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("activity store: %w", err)
	}
	defer st.Close()

	statusHub := hub.New("status")
	eventHub := hub.New("events")

	orch := kiosk.New(kiosk.Options{
		Calibration: cfg.Calibration(),
		TickRate:    cfg.TickRate(),
		Machine:     machine,
		Detector:    det,
		Connected:   connected,
		Store:       st,
		StatusHub:   statusHub,
		EventHub:    eventHub,
	})

	server := web.NewServer(cfg.HTTPPort, orch, st, statusHub, eventHub)
	go func() {
		if err := server.Start(); err != nil {
			log.Error("web server failed", "err", err)
			stop()
		}
	}()
	defer server.Shutdown()

	return orch.Run(ctx)
}
