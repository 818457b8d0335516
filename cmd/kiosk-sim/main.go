// kiosk-sim replays a scripted proximity trace through the full classifier
// and stage machine on a synthetic clock. No camera, no media processes, no
// sleeping: a one-minute trace runs in milliseconds, printing every stage
// transition with its simulated timestamp.
//
// Script format, one step per line ('#' starts a comment):
//
//	2s none           hold "nobody there" for 2 seconds
//	1.5s far          hold a far-away detection
//	3s near           hold a near detection
//	2s very_near      hold a very-near detection
//	4s 220            hold a raw bbox height in pixels
//	complete          fire the catalog completion signal
//	interact          fire a web activity ping
//
// Without -script a built-in demo trace of a full customer visit runs.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cmerch/go-kiosk/internal/config"
	"github.com/cmerch/go-kiosk/internal/log"
	"github.com/cmerch/go-kiosk/pkg/playback"
	"github.com/cmerch/go-kiosk/pkg/player"
	"github.com/cmerch/go-kiosk/pkg/proximity"
	"github.com/cmerch/go-kiosk/pkg/stage"
)

type step struct {
	hold   time.Duration
	sample proximity.Sample
	signal string // "complete" or "interact", empty for hold steps
}

const demoScript = `
# one full visit: walk up, stop at the screen, browse, leave
3s none
2s far
2s near
1s very_near
# attract plays, prompt plays, web opens
2s very_near
5s none
complete
2s none
# thank-you video runs out, back to idle
10s none
`

// stubWebView records open/close without a browser.
type stubWebView struct{}

func (stubWebView) Open(url string) error {
	fmt.Printf("          [webview] open %s\n", url)
	return nil
}

func (stubWebView) Close() error { return nil }

func main() {
	var (
		configPath = flag.String("config", "", "optional settings document")
		scriptPath = flag.String("script", "", "trace file (default: built-in demo)")
	)
	flag.Parse()
	log.Init("error") // keep machine internals quiet; the sim prints its own lines

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "kiosk-sim: %v\n", err)
			os.Exit(1)
		}
	}

	text := demoScript
	if *scriptPath != "" {
		data, err := os.ReadFile(*scriptPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "kiosk-sim: %v\n", err)
			os.Exit(1)
		}
		text = string(data)
	}

	steps, err := parseScript(text, cfg.Calibration())
	if err != nil {
		fmt.Fprintf(os.Stderr, "kiosk-sim: %v\n", err)
		os.Exit(1)
	}

	run(cfg, steps)
}

func run(cfg config.Config, steps []step) {
	coord := playback.NewCoordinator()
	machine := stage.NewMachine(cfg.StageConfig(), player.NewSilent(coord), stubWebView{})

	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	now := start

	machine.OnTransition(func(ev stage.Event) {
		fmt.Printf("%8s  %-9s -> %-9s  %s\n",
			ev.At.Sub(start).Round(time.Millisecond), ev.FromS, ev.ToS, ev.Reason)
	})
	machine.Start(now)
	fmt.Printf("%8s  start in %s\n", time.Duration(0), machine.Current())

	rate := cfg.TickRate()
	for _, st := range steps {
		switch st.signal {
		case "complete":
			machine.SignalWebDone()
			continue
		case "interact":
			machine.SignalInteraction()
			continue
		}

		ticks := int(st.hold / rate)
		if ticks < 1 {
			ticks = 1
		}
		for i := 0; i < ticks; i++ {
			now = now.Add(rate)
			class, err := proximity.Classify(st.sample, cfg.Calibration())
			if err != nil {
				class = proximity.ClassNone
			}
			machine.Tick(now, class)
		}
	}

	fmt.Printf("%8s  end in %s\n", now.Sub(start).Round(time.Millisecond), machine.Current())
}

func parseScript(text string, cal proximity.Calibration) ([]step, error) {
	var steps []step
	sc := bufio.NewScanner(strings.NewReader(text))
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) == 1 {
			switch fields[0] {
			case "complete", "interact":
				steps = append(steps, step{signal: fields[0]})
				continue
			}
			return nil, fmt.Errorf("line %d: unknown directive %q", lineno, fields[0])
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: want 'duration class' or a directive", lineno)
		}

		hold, err := time.ParseDuration(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad duration %q: %w", lineno, fields[0], err)
		}

		sample, err := parseSample(fields[1], cal)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineno, err)
		}
		steps = append(steps, step{hold: hold, sample: sample})
	}
	return steps, sc.Err()
}

// parseSample turns a class name into a representative bbox height, or
// accepts a raw height in pixels.
func parseSample(token string, cal proximity.Calibration) (proximity.Sample, error) {
	s := proximity.Sample{Detected: true, Confidence: 0.9}
	switch token {
	case "none":
		return proximity.Sample{}, nil
	case "far":
		s.BBoxHeight = cal.FarPx
	case "near":
		s.BBoxHeight = cal.NearPx
	case "very_near":
		s.BBoxHeight = cal.VeryNearPx
	default:
		h, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return s, fmt.Errorf("bad class or height %q", token)
		}
		s.BBoxHeight = h
	}
	return s, nil
}
