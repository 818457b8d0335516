package detect

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/cmerch/go-kiosk/internal/log"
	"github.com/cmerch/go-kiosk/pkg/proximity"
)

// HOGConfig holds local detector settings.
type HOGConfig struct {
	CameraIndex int
	Width       int           // Capture width, 0 keeps the camera default
	Height      int           // Capture height, 0 keeps the camera default
	Interval    time.Duration // Time between inference passes
}

// DefaultHOGConfig returns settings for a portrait kiosk camera.
func DefaultHOGConfig() HOGConfig {
	return HOGConfig{
		CameraIndex: 0,
		Width:       540,
		Height:      960,
		Interval:    100 * time.Millisecond,
	}
}

// HOGDetector captures frames from a local camera and detects people with
// OpenCV's HOG pedestrian detector. It is the built-in fallback when no
// external inference process is available.
type HOGDetector struct {
	cfg    HOGConfig
	cap    *gocv.VideoCapture
	hog    gocv.HOGDescriptor
	latest *Latest

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewHOG opens the camera and prepares the people detector.
func NewHOG(cfg HOGConfig) (*HOGDetector, error) {
	cap, err := gocv.OpenVideoCapture(cfg.CameraIndex)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", cfg.CameraIndex, err)
	}
	if cfg.Width > 0 {
		cap.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		cap.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	hog := gocv.NewHOGDescriptor()
	if err := hog.SetSVMDetector(gocv.HOGDefaultPeopleDetector()); err != nil {
		hog.Close()
		cap.Close()
		return nil, fmt.Errorf("init HOG detector: %w", err)
	}

	return &HOGDetector{
		cfg:    cfg,
		cap:    cap,
		hog:    hog,
		latest: &Latest{},
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Run captures and detects until Close is called. Call in a goroutine.
func (d *HOGDetector) Run() {
	defer close(d.done)

	img := gocv.NewMat()
	defer img.Close()

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	log.Info("local HOG detector started", "camera", d.cfg.CameraIndex, "interval", d.cfg.Interval)

	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			if ok := d.cap.Read(&img); !ok || img.Empty() {
				continue
			}
			d.process(&img)
		}
	}
}

func (d *HOGDetector) process(img *gocv.Mat) {
	now := time.Now()
	rects := d.hog.DetectMultiScale(*img)

	dets := make([]Detection, 0, len(rects))
	for _, r := range rects {
		dets = append(dets, Detection{
			X: r.Min.X,
			Y: r.Min.Y,
			W: r.Dx(),
			H: r.Dy(),
			// HOG has no per-detection score; height breaks ties.
			Confidence: 1,
		})
	}

	best := SelectBest(dets)
	if best == nil {
		d.latest.Store(proximity.Sample{Timestamp: now})
		return
	}
	d.latest.Store(proximity.Sample{
		Detected:   true,
		BBoxHeight: float64(best.H),
		Confidence: best.Confidence,
		Timestamp:  now,
	})
}

// Poll returns the latest sample, reporting whether it is new.
func (d *HOGDetector) Poll() (proximity.Sample, bool) {
	return d.latest.Poll()
}

// Close stops the capture loop and releases camera resources.
func (d *HOGDetector) Close() error {
	d.stopOnce.Do(func() {
		close(d.stop)
	})
	<-d.done
	if err := d.hog.Close(); err != nil {
		log.Warn("close HOG descriptor", "err", err)
	}
	return d.cap.Close()
}
