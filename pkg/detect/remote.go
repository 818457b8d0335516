package detect

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cmerch/go-kiosk/internal/log"
	"github.com/cmerch/go-kiosk/pkg/protocol"
	"github.com/cmerch/go-kiosk/pkg/proximity"
)

const (
	dialTimeout      = 10 * time.Second
	reconnectBackoff = 2 * time.Second
	readDeadline     = 30 * time.Second
)

// RemoteFeed consumes detection samples from an external inference process
// (the YOLO runner) over a websocket. It reconnects forever; while the feed
// is down the orchestrator simply keeps reusing its last sample until the
// stage machine's own timeouts recycle the kiosk.
type RemoteFeed struct {
	url    string
	latest *Latest

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewRemoteFeed creates a feed for the given ws:// URL.
func NewRemoteFeed(url string) *RemoteFeed {
	return &RemoteFeed{
		url:    url,
		latest: &Latest{},
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Run dials and reads until Close is called. Call in a goroutine.
func (f *RemoteFeed) Run() {
	defer close(f.done)

	for {
		select {
		case <-f.stop:
			return
		default:
		}

		conn, err := f.dial()
		if err != nil {
			log.Warn("detector feed connect failed", "url", f.url, "err", err)
			select {
			case <-f.stop:
				return
			case <-time.After(reconnectBackoff):
				continue
			}
		}

		f.track(conn, true)
		f.readLoop(conn)
		f.track(nil, false)
		conn.Close()
	}
}

func (f *RemoteFeed) dial() (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: dialTimeout,
	}
	conn, _, err := dialer.Dial(f.url, nil)
	return conn, err
}

func (f *RemoteFeed) readLoop(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		select {
		case <-f.stop:
			return
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Warn("detector feed read failed", "err", err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(readDeadline))

		msg, err := protocol.ParseMessage(raw)
		if err != nil {
			log.Warn("detector feed bad message", "err", err)
			continue
		}

		switch msg.Type {
		case protocol.TypeHello:
			var hello protocol.HelloData
			if err := msg.ParseData(&hello); err == nil {
				log.Info("detector feed connected",
					"name", hello.Name, "model", hello.Model, "camera", hello.Camera)
			}

		case protocol.TypeDetection:
			var det protocol.DetectionData
			if err := msg.ParseData(&det); err != nil {
				log.Warn("detector feed bad detection", "err", err)
				continue
			}
			f.latest.Store(proximity.Sample{
				Detected:   det.Detected,
				BBoxHeight: det.BBoxHeight,
				Confidence: det.Confidence,
				Timestamp:  time.Now(),
			})

		case protocol.TypePing:
			if out, err := protocol.NewMessage(protocol.TypePong, nil); err == nil {
				if data, err := out.Bytes(); err == nil {
					conn.WriteMessage(websocket.TextMessage, data)
				}
			}
		}
	}
}

func (f *RemoteFeed) track(conn *websocket.Conn, up bool) {
	f.mu.Lock()
	f.conn = conn
	f.connected = up
	f.mu.Unlock()
}

// Connected reports whether the feed currently has a live connection.
func (f *RemoteFeed) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Poll returns the latest sample, reporting whether it is new.
func (f *RemoteFeed) Poll() (proximity.Sample, bool) {
	return f.latest.Poll()
}

// Close stops the feed and tears down any live connection.
func (f *RemoteFeed) Close() error {
	f.stopOnce.Do(func() {
		close(f.stop)
		f.mu.Lock()
		if f.conn != nil {
			f.conn.Close() // unblocks the read loop
		}
		f.mu.Unlock()
	})
	<-f.done
	return nil
}
