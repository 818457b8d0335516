// Package web exposes the kiosk's HTTP surface: a small JSON API for the
// catalog UI and operators, plus websocket feeds for live status and
// transition events.
package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/cmerch/go-kiosk/internal/log"
	"github.com/cmerch/go-kiosk/internal/store"
	"github.com/cmerch/go-kiosk/pkg/hub"
	"github.com/cmerch/go-kiosk/pkg/protocol"
)

// Control is the slice of the orchestrator the HTTP layer needs. Everything
// here is safe to call from handler goroutines.
type Control interface {
	Status() protocol.StatusData
	SignalWebDone()
	SignalInteraction()
	RequestReset()
}

// Server hosts the API and websocket feeds.
type Server struct {
	app     *fiber.App
	port    string
	control Control
	store   *store.Store

	statusHub *hub.Hub
	eventHub  *hub.Hub
}

// NewServer creates the server. The hubs are created by the caller because
// the orchestrator broadcasts into the same hubs the server feeds to
// websocket clients. store may be nil (transitions endpoint returns an
// empty list).
func NewServer(port string, control Control, st *store.Store, statusHub, eventHub *hub.Hub) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "go-kiosk",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	// The catalog UI is served by a separate dev server during development.
	app.Use(cors.New())

	s := &Server{
		app:       app,
		port:      port,
		control:   control,
		store:     st,
		statusHub: statusHub,
		eventHub:  eventHub,
	}
	s.routes()
	return s
}

// Start runs the hubs and listens. Blocks until Shutdown.
func (s *Server) Start() error {
	go s.statusHub.Run()
	go s.eventHub.Run()
	log.Info("web server listening", "port", s.port)
	return s.app.Listen(":" + s.port)
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
