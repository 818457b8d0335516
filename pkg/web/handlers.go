package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/cmerch/go-kiosk/internal/log"
	"github.com/cmerch/go-kiosk/internal/store"
	"github.com/cmerch/go-kiosk/pkg/hub"
)

func (s *Server) routes() {
	api := s.app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/transitions", s.handleTransitions)
	api.Post("/complete", s.handleComplete)
	api.Post("/interact", s.handleInteract)
	api.Post("/reset", s.handleReset)

	// Websocket upgrade gate
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws/status", websocket.New(func(conn *websocket.Conn) {
		hub.NewClient(s.statusHub, conn).Run()
	}))
	s.app.Get("/ws/events", websocket.New(func(conn *websocket.Conn) {
		hub.NewClient(s.eventHub, conn).Run()
	}))
}

// handleStatus returns the orchestrator snapshot.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.control.Status())
}

// handleTransitions returns recent stage changes, newest first.
func (s *Server) handleTransitions(c *fiber.Ctx) error {
	if s.store == nil {
		return c.JSON([]store.Transition{})
	}
	limit := c.QueryInt("limit", 50)
	list, err := s.store.RecentTransitions(limit)
	if err != nil {
		log.Error("query transitions", "err", err)
		return fiber.NewError(fiber.StatusInternalServerError, "query failed")
	}
	if list == nil {
		list = []store.Transition{}
	}
	return c.JSON(list)
}

// handleComplete is called by the catalog UI when the customer finishes.
// The stage machine consumes the signal on its next tick.
func (s *Server) handleComplete(c *fiber.Ctx) error {
	s.control.SignalWebDone()
	return c.JSON(fiber.Map{"ok": true})
}

// handleInteract is the catalog UI's activity ping. Keeps the web stage's
// idle timeout from firing while someone is actually browsing.
func (s *Server) handleInteract(c *fiber.Ctx) error {
	s.control.SignalInteraction()
	return c.JSON(fiber.Map{"ok": true})
}

// handleReset is the operator override back to the idle loop.
func (s *Server) handleReset(c *fiber.Ctx) error {
	log.Info("manual reset requested", "ip", c.IP())
	s.control.RequestReset()
	return c.JSON(fiber.Map{"ok": true})
}
