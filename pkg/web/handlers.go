package web

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-jarvis/pkg/hub"
	"github.com/teslashibe/go-jarvis/pkg/session"
)

const defaultLimit = 50

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	State   string `json:"state"`
	Session string `json:"session,omitempty"`
	Viewers int    `json:"viewers"`
}

// AskRequest is the body of POST /api/ask.
type AskRequest struct {
	Q string `json:"q"`
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	if err := s.ctrl.Start(s.runCtx); err != nil {
		if errors.Is(err, session.ErrAlreadyRunning) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Already listening"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "listening", "session": s.ctrl.SessionID()})
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	if err := s.ctrl.Stop(); err != nil {
		if errors.Is(err, session.ErrNotRunning) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Not listening"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "stopped"})
}

func (s *Server) handleAsk(c *fiber.Ctx) error {
	if s.ask == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Ask not configured"})
	}

	var req AskRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	q := strings.TrimSpace(req.Q)
	if q == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No prompt provided"})
	}

	return c.JSON(fiber.Map{"response": s.ask(c.UserContext(), q)})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	resp := StatusResponse{State: s.ctrl.State().String(), Session: s.ctrl.SessionID()}
	if s.logs != nil {
		resp.Viewers = s.logs.ClientCount()
	}
	return c.JSON(resp)
}

func (s *Server) handleConversation(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultLimit)

	if s.messages != nil {
		msgs, err := s.messages.RecentMessages(c.UserContext(), limit)
		if err != nil {
			s.logger.Warn("history lookup failed", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "History unavailable"})
		}
		if msgs == nil {
			return c.JSON([]any{})
		}
		return c.JSON(msgs)
	}

	if s.conv != nil {
		return c.JSON(s.conv.Recent(limit))
	}
	return c.JSON([]any{})
}

func (s *Server) handleLogs(c *fiber.Ctx) error {
	if s.logs == nil {
		return c.JSON([]any{})
	}
	return c.JSON(s.logs.Recent(c.QueryInt("limit", 0)))
}

func (s *Server) handleTelemetry(c *fiber.Ctx) error {
	if s.lab == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Lab telemetry not configured"})
	}
	r, ok := s.lab.Latest()
	if !ok {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "No reading yet"})
	}
	return c.JSON(r)
}

// handleLogsWS replays the backlog, then streams new entries.
func (s *Server) handleLogsWS(conn *websocket.Conn) {
	if s.logs == nil {
		return
	}

	client := hub.NewClient(s.logs, conn)
	if client == nil {
		return
	}
	client.Run()
}
