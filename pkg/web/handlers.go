package web

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-pupper/pkg/assistant"
)

// CommandRequest is the body of POST /api/command.
type CommandRequest struct {
	Text string `json:"text"`
}

// CommandResponse is returned by POST /api/command.
type CommandResponse struct {
	Command string `json:"command"`
	Reply   string `json:"reply"`
}

// Status is returned by GET /api/status.
type Status struct {
	State        string `json:"state"`
	Tools        int    `json:"tools"`
	EventClients int    `json:"event_clients"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	st := Status{State: assistant.StateUninitialized.String()}
	if s.cfg.Assistant != nil {
		st.State = s.cfg.Assistant.State().String()
	}
	if s.cfg.Tools != nil {
		if catalog, err := s.cfg.Tools.Catalog(); err == nil {
			st.Tools = len(catalog)
		}
	}
	if s.cfg.Events != nil {
		st.EventClients = s.cfg.Events.ClientCount()
	}
	return c.JSON(st)
}

func (s *Server) handleListTools(c *fiber.Ctx) error {
	if s.cfg.Tools == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "tools not configured")
	}
	catalog, err := s.cfg.Tools.Catalog()
	if err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(catalog)
}

func (s *Server) handleCommand(c *fiber.Ctx) error {
	if s.cfg.Assistant == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "assistant not configured")
	}
	var req CommandRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return fiber.NewError(fiber.StatusBadRequest, "text is required")
	}

	reply, err := s.cfg.Assistant.Handle(c.UserContext(), text)
	switch {
	case errors.Is(err, assistant.ErrBusy):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, assistant.ErrNotReady):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case err != nil:
		return err
	}
	return c.JSON(CommandResponse{Command: text, Reply: reply})
}

func (s *Server) handleConversation(c *fiber.Ctx) error {
	if s.cfg.Assistant == nil {
		return c.JSON([]any{})
	}
	return c.JSON(s.cfg.Assistant.Conversation())
}
