package web

import (
	"log/slog"
	"strings"

	"github.com/gofiber/contrib/websocket"

	"github.com/teslashibe/go-pupper/internal/log"
	"github.com/teslashibe/go-pupper/pkg/assistant"
	"github.com/teslashibe/go-pupper/pkg/hub"
	"github.com/teslashibe/go-pupper/pkg/protocol"
)

// handleCommandWS runs each command frame and answers with a reply or
// error message. Frames may be protocol messages or bare text.
func (s *Server) handleCommandWS(c *websocket.Conn) {
	logger := s.logger.With("remote", c.RemoteAddr().String())
	logger.Info("command client connected")
	defer logger.Info("command client disconnected")

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}

		out := s.commandFrame(data)
		if out == nil {
			continue
		}
		b, err := out.Bytes()
		if err != nil {
			logger.Error("encode reply", "error", err)
			continue
		}
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}

func (s *Server) commandFrame(data []byte) *protocol.Message {
	text := strings.TrimSpace(string(data))
	if strings.HasPrefix(text, "{") {
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			return errorMessage(err.Error())
		}
		switch msg.Type {
		case protocol.TypePing:
			var ping protocol.PingData
			_ = msg.ParseData(&ping)
			pong, _ := protocol.NewPongMessage(ping.ID)
			return pong
		case protocol.TypeCommand:
			if text, err = msg.Text(); err != nil {
				return errorMessage(err.Error())
			}
		default:
			return errorMessage("unsupported message type " + string(msg.Type))
		}
	}
	if text == "" {
		return errorMessage("text is required")
	}
	if s.cfg.Assistant == nil {
		return errorMessage("assistant not configured")
	}

	reply, err := s.cfg.Assistant.Handle(s.ctx, text)
	if err != nil {
		return errorMessage(err.Error())
	}
	msg, _ := protocol.NewTextMessage(protocol.TypeReply, reply)
	return msg
}

func errorMessage(text string) *protocol.Message {
	msg, _ := protocol.NewTextMessage(protocol.TypeError, text)
	return msg
}

// Publish returns an assistant event sink that broadcasts each event on
// h as a protocol message.
func Publish(h *hub.Hub, logger *slog.Logger) func(assistant.Event) {
	if logger == nil {
		logger = log.Component("web")
	}
	return func(e assistant.Event) {
		var (
			msg *protocol.Message
			err error
		)
		switch e.Kind {
		case assistant.EventState:
			msg, err = protocol.NewStateMessage(e.Text)
		case assistant.EventCommand:
			msg, err = protocol.NewTextMessage(protocol.TypeCommand, e.Text)
		case assistant.EventTool:
			msg, err = protocol.NewTextMessage(protocol.TypeTool, e.Text)
		case assistant.EventReply:
			msg, err = protocol.NewTextMessage(protocol.TypeReply, e.Text)
		default:
			return
		}
		if err == nil {
			msg.Timestamp = e.Time.UnixMilli()
			err = h.Publish(msg)
		}
		if err != nil {
			logger.Warn("event not published", "kind", e.Kind, "error", err)
		}
	}
}
