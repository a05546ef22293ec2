package toolproc

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/teslashibe/go-pupper/pkg/tools"
)

// Server exposes a tools.Provider over JSON-RPC.
type Server struct {
	provider tools.Provider
	info     Implementation
	logger   *slog.Logger
}

// NewServer creates a server for provider.
func NewServer(provider tools.Provider, info Implementation, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		provider: provider,
		info:     info,
		logger:   logger.With("component", "toolproc.server"),
	}
}

// Serve handles requests on rwc until the peer disconnects or ctx ends.
// Requests are handled one at a time in arrival order.
func (s *Server) Serve(ctx context.Context, rwc io.ReadWriteCloser) error {
	conn := jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(rwc, jsonrpc2.PlainObjectCodec{}),
		jsonrpc2.HandlerWithError(s.handle),
	)
	s.logger.Info("serving tools", "server_name", s.info.Name)

	select {
	case <-ctx.Done():
		_ = conn.Close()
		return ctx.Err()
	case <-conn.DisconnectNotify():
		s.logger.Info("client disconnected")
		return nil
	}
}

func (s *Server) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	switch req.Method {
	case MethodInitialize:
		return initializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    map[string]any{"tools": map[string]any{}},
			ServerInfo:      s.info,
		}, nil

	case MethodInitialized:
		return nil, nil

	case MethodPing:
		return struct{}{}, nil

	case MethodToolsList:
		list, err := s.provider.ListTools(ctx)
		if err != nil {
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: err.Error()}
		}
		return listResult{Tools: list}, nil

	case MethodToolsCall:
		var p callParams
		if req.Params == nil || json.Unmarshal(*req.Params, &p) != nil || p.Name == "" {
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "tools/call needs a tool name"}
		}
		return s.call(ctx, p), nil
	}

	if req.Notif {
		return nil, nil
	}
	return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not found: " + req.Method}
}

func (s *Server) call(ctx context.Context, p callParams) callResult {
	s.logger.Info("tool call", "tool", p.Name)
	raw, err := s.provider.ExecuteTool(ctx, p.Name, p.Arguments)
	if err != nil {
		s.logger.Warn("tool call failed", "tool", p.Name, "error", err)
		return callResult{
			Content: []Content{{Type: "text", Text: err.Error()}},
			IsError: true,
		}
	}

	if img, ok := imageContent(raw); ok {
		return callResult{Content: []Content{img}}
	}
	res := callResult{Content: []Content{{Type: "text", Text: string(raw)}}}
	if len(raw) > 0 && raw[0] == '{' {
		res.StructuredContent = raw
	}
	return res
}

// imageContent recognizes results shaped like an image content block.
func imageContent(raw json.RawMessage) (Content, bool) {
	var c Content
	if json.Unmarshal(raw, &c) != nil || c.Type != "image" || c.Data == "" {
		return Content{}, false
	}
	return c, true
}
