package toolproc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sourcegraph/jsonrpc2"
	"go.uber.org/multierr"

	"github.com/teslashibe/go-pupper/internal/config"
	"github.com/teslashibe/go-pupper/pkg/tools"
)

// shutdownGrace is how long a child gets to exit after its stdin closes.
const shutdownGrace = 3 * time.Second

// Client is a tools.Provider backed by a JSON-RPC tool server.
type Client struct {
	name   string
	conn   *jsonrpc2.Conn
	cmd    *exec.Cmd
	logger *slog.Logger

	info Implementation
}

var _ tools.Provider = (*Client)(nil)

// NewClient speaks to a tool server over rwc. Call Initialize before use.
func NewClient(ctx context.Context, name string, rwc io.ReadWriteCloser, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "toolproc", "server", name)

	c := &Client{name: name, logger: logger}
	c.conn = jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(rwc, jsonrpc2.PlainObjectCodec{}),
		jsonrpc2.HandlerWithError(c.handle),
	)
	return c
}

// handle answers server-initiated requests. Only ping is supported.
func (c *Client) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	if req.Method == MethodPing {
		return struct{}{}, nil
	}
	if req.Notif {
		c.logger.Debug("server notification", "method", req.Method)
		return nil, nil
	}
	return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not found: " + req.Method}
}

// Start launches spec as a child process and completes the handshake.
func Start(ctx context.Context, spec config.ServerSpec, logger *slog.Logger) (*Client, error) {
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Name, err)
	}

	c := NewClient(context.Background(), spec.Name, NewStdio(stdout, stdin), logger)
	c.cmd = cmd
	c.logger.Info("tool server started", "command", spec.Command, "pid", cmd.Process.Pid)

	if err := c.Initialize(ctx); err != nil {
		return nil, multierr.Append(fmt.Errorf("initialize %s: %w", spec.Name, err), c.Close())
	}
	return c, nil
}

// StartAll launches every server in specs. On failure the servers that
// did start are closed.
func StartAll(ctx context.Context, specs []config.ServerSpec, logger *slog.Logger) ([]*Client, error) {
	clients := make([]*Client, 0, len(specs))
	for _, spec := range specs {
		c, err := Start(ctx, spec, logger)
		if err != nil {
			for _, started := range clients {
				err = multierr.Append(err, started.Close())
			}
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, nil
}

// Initialize performs the protocol handshake.
func (c *Client) Initialize(ctx context.Context) error {
	params := initializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      Implementation{Name: "pupper", Version: "1.0.0"},
	}
	var res initializeResult
	if err := c.conn.Call(ctx, MethodInitialize, params, &res); err != nil {
		return err
	}
	c.info = res.ServerInfo
	c.logger.Debug("initialized", "server_name", res.ServerInfo.Name, "protocol", res.ProtocolVersion)
	return c.conn.Notify(ctx, MethodInitialized, nil)
}

// ServerInfo returns what the server reported during Initialize.
func (c *Client) ServerInfo() Implementation {
	return c.info
}

// Name implements tools.Provider.
func (c *Client) Name() string {
	return c.name
}

// ListTools implements tools.Provider, following pagination cursors.
func (c *Client) ListTools(ctx context.Context) ([]tools.Tool, error) {
	var (
		all    []tools.Tool
		cursor string
	)
	for {
		var res listResult
		if err := c.conn.Call(ctx, MethodToolsList, listParams{Cursor: cursor}, &res); err != nil {
			return nil, err
		}
		all = append(all, res.Tools...)
		if res.NextCursor == "" || res.NextCursor == cursor {
			return all, nil
		}
		cursor = res.NextCursor
	}
}

// ExecuteTool implements tools.Provider. A result flagged isError is
// returned as {"error": text}.
func (c *Client) ExecuteTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	if args == nil {
		args = map[string]any{}
	}
	var res callResult
	if err := c.conn.Call(ctx, MethodToolsCall, callParams{Name: name, Arguments: args}, &res); err != nil {
		return nil, err
	}

	if res.IsError {
		return json.Marshal(map[string]string{"error": contentText(res.Content)})
	}
	if len(res.StructuredContent) > 0 {
		return res.StructuredContent, nil
	}
	if len(res.Content) == 1 {
		block := res.Content[0]
		if block.Type != "text" {
			return json.Marshal(block)
		}
		if json.Valid([]byte(block.Text)) {
			return json.RawMessage(block.Text), nil
		}
		return json.Marshal(block.Text)
	}
	return json.Marshal(res.Content)
}

func contentText(blocks []Content) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == "text" {
			parts = append(parts, b.Text)
		}
	}
	if len(parts) == 0 {
		return "tool reported an error"
	}
	return strings.Join(parts, "\n")
}

// Close ends the connection and, for a child process, waits for it to
// exit before killing it.
func (c *Client) Close() error {
	err := c.conn.Close()
	if errors.Is(err, jsonrpc2.ErrClosed) {
		err = nil
	}
	if c.cmd == nil || c.cmd.Process == nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()
	select {
	case werr := <-done:
		var exitErr *exec.ExitError
		if werr != nil && !errors.As(werr, &exitErr) {
			err = multierr.Append(err, werr)
		}
	case <-time.After(shutdownGrace):
		c.logger.Warn("tool server did not exit, killing")
		err = multierr.Append(err, c.cmd.Process.Kill())
		<-done
	}
	c.logger.Info("tool server stopped")
	return err
}
