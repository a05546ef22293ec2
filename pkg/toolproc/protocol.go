// Package toolproc runs tool servers as separate processes speaking
// JSON-RPC 2.0 over stdio, and serves a tools.Provider the same way.
//
// Messages are newline-delimited JSON objects. The methods are the
// subset of the Model Context Protocol that tool routing needs:
// initialize, notifications/initialized, ping, tools/list and tools/call.
package toolproc

import (
	"encoding/json"
	"io"

	"go.uber.org/multierr"

	"github.com/teslashibe/go-pupper/pkg/tools"
)

// ProtocolVersion is sent during the initialize handshake.
const ProtocolVersion = "2025-06-18"

// Method names.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodPing        = "ping"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
)

// Implementation names a client or server.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      Implementation `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      Implementation `json:"serverInfo"`
}

type listParams struct {
	Cursor string `json:"cursor,omitempty"`
}

type listResult struct {
	Tools      []tools.Tool `json:"tools"`
	NextCursor string       `json:"nextCursor,omitempty"`
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Content is one block of a tools/call result.
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

type callResult struct {
	Content           []Content       `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool            `json:"isError,omitempty"`
}

// stdio joins a reader and a writer into one stream.
type stdio struct {
	r io.ReadCloser
	w io.WriteCloser
}

// NewStdio wraps separate read and write ends, e.g. os.Stdin and os.Stdout.
func NewStdio(r io.ReadCloser, w io.WriteCloser) io.ReadWriteCloser {
	return stdio{r: r, w: w}
}

func (s stdio) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s stdio) Write(p []byte) (int, error) { return s.w.Write(p) }

func (s stdio) Close() error {
	return multierr.Append(s.w.Close(), s.r.Close())
}
