package toolproc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/teslashibe/go-pupper/internal/config"
	"github.com/teslashibe/go-pupper/pkg/tools"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testProvider() *tools.Local {
	l := tools.NewLocal("test")
	l.Register(tools.Tool{
		Name:        "set_face",
		Description: "Change the face",
		InputSchema: tools.Object(map[string]tools.Property{
			"face": {Type: "string", Description: "Face name"},
		}, "face"),
	}, func(_ context.Context, args map[string]any) (any, error) {
		return map[string]any{"success": true, "face": args["face"]}, nil
	})
	l.Register(tools.Tool{Name: "explode"}, func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("kaboom")
	})
	l.Register(tools.Tool{Name: "snapshot"}, func(context.Context, map[string]any) (any, error) {
		return Content{Type: "image", Data: "iVBORw0K", MimeType: "image/png"}, nil
	})
	l.Register(tools.Tool{Name: "greet"}, func(context.Context, map[string]any) (any, error) {
		return "woof", nil
	})
	return l
}

// connect wires a client to a server over an in-memory pipe.
func connect(t *testing.T) (*Client, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	serverEnd, clientEnd := net.Pipe()

	srv := NewServer(testProvider(), Implementation{Name: "pupper-tools", Version: "test"}, quiet())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, serverEnd)
	}()

	c := NewClient(ctx, "test", clientEnd, quiet())
	t.Cleanup(func() {
		_ = c.Close()
		cancel()
		<-done
	})
	return c, cancel
}

func TestHandshakeAndList(t *testing.T) {
	c, _ := connect(t)
	ctx := context.Background()

	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if c.ServerInfo().Name != "pupper-tools" {
		t.Errorf("ServerInfo = %+v", c.ServerInfo())
	}

	list, err := c.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(list) != 4 {
		t.Fatalf("got %d tools, want 4", len(list))
	}
	face := list[0]
	if face.Name != "set_face" || face.InputSchema.Required[0] != "face" {
		t.Errorf("tool = %+v", face)
	}
	if face.InputSchema.Properties["face"].Description != "Face name" {
		t.Errorf("schema lost in transit: %+v", face.InputSchema)
	}
}

func TestExecuteTool(t *testing.T) {
	c, _ := connect(t)
	ctx := context.Background()
	if err := c.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		tool string
		want string
	}{
		{"object result", "set_face", `{"face":"happy","success":true}`},
		{"execution error", "explode", `{"error":"kaboom"}`},
		{"unknown tool", "missing", `{"error":"unknown tool \"missing\""}`},
		{"string result", "greet", `"woof"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := c.ExecuteTool(ctx, tt.tool, map[string]any{"face": "happy"})
			if err != nil {
				t.Fatalf("ExecuteTool: %v", err)
			}
			if string(raw) != tt.want {
				t.Errorf("got %s, want %s", raw, tt.want)
			}
		})
	}
}

func TestExecuteImageTool(t *testing.T) {
	c, _ := connect(t)
	ctx := context.Background()

	raw, err := c.ExecuteTool(ctx, "snapshot", nil)
	if err != nil {
		t.Fatal(err)
	}
	var got Content
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.Type != "image" || got.MimeType != "image/png" || got.Data == "" {
		t.Errorf("content = %+v", got)
	}
}

func TestUnknownMethod(t *testing.T) {
	c, _ := connect(t)

	var out any
	err := c.conn.Call(context.Background(), "resources/list", nil, &out)
	var rpcErr *jsonrpc2.Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("err = %v, want *jsonrpc2.Error", err)
	}
	if rpcErr.Code != jsonrpc2.CodeMethodNotFound {
		t.Errorf("code = %d", rpcErr.Code)
	}
}

func TestDispatcherOverProcessBoundary(t *testing.T) {
	c, _ := connect(t)
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	d := tools.NewDispatcher([]tools.Provider{c}, tools.WithLogger(quiet()), tools.WithRetry(1, 0))
	if err := d.Discover(context.Background()); err != nil {
		t.Fatal(err)
	}
	got, used := d.DispatchText(context.Background(), `{"tool":"set_face","arguments":{"face":"sleepy"}}`)
	if !used || !strings.Contains(got, `"face":"sleepy"`) {
		t.Errorf("got %q", got)
	}
}

func TestServeStopsOnDisconnect(t *testing.T) {
	serverEnd, clientEnd := net.Pipe()
	srv := NewServer(testProvider(), Implementation{Name: "x"}, quiet())

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(context.Background(), serverEnd) }()

	clientEnd.Close()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Serve = %v, want nil on disconnect", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after the client left")
	}
}

func TestStartMissingCommand(t *testing.T) {
	_, err := Start(context.Background(), config.ServerSpec{
		Name:    "ghost",
		Command: "definitely-not-a-real-tool-server",
	}, quiet())
	if err == nil {
		t.Fatal("expected an error")
	}
}
