package rosbridge

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// peer is the server side of one test connection.
type peer struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (p *peer) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	p.sendRaw(string(data))
}

func (p *peer) sendRaw(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.ws.WriteMessage(websocket.TextMessage, []byte(s))
}

// hangUp drops the connection without a close handshake.
func (p *peer) hangUp() {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.ws.UnderlyingConn().Close()
}

func (p *peer) after(d time.Duration, v any) {
	time.AfterFunc(d, func() { p.send(v) })
}

type received struct {
	env Envelope
	at  time.Time
}

// fakeBridge is a scripted rosbridge server.
type fakeBridge struct {
	srv *httptest.Server

	// onFrame is called for every inbound frame.
	onFrame func(p *peer, env *Envelope)

	mu     sync.Mutex
	frames []received
	conns  int
}

func newFakeBridge(t *testing.T, onFrame func(p *peer, env *Envelope)) *fakeBridge {
	t.Helper()
	f := &fakeBridge{onFrame: onFrame}
	upgrader := websocket.Upgrader{}

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		f.mu.Lock()
		f.conns++
		f.mu.Unlock()

		p := &peer{ws: ws}
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			env, err := ParseEnvelope(data)
			if err != nil {
				continue
			}
			f.mu.Lock()
			f.frames = append(f.frames, received{env: *env, at: time.Now()})
			f.mu.Unlock()
			if f.onFrame != nil {
				f.onFrame(p, env)
			}
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeBridge) addr() (string, int) {
	a := f.srv.Listener.Addr().(*net.TCPAddr)
	return a.IP.String(), a.Port
}

func (f *fakeBridge) ops(op Op) []received {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []received
	for _, r := range f.frames {
		if r.env.Op == op {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeBridge) connCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns
}

// waitOps waits until n frames of op have arrived.
func (f *fakeBridge) waitOps(t *testing.T, op Op, n int) []received {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := f.ops(op); len(got) >= n {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	got := f.ops(op)
	t.Fatalf("got %d %s frames, want %d", len(got), op, n)
	return nil
}

// waitOnce waits for op and then checks that no second one follows.
func (f *fakeBridge) waitOnce(t *testing.T, op Op) {
	t.Helper()
	f.waitOps(t, op, 1)
	time.Sleep(150 * time.Millisecond)
	if n := len(f.ops(op)); n != 1 {
		t.Errorf("%s sent %d times, want 1", op, n)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBridge(t *testing.T, f *fakeBridge) *Bridge {
	t.Helper()
	host, port := f.addr()
	return New(Config{
		Host:         host,
		Port:         port,
		Timeout:      2 * time.Second,
		PollInterval: 50 * time.Millisecond,
		Grace:        50 * time.Millisecond,
		ImagePath:    t.TempDir() + "/camera/received_image.png",
		Logger:       quietLogger(),
	})
}

func publishFrame(topic string, msg any) map[string]any {
	return map[string]any{"op": "publish", "topic": topic, "msg": msg}
}

func statusError(id, msg string) map[string]any {
	return map[string]any{"op": "status", "level": "error", "id": id, "msg": msg}
}

func serviceResponse(id string, ok bool, values any) map[string]any {
	return map[string]any{"op": "service_response", "id": id, "result": ok, "values": values}
}
