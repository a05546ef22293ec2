package rosbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-pupper/internal/observability"
)

// Status is the connection state of a Transport.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnected    Status = "connected"
)

// DefaultTimeout is used when a Transport is built without one.
const DefaultTimeout = 2 * time.Second

// frameBuffer bounds frames read ahead of Receive.
const frameBuffer = 64

type frame struct {
	data []byte
	err  error
}

// link is one live websocket plus its read pump.
type link struct {
	ws     *websocket.Conn
	frames chan frame
	done   chan struct{}
}

// readPump owns all reads on ws so a Receive timeout never touches the
// socket's read deadline.
func (l *link) readPump() {
	for {
		_, data, err := l.ws.ReadMessage()
		select {
		case l.frames <- frame{data: data, err: err}:
		case <-l.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// Transport is the single duplex rosbridge socket. It connects lazily
// and every failure closes it, so the next operation starts clean.
type Transport struct {
	mu      sync.Mutex
	host    string
	port    int
	timeout time.Duration
	dialer  *websocket.Dialer
	link    *link
	lastErr string

	logger  *slog.Logger
	metrics *observability.Metrics
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithTimeout sets the default receive and dial timeout.
func WithTimeout(d time.Duration) TransportOption {
	return func(t *Transport) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithTransportLogger sets the structured logger.
func WithTransportLogger(l *slog.Logger) TransportOption {
	return func(t *Transport) { t.logger = l }
}

// WithTransportMetrics records frame counts.
func WithTransportMetrics(m *observability.Metrics) TransportOption {
	return func(t *Transport) { t.metrics = m }
}

// NewTransport creates a disconnected transport for ws://host:port.
func NewTransport(host string, port int, opts ...TransportOption) *Transport {
	t := &Transport{
		host:    host,
		port:    port,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.dialer = &websocket.Dialer{
		HandshakeTimeout: t.timeout,
	}
	t.logger = t.logger.With("component", "rosbridge.transport")
	return t
}

// URL returns the bridge websocket URL.
func (t *Transport) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.urlLocked()
}

func (t *Transport) urlLocked() string {
	return "ws://" + net.JoinHostPort(t.host, strconv.Itoa(t.port))
}

// SetAddr retargets the transport. Any open connection is closed.
func (t *Transport) SetAddr(host string, port int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeLocked()
	t.host = host
	t.port = port
	t.logger.Info("bridge address set", "url", t.urlLocked())
}

// Timeout returns the default receive timeout.
func (t *Transport) Timeout() time.Duration {
	return t.timeout
}

// Connect opens the socket if it is not already open.
func (t *Transport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connectLocked()
}

func (t *Transport) connectLocked() error {
	if t.link != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	url := t.urlLocked()
	ws, _, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		t.lastErr = fmt.Sprintf("connection error: %v", err)
		t.metrics.BridgeError("connect")
		t.logger.Warn("connect failed", "url", url, "error", err)
		return &TransportError{Op: "connect", Err: err}
	}

	l := &link{
		ws:     ws,
		frames: make(chan frame, frameBuffer),
		done:   make(chan struct{}),
	}
	go l.readPump()

	t.link = l
	t.lastErr = ""
	t.logger.Debug("connected", "url", url, "timeout", t.timeout)
	return nil
}

// Send encodes env and writes it, connecting first if needed.
func (t *Transport) Send(env *Envelope) error {
	data, err := env.Bytes()
	if err != nil {
		t.mu.Lock()
		t.lastErr = fmt.Sprintf("serialization error: %v", err)
		t.closeLocked()
		t.mu.Unlock()
		t.metrics.BridgeError("encode")
		return &TransportError{Op: "encode", Err: err}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.connectLocked(); err != nil {
		return err
	}

	_ = t.link.ws.SetWriteDeadline(time.Now().Add(t.timeout))
	if err := t.link.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.lastErr = fmt.Sprintf("send error: %v", err)
		t.closeLocked()
		t.metrics.BridgeError("send")
		return &TransportError{Op: "send", Err: err}
	}

	t.metrics.Frame("out", string(env.Op))
	return nil
}

// Receive waits up to timeout for one frame; zero means the default
// timeout. It returns false on timeout and on any transport error, and
// in the error case the connection is closed.
func (t *Transport) Receive(timeout time.Duration) ([]byte, bool) {
	if timeout <= 0 {
		timeout = t.timeout
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.connectLocked(); err != nil {
		return nil, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f := <-t.link.frames:
		if f.err != nil {
			t.lastErr = fmt.Sprintf("receive error: %v", f.err)
			t.closeLocked()
			t.metrics.BridgeError("receive")
			return nil, false
		}
		t.metrics.Frame("in", "")
		return f.data, true
	case <-timer.C:
		return nil, false
	}
}

// Close closes the socket. Closing a closed transport is a no-op.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked()
}

func (t *Transport) closeLocked() error {
	if t.link == nil {
		return nil
	}
	l := t.link
	t.link = nil
	close(l.done)

	_ = l.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(100*time.Millisecond))
	err := l.ws.Close()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		t.logger.Debug("close error", "error", err)
		return err
	}
	t.logger.Debug("closed")
	return nil
}

// Status reports whether a socket is currently open.
func (t *Transport) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.link == nil {
		return StatusDisconnected
	}
	return StatusConnected
}

// LastError returns the most recent failure text, empty after a
// successful connect.
func (t *Transport) LastError() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}
