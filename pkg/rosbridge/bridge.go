// Package rosbridge talks to a robot through a rosbridge WebSocket.
//
// The package is layered: Transport owns the single socket, Correlator
// pairs requests with responses on it, and Bridge runs the topic and
// service protocols inside scoped connections that are always closed on
// exit.
//
// Example usage:
//
//	b := rosbridge.New(rosbridge.Config{Host: "10.0.0.2", Port: 9090})
//	msg, err := b.SubscribeOnce(ctx, rosbridge.SubscribeRequest{
//	    Topic: "/battery_state",
//	    Type:  "sensor_msgs/msg/BatteryState",
//	})
package rosbridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-pupper/internal/observability"
)

// Config holds bridge settings.
type Config struct {
	Host string
	Port int

	// Timeout is the default wait for a response or a first message.
	Timeout time.Duration

	// PollInterval bounds each receive inside subscription loops.
	PollInterval time.Duration

	// Grace is how long to look for an immediate error after advertise
	// and after each publish.
	Grace time.Duration

	// Backlog bounds the replay buffer of each scoped connection.
	Backlog int

	// ImagePath is where decoded image messages are written.
	ImagePath string

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Defaults for zero Config fields.
const (
	DefaultPort         = 9090
	DefaultPollInterval = 500 * time.Millisecond
	DefaultGrace        = time.Second
	DefaultImagePath    = "./camera/received_image.png"
)

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Grace <= 0 {
		c.Grace = DefaultGrace
	}
	if c.Backlog <= 0 {
		c.Backlog = DefaultBacklog
	}
	if c.ImagePath == "" {
		c.ImagePath = DefaultImagePath
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Bridge runs rosbridge protocols over one Transport. Operations are
// serialized: each one holds the bridge for its whole scope.
type Bridge struct {
	cfg       Config
	transport *Transport
	images    *ImageStore
	logger    *slog.Logger

	mu sync.Mutex
}

// New creates a bridge. No connection is made until the first operation.
func New(cfg Config) *Bridge {
	cfg.applyDefaults()
	logger := cfg.Logger.With("component", "rosbridge")
	return &Bridge{
		cfg: cfg,
		transport: NewTransport(cfg.Host, cfg.Port,
			WithTimeout(cfg.Timeout),
			WithTransportLogger(cfg.Logger),
			WithTransportMetrics(cfg.Metrics),
		),
		images: NewImageStore(cfg.ImagePath),
		logger: logger,
	}
}

// Transport exposes the underlying socket for status reporting.
func (b *Bridge) Transport() *Transport {
	return b.transport
}

// Images returns the side-channel store for decoded image messages.
func (b *Bridge) Images() *ImageStore {
	return b.images
}

// SetAddr retargets the bridge for subsequent operations.
func (b *Bridge) SetAddr(host string, port int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transport.SetAddr(host, port)
}

// URL returns the current bridge websocket URL.
func (b *Bridge) URL() string {
	return b.transport.URL()
}

// Scope runs fn with a fresh correlator and closes the connection when
// fn returns, whatever the outcome.
func (b *Bridge) Scope(ctx context.Context, fn func(c *Correlator) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	c := NewCorrelator(b.transport, b.cfg.Backlog, b.cfg.PollInterval, b.logger)
	defer func() {
		if err := b.transport.Close(); err != nil {
			b.logger.Debug("scope close", "error", err)
		}
	}()
	return fn(c)
}

func (b *Bridge) timeout(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return b.cfg.Timeout
}
