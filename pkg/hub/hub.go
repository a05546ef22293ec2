// Package hub fans assistant events out to websocket subscribers.
//
// One goroutine (Run) owns the subscriber set. Frames published before a
// subscriber joined are replayed to it from a short backlog so a freshly
// opened dashboard shows the current robot state.
package hub

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gofiber/contrib/websocket"

	"github.com/teslashibe/go-pupper/internal/log"
	"github.com/teslashibe/go-pupper/pkg/protocol"
)

// DefaultBacklog is how many recent frames a new subscriber receives.
const DefaultBacklog = 16

// Hub is a single-writer event broadcaster.
type Hub struct {
	name    string
	logger  *slog.Logger
	backlog int

	frames chan []byte
	join   chan *subscriber
	leave  chan *subscriber
	done   chan struct{}

	count atomic.Int32
}

// New creates a hub. A nil logger uses the "hub" component logger.
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = log.Component("hub")
	}
	return &Hub{
		name:    name,
		logger:  logger.With("hub", name),
		backlog: DefaultBacklog,
		frames:  make(chan []byte, 256),
		join:    make(chan *subscriber),
		leave:   make(chan *subscriber),
		done:    make(chan struct{}),
	}
}

// Run owns the subscriber set until ctx is cancelled. Every subscriber is
// closed on return.
func (h *Hub) Run(ctx context.Context) {
	subs := make(map[*subscriber]struct{})
	var recent [][]byte

	drop := func(s *subscriber) {
		if _, ok := subs[s]; ok {
			delete(subs, s)
			close(s.out)
			h.count.Store(int32(len(subs)))
		}
	}
	defer func() {
		for s := range subs {
			drop(s)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case s := <-h.join:
			for _, f := range recent {
				s.out <- f
			}
			subs[s] = struct{}{}
			h.count.Store(int32(len(subs)))
			h.logger.Info("subscriber joined", "subscribers", len(subs), "replayed", len(recent))

		case s := <-h.leave:
			drop(s)
			h.logger.Info("subscriber left", "subscribers", len(subs))

		case f := <-h.frames:
			if h.backlog > 0 {
				if len(recent) == h.backlog {
					recent = recent[1:]
				}
				recent = append(recent, f)
			}
			for s := range subs {
				select {
				case s.out <- f:
				default:
					drop(s)
					h.logger.Warn("dropped slow subscriber")
				}
			}
		}
	}
}

// Publish encodes msg and queues it for every subscriber. A full queue
// drops the frame.
func (h *Hub) Publish(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	select {
	case h.frames <- data:
	default:
		h.logger.Warn("event queue full, frame dropped", "type", msg.Type)
	}
	return nil
}

// Serve subscribes conn and blocks until it disconnects. Use it as a
// websocket.New handler.
func (h *Hub) Serve(conn *websocket.Conn) {
	s := &subscriber{hub: h, conn: conn, out: make(chan []byte, 64+h.backlog)}
	select {
	case h.join <- s:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go s.write()
	s.read()
}

// ClientCount returns the number of live subscribers.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}
