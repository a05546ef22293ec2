package hub

import (
	"time"

	"github.com/gofiber/contrib/websocket"
)

const (
	writeTimeout = 10 * time.Second
	idleTimeout  = time.Minute
	pingEvery    = idleTimeout * 9 / 10

	// Subscribers only ever send control frames.
	readLimit = 4 << 10
)

type subscriber struct {
	hub  *Hub
	conn *websocket.Conn
	out  chan []byte
}

// read discards inbound data and notices the disconnect. A pong extends
// the idle deadline.
func (s *subscriber) read() {
	defer func() {
		select {
		case s.hub.leave <- s:
		case <-s.hub.done:
		}
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(readLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// write is the only goroutine writing to conn.
func (s *subscriber) write() {
	ping := time.NewTicker(pingEvery)
	defer func() {
		ping.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ping.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
