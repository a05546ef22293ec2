package rosbridge

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultBacklog bounds the replay buffer of a Correlator.
const DefaultBacklog = 64

// Matcher reports whether a frame answers an outstanding request.
type Matcher func(*Envelope) bool

// MatchID matches the service response or status frame echoing id.
func MatchID(id string) Matcher {
	return func(e *Envelope) bool {
		return e.ID == id && (e.Op == OpServiceResponse || e.Op == OpStatus)
	}
}

// MatchTopic matches publish frames on topic.
func MatchTopic(topic string) Matcher {
	return func(e *Envelope) bool {
		return e.Op == OpPublish && e.Topic == topic
	}
}

// Correlator pairs requests with their responses on one scoped
// connection. Frames read while waiting that do not match are kept in a
// bounded replay buffer and handed out first by later reads.
type Correlator struct {
	t       *Transport
	backlog [][]byte
	max     int
	poll    time.Duration
	logger  *slog.Logger
}

// NewCorrelator wraps a transport. backlog <= 0 uses DefaultBacklog and
// poll <= 0 uses the transport's default timeout.
func NewCorrelator(t *Transport, backlog int, poll time.Duration, logger *slog.Logger) *Correlator {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	if poll <= 0 {
		poll = t.Timeout()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{
		t:      t,
		max:    backlog,
		poll:   poll,
		logger: logger,
	}
}

// Send writes one frame.
func (c *Correlator) Send(env *Envelope) error {
	return c.t.Send(env)
}

// Pending returns the number of buffered frames.
func (c *Correlator) Pending() int {
	return len(c.backlog)
}

// Next returns the next frame, draining the replay buffer before reading
// the socket. A transport failure is reported as *TransportError; a plain
// timeout returns (nil, nil).
func (c *Correlator) Next(timeout time.Duration) ([]byte, error) {
	if len(c.backlog) > 0 {
		raw := c.backlog[0]
		c.backlog = c.backlog[1:]
		return raw, nil
	}
	return c.read(timeout)
}

func (c *Correlator) read(timeout time.Duration) ([]byte, error) {
	raw, ok := c.t.Receive(timeout)
	if ok {
		return raw, nil
	}
	if c.t.Status() == StatusDisconnected {
		msg := c.t.LastError()
		if msg == "" {
			return nil, &TransportError{Op: "receive", Err: ErrNotConnected}
		}
		return nil, &TransportError{Op: "receive", Err: errors.New(msg)}
	}
	return nil, nil
}

func (c *Correlator) stash(raw []byte) {
	if len(c.backlog) >= c.max {
		c.backlog = c.backlog[1:]
		c.logger.Debug("replay buffer full, dropping oldest frame")
	}
	c.backlog = append(c.backlog, raw)
}

// takeBuffered removes and returns the first buffered frame matching m.
func (c *Correlator) takeBuffered(m Matcher) *Envelope {
	for i, raw := range c.backlog {
		env, err := ParseEnvelope(raw)
		if err != nil || !m(env) {
			continue
		}
		c.backlog = append(c.backlog[:i:i], c.backlog[i+1:]...)
		return env
	}
	return nil
}

// Request sends env and waits for the frame selected by m.
func (c *Correlator) Request(ctx context.Context, env *Envelope, m Matcher, timeout time.Duration) (*Envelope, error) {
	if err := c.Send(env); err != nil {
		return nil, err
	}
	return c.Await(ctx, m, timeout)
}

// Await waits for the frame selected by m without sending anything. The
// wait ends on a match, the deadline (ErrTimeout), an undecodable frame
// (*DecodeError), a transport failure, or ctx cancellation.
func (c *Correlator) Await(ctx context.Context, m Matcher, timeout time.Duration) (*Envelope, error) {
	if timeout <= 0 {
		timeout = c.t.Timeout()
	}
	if env := c.takeBuffered(m); env != nil {
		return env, nil
	}

	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrTimeout
		}

		raw, err := c.read(min(c.poll, remaining))
		if err != nil {
			return nil, err
		}
		if raw == nil {
			continue
		}

		env, perr := ParseEnvelope(raw)
		if perr != nil {
			return nil, &DecodeError{Raw: raw, Err: perr}
		}
		if m(env) {
			return env, nil
		}
		c.stash(raw)
	}
}
