package rosbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SubscribeRequest describes a subscription. QueueLength and
// ThrottleRate are hints passed to the bridge, not enforced here.
type SubscribeRequest struct {
	Topic        string
	Type         string
	Timeout      time.Duration
	QueueLength  *int
	ThrottleRate *int
}

// Validate rejects a request before anything is sent.
func (r SubscribeRequest) Validate() error {
	if r.Topic == "" || r.Type == "" {
		return invalidArg("topic and msg_type must be provided")
	}
	if r.QueueLength != nil && *r.QueueLength < 1 {
		return invalidArg("queue_length must be an integer ≥ 1")
	}
	if r.ThrottleRate != nil && *r.ThrottleRate < 0 {
		return invalidArg("throttle_rate_ms must be an integer ≥ 0")
	}
	return nil
}

// IsImageType reports whether msgType is routed through image decoding.
func IsImageType(msgType string) bool {
	return strings.Contains(msgType, "Image")
}

// Message is one received topic message.
type Message struct {
	Topic string
	Msg   json.RawMessage

	// Image is set instead of Msg for image types.
	Image *ImageInfo
}

// Collection is the outcome of SubscribeFor.
type Collection struct {
	Topic        string
	Messages     []json.RawMessage
	StatusErrors []string
}

// subscribed sends subscribe and, if that succeeds, runs body and then
// sends exactly one unsubscribe regardless of how body exits.
func (b *Bridge) subscribed(c *Correlator, req SubscribeRequest, body func() error) error {
	if err := c.Send(Subscribe(req.Topic, req.Type, req.QueueLength, req.ThrottleRate)); err != nil {
		return err
	}
	defer func() {
		if err := c.Send(Unsubscribe(req.Topic)); err != nil {
			b.logger.Warn("unsubscribe failed", "topic", req.Topic, "error", err)
		}
	}()
	return body()
}

// SubscribeOnce returns the first message published on the topic.
//
// Status errors from the bridge end the wait with a *BridgeError; the
// deadline ends it with ErrTimeout. Frames that do not decode are
// skipped. Image types are decoded into the image store.
func (b *Bridge) SubscribeOnce(ctx context.Context, req SubscribeRequest) (*Message, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var out *Message
	err := b.Scope(ctx, func(c *Correlator) error {
		return b.subscribed(c, req, func() error {
			deadline := time.Now().Add(b.timeout(req.Timeout))
			for {
				if err := ctx.Err(); err != nil {
					return err
				}
				remaining := time.Until(deadline)
				if remaining <= 0 {
					return ErrTimeout
				}

				raw, err := c.Next(min(b.cfg.PollInterval, remaining))
				if err != nil {
					return err
				}
				if raw == nil {
					continue
				}

				env, perr := ParseEnvelope(raw)
				if perr != nil {
					b.logger.Debug("skipping undecodable frame", "topic", req.Topic, "error", perr)
					continue
				}
				if env.IsStatusError() {
					return &BridgeError{Op: OpSubscribe, Msg: env.StatusText()}
				}
				if !MatchTopic(req.Topic)(env) {
					continue
				}

				if IsImageType(req.Type) {
					info, ierr := b.images.Save(env.Msg)
					if ierr != nil {
						b.logger.Warn("skipping image frame", "topic", req.Topic, "error", ierr)
						continue
					}
					out = &Message{Topic: req.Topic, Image: info}
					return nil
				}

				msg := env.Msg
				if len(msg) == 0 {
					msg = json.RawMessage(`{}`)
				}
				out = &Message{Topic: req.Topic, Msg: msg}
				return nil
			}
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SubscribeFor collects messages until duration elapses or maxMessages
// have arrived. Status errors are collected rather than fatal. A
// transport failure stops collection and is returned alongside what was
// gathered so far.
func (b *Bridge) SubscribeFor(ctx context.Context, req SubscribeRequest, duration time.Duration, maxMessages int) (*Collection, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if duration <= 0 {
		return nil, invalidArg("duration must be positive")
	}
	if maxMessages < 1 {
		return nil, invalidArg("max_messages must be at least 1")
	}

	col := &Collection{
		Topic:        req.Topic,
		Messages:     []json.RawMessage{},
		StatusErrors: []string{},
	}
	err := b.Scope(ctx, func(c *Correlator) error {
		return b.subscribed(c, req, func() error {
			end := time.Now().Add(duration)
			for len(col.Messages) < maxMessages {
				if err := ctx.Err(); err != nil {
					return err
				}
				remaining := time.Until(end)
				if remaining <= 0 {
					return nil
				}

				raw, err := c.Next(min(b.cfg.PollInterval, remaining))
				if err != nil {
					return err
				}
				if raw == nil {
					continue
				}

				env, perr := ParseEnvelope(raw)
				if perr != nil {
					continue
				}
				if env.IsStatusError() {
					col.StatusErrors = append(col.StatusErrors, env.StatusText())
					continue
				}
				if MatchTopic(req.Topic)(env) {
					msg := env.Msg
					if len(msg) == 0 {
						msg = json.RawMessage(`{}`)
					}
					col.Messages = append(col.Messages, msg)
				}
			}
			return nil
		})
	})
	return col, err
}

// PublishItem is one payload and the pause that follows it.
type PublishItem struct {
	Msg   json.RawMessage
	Delay time.Duration
}

// PublishReport is the outcome of PublishSequence.
type PublishReport struct {
	Topic     string
	Type      string
	Published int
	Total     int
	Errors    []string
}

// PublishSequence advertises the topic, publishes each item, and
// unadvertises. An error frame right after advertise aborts with a
// *BridgeError; per-item failures are recorded in the report and the
// sequence continues. If the socket drops mid-sequence the topic is
// advertised again before the next publish. The delay is slept after
// each successful item.
func (b *Bridge) PublishSequence(ctx context.Context, topic, msgType string, items []PublishItem) (*PublishReport, error) {
	if topic == "" || msgType == "" || len(items) == 0 {
		return nil, invalidArg("topic, msg_type, and at least one message must be provided")
	}

	report := &PublishReport{
		Topic:  topic,
		Type:   msgType,
		Total:  len(items),
		Errors: []string{},
	}
	err := b.Scope(ctx, func(c *Correlator) error {
		if err := c.Send(Advertise(topic, msgType)); err != nil {
			return err
		}
		defer func() {
			if err := c.Send(Unadvertise(topic)); err != nil {
				b.logger.Warn("unadvertise failed", "topic", topic, "error", err)
			}
		}()

		if msg, failed := b.immediateError(c); failed {
			return &BridgeError{Op: OpAdvertise, Msg: msg}
		}

		for i, item := range items {
			if err := ctx.Err(); err != nil {
				return err
			}
			if c.t.Status() == StatusDisconnected {
				// The next send reconnects, and a fresh socket carries no
				// advertisement.
				if err := c.Send(Advertise(topic, msgType)); err != nil {
					report.Errors = append(report.Errors, fmt.Sprintf("Message %d: %v", i+1, err))
					continue
				}
				b.logger.Info("re-advertised after reconnect", "topic", topic)
			}
			if err := c.Send(Publish(topic, item.Msg)); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("Message %d: %v", i+1, err))
				continue
			}
			if msg, failed := b.immediateError(c); failed {
				report.Errors = append(report.Errors, fmt.Sprintf("Message %d: %s", i+1, msg))
				continue
			}
			report.Published++

			if item.Delay > 0 {
				if err := sleep(ctx, item.Delay); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// PublishOnce publishes a single message. A publish error reported by
// the bridge is returned as a *BridgeError.
func (b *Bridge) PublishOnce(ctx context.Context, topic, msgType string, msg json.RawMessage) error {
	report, err := b.PublishSequence(ctx, topic, msgType, []PublishItem{{Msg: msg}})
	if err != nil {
		return err
	}
	if len(report.Errors) > 0 {
		return &BridgeError{Op: OpPublish, Msg: report.Errors[0]}
	}
	return nil
}

// immediateError reads at most one frame within the grace window and
// reports whether it is a status error. Silence is success; any other
// frame is kept for later reads.
func (b *Bridge) immediateError(c *Correlator) (string, bool) {
	raw, err := c.read(b.cfg.Grace)
	if err != nil || raw == nil {
		return "", false
	}
	env, perr := ParseEnvelope(raw)
	if perr != nil {
		return "", false
	}
	if env.IsStatusError() {
		return env.StatusText(), true
	}
	c.stash(raw)
	return "", false
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
