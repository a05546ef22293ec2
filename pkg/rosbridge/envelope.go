package rosbridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Op identifies a rosbridge operation.
type Op string

const (
	// Client → bridge
	OpSubscribe   Op = "subscribe"
	OpUnsubscribe Op = "unsubscribe"
	OpAdvertise   Op = "advertise"
	OpUnadvertise Op = "unadvertise"
	OpCallService Op = "call_service"

	// Both directions
	OpPublish Op = "publish"

	// Bridge → client
	OpServiceResponse Op = "service_response"
	OpStatus          Op = "status"
)

// LevelError is the status level that marks a failed operation.
const LevelError = "error"

// Envelope is one rosbridge JSON frame.
//
// Msg holds a topic payload for publish frames and a plain string for
// status frames, so it stays raw until the op is known.
type Envelope struct {
	Op           Op              `json:"op"`
	ID           string          `json:"id,omitempty"`
	Topic        string          `json:"topic,omitempty"`
	Service      string          `json:"service,omitempty"`
	Type         string          `json:"type,omitempty"`
	Msg          json.RawMessage `json:"msg,omitempty"`
	Args         json.RawMessage `json:"args,omitempty"`
	Values       json.RawMessage `json:"values,omitempty"`
	Result       *bool           `json:"result,omitempty"`
	Level        string          `json:"level,omitempty"`
	QueueLength  *int            `json:"queue_length,omitempty"`
	ThrottleRate *int            `json:"throttle_rate,omitempty"`
}

// ============================================================
// Constructors
// ============================================================

// Subscribe builds a subscribe frame. Nil hints are omitted.
func Subscribe(topic, msgType string, queueLength, throttleRate *int) *Envelope {
	return &Envelope{
		Op:           OpSubscribe,
		Topic:        topic,
		Type:         msgType,
		QueueLength:  queueLength,
		ThrottleRate: throttleRate,
	}
}

// Unsubscribe builds an unsubscribe frame.
func Unsubscribe(topic string) *Envelope {
	return &Envelope{Op: OpUnsubscribe, Topic: topic}
}

// Advertise builds an advertise frame.
func Advertise(topic, msgType string) *Envelope {
	return &Envelope{Op: OpAdvertise, Topic: topic, Type: msgType}
}

// Unadvertise builds an unadvertise frame.
func Unadvertise(topic string) *Envelope {
	return &Envelope{Op: OpUnadvertise, Topic: topic}
}

// Publish builds a publish frame from an already-encoded payload.
func Publish(topic string, msg json.RawMessage) *Envelope {
	return &Envelope{Op: OpPublish, Topic: topic, Msg: msg}
}

// CallService builds a call_service frame with a fresh correlation id.
func CallService(service, srvType string, args any) (*Envelope, error) {
	env := &Envelope{
		Op:      OpCallService,
		ID:      NewCallID(service),
		Service: service,
		Type:    srvType,
	}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encode service args: %w", err)
		}
		env.Args = raw
	}
	return env, nil
}

// NewCallID returns an id unique to one call of service.
func NewCallID(service string) string {
	return "call:" + service + ":" + uuid.NewString()
}

// ============================================================
// Parsing
// ============================================================

var errNotObject = errors.New("frame is not a JSON object")

// ParseEnvelope decodes one inbound frame. Anything that is not a JSON
// object is an error.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, errNotObject
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Bytes encodes the frame.
func (e *Envelope) Bytes() ([]byte, error) {
	return json.Marshal(e)
}

// IsStatusError reports whether the frame is a status frame at error level.
func (e *Envelope) IsStatusError() bool {
	return e.Op == OpStatus && e.Level == LevelError
}

// StatusText returns the human text of a status frame.
func (e *Envelope) StatusText() string {
	if len(e.Msg) == 0 {
		return "Unknown error"
	}
	var s string
	if err := json.Unmarshal(e.Msg, &s); err == nil {
		return s
	}
	return string(e.Msg)
}

// Failed reports whether a service response carries result=false.
func (e *Envelope) Failed() bool {
	return e.Result != nil && !*e.Result
}

// FailureMessage extracts values.message from a failed service response.
func (e *Envelope) FailureMessage() string {
	var v struct {
		Message string `json:"message"`
	}
	if len(e.Values) > 0 && json.Unmarshal(e.Values, &v) == nil && v.Message != "" {
		return v.Message
	}
	return "Service call failed"
}
