// Package protocol defines the JSON frames sent over the command and
// event websockets.
//
// Every frame is an envelope {"type", "ts", "data"}; data depends on the
// type. Events flow server to client, commands client to server, and
// ping/pong in both directions.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType names the payload carried in Data.
type MessageType string

const (
	TypeState MessageType = "state" // StateData: session state changed
	TypeTool  MessageType = "tool"  // TextData: a tool ran
	TypeReply MessageType = "reply" // TextData: final assistant reply
	TypeError MessageType = "error" // TextData: command rejected

	TypeCommand MessageType = "command" // TextData: a command to run, or the echo of one

	TypePing MessageType = "ping" // PingData
	TypePong MessageType = "pong" // PongData
)

var errNoType = errors.New("protocol: message has no type")

// Message is the frame envelope. Timestamp is Unix milliseconds.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage encodes data into a frame stamped with the current time.
// A nil data leaves Data empty.
func NewMessage(t MessageType, data any) (*Message, error) {
	m := &Message{Type: t, Timestamp: time.Now().UnixMilli()}
	if data == nil {
		return m, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s data: %w", t, err)
	}
	m.Data = raw
	return m, nil
}

// ParseMessage decodes a frame. The type is mandatory.
func ParseMessage(frame []byte) (*Message, error) {
	m := new(Message)
	if err := json.Unmarshal(frame, m); err != nil {
		return nil, fmt.Errorf("protocol: decode frame: %w", err)
	}
	if m.Type == "" {
		return nil, errNoType
	}
	return m, nil
}

// ParseData decodes Data into v. Empty data leaves v untouched.
func (m *Message) ParseData(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

type TextData struct {
	Text string `json:"text"`
}

type StateData struct {
	State string `json:"state"`
}

type PingData struct {
	ID string `json:"id"`
}

// PongData echoes the ping ID with the server time.
type PongData struct {
	ID     string `json:"id"`
	PongTS int64  `json:"pong_ts"`
}

// NewTextMessage builds a command, tool, reply or error frame.
func NewTextMessage(t MessageType, text string) (*Message, error) {
	return NewMessage(t, TextData{Text: text})
}

func NewStateMessage(state string) (*Message, error) {
	return NewMessage(TypeState, StateData{State: state})
}

func NewPongMessage(id string) (*Message, error) {
	return NewMessage(TypePong, PongData{ID: id, PongTS: time.Now().UnixMilli()})
}

// Text returns the text of a TextData frame.
func (m *Message) Text() (string, error) {
	var d TextData
	err := m.ParseData(&d)
	return d.Text, err
}
