// Package assistant turns spoken or typed commands into robot tool calls.
//
// A Session owns the conversation with the LLM. Each command starts a
// fresh conversation seeded with the system prompt; if the model answers
// with a tool call, the call is dispatched and its result fed back for a
// second completion that phrases the final reply.
//
// Example usage:
//
//	s := assistant.New(assistant.Config{
//	    LLM:     inference.AsCompleter(chain),
//	    Tools:   dispatcher,
//	    Actions: puppyClient,
//	})
//	if err := s.Setup(ctx); err != nil {
//	    return err
//	}
//	reply := s.HandleCommand(ctx, "sit down")
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/teslashibe/go-pupper/internal/log"
	"github.com/teslashibe/go-pupper/internal/observability"
	"github.com/teslashibe/go-pupper/pkg/inference"
	"github.com/teslashibe/go-pupper/pkg/puppy"
)

var (
	// ErrNotReady is returned before Setup has completed.
	ErrNotReady = errors.New("assistant: session not ready")

	// ErrBusy is returned when a command is already in flight.
	ErrBusy = errors.New("assistant: command already in progress")
)

// State is the session lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateThinking
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateThinking:
		return "thinking"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Toolset discovers tools and runs the calls found in a reply.
// *tools.Dispatcher implements it.
type Toolset interface {
	Discover(ctx context.Context) error
	Describe() (string, error)
	DispatchText(ctx context.Context, reply string) (string, bool)
}

// EventKind names a session event.
type EventKind string

const (
	EventState   EventKind = "state"
	EventCommand EventKind = "command"
	EventTool    EventKind = "tool"
	EventReply   EventKind = "reply"
)

// Event is reported to Config.OnEvent as a command progresses.
type Event struct {
	Kind EventKind `json:"kind"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// Config configures a Session.
type Config struct {
	// LLM produces replies. Required.
	LLM inference.Completer

	// Tools is the tool catalogue and dispatcher. Required.
	Tools Toolset

	// Actions receives the acknowledgement after each LLM response.
	// Optional.
	Actions puppy.Actor

	// OnEvent observes state changes, commands, tool results and replies.
	// It is called synchronously and must not block.
	OnEvent func(Event)

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Session runs commands one at a time.
type Session struct {
	llm     inference.Completer
	tools   Toolset
	actions puppy.Actor
	onEvent func(Event)
	logger  *slog.Logger
	metrics *observability.Metrics

	state  atomic.Int32
	prompt string

	mu           sync.RWMutex
	conversation []inference.Message
}

// New creates a session. Call Setup before handling commands.
func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Component("assistant")
	}
	return &Session{
		llm:     cfg.LLM,
		tools:   cfg.Tools,
		actions: cfg.Actions,
		onEvent: cfg.OnEvent,
		logger:  logger,
		metrics: cfg.Metrics,
	}
}

// Setup discovers the tool catalogue and builds the system prompt. It
// returns ErrBusy while a command is in flight.
func (s *Session) Setup(ctx context.Context) error {
	if s.llm == nil || s.tools == nil {
		return errors.New("assistant: LLM and tools are required")
	}
	prev := s.State()
	if prev != StateUninitialized && prev != StateReady {
		return ErrBusy
	}
	if err := s.tools.Discover(ctx); err != nil {
		return fmt.Errorf("discover tools: %w", err)
	}
	catalog, err := s.tools.Describe()
	if err != nil {
		return fmt.Errorf("describe tools: %w", err)
	}

	// Hold the command slot while the prompt is swapped.
	if !s.state.CompareAndSwap(int32(prev), int32(StateThinking)) {
		return ErrBusy
	}
	s.prompt = SystemPrompt(catalog)
	s.setState(StateReady)
	s.logger.Info("session ready")
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// SystemPrompt returns the prompt built by Setup.
func (s *Session) SystemPrompt() string {
	return s.prompt
}

// Conversation returns a copy of the most recent command's messages.
func (s *Session) Conversation() []inference.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]inference.Message(nil), s.conversation...)
}

// HandleCommand runs one command and returns the reply to speak. It
// returns "" when the session is not ready, already busy, or the input
// is blank.
func (s *Session) HandleCommand(ctx context.Context, text string) string {
	reply, err := s.Handle(ctx, text)
	if err != nil {
		s.logger.Warn("command rejected", "error", err, "input", text)
		return ""
	}
	return reply
}

// Handle is HandleCommand with the rejection reason reported as
// ErrNotReady or ErrBusy.
func (s *Session) Handle(ctx context.Context, text string) (string, error) {
	if !s.state.CompareAndSwap(int32(StateReady), int32(StateThinking)) {
		if s.State() == StateUninitialized {
			s.metrics.Command("not_ready")
			return "", ErrNotReady
		}
		s.metrics.Command("busy")
		return "", ErrBusy
	}
	s.emit(EventState, StateThinking.String())
	defer s.setState(StateReady)

	text = strings.TrimSpace(text)
	if text == "" {
		s.metrics.Command("empty")
		return "", nil
	}

	ctx, span := observability.StartSpan(ctx, "assistant.command",
		attribute.Int("input.length", len(text)),
	)
	defer observability.EndSpan(span, nil)

	s.logger.Info("command", "input", text)
	s.emit(EventCommand, text)

	messages := []inference.Message{
		inference.NewSystemMessage(s.prompt),
		inference.NewUserMessage(text),
	}
	s.record(messages)

	response := s.complete(ctx, messages)
	result, used := s.tools.DispatchText(ctx, response)
	s.acknowledge(ctx)

	if !used {
		messages = append(messages, inference.NewAssistantMessage(response))
		s.record(messages)
		s.metrics.Command("reply")
		s.emit(EventReply, response)
		return response, nil
	}

	s.logger.Info("tool result", "result", result)
	s.emit(EventTool, result)
	messages = append(messages,
		inference.NewAssistantMessage(response),
		inference.NewSystemMessage(result),
	)
	reply := s.complete(ctx, messages)
	messages = append(messages, inference.NewAssistantMessage(reply))
	s.record(messages)

	s.metrics.Command("tool")
	s.emit(EventReply, reply)
	return reply, nil
}

// complete asks the LLM for a reply. A failure is replaced with an
// apology so the caller always has something to say.
func (s *Session) complete(ctx context.Context, messages []inference.Message) string {
	start := time.Now()
	reply, err := s.llm.GetResponse(ctx, messages)
	s.metrics.LLM(observability.Status(err), time.Since(start))
	if err != nil {
		s.logger.Error("llm request failed", "error", err)
		return Apology(err)
	}
	return reply
}

// Apology is the reply used when the LLM cannot be reached.
func Apology(err error) string {
	return fmt.Sprintf("I encountered an error: Error getting LLM response: %v. Please try again or rephrase your request.", err)
}

func (s *Session) acknowledge(ctx context.Context) {
	if s.actions == nil {
		return
	}
	if err := s.actions.Do(ctx, puppy.Acknowledgement); err != nil {
		s.logger.Warn("acknowledgement failed", "error", err)
	}
}

func (s *Session) record(messages []inference.Message) {
	s.mu.Lock()
	s.conversation = append(s.conversation[:0:0], messages...)
	s.mu.Unlock()
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	s.emit(EventState, st.String())
}

func (s *Session) emit(kind EventKind, text string) {
	if s.onEvent == nil {
		return
	}
	s.onEvent(Event{Kind: kind, Text: text, Time: time.Now()})
}
