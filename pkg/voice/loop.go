// Package voice runs the wake-phrase command loop.
//
// Utterances come from a Source (stdin or a speech-to-text process). The
// loop waits for the wake phrase, treats the next utterance as a command,
// and signals progress on the robot's face: listening after the wake
// phrase, thinking while the command runs, proud when it is done.
//
// Example usage:
//
//	loop := voice.NewLoop(voice.Config{
//	    Source:     voice.NewLineSource(os.Stdin),
//	    Commands:   session,
//	    Actions:    puppyClient,
//	    WakePhrase: "hello puppy",
//	})
//	err := loop.Run(ctx)
package voice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/teslashibe/go-pupper/internal/log"
	"github.com/teslashibe/go-pupper/pkg/puppy"
)

// Defaults for the wake gate.
const (
	DefaultWakePhrase    = "hello puppy"
	DefaultWakeThreshold = 0.8
)

// Robot state actions sent by the loop.
const (
	ActionListening = "state:listening"
	ActionThinking  = "state:thinking"
	ActionProud     = "state:proud"
	ActionReset     = "reset"
)

// Commander handles one command and returns the reply.
// *assistant.Session implements it.
type Commander interface {
	HandleCommand(ctx context.Context, text string) string
}

// Config configures a Loop.
type Config struct {
	Source   Source
	Commands Commander

	// Actions shows progress on the robot. Optional.
	Actions puppy.Actor

	// WakePhrase and WakeThreshold gate commands. SkipWake treats every
	// utterance as a command.
	WakePhrase    string
	WakeThreshold float64
	SkipWake      bool

	// Cooldown is the pause after a command before the wake phrase is
	// accepted again.
	Cooldown time.Duration

	// OnReply receives every reply. Optional.
	OnReply func(command, reply string)

	Logger *slog.Logger
}

// Loop alternates between waiting for the wake phrase and running a
// command.
type Loop struct {
	cfg     Config
	gate    WakeGate
	logger  *slog.Logger
	waiting bool
}

// NewLoop creates a loop, filling in the default phrase and threshold.
// A zero Cooldown disables the pause.
func NewLoop(cfg Config) *Loop {
	if cfg.WakePhrase == "" {
		cfg.WakePhrase = DefaultWakePhrase
	}
	if cfg.WakeThreshold <= 0 {
		cfg.WakeThreshold = DefaultWakeThreshold
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Component("voice")
	}
	return &Loop{
		cfg:     cfg,
		gate:    WakeGate{Phrase: cfg.WakePhrase, Threshold: cfg.WakeThreshold},
		logger:  logger,
		waiting: !cfg.SkipWake,
	}
}

// Run reads utterances until the source ends or ctx is cancelled. An
// exhausted source is not an error.
func (l *Loop) Run(ctx context.Context) error {
	if l.cfg.Source == nil || l.cfg.Commands == nil {
		return errors.New("voice: source and commands are required")
	}
	l.logger.Info("assistant is listening", "wake_phrase", l.cfg.WakePhrase, "wake", !l.cfg.SkipWake)
	for {
		heard, err := l.cfg.Source.Next(ctx)
		if errors.Is(err, io.EOF) {
			l.logger.Info("input closed")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := l.Hear(ctx, heard); err != nil {
			return nil
		}
	}
}

// Hear processes one utterance. It returns ctx.Err() if the cooldown was
// interrupted.
func (l *Loop) Hear(ctx context.Context, heard string) error {
	if l.waiting {
		if !l.gate.Match(heard) {
			l.logger.Debug("ignored utterance", "heard", heard)
			return nil
		}
		l.logger.Info("heard wake phrase", "heard", heard)
		l.act(ctx, ActionReset)
		l.act(ctx, ActionListening)
		l.waiting = false
		return nil
	}

	l.logger.Info("heard command", "command", heard)
	l.act(ctx, ActionThinking)
	reply := l.cfg.Commands.HandleCommand(ctx, heard)
	if l.cfg.OnReply != nil {
		l.cfg.OnReply(heard, reply)
	}
	l.act(ctx, ActionProud)

	if l.cfg.SkipWake {
		return nil
	}
	err := sleep(ctx, l.cfg.Cooldown)
	l.act(context.WithoutCancel(ctx), ActionReset)
	l.waiting = true
	return err
}

// Waiting reports whether the loop is waiting for the wake phrase.
func (l *Loop) Waiting() bool {
	return l.waiting
}

func (l *Loop) act(ctx context.Context, action string) {
	if l.cfg.Actions == nil {
		return
	}
	if err := l.cfg.Actions.Do(ctx, action); err != nil {
		l.logger.Warn("robot action failed", "action", action, "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
