package voice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSimilarity(t *testing.T) {
	if got := Similarity("", ""); got != 1 {
		t.Errorf("empty strings = %v, want 1", got)
	}
	if got := Similarity("abcd", "abce"); got != 0.75 {
		t.Errorf("one substitution in four = %v, want 0.75", got)
	}
	if got := Similarity("abc", "xyz"); got != 0 {
		t.Errorf("disjoint = %v, want 0", got)
	}
	if got := Similarity("héllo", "hello"); math.Abs(got-0.8) > 1e-9 {
		t.Errorf("accented rune = %v, want 0.8", got)
	}
	if got := Similarity("", "abc"); got != 0 {
		t.Errorf("against empty = %v, want 0", got)
	}
}

func TestWakeGate(t *testing.T) {
	g := WakeGate{Phrase: "hello puppy", Threshold: 0.8}
	tests := []struct {
		heard string
		want  bool
	}{
		{"hello puppy", true},
		{"Hello, Puppy!", true},
		{"hello poppy", true},
		{"hello", false},
		{"walk forward", false},
		{"yellow guppy", false},
	}
	for _, tt := range tests {
		t.Run(tt.heard, func(t *testing.T) {
			if got := g.Match(tt.heard); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.heard, got, tt.want)
			}
		})
	}
}

func TestWakeGateThresholdIsStrict(t *testing.T) {
	// "abcde" vs "abcdx": similarity exactly 0.8.
	g := WakeGate{Phrase: "abcde", Threshold: 0.8}
	if g.Match("abcdx") {
		t.Error("similarity equal to the threshold should not match")
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  Hello,   PUPPY!\t"); got != "hello puppy" {
		t.Errorf("Normalize = %q", got)
	}
}

func TestLineSource(t *testing.T) {
	src := NewLineSource(strings.NewReader("hello puppy\n\n  sit  \n"))
	ctx := context.Background()

	var got []string
	for {
		line, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, line)
	}
	if !slices.Equal(got, []string{"hello puppy", "sit"}) {
		t.Errorf("lines = %q", got)
	}
	if _, err := src.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("after end err = %v, want EOF", err)
	}
}

func TestLineSourceCancel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	src := NewLineSource(r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

type actions struct {
	mu  sync.Mutex
	got []string
}

func (a *actions) Do(_ context.Context, action string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.got = append(a.got, action)
	return nil
}

func (a *actions) list() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.got...)
}

type commands struct {
	got []string
}

func (c *commands) HandleCommand(_ context.Context, text string) string {
	c.got = append(c.got, text)
	return "ok: " + text
}

func TestLoopWakeThenCommand(t *testing.T) {
	act := &actions{}
	cmd := &commands{}
	var replies []string
	loop := NewLoop(Config{
		Source:   NewLineSource(strings.NewReader("sit\nhello puppy\nsit\nroll over\n")),
		Commands: cmd,
		Actions:  act,
		OnReply:  func(_, reply string) { replies = append(replies, reply) },
		Logger:   quiet(),
	})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// "sit" before the wake phrase and "roll over" after the command are ignored.
	if !slices.Equal(cmd.got, []string{"sit"}) {
		t.Errorf("commands = %q", cmd.got)
	}
	if !slices.Equal(replies, []string{"ok: sit"}) {
		t.Errorf("replies = %q", replies)
	}
	want := []string{ActionReset, ActionListening, ActionThinking, ActionProud, ActionReset}
	if !slices.Equal(act.list(), want) {
		t.Errorf("actions = %q, want %q", act.list(), want)
	}
	if !loop.Waiting() {
		t.Error("loop should wait for the wake phrase again")
	}
}

func TestLoopSkipWake(t *testing.T) {
	cmd := &commands{}
	loop := NewLoop(Config{
		Source:   NewLineSource(strings.NewReader("sit\nstay\n")),
		Commands: cmd,
		SkipWake: true,
		Logger:   quiet(),
	})
	if err := loop.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(cmd.got, []string{"sit", "stay"}) {
		t.Errorf("commands = %q", cmd.got)
	}
}

func TestLoopCooldown(t *testing.T) {
	loop := NewLoop(Config{
		Source:   NewLineSource(strings.NewReader("")),
		Commands: &commands{},
		Cooldown: 50 * time.Millisecond,
		Logger:   quiet(),
	})
	ctx := context.Background()
	if err := loop.Hear(ctx, "hello puppy"); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := loop.Hear(ctx, "sit"); err != nil {
		t.Fatal(err)
	}
	if d := time.Since(start); d < 50*time.Millisecond {
		t.Errorf("cooldown took %v, want >= 50ms", d)
	}
}

func TestLoopCooldownCancelled(t *testing.T) {
	act := &actions{}
	loop := NewLoop(Config{
		Source:   NewLineSource(strings.NewReader("")),
		Commands: &commands{},
		Actions:  act,
		Cooldown: time.Hour,
		Logger:   quiet(),
	})
	_ = loop.Hear(context.Background(), "hello puppy")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := loop.Hear(ctx, "sit"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	got := act.list()
	if got[len(got)-1] != ActionReset {
		t.Errorf("final action = %q, want reset", got[len(got)-1])
	}
}

func TestLoopRequiresCommands(t *testing.T) {
	loop := NewLoop(Config{Source: NewLineSource(strings.NewReader("")), Logger: quiet()})
	if err := loop.Run(context.Background()); err == nil {
		t.Error("expected an error without a Commander")
	}
}
