package rosbridge

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

func TestCorrelatorReplaysUnmatchedFrames(t *testing.T) {
	f := newFakeBridge(t, func(p *peer, env *Envelope) {
		if env.Op == OpCallService {
			p.send(publishFrame("/early", map[string]any{"data": 1}))
			p.send(serviceResponse(env.ID, true, nil))
		}
	})
	host, port := f.addr()
	tr := NewTransport(host, port, WithTimeout(time.Second), WithTransportLogger(quietLogger()))
	defer tr.Close()

	c := NewCorrelator(tr, 4, 50*time.Millisecond, quietLogger())
	env, _ := CallService("/x", "t/T", nil)
	resp, err := c.Request(context.Background(), env, MatchID(env.ID), time.Second)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if resp.Op != OpServiceResponse {
		t.Errorf("op = %s", resp.Op)
	}
	if c.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", c.Pending())
	}

	raw, err := c.Next(10 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "/early") {
		t.Errorf("Next = %s, want the buffered publish", raw)
	}
}

func TestCorrelatorAwaitChecksBufferFirst(t *testing.T) {
	tr := NewTransport("127.0.0.1", 1, WithTransportLogger(quietLogger()))
	c := NewCorrelator(tr, 0, 0, quietLogger())
	c.stash([]byte(`{"op":"publish","topic":"/a","msg":{}}`))
	c.stash([]byte(`{"op":"service_response","id":"abc","result":true}`))

	env, err := c.Await(context.Background(), MatchID("abc"), time.Second)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if env.ID != "abc" {
		t.Errorf("id = %q", env.ID)
	}
	if c.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", c.Pending())
	}
}

func TestCorrelatorBacklogBounded(t *testing.T) {
	tr := NewTransport("127.0.0.1", 1, WithTransportLogger(quietLogger()))
	c := NewCorrelator(tr, 2, 0, quietLogger())
	c.stash([]byte(`{"op":"publish","topic":"/1"}`))
	c.stash([]byte(`{"op":"publish","topic":"/2"}`))
	c.stash([]byte(`{"op":"publish","topic":"/3"}`))

	if c.Pending() != 2 {
		t.Fatalf("Pending = %d, want 2", c.Pending())
	}
	raw, _ := c.Next(0)
	if !strings.Contains(string(raw), "/2") {
		t.Errorf("oldest frame should have been dropped, got %s", raw)
	}
}

func TestCorrelatorDisconnected(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	tr := NewTransport("127.0.0.1", port, WithTimeout(200*time.Millisecond), WithTransportLogger(quietLogger()))
	c := NewCorrelator(tr, 0, 0, quietLogger())

	_, err = c.Await(context.Background(), MatchTopic("/x"), 200*time.Millisecond)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
	if !strings.Contains(tr.LastError(), "connection error") {
		t.Errorf("LastError = %q", tr.LastError())
	}
}

func TestCorrelatorContextCanceled(t *testing.T) {
	f := newFakeBridge(t, nil)
	host, port := f.addr()
	tr := NewTransport(host, port, WithTransportLogger(quietLogger()))
	defer tr.Close()
	if err := tr.Connect(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	c := NewCorrelator(tr, 0, 20*time.Millisecond, quietLogger())
	_, err := c.Await(ctx, MatchTopic("/never"), 5*time.Second)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestMatchers(t *testing.T) {
	tests := []struct {
		name string
		m    Matcher
		env  Envelope
		want bool
	}{
		{"id response", MatchID("a"), Envelope{Op: OpServiceResponse, ID: "a"}, true},
		{"id status", MatchID("a"), Envelope{Op: OpStatus, ID: "a", Level: LevelError}, true},
		{"id mismatch", MatchID("a"), Envelope{Op: OpServiceResponse, ID: "b"}, false},
		{"id publish", MatchID("a"), Envelope{Op: OpPublish, ID: "a"}, false},
		{"topic", MatchTopic("/t"), Envelope{Op: OpPublish, Topic: "/t"}, true},
		{"topic other", MatchTopic("/t"), Envelope{Op: OpPublish, Topic: "/u"}, false},
		{"topic status", MatchTopic("/t"), Envelope{Op: OpStatus, Topic: "/t"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m(&tt.env); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
