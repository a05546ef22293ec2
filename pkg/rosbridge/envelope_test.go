package rosbridge

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		wantOp  Op
	}{
		{"publish", `{"op":"publish","topic":"/a","msg":{"data":1}}`, false, OpPublish},
		{"leading space", "  \n{\"op\":\"status\"}", false, OpStatus},
		{"null", `null`, true, ""},
		{"array", `[1,2]`, true, ""},
		{"string", `"hi"`, true, ""},
		{"empty", ``, true, ""},
		{"truncated", `{"op":`, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := ParseEnvelope([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %+v", env)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if env.Op != tt.wantOp {
				t.Errorf("Op = %q, want %q", env.Op, tt.wantOp)
			}
		})
	}
}

func TestSubscribeOmitsNilHints(t *testing.T) {
	data, err := Subscribe("/a", "t/T", nil, nil).Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "queue_length") || strings.Contains(string(data), "throttle_rate") {
		t.Errorf("frame = %s", data)
	}

	q, r := 1, 100
	data, _ = Subscribe("/a", "t/T", &q, &r).Bytes()
	if !strings.Contains(string(data), `"queue_length":1`) || !strings.Contains(string(data), `"throttle_rate":100`) {
		t.Errorf("frame = %s", data)
	}
}

func TestStatusText(t *testing.T) {
	tests := []struct {
		msg  json.RawMessage
		want string
	}{
		{json.RawMessage(`"topic does not exist"`), "topic does not exist"},
		{json.RawMessage(`{"detail":"x"}`), `{"detail":"x"}`},
		{nil, "Unknown error"},
	}
	for _, tt := range tests {
		env := &Envelope{Op: OpStatus, Level: LevelError, Msg: tt.msg}
		if got := env.StatusText(); got != tt.want {
			t.Errorf("StatusText(%s) = %q, want %q", tt.msg, got, tt.want)
		}
	}
}

func TestFailed(t *testing.T) {
	yes, no := true, false
	if (&Envelope{Result: &yes}).Failed() {
		t.Error("result=true should not be a failure")
	}
	if (&Envelope{}).Failed() {
		t.Error("missing result should not be a failure")
	}
	env := &Envelope{Result: &no, Values: json.RawMessage(`{"message":"nope"}`)}
	if !env.Failed() || env.FailureMessage() != "nope" {
		t.Errorf("Failed = %v, FailureMessage = %q", env.Failed(), env.FailureMessage())
	}
}

func TestNewCallIDUnique(t *testing.T) {
	a, b := NewCallID("/s"), NewCallID("/s")
	if a == b {
		t.Error("call ids should differ")
	}
	if !strings.HasPrefix(a, "call:/s:") {
		t.Errorf("id = %q", a)
	}
}
