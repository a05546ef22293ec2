package rostools

import (
	"math"
	"testing"
	"time"
)

func TestDecodeIntArg(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    int
		wantErr bool
	}{
		{"float", 3.0, 3, false},
		{"int", 7, 7, false},
		{"quoted", " 12 ", 12, false},
		{"fraction", 2.5, 0, true},
		{"nan", math.NaN(), 0, true},
		{"inf", math.Inf(-1), 0, true},
		{"too large", 1e19, 0, true},
		{"text", "many", 0, true},
		{"bool", true, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a subscribeArgs
			if err := decode(map[string]any{"queue_length": tt.in}, &a); err != nil {
				t.Fatalf("decode: %v", err)
			}
			got, err := a.QueueLength.get("bad")
			if tt.wantErr {
				if err == nil || err.Error() != "bad" {
					t.Errorf("err = %v, want bad", err)
				}
				return
			}
			if err != nil || got == nil || *got != tt.want {
				t.Errorf("got %v, %v; want %d", got, err, tt.want)
			}
		})
	}
}

func TestDecodeOmittedArgs(t *testing.T) {
	var a subscribeArgs
	if err := decode(map[string]any{"topic": "  /odom "}, &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.Topic != "/odom" {
		t.Errorf("Topic = %q, want trimmed", a.Topic)
	}
	if n, err := a.MaxMessages.get("bad"); n != nil || err != nil {
		t.Errorf("MaxMessages = %v, %v; want unset", n, err)
	}
	if d, err := a.Duration.get("duration", 5*time.Second); d != 5*time.Second || err != nil {
		t.Errorf("Duration = %v, %v; want default", d, err)
	}
}

func TestDecodeDurationList(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []time.Duration
	}{
		{"array", []any{1, 0.5}, []time.Duration{time.Second, 500 * time.Millisecond}},
		{"json string", "[2, 0.25]", []time.Duration{2 * time.Second, 250 * time.Millisecond}},
		{"quoted numbers", []any{"1.5"}, []time.Duration{1500 * time.Millisecond}},
		{"not json", "two seconds", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a sequenceArgs
			if err := decode(map[string]any{"durations": tt.in}, &a); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(a.Durations) != len(tt.want) {
				t.Fatalf("got %d durations, want %d", len(a.Durations), len(tt.want))
			}
			for i, w := range tt.want {
				if d, err := a.Durations[i].get("duration", 0); err != nil || d != w {
					t.Errorf("durations[%d] = %v, %v; want %v", i, d, err, w)
				}
			}
		})
	}
}

func TestDecodeRejectsWrongShape(t *testing.T) {
	var a lookupArgs
	if err := decode(map[string]any{"topic": map[string]any{"name": "/x"}}, &a); err == nil {
		t.Fatal("expected an error for an object where a string belongs")
	}
}
