package rostools

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Argument shapes, one per tool family. Models quote numbers and
// JSON-encode arrays often enough that decoding is weakly typed.

type reachArgs struct {
	IP          string     `mapstructure:"ip"`
	Port        intArg     `mapstructure:"port"`
	PingTimeout secondsArg `mapstructure:"ping_timeout"`
	PortTimeout secondsArg `mapstructure:"port_timeout"`
}

type lookupArgs struct {
	Topic       string `mapstructure:"topic"`
	Service     string `mapstructure:"service"`
	ServiceType string `mapstructure:"service_type"`
	MessageType string `mapstructure:"message_type"`
}

type subscribeArgs struct {
	Topic        string     `mapstructure:"topic"`
	MsgType      string     `mapstructure:"msg_type"`
	QueueLength  intArg     `mapstructure:"queue_length"`
	ThrottleRate intArg     `mapstructure:"throttle_rate_ms"`
	Timeout      secondsArg `mapstructure:"timeout"`
	Duration     secondsArg `mapstructure:"duration"`
	MaxMessages  intArg     `mapstructure:"max_messages"`
}

type publishArgs struct {
	Topic   string `mapstructure:"topic"`
	MsgType string `mapstructure:"msg_type"`
	Msg     any    `mapstructure:"msg"`
}

type sequenceArgs struct {
	Topic     string       `mapstructure:"topic"`
	MsgType   string       `mapstructure:"msg_type"`
	Messages  []any        `mapstructure:"messages"`
	Durations []secondsArg `mapstructure:"durations"`
}

type callArgs struct {
	ServiceName string     `mapstructure:"service_name"`
	ServiceType string     `mapstructure:"service_type"`
	Request     any        `mapstructure:"request"`
	Timeout     secondsArg `mapstructure:"timeout"`
}

// intArg is an optional integer. A value that is not a whole number in
// int range is remembered as bad rather than failing the decode, so each
// tool can answer with its own message.
type intArg struct {
	v   int
	set bool
	bad bool
}

// get returns nil when the argument was omitted and msg as the error
// when it was not an integer.
func (a intArg) get(msg string) (*int, error) {
	if a.bad {
		return nil, errors.New(msg)
	}
	if !a.set {
		return nil, nil
	}
	n := a.v
	return &n, nil
}

// secondsArg is an optional duration given in (fractional) seconds.
type secondsArg struct {
	d       time.Duration
	set     bool
	problem string
}

// get returns def when the argument was omitted.
func (a secondsArg) get(key string, def time.Duration) (time.Duration, error) {
	if a.problem != "" {
		return 0, fmt.Errorf("%s %s", key, a.problem)
	}
	if !a.set {
		return def, nil
	}
	return a.d, nil
}

var (
	intArgType     = reflect.TypeOf(intArg{})
	secondsArgType = reflect.TypeOf(secondsArg{})
)

// decode fills out from the raw tool arguments.
func decode(args map[string]any, out any) error {
	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.DecodeHookFuncType(argHook),
		WeaklyTypedInput: true,
		ErrorUnused:      false,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := d.Decode(args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func argHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	switch {
	case to == intArgType:
		return toIntArg(data), nil
	case to == secondsArgType:
		return toSecondsArg(data), nil
	case to.Kind() == reflect.String:
		if s, ok := data.(string); ok {
			return strings.TrimSpace(s), nil
		}
	case to.Kind() == reflect.Slice:
		if s, ok := data.(string); ok {
			var out []any
			if json.Unmarshal([]byte(s), &out) != nil {
				return []any{}, nil
			}
			return out, nil
		}
	}
	return data, nil
}

func toFloat(data any) (float64, bool) {
	v := reflect.ValueOf(data)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	case reflect.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64)
		return f, err == nil
	}
	return 0, false
}

func toIntArg(data any) intArg {
	f, ok := toFloat(data)
	switch {
	case !ok, math.IsNaN(f), math.IsInf(f, 0), f != math.Trunc(f):
		return intArg{set: true, bad: true}
	case f >= math.MaxInt || f < math.MinInt:
		return intArg{set: true, bad: true}
	}
	return intArg{v: int(f), set: true}
}

func toSecondsArg(data any) secondsArg {
	f, ok := toFloat(data)
	switch {
	case !ok:
		return secondsArg{set: true, problem: "must be a number"}
	case math.IsNaN(f), math.IsInf(f, 0):
		return secondsArg{set: true, problem: "must be a finite number"}
	case f < 0:
		return secondsArg{set: true, problem: "must not be negative"}
	case f*float64(time.Second) >= math.MaxInt64:
		return secondsArg{set: true, problem: "is too large"}
	}
	return secondsArg{d: time.Duration(f * float64(time.Second)), set: true}
}

// payload encodes a message argument. A string holding a JSON object is
// taken as that object.
func payload(v any) (json.RawMessage, bool) {
	switch m := v.(type) {
	case nil:
		return nil, false
	case string:
		s := strings.TrimSpace(m)
		if strings.HasPrefix(s, "{") && json.Valid([]byte(s)) {
			return json.RawMessage(s), s != "{}"
		}
		return nil, false
	case map[string]any:
		if len(m) == 0 {
			return nil, false
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return raw, true
}
