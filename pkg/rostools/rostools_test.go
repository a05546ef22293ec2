package rostools

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-pupper/pkg/rosbridge"
	"github.com/teslashibe/go-pupper/pkg/tools"
)

// robot answers rosbridge frames with respond; a nil reply is silence.
type robot struct {
	srv     *httptest.Server
	respond func(env *rosbridge.Envelope) []any

	mu  sync.Mutex
	ops []rosbridge.Op
}

func newRobot(t *testing.T, respond func(env *rosbridge.Envelope) []any) *robot {
	t.Helper()
	r := &robot{respond: respond}
	upgrader := websocket.Upgrader{}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ws, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			env, err := rosbridge.ParseEnvelope(data)
			if err != nil {
				continue
			}
			r.mu.Lock()
			r.ops = append(r.ops, env.Op)
			r.mu.Unlock()
			if r.respond == nil {
				continue
			}
			for _, reply := range r.respond(env) {
				if _, ok := reply.(hangUp); ok {
					_ = ws.UnderlyingConn().Close()
					return
				}
				out, _ := json.Marshal(reply)
				_ = ws.WriteMessage(websocket.TextMessage, out)
			}
		}
	}))
	t.Cleanup(r.srv.Close)
	return r
}

// hangUp in a reply list drops the connection at that point.
type hangUp struct{}

func (r *robot) count(op rosbridge.Op) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.ops {
		if o == op {
			n++
		}
	}
	return n
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func bridgeFor(t *testing.T, host string, port int) *rosbridge.Bridge {
	t.Helper()
	return rosbridge.New(rosbridge.Config{
		Host:         host,
		Port:         port,
		Timeout:      time.Second,
		PollInterval: 50 * time.Millisecond,
		Grace:        50 * time.Millisecond,
		ImagePath:    t.TempDir() + "/received_image.png",
		Logger:       quiet(),
	})
}

func setup(t *testing.T, respond func(env *rosbridge.Envelope) []any) (*tools.Local, *robot, *rosbridge.Bridge) {
	t.Helper()
	r := newRobot(t, respond)
	addr := r.srv.Listener.Addr().(*net.TCPAddr)
	b := bridgeFor(t, addr.IP.String(), addr.Port)
	return Tools(b, quiet()), r, b
}

func reply(env *rosbridge.Envelope, ok bool, values any) []any {
	return []any{map[string]any{
		"op": "service_response", "id": env.ID, "service": env.Service,
		"result": ok, "values": values,
	}}
}

func run(t *testing.T, l *tools.Local, name string, args map[string]any) map[string]any {
	t.Helper()
	raw, err := l.ExecuteTool(context.Background(), name, args)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("%s returned %s: %v", name, raw, err)
	}
	return out
}

func TestCatalogue(t *testing.T) {
	l := Tools(bridgeFor(t, "127.0.0.1", 1), quiet())
	list, _ := l.ListTools(context.Background())

	want := []string{
		"connect_to_robot", "get_topics", "get_topic_type", "get_message_details",
		"get_publishers_for_topic", "get_subscribers_for_topic", "subscribe_once",
		"publish_once", "subscribe_for_duration", "publish_for_durations",
		"get_services", "get_service_type", "get_service_details",
		"get_service_providers", "inspect_all_services", "call_service",
		"ping_robot", "analyze_previously_received_image",
	}
	if len(list) != len(want) {
		t.Fatalf("got %d tools, want %d", len(list), len(want))
	}
	for i, tool := range list {
		if tool.Name != want[i] {
			t.Errorf("tool %d = %s, want %s", i, tool.Name, want[i])
		}
		if tool.InputSchema.Type != "object" {
			t.Errorf("%s schema type = %q", tool.Name, tool.InputSchema.Type)
		}
	}
}

func TestCallServiceFailure(t *testing.T) {
	l, _, _ := setup(t, func(env *rosbridge.Envelope) []any {
		return reply(env, false, map[string]any{"message": "boom"})
	})

	got := run(t, l, "call_service", map[string]any{
		"service_name": "/reset", "service_type": "std_srvs/Trigger", "request": map[string]any{},
	})
	want := map[string]any{
		"service": "/reset", "service_type": "std_srvs/Trigger",
		"success": false, "error": "Service call failed: boom",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestCallServiceSuccess(t *testing.T) {
	l, _, _ := setup(t, func(env *rosbridge.Envelope) []any {
		return reply(env, true, map[string]any{"success": true, "message": "done"})
	})

	got := run(t, l, "call_service", map[string]any{
		"service_name": "/reset", "service_type": "std_srvs/Trigger", "request": `{"force": true}`,
	})
	if got["success"] != true {
		t.Fatalf("got %v", got)
	}
	if res, _ := got["result"].(map[string]any); res["message"] != "done" {
		t.Errorf("result = %v", got["result"])
	}
}

func TestCallServiceNoResponse(t *testing.T) {
	l, _, _ := setup(t, nil)
	got := run(t, l, "call_service", map[string]any{
		"service_name": "/slow", "service_type": "x/Slow", "request": map[string]any{}, "timeout": 0.2,
	})
	if got["error"] != "No response received from service call" || got["success"] != false {
		t.Errorf("got %v", got)
	}
}

func TestGetTopics(t *testing.T) {
	l, _, _ := setup(t, func(env *rosbridge.Envelope) []any {
		return reply(env, true, map[string]any{
			"topics": []string{"/cmd_vel", "/battery"},
			"types":  []string{"geometry_msgs/msg/Twist", "sensor_msgs/msg/BatteryState"},
		})
	})
	got := run(t, l, "get_topics", nil)
	if topics, _ := got["topics"].([]any); len(topics) != 2 {
		t.Errorf("got %v", got)
	}
}

func TestIntrospectionShapes(t *testing.T) {
	l, _, _ := setup(t, func(env *rosbridge.Envelope) []any {
		switch env.Service {
		case "/rosapi/publishers":
			return reply(env, true, map[string]any{"publishers": []string{"/teleop", "/nav"}})
		case "/rosapi/topic_type":
			return reply(env, true, map[string]any{"type": ""})
		case "/rosapi/services":
			return reply(env, true, map[string]any{"services": []string{"/a"}})
		}
		return reply(env, false, map[string]any{"message": "unexpected"})
	})

	tests := []struct {
		tool string
		args map[string]any
		key  string
		want any
	}{
		{"get_publishers_for_topic", map[string]any{"topic": "/cmd_vel"}, "publisher_count", float64(2)},
		{"get_publishers_for_topic", map[string]any{"topic": " "}, "error", "Topic name cannot be empty"},
		{"get_topic_type", map[string]any{"topic": "/ghost"}, "error", "Topic /ghost does not exist or has no type"},
		{"get_services", nil, "service_count", float64(1)},
		{"get_subscribers_for_topic", map[string]any{"topic": "/cmd_vel"}, "error", "Service call failed: unexpected"},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			got := run(t, l, tt.tool, tt.args)
			if got[tt.key] != tt.want {
				t.Errorf("%s = %v, want %v (full %v)", tt.key, got[tt.key], tt.want, got)
			}
		})
	}
}

func TestSubscribeOnce(t *testing.T) {
	l, r, _ := setup(t, func(env *rosbridge.Envelope) []any {
		if env.Op == rosbridge.OpSubscribe {
			return []any{map[string]any{"op": "publish", "topic": env.Topic, "msg": map[string]any{"data": 42}}}
		}
		return nil
	})

	got := run(t, l, "subscribe_once", map[string]any{"topic": "/answer", "msg_type": "std_msgs/msg/Int32"})
	if msg, _ := got["msg"].(map[string]any); msg["data"] != float64(42) {
		t.Errorf("got %v", got)
	}
	waitFor(t, func() bool { return r.count(rosbridge.OpUnsubscribe) == 1 })
}

func TestSubscribeOnceErrors(t *testing.T) {
	l, _, _ := setup(t, func(env *rosbridge.Envelope) []any {
		if env.Op == rosbridge.OpSubscribe && env.Topic == "/bad" {
			return []any{map[string]any{"op": "status", "level": "error", "msg": "unknown type"}}
		}
		return nil
	})

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"status error", map[string]any{"topic": "/bad", "msg_type": "x/Y"}, "Rosbridge error: unknown type"},
		{"timeout", map[string]any{"topic": "/quiet", "msg_type": "x/Y", "timeout": 0.2}, "Timeout waiting for message from topic"},
		{"missing type", map[string]any{"topic": "/quiet"}, "Missing required arguments: topic and msg_type must be provided."},
		{"bad queue", map[string]any{"topic": "/q", "msg_type": "x/Y", "queue_length": 0}, "queue_length must be an integer ≥ 1"},
		{"fractional throttle", map[string]any{"topic": "/q", "msg_type": "x/Y", "throttle_rate_ms": 1.5}, "throttle_rate_ms must be an integer ≥ 0"},
		{"nan queue", map[string]any{"topic": "/q", "msg_type": "x/Y", "queue_length": math.NaN()}, "queue_length must be an integer ≥ 1"},
		{"huge throttle", map[string]any{"topic": "/q", "msg_type": "x/Y", "throttle_rate_ms": 1e300}, "throttle_rate_ms must be an integer ≥ 0"},
		{"infinite timeout", map[string]any{"topic": "/q", "msg_type": "x/Y", "timeout": math.Inf(1)}, "timeout must be a finite number"},
		{"quoted queue", map[string]any{"topic": "/bad", "msg_type": "x/Y", "queue_length": " 5 "}, "Rosbridge error: unknown type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := run(t, l, "subscribe_once", tt.args); got["error"] != tt.want {
				t.Errorf("error = %v, want %q", got["error"], tt.want)
			}
		})
	}
}

func TestSubscribeForDuration(t *testing.T) {
	l, _, _ := setup(t, func(env *rosbridge.Envelope) []any {
		if env.Op != rosbridge.OpSubscribe {
			return nil
		}
		return []any{
			map[string]any{"op": "publish", "topic": env.Topic, "msg": map[string]any{"i": 1}},
			map[string]any{"op": "status", "level": "error", "msg": "dropped"},
			map[string]any{"op": "publish", "topic": env.Topic, "msg": map[string]any{"i": 2}},
		}
	})

	got := run(t, l, "subscribe_for_duration", map[string]any{
		"topic": "/count", "msg_type": "x/Y", "duration": 0.3, "max_messages": 5,
	})
	if got["collected_count"] != float64(2) {
		t.Errorf("collected_count = %v", got["collected_count"])
	}
	if errs, _ := got["status_errors"].([]any); len(errs) != 1 || errs[0] != "dropped" {
		t.Errorf("status_errors = %v", got["status_errors"])
	}
}

func TestSubscribeForDurationKeepsPartialOnDrop(t *testing.T) {
	l, r, _ := setup(t, func(env *rosbridge.Envelope) []any {
		if env.Op != rosbridge.OpSubscribe {
			return nil
		}
		return []any{
			map[string]any{"op": "publish", "topic": env.Topic, "msg": map[string]any{"i": 1}},
			hangUp{},
		}
	})

	got := run(t, l, "subscribe_for_duration", map[string]any{
		"topic": "/count", "msg_type": "x/Y", "duration": 2, "max_messages": 5,
	})
	if got["collected_count"] != float64(1) {
		t.Errorf("collected_count = %v, want 1 (full %v)", got["collected_count"], got)
	}
	if e, _ := got["error"].(string); e == "" {
		t.Errorf("error = %v, want the transport failure", got["error"])
	}
	waitFor(t, func() bool { return r.count(rosbridge.OpUnsubscribe) == 1 })
}

func TestPublishOnce(t *testing.T) {
	l, r, _ := setup(t, nil)

	got := run(t, l, "publish_once", map[string]any{
		"topic": "/cmd_vel", "msg_type": "geometry_msgs/msg/Twist",
		"msg": map[string]any{"linear": map[string]any{"x": 1.0}},
	})
	if got["success"] != true {
		t.Fatalf("got %v", got)
	}
	waitFor(t, func() bool {
		return r.count(rosbridge.OpAdvertise) == 1 && r.count(rosbridge.OpPublish) == 1 && r.count(rosbridge.OpUnadvertise) == 1
	})

	got = run(t, l, "publish_once", map[string]any{"topic": "/cmd_vel", "msg_type": "x/Y", "msg": map[string]any{}})
	if got["error"] != "Missing required arguments: topic, msg_type, and msg must all be provided." {
		t.Errorf("empty msg: %v", got)
	}
}

func TestPublishOnceRejected(t *testing.T) {
	l, _, _ := setup(t, func(env *rosbridge.Envelope) []any {
		if env.Op == rosbridge.OpPublish {
			return []any{map[string]any{"op": "status", "level": "error", "msg": "bad field"}}
		}
		return nil
	})
	got := run(t, l, "publish_once", map[string]any{"topic": "/t", "msg_type": "x/Y", "msg": `{"a": 1}`})
	if got["error"] != "Publish failed: bad field" {
		t.Errorf("got %v", got)
	}
}

func TestPublishForDurations(t *testing.T) {
	l, r, _ := setup(t, nil)

	start := time.Now()
	got := run(t, l, "publish_for_durations", map[string]any{
		"topic": "/cmd_vel", "msg_type": "x/Y",
		"messages":  []any{map[string]any{"x": 1}, map[string]any{"x": 0}},
		"durations": []any{0.1, 0.1},
	})
	if got["published_count"] != float64(2) || got["total_messages"] != float64(2) {
		t.Fatalf("got %v", got)
	}
	if time.Since(start) < 200*time.Millisecond {
		t.Errorf("delays not honored: %v", time.Since(start))
	}
	waitFor(t, func() bool { return r.count(rosbridge.OpPublish) == 2 })

	got = run(t, l, "publish_for_durations", map[string]any{
		"topic": "/cmd_vel", "msg_type": "x/Y",
		"messages": []any{map[string]any{"x": 1}}, "durations": []any{1, 2},
	})
	if got["error"] != "messages and durations must have the same length" {
		t.Errorf("mismatch: %v", got)
	}

	got = run(t, l, "publish_for_durations", map[string]any{
		"topic": "/cmd_vel", "msg_type": "x/Y",
		"messages":  `[{"x": 1}, {"x": 0}]`,
		"durations": "[0.05, 0.05]",
	})
	if got["published_count"] != float64(2) {
		t.Errorf("JSON-encoded lists: %v", got)
	}

	got = run(t, l, "publish_for_durations", map[string]any{
		"topic": "/cmd_vel", "msg_type": "x/Y",
		"messages": []any{map[string]any{"x": 1}}, "durations": []any{math.NaN()},
	})
	if got["error"] != "durations[0]: duration must be a finite number" {
		t.Errorf("NaN duration: %v", got)
	}
}

func TestConnectToRobot(t *testing.T) {
	b := bridgeFor(t, "127.0.0.1", 9090)
	l := Tools(b, quiet())

	got := run(t, l, "connect_to_robot", map[string]any{
		"ip": "127.0.0.1", "port": 1, "ping_timeout": 0.2, "port_timeout": 0.2,
	})
	if got["message"] != "WebSocket IP set to 127.0.0.1:1" {
		t.Errorf("message = %v", got["message"])
	}
	if !strings.HasSuffix(b.URL(), "127.0.0.1:1") {
		t.Errorf("URL = %s", b.URL())
	}
	test, _ := got["connectivity_test"].(map[string]any)
	if port, _ := test["port"].(map[string]any); port["open"] != false {
		t.Errorf("connectivity_test = %v", test)
	}
}

func TestReachabilityArgumentErrors(t *testing.T) {
	l := Tools(bridgeFor(t, "127.0.0.1", 9090), quiet())

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing ip", map[string]any{"port": 9090}, "ip is required"},
		{"missing port", map[string]any{"ip": "10.0.0.2"}, "port is required"},
		{"fractional port", map[string]any{"ip": "10.0.0.2", "port": 90.5}, "port must be an integer"},
		{"negative timeout", map[string]any{"ip": "10.0.0.2", "port": 9090, "ping_timeout": -1}, "ping_timeout must not be negative"},
		{"text timeout", map[string]any{"ip": "10.0.0.2", "port": 9090, "port_timeout": "soon"}, "port_timeout must be a number"},
		{"huge timeout", map[string]any{"ip": "10.0.0.2", "port": 9090, "port_timeout": 1e12}, "port_timeout is too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := run(t, l, "ping_robot", tt.args); got["error"] != tt.want {
				t.Errorf("error = %v, want %q", got["error"], tt.want)
			}
		})
	}
}

func TestTransportFailureIsRetryable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	l := Tools(bridgeFor(t, "127.0.0.1", port), quiet())
	if _, err := l.ExecuteTool(context.Background(), "get_topics", nil); err == nil {
		t.Fatal("expected a transport error")
	}
}

func TestAnalyzeImageWithoutImage(t *testing.T) {
	l := Tools(bridgeFor(t, "127.0.0.1", 1), quiet())
	got := run(t, l, "analyze_previously_received_image", nil)
	if e, _ := got["error"].(string); !strings.HasPrefix(e, "No previously received image found at ") {
		t.Errorf("got %v", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met")
}
