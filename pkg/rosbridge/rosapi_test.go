package rosbridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

// rosapiBridge answers rosapi calls from a table keyed by service name.
func rosapiBridge(t *testing.T, answers map[string]func(args map[string]string) (bool, any)) *fakeBridge {
	return newFakeBridge(t, func(p *peer, env *Envelope) {
		if env.Op != OpCallService {
			return
		}
		var args map[string]string
		_ = json.Unmarshal(env.Args, &args)
		answer, ok := answers[env.Service]
		if !ok {
			p.send(statusError(env.ID, "unknown service "+env.Service))
			return
		}
		result, values := answer(args)
		p.send(serviceResponse(env.ID, result, values))
	})
}

func TestTopics(t *testing.T) {
	f := rosapiBridge(t, map[string]func(map[string]string) (bool, any){
		"/rosapi/topics": func(map[string]string) (bool, any) {
			return true, map[string]any{
				"topics": []string{"/cmd_vel", "/odom"},
				"types":  []string{"geometry_msgs/msg/Twist", "nav_msgs/msg/Odometry"},
			}
		},
	})
	b := newTestBridge(t, f)

	list, err := b.Topics(context.Background())
	if err != nil {
		t.Fatalf("Topics: %v", err)
	}
	if len(list.Topics) != 2 || list.Types[1] != "nav_msgs/msg/Odometry" {
		t.Errorf("list = %+v", list)
	}
}

func TestTopicType(t *testing.T) {
	f := rosapiBridge(t, map[string]func(map[string]string) (bool, any){
		"/rosapi/topic_type": func(args map[string]string) (bool, any) {
			if args["topic"] == "/cmd_vel" {
				return true, map[string]string{"type": "geometry_msgs/msg/Twist"}
			}
			return true, map[string]string{"type": ""}
		},
	})
	b := newTestBridge(t, f)

	typ, err := b.TopicType(context.Background(), "/cmd_vel")
	if err != nil || typ != "geometry_msgs/msg/Twist" {
		t.Errorf("TopicType = %q, %v", typ, err)
	}
	typ, err = b.TopicType(context.Background(), "/missing")
	if err != nil || typ != "" {
		t.Errorf("TopicType(missing) = %q, %v", typ, err)
	}
	if _, err := b.TopicType(context.Background(), "  "); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("empty topic err = %v", err)
	}
}

func TestMessageDetails(t *testing.T) {
	f := rosapiBridge(t, map[string]func(map[string]string) (bool, any){
		"/rosapi/message_details": func(args map[string]string) (bool, any) {
			return true, map[string]any{"typedefs": []map[string]any{
				{
					"type":       args["type"],
					"fieldnames": []string{"linear", "angular"},
					"fieldtypes": []string{"geometry_msgs/Vector3", "geometry_msgs/Vector3"},
				},
				{
					"type":       "geometry_msgs/Vector3",
					"fieldnames": []string{"x", "y", "z"},
					"fieldtypes": []string{"float64", "float64", "float64"},
				},
			}}
		},
	})
	b := newTestBridge(t, f)

	details, err := b.MessageDetails(context.Background(), "geometry_msgs/Twist")
	if err != nil {
		t.Fatalf("MessageDetails: %v", err)
	}
	twist, ok := details["geometry_msgs/Twist"]
	if !ok {
		t.Fatalf("missing top-level type in %v", details)
	}
	if twist.FieldCount != 2 || twist.Fields["linear"] != "geometry_msgs/Vector3" {
		t.Errorf("twist = %+v", twist)
	}
	if details["geometry_msgs/Vector3"].FieldCount != 3 {
		t.Errorf("vector3 = %+v", details["geometry_msgs/Vector3"])
	}
}

func TestPublishersAndSubscribers(t *testing.T) {
	f := rosapiBridge(t, map[string]func(map[string]string) (bool, any){
		"/rosapi/publishers": func(map[string]string) (bool, any) {
			return true, map[string]any{"publishers": []string{"/teleop"}}
		},
		"/rosapi/subscribers": func(map[string]string) (bool, any) {
			return true, map[string]any{}
		},
	})
	b := newTestBridge(t, f)

	pubs, err := b.Publishers(context.Background(), "/cmd_vel")
	if err != nil || len(pubs) != 1 || pubs[0] != "/teleop" {
		t.Errorf("Publishers = %v, %v", pubs, err)
	}
	subs, err := b.Subscribers(context.Background(), "/cmd_vel")
	if err != nil {
		t.Fatal(err)
	}
	if subs == nil || len(subs) != 0 {
		t.Errorf("Subscribers = %#v, want empty non-nil", subs)
	}
}

func TestRosapiFailure(t *testing.T) {
	f := rosapiBridge(t, map[string]func(map[string]string) (bool, any){
		"/rosapi/service_type": func(map[string]string) (bool, any) {
			return false, map[string]any{"message": "no such service"}
		},
	})
	b := newTestBridge(t, f)

	_, err := b.ServiceType(context.Background(), "/nope")
	var be *BridgeError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *BridgeError", err)
	}
	if be.Msg != "Service call failed: no such service" {
		t.Errorf("Msg = %q", be.Msg)
	}
}

func TestServiceDetailsSingleConnection(t *testing.T) {
	typedef := func(names ...string) (bool, any) {
		types := make([]string, len(names))
		for i := range types {
			types[i] = "int64"
		}
		return true, map[string]any{"typedefs": []map[string]any{
			{"type": "AddTwoInts", "fieldnames": names, "fieldtypes": types},
		}}
	}
	f := rosapiBridge(t, map[string]func(map[string]string) (bool, any){
		"/rosapi/service_request_details":  func(map[string]string) (bool, any) { return typedef("a", "b") },
		"/rosapi/service_response_details": func(map[string]string) (bool, any) { return typedef("sum") },
	})
	b := newTestBridge(t, f)

	details, err := b.ServiceDetails(context.Background(), "example_interfaces/srv/AddTwoInts")
	if err != nil {
		t.Fatalf("ServiceDetails: %v", err)
	}
	if details.Request == nil || details.Request.FieldCount != 2 {
		t.Errorf("Request = %+v", details.Request)
	}
	if details.Response == nil || details.Response.Fields["sum"] != "int64" {
		t.Errorf("Response = %+v", details.Response)
	}
	if n := f.connCount(); n != 1 {
		t.Errorf("connections = %d, want 1", n)
	}
}

func TestServiceDetailsNotFound(t *testing.T) {
	f := rosapiBridge(t, nil)
	b := newTestBridge(t, f)

	_, err := b.ServiceDetails(context.Background(), "bogus/srv/X")
	var be *BridgeError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *BridgeError", err)
	}
}

func TestInspectServices(t *testing.T) {
	f := rosapiBridge(t, map[string]func(map[string]string) (bool, any){
		"/rosapi/services": func(map[string]string) (bool, any) {
			return true, map[string]any{"services": []string{"/stand", "/broken"}}
		},
		"/rosapi/service_type": func(args map[string]string) (bool, any) {
			if args["service"] == "/broken" {
				return false, map[string]any{"message": "lookup failed"}
			}
			return true, map[string]string{"type": "std_srvs/srv/Trigger"}
		},
		"/rosapi/service_providers": func(args map[string]string) (bool, any) {
			return true, map[string]any{"providers": []string{"/pupper_node"}}
		},
	})
	b := newTestBridge(t, f)

	inv, err := b.InspectServices(context.Background())
	if err != nil {
		t.Fatalf("InspectServices: %v", err)
	}
	if inv.Total != 2 {
		t.Errorf("Total = %d", inv.Total)
	}
	if got := inv.Services["/stand"]; got.Type != "std_srvs/srv/Trigger" || got.ProviderCount != 1 {
		t.Errorf("/stand = %+v", got)
	}
	if len(inv.Errors) != 1 {
		t.Errorf("Errors = %v, want one entry for /broken", inv.Errors)
	}
	if n := f.connCount(); n != 1 {
		t.Errorf("connections = %d, want 1", n)
	}
}
