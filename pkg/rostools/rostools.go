// Package rostools exposes rosbridge operations as tools the assistant
// can call.
//
// Bridge refusals, timeouts, and bad arguments come back as
// {"error": "..."} results the model can read. Transport and decode
// failures are returned as Go errors so the dispatcher retries them.
package rostools

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/teslashibe/go-pupper/internal/log"
	"github.com/teslashibe/go-pupper/pkg/rosbridge"
	"github.com/teslashibe/go-pupper/pkg/tools"
)

// Defaults applied when the model omits an argument.
const (
	DefaultCollectDuration = 5 * time.Second
	DefaultMaxMessages     = 100
	DefaultCheckTimeout    = 2 * time.Second
)

// imageContent is shaped like a tool-server image content block.
type imageContent struct {
	Type     string `json:"type"`
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

type handlers struct {
	b      *rosbridge.Bridge
	logger *slog.Logger
}

// Tools registers every bridge tool on a new registry.
func Tools(b *rosbridge.Bridge, logger *slog.Logger) *tools.Local {
	if logger == nil {
		logger = log.Component("rostools")
	}
	h := &handlers{b: b, logger: logger}
	l := tools.NewLocal("rosbridge")

	topic := tools.Property{Type: "string", Description: "The topic name (e.g. '/cmd_vel')"}
	msgType := tools.Property{Type: "string", Description: "The message type (e.g. 'geometry_msgs/msg/Twist')"}
	service := tools.Property{Type: "string", Description: "The service name (e.g. '/rosapi/topics')"}
	queueLength := tools.Property{Type: "integer", Description: "How many messages to buffer before dropping old ones. Must be ≥ 1."}
	throttle := tools.Property{Type: "integer", Description: "Minimum interval between messages in milliseconds. Must be ≥ 0."}
	ip := tools.Property{Type: "string", Description: "IP address of the robot"}
	port := tools.Property{Type: "integer", Description: "Rosbridge port", Default: rosbridge.DefaultPort}
	pingTimeout := tools.Property{Type: "number", Description: "Timeout for ping in seconds", Default: 2.0}
	portTimeout := tools.Property{Type: "number", Description: "Timeout for the port check in seconds", Default: 2.0}

	l.Register(tools.Tool{
		Name:        "connect_to_robot",
		Description: "Connect to a robot by setting IP/port and testing connectivity.",
		InputSchema: tools.Object(map[string]tools.Property{
			"ip": ip, "port": port, "ping_timeout": pingTimeout, "port_timeout": portTimeout,
		}),
	}, h.connectToRobot)

	l.Register(tools.Tool{
		Name:        "get_topics",
		Description: "Fetch available topics from the ROS bridge.\nExample:\nget_topics()",
	}, h.getTopics)

	l.Register(tools.Tool{
		Name:        "get_topic_type",
		Description: "Get the message type for a specific topic.\nExample:\nget_topic_type('/cmd_vel')",
		InputSchema: tools.Object(map[string]tools.Property{"topic": topic}, "topic"),
	}, h.getTopicType)

	l.Register(tools.Tool{
		Name:        "get_message_details",
		Description: "Get the complete structure/definition of a message type.\nExample:\nget_message_details('geometry_msgs/Twist')",
		InputSchema: tools.Object(map[string]tools.Property{"message_type": msgType}, "message_type"),
	}, h.getMessageDetails)

	l.Register(tools.Tool{
		Name:        "get_publishers_for_topic",
		Description: "Get list of nodes that are publishing to a specific topic.\nExample:\nget_publishers_for_topic('/cmd_vel')",
		InputSchema: tools.Object(map[string]tools.Property{"topic": topic}, "topic"),
	}, h.nodes("publishers", h.b.Publishers))

	l.Register(tools.Tool{
		Name:        "get_subscribers_for_topic",
		Description: "Get list of nodes that are subscribed to a specific topic.\nExample:\nget_subscribers_for_topic('/cmd_vel')",
		InputSchema: tools.Object(map[string]tools.Property{"topic": topic}, "topic"),
	}, h.nodes("subscribers", h.b.Subscribers))

	l.Register(tools.Tool{
		Name: "subscribe_once",
		Description: "Subscribe to a ROS topic and return the first message received.\nExample:\n" +
			"subscribe_once(topic='/cmd_vel', msg_type='geometry_msgs/msg/TwistStamped')\n" +
			"subscribe_once(topic='/slow_topic', msg_type='my_package/SlowMsg', timeout=10.0)  # Specify timeout only if topic publishes infrequently",
		InputSchema: tools.Object(map[string]tools.Property{
			"topic":            topic,
			"msg_type":         msgType,
			"timeout":          {Type: "number", Description: "Timeout in seconds. Uses the bridge default when omitted."},
			"queue_length":     queueLength,
			"throttle_rate_ms": throttle,
		}, "topic", "msg_type"),
	}, h.subscribeOnce)

	l.Register(tools.Tool{
		Name:        "publish_once",
		Description: "Publish a single message to a ROS topic.\nExample:\npublish_once(topic='/cmd_vel', msg_type='geometry_msgs/msg/TwistStamped', msg={'linear': {'x': 1.0}})",
		InputSchema: tools.Object(map[string]tools.Property{
			"topic":    topic,
			"msg_type": msgType,
			"msg":      {Type: "object", Description: "Message payload"},
		}, "topic", "msg_type", "msg"),
	}, h.publishOnce)

	l.Register(tools.Tool{
		Name:        "subscribe_for_duration",
		Description: "Subscribe to a topic for a duration and collect messages.\nExample:\nsubscribe_for_duration(topic='/cmd_vel', msg_type='geometry_msgs/msg/TwistStamped', duration=5, max_messages=10)",
		InputSchema: tools.Object(map[string]tools.Property{
			"topic":            topic,
			"msg_type":         msgType,
			"duration":         {Type: "number", Description: "How long to listen, in seconds", Default: 5.0},
			"max_messages":     {Type: "integer", Description: "Stop after this many messages", Default: DefaultMaxMessages},
			"queue_length":     queueLength,
			"throttle_rate_ms": throttle,
		}, "topic", "msg_type"),
	}, h.subscribeForDuration)

	l.Register(tools.Tool{
		Name:        "publish_for_durations",
		Description: "Publish a sequence of messages with delays.\nExample:\npublish_for_durations(topic='/cmd_vel', msg_type='geometry_msgs/msg/TwistStamped', messages=[{'linear': {'x': 1.0}}, {'linear': {'x': 0.0}}], durations=[1, 2])",
		InputSchema: tools.Object(map[string]tools.Property{
			"topic":     topic,
			"msg_type":  msgType,
			"messages":  {Type: "array", Description: "Message payloads", Items: &tools.Property{Type: "object"}},
			"durations": {Type: "array", Description: "Seconds to wait after each message", Items: &tools.Property{Type: "number"}},
		}, "topic", "msg_type", "messages", "durations"),
	}, h.publishForDurations)

	l.Register(tools.Tool{
		Name:        "get_services",
		Description: "Get list of all available ROS services.\nExample:\nget_services()",
	}, h.getServices)

	l.Register(tools.Tool{
		Name:        "get_service_type",
		Description: "Get the service type for a specific service.\nExample:\nget_service_type('/rosapi/topics')",
		InputSchema: tools.Object(map[string]tools.Property{"service": service}, "service"),
	}, h.getServiceType)

	l.Register(tools.Tool{
		Name:        "get_service_details",
		Description: "Get complete service details including request and response structures.\nExample:\nget_service_details('my_package/CustomService')",
		InputSchema: tools.Object(map[string]tools.Property{
			"service_type": {Type: "string", Description: "The service type (e.g. 'my_package/CustomService')"},
		}, "service_type"),
	}, h.getServiceDetails)

	l.Register(tools.Tool{
		Name:        "get_service_providers",
		Description: "Get list of nodes that provide a specific service.\nExample:\nget_service_providers('/rosapi/topics')",
		InputSchema: tools.Object(map[string]tools.Property{"service": service}, "service"),
	}, h.getServiceProviders)

	l.Register(tools.Tool{
		Name:        "inspect_all_services",
		Description: "Get comprehensive information about all services including types and providers.\nExample:\ninspect_all_services()",
	}, h.inspectAllServices)

	l.Register(tools.Tool{
		Name:        "call_service",
		Description: "Call a ROS service with specified request data.\nExample:\ncall_service('/rosapi/topics', 'rosapi/Topics', {})\ncall_service('/slow_service', 'my_package/SlowService', {}, timeout=10.0)  # Specify timeout only for slow services",
		InputSchema: tools.Object(map[string]tools.Property{
			"service_name": service,
			"service_type": {Type: "string", Description: "The service type (e.g. 'rosapi/Topics')"},
			"request":      {Type: "object", Description: "Service request data"},
			"timeout":      {Type: "number", Description: "Timeout in seconds. Uses the bridge default when omitted."},
		}, "service_name", "service_type", "request"),
	}, h.callService)

	l.Register(tools.Tool{
		Name: "ping_robot",
		Description: "Ping a robot's IP address and check if a specific port is open.\n" +
			"A successful ping to the IP but not the port can indicate that ROSbridge is not running.\n" +
			"Example:\nping_robot(ip='192.168.1.100', port=9090)",
		InputSchema: tools.Object(map[string]tools.Property{
			"ip": ip, "port": port, "ping_timeout": pingTimeout, "port_timeout": portTimeout,
		}, "ip", "port"),
	}, h.pingRobot)

	l.Register(tools.Tool{
		Name:        "analyze_previously_received_image",
		Description: "Return the image most recently received by subscribe_once as a PNG for analysis.",
	}, h.analyzeImage)

	return l
}

func errorResult(msg string) map[string]any {
	return map[string]any{"error": msg}
}

// fail maps a bridge error to a tool result. Bridge refusals get prefix;
// a timeout becomes timeoutMsg when set. Anything else stays an error.
func (h *handlers) fail(err error, prefix, timeoutMsg string) (any, error) {
	var be *rosbridge.BridgeError
	switch {
	case errors.As(err, &be):
		return errorResult(prefix + be.Msg), nil
	case errors.Is(err, rosbridge.ErrInvalidArgument):
		return errorResult(strings.TrimPrefix(err.Error(), rosbridge.ErrInvalidArgument.Error()+": ")), nil
	case errors.Is(err, rosbridge.ErrTimeout):
		if timeoutMsg == "" {
			timeoutMsg = err.Error()
		}
		return errorResult(timeoutMsg), nil
	}
	return nil, err
}

func reachTarget(args map[string]any) (reachArgs, *int, time.Duration, time.Duration, error) {
	var a reachArgs
	if err := decode(args, &a); err != nil {
		return a, nil, 0, 0, err
	}
	port, err := a.Port.get("port must be an integer")
	if err != nil {
		return a, nil, 0, 0, err
	}
	pingT, err := a.PingTimeout.get("ping_timeout", DefaultCheckTimeout)
	if err != nil {
		return a, nil, 0, 0, err
	}
	portT, err := a.PortTimeout.get("port_timeout", DefaultCheckTimeout)
	if err != nil {
		return a, nil, 0, 0, err
	}
	return a, port, pingT, portT, nil
}

func (h *handlers) connectToRobot(ctx context.Context, args map[string]any) (any, error) {
	a, port, pingT, portT, err := reachTarget(args)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	ip := a.IP
	if ip == "" {
		ip = "127.0.0.1"
	}
	p := rosbridge.DefaultPort
	if port != nil {
		p = *port
	}

	h.b.SetAddr(ip, p)
	h.logger.Info("bridge retargeted", "ip", ip, "port", p)
	return map[string]any{
		"message":           fmt.Sprintf("WebSocket IP set to %s:%d", ip, p),
		"connectivity_test": rosbridge.CheckReachability(ctx, ip, p, pingT, portT),
	}, nil
}

func (h *handlers) pingRobot(ctx context.Context, args map[string]any) (any, error) {
	a, port, pingT, portT, err := reachTarget(args)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if a.IP == "" {
		return errorResult("ip is required"), nil
	}
	if port == nil {
		return errorResult("port is required"), nil
	}
	return rosbridge.CheckReachability(ctx, a.IP, *port, pingT, portT), nil
}

// lookup decodes the name arguments shared by the introspection tools.
func lookup(args map[string]any) (lookupArgs, error) {
	var a lookupArgs
	err := decode(args, &a)
	return a, err
}

func (h *handlers) getTopics(ctx context.Context, _ map[string]any) (any, error) {
	list, err := h.b.Topics(ctx)
	if err != nil {
		return h.fail(err, "", "")
	}
	if len(list.Topics) == 0 {
		return map[string]any{"warning": "No topics found"}, nil
	}
	return list, nil
}

func (h *handlers) getTopicType(ctx context.Context, args map[string]any) (any, error) {
	a, err := lookup(args)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	topic := a.Topic
	if topic == "" {
		return errorResult("Topic name cannot be empty"), nil
	}
	t, err := h.b.TopicType(ctx, topic)
	if err != nil {
		return h.fail(err, "", "")
	}
	if t == "" {
		return errorResult(fmt.Sprintf("Topic %s does not exist or has no type", topic)), nil
	}
	return map[string]any{"topic": topic, "type": t}, nil
}

func (h *handlers) getMessageDetails(ctx context.Context, args map[string]any) (any, error) {
	a, err := lookup(args)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	mt := a.MessageType
	if mt == "" {
		return errorResult("Message type cannot be empty"), nil
	}
	structure, err := h.b.MessageDetails(ctx, mt)
	if err != nil {
		return h.fail(err, "", "")
	}
	if len(structure) == 0 {
		return errorResult(fmt.Sprintf("Message type %s not found or has no definition", mt)), nil
	}
	return map[string]any{"message_type": mt, "structure": structure}, nil
}

// nodes builds a handler for the publisher and subscriber listings.
func (h *handlers) nodes(field string, fetch func(context.Context, string) ([]string, error)) tools.Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		a, err := lookup(args)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		topic := a.Topic
		if topic == "" {
			return errorResult("Topic name cannot be empty"), nil
		}
		names, err := fetch(ctx, topic)
		if err != nil {
			return h.fail(err, "", "")
		}
		out := map[string]any{"topic": topic, field: names}
		out[strings.TrimSuffix(field, "s")+"_count"] = len(names)
		return out, nil
	}
}

var errMissingTopic = errors.New("Missing required arguments: topic and msg_type must be provided.")

func subscribeRequest(args map[string]any) (subscribeArgs, rosbridge.SubscribeRequest, error) {
	var a subscribeArgs
	if err := decode(args, &a); err != nil {
		return a, rosbridge.SubscribeRequest{}, err
	}
	req := rosbridge.SubscribeRequest{Topic: a.Topic, Type: a.MsgType}
	if req.Topic == "" || req.Type == "" {
		return a, req, errMissingTopic
	}
	var err error
	if req.QueueLength, err = a.QueueLength.get("queue_length must be an integer ≥ 1"); err != nil {
		return a, req, err
	}
	if req.ThrottleRate, err = a.ThrottleRate.get("throttle_rate_ms must be an integer ≥ 0"); err != nil {
		return a, req, err
	}
	return a, req, nil
}

func (h *handlers) subscribeOnce(ctx context.Context, args map[string]any) (any, error) {
	a, req, err := subscribeRequest(args)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if req.Timeout, err = a.Timeout.get("timeout", 0); err != nil {
		return errorResult(err.Error()), nil
	}

	msg, err := h.b.SubscribeOnce(ctx, req)
	if err != nil {
		return h.fail(err, "Rosbridge error: ", "Timeout waiting for message from topic")
	}
	if msg.Image != nil {
		return map[string]any{
			"message":  "Image received successfully and saved. Run the 'analyze_previously_received_image' tool to analyze it",
			"width":    msg.Image.Width,
			"height":   msg.Image.Height,
			"encoding": msg.Image.Encoding,
		}, nil
	}
	return map[string]any{"msg": msg.Msg}, nil
}

func (h *handlers) subscribeForDuration(ctx context.Context, args map[string]any) (any, error) {
	a, req, err := subscribeRequest(args)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	duration, err := a.Duration.get("duration", DefaultCollectDuration)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	maxMessages, err := a.MaxMessages.get("max_messages must be an integer ≥ 1")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	limit := DefaultMaxMessages
	if maxMessages != nil {
		limit = *maxMessages
	}

	col, err := h.b.SubscribeFor(ctx, req, duration, limit)
	if err != nil && (col == nil || len(col.Messages)+len(col.StatusErrors) == 0) {
		return h.fail(err, "Rosbridge error: ", "")
	}
	out := map[string]any{
		"topic":           col.Topic,
		"collected_count": len(col.Messages),
		"messages":        col.Messages,
		"status_errors":   col.StatusErrors,
	}
	if err != nil {
		// Keep what arrived before the failure.
		h.logger.Warn("collection cut short", "topic", col.Topic, "collected", len(col.Messages), "error", err)
		out["error"] = err.Error()
	}
	return out, nil
}

func (h *handlers) publishOnce(ctx context.Context, args map[string]any) (any, error) {
	var a publishArgs
	if err := decode(args, &a); err != nil {
		return errorResult(err.Error()), nil
	}
	msg, ok := payload(a.Msg)
	if a.Topic == "" || a.MsgType == "" || !ok {
		return errorResult("Missing required arguments: topic, msg_type, and msg must all be provided."), nil
	}

	err := h.b.PublishOnce(ctx, a.Topic, a.MsgType, msg)
	var be *rosbridge.BridgeError
	if errors.As(err, &be) {
		if be.Op == rosbridge.OpAdvertise {
			return errorResult("Advertise failed: " + be.Msg), nil
		}
		return errorResult("Publish failed: " + strings.TrimPrefix(be.Msg, "Message 1: ")), nil
	}
	if err != nil {
		return h.fail(err, "", "")
	}
	return map[string]any{
		"success": true,
		"note":    "Message published using advertise → publish → unadvertise pattern",
	}, nil
}

func (h *handlers) publishForDurations(ctx context.Context, args map[string]any) (any, error) {
	var a sequenceArgs
	if err := decode(args, &a); err != nil {
		return errorResult(err.Error()), nil
	}
	if a.Topic == "" || a.MsgType == "" || len(a.Messages) == 0 || len(a.Durations) == 0 {
		return errorResult("Missing required arguments: topic, msg_type, messages, and durations must all be provided."), nil
	}
	if len(a.Messages) != len(a.Durations) {
		return errorResult("messages and durations must have the same length"), nil
	}

	items := make([]rosbridge.PublishItem, len(a.Messages))
	for i := range a.Messages {
		raw, ok := payload(a.Messages[i])
		if !ok {
			raw = []byte(`{}`)
		}
		delay, err := a.Durations[i].get("duration", 0)
		if err != nil {
			return errorResult(fmt.Sprintf("durations[%d]: %v", i, err)), nil
		}
		items[i] = rosbridge.PublishItem{Msg: raw, Delay: delay}
	}

	report, err := h.b.PublishSequence(ctx, a.Topic, a.MsgType, items)
	if err != nil {
		return h.fail(err, "Advertise failed: ", "")
	}
	return map[string]any{
		"success":         true,
		"published_count": report.Published,
		"total_messages":  report.Total,
		"topic":           report.Topic,
		"msg_type":        report.Type,
		"errors":          report.Errors,
	}, nil
}

func (h *handlers) getServices(ctx context.Context, _ map[string]any) (any, error) {
	services, err := h.b.Services(ctx)
	if err != nil {
		return h.fail(err, "", "")
	}
	return map[string]any{"services": services, "service_count": len(services)}, nil
}

func (h *handlers) getServiceType(ctx context.Context, args map[string]any) (any, error) {
	a, err := lookup(args)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	svc := a.Service
	if svc == "" {
		return errorResult("Service name cannot be empty"), nil
	}
	t, err := h.b.ServiceType(ctx, svc)
	if err != nil {
		return h.fail(err, "", "")
	}
	if t == "" {
		return errorResult(fmt.Sprintf("Service %s does not exist or has no type", svc)), nil
	}
	return map[string]any{"service": svc, "type": t}, nil
}

func (h *handlers) getServiceDetails(ctx context.Context, args map[string]any) (any, error) {
	a, err := lookup(args)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	st := a.ServiceType
	if st == "" {
		return errorResult("Service type cannot be empty"), nil
	}
	details, err := h.b.ServiceDetails(ctx, st)
	if err != nil {
		return h.fail(err, "", "")
	}
	return details, nil
}

func (h *handlers) getServiceProviders(ctx context.Context, args map[string]any) (any, error) {
	a, err := lookup(args)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	svc := a.Service
	if svc == "" {
		return errorResult("Service name cannot be empty"), nil
	}
	providers, err := h.b.ServiceProviders(ctx, svc)
	if err != nil {
		return h.fail(err, "", "")
	}
	return map[string]any{"service": svc, "providers": providers, "provider_count": len(providers)}, nil
}

func (h *handlers) inspectAllServices(ctx context.Context, _ map[string]any) (any, error) {
	inv, err := h.b.InspectServices(ctx)
	if err != nil {
		return h.fail(err, "", "")
	}
	return inv, nil
}

func (h *handlers) callService(ctx context.Context, args map[string]any) (any, error) {
	var a callArgs
	if err := decode(args, &a); err != nil {
		return errorResult(err.Error()), nil
	}
	name, st := a.ServiceName, a.ServiceType
	timeout, err := a.Timeout.get("timeout", 0)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	request := a.Request
	if s, ok := request.(string); ok {
		if raw, ok := payload(s); ok {
			request = raw
		} else {
			request = nil
		}
	}

	res, err := h.b.CallService(ctx, name, st, request, timeout)
	if err != nil {
		if errors.Is(err, rosbridge.ErrTimeout) {
			return map[string]any{
				"service":      name,
				"service_type": st,
				"success":      false,
				"error":        "No response received from service call",
			}, nil
		}
		return h.fail(err, "", "")
	}
	return res, nil
}

func (h *handlers) analyzeImage(ctx context.Context, _ map[string]any) (any, error) {
	store := h.b.Images()
	data, err := store.LoadPNG()
	if errors.Is(err, rosbridge.ErrNoImage) {
		return errorResult("No previously received image found at " + store.Path()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return imageContent{
		Type:     "image",
		Data:     base64.StdEncoding.EncodeToString(data),
		MimeType: "image/png",
	}, nil
}
