package rosbridge

import (
	"context"
	"fmt"
	"strings"
)

// rosapi services used for graph introspection.
const (
	srvTopics          = "/rosapi/topics"
	srvTopicType       = "/rosapi/topic_type"
	srvMessageDetails  = "/rosapi/message_details"
	srvPublishers      = "/rosapi/publishers"
	srvSubscribers     = "/rosapi/subscribers"
	srvServices        = "/rosapi/services"
	srvServiceType     = "/rosapi/service_type"
	srvServiceProvider = "/rosapi/service_providers"
	srvRequestDetails  = "/rosapi/service_request_details"
	srvResponseDetails = "/rosapi/service_response_details"
)

// TopicList pairs every topic with its type.
type TopicList struct {
	Topics []string `json:"topics"`
	Types  []string `json:"types"`
}

// TypeDef is one message definition from rosapi.
type TypeDef struct {
	Type       string   `json:"type"`
	FieldNames []string `json:"fieldnames"`
	FieldTypes []string `json:"fieldtypes"`
}

// Structure is a field-name → field-type view of a TypeDef.
type Structure struct {
	Fields     map[string]string `json:"fields"`
	FieldCount int               `json:"field_count"`
}

func structureOf(td TypeDef) Structure {
	fields := make(map[string]string, len(td.FieldNames))
	for i, name := range td.FieldNames {
		if i < len(td.FieldTypes) {
			fields[name] = td.FieldTypes[i]
		}
	}
	return Structure{Fields: fields, FieldCount: len(fields)}
}

// ServiceDetails holds the request and response layout of a service type.
type ServiceDetails struct {
	Type     string     `json:"service_type"`
	Request  *Structure `json:"request"`
	Response *Structure `json:"response"`
}

// ServiceInfo is one entry of a service inventory.
type ServiceInfo struct {
	Type          string   `json:"type"`
	Providers     []string `json:"providers"`
	ProviderCount int      `json:"provider_count"`
}

// ServiceInventory describes every service on the graph.
type ServiceInventory struct {
	Total    int                    `json:"total_services"`
	Services map[string]ServiceInfo `json:"services"`
	Errors   []string               `json:"service_errors"`
}

func (b *Bridge) scopedCall(ctx context.Context, service, srvType string, args, out any) error {
	return b.Scope(ctx, func(c *Correlator) error {
		return b.call(ctx, c, service, srvType, args, out)
	})
}

// Topics lists topics and their types.
func (b *Bridge) Topics(ctx context.Context) (*TopicList, error) {
	var out TopicList
	if err := b.scopedCall(ctx, srvTopics, "rosapi/Topics", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TopicType returns the message type of topic, or "" if it has none.
func (b *Bridge) TopicType(ctx context.Context, topic string) (string, error) {
	if strings.TrimSpace(topic) == "" {
		return "", invalidArg("topic name cannot be empty")
	}
	var out struct {
		Type string `json:"type"`
	}
	if err := b.scopedCall(ctx, srvTopicType, "rosapi/TopicType", map[string]string{"topic": topic}, &out); err != nil {
		return "", err
	}
	return out.Type, nil
}

// MessageDetails returns the structure of msgType and its nested types,
// keyed by type name.
func (b *Bridge) MessageDetails(ctx context.Context, msgType string) (map[string]Structure, error) {
	if strings.TrimSpace(msgType) == "" {
		return nil, invalidArg("message type cannot be empty")
	}
	var out struct {
		TypeDefs []TypeDef `json:"typedefs"`
	}
	if err := b.scopedCall(ctx, srvMessageDetails, "rosapi/MessageDetails", map[string]string{"type": msgType}, &out); err != nil {
		return nil, err
	}

	structure := make(map[string]Structure, len(out.TypeDefs))
	for _, td := range out.TypeDefs {
		name := td.Type
		if name == "" {
			name = msgType
		}
		structure[name] = structureOf(td)
	}
	return structure, nil
}

// Publishers lists nodes publishing on topic.
func (b *Bridge) Publishers(ctx context.Context, topic string) ([]string, error) {
	return b.nodeList(ctx, srvPublishers, "rosapi/Publishers", "topic", topic, "publishers")
}

// Subscribers lists nodes subscribed to topic.
func (b *Bridge) Subscribers(ctx context.Context, topic string) ([]string, error) {
	return b.nodeList(ctx, srvSubscribers, "rosapi/Subscribers", "topic", topic, "subscribers")
}

// ServiceProviders lists nodes providing service.
func (b *Bridge) ServiceProviders(ctx context.Context, service string) ([]string, error) {
	return b.nodeList(ctx, srvServiceProvider, "rosapi/ServiceProviders", "service", service, "providers")
}

func (b *Bridge) nodeList(ctx context.Context, service, srvType, argName, argValue, field string) ([]string, error) {
	if strings.TrimSpace(argValue) == "" {
		return nil, invalidArg("%s name cannot be empty", argName)
	}
	var out map[string][]string
	if err := b.scopedCall(ctx, service, srvType, map[string]string{argName: argValue}, &out); err != nil {
		return nil, err
	}
	nodes := out[field]
	if nodes == nil {
		nodes = []string{}
	}
	return nodes, nil
}

// Services lists every service name.
func (b *Bridge) Services(ctx context.Context) ([]string, error) {
	var out struct {
		Services []string `json:"services"`
	}
	if err := b.scopedCall(ctx, srvServices, "rosapi/Services", nil, &out); err != nil {
		return nil, err
	}
	return out.Services, nil
}

// ServiceType returns the type of service, or "" if it has none.
func (b *Bridge) ServiceType(ctx context.Context, service string) (string, error) {
	if strings.TrimSpace(service) == "" {
		return "", invalidArg("service name cannot be empty")
	}
	var out struct {
		Type string `json:"type"`
	}
	if err := b.scopedCall(ctx, srvServiceType, "rosapi/ServiceType", map[string]string{"service": service}, &out); err != nil {
		return "", err
	}
	return out.Type, nil
}

// ServiceDetails fetches request and response layouts in one connection.
// A half that fails to load is left nil; both failing is an error.
func (b *Bridge) ServiceDetails(ctx context.Context, srvType string) (*ServiceDetails, error) {
	if strings.TrimSpace(srvType) == "" {
		return nil, invalidArg("service type cannot be empty")
	}

	details := &ServiceDetails{Type: srvType}
	err := b.Scope(ctx, func(c *Correlator) error {
		args := map[string]string{"type": srvType}
		var req, resp struct {
			TypeDefs []TypeDef `json:"typedefs"`
		}

		if err := b.call(ctx, c, srvRequestDetails, "rosapi/ServiceRequestDetails", args, &req); err != nil {
			b.logger.Debug("request details unavailable", "type", srvType, "error", err)
		} else if len(req.TypeDefs) > 0 {
			s := structureOf(req.TypeDefs[0])
			details.Request = &s
		}

		if err := b.call(ctx, c, srvResponseDetails, "rosapi/ServiceResponseDetails", args, &resp); err != nil {
			b.logger.Debug("response details unavailable", "type", srvType, "error", err)
		} else if len(resp.TypeDefs) > 0 {
			s := structureOf(resp.TypeDefs[0])
			details.Response = &s
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if details.Request == nil && details.Response == nil {
		return nil, &BridgeError{Op: OpCallService, Msg: fmt.Sprintf("Service type %s not found or has no definition", srvType)}
	}
	return details, nil
}

// InspectServices lists every service with its type and providers, all
// in one connection. Per-service lookups that fail are recorded in
// Errors rather than aborting the inventory.
func (b *Bridge) InspectServices(ctx context.Context) (*ServiceInventory, error) {
	inv := &ServiceInventory{
		Services: map[string]ServiceInfo{},
		Errors:   []string{},
	}
	err := b.Scope(ctx, func(c *Correlator) error {
		var list struct {
			Services []string `json:"services"`
		}
		if err := b.call(ctx, c, srvServices, "rosapi/Services", nil, &list); err != nil {
			return err
		}
		inv.Total = len(list.Services)

		for _, name := range list.Services {
			info := ServiceInfo{Type: "", Providers: []string{}}

			var typ struct {
				Type string `json:"type"`
			}
			if err := b.call(ctx, c, srvServiceType, "rosapi/ServiceType", map[string]string{"service": name}, &typ); err != nil {
				inv.Errors = append(inv.Errors, fmt.Sprintf("Service %s: %v", name, err))
			} else {
				info.Type = typ.Type
			}

			var prov struct {
				Providers []string `json:"providers"`
			}
			if err := b.call(ctx, c, srvServiceProvider, "rosapi/ServiceProviders", map[string]string{"service": name}, &prov); err != nil {
				inv.Errors = append(inv.Errors, fmt.Sprintf("Service %s providers: %v", name, err))
			} else if prov.Providers != nil {
				info.Providers = prov.Providers
			}

			info.ProviderCount = len(info.Providers)
			inv.Services[name] = info

			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}
