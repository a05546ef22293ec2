package rosbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ServiceResult is the outcome of a service call that reached the bridge.
type ServiceResult struct {
	Service string          `json:"service"`
	Type    string          `json:"service_type"`
	Success bool            `json:"success"`
	Values  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// CallService invokes a service and waits for the response carrying the
// same correlation id. A result=false response or a status error is a
// ServiceResult with Success=false, not a Go error; timeouts, transport
// failures, and undecodable frames are returned as errors.
func (b *Bridge) CallService(ctx context.Context, service, srvType string, args any, timeout time.Duration) (*ServiceResult, error) {
	if service == "" || srvType == "" {
		return nil, invalidArg("service name and type must be provided")
	}

	var res *ServiceResult
	err := b.Scope(ctx, func(c *Correlator) error {
		var err error
		res, err = b.callService(ctx, c, service, srvType, args, timeout)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (b *Bridge) callService(ctx context.Context, c *Correlator, service, srvType string, args any, timeout time.Duration) (*ServiceResult, error) {
	if args == nil {
		args = struct{}{}
	}
	env, err := CallService(service, srvType, args)
	if err != nil {
		return nil, err
	}

	resp, err := c.Request(ctx, env, MatchID(env.ID), b.timeout(timeout))
	if err != nil {
		return nil, err
	}
	return serviceResult(service, srvType, resp), nil
}

func serviceResult(service, srvType string, resp *Envelope) *ServiceResult {
	res := &ServiceResult{Service: service, Type: srvType}
	switch {
	case resp.Failed():
		res.Error = "Service call failed: " + resp.FailureMessage()
	case resp.IsStatusError():
		res.Error = resp.StatusText()
	case resp.Op == OpServiceResponse:
		res.Success = true
		res.Values = resp.Values
		if len(res.Values) == 0 {
			res.Values = json.RawMessage(`{}`)
		}
	default:
		res.Error = fmt.Sprintf("Unexpected response op %q", resp.Op)
	}
	return res
}

// call runs one rosapi-style service and decodes its values into out.
// A failed response becomes a *BridgeError.
func (b *Bridge) call(ctx context.Context, c *Correlator, service, srvType string, args, out any) error {
	res, err := b.callService(ctx, c, service, srvType, args, 0)
	if err != nil {
		return err
	}
	if !res.Success {
		return &BridgeError{Op: OpCallService, Msg: res.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(res.Values, out); err != nil {
		return &DecodeError{Raw: res.Values, Err: err}
	}
	return nil
}
