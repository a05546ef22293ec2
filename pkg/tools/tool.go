// Package tools discovers tools across providers and runs the calls an
// LLM asks for.
//
// A Provider is anything that can list and execute tools: an in-process
// Local registry or a tool server process. The Dispatcher builds one
// catalogue from every provider at discovery, formats it for the system
// prompt, and routes each parsed Call to the provider that owns it.
//
// Example usage:
//
//	local := tools.NewLocal("pupper")
//	local.Register(tools.Tool{Name: "bark", Description: "Bark once"}, barkHandler)
//
//	d := tools.NewDispatcher([]tools.Provider{local})
//	if err := d.Discover(ctx); err != nil {
//	    return err
//	}
//	reply, used := d.DispatchText(ctx, `{"tool":"bark","arguments":{}}`)
package tools

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotInitialized is returned before Discover has run.
var ErrNotInitialized = errors.New("tools: catalogue not initialized")

// Property is one argument in a tool's input schema.
type Property struct {
	Type        string    `json:"type,omitempty"`
	Description string    `json:"description,omitempty"`
	Items       *Property `json:"items,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Default     any       `json:"default,omitempty"`
}

// Schema is a tool's JSON Schema input description.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Object builds an object schema.
func Object(props map[string]Property, required ...string) Schema {
	if props == nil {
		props = map[string]Property{}
	}
	return Schema{Type: "object", Properties: props, Required: required}
}

// Tool describes one callable tool.
type Tool struct {
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	InputSchema Schema `json:"inputSchema"`
}

// Provider lists and executes tools.
type Provider interface {
	// Name identifies the provider in logs.
	Name() string

	// ListTools returns every tool the provider exposes.
	ListTools(ctx context.Context) ([]Tool, error)

	// ExecuteTool runs one tool. Domain failures belong in the result
	// (e.g. {"error": "..."}); a returned error means the call itself
	// failed and may be retried.
	ExecuteTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error)

	// Close releases the provider.
	Close() error
}

// Call is one tool invocation requested by the LLM.
type Call struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}
