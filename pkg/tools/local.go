package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Handler runs a tool. The returned value is encoded as JSON.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Local is an in-process tool registry.
type Local struct {
	name string

	mu       sync.RWMutex
	order    []string
	tools    map[string]Tool
	handlers map[string]Handler
}

// NewLocal creates an empty registry.
func NewLocal(name string) *Local {
	return &Local{
		name:     name,
		tools:    make(map[string]Tool),
		handlers: make(map[string]Handler),
	}
}

// Register adds a tool. Registering a name twice replaces the handler
// but keeps the original position.
func (l *Local) Register(t Tool, h Handler) {
	if t.InputSchema.Type == "" {
		t.InputSchema = Object(t.InputSchema.Properties, t.InputSchema.Required...)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.tools[t.Name]; !ok {
		l.order = append(l.order, t.Name)
	}
	l.tools[t.Name] = t
	l.handlers[t.Name] = h
}

// Merge registers every tool of other into l.
func (l *Local) Merge(other *Local) {
	other.mu.RLock()
	defer other.mu.RUnlock()
	for _, name := range other.order {
		l.Register(other.tools[name], other.handlers[name])
	}
}

// Name implements Provider.
func (l *Local) Name() string {
	return l.name
}

// ListTools implements Provider.
func (l *Local) ListTools(ctx context.Context) ([]Tool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Tool, 0, len(l.order))
	for _, name := range l.order {
		out = append(out, l.tools[name])
	}
	return out, nil
}

// ExecuteTool implements Provider.
func (l *Local) ExecuteTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	l.mu.RLock()
	h, ok := l.handlers[name]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	if args == nil {
		args = map[string]any{}
	}

	v, err := h(ctx, args)
	if err != nil {
		return nil, err
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", name, err)
	}
	return raw, nil
}

// Close implements Provider.
func (l *Local) Close() error {
	return nil
}
