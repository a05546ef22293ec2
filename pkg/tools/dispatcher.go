package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"

	"github.com/teslashibe/go-pupper/internal/observability"
)

// Defaults for the retry policy.
const (
	DefaultAttempts = 2
	DefaultDelay    = time.Second
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRetry sets the attempt count and fixed delay for tool execution.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(d *Dispatcher) {
		if attempts > 0 {
			d.attempts = attempts
		}
		if delay >= 0 {
			d.delay = delay
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics records tool calls.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher routes tool calls to the provider that owns each tool.
type Dispatcher struct {
	providers []Provider
	attempts  int
	delay     time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu      sync.RWMutex
	ready   bool
	catalog []Tool
	owners  map[string]Provider
}

// NewDispatcher creates a dispatcher over providers. Call Discover
// before dispatching.
func NewDispatcher(providers []Provider, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		providers: providers,
		attempts:  DefaultAttempts,
		delay:     DefaultDelay,
		logger:    slog.Default(),
		owners:    make(map[string]Provider),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "tools")
	return d
}

// Discover lists every provider's tools and builds the catalogue. When
// two providers expose the same name the first one wins. A provider that
// fails to list is skipped; Discover fails only if all of them do.
func (d *Dispatcher) Discover(ctx context.Context) error {
	var (
		catalog []Tool
		owners  = make(map[string]Provider)
		errs    error
		ok      int
	)
	for _, p := range d.providers {
		list, err := p.ListTools(ctx)
		if err != nil {
			d.logger.Error("list tools failed", "provider", p.Name(), "error", err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		ok++
		for _, t := range list {
			if prev, dup := owners[t.Name]; dup {
				d.logger.Warn("duplicate tool ignored", "tool", t.Name, "provider", p.Name(), "kept", prev.Name())
				continue
			}
			owners[t.Name] = p
			catalog = append(catalog, t)
		}
		d.logger.Info("provider ready", "provider", p.Name(), "tools", len(list))
	}
	if ok == 0 && len(d.providers) > 0 {
		return errs
	}

	d.mu.Lock()
	d.catalog = catalog
	d.owners = owners
	d.ready = true
	d.mu.Unlock()
	return nil
}

// Catalog returns the discovered tools in discovery order.
func (d *Dispatcher) Catalog() ([]Tool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.ready {
		return nil, ErrNotInitialized
	}
	return append([]Tool(nil), d.catalog...), nil
}

// Describe renders the catalogue for the system prompt.
func (d *Dispatcher) Describe() (string, error) {
	catalog, err := d.Catalog()
	if err != nil {
		return "", err
	}
	return FormatCatalog(catalog), nil
}

func (d *Dispatcher) owner(name string) (Provider, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.owners[name]
	return p, ok
}

// Dispatch runs one call and returns the text fed back to the LLM. An
// unknown tool and an execution failure are both reported as text.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) string {
	p, ok := d.owner(call.Name)
	if !ok {
		d.logger.Warn("no provider for tool", "tool", call.Name)
		d.metrics.Tool(call.Name, "unknown", 0)
		return "No server found with tool: " + call.Name
	}

	ctx, span := observability.StartSpan(ctx, "tools.dispatch",
		attribute.String("tool", call.Name),
		attribute.String("provider", p.Name()),
	)
	d.logger.Info("executing tool", "tool", call.Name, "arguments", call.Arguments)

	start := time.Now()
	var result json.RawMessage
	err := Retry(ctx, d.attempts, d.delay, func() error {
		var err error
		result, err = p.ExecuteTool(ctx, call.Name, call.Arguments)
		return err
	}, func(attempt int, err error) {
		d.logger.Warn("tool attempt failed", "tool", call.Name, "attempt", attempt, "of", d.attempts, "error", err)
	})
	d.metrics.Tool(call.Name, observability.Status(err), time.Since(start))
	observability.EndSpan(span, err)

	if err != nil {
		d.logger.Error("tool failed", "tool", call.Name, "error", err)
		return "Error executing tool: " + err.Error()
	}

	d.logProgress(call.Name, result)
	return "Tool execution result: " + string(result)
}

// logProgress reports long-running results that carry progress/total.
func (d *Dispatcher) logProgress(tool string, result json.RawMessage) {
	var p struct {
		Progress *float64 `json:"progress"`
		Total    *float64 `json:"total"`
	}
	if json.Unmarshal(result, &p) != nil || p.Progress == nil || p.Total == nil || *p.Total == 0 {
		return
	}
	d.logger.Info("tool progress",
		"tool", tool,
		"progress", *p.Progress,
		"total", *p.Total,
		"percent", fmt.Sprintf("%.1f%%", *p.Progress / *p.Total * 100),
	)
}

// DispatchAll runs calls in order and joins their results with newlines.
func (d *Dispatcher) DispatchAll(ctx context.Context, calls []Call) string {
	results := make([]string, 0, len(calls))
	for _, c := range calls {
		if ctx.Err() != nil {
			results = append(results, "Error executing tool: "+ctx.Err().Error())
			break
		}
		results = append(results, d.Dispatch(ctx, c))
	}
	return strings.Join(results, "\n")
}

// DispatchText parses an LLM reply and runs any tool calls in it. When
// the reply holds no call it is returned unchanged with used=false.
func (d *Dispatcher) DispatchText(ctx context.Context, reply string) (result string, used bool) {
	calls, ok := ParseCalls(reply)
	if !ok {
		d.logger.Debug("reply did not use any tools")
		return reply, false
	}
	return d.DispatchAll(ctx, calls), true
}

// Close closes every provider and returns their combined errors.
func (d *Dispatcher) Close() error {
	var errs error
	for _, p := range d.providers {
		if err := p.Close(); err != nil && !errors.Is(err, context.Canceled) {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errs
}
