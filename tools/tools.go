// Package tools holds the tool registry and dispatcher. Tools are
// in-process callables or subprocess-invoked plugins; both answer
// through the same uniform result shape and never raise across the
// dispatch boundary.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/autonoplus/yui/llm"
	"github.com/autonoplus/yui/store"
)

// Standard errors
var (
	// ErrToolNotFound is returned when a tool is not registered
	ErrToolNotFound = errors.New("tool not found")

	// ErrBlocked is returned when the identity policy vetoes execution.
	ErrBlocked = errors.New("blocked")
)

// ToolError wraps errors with tool context.
type ToolError struct {
	ToolName string
	Err      error
}

func (e *ToolError) Error() string {
	return "tool " + e.ToolName + ": " + e.Err.Error()
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Result is the uniform shape every dispatch returns.
type Result struct {
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Invoker executes a tool with already-decoded arguments.
type Invoker func(ctx context.Context, args map[string]any) (any, error)

// Middleware wraps tool execution.
type Middleware func(Invoker) Invoker

// Descriptor is one registered tool.
type Descriptor struct {
	Name        string
	Description string
	Schema      llm.ToolSchema
	Invoke      Invoker
}

// Registry maps tool names to descriptors. Registration is last-wins.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Descriptor
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Descriptor)}
}

// Register adds a tool. A duplicate name silently replaces the earlier
// registration so plugins can override builtins.
func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[d.Name]; exists {
		slog.Debug("tools: re-registering", "name", d.Name)
	} else {
		r.order = append(r.order, d.Name)
	}
	r.tools[d.Name] = d
}

// Get returns the descriptor for name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// List returns all descriptors in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Schemas returns the tool schemas for the given names, in order.
// Unknown names are skipped.
func (r *Registry) Schemas(names ...string) []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []llm.ToolSchema
	for _, name := range names {
		if d, ok := r.tools[name]; ok {
			out = append(out, d.Schema)
		}
	}
	return out
}

// PluginSource lazily contributes descriptors on first miss.
type PluginSource interface {
	Load(reg *Registry) error
}

// Runner dispatches tool calls with policy checks and an action log.
type Runner struct {
	registry   *Registry
	policy     store.Policy
	plugins    PluginSource
	loadOnce   sync.Once
	middleware []Middleware
	logger     *slog.Logger

	actMu   sync.Mutex
	actions []string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithPolicy installs the identity policy consulted before dispatch.
func WithPolicy(p store.Policy) RunnerOption {
	return func(r *Runner) { r.policy = p }
}

// WithPlugins installs the lazy plugin source.
func WithPlugins(src PluginSource) RunnerOption {
	return func(r *Runner) { r.plugins = src }
}

// WithMiddleware appends execution middleware, applied outermost-first.
func WithMiddleware(mw ...Middleware) RunnerOption {
	return func(r *Runner) { r.middleware = append(r.middleware, mw...) }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a dispatcher over the registry.
func NewRunner(reg *Registry, opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: reg,
		policy:   store.AllowAll{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the named tool. It never returns an error; every failure
// mode is folded into the Result.
func (r *Runner) Run(ctx context.Context, userID, name string, args map[string]any) Result {
	if err := r.policy.AllowTool(userID, name); err != nil {
		r.logger.Info("tools: vetoed", "name", name, "user_id", userID)
		return Result{OK: false, Error: "blocked"}
	}

	d, ok := r.registry.Get(name)
	if !ok && r.plugins != nil {
		r.loadOnce.Do(func() {
			if err := r.plugins.Load(r.registry); err != nil {
				r.logger.Warn("tools: plugin load failed", "error", err)
			}
		})
		d, ok = r.registry.Get(name)
	}
	if !ok {
		return Result{OK: false, Error: fmt.Sprintf("Ferramenta '%s' não encontrada.", name)}
	}

	invoke := d.Invoke
	for i := len(r.middleware) - 1; i >= 0; i-- {
		invoke = r.middleware[i](invoke)
	}

	if args == nil {
		args = map[string]any{}
	}
	value, err := invoke(ctx, args)
	if err != nil {
		r.logger.Warn("tools: failed", "name", name, "error", err)
		return Result{OK: false, Error: err.Error()}
	}

	r.record(name)
	return Result{OK: true, Result: value}
}

// record appends to the metacognition log. Names only, no arguments.
func (r *Runner) record(name string) {
	r.actMu.Lock()
	defer r.actMu.Unlock()
	r.actions = append(r.actions, name)
	if len(r.actions) > 200 {
		r.actions = r.actions[len(r.actions)-200:]
	}
}

// Actions returns a copy of the recorded action log.
func (r *Runner) Actions() []string {
	r.actMu.Lock()
	defer r.actMu.Unlock()
	return append([]string(nil), r.actions...)
}
