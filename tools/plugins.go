package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/autonoplus/yui/llm"
)

const (
	// pluginListTimeout bounds the discovery call per plugin.
	pluginListTimeout = 10 * time.Second
	// pluginInvokeTimeout bounds a single subprocess tool invocation.
	pluginInvokeTimeout = 60 * time.Second
)

// pluginManifest is one tool as announced by `<plugin> --list`.
type pluginManifest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
}

// pluginReply is the JSON a plugin prints for `invoke`.
type pluginReply struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// PluginLoader discovers subprocess tool plugins: every *.py file in
// the plugins dir (names starting with "_" are skipped) that answers
// `--list` with a JSON array of {name, description, schema}.
type PluginLoader struct {
	dir    string
	python string
	logger *slog.Logger
}

// NewPluginLoader scans dir with the given interpreter. Empty python
// disables loading (logged, not an error).
func NewPluginLoader(dir string, logger *slog.Logger) *PluginLoader {
	if logger == nil {
		logger = slog.Default()
	}
	python := ""
	for _, cand := range []string{"python3", "python"} {
		if p, err := exec.LookPath(cand); err == nil {
			python = p
			break
		}
	}
	return &PluginLoader{dir: dir, python: python, logger: logger}
}

// Load implements PluginSource. Plugins that fail discovery are skipped
// with a warning; one bad plugin never blocks the rest.
func (l *PluginLoader) Load(reg *Registry) error {
	if l.python == "" {
		l.logger.Info("plugins: no Python interpreter, skipping plugin load")
		return nil
	}
	paths, err := filepath.Glob(filepath.Join(l.dir, "*.py"))
	if err != nil {
		return err
	}
	sort.Strings(paths)

	loaded := 0
	for _, path := range paths {
		if strings.HasPrefix(filepath.Base(path), "_") {
			continue
		}
		manifests, err := l.list(path)
		if err != nil {
			l.logger.Warn("plugins: discovery failed", "plugin", filepath.Base(path), "error", err)
			continue
		}
		for _, m := range manifests {
			if m.Name == "" {
				continue
			}
			reg.Register(l.descriptor(path, m))
			loaded++
		}
	}
	l.logger.Info("plugins: loaded", "tools", loaded)
	return nil
}

func (l *PluginLoader) list(path string) ([]pluginManifest, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pluginListTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, l.python, path, "--list")
	cmd.Dir = filepath.Dir(path)
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	var manifests []pluginManifest
	if err := json.Unmarshal(out, &manifests); err != nil {
		return nil, fmt.Errorf("bad --list output: %w", err)
	}
	return manifests, nil
}

func (l *PluginLoader) descriptor(path string, m pluginManifest) Descriptor {
	schema := m.Schema
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return Descriptor{
		Name:        m.Name,
		Description: m.Description,
		Schema: llm.ToolSchema{
			Name:        m.Name,
			Description: m.Description,
			InputSchema: schema,
		},
		Invoke: func(ctx context.Context, args map[string]any) (any, error) {
			return l.invoke(ctx, path, m.Name, args)
		},
	}
}

// invoke runs `<python> <plugin> invoke <tool> <json args>` and parses
// stdout as the plugin's reply.
func (l *PluginLoader) invoke(ctx context.Context, path, name string, args map[string]any) (any, error) {
	encoded, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, pluginInvokeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, l.python, path, "invoke", name, string(encoded))
	cmd.Dir = filepath.Dir(path)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, &ToolError{ToolName: name, Err: fmt.Errorf("%s", msg)}
	}

	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return nil, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil || raw["ok"] == nil {
		// Plugins may print a bare value instead of the reply shape.
		var value any
		if err2 := json.Unmarshal([]byte(trimmed), &value); err2 == nil {
			return value, nil
		}
		return nil, &ToolError{ToolName: name, Err: fmt.Errorf("bad plugin output: %w", err)}
	}
	var reply pluginReply
	if err := json.Unmarshal([]byte(trimmed), &reply); err != nil {
		return nil, &ToolError{ToolName: name, Err: fmt.Errorf("bad plugin output: %w", err)}
	}
	if !reply.OK {
		msg := reply.Error
		if msg == "" {
			msg = "plugin reported failure"
		}
		return nil, &ToolError{ToolName: name, Err: fmt.Errorf("%s", msg)}
	}
	if len(reply.Result) == 0 {
		return nil, nil
	}
	var value any
	if err := json.Unmarshal(reply.Result, &value); err != nil {
		return nil, err
	}
	return value, nil
}
