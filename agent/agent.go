package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/autonoplus/yui/llm"
	"github.com/autonoplus/yui/tools"
)

// MaxToolIterations bounds the tool-calling loop per request.
const MaxToolIterations = 3

// IterationLimitReply is returned when the model keeps requesting tools
// past the iteration budget.
const IterationLimitReply = "Limite de iterações de tools atingido."

// ErrCancelled is returned when the caller stopped consuming the stream.
var ErrCancelled = errors.New("stream cancelled by caller")

// Request is one turn through the agent loop.
type Request struct {
	Persona Persona
	UserID  string
	Message string
	// Summary is the Memory Manager's condensed history; appended to
	// the system prompt, never replayed as turns.
	Summary string
	// Workspace is optional editor context (open files, console errors).
	Workspace string
	// Lessons is the prompt-formatted corrections log.
	Lessons string
}

// EmitFunc receives each content chunk. Returning false cancels the
// stream at the next delta boundary.
type EmitFunc func(chunk string) bool

// UsageRecorder receives the provider's token counts per model turn.
type UsageRecorder interface {
	Record(inputTokens, outputTokens int)
}

// Agent drives the streaming tool-calling loop.
type Agent struct {
	model  llm.LLM
	runner *tools.Runner
	reg    *tools.Registry
	logger *slog.Logger

	// Usage, when set, is fed the token counts the provider reports.
	Usage UsageRecorder
}

// New builds an agent over the model and tool dispatcher.
func New(model llm.LLM, reg *tools.Registry, runner *tools.Runner, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{model: model, runner: runner, reg: reg, logger: logger}
}

// systemPrompt assembles the full system prompt top-down: persona base,
// summary, workspace block, lessons.
func systemPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(SystemPrompt(req.Persona))
	if req.Summary != "" {
		b.WriteString("\n\nContexto resumido:\n")
		b.WriteString(req.Summary)
	}
	if req.Workspace != "" {
		b.WriteString("\n\n[Workspace]\n")
		b.WriteString(req.Workspace)
	}
	if req.Lessons != "" {
		b.WriteString("\n\n")
		b.WriteString(req.Lessons)
	}
	return b.String()
}

// Stream runs the loop, forwarding content chunks through emit, and
// returns the full assistant text. Tool failures are fed back to the
// model as tool results; only transport-level errors are returned.
func (a *Agent) Stream(ctx context.Context, req Request, emit EmitFunc) (string, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt(req)},
		{Role: llm.RoleUser, Content: req.Message},
	}

	toolChoice := ""
	if intent := DetectToolIntent(req.Message); intent != "" {
		if _, ok := a.reg.Get(intent); ok {
			toolChoice = intent
			a.logger.Debug("agent: forcing tool", "tool", intent)
		}
	}
	schemas := a.reg.Schemas(tools.AgentToolNames...)

	for iter := 0; iter < MaxToolIterations; iter++ {
		events, err := a.model.GenerateStream(ctx, &llm.Request{
			Messages:   messages,
			Tools:      schemas,
			ToolChoice: toolChoice,
		})
		if err != nil {
			return "", err
		}

		var full strings.Builder
		var calls []llm.ToolCall
		cancelled := false
		for ev := range events {
			switch ev.Type {
			case llm.StreamEventContentDelta:
				if cancelled {
					continue
				}
				full.WriteString(ev.Delta)
				if emit != nil && !emit(ev.Delta) {
					cancelled = true
				}
			case llm.StreamEventToolEnd:
				if ev.ToolCall != nil {
					calls = append(calls, *ev.ToolCall)
				}
			case llm.StreamEventMessageEnd:
				if a.Usage != nil && (ev.InputTokens > 0 || ev.OutputTokens > 0) {
					a.Usage.Record(ev.InputTokens, ev.OutputTokens)
				}
			case llm.StreamEventError:
				return "", ev.Error
			}
		}
		if cancelled {
			return full.String(), ErrCancelled
		}

		if len(calls) == 0 {
			return full.String(), nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   full.String(),
			ToolCalls: calls,
		})
		for _, call := range calls {
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Content:    a.dispatch(ctx, req.UserID, call),
			})
		}
		toolChoice = "auto"
	}

	if emit != nil {
		emit(IterationLimitReply)
	}
	return IterationLimitReply, nil
}

// dispatch runs one tool call and renders the result for the model.
// Malformed argument JSON degrades to an empty object so the tool can
// still report a usable error.
func (a *Agent) dispatch(ctx context.Context, userID string, call llm.ToolCall) string {
	args := map[string]any{}
	if raw := strings.TrimSpace(call.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			a.logger.Warn("agent: bad tool arguments", "tool", call.Name, "error", err)
			args = map[string]any{}
		}
	}

	res := a.runner.Run(ctx, userID, call.Name, args)
	encoded, err := json.Marshal(res)
	if err != nil {
		return `{"ok":false,"error":"resultado não serializável"}`
	}
	a.logger.Debug("agent: tool executed", "tool", call.Name, "ok", res.OK)
	return string(encoded)
}
