// Package pipeline is the orchestrator: it turns one user message into
// one assistant reply by walking a cascade of cheap responders before
// paying for the model, then writing back to the Chat Store and the
// response cache.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/autonoplus/yui/agent"
	"github.com/autonoplus/yui/brain"
	"github.com/autonoplus/yui/guard"
	"github.com/autonoplus/yui/llm"
	"github.com/autonoplus/yui/memory"
	"github.com/autonoplus/yui/store"
)

// Stream framing markers sent around the content chunks.
const (
	StatusThinking = "__STATUS__:thinking"
	StatusDone     = "__STATUS__:done"
)

// FallbackReply is the single chunk emitted when the model path fails.
const FallbackReply = "Desculpe, ocorreu um erro. Tente novamente."

// SummarizeEvery triggers background summarization when the chat
// history reaches a multiple of this many messages.
const SummarizeEvery = 16

// Request is one inbound chat message.
type Request struct {
	UserID  string
	ChatID  string
	Message string
	// Model selects the persona: "yui", "heathcliff" or "auto".
	Model string
	// Workspace is optional editor context forwarded to the agent.
	Workspace string
}

// Pipeline wires the cascade together.
type Pipeline struct {
	store    store.ChatStore
	memory   *memory.Manager
	cache    *brain.ResponseCache
	webCache *brain.WebCache
	local    *brain.LocalBrain
	agent    *agent.Agent
	model    llm.LLM
	search   SearchProvider
	events   *memory.EventStore
	ring     *memory.Ring
	lessons  *memory.Lessons
	broker   *EventBroker
	governor *guard.Governor
	logger   *slog.Logger
	// submit runs background work; replaceable in tests.
	submit func(func())
}

// Option configures the pipeline.
type Option func(*Pipeline)

// WithSearch installs the web-search provider.
func WithSearch(s SearchProvider) Option {
	return func(p *Pipeline) { p.search = s }
}

// WithEvents installs the long-term memory store for summaries.
func WithEvents(e *memory.EventStore) Option {
	return func(p *Pipeline) { p.events = e }
}

// WithRing mirrors every turn into the local short-term buffer.
func WithRing(r *memory.Ring) Option {
	return func(p *Pipeline) { p.ring = r }
}

// WithLessons injects the corrections log into agent prompts.
func WithLessons(l *memory.Lessons) Option {
	return func(p *Pipeline) { p.lessons = l }
}

// WithBroker mirrors stream events to the broker.
func WithBroker(b *EventBroker) Option {
	return func(p *Pipeline) { p.broker = b }
}

// WithGovernor gates the model path on host load.
func WithGovernor(g *guard.Governor) Option {
	return func(p *Pipeline) { p.governor = g }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithSubmit replaces the background-work scheduler.
func WithSubmit(submit func(func())) Option {
	return func(p *Pipeline) { p.submit = submit }
}

// New builds the pipeline over its collaborators.
func New(cs store.ChatStore, mem *memory.Manager, ag *agent.Agent, model llm.LLM, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:    cs,
		memory:   mem,
		cache:    brain.NewResponseCache(),
		webCache: brain.NewWebCache(),
		local:    brain.NewLocalBrain(),
		agent:    ag,
		model:    model,
		logger:   slog.Default(),
		submit:   func(fn func()) { go fn() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WebCache exposes the web-search cache for tool wiring.
func (p *Pipeline) WebCache() *brain.WebCache { return p.webCache }

// Process streams the reply for one message. Chunks are framed by
// StatusThinking/StatusDone; failures inside the cascade are converted
// to a single fallback chunk, never an error. Only invalid input
// returns an error, with no side effects.
func (p *Pipeline) Process(ctx context.Context, req Request, emit func(chunk string) bool) error {
	if err := validate(req); err != nil {
		return err
	}

	send := func(chunk string) bool {
		p.publish(req, "chunk", chunk)
		return emit == nil || emit(chunk)
	}

	if emit != nil {
		emit(StatusThinking)
	}
	p.publish(req, "status", "thinking")

	p.respond(ctx, req, send)

	if emit != nil {
		emit(StatusDone)
	}
	p.publish(req, "status", "done")
	return nil
}

// ProcessSync collects the full reply without stream framing.
func (p *Pipeline) ProcessSync(ctx context.Context, req Request) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}
	var b strings.Builder
	p.respond(ctx, req, func(chunk string) bool {
		b.WriteString(chunk)
		return true
	})
	return b.String(), nil
}

func validate(req Request) error {
	if strings.TrimSpace(req.UserID) == "" {
		return errors.New("user_id obrigatório")
	}
	if strings.TrimSpace(req.ChatID) == "" {
		return errors.New("chat_id obrigatório")
	}
	if strings.TrimSpace(req.Message) == "" {
		return errors.New("mensagem vazia")
	}
	return nil
}

// respond walks the cascade: router, local brain, response cache, then
// the model. Every terminal path persists the turn.
func (p *Pipeline) respond(ctx context.Context, req Request, emit func(string) bool) {
	route := brain.DecideRoute(req.Message)

	if route == brain.RouteWebSearch && p.search != nil {
		reply := p.searchWeb(ctx, req.Message)
		p.persistTurn(ctx, req, reply)
		emit(reply)
		return
	}

	// Canned replies answer both the explicitly local routes and
	// greetings that fell through to the llm route.
	if reply := p.local.Respond(req.Message); reply != "" {
		p.persistTurn(ctx, req, reply)
		emit(reply)
		return
	}

	summary := p.memory.Summary(ctx, req.ChatID, req.UserID)

	if cached := p.cache.Get(req.UserID, req.Message, summary); cached != "" {
		p.logger.Debug("pipeline: cache hit", "chat_id", req.ChatID)
		p.persistTurn(ctx, req, cached)
		emit(cached)
		return
	}

	if p.governor != nil {
		if d := p.governor.AllowHeavyAgent(); !d.Allow {
			p.logger.Warn("pipeline: model path denied", "reason", d.Reason)
			p.persistTurn(ctx, req, d.Reason)
			emit(d.Reason)
			return
		}
		p.governor.Spend(1)
	}

	persona := agent.PersonaYui
	switch req.Model {
	case "heathcliff":
		persona = agent.PersonaHeathcliff
	case "yui", "":
	default: // auto
		if brain.ClassifyPersona(req.Message) == brain.PersonaHeathcliff {
			persona = agent.PersonaHeathcliff
		}
	}

	// The user turn is persisted before the model call so a crash
	// mid-stream never loses the question.
	firstTurn := summary == ""
	if err := p.store.SaveMessage(ctx, req.ChatID, "user", req.Message, req.UserID); err != nil {
		p.logger.Warn("pipeline: user persist failed", "chat_id", req.ChatID, "error", err)
	}
	p.record(req.UserID, req.Message)

	lessons := ""
	if p.lessons != nil {
		lessons = p.lessons.ForPrompt()
	}
	reply, err := p.agent.Stream(ctx, agent.Request{
		Persona:   persona,
		UserID:    req.UserID,
		Message:   req.Message,
		Summary:   summary,
		Workspace: req.Workspace,
		Lessons:   lessons,
	}, emit)
	if errors.Is(err, agent.ErrCancelled) {
		if reply != "" {
			p.saveAssistant(ctx, req, reply)
		}
		return
	}
	if err != nil {
		p.logger.Error("pipeline: agent failed", "chat_id", req.ChatID, "error", err)
		emit(FallbackReply)
		p.saveAssistant(ctx, req, FallbackReply)
		return
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return
	}
	p.saveAssistant(ctx, req, reply)
	// Cache write follows persistence so a cached reply always has a
	// stored counterpart.
	p.cache.Put(req.UserID, req.Message, summary, reply)
	if p.governor != nil {
		p.governor.Recover(guard.EnergyRecovery)
	}

	p.maybeSummarize(req)
	if firstTurn {
		p.maybeTitle(req)
	}
}

// persistTurn stores both sides of a non-model reply. Best-effort.
func (p *Pipeline) persistTurn(ctx context.Context, req Request, reply string) {
	if err := p.store.SaveMessage(ctx, req.ChatID, "user", req.Message, req.UserID); err != nil {
		p.logger.Warn("pipeline: user persist failed", "chat_id", req.ChatID, "error", err)
		return
	}
	p.record(req.UserID, req.Message)
	p.saveAssistant(ctx, req, reply)
}

func (p *Pipeline) saveAssistant(ctx context.Context, req Request, reply string) {
	if err := p.store.SaveMessage(ctx, req.ChatID, "assistant", reply, req.UserID); err != nil {
		p.logger.Warn("pipeline: assistant persist failed", "chat_id", req.ChatID, "error", err)
	}
	p.record("assistant", reply)
}

// record mirrors a turn into the ring buffer when one is configured.
func (p *Pipeline) record(autor, conteudo string) {
	if p.ring == nil {
		return
	}
	tipo := "texto"
	if strings.Contains(conteudo, "```") {
		tipo = "codigo"
	}
	p.ring.Add(autor, conteudo, tipo)
}

// maybeSummarize promotes a long-term summary every SummarizeEvery
// messages. Best-effort and asynchronous; a failure never touches the
// reply already delivered.
func (p *Pipeline) maybeSummarize(req Request) {
	if p.events == nil {
		return
	}
	p.submit(func() {
		ctx := context.Background()
		msgs, err := p.store.Messages(ctx, req.ChatID, req.UserID, 0)
		if err != nil || len(msgs) == 0 || len(msgs)%SummarizeEvery != 0 {
			return
		}
		summary := p.memory.Summary(ctx, req.ChatID, req.UserID)
		if summary == "" {
			return
		}
		if _, err := p.events.Save(req.UserID, req.ChatID, summary, "", memory.KindLong); err != nil {
			p.logger.Warn("pipeline: summary promotion failed", "chat_id", req.ChatID, "error", err)
		}
	})
}

// maybeTitle names the chat from its first message. Best-effort.
func (p *Pipeline) maybeTitle(req Request) {
	p.submit(func() {
		title := p.GenerateTitle(context.Background(), req.Message)
		if err := p.store.UpdateChatTitle(context.Background(), req.ChatID, req.UserID, title); err != nil {
			p.logger.Warn("pipeline: title update failed", "chat_id", req.ChatID, "error", err)
		}
	})
}

// GenerateTitle asks the model for a short chat title. Falls back to
// "Novo chat" on any failure.
func (p *Pipeline) GenerateTitle(ctx context.Context, firstMessage string) string {
	if p.model == nil {
		return "Novo chat"
	}
	temp := 0.2
	resp, err := p.model.Generate(ctx, &llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "Gere um título curto (máximo 4 palavras) para um chat que começa com a mensagem do usuário. Responda apenas o título, sem aspas."},
			{Role: llm.RoleUser, Content: firstMessage},
		},
		Temperature: &temp,
		MaxTokens:   20,
	})
	if err != nil {
		return "Novo chat"
	}
	title := strings.Trim(strings.TrimSpace(resp.Content), `"'`)
	if title == "" {
		return "Novo chat"
	}
	return title
}

// Summarizer returns a memory.Summarizer backed by the model, matching
// the deterministic instruction used by the resumir_contexto tool.
func Summarizer(model llm.LLM) memory.Summarizer {
	return func(ctx context.Context, conversa string) (string, error) {
		temp := 0.2
		if len(conversa) > 8000 {
			conversa = conversa[:8000]
		}
		resp, err := model.Generate(ctx, &llm.Request{
			Messages: []llm.Message{
				{Role: llm.RoleSystem, Content: "Resuma em 2-4 frases técnicas o essencial desta conversa. Use português."},
				{Role: llm.RoleUser, Content: conversa},
			},
			Temperature: &temp,
			MaxTokens:   200,
		})
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(resp.Content) == "" {
			return "", fmt.Errorf("resumo vazio")
		}
		return resp.Content, nil
	}
}

func (p *Pipeline) publish(req Request, typ, data string) {
	if p.broker == nil {
		return
	}
	p.broker.Publish(BrokerEvent{Type: typ, UserID: req.UserID, ChatID: req.ChatID, Data: data})
}
