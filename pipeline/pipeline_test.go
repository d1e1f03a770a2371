package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/autonoplus/yui/agent"
	"github.com/autonoplus/yui/guard"
	"github.com/autonoplus/yui/llm"
	"github.com/autonoplus/yui/memory"
	"github.com/autonoplus/yui/store"
	"github.com/autonoplus/yui/tools"
)

// memStore is an in-memory ChatStore for orchestrator tests.
type memStore struct {
	store.ChatStore
	msgs   []store.Message
	titles map[string]string
}

func newMemStore() *memStore {
	return &memStore{titles: map[string]string{}}
}

func (m *memStore) SaveMessage(ctx context.Context, chatID, role, content, userID string) error {
	m.msgs = append(m.msgs, store.Message{ID: int64(len(m.msgs) + 1), ChatID: chatID, Role: role, Content: content})
	return nil
}

func (m *memStore) Messages(ctx context.Context, chatID, userID string, limit int) ([]store.Message, error) {
	var out []store.Message
	for _, msg := range m.msgs {
		if msg.ChatID == chatID {
			out = append(out, msg)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memStore) UpdateChatTitle(ctx context.Context, chatID, userID, title string) error {
	m.titles[chatID] = title
	return nil
}

// scriptedLLM returns the same streamed text for every call, counting
// stream and non-stream calls separately.
type scriptedLLM struct {
	reply       string
	streamCalls int
	genCalls    int
	fail        bool
}

func (s *scriptedLLM) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	s.genCalls++
	if s.fail {
		return nil, errors.New("provider down")
	}
	return &llm.Response{Content: s.reply}, nil
}

func (s *scriptedLLM) GenerateStream(ctx context.Context, req *llm.Request) (<-chan llm.StreamEvent, error) {
	s.streamCalls++
	if s.fail {
		return nil, errors.New("provider down")
	}
	ch := make(chan llm.StreamEvent, 2)
	ch <- llm.StreamEvent{Type: llm.StreamEventContentDelta, Delta: s.reply}
	ch <- llm.StreamEvent{Type: llm.StreamEventMessageEnd, InputTokens: 10, OutputTokens: 5}
	close(ch)
	return ch, nil
}

type fakeSearch struct {
	calls   int
	results []SearchResult
	err     error
}

func (f *fakeSearch) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func newTestPipeline(t *testing.T, model llm.LLM, opts ...Option) (*Pipeline, *memStore) {
	t.Helper()
	cs := newMemStore()
	mem := memory.NewManager(cs, nil, nil)
	reg := tools.NewRegistry()
	ag := agent.New(model, reg, tools.NewRunner(reg), nil)
	opts = append(opts, WithSubmit(func(fn func()) { fn() }))
	return New(cs, mem, ag, model, opts...), cs
}

func TestGreetingSkipsModelAndCache(t *testing.T) {
	model := &scriptedLLM{reply: "não deveria rodar"}
	p, cs := newTestPipeline(t, model)

	reply, err := p.ProcessSync(context.Background(), Request{UserID: "u1", ChatID: "c1", Message: "oi"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(reply, "Olá! Estou pronta") {
		t.Errorf("reply = %q", reply)
	}
	if model.streamCalls != 0 || model.genCalls != 0 {
		t.Errorf("model called: stream=%d gen=%d", model.streamCalls, model.genCalls)
	}
	// Both turns persisted even on the local path.
	if len(cs.msgs) != 2 || cs.msgs[0].Role != "user" || cs.msgs[1].Role != "assistant" {
		t.Errorf("msgs = %+v", cs.msgs)
	}
}

func TestTimeQuery(t *testing.T) {
	p, _ := newTestPipeline(t, &scriptedLLM{})
	reply, err := p.ProcessSync(context.Background(), Request{UserID: "u1", ChatID: "c1", Message: "que horas são?"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(reply, "Horário atual (Brasília): ") {
		t.Errorf("reply = %q", reply)
	}
}

func TestWebSearchPathAndCache(t *testing.T) {
	search := &fakeSearch{results: []SearchResult{
		{Titulo: "Rodada do Brasileirão", Resumo: "Jogos de hoje", Link: "https://ex.com/jogos"},
	}}
	p, _ := newTestPipeline(t, &scriptedLLM{}, WithSearch(search))
	ctx := context.Background()
	req := Request{UserID: "u1", ChatID: "c1", Message: "jogos do brasileirão hoje"}

	first, err := p.ProcessSync(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(first, "Encontrei isso na web:") {
		t.Fatalf("reply = %q", first)
	}
	if !strings.Contains(first, "1. Rodada do Brasileirão") || !strings.Contains(first, "Fonte: https://ex.com/jogos") {
		t.Errorf("formatting: %q", first)
	}

	second, err := p.ProcessSync(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(second, "(Resultado recente em cache)\n") {
		t.Errorf("second reply = %q", second)
	}
	if search.calls != 1 {
		t.Errorf("provider called %d times", search.calls)
	}
}

func TestWebSearchCapsAtFiveItems(t *testing.T) {
	var many []SearchResult
	for i := 0; i < 8; i++ {
		many = append(many, SearchResult{Titulo: fmt.Sprintf("t%d", i), Link: "https://x"})
	}
	search := &fakeSearch{results: many}
	p, _ := newTestPipeline(t, &scriptedLLM{}, WithSearch(search))

	reply, _ := p.ProcessSync(context.Background(), Request{UserID: "u1", ChatID: "c1", Message: "notícias de hoje"})
	if strings.Contains(reply, "6.") {
		t.Errorf("more than 5 items: %q", reply)
	}
}

func TestWebSearchProviderError(t *testing.T) {
	search := &fakeSearch{err: errors.New("timeout")}
	p, _ := newTestPipeline(t, &scriptedLLM{}, WithSearch(search))

	reply, _ := p.ProcessSync(context.Background(), Request{UserID: "u1", ChatID: "c1", Message: "notícias de hoje"})
	if !strings.HasPrefix(reply, "Não consegui consultar a web agora.") {
		t.Errorf("reply = %q", reply)
	}
}

func TestCacheHitSkipsSecondModelCall(t *testing.T) {
	model := &scriptedLLM{reply: "X é um conceito de arquitetura."}
	p, _ := newTestPipeline(t, model)
	ctx := context.Background()
	req := Request{UserID: "u1", ChatID: "c1", Message: "explique X"}

	first, err := p.ProcessSync(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.ProcessSync(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("replies differ: %q vs %q", first, second)
	}
	// One streamed completion for the first message; the repeat is
	// served from the cache. Title generation is a separate call.
	if model.streamCalls != 1 {
		t.Errorf("model streamed %d times, want 1", model.streamCalls)
	}
}

func TestStreamFraming(t *testing.T) {
	p, _ := newTestPipeline(t, &scriptedLLM{reply: "resposta"})

	var chunks []string
	err := p.Process(context.Background(), Request{UserID: "u1", ChatID: "c1", Message: "explique streaming"}, func(c string) bool {
		chunks = append(chunks, c)
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 3 {
		t.Fatalf("chunks = %v", chunks)
	}
	if chunks[0] != StatusThinking || chunks[len(chunks)-1] != StatusDone {
		t.Errorf("framing = %v", chunks)
	}
}

func TestModelFailureYieldsFallbackChunk(t *testing.T) {
	p, cs := newTestPipeline(t, &scriptedLLM{fail: true})

	reply, err := p.ProcessSync(context.Background(), Request{UserID: "u1", ChatID: "c1", Message: "explique Y"})
	if err != nil {
		t.Fatalf("failure escaped as error: %v", err)
	}
	if reply != FallbackReply {
		t.Errorf("reply = %q", reply)
	}
	// The user turn survives the failure.
	if cs.msgs[0].Role != "user" || cs.msgs[0].Content != "explique Y" {
		t.Errorf("msgs = %+v", cs.msgs)
	}
}

func TestInputValidation(t *testing.T) {
	p, cs := newTestPipeline(t, &scriptedLLM{})
	for _, req := range []Request{
		{ChatID: "c1", Message: "x"},
		{UserID: "u1", Message: "x"},
		{UserID: "u1", ChatID: "c1", Message: "  "},
	} {
		if _, err := p.ProcessSync(context.Background(), req); err == nil {
			t.Errorf("invalid request accepted: %+v", req)
		}
	}
	if len(cs.msgs) != 0 {
		t.Error("side effects from invalid input")
	}
}

func TestSummaryPromotionEverySixteenMessages(t *testing.T) {
	events := memory.NewEventStore(t.TempDir())
	model := &scriptedLLM{reply: "resposta técnica"}
	p, cs := newTestPipeline(t, model, WithEvents(events))
	ctx := context.Background()

	// Seed 14 messages; the next exchange lands exactly on 16.
	for i := 0; i < 14; i++ {
		cs.SaveMessage(ctx, "c1", "user", fmt.Sprintf("mensagem %d", i), "u1")
	}
	if _, err := p.ProcessSync(ctx, Request{UserID: "u1", ChatID: "c1", Message: "explique Z em detalhe"}); err != nil {
		t.Fatal(err)
	}
	if len(cs.msgs) != 16 {
		t.Fatalf("history = %d messages", len(cs.msgs))
	}
	if got := events.Search("u1", "c1", "", 10); got == "" {
		t.Error("no long-term event promoted at the 16-message mark")
	}
}

func TestTitleGeneratedOnFirstTurn(t *testing.T) {
	model := &scriptedLLM{reply: "Dúvida de arquitetura"}
	p, cs := newTestPipeline(t, model)

	if _, err := p.ProcessSync(context.Background(), Request{UserID: "u1", ChatID: "c1", Message: "explique minha dúvida de arquitetura"}); err != nil {
		t.Fatal(err)
	}
	if cs.titles["c1"] != "Dúvida de arquitetura" {
		t.Errorf("title = %q", cs.titles["c1"])
	}
}

func TestGenerateTitleFallback(t *testing.T) {
	p, _ := newTestPipeline(t, &scriptedLLM{fail: true})
	if got := p.GenerateTitle(context.Background(), "oi"); got != "Novo chat" {
		t.Errorf("title = %q", got)
	}
}

func TestEnergyRecoversAfterReply(t *testing.T) {
	gov := guard.NewGovernor(guard.StaticSampler(10, 40), 100, 30, 10)
	p, _ := newTestPipeline(t, &scriptedLLM{reply: "resposta"}, WithGovernor(gov))
	ctx := context.Background()

	// More turns than the whole budget: each successful reply restores
	// energy, so the gate never degrades under steady traffic.
	for i := 0; i < 120; i++ {
		reply, err := p.ProcessSync(ctx, Request{UserID: "u1", ChatID: "c1", Message: fmt.Sprintf("explique o tópico %d", i)})
		if err != nil {
			t.Fatal(err)
		}
		if reply != "resposta" {
			t.Fatalf("turn %d degraded: %q", i, reply)
		}
	}
	if gov.Energy() != 100 {
		t.Errorf("energy after sustained turns = %d", gov.Energy())
	}

	// A drained budget still denies, and the denial does not recover.
	gov.Spend(100)
	reply, err := p.ProcessSync(ctx, Request{UserID: "u1", ChatID: "c1", Message: "explique mais um tópico"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(reply, "energia em nível crítico") {
		t.Errorf("reply = %q", reply)
	}
	if gov.Energy() != 0 {
		t.Errorf("denied turn changed energy: %d", gov.Energy())
	}
}

func TestBrokerReceivesEvents(t *testing.T) {
	broker := NewEventBroker()
	p, _ := newTestPipeline(t, &scriptedLLM{reply: "resposta"}, WithBroker(broker))

	ch := broker.Subscribe()
	if ch == nil {
		t.Fatal("subscribe failed")
	}
	defer broker.Unsubscribe(ch)

	if err := p.Process(context.Background(), Request{UserID: "u1", ChatID: "c1", Message: "oi"}, nil); err != nil {
		t.Fatal(err)
	}

	var types []string
	for len(ch) > 0 {
		types = append(types, (<-ch).Type)
	}
	if len(types) < 2 || types[0] != "status" {
		t.Errorf("events = %v", types)
	}
}

func TestUsageTracker(t *testing.T) {
	u := NewUsageTracker("gpt-4o-mini")
	u.Record(1_000_000, 1_000_000)
	u.Record(0, 0)

	day := u.Today()
	if day.Requests != 2 || day.InputTokens != 1_000_000 {
		t.Errorf("day = %+v", day)
	}
	if math.Abs(day.CostUSD-0.75) > 1e-9 || math.Abs(day.CostBRL-3.75) > 1e-9 {
		t.Errorf("cost = %+v", day)
	}

	u.Reset()
	if u.Today().Requests != 0 {
		t.Error("reset did not zero counters")
	}
}
