package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("auth header = %q", auth)
		}
		fmt.Fprint(w, `{
			"model": "gpt-4o-mini",
			"choices": [{"message": {"content": "ola"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5}
		}`)
	}))
	defer server.Close()

	client := NewOpenAI(WithAPIKey("test-key"), WithBaseURL(server.URL))
	resp, err := client.Generate(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Content: "oi"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Content != "ola" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.StopReason != StopReasonEnd {
		t.Errorf("StopReason = %q", resp.StopReason)
	}
	if resp.InputTokens != 10 || resp.OutputTokens != 5 {
		t.Errorf("tokens = %d/%d", resp.InputTokens, resp.OutputTokens)
	}
	if resp.CostUSD <= 0 {
		t.Error("cost not calculated")
	}
}

func TestGenerateRetriesRateLimit(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("retry-after", "0")
			w.WriteHeader(429)
			return
		}
		fmt.Fprint(w, `{"choices": [{"message": {"content": "ok"}, "finish_reason": "stop"}], "usage": {}}`)
	}))
	defer server.Close()

	client := NewOpenAI(WithAPIKey("k"), WithBaseURL(server.URL))
	resp, err := client.Generate(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Content: "oi"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if resp.Content != "ok" {
		t.Errorf("Content = %q", resp.Content)
	}
}

func TestGenerateStreamContentAndTools(t *testing.T) {
	sse := strings.Join([]string{
		`data: {"choices":[{"delta":{"content":"Ol"}}]}`,
		``,
		`data: {"choices":[{"delta":{"content":"á"}}]}`,
		``,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"listar_arquivos_workspace","arguments":"{\"pas"}}]}}]}`,
		``,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ta\":\".\"}"}}]}}]}`,
		``,
		`data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		``,
		`data: {"choices":[],"usage":{"prompt_tokens":20,"completion_tokens":7}}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sse)
	}))
	defer server.Close()

	client := NewOpenAI(WithAPIKey("k"), WithBaseURL(server.URL))
	events, err := client.GenerateStream(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Content: "liste os arquivos"}},
	})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}

	var content string
	var calls []ToolCall
	var inputTokens, outputTokens int
	for ev := range events {
		switch ev.Type {
		case StreamEventContentDelta:
			content += ev.Delta
		case StreamEventToolEnd:
			calls = append(calls, *ev.ToolCall)
		case StreamEventMessageEnd:
			inputTokens = ev.InputTokens
			outputTokens = ev.OutputTokens
		case StreamEventError:
			t.Fatalf("stream error: %v", ev.Error)
		}
	}

	if content != "Olá" {
		t.Errorf("content = %q", content)
	}
	if len(calls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(calls))
	}
	if calls[0].Name != "listar_arquivos_workspace" || calls[0].ID != "call_1" {
		t.Errorf("call = %+v", calls[0])
	}
	if calls[0].Arguments != `{"pasta":"."}` {
		t.Errorf("arguments = %q", calls[0].Arguments)
	}
	if inputTokens != 20 || outputTokens != 7 {
		t.Errorf("usage = %d/%d", inputTokens, outputTokens)
	}
}

func TestGenerateStreamAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		fmt.Fprint(w, `{"error": {"message": "bad request"}}`)
	}))
	defer server.Close()

	client := NewOpenAI(WithAPIKey("k"), WithBaseURL(server.URL))
	events, err := client.GenerateStream(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Content: "oi"}},
	})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}

	var gotErr error
	for ev := range events {
		if ev.Type == StreamEventError {
			gotErr = ev.Error
		}
	}
	if gotErr == nil {
		t.Fatal("expected error event")
	}
	if !strings.Contains(gotErr.Error(), "API error 400") {
		t.Errorf("error = %v", gotErr)
	}
}

func TestForcedToolChoice(t *testing.T) {
	client := NewOpenAI()
	wire := client.buildRequest(&Request{
		Tools:      []ToolSchema{{Name: "analisar_codigo"}},
		ToolChoice: "analisar_codigo",
	}, false)

	forced, ok := wire.ToolChoice.(map[string]any)
	if !ok {
		t.Fatalf("ToolChoice = %T", wire.ToolChoice)
	}
	fn := forced["function"].(map[string]any)
	if fn["name"] != "analisar_codigo" {
		t.Errorf("forced name = %v", fn["name"])
	}

	auto := client.buildRequest(&Request{Tools: []ToolSchema{{Name: "x"}}}, false)
	if auto.ToolChoice != "auto" {
		t.Errorf("default ToolChoice = %v", auto.ToolChoice)
	}
}

func TestCalculateCost(t *testing.T) {
	got := CalculateCost("gpt-4o-mini", 1_000_000, 1_000_000)
	if got != 0.75 {
		t.Errorf("cost = %v, want 0.75", got)
	}
	if CostBRL(1.0) != 5.0 {
		t.Errorf("CostBRL(1) = %v", CostBRL(1.0))
	}
}
