// Package llm provides chat-completion backend implementations.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"
)

// OpenAILLM is an LLM implementation speaking the OpenAI-compatible
// chat-completions wire protocol.
type OpenAILLM struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	model       string
	temperature float64
	maxTokens   int
}

// OpenAIOption configures the client.
type OpenAIOption func(*OpenAILLM)

// WithAPIKey sets the API key.
func WithAPIKey(key string) OpenAIOption {
	return func(o *OpenAILLM) {
		o.apiKey = key
	}
}

// WithModel sets the default model.
func WithModel(model string) OpenAIOption {
	return func(o *OpenAILLM) {
		o.model = model
	}
}

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) OpenAIOption {
	return func(o *OpenAILLM) {
		o.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) OpenAIOption {
	return func(o *OpenAILLM) {
		o.httpClient = client
	}
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) OpenAIOption {
	return func(o *OpenAILLM) {
		o.temperature = t
	}
}

// WithMaxTokens sets the default completion token limit.
func WithMaxTokens(n int) OpenAIOption {
	return func(o *OpenAILLM) {
		o.maxTokens = n
	}
}

// Default client configuration values
const (
	DefaultTimeout     = 5 * time.Minute
	DefaultModel       = "gpt-4o-mini"
	DefaultBaseURL     = "https://api.openai.com"
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 800
)

// NewOpenAI creates a new OpenAI-compatible client.
func NewOpenAI(opts ...OpenAIOption) *OpenAILLM {
	o := &OpenAILLM{
		apiKey:  os.Getenv("OPENAI_API_KEY"),
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		model:       DefaultModel,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Model returns the configured default model name.
func (o *OpenAILLM) Model() string {
	return o.model
}

// Wire types for the chat-completions endpoint.

type chatRequest struct {
	Model         string         `json:"model"`
	Messages      []chatMsg      `json:"messages"`
	Tools         []chatTool     `json:"tools,omitempty"`
	ToolChoice    any            `json:"tool_choice,omitempty"` // "auto" or forced function
	Temperature   float64        `json:"temperature"`
	TopP          float64        `json:"top_p"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatMsg struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string         `json:"content"`
			ToolCalls []wireToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Model string    `json:"model"`
	Usage chatUsage `json:"usage"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// chatChunk is one streaming SSE payload.
type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage"`
}

// ValidateKey makes a minimal API call to verify the API key is valid.
func (o *OpenAILLM) ValidateKey(ctx context.Context) error {
	if o.apiKey == "" {
		return fmt.Errorf("API key is empty")
	}

	req := &Request{
		Messages:  []Message{{Role: RoleUser, Content: "hi"}},
		MaxTokens: 1,
	}
	if _, err := o.Generate(ctx, req); err != nil {
		return fmt.Errorf("could not reach Model Provider: %w", err)
	}
	return nil
}

// Generate sends a request and returns the complete response.
func (o *OpenAILLM) Generate(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	wire := o.buildRequest(req, false)
	resp, err := o.doRequest(ctx, wire)
	if err != nil {
		return nil, err
	}

	return o.parseResponse(resp, time.Since(start))
}

// GenerateStream sends a request and returns a channel of streaming events.
// Tool-call fragments are accumulated per call index; each completed call
// is delivered as a single ToolEnd event.
func (o *OpenAILLM) GenerateStream(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
	wire := o.buildRequest(req, true)

	eventCh := make(chan StreamEvent, 100)

	go func() {
		defer close(eventCh)

		const maxRetries = 5
		for attempt := 0; attempt <= maxRetries; attempt++ {
			httpReq, err := o.createHTTPRequest(ctx, wire)
			if err != nil {
				eventCh <- StreamEvent{Type: StreamEventError, Error: err}
				return
			}

			httpResp, err := o.httpClient.Do(httpReq)
			if err != nil {
				eventCh <- StreamEvent{Type: StreamEventError, Error: err}
				return
			}

			if httpResp.StatusCode == http.StatusOK {
				o.parseSSE(ctx, httpResp.Body, eventCh)
				httpResp.Body.Close()
				return
			}

			body, _ := io.ReadAll(httpResp.Body)

			if retryableStatus(httpResp.StatusCode) && attempt < maxRetries {
				wait := retryAfterDelay(httpResp, attempt)
				slog.Warn("model provider busy (stream), retrying", "status", httpResp.StatusCode, "attempt", attempt+1, "wait", wait)
				httpResp.Body.Close()
				select {
				case <-time.After(wait):
					continue
				case <-ctx.Done():
					eventCh <- StreamEvent{Type: StreamEventError, Error: ctx.Err()}
					return
				}
			}

			httpResp.Body.Close()
			eventCh <- StreamEvent{
				Type:  StreamEventError,
				Error: fmt.Errorf("API error %d: %s", httpResp.StatusCode, string(body)),
			}
			return
		}

		eventCh <- StreamEvent{Type: StreamEventError, Error: fmt.Errorf("max retries exceeded")}
	}()

	return eventCh, nil
}

func (o *OpenAILLM) buildRequest(req *Request, stream bool) *chatRequest {
	wire := &chatRequest{
		Model:       o.model,
		Temperature: o.temperature,
		TopP:        1,
		MaxTokens:   o.maxTokens,
		Stream:      stream,
	}
	if req.Temperature != nil {
		wire.Temperature = *req.Temperature
	}
	if req.MaxTokens > 0 {
		wire.MaxTokens = req.MaxTokens
	}
	if stream {
		wire.StreamOptions = &streamOptions{IncludeUsage: true}
	}

	for _, msg := range req.Messages {
		m := chatMsg{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			w := wireToolCall{ID: tc.ID, Type: "function"}
			w.Function.Name = tc.Name
			w.Function.Arguments = tc.Arguments
			m.ToolCalls = append(m.ToolCalls, w)
		}
		wire.Messages = append(wire.Messages, m)
	}

	for _, t := range req.Tools {
		ct := chatTool{Type: "function"}
		ct.Function.Name = t.Name
		ct.Function.Description = t.Description
		ct.Function.Parameters = t.InputSchema
		wire.Tools = append(wire.Tools, ct)
	}

	switch req.ToolChoice {
	case "", "auto":
		if len(req.Tools) > 0 {
			wire.ToolChoice = "auto"
		}
	default:
		wire.ToolChoice = map[string]any{
			"type":     "function",
			"function": map[string]any{"name": req.ToolChoice},
		}
	}

	return wire
}

func (o *OpenAILLM) createHTTPRequest(ctx context.Context, wire *chatRequest) (*http.Request, error) {
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	return httpReq, nil
}

func (o *OpenAILLM) doRequest(ctx context.Context, wire *chatRequest) (*chatResponse, error) {
	const maxRetries = 5

	for attempt := 0; attempt <= maxRetries; attempt++ {
		httpReq, err := o.createHTTPRequest(ctx, wire)
		if err != nil {
			return nil, err
		}

		httpResp, err := o.httpClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("http request: %w", err)
		}

		body, err := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		if httpResp.StatusCode == http.StatusOK {
			var resp chatResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				return nil, fmt.Errorf("unmarshal response: %w", err)
			}
			return &resp, nil
		}

		if retryableStatus(httpResp.StatusCode) && attempt < maxRetries {
			wait := retryAfterDelay(httpResp, attempt)
			slog.Warn("model provider busy, retrying", "status", httpResp.StatusCode, "attempt", attempt+1, "wait", wait)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		return nil, fmt.Errorf("API error %d: %s", httpResp.StatusCode, string(body))
	}

	return nil, fmt.Errorf("max retries exceeded")
}

// retryableStatus reports whether a request may be retried as-is.
func retryableStatus(code int) bool {
	return code == 429 || code >= 500
}

// retryAfterDelay returns how long to wait before retrying a rate-limited request.
// It respects the retry-after header if present, otherwise uses exponential backoff.
func retryAfterDelay(resp *http.Response, attempt int) time.Duration {
	if ra := resp.Header.Get("retry-after"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	// Exponential backoff: 5s, 10s, 20s, 40s, 60s
	wait := time.Duration(5<<uint(attempt)) * time.Second
	if wait > 60*time.Second {
		wait = 60 * time.Second
	}
	return wait
}

func (o *OpenAILLM) parseResponse(resp *chatResponse, latency time.Duration) (*Response, error) {
	result := &Response{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		LatencyMs:    latency.Milliseconds(),
	}

	model := resp.Model
	if model == "" {
		model = o.model
	}
	result.CostUSD = CalculateCost(model, result.InputTokens, result.OutputTokens)

	if len(resp.Choices) == 0 {
		return result, nil
	}
	choice := resp.Choices[0]

	switch choice.FinishReason {
	case "stop":
		result.StopReason = StopReasonEnd
	case "tool_calls":
		result.StopReason = StopReasonToolUse
	case "length":
		result.StopReason = StopReasonLength
	case "content_filter":
		result.StopReason = StopReasonFiltered
	}

	result.Content = choice.Message.Content
	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return result, nil
}

// toolCallAccumulator assembles tool-call fragments arriving by index.
type toolCallAccumulator struct {
	calls []ToolCall
}

func (a *toolCallAccumulator) add(index int, id, name, args string) (started bool) {
	for len(a.calls) <= index {
		a.calls = append(a.calls, ToolCall{})
		started = true
	}
	if id != "" {
		a.calls[index].ID = id
	}
	if name != "" {
		a.calls[index].Name = name
	}
	a.calls[index].Arguments += args
	return started
}

func (o *OpenAILLM) parseSSE(ctx context.Context, reader io.Reader, eventCh chan<- StreamEvent) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var acc toolCallAccumulator
	var usage chatUsage
	toolsDone := false

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if len(line) < 6 || line[:6] != "data: " {
			continue
		}
		data := line[6:]
		if data == "[DONE]" {
			break
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}

		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			eventCh <- StreamEvent{Type: StreamEventContentDelta, Delta: choice.Delta.Content}
		}

		for _, tc := range choice.Delta.ToolCalls {
			if acc.add(tc.Index, tc.ID, tc.Function.Name, tc.Function.Arguments) {
				eventCh <- StreamEvent{Type: StreamEventToolStart}
			}
		}

		if choice.FinishReason == "tool_calls" && !toolsDone {
			toolsDone = true
			for i := range acc.calls {
				call := acc.calls[i]
				eventCh <- StreamEvent{Type: StreamEventToolEnd, ToolCall: &call}
			}
		}
	}

	// Late finish: some providers omit the finish_reason chunk when the
	// stream is cut short. Flush whatever accumulated.
	if !toolsDone {
		for i := range acc.calls {
			if acc.calls[i].Name == "" {
				continue
			}
			call := acc.calls[i]
			eventCh <- StreamEvent{Type: StreamEventToolEnd, ToolCall: &call}
		}
	}

	eventCh <- StreamEvent{
		Type:         StreamEventMessageEnd,
		InputTokens:  usage.PromptTokens,
		OutputTokens: usage.CompletionTokens,
	}
}
