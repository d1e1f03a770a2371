package llm

import "context"

// LLM is the interface for chat-completion backends.
type LLM interface {
	// Generate sends a request and returns the complete response.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// GenerateStream sends a request and returns a channel of streaming events.
	// The channel is closed after the final event.
	GenerateStream(ctx context.Context, req *Request) (<-chan StreamEvent, error)
}

// Request is a single chat-completion request.
type Request struct {
	Messages []Message
	Tools    []ToolSchema

	// ToolChoice biases tool selection: "" or "auto" lets the model
	// decide; any other value forces the named function on this turn.
	ToolChoice string

	// Temperature overrides the client default when non-nil.
	Temperature *float64

	// MaxTokens overrides the client default when > 0.
	MaxTokens int
}

// Message represents a conversation message.
type Message struct {
	Role    Role
	Content string

	// ToolCalls are set on assistant messages that requested tools.
	ToolCalls []ToolCall

	// ToolCallID links a RoleTool message to the call it answers.
	ToolCallID string
}

// Role identifies the message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Response is the response from a completion call.
type Response struct {
	// Content is the text response
	Content string

	// ToolCalls are any tool calls the model wants to make
	ToolCalls []ToolCall

	// Token counts
	InputTokens  int
	OutputTokens int

	// Cost in USD
	CostUSD float64

	// Latency in milliseconds
	LatencyMs int64

	// StopReason indicates why generation stopped
	StopReason StopReason
}

// ToolCall represents a tool call requested by the model.
// Arguments is the raw JSON text as produced by the model; callers
// parse it and treat malformed JSON as an empty object.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// StopReason indicates why the model stopped generating.
type StopReason string

const (
	StopReasonEnd      StopReason = "stop"
	StopReasonToolUse  StopReason = "tool_calls"
	StopReasonLength   StopReason = "length"
	StopReasonFiltered StopReason = "content_filter"
)

// StreamEvent is an event from streaming generation.
type StreamEvent struct {
	// Type of event
	Type StreamEventType

	// Delta is new text for ContentDelta events
	Delta string

	// ToolCall is the fully accumulated call for ToolEnd events
	ToolCall *ToolCall

	// Error if something went wrong
	Error error

	// Token counts, set on MessageEnd when the provider reports usage
	InputTokens  int
	OutputTokens int
}

// StreamEventType categorizes stream events.
type StreamEventType string

const (
	StreamEventContentDelta StreamEventType = "content_delta"
	StreamEventToolStart    StreamEventType = "tool_start"
	StreamEventToolEnd      StreamEventType = "tool_end"
	StreamEventMessageEnd   StreamEventType = "message_end"
	StreamEventError        StreamEventType = "error"
)

// ToolSchema describes a tool for the model.
type ToolSchema struct {
	// Name of the tool
	Name string `json:"name"`

	// Description of what the tool does
	Description string `json:"description"`

	// InputSchema is the JSON Schema for parameters
	InputSchema map[string]any `json:"input_schema"`
}

// BRLPerUSD is the fixed conversion rate used for user-facing cost
// estimates.
const BRLPerUSD = 5.0

// Model pricing for cost calculation (USD per 1M tokens)
var modelPricing = map[string]struct {
	InputPer1M  float64
	OutputPer1M float64
}{
	"gpt-4o-mini":  {0.15, 0.60},
	"gpt-4o":       {2.50, 10.00},
	"gpt-4.1":      {2.00, 8.00},
	"gpt-4.1-mini": {0.40, 1.60},
}

// CalculateCost calculates the USD cost of a request.
func CalculateCost(model string, inputTokens, outputTokens int) float64 {
	pricing, ok := modelPricing[model]
	if !ok {
		// Default pricing if model not found
		pricing = modelPricing["gpt-4o-mini"]
	}

	inputCost := float64(inputTokens) / 1_000_000 * pricing.InputPer1M
	outputCost := float64(outputTokens) / 1_000_000 * pricing.OutputPer1M

	return inputCost + outputCost
}

// CostBRL converts a USD cost to BRL at the fixed rate.
func CostBRL(usd float64) float64 {
	return usd * BRLPerUSD
}
