package pipeline

import (
	"log/slog"
	"sync"

	"github.com/autonoplus/yui/llm"
	"github.com/robfig/cron/v3"
)

// UsageSnapshot is the day's accumulated consumption.
type UsageSnapshot struct {
	Requests     int     `json:"requests"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	CostBRL      float64 `json:"cost_brl"`
}

// UsageTracker accumulates daily token counts and cost estimates,
// resetting at midnight via cron.
type UsageTracker struct {
	mu    sync.Mutex
	model string
	day   UsageSnapshot
	cron  *cron.Cron
}

// NewUsageTracker prices usage against the given model name.
func NewUsageTracker(model string) *UsageTracker {
	return &UsageTracker{model: model}
}

// Record implements agent.UsageRecorder.
func (u *UsageTracker) Record(inputTokens, outputTokens int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.day.Requests++
	u.day.InputTokens += inputTokens
	u.day.OutputTokens += outputTokens
	usd := llm.CalculateCost(u.model, inputTokens, outputTokens)
	u.day.CostUSD += usd
	u.day.CostBRL += llm.CostBRL(usd)
}

// Today returns the counters accumulated since the last reset.
func (u *UsageTracker) Today() UsageSnapshot {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.day
}

// Reset zeroes the daily counters.
func (u *UsageTracker) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	slog.Info("usage: daily reset",
		"requests", u.day.Requests,
		"input_tokens", u.day.InputTokens,
		"output_tokens", u.day.OutputTokens)
	u.day = UsageSnapshot{}
}

// Start schedules the midnight reset. Call Stop to cancel it.
func (u *UsageTracker) Start() error {
	u.cron = cron.New()
	if _, err := u.cron.AddFunc("0 0 * * *", u.Reset); err != nil {
		return err
	}
	u.cron.Start()
	return nil
}

// Stop halts the reset schedule.
func (u *UsageTracker) Stop() {
	if u.cron != nil {
		u.cron.Stop()
	}
}
