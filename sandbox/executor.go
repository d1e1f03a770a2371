package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Timeout clamps per entry point.
const (
	ChatTimeoutMax     = 60 * time.Second
	ExplicitTimeoutMax = 300 * time.Second
	DefaultTimeout     = 30 * time.Second
	DefaultRAMCapMB    = 256
	MinRAMCapMB        = 128
)

// RunRequest describes one sandboxed execution.
type RunRequest struct {
	Code string
	Lang string // python, py, javascript, js, node

	// Dir is the working directory; empty means the executor default.
	Dir string

	// Timeout is clamped to [1s, 60s], or [1s, 300s] when Explicit.
	Timeout  time.Duration
	Explicit bool

	// RAMCapMB caps the child's address space on POSIX. Minimum 128.
	RAMCapMB int
}

// RunResult is the outcome of an isolated execution. It is returned to
// callers verbatim and never persisted.
type RunResult struct {
	OK       bool   `json:"ok"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	TimedOut bool   `json:"timed_out"`
	Feedback string `json:"feedback,omitempty"`
}

// ExecMetrics is a snapshot of executor counters.
type ExecMetrics struct {
	ExecutionsTotal int64                     `json:"executions_total"`
	SuccessTotal    int64                     `json:"success_total"`
	FailedTotal     int64                     `json:"failed_total"`
	TimedOutTotal   int64                     `json:"timed_out_total"`
	ByLang          map[string]LangExecCounts `json:"by_lang"`
}

// LangExecCounts are per-language execution counters.
type LangExecCounts struct {
	Executions int64 `json:"executions"`
	Success    int64 `json:"success"`
	Failed     int64 `json:"failed"`
	TimedOut   int64 `json:"timed_out"`
}

// AdmitFunc is consulted before each run; a false return denies the
// execution with the given reason.
type AdmitFunc func() (ok bool, reason string)

// Executor runs user code in an interpreter subprocess with a
// wall-clock timeout and a RAM cap.
type Executor struct {
	defaultDir string
	admit      AdmitFunc

	mu      sync.Mutex
	metrics ExecMetrics
}

// NewExecutor creates an executor defaulting to dir for script files.
func NewExecutor(dir string) *Executor {
	return &Executor{
		defaultDir: dir,
		metrics:    ExecMetrics{ByLang: make(map[string]LangExecCounts)},
	}
}

// WithAdmission installs the admission gate.
func (e *Executor) WithAdmission(admit AdmitFunc) *Executor {
	e.admit = admit
	return e
}

// Run executes the request and always returns a result; errors are
// reported inside RunResult, never raised across this boundary.
func (e *Executor) Run(ctx context.Context, req RunRequest) RunResult {
	lang := normalizeLang(req.Lang)

	if e.admit != nil {
		if ok, reason := e.admit(); !ok {
			e.bump(lang, false, false)
			return RunResult{OK: false, Stderr: reason, ExitCode: -1}
		}
	}

	if strings.TrimSpace(req.Code) == "" {
		e.bump(lang, false, false)
		return RunResult{OK: false, Stderr: "Código vazio", ExitCode: -1}
	}
	if lang == "" {
		e.bump(req.Lang, false, false)
		return RunResult{OK: false, Stderr: fmt.Sprintf("Linguagem '%s' não suportada", req.Lang), ExitCode: -1}
	}

	dir := req.Dir
	if dir == "" {
		dir = e.defaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		e.bump(lang, false, false)
		return RunResult{OK: false, Stderr: err.Error(), ExitCode: -1}
	}

	timeout := clampTimeout(req.Timeout, req.Explicit)

	scriptName := "_run_script.py"
	interp := []string{"python3"}
	interpLabel := "Python"
	if lang == "javascript" {
		scriptName = "_run_script.js"
		interp = []string{"node"}
		interpLabel = "Node"
	}

	scriptPath := filepath.Join(dir, scriptName)
	if err := os.WriteFile(scriptPath, []byte(req.Code), 0o644); err != nil {
		e.bump(lang, false, false)
		return RunResult{OK: false, Stderr: err.Error(), ExitCode: -1}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, interp[0], scriptPath)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	ramMB := req.RAMCapMB
	if ramMB <= 0 {
		ramMB = DefaultRAMCapMB
	}
	if ramMB < MinRAMCapMB {
		ramMB = MinRAMCapMB
	}

	if err := cmd.Start(); err != nil {
		e.bump(lang, false, false)
		if errors.Is(err, exec.ErrNotFound) {
			return RunResult{OK: false, Stderr: interpLabel + " não encontrado no servidor", ExitCode: -1}
		}
		return RunResult{OK: false, Stderr: err.Error(), ExitCode: -1}
	}

	// RAM cap applies to Python runs on POSIX; no-op elsewhere.
	if lang == "python" {
		if err := applyRAMCap(cmd.Process.Pid, ramMB); err != nil {
			slog.Debug("ram cap not applied", "pid", cmd.Process.Pid, "error", err)
		}
	}

	waitErr := cmd.Wait()

	if runCtx.Err() == context.DeadlineExceeded {
		e.bump(lang, false, true)
		return RunResult{
			OK:       false,
			Stdout:   stdout.String(),
			Stderr:   fmt.Sprintf("Timeout na execução (%ds).", int(timeout.Seconds())),
			ExitCode: -1,
			TimedOut: true,
			Feedback: "O código demorou demais para responder. Verifique loops infinitos.",
		}
	}

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	ok := waitErr == nil && exitCode == 0

	e.bump(lang, ok, false)
	return RunResult{
		OK:       ok,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}
}

// Metrics returns a copy of the execution counters.
func (e *Executor) Metrics() ExecMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := e.metrics
	out.ByLang = make(map[string]LangExecCounts, len(e.metrics.ByLang))
	for k, v := range e.metrics.ByLang {
		out.ByLang[k] = v
	}
	return out
}

func (e *Executor) bump(lang string, ok, timedOut bool) {
	if lang == "" {
		lang = "unknown"
	}
	lang = strings.ToLower(lang)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.metrics.ExecutionsTotal++
	if ok {
		e.metrics.SuccessTotal++
	} else {
		e.metrics.FailedTotal++
	}
	if timedOut {
		e.metrics.TimedOutTotal++
	}

	c := e.metrics.ByLang[lang]
	c.Executions++
	if ok {
		c.Success++
	} else {
		c.Failed++
	}
	if timedOut {
		c.TimedOut++
	}
	e.metrics.ByLang[lang] = c
}

func normalizeLang(lang string) string {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "python", "py":
		return "python"
	case "javascript", "js", "node":
		return "javascript"
	}
	return ""
}

func clampTimeout(d time.Duration, explicit bool) time.Duration {
	if d <= 0 {
		d = DefaultTimeout
	}
	max := ChatTimeoutMax
	if explicit {
		max = ExplicitTimeoutMax
	}
	if d < time.Second {
		return time.Second
	}
	if d > max {
		return max
	}
	return d
}
