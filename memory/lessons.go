package memory

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	// LessonsFileName lives inside the sandbox so the workspace carries
	// its own corrections.
	LessonsFileName = ".yui_lessons.md"
	// LessonsPromptMax bounds the injected tail of the lessons file.
	LessonsPromptMax = 8000
)

const lessonsHeader = `# Lessons Learned — Yui

Correções aplicadas pelo usuário. **Nunca repita estes erros.**

`

// Lessons is an append-only markdown log of user-reported corrections.
type Lessons struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewLessons stores the log under root/.yui_lessons.md.
func NewLessons(root string) *Lessons {
	return &Lessons{path: filepath.Join(root, LessonsFileName), now: time.Now}
}

// Append records one correction. errDesc and correction are required;
// codeContext is optional and capped at 500 chars.
func (l *Lessons) Append(errDesc, correction, codeContext string) bool {
	errDesc = strings.TrimSpace(errDesc)
	correction = strings.TrimSpace(correction)
	if errDesc == "" || correction == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var b strings.Builder
	b.WriteString("\n## " + l.now().UTC().Format("2006-01-02 15:04") + "\n\n")
	b.WriteString("**Erro:** " + errDesc + "\n\n")
	b.WriteString("**Correção:** " + correction + "\n")
	if ctx := strings.TrimSpace(codeContext); ctx != "" {
		if len(ctx) > 500 {
			ctx = ctx[:500]
		}
		b.WriteString("\n**Contexto:**\n```\n" + ctx + "\n```\n")
	}
	b.WriteString("\n---\n")

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false
	}
	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		return os.WriteFile(l.path, []byte(lessonsHeader+b.String()), 0o644) == nil
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return false
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err == nil
}

// Read returns the raw log, or "" if missing.
func (l *Lessons) Read() string {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return ""
	}
	return string(data)
}

// ForPrompt formats the newest lessons for prompt injection, keeping at
// most LessonsPromptMax chars of the tail. Empty when there are no
// entries yet.
func (l *Lessons) ForPrompt() string {
	raw := l.Read()
	if raw == "" {
		return ""
	}
	if len(strings.Split(raw, "\n")) <= 3 {
		return ""
	}
	content := strings.TrimSpace(raw)
	if len(content) > LessonsPromptMax {
		content = "...\n\n" + content[len(content)-LessonsPromptMax:]
	}
	return "LESSONS LEARNED (correções do usuário — NUNCA repita estes erros):\n\n" + content + "\n\n---\n"
}
