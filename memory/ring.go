package memory

import (
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MaxRecentMessages bounds the chat_memory.json ring buffer.
const MaxRecentMessages = 100

// RecentMessage is one entry in the local short-term buffer.
type RecentMessage struct {
	ID        string `json:"id"`
	Autor     string `json:"autor"`
	Conteudo  string `json:"conteudo"`
	Tipo      string `json:"tipo"`
	Timestamp string `json:"timestamp"`
	Resumo    string `json:"resumo"`
}

// Ring keeps the last MaxRecentMessages chat messages in
// chat_memory.json. It survives restarts but is not the source of
// truth; the Chat Store is.
type Ring struct {
	mu   sync.Mutex
	path string
	msgs []RecentMessage
	now  func() time.Time
}

// NewRing loads (or starts) the buffer under dataDir/chat_memory.json.
func NewRing(dataDir string) *Ring {
	r := &Ring{
		path: filepath.Join(dataDir, "chat_memory.json"),
		now:  time.Now,
	}
	if data, err := os.ReadFile(r.path); err == nil {
		_ = json.Unmarshal(data, &r.msgs)
	}
	return r
}

func shortSummary(content string) string {
	s := strings.Join(strings.Fields(content), " ")
	if len(s) <= 80 {
		return s
	}
	return s[:77] + "..."
}

// Add appends a message and persists the trimmed buffer.
func (r *Ring) Add(autor, conteudo, tipo string) RecentMessage {
	switch tipo {
	case "texto", "codigo", "arquivo", "relatorio":
	default:
		tipo = "texto"
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	msg := RecentMessage{
		ID:        ulid.MustNew(ulid.Timestamp(r.now()), rand.Reader).String(),
		Autor:     autor,
		Conteudo:  conteudo,
		Tipo:      tipo,
		Timestamp: r.now().UTC().Format(time.RFC3339),
		Resumo:    shortSummary(conteudo),
	}
	r.msgs = append(r.msgs, msg)
	if len(r.msgs) > MaxRecentMessages {
		r.msgs = r.msgs[len(r.msgs)-MaxRecentMessages:]
	}
	r.persist()
	return msg
}

func (r *Ring) persist() {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return
	}
	data, err := json.MarshalIndent(r.msgs, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(r.path, data, 0o644)
}

// Last returns the newest n messages, oldest first.
func (r *Ring) Last(n int) []RecentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > len(r.msgs) {
		n = len(r.msgs)
	}
	out := make([]RecentMessage, n)
	copy(out, r.msgs[len(r.msgs)-n:])
	return out
}

// Search returns messages containing every given word, case-insensitive.
func (r *Ring) Search(words []string) []RecentMessage {
	if len(words) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []RecentMessage
	for _, m := range r.msgs {
		text := strings.ToLower(m.Conteudo + " " + m.Resumo)
		all := true
		for _, w := range words {
			if w == "" {
				continue
			}
			if !strings.Contains(text, strings.ToLower(w)) {
				all = false
				break
			}
		}
		if all {
			out = append(out, m)
		}
	}
	return out
}
