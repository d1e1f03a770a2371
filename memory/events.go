// Package memory holds the long-term memory store, the per-chat context
// builder and the lessons log. Long-term events live in a JSON file under
// the data dir; chat context is rebuilt from the Chat Store on demand.
package memory

import (
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind classifies a memory event.
type Kind string

const (
	KindShort     Kind = "short"
	KindLong      Kind = "long"
	KindTechnical Kind = "technical"
)

// MaxStoredEvents bounds memoria_ia.json; older events are dropped first.
const MaxStoredEvents = 500

// Event is one remembered fact or summary.
type Event struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	ChatID    string `json:"chat_id,omitempty"`
	Kind      Kind   `json:"kind"`
	Resumo    string `json:"resumo"`
	Tags      string `json:"tags,omitempty"`
	CreatedAt string `json:"created_at"`
}

// EventStore persists long-term memory events to a JSON file.
type EventStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewEventStore stores events under dataDir/memoria_ia.json.
func NewEventStore(dataDir string) *EventStore {
	return &EventStore{
		path: filepath.Join(dataDir, "memoria_ia.json"),
		now:  time.Now,
	}
}

func (s *EventStore) load() []Event {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil
	}
	return events
}

func (s *EventStore) save(events []Event) error {
	if len(events) > MaxStoredEvents {
		events = events[len(events)-MaxStoredEvents:]
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// Save appends an event. Empty summaries are ignored.
func (s *EventStore) Save(userID, chatID, resumo, tags string, kind Kind) (*Event, error) {
	resumo = strings.TrimSpace(resumo)
	if resumo == "" {
		return nil, nil
	}
	if len(resumo) > 4000 {
		resumo = resumo[:4000]
	}
	if kind == "" {
		kind = KindLong
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ev := Event{
		ID:        ulid.MustNew(ulid.Timestamp(s.now()), rand.Reader).String(),
		UserID:    userID,
		ChatID:    chatID,
		Kind:      kind,
		Resumo:    resumo,
		Tags:      strings.TrimSpace(tags),
		CreatedAt: s.now().UTC().Format(time.RFC3339),
	}
	events := append(s.load(), ev)
	if err := s.save(events); err != nil {
		return nil, err
	}
	return &ev, nil
}

var wordRe = regexp.MustCompile(`#?\w+`)

// Search returns the user's events formatted for prompt injection.
// Events tied to another chat are excluded; events with no chat apply
// everywhere. An optional query filters by keyword against summary and
// tags. Returns "" when nothing matches.
func (s *EventStore) Search(userID, chatID, query string, limit int) string {
	if limit <= 0 {
		limit = 10
	}

	s.mu.Lock()
	events := s.load()
	s.mu.Unlock()

	var items []Event
	for _, ev := range events {
		if ev.UserID != userID {
			continue
		}
		if chatID != "" && ev.ChatID != "" && ev.ChatID != chatID {
			continue
		}
		items = append(items, ev)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt > items[j].CreatedAt })
	if len(items) > limit*2 {
		items = items[:limit*2]
	}

	if q := strings.ToLower(strings.TrimSpace(query)); q != "" {
		words := wordRe.FindAllString(q, -1)
		type scored struct {
			score int
			ev    Event
		}
		var hits []scored
		for _, ev := range items {
			haystack := strings.ToLower(ev.Resumo + " " + ev.Tags)
			n := 0
			for _, w := range words {
				if strings.Contains(haystack, w) {
					n++
				}
			}
			if n > 0 {
				hits = append(hits, scored{n, ev})
			}
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
		items = items[:0]
		for _, h := range hits {
			items = append(items, h.ev)
		}
	}
	if len(items) > limit {
		items = items[:limit]
	}

	var lines []string
	for _, ev := range items {
		line := "- " + ev.Resumo
		if ev.Tags != "" {
			line += " [" + ev.Tags + "]"
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return ""
	}
	return "MEMÓRIA DE DECISÕES ANTERIORES DO PROJETO:\n\n" + strings.Join(lines, "\n")
}
