package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/autonoplus/yui/brain"
)

// SearchResult is one web hit.
type SearchResult struct {
	Titulo string
	Resumo string
	Link   string
}

// SearchProvider answers factual queries from the web.
type SearchProvider interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// DuckDuckGo queries the instant-answer API. No key required.
type DuckDuckGo struct {
	client  *http.Client
	baseURL string
}

// NewDuckDuckGo builds the default provider.
func NewDuckDuckGo() *DuckDuckGo {
	return &DuckDuckGo{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: "https://api.duckduckgo.com",
	}
}

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Topics   []ddgTopic `json:"Topics"`
}

type ddgResponse struct {
	Heading       string     `json:"Heading"`
	AbstractText  string     `json:"AbstractText"`
	AbstractURL   string     `json:"AbstractURL"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

// Search implements SearchProvider.
func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 || limit > 10 {
		limit = 5
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search provider status %d", resp.StatusCode)
	}

	var body ddgResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	var results []SearchResult
	if body.AbstractText != "" {
		results = append(results, SearchResult{
			Titulo: body.Heading,
			Resumo: body.AbstractText,
			Link:   body.AbstractURL,
		})
	}
	for _, t := range flattenTopics(body.RelatedTopics) {
		if len(results) >= limit {
			break
		}
		if t.Text == "" {
			continue
		}
		results = append(results, SearchResult{
			Titulo: topicTitle(t.Text),
			Resumo: t.Text,
			Link:   t.FirstURL,
		})
	}
	return results, nil
}

func flattenTopics(topics []ddgTopic) []ddgTopic {
	var out []ddgTopic
	for _, t := range topics {
		if len(t.Topics) > 0 {
			out = append(out, flattenTopics(t.Topics)...)
			continue
		}
		out = append(out, t)
	}
	return out
}

func topicTitle(text string) string {
	if i := strings.Index(text, " - "); i > 0 {
		return text[:i]
	}
	if len(text) > 60 {
		return text[:57] + "..."
	}
	return text
}

// searchWeb resolves the web-search route: cache first, then the
// provider, with the stale cache entry as a last resort.
func (p *Pipeline) searchWeb(ctx context.Context, message string) string {
	if cached := p.webCache.Get(message); cached != "" {
		return "(Resultado recente em cache)\n" + cached
	}

	results, err := p.search.Search(ctx, message, 5)
	if err != nil {
		p.logger.Warn("pipeline: web search failed", "error", err)
		if stale, ok := p.webCache.GetStale(message); ok {
			return "(Resultado recente em cache)\n" + stale
		}
		return "Não consegui consultar a web agora. Detalhe: " + err.Error() + "."
	}
	if len(results) == 0 {
		return "Não achei resultados confiáveis para essa pergunta."
	}

	lines := []string{"Encontrei isso na web:"}
	for i, r := range results {
		if i >= 5 {
			break
		}
		titulo := strings.TrimSpace(r.Titulo)
		if titulo == "" {
			titulo = "Sem título"
		}
		bloco := fmt.Sprintf("%d. %s", i+1, titulo)
		if resumo := strings.TrimSpace(r.Resumo); resumo != "" {
			bloco += " — " + resumo
		}
		if link := strings.TrimSpace(r.Link); link != "" {
			bloco += "\n   Fonte: " + link
		}
		lines = append(lines, bloco)
	}
	reply := strings.Join(lines, "\n")
	p.webCache.Put(message, reply)
	return reply
}

// SearchTool adapts the provider for the buscar_web tool.
func SearchTool(provider SearchProvider, webCache *brain.WebCache) func(ctx context.Context, query string) (string, error) {
	return func(ctx context.Context, query string) (string, error) {
		query = strings.TrimSpace(query)
		if query == "" {
			return "", fmt.Errorf("query obrigatória")
		}
		if cached := webCache.Get(query); cached != "" {
			return cached, nil
		}
		results, err := provider.Search(ctx, query, 5)
		if err != nil {
			return "", err
		}
		if len(results) == 0 {
			return "Não achei resultados confiáveis para essa pergunta.", nil
		}
		var lines []string
		for i, r := range results {
			line := fmt.Sprintf("%d. %s", i+1, r.Titulo)
			if r.Link != "" {
				line += " (" + r.Link + ")"
			}
			lines = append(lines, line)
		}
		reply := strings.Join(lines, "\n")
		webCache.Put(query, reply)
		return reply, nil
	}
}
