// Package brain implements the cheap responders that run before any
// model call: the intent router, the local brain, the persona
// classifier, and the response caches.
package brain

import "strings"

// Route is the destination chosen for a message before any processing.
type Route string

const (
	RouteTime      Route = "time"
	RouteZip       Route = "zip_builder"
	RouteTerminal  Route = "terminal"
	RouteDeploy    Route = "deploy"
	RouteWebSearch Route = "web_search"
	RouteLLM       Route = "llm"
)

// webHints marks factual queries that are answered straight from the
// Search Provider, without the model.
var webHints = []string{
	"pesquisar", "buscar", "o que é", "quem é", "como funciona", "o que significa",
	"brasileirão", "brasileirao", "jogos", "jogo de hoje", "jogos de hoje",
	"notícia", "noticia", "notícias", "news", "placar", "rodada",
	"playstation", "ps5", "xbox", "steam", "nintendo",
	"mais jogados", "tendência", "tendencia", "ranking",
}

// DecideRoute classifies a message by keyword. Precedence is fixed:
// time, zip, terminal, deploy, web search, then the model as default.
func DecideRoute(text string) Route {
	if text == "" {
		return RouteLLM
	}

	t := strings.ToLower(strings.TrimSpace(text))

	if strings.Contains(t, "hora") || strings.Contains(t, "horas") ||
		strings.Contains(t, "horário") || strings.Contains(t, "horario") {
		return RouteTime
	}

	if strings.Contains(t, "zip") || strings.Contains(t, "compactar") || strings.Contains(t, "zipar") {
		return RouteZip
	}

	if strings.Contains(t, "terminal") || strings.Contains(t, "executar") ||
		strings.Contains(t, "rodar") || strings.Contains(t, "run") {
		return RouteTerminal
	}

	if strings.Contains(t, "deploy") || strings.Contains(t, "deployar") {
		return RouteDeploy
	}

	for _, hint := range webHints {
		if strings.Contains(t, hint) {
			return RouteWebSearch
		}
	}

	return RouteLLM
}

// IsLocal reports whether a route is answered by the local brain.
func (r Route) IsLocal() bool {
	switch r {
	case RouteTime, RouteZip, RouteTerminal, RouteDeploy:
		return true
	}
	return false
}
