package brain

import "strings"

// Persona is one of the two fixed assistant identities.
type Persona string

const (
	// PersonaYui is the friendly generalist.
	PersonaYui Persona = "yui"
	// PersonaHeathcliff is the technical specialist.
	PersonaHeathcliff Persona = "heathcliff"
)

// techKeywords route a message to Heathcliff.
var techKeywords = map[string]bool{
	"código": true, "codigo": true, "code": true, "bug": true, "erro": true,
	"error": true, "exception": true,
	"python": true, "javascript": true, "typescript": true, "java": true,
	"rust": true, "go": true, "php": true,
	"api": true, "rest": true, "graphql": true, "banco": true, "database": true,
	"sql": true, "query": true,
	"arquitetura": true, "architecture": true, "estrutura": true, "pastas": true,
	"projeto": true,
	"performance": true, "otimizar": true, "optimize": true,
	"vulnerabilidade": true, "security": true, "segurança": true,
	"teste": true, "test": true, "deploy": true, "docker": true, "kubernetes": true,
	"função": true, "funcao": true, "function": true, "classe": true, "class": true,
	"método": true, "metodo": true,
	"import": true, "require": true, "npm": true, "pip": true, "package": true,
	"dependência": true,
	"async": true, "await": true, "promise": true, "callback": true, "hook": true,
	"react": true, "vue": true,
	"backend": true, "frontend": true, "fullstack": true,
	"microserviço": true, "microservice": true,
}

// ClassifyPersona picks Heathcliff for technical messages and Yui for
// everything else. Code fences always mean technical.
func ClassifyPersona(message string) Persona {
	if message == "" {
		return PersonaYui
	}

	t := strings.ToLower(strings.TrimSpace(message))

	if strings.Contains(t, "```") {
		return PersonaHeathcliff
	}

	for _, w := range strings.Fields(t) {
		// Words under 3 runes ("go", "js") collide with too much Portuguese.
		if len([]rune(w)) < 3 {
			continue
		}
		if techKeywords[w] {
			return PersonaHeathcliff
		}
		for kw := range techKeywords {
			if strings.Contains(w, kw) || strings.Contains(kw, w) {
				return PersonaHeathcliff
			}
		}
	}

	return PersonaYui
}
