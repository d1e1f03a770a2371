package agent

import "strings"

// toolHints maps each forceable tool to the substrings that suggest it.
// Order matters: the first match wins.
var toolHints = []struct {
	tool  string
	hints []string
}{
	{"analisar_codigo", []string{"código", "codigo", "analisar", "vulnerabilidade", "```", "função", "funcao"}},
	{"sugerir_arquitetura", []string{"arquitetura", "estrutura", "pastas", "projeto", "organizar"}},
	{"calcular_custo_estimado", []string{"custo", "tokens", "preço", "preco", "quanto custa"}},
	{"resumir_contexto", []string{"resumir", "resumo", "histórico", "historico"}},
	{"listar_arquivos_workspace", []string{"liste os arquivos", "listar arquivos", "quais arquivos"}},
}

// DetectToolIntent suggests a tool to force on the first model turn.
// Empty means no bias ("auto").
func DetectToolIntent(texto string) string {
	t := strings.ToLower(texto)
	for _, entry := range toolHints {
		for _, hint := range entry.hints {
			if strings.Contains(t, hint) {
				return entry.tool
			}
		}
	}
	return ""
}
