package tools

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/autonoplus/yui/llm"
	"github.com/autonoplus/yui/memory"
	"github.com/autonoplus/yui/missions"
	"github.com/autonoplus/yui/sandbox"
)

// AgentToolNames is the fixed set the agent loop advertises to the
// model, in this order.
var AgentToolNames = []string{
	"analisar_codigo",
	"sugerir_arquitetura",
	"calcular_custo_estimado",
	"resumir_contexto",
	"listar_arquivos_workspace",
	"ler_arquivo_workspace",
	"escrever_arquivo_workspace",
	"escrever_multiplos_arquivos",
	"compactar_workspace",
}

// SearchFunc performs a web search and returns a formatted reply.
type SearchFunc func(ctx context.Context, query string) (string, error)

// BuiltinDeps are the collaborators the built-in tools close over. Nil
// fields disable the tools that need them.
type BuiltinDeps struct {
	Bridge  *sandbox.Bridge
	LLM     llm.LLM
	Search  SearchFunc
	Brain   *missions.Brain
	Lessons *memory.Lessons
	UserID  string
	ChatID  string
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func strArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

// RegisterBuiltins installs the built-in tools on the registry.
func RegisterBuiltins(reg *Registry, deps BuiltinDeps) {
	reg.Register(Descriptor{
		Name:        "analisar_codigo",
		Description: "Analisa código em busca de vulnerabilidades, más práticas e problemas de arquitetura.",
		Schema: llm.ToolSchema{
			Name:        "analisar_codigo",
			Description: "Analisa código em busca de vulnerabilidades, más práticas e problemas de arquitetura.",
			InputSchema: objectSchema(map[string]any{
				"codigo": map[string]any{"type": "string", "description": "Código-fonte completo a analisar."},
			}, "codigo"),
		},
		Invoke: func(ctx context.Context, args map[string]any) (any, error) {
			return analisarCodigo(strArg(args, "codigo")), nil
		},
	})

	reg.Register(Descriptor{
		Name:        "sugerir_arquitetura",
		Description: "Sugere estrutura de pastas e responsabilidades para um tipo de projeto.",
		Schema: llm.ToolSchema{
			Name:        "sugerir_arquitetura",
			Description: "Sugere estrutura de pastas e responsabilidades para um tipo de projeto.",
			InputSchema: objectSchema(map[string]any{
				"tipo_projeto": map[string]any{"type": "string", "description": "Tipo: web, api, mobile, fullstack, microsaas ou python."},
			}, "tipo_projeto"),
		},
		Invoke: func(ctx context.Context, args map[string]any) (any, error) {
			return sugerirArquitetura(strArg(args, "tipo_projeto")), nil
		},
	})

	reg.Register(Descriptor{
		Name:        "calcular_custo_estimado",
		Description: "Calcula custo estimado em USD e BRL para uma contagem de tokens.",
		Schema: llm.ToolSchema{
			Name:        "calcular_custo_estimado",
			Description: "Calcula custo estimado em USD e BRL para uma contagem de tokens.",
			InputSchema: objectSchema(map[string]any{
				"tokens_entrada": map[string]any{"type": "integer", "description": "Tokens de entrada."},
				"tokens_saida":   map[string]any{"type": "integer", "description": "Tokens de saída."},
			}, "tokens_entrada", "tokens_saida"),
		},
		Invoke: func(ctx context.Context, args map[string]any) (any, error) {
			return calcularCusto(intArg(args, "tokens_entrada", 0), intArg(args, "tokens_saida", 0)), nil
		},
	})

	reg.Register(Descriptor{
		Name:        "resumir_contexto",
		Description: "Gera um resumo técnico curto de uma conversa para memória.",
		Schema: llm.ToolSchema{
			Name:        "resumir_contexto",
			Description: "Gera um resumo técnico curto de uma conversa para memória.",
			InputSchema: objectSchema(map[string]any{
				"conversa": map[string]any{"type": "string", "description": "Conversa formatada a resumir."},
			}, "conversa"),
		},
		Invoke: func(ctx context.Context, args map[string]any) (any, error) {
			return resumirContexto(ctx, deps.LLM, strArg(args, "conversa")), nil
		},
	})

	if deps.Bridge != nil {
		registerWorkspaceTools(reg, deps.Bridge)
	}
	if deps.Search != nil {
		reg.Register(Descriptor{
			Name:        "buscar_web",
			Description: "Busca informações atualizadas na web.",
			Schema: llm.ToolSchema{
				Name:        "buscar_web",
				Description: "Busca informações atualizadas na web.",
				InputSchema: objectSchema(map[string]any{
					"consulta": map[string]any{"type": "string", "description": "Termos da busca."},
				}, "consulta"),
			},
			Invoke: func(ctx context.Context, args map[string]any) (any, error) {
				return deps.Search(ctx, strArg(args, "consulta"))
			},
		})
	}
	if deps.Brain != nil {
		registerMissionTools(reg, deps)
	}
	if deps.Lessons != nil {
		reg.Register(Descriptor{
			Name:        "registrar_licao",
			Description: "Registra uma correção do usuário para não repetir o erro.",
			Schema: llm.ToolSchema{
				Name:        "registrar_licao",
				Description: "Registra uma correção do usuário para não repetir o erro.",
				InputSchema: objectSchema(map[string]any{
					"erro":     map[string]any{"type": "string", "description": "O que estava errado."},
					"correcao": map[string]any{"type": "string", "description": "Como foi corrigido."},
					"contexto": map[string]any{"type": "string", "description": "Código ou trecho que gerou o erro."},
				}, "erro", "correcao"),
			},
			Invoke: func(ctx context.Context, args map[string]any) (any, error) {
				ok := deps.Lessons.Append(strArg(args, "erro"), strArg(args, "correcao"), strArg(args, "contexto"))
				if !ok {
					return nil, fmt.Errorf("erro e correcao são obrigatórios")
				}
				return map[string]any{"registrado": true}, nil
			},
		})
	}
}

func registerWorkspaceTools(reg *Registry, bridge *sandbox.Bridge) {
	reg.Register(Descriptor{
		Name:        "listar_arquivos_workspace",
		Description: "Lista os arquivos e pastas do workspace.",
		Schema: llm.ToolSchema{
			Name:        "listar_arquivos_workspace",
			Description: "Lista os arquivos e pastas do workspace.",
			InputSchema: objectSchema(map[string]any{
				"pasta": map[string]any{"type": "string", "description": "Pasta relativa; vazio lista a raiz."},
			}),
		},
		Invoke: func(ctx context.Context, args map[string]any) (any, error) {
			entries, err := bridge.List(strArg(args, "pasta"))
			if err != nil {
				return nil, err
			}
			var lines []string
			for _, e := range entries {
				if e.IsDir {
					lines = append(lines, e.Name+"/")
				} else {
					lines = append(lines, e.Name)
				}
			}
			if len(lines) == 0 {
				return "Workspace vazio.", nil
			}
			return strings.Join(lines, "\n"), nil
		},
	})

	reg.Register(Descriptor{
		Name:        "ler_arquivo_workspace",
		Description: "Lê o conteúdo de um arquivo do workspace.",
		Schema: llm.ToolSchema{
			Name:        "ler_arquivo_workspace",
			Description: "Lê o conteúdo de um arquivo do workspace.",
			InputSchema: objectSchema(map[string]any{
				"caminho":   map[string]any{"type": "string", "description": "Caminho relativo do arquivo."},
				"max_chars": map[string]any{"type": "integer", "description": "Máximo de caracteres a retornar (padrão: 4000)."},
			}, "caminho"),
		},
		Invoke: func(ctx context.Context, args map[string]any) (any, error) {
			content, err := bridge.Read(strArg(args, "caminho"))
			if err != nil {
				return nil, err
			}
			if max := intArg(args, "max_chars", 4000); max > 0 && len(content) > max {
				content = content[:max]
			}
			return content, nil
		},
	})

	reg.Register(Descriptor{
		Name:        "escrever_arquivo_workspace",
		Description: "Cria ou sobrescreve um arquivo no workspace.",
		Schema: llm.ToolSchema{
			Name:        "escrever_arquivo_workspace",
			Description: "Cria ou sobrescreve um arquivo no workspace.",
			InputSchema: objectSchema(map[string]any{
				"caminho":  map[string]any{"type": "string", "description": "Caminho relativo do arquivo."},
				"conteudo": map[string]any{"type": "string", "description": "Conteúdo completo do arquivo."},
			}, "caminho", "conteudo"),
		},
		Invoke: func(ctx context.Context, args map[string]any) (any, error) {
			caminho := strArg(args, "caminho")
			if err := bridge.CreateFile(caminho, strArg(args, "conteudo")); err != nil {
				return nil, err
			}
			return map[string]any{"escrito": caminho}, nil
		},
	})

	reg.Register(Descriptor{
		Name:        "escrever_multiplos_arquivos",
		Description: "Aplica um lote de criações, atualizações e remoções de arquivos no workspace em uma única operação.",
		Schema: llm.ToolSchema{
			Name:        "escrever_multiplos_arquivos",
			Description: "Aplica um lote de criações, atualizações e remoções de arquivos no workspace em uma única operação.",
			InputSchema: objectSchema(map[string]any{
				"acoes": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"acao":     map[string]any{"type": "string", "description": "create, update ou delete."},
							"caminho":  map[string]any{"type": "string", "description": "Caminho relativo do arquivo."},
							"conteudo": map[string]any{"type": "string", "description": "Conteúdo para create/update."},
						},
						"required": []string{"acao", "caminho"},
					},
					"description": "Ações a aplicar, na ordem.",
				},
			}, "acoes"),
		},
		Invoke: func(ctx context.Context, args map[string]any) (any, error) {
			raw, _ := args["acoes"].([]any)
			if len(raw) == 0 {
				return nil, fmt.Errorf("nenhuma ação informada")
			}
			var actions []sandbox.Action
			for _, item := range raw {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				conteudo, _ := m["conteudo"].(string)
				acao, _ := m["acao"].(string)
				caminho, _ := m["caminho"].(string)
				actions = append(actions, sandbox.Action{Action: acao, Path: caminho, Content: conteudo})
			}
			problems, err := bridge.MultiWrite(actions)
			if err != nil {
				if len(problems) > 0 {
					return nil, fmt.Errorf("lint reprovou o lote:\n%s", strings.Join(problems, "\n"))
				}
				return nil, err
			}
			return map[string]any{"aplicadas": len(actions)}, nil
		},
	})

	reg.Register(Descriptor{
		Name:        "compactar_workspace",
		Description: "Compacta todo o workspace em um arquivo ZIP e retorna a URL de download.",
		Schema: llm.ToolSchema{
			Name:        "compactar_workspace",
			Description: "Compacta todo o workspace em um arquivo ZIP e retorna a URL de download.",
			InputSchema: objectSchema(map[string]any{}),
		},
		Invoke: func(ctx context.Context, args map[string]any) (any, error) {
			url, err := bridge.Zip()
			if err != nil {
				return nil, err
			}
			return map[string]any{"url": url}, nil
		},
	})

	reg.Register(Descriptor{
		Name:        "gerar_mapa_projeto",
		Description: "Gera o mapa de dependências do workspace (.yui_map.json).",
		Schema: llm.ToolSchema{
			Name:        "gerar_mapa_projeto",
			Description: "Gera o mapa de dependências do workspace (.yui_map.json).",
			InputSchema: objectSchema(map[string]any{}),
		},
		Invoke: func(ctx context.Context, args map[string]any) (any, error) {
			pm, err := sandbox.NewMapper(bridge.Root()).Generate()
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"arquivos":    pm.Stats.TotalFiles,
				"com_imports": pm.Stats.TotalWithDeps,
				"gerado_em":   pm.GeneratedAt,
			}, nil
		},
	})
}

func registerMissionTools(reg *Registry, deps BuiltinDeps) {
	reg.Register(Descriptor{
		Name:        "criar_missao",
		Description: "Cria uma missão persistente com objetivo e tarefas.",
		Schema: llm.ToolSchema{
			Name:        "criar_missao",
			Description: "Cria uma missão persistente com objetivo e tarefas.",
			InputSchema: objectSchema(map[string]any{
				"projeto":  map[string]any{"type": "string", "description": "Nome do projeto."},
				"objetivo": map[string]any{"type": "string", "description": "Objetivo da missão."},
				"tarefas":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Tarefas iniciais."},
			}, "projeto", "objetivo"),
		},
		Invoke: func(ctx context.Context, args map[string]any) (any, error) {
			var tasks []string
			if raw, ok := args["tarefas"].([]any); ok {
				for _, t := range raw {
					if s, ok := t.(string); ok {
						tasks = append(tasks, s)
					}
				}
			}
			m, err := deps.Brain.Create(strArg(args, "projeto"), strArg(args, "objetivo"), tasks, deps.UserID, deps.ChatID)
			if err != nil {
				return nil, err
			}
			return m, nil
		},
	})

	reg.Register(Descriptor{
		Name:        "atualizar_progresso_missao",
		Description: "Registra progresso na missão ativa.",
		Schema: llm.ToolSchema{
			Name:        "atualizar_progresso_missao",
			Description: "Registra progresso na missão ativa.",
			InputSchema: objectSchema(map[string]any{
				"projeto":          map[string]any{"type": "string", "description": "Nome do projeto."},
				"tarefa_concluida": map[string]any{"type": "string", "description": "Tarefa finalizada."},
				"progresso":        map[string]any{"type": "number", "description": "Incremento de progresso entre 0 e 1."},
				"tarefa_atual":     map[string]any{"type": "string", "description": "Próxima tarefa."},
			}, "projeto"),
		},
		Invoke: func(ctx context.Context, args map[string]any) (any, error) {
			delta, _ := args["progresso"].(float64)
			var current *string
			if v, ok := args["tarefa_atual"].(string); ok {
				current = &v
			}
			if !deps.Brain.Progress(strArg(args, "projeto"), strArg(args, "tarefa_concluida"), delta, current) {
				return nil, fmt.Errorf("missão '%s' não encontrada ou não está em andamento", strArg(args, "projeto"))
			}
			return map[string]any{"atualizado": true}, nil
		},
	})
}

var riskPatterns = []struct {
	needle  string
	message string
}{
	{"eval(", "Uso de eval: execução dinâmica de código é vetor de injeção."},
	{"exec(", "Uso de exec: execução dinâmica de código é vetor de injeção."},
	{"os.system", "os.system executa via shell; prefira subprocess com lista de argumentos."},
	{"shell=True", "subprocess com shell=True permite injeção de comandos."},
	{"pickle.load", "pickle.load em dados não confiáveis permite execução arbitrária."},
	{"password =", "Possível credencial hardcoded no código."},
	{"senha =", "Possível credencial hardcoded no código."},
	{"api_key =", "Possível chave de API hardcoded no código."},
	{"innerHTML", "innerHTML com dados do usuário abre XSS; prefira textContent."},
	{"except: pass", "Except vazio esconde erros; trate ou registre a exceção."},
	{"SELECT * FROM", "Query montada no código; confirme o uso de parâmetros ligados."},
}

// analisarCodigo runs a lightweight static pass over the snippet.
func analisarCodigo(codigo string) map[string]any {
	codigo = strings.TrimSpace(codigo)
	if codigo == "" {
		return map[string]any{"ok": false, "erro": "Código vazio ou inválido."}
	}
	codigo = stripFence(codigo)

	var vulnerabilidades []string
	for _, p := range riskPatterns {
		if strings.Contains(codigo, p.needle) {
			vulnerabilidades = append(vulnerabilidades, p.message)
		}
	}

	var sugestoes []string
	if strings.Contains(codigo, "print(") && strings.Count(codigo, "\n") > 20 {
		sugestoes = append(sugestoes, "Muitos prints em código longo; considere um logger.")
	}
	if strings.Contains(codigo, "TODO") {
		sugestoes = append(sugestoes, "Há TODOs pendentes no código.")
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Análise de %d linha(s) de código.\n", strings.Count(codigo, "\n")+1))
	if len(vulnerabilidades) == 0 {
		b.WriteString("Nenhuma vulnerabilidade conhecida detectada na análise estática.\n")
	} else {
		b.WriteString(fmt.Sprintf("%d possível(is) vulnerabilidade(s):\n", len(vulnerabilidades)))
		for _, v := range vulnerabilidades {
			b.WriteString("- " + v + "\n")
		}
	}
	for _, s := range sugestoes {
		b.WriteString("- " + s + "\n")
	}

	return map[string]any{
		"ok":               true,
		"relatorio":        b.String(),
		"vulnerabilidades": vulnerabilidades,
		"sugestoes":        sugestoes,
	}
}

func stripFence(codigo string) string {
	if !strings.HasPrefix(codigo, "```") {
		return codigo
	}
	lines := strings.Split(codigo, "\n")
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[1 : len(lines)-1]
	} else {
		lines = lines[1:]
	}
	return strings.Join(lines, "\n")
}

type archTemplate struct {
	estrutura         string
	responsabilidades string
}

var archTemplates = map[string]archTemplate{
	"web": {
		"src/\n  components/\n  pages/\n  styles/\n  utils/\npublic/\nstatic/\npackage.json",
		"components: UI reutilizáveis | pages: rotas/views | styles: CSS/SCSS",
	},
	"api": {
		"src/\n  routes/\n  controllers/\n  models/\n  services/\n  middleware/\nconfig/\ntests/",
		"routes: endpoints | controllers: lógica HTTP | models: dados | services: regras de negócio",
	},
	"mobile": {
		"src/\n  screens/\n  components/\n  navigation/\n  hooks/\n  services/\nassets/\n",
		"screens: telas | components: UI | navigation: rotas | hooks: lógica reutilizável",
	},
	"fullstack": {
		"backend/\n  api/\n  models/\n  services/\nfrontend/\n  src/\n    components/\n    pages/\nshared/\n  types/\n  utils/",
		"backend: API e dados | frontend: UI | shared: tipos e utils compartilhados",
	},
	"microsaas": {
		"app/\n  api/\n  auth/\n  dashboard/\n  pages/\nlib/\n  db/\n  auth/\n  billing/\ncomponents/\nprisma/",
		"app: Next.js app router | lib: db, auth, billing | components: UI",
	},
	"python": {
		"src/\n  __init__.py\n  main.py\n  app/\n  routes/\n  models/\n  services/\nconfig/\ntests/\nrequirements.txt",
		"app: aplicação | routes: endpoints | models: ORM | services: lógica",
	},
}

func sugerirArquitetura(tipoProjeto string) map[string]any {
	tipo := strings.ToLower(strings.TrimSpace(tipoProjeto))
	if tipo == "" {
		return map[string]any{"ok": false, "erro": "Informe o tipo de projeto."}
	}
	for key, tpl := range archTemplates {
		if strings.Contains(tipo, key) || strings.Contains(key, tipo) {
			return map[string]any{
				"ok":                true,
				"tipo":              tipo,
				"estrutura":         tpl.estrutura,
				"responsabilidades": tpl.responsabilidades,
			}
		}
	}
	return map[string]any{
		"ok":                true,
		"tipo":              tipo,
		"estrutura":         "src/\n  components/\n  services/\n  utils/\nconfig/\ntests/",
		"responsabilidades": "Estrutura genérica. Especifique: web, api, mobile, fullstack ou microsaas.",
	}
}

func round(v float64, digits int) float64 {
	p := math.Pow10(digits)
	return math.Round(v*p) / p
}

func calcularCusto(tokensEntrada, tokensSaida int) map[string]any {
	if tokensEntrada < 0 {
		tokensEntrada = 0
	}
	if tokensSaida < 0 {
		tokensSaida = 0
	}
	usd := llm.CalculateCost("gpt-4o-mini", tokensEntrada, tokensSaida)
	return map[string]any{
		"ok":             true,
		"tokens_entrada": tokensEntrada,
		"tokens_saida":   tokensSaida,
		"custo_usd":      round(usd, 6),
		"custo_brl":      round(usd*llm.BRLPerUSD, 4),
	}
}

// resumirContexto never fails: on any model problem it falls back to
// truncated raw text.
func resumirContexto(ctx context.Context, model llm.LLM, conversa string) map[string]any {
	conversa = strings.TrimSpace(conversa)
	if conversa == "" {
		return map[string]any{"ok": false, "erro": "Conversa vazia."}
	}
	if len(conversa) < 50 {
		return map[string]any{"ok": true, "resumo": truncate(conversa, 200)}
	}
	if model == nil {
		return map[string]any{"ok": true, "resumo": fallbackResumo(conversa)}
	}

	temp := 0.2
	resp, err := model.Generate(ctx, &llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "Resuma em 2-4 frases técnicas o essencial desta conversa. Use português."},
			{Role: llm.RoleUser, Content: truncate(conversa, 8000)},
		},
		Temperature: &temp,
		MaxTokens:   200,
	})
	if err != nil {
		return map[string]any{"ok": true, "resumo": fallbackResumo(conversa)}
	}
	resumo := strings.TrimSpace(resp.Content)
	if resumo == "" {
		resumo = truncate(conversa, 500)
	}
	return map[string]any{"ok": true, "resumo": resumo}
}

func fallbackResumo(conversa string) string {
	if len(conversa) > 1500 {
		return conversa[:1500] + "..."
	}
	return conversa
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
