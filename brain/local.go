package brain

import (
	"strings"
	"time"
)

// saoPaulo is the reply timezone. Falls back to local time when the
// timezone database is unavailable.
var saoPaulo = func() *time.Location {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		return time.Local
	}
	return loc
}()

// LocalBrain answers trivial questions deterministically, without
// spending tokens. Now is injectable for tests.
type LocalBrain struct {
	Now func() time.Time
}

// NewLocalBrain returns a LocalBrain on the wall clock.
func NewLocalBrain() *LocalBrain {
	return &LocalBrain{Now: time.Now}
}

// Respond returns a canned reply for a trivial question, or "" when the
// question needs a bigger brain.
func (b *LocalBrain) Respond(question string) string {
	if question == "" {
		return ""
	}

	p := strings.ToLower(strings.TrimSpace(question))

	if strings.Contains(p, "que horas") || strings.Contains(p, "horario") || strings.Contains(p, "horário") {
		now := b.Now().In(saoPaulo)
		return "Horário atual (Brasília): " + now.Format("02/01/2006 15:04:05")
	}

	if strings.Contains(p, "que dia") || strings.Contains(p, "data de hoje") {
		now := b.Now().In(saoPaulo)
		return "Hoje é " + now.Format("02/01/2006")
	}

	switch p {
	case "oi", "ola", "olá", "oi yui", "ola yui", "olá yui":
		return "Olá! Estou pronta para ajudar você 🚀"
	}

	if strings.Contains(p, "como vc esta") || strings.Contains(p, "como você está") || strings.Contains(p, "como voce esta") {
		return "Estou funcionando perfeitamente no servidor 😄"
	}

	if strings.Contains(p, "compactar") || strings.Contains(p, "zipar") || strings.Contains(p, "zip") {
		return "Para compactar via terminal use:\n" +
			"zip -r arquivo.zip pasta/\n\n" +
			"Isso cria um .zip com tudo dentro."
	}

	if strings.Contains(p, "terminal") || strings.Contains(p, "executar") || strings.Contains(p, "rodar") {
		return "Use o painel Workspace (Ctrl+L): abra o Editor, escreva o código " +
			"e clique em **Executar**. Ou use o Terminal integrado abaixo do Monaco."
	}

	if strings.Contains(p, "deploy") || strings.Contains(p, "deployar") {
		return "Para fazer deploy via Yui: use o botão **Deploy** na sidebar. " +
			"Se conectou um repositório Zeabur, faça push para o branch configurado."
	}

	if strings.Contains(p, "baixar arquivo") {
		return "Você pode baixar usando wget:\nwget URL_DO_ARQUIVO"
	}

	return ""
}
