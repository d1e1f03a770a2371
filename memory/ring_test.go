package memory

import (
	"testing"
)

func TestRingAddAndLast(t *testing.T) {
	r := NewRing(t.TempDir())

	r.Add("user", "primeira mensagem", "texto")
	r.Add("yui", "resposta da assistente", "texto")
	r.Add("user", "print('x')", "tipo-invalido")

	last := r.Last(2)
	if len(last) != 2 {
		t.Fatalf("got %d messages", len(last))
	}
	if last[0].Autor != "yui" || last[1].Autor != "user" {
		t.Errorf("order = %s, %s", last[0].Autor, last[1].Autor)
	}
	if last[1].Tipo != "texto" {
		t.Errorf("unknown tipo not normalized: %q", last[1].Tipo)
	}
	if last[0].ID == "" {
		t.Error("missing id")
	}
}

func TestRingBounded(t *testing.T) {
	dir := t.TempDir()
	r := NewRing(dir)
	for i := 0; i < MaxRecentMessages+10; i++ {
		r.Add("user", "msg", "texto")
	}
	if got := len(r.Last(0)); got != MaxRecentMessages {
		t.Errorf("buffer holds %d, want %d", got, MaxRecentMessages)
	}

	// A new instance reloads the persisted buffer.
	r2 := NewRing(dir)
	if got := len(r2.Last(0)); got != MaxRecentMessages {
		t.Errorf("reloaded %d messages", got)
	}
}

func TestRingSearch(t *testing.T) {
	r := NewRing(t.TempDir())
	r.Add("user", "como configurar o Docker no servidor", "texto")
	r.Add("user", "qual o clima hoje", "texto")

	hits := r.Search([]string{"docker", "servidor"})
	if len(hits) != 1 {
		t.Fatalf("hits = %d", len(hits))
	}
	if r.Search([]string{"kubernetes"}) != nil {
		t.Error("unexpected match")
	}
	if r.Search(nil) != nil {
		t.Error("empty query matched")
	}
}

func TestShortSummary(t *testing.T) {
	if s := shortSummary("linha um\nlinha dois"); s != "linha um linha dois" {
		t.Errorf("summary = %q", s)
	}
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	if s := shortSummary(string(long)); len(s) != 80 {
		t.Errorf("len = %d", len(s))
	}
}
