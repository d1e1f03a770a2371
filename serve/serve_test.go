package serve

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/autonoplus/yui/agent"
	"github.com/autonoplus/yui/guard"
	"github.com/autonoplus/yui/jobs"
	"github.com/autonoplus/yui/llm"
	"github.com/autonoplus/yui/memory"
	"github.com/autonoplus/yui/pipeline"
	"github.com/autonoplus/yui/store"
	"github.com/autonoplus/yui/tools"
)

type staticLLM struct{ reply string }

func (s *staticLLM) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	return &llm.Response{Content: s.reply}, nil
}

func (s *staticLLM) GenerateStream(ctx context.Context, req *llm.Request) (<-chan llm.StreamEvent, error) {
	ch := make(chan llm.StreamEvent, 2)
	ch <- llm.StreamEvent{Type: llm.StreamEventContentDelta, Delta: s.reply}
	ch <- llm.StreamEvent{Type: llm.StreamEventMessageEnd}
	close(ch)
	return ch, nil
}

func newTestServer(t *testing.T, cfg ...Config) (*httptest.Server, store.ChatStore) {
	t.Helper()
	cs, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := cs.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cs.Close() })

	model := &staticLLM{reply: "resposta do modelo"}
	reg := tools.NewRegistry()
	ag := agent.New(model, reg, tools.NewRunner(reg), nil)
	mem := memory.NewManager(cs, nil, nil)
	p := pipeline.New(cs, mem, ag, model,
		pipeline.WithSubmit(func(fn func()) { fn() }))

	c := Config{}
	if len(cfg) > 0 {
		c = cfg[0]
	}
	srv := New(p, cs, pipeline.NewEventBroker(), c).
		WithQueue(jobs.New(jobs.WithSubmit(func(fn func()) { fn() }))).
		WithGovernor(guard.NewGovernor(guard.StaticSampler(10, 40), 100, 30, 10))

	mux := http.NewServeMux()
	srv.registerRoutes(mux)
	ts := httptest.NewServer(corsMiddleware(mux))
	t.Cleanup(ts.Close)
	return ts, cs
}

func do(t *testing.T, method, url, uid string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if uid != "" {
		req.Header.Set("X-User-ID", uid)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestChatCRUDOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := do(t, "POST", ts.URL+"/api/chats", "alice", map[string]string{"title": "Projeto"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var chat store.Chat
	json.NewDecoder(resp.Body).Decode(&chat)
	resp.Body.Close()
	if chat.ID == "" || chat.Title != "Projeto" {
		t.Fatalf("chat = %+v", chat)
	}

	resp = do(t, "GET", ts.URL+"/api/chats", "alice", nil)
	var chats []store.Chat
	json.NewDecoder(resp.Body).Decode(&chats)
	resp.Body.Close()
	if len(chats) != 1 {
		t.Errorf("chats = %+v", chats)
	}

	// Another user sees nothing.
	resp = do(t, "GET", ts.URL+"/api/chats", "bob", nil)
	var other []store.Chat
	json.NewDecoder(resp.Body).Decode(&other)
	resp.Body.Close()
	if len(other) != 0 {
		t.Errorf("cross-user chats = %+v", other)
	}

	resp = do(t, "DELETE", ts.URL+"/api/chats/"+chat.ID, "alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSendMessageSync(t *testing.T) {
	ts, cs := newTestServer(t)
	chat, err := cs.CreateChat(context.Background(), "alice", "")
	if err != nil {
		t.Fatal(err)
	}

	resp := do(t, "POST", ts.URL+"/api/chats/"+chat.ID+"/messages", "alice",
		SendRequest{Message: "explique interfaces em go"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body SendResponse
	json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if !strings.Contains(body.Reply, "resposta do modelo") {
		t.Errorf("reply = %q", body.Reply)
	}

	msgs, _ := cs.Messages(context.Background(), chat.ID, "alice", 0)
	if len(msgs) != 2 {
		t.Errorf("persisted %d messages", len(msgs))
	}
}

func TestSendMessageRequiresIdentity(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := do(t, "POST", ts.URL+"/api/chats/x/messages", "", SendRequest{Message: "oi"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSendMessageAsync(t *testing.T) {
	ts, cs := newTestServer(t, Config{UseAsyncQueue: true})
	chat, _ := cs.CreateChat(context.Background(), "alice", "")

	resp := do(t, "POST", ts.URL+"/api/chats/"+chat.ID+"/messages", "alice",
		SendRequest{Message: "explique goroutines"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var job JobResponse
	json.NewDecoder(resp.Body).Decode(&job)
	resp.Body.Close()
	if job.JobID == "" {
		t.Fatal("no job id")
	}

	// The test queue runs jobs synchronously, so the result is ready.
	resp = do(t, "GET", ts.URL+"/api/jobs/"+job.JobID, "alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("job status = %d", resp.StatusCode)
	}
	var done jobs.Job
	json.NewDecoder(resp.Body).Decode(&done)
	resp.Body.Close()
	if done.Status != jobs.StatusDone {
		t.Errorf("job = %+v", done)
	}

	// Another user cannot read the result.
	resp = do(t, "GET", ts.URL+"/api/jobs/"+job.JobID, "bob", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("cross-user job status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCapabilitiesEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := do(t, "GET", ts.URL+"/api/capabilities", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var caps CapabilitiesResponse
	json.NewDecoder(resp.Body).Decode(&caps)
	resp.Body.Close()
	if !caps.Preview || !caps.Watchers || !caps.Planner || !caps.HeavyAgent {
		t.Errorf("caps = %+v", caps)
	}
	if caps.Energy != 100 || caps.EnergyLow {
		t.Errorf("energy = %+v", caps)
	}
}

func TestCapabilitiesUnderLoad(t *testing.T) {
	s := New(nil, nil, nil, Config{}).
		WithGovernor(guard.NewGovernor(guard.StaticSampler(95, 90), 100, 30, 10))

	rec := httptest.NewRecorder()
	s.handleCapabilities(rec, httptest.NewRequest("GET", "/api/capabilities", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var caps CapabilitiesResponse
	json.NewDecoder(rec.Body).Decode(&caps)
	if caps.Preview || caps.Watchers || caps.Planner || caps.HeavyAgent {
		t.Errorf("caps on loaded host = %+v", caps)
	}
}

func TestDownloadEndpoint(t *testing.T) {
	dir := t.TempDir()
	data := []byte("conteudo do zip")
	if err := os.WriteFile(filepath.Join(dir, "sandbox_20260831.zip"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	ts, _ := newTestServer(t, Config{DownloadDir: dir})

	resp := do(t, "GET", ts.URL+"/download/sandbox_20260831.zip", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Disposition"); !strings.Contains(got, "sandbox_20260831.zip") {
		t.Errorf("disposition = %q", got)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != string(data) {
		t.Errorf("body = %q", body)
	}

	resp = do(t, "GET", ts.URL+"/download/inexistente.zip", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing artifact status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Dotfiles are never served.
	os.WriteFile(filepath.Join(dir, ".segredo"), []byte("x"), 0o644)
	resp = do(t, "GET", ts.URL+"/download/.segredo", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("dotfile status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDownloadDisabledWithoutDir(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := do(t, "GET", ts.URL+"/download/qualquer.zip", "", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestStatsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := do(t, "GET", ts.URL+"/api/stats", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var stats StatsResponse
	json.NewDecoder(resp.Body).Decode(&stats)
	resp.Body.Close()
	if stats.Jobs == nil {
		t.Error("queue metrics missing")
	}
}
