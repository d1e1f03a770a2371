package serve

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/autonoplus/yui/pipeline"
	"github.com/autonoplus/yui/store"
)

// --- Chat handlers ---

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "X-User-ID obrigatório"})
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	chat, err := s.store.CreateChat(r.Context(), uid, req.Title)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, chat)
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "X-User-ID obrigatório"})
		return
	}

	chats, err := s.store.Chats(r.Context(), uid)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if chats == nil {
		chats = []store.Chat{}
	}
	writeJSON(w, http.StatusOK, chats)
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "X-User-ID obrigatório"})
		return
	}

	if err := s.store.DeleteChat(r.Context(), r.PathValue("id"), uid); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotOwner) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleRenameChat(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "X-User-ID obrigatório"})
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "title obrigatório"})
		return
	}

	if err := s.store.UpdateChatTitle(r.Context(), r.PathValue("id"), uid, req.Title); err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

// --- Message handlers ---

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "X-User-ID obrigatório"})
		return
	}

	msgs, err := s.store.Messages(r.Context(), r.PathValue("id"), uid, 0)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// handleSendMessage runs one message through the pipeline. With the
// async queue enabled it returns a job id immediately; otherwise it
// blocks and returns the full reply.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "X-User-ID obrigatório"})
		return
	}

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "mensagem vazia"})
		return
	}

	preq := pipeline.Request{
		UserID:    uid,
		ChatID:    r.PathValue("id"),
		Message:   req.Message,
		Model:     req.Model,
		Workspace: req.Workspace,
	}

	if s.cfg.UseAsyncQueue && s.queue != nil {
		// The job outlives the request, so it runs on its own context.
		id := s.queue.Enqueue(uid, func() (any, error) {
			return s.process(context.Background(), preq)
		})
		writeJSON(w, http.StatusAccepted, JobResponse{JobID: id, Status: "queued"})
		return
	}

	reply, err := s.process(r.Context(), preq)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, SendResponse{Reply: reply})
}

// process collects the streamed reply. Process (not ProcessSync) so
// SSE subscribers see chunks and status transitions as they happen.
func (s *Server) process(ctx context.Context, preq pipeline.Request) (string, error) {
	var b strings.Builder
	err := s.pipeline.Process(ctx, preq, func(chunk string) bool {
		if chunk != pipeline.StatusThinking && chunk != pipeline.StatusDone {
			b.WriteString(chunk)
		}
		return true
	})
	return b.String(), err
}

// --- Job handlers ---

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "X-User-ID obrigatório"})
		return
	}
	if s.queue == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "fila desabilitada"})
		return
	}

	job := s.queue.Get(uid, r.PathValue("id"))
	if job == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "job não encontrado"})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// --- Download handlers ---

// handleDownload serves ZIP artifacts produced by compactar_workspace.
// Only plain file names inside the download directory are reachable.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if s.cfg.DownloadDir == "" {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "downloads desabilitados"})
		return
	}

	name := r.PathValue("name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "nome inválido"})
		return
	}

	path := filepath.Join(s.cfg.DownloadDir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "arquivo não encontrado"})
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeFile(w, r, path)
}

// --- Operational handlers ---

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "usage tracker desabilitado"})
		return
	}
	writeJSON(w, http.StatusOK, s.usage.Today())
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if s.governor == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "governor desabilitado"})
		return
	}
	writeJSON(w, http.StatusOK, CapabilitiesResponse{
		Preview:    s.governor.AllowPreview().Allow,
		Watchers:   s.governor.AllowWatchers().Allow,
		Planner:    s.governor.AllowPlanner().Allow,
		HeavyAgent: s.governor.AllowHeavyAgent().Allow,
		Energy:     s.governor.Energy(),
		EnergyLow:  s.governor.EnergyLow(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
	}
	if s.queue != nil {
		resp.Jobs = s.queue.Metrics()
	}
	writeJSON(w, http.StatusOK, resp)
}
