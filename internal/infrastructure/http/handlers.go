package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/usecases"
)

type conversationView struct {
	ID      string             `json:"id"`
	Status  entities.Status    `json:"status"`
	History []entities.Message `json:"history"`
}

func viewOf(m *usecases.ConversationManager) conversationView {
	return conversationView{ID: m.ID(), Status: m.Status(), History: m.History()}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	body := map[string]string{"error": err.Error()}

	var genErr *entities.GenerationError
	switch {
	case errors.Is(err, entities.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, entities.ErrEmptyQuery):
		code = http.StatusBadRequest
	case errors.Is(err, entities.ErrBusy):
		code = http.StatusConflict
	case errors.Is(err, entities.ErrClosed):
		code = http.StatusGone
	case errors.As(err, &genErr):
		// Backend details stay in the logs.
		code = http.StatusBadGateway
		body = map[string]string{"error": usecases.DefaultFallbackMessage, "kind": genErr.Kind.String()}
		s.logger.Warn("generation failed", zap.String("kind", genErr.Kind.String()), zap.Error(err))
	default:
		s.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, code, body)
}

// readQuery accepts {"query": "..."} or a form field named query.
func readQuery(r *http.Request) (string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", err
		}
		return req.Query, nil
	}
	if err := r.ParseForm(); err != nil {
		return "", err
	}
	return r.FormValue("query"), nil
}

func (s *Server) conversation(w http.ResponseWriter, r *http.Request) (*usecases.ConversationManager, bool) {
	m, err := s.opts.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return m, true
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	m := s.opts.Sessions.Create()
	w.Header().Set("Location", "/api/conversations/"+m.ID())
	writeJSON(w, http.StatusCreated, viewOf(m))
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	type summary struct {
		ID       string          `json:"id"`
		Status   entities.Status `json:"status"`
		Messages int             `json:"messages"`
	}
	all := s.opts.Sessions.List()
	out := make([]summary, len(all))
	for i, m := range all {
		out[i] = summary{ID: m.ID(), Status: m.Status(), Messages: len(m.History())}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	if m, ok := s.conversation(w, r); ok {
		writeJSON(w, http.StatusOK, viewOf(m))
	}
}

func (s *Server) handleEndConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Sessions.End(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	m, ok := s.conversation(w, r)
	if !ok {
		return
	}
	query, err := readQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := m.Submit(query); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"id": m.ID(), "status": m.Status()})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if m, ok := s.conversation(w, r); ok {
		writeJSON(w, http.StatusOK, map[string]bool{"cancelled": m.Cancel()})
	}
}

// handleQuery answers a single question without a conversation.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	query, err := readQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	answer, err := s.opts.Query.Query(r.Context(), query)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// handleSearch previews retrieval and the assembled context.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	prompt, err := s.opts.Query.Search(r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":     prompt.Query,
		"documents": prompt.Documents,
		"context":   prompt.Context,
	})
}

func (s *Server) currentCorpus() (*usecases.Corpus, bool) {
	if s.opts.Corpus == nil {
		return nil, false
	}
	c := s.opts.Corpus()
	return c, c != nil
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	c, ok := s.currentCorpus()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "corpus not loaded"})
		return
	}
	category := r.URL.Query().Get("category")
	docs := c.Store.All()
	if category != "" {
		filtered := docs[:0]
		for _, d := range docs {
			if strings.EqualFold(d.Category, category) {
				filtered = append(filtered, d)
			}
		}
		docs = filtered
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	c, ok := s.currentCorpus()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "corpus not loaded"})
		return
	}
	doc, err := c.Store.ByID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if c, ok := s.currentCorpus(); ok {
		resp["documents"] = len(c.Store.All())
		resp["corpus_version"] = c.Version
		resp["corpus_loaded_at"] = c.LoadedAt.UTC().Format(time.RFC3339)
	} else {
		resp["status"] = "degraded"
	}
	if s.opts.Sessions != nil {
		resp["conversations"] = s.opts.Sessions.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}
