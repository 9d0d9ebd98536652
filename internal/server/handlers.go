package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"curio/internal/core"
	"curio/internal/render"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.respondError(w, http.StatusServiceUnavailable, "database unreachable", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListDigests(w http.ResponseWriter, r *http.Request) {
	readerID := chi.URLParam(r, "id")

	reader, err := s.db.GetReader(r.Context(), readerID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load reader", err)
		return
	}
	if reader == nil {
		s.respondError(w, http.StatusNotFound, "reader not found", nil)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	digests, err := s.db.ListDigests(r.Context(), readerID, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list digests", err)
		return
	}
	if digests == nil {
		digests = []core.Digest{}
	}
	s.respondJSON(w, http.StatusOK, digests)
}

func (s *Server) handleLatestDigest(w http.ResponseWriter, r *http.Request) {
	readerID := chi.URLParam(r, "id")

	dg, err := s.db.LatestDigest(r.Context(), readerID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load latest digest", err)
		return
	}
	if dg == nil {
		s.respondError(w, http.StatusNotFound, "no digest yet", nil)
		return
	}
	s.writeDigest(w, r, dg)
}

func (s *Server) handleGetDigest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dg, err := s.db.GetDigest(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load digest", err)
		return
	}
	if dg == nil {
		s.respondError(w, http.StatusNotFound, "digest not found", nil)
		return
	}
	s.writeDigest(w, r, dg)
}

// digestEntry joins one digest score row with its article metadata.
type digestEntry struct {
	ArticleID   string  `json:"article_id"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Relevance   float64 `json:"relevance"`
	Reason      string  `json:"reason"`
	Serendipity bool    `json:"serendipity"`
}

type digestResponse struct {
	Digest   *core.Digest  `json:"digest"`
	Articles []digestEntry `json:"articles"`
}

// writeDigest renders a digest with its entries, as JSON by default or
// as HTML when requested with ?format=html.
func (s *Server) writeDigest(w http.ResponseWriter, r *http.Request, dg *core.Digest) {
	entries, err := s.digestEntries(r, dg)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load digest articles", err)
		return
	}

	if r.URL.Query().Get("format") == "html" {
		items := make([]render.Item, len(entries))
		for i, e := range entries {
			items[i] = render.Item{
				Title:       e.Title,
				URL:         e.URL,
				Relevance:   e.Relevance,
				Reason:      e.Reason,
				Serendipity: e.Serendipity,
			}
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(render.HTML(render.Markdown(dg, items)))
		return
	}

	s.respondJSON(w, http.StatusOK, digestResponse{Digest: dg, Articles: entries})
}

func (s *Server) digestEntries(r *http.Request, dg *core.Digest) ([]digestEntry, error) {
	scores, err := s.db.ScoresForDigest(r.Context(), dg.ID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(scores))
	for i, sc := range scores {
		ids[i] = sc.ArticleID
	}
	articles, err := s.db.GetArticles(r.Context(), ids)
	if err != nil {
		return nil, err
	}

	entries := make([]digestEntry, 0, len(scores))
	for _, sc := range scores {
		e := digestEntry{
			ArticleID:   sc.ArticleID,
			Relevance:   sc.Relevance,
			Reason:      sc.Reason,
			Serendipity: sc.Serendipity,
		}
		if a := articles[sc.ArticleID]; a != nil {
			e.Title = a.Title
			e.URL = a.URL
		}
		entries = append(entries, e)
	}
	return entries, nil
}

type feedbackRequest struct {
	ArticleID string `json:"article_id"`
	Action    string `json:"action"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	readerID := chi.URLParam(r, "id")

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	action := core.FeedbackAction(req.Action)
	switch action {
	case core.ActionLike, core.ActionSkip, core.ActionRead, core.ActionClick:
	default:
		s.respondError(w, http.StatusBadRequest, "unknown action: "+req.Action, nil)
		return
	}
	if req.ArticleID == "" {
		s.respondError(w, http.StatusBadRequest, "article_id is required", nil)
		return
	}

	event, err := s.db.RecordFeedback(r.Context(), readerID, req.ArticleID, action)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to record feedback", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, event)
}

func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	summary, err := s.pipe.Run(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "run failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, summary)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := s.db.ListRuns(r.Context(), limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list runs", err)
		return
	}
	if runs == nil {
		runs = []core.RunRecord{}
	}
	s.respondJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.db.GetRun(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load run", err)
		return
	}
	if run == nil {
		s.respondError(w, http.StatusNotFound, "run not found", nil)
		return
	}
	s.respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	runs, err := s.db.ListRuns(r.Context(), 1)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load latest run", err)
		return
	}
	if len(runs) == 0 {
		s.respondError(w, http.StatusNotFound, "no runs yet", nil)
		return
	}
	s.respondJSON(w, http.StatusOK, runs[0])
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		s.log.Error(msg, "error", err)
	}
	s.respondJSON(w, status, map[string]string{"error": msg})
}
