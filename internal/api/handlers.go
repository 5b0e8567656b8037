package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/thread-annotator/internal/model"
	"github.com/sells-group/thread-annotator/internal/monitoring"
	"github.com/sells-group/thread-annotator/internal/pipeline"
	"github.com/sells-group/thread-annotator/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			zap.L().Warn("api: store ping failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "store": "unreachable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// analyzeRequest carries a template (object or list of objects) and the
// posts to analyse.
type analyzeRequest struct {
	Template json.RawMessage `json:"template"`
	Posts    []model.RawPost `json:"posts"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Template) == 0 {
		jsonError(w, "template is required", http.StatusBadRequest)
		return
	}
	tmpl, err := pipeline.ParseTemplate(req.Template, pipeline.FormatJSON)
	if err != nil {
		jsonError(w, "invalid template: "+err.Error(), http.StatusBadRequest)
		return
	}
	posts := req.Posts
	if posts == nil {
		posts = []model.RawPost{}
	}
	for i := range posts {
		posts[i].Comments = dropNil(posts[i].Comments)
	}

	res, err := s.runner.Run(r.Context(), pipeline.Input{
		SamplePath: "api",
		Posts:      posts,
		Template:   tmpl,
	})
	if err != nil {
		zap.L().Error("api: analyze failed", zap.Error(err))
		jsonError(w, "analysis failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		jsonError(w, "run store not configured", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	filter := store.RunFilter{
		Status:   model.RunStatus(q.Get("status")),
		Provider: q.Get("provider"),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		jsonError(w, "limit must be a non-negative integer", http.StatusBadRequest)
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		jsonError(w, "offset must be a non-negative integer", http.StatusBadRequest)
		return
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list runs", zap.Error(err))
		jsonError(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// runDetail is a run with everything stored for it.
type runDetail struct {
	Run       *model.Run             `json:"run"`
	Analyses  []model.PostAnalysis   `json:"analyses"`
	Exhausted []model.ExhaustedField `json:"exhausted"`
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		jsonError(w, "run store not configured", http.StatusServiceUnavailable)
		return
	}
	ctx := r.Context()
	runID := chi.URLParam(r, "runID")

	run, err := s.store.GetRun(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		zap.L().Error("api: get run", zap.String("run_id", runID), zap.Error(err))
		jsonError(w, "failed to get run", http.StatusInternalServerError)
		return
	}

	analyses, err := s.store.ListAnalyses(ctx, runID)
	if err != nil {
		zap.L().Error("api: list analyses", zap.String("run_id", runID), zap.Error(err))
		jsonError(w, "failed to get analyses", http.StatusInternalServerError)
		return
	}
	exhausted, err := s.store.ListExhausted(ctx, runID)
	if err != nil {
		zap.L().Error("api: list exhausted", zap.String("run_id", runID), zap.Error(err))
		jsonError(w, "failed to get exhausted fields", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runDetail{Run: run, Analyses: analyses, Exhausted: exhausted})
}

// defaultStatsHours is the lookback window of /v1/stats without ?hours.
const defaultStatsHours = 24

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		jsonError(w, "run store not configured", http.StatusServiceUnavailable)
		return
	}
	hours, err := intParam(r.URL.Query().Get("hours"))
	if err != nil {
		jsonError(w, "hours must be a non-negative integer", http.StatusBadRequest)
		return
	}
	if hours == 0 {
		hours = defaultStatsHours
	}

	snap, err := monitoring.NewCollector(s.store).Collect(r.Context(), hours)
	if err != nil {
		zap.L().Error("api: collect stats", zap.Error(err))
		jsonError(w, "failed to collect stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, eris.Errorf("api: invalid integer %q", s)
	}
	return n, nil
}

func dropNil(comments []*model.Comment) []*model.Comment {
	kept := comments[:0]
	for _, c := range comments {
		if c != nil {
			kept = append(kept, c)
		}
	}
	return kept
}
