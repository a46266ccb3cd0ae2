package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"CarbonReporting/internal/partition"
	"CarbonReporting/internal/refresh"
)

// Server is the operator HTTP surface: on-demand view refresh, refresh
// history, staleness, and partition maintenance. It is plain JSON over
// net/http, meant for internal networks and runbooks, not end users.
type Server struct {
	refresher  *refresh.Refresher
	partitions *partition.Manager
	logger     zerolog.Logger
	httpServer *http.Server
}

func NewServer(addr string, refresher *refresh.Refresher, partitions *partition.Manager, logger zerolog.Logger) *Server {
	s := &Server{
		refresher:  refresher,
		partitions: partitions,
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/admin/views/refresh", s.handleRefreshAll)
	mux.HandleFunc("/admin/views/stale", s.handleStaleViews)
	mux.HandleFunc("/admin/views/", s.handleView) // /admin/views/{name}/refresh|history
	mux.HandleFunc("/admin/partitions", s.handlePartitions)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Minute, // blocking refreshes can be slow
	}
	return s
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutCtx)
	}()

	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("admin server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// POST /admin/views/refresh?concurrent=true
func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	concurrent := r.URL.Query().Get("concurrent") == "true"
	started := time.Now()

	// Operator-driven runs report per-view failures instead of aborting.
	results, err := s.refresher.RefreshAll(r.Context(), concurrent, true)

	resp := map[string]interface{}{
		"results":    resultsJSON(results),
		"concurrent": concurrent,
		"durationMs": time.Since(started).Milliseconds(),
	}
	if err != nil {
		resp["error"] = err.Error()
		writeJSON(w, http.StatusMultiStatus, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /admin/views/stale
func (s *Server) handleStaleViews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}

	stale, err := s.refresher.StaleViews(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stale":       stale,
		"thresholdMs": refresh.StaleThreshold.Milliseconds(),
	})
}

// handleView routes /admin/views/{name}/refresh and /admin/views/{name}/history.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/admin/views/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "expected /admin/views/{view}/refresh or /history")
		return
	}
	view, action := parts[0], parts[1]

	if !refresh.IsManagedView(view) {
		writeError(w, http.StatusNotFound, "unknown view "+view)
		return
	}

	switch action {
	case "refresh":
		s.refreshOne(w, r, view)
	case "history":
		s.history(w, r, view)
	default:
		writeError(w, http.StatusNotFound, "unknown action "+action)
	}
}

func (s *Server) refreshOne(w http.ResponseWriter, r *http.Request, view string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	concurrent := r.URL.Query().Get("concurrent") == "true"
	res, err := s.refresher.RefreshView(r.Context(), view, concurrent)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resultJSON(res))
}

func (s *Server) history(w http.ResponseWriter, r *http.Request, view string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	entries, err := s.refresher.History(r.Context(), view, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"view":    view,
		"history": entries,
	})
}

type createPartitionRequest struct {
	Table string `json:"table"`
	Month string `json:"month"` // YYYY-MM
}

// GET  /admin/partitions lists partitions of managed tables.
// POST /admin/partitions creates one for a given table and month.
func (s *Server) handlePartitions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		infos, err := s.partitions.ListInfo(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"partitions": infos})

	case http.MethodPost:
		var req createPartitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		month, err := time.Parse("2006-01", req.Month)
		if err != nil {
			writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
			return
		}

		name, err := s.partitions.CreateForMonth(r.Context(), req.Table, month)
		if err != nil {
			if strings.Contains(err.Error(), "not partition-managed") {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"partition": name,
			"table":     req.Table,
			"month":     req.Month,
		})

	default:
		writeError(w, http.StatusMethodNotAllowed, "GET or POST required")
	}
}

func resultJSON(r refresh.Result) map[string]interface{} {
	return map[string]interface{}{
		"view":       r.View,
		"concurrent": r.Concurrent,
		"durationMs": r.Duration.Milliseconds(),
		"rows":       r.Rows,
	}
}

func resultsJSON(rs []refresh.Result) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(rs))
	for _, r := range rs {
		out = append(out, resultJSON(r))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
