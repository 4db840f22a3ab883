// Package web exposes the thin administrative HTTP surface: read and update
// the mutable monitor config, list held markets and recent alerts.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/xwjdsh/polymonitor/internal/config"
	"github.com/xwjdsh/polymonitor/internal/repo"
	"github.com/xwjdsh/polymonitor/internal/service/polymarket"
)

type Server struct {
	router     *mux.Router
	httpServer *http.Server
	cfg        *config.Store
	client     polymarket.Service
	alerts     repo.AlertRepo
}

func NewServer(port int, cfg *config.Store, client polymarket.Service, alerts repo.AlertRepo) *Server {
	s := &Server{
		router: mux.NewRouter(),
		cfg:    cfg,
		client: client,
		alerts: alerts,
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)
	api.HandleFunc("/config", s.handlePutConfig).Methods(http.MethodPut)
	api.HandleFunc("/positions", s.handleGetPositions).Methods(http.MethodGet)
	api.HandleFunc("/alerts", s.handleGetAlerts).Methods(http.MethodGet)
}

// Handler returns the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	slog.Info("web server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Current().Sections())
}

// handlePutConfig merges the submitted monitor sections into a copy of the
// current full config and applies the result atomically. Any invalid section
// rejects the whole update.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var sections config.MonitorSections
	if err := json.NewDecoder(r.Body).Decode(&sections); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	next := s.cfg.Current().Clone()
	next.ApplySections(sections)

	updated, err := s.cfg.Update(next)
	if err != nil {
		slog.Error("config update rejected", "error", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, updated.Sections())
}

type positionView struct {
	ConditionID string `json:"condition_id"`
	Title       string `json:"title"`
	Outcome     string `json:"outcome"`
	EventTitle  string `json:"event_title"`
}

// handleGetPositions lists the currently held markets across all wallets,
// deduplicated by condition id. It backs the per-market override picker.
func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	wallets := s.cfg.Current().MyWallets

	seen := make(map[string]struct{})
	views := make([]positionView, 0)
	for _, wallet := range wallets {
		positions, err := s.client.GetPositions(r.Context(), wallet)
		if err != nil {
			slog.Error("failed to fetch positions", "wallet", wallet, "error", err)
			continue
		}
		for _, p := range positions {
			if p.ConditionID == "" {
				continue
			}
			if _, ok := seen[p.ConditionID]; ok {
				continue
			}
			seen[p.ConditionID] = struct{}{}
			views = append(views, positionView{
				ConditionID: p.ConditionID,
				Title:       p.Title,
				Outcome:     p.Outcome,
				EventTitle:  p.EventTitle,
			})
		}
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	if s.alerts == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	alerts, err := s.alerts.FindRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
