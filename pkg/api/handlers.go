// Package api is the engine's internal operational surface: health, a
// read-only view of rules and recent alerts, sweep stats and prometheus
// metrics. Nothing here mutates rules or triggers evaluation; the engine
// exposes no request-response API of its own.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/dealradar/alert-engine/pkg/engine"
	"github.com/dealradar/alert-engine/pkg/models"
	"github.com/dealradar/alert-engine/pkg/stores"
)

// SweepStatus is the subset of scheduler state the ops surface exposes.
type SweepStatus interface {
	LastSweep() engine.SweepStats
	RuleMetrics() map[string]models.AlertMetrics
}

// Handler serves the ops routes.
type Handler struct {
	rules  stores.RuleStore
	alerts stores.AlertStore
	status SweepStatus
}

func NewHandler(rules stores.RuleStore, alerts stores.AlertStore, status SweepStatus) *Handler {
	return &Handler{rules: rules, alerts: alerts, status: status}
}

// Routes registers the ops endpoints on a router.
func (h *Handler) Routes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/api/rules", h.ListRules).Methods(http.MethodGet)
	r.HandleFunc("/api/alerts", h.ListAlerts).Methods(http.MethodGet)
	r.HandleFunc("/api/engine/stats", h.EngineStats).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.ListActiveRules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	ruleID := r.URL.Query().Get("ruleId")
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, errInvalidLimit)
			return
		}
		limit = parsed
	}
	alerts, err := h.alerts.ListAlerts(r.Context(), ruleID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (h *Handler) EngineStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lastSweep":   h.status.LastSweep(),
		"ruleMetrics": h.status.RuleMetrics(),
	})
}

var errInvalidLimit = &apiError{"limit must be a positive integer"}

type apiError struct{ msg string }

func (e *apiError) Error() string { return e.msg }

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
