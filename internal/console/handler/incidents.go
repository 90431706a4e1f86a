package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/opswatch/internal/audit"
	"github.com/xela07ax/opswatch/internal/domain"
)

// IncidentService Описываем, что нам нужно от движка для операторских ручек
type IncidentService interface {
	GetActiveIncidents(severity string) []domain.Incident
	Acknowledge(id, actor string) bool
	Resolve(id, actor string) bool
	GetStatistics(periodDays int) domain.AggregateReport
}

// TrailReader читает хронологию инцидента из БД. nil — трейл не настроен.
type TrailReader interface {
	ListByIncident(ctx context.Context, incidentID string, limit int) ([]audit.Event, error)
}

type IncidentHandler struct {
	service IncidentService
	trail   TrailReader
}

func NewIncidentHandler(s IncidentService, trail TrailReader) *IncidentHandler {
	return &IncidentHandler{service: s, trail: trail}
}

func (h *IncidentHandler) List(w http.ResponseWriter, r *http.Request) {
	severity := r.URL.Query().Get("severity")
	if severity != "" && !domain.Severity(severity).Valid() {
		http.Error(w, "unknown severity", http.StatusBadRequest)
		return
	}

	incidents := h.service.GetActiveIncidents(severity)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"incidents": incidents,
		"count":     len(incidents),
	})
}

func (h *IncidentHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.service.Acknowledge(id, operatorFrom(r)) {
		// tip: либо инцидент не существует, либо уже подтвержден/разрешен
		http.Error(w, "incident not found or not active", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *IncidentHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.service.Resolve(id, operatorFrom(r)) {
		http.Error(w, "incident not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *IncidentHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.service.GetStatistics(days))
}

func (h *IncidentHandler) Trail(w http.ResponseWriter, r *http.Request) {
	if h.trail == nil {
		http.Error(w, "incident trail storage is not configured", http.StatusNotImplemented)
		return
	}

	id := chi.URLParam(r, "id")
	events, err := h.trail.ListByIncident(r.Context(), id, 100)
	if err != nil {
		http.Error(w, "failed to fetch incident trail", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"incident_id": id,
		"events":      events,
	})
}

// operatorFrom достает оператора из контекста, заполненного auth middleware
func operatorFrom(r *http.Request) string {
	if v, ok := r.Context().Value("user_id").(string); ok && v != "" {
		return v
	}
	return "unknown"
}
