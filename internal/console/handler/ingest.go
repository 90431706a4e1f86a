package handler

import (
	"encoding/json"
	"net/http"
)

// MonitorIngest Описываем, что хендлерам ингеста нужно от движка
type MonitorIngest interface {
	RecordMetric(name string, value float64, context map[string]interface{})
	RecordEvent(category, actor, endpoint string, details map[string]interface{}, sourceIP string)
	RecordAPICall(endpoint, actor string, responseTime float64, status string, sourceIP string)
}

type IngestHandler struct {
	monitor MonitorIngest
}

func NewIngestHandler(m MonitorIngest) *IngestHandler {
	return &IngestHandler{monitor: m}
}

type metricRequest struct {
	Name    string                 `json:"metric_name"`
	Value   float64                `json:"value"`
	Context map[string]interface{} `json:"context"`
}

func (h *IngestHandler) RecordMetric(w http.ResponseWriter, r *http.Request) {
	var req metricRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "metric_name is required", http.StatusBadRequest)
		return
	}

	h.monitor.RecordMetric(req.Name, req.Value, req.Context)
	w.WriteHeader(http.StatusAccepted)
}

type eventRequest struct {
	Category string                 `json:"category"`
	Actor    string                 `json:"actor"`
	Endpoint string                 `json:"endpoint"`
	Details  map[string]interface{} `json:"details"`
	SourceIP string                 `json:"source_ip"`
}

func (h *IngestHandler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.Category == "" {
		http.Error(w, "category is required", http.StatusBadRequest)
		return
	}

	// IP не передали — берем адрес отправителя (за RealIP middleware)
	if req.SourceIP == "" {
		req.SourceIP = r.RemoteAddr
	}

	h.monitor.RecordEvent(req.Category, req.Actor, req.Endpoint, req.Details, req.SourceIP)
	w.WriteHeader(http.StatusAccepted)
}

type apiCallRequest struct {
	Endpoint     string  `json:"endpoint"`
	Actor        string  `json:"actor"`
	ResponseTime float64 `json:"response_time"`
	Status       string  `json:"status"`
	SourceIP     string  `json:"source_ip"`
}

func (h *IngestHandler) RecordAPICall(w http.ResponseWriter, r *http.Request) {
	var req apiCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.Endpoint == "" {
		http.Error(w, "endpoint is required", http.StatusBadRequest)
		return
	}

	h.monitor.RecordAPICall(req.Endpoint, req.Actor, req.ResponseTime, req.Status, req.SourceIP)
	w.WriteHeader(http.StatusAccepted)
}
