package handler

import (
	"encoding/json"
	"net/http"

	"github.com/xela07ax/opswatch/internal/domain"
)

// DashboardService Описываем, что нам нужно от движка
type DashboardService interface {
	GetDashboardSnapshot() domain.DashboardSnapshot
}

type DashboardHandler struct {
	service DashboardService
}

func NewDashboardHandler(s DashboardService) *DashboardHandler {
	return &DashboardHandler{service: s}
}

func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.service.GetDashboardSnapshot())
}
