package handlers

import (
	"net/http"

	"github.com/ndewijer/depotsync/internal/api/response"
	"github.com/ndewijer/depotsync/internal/model"
	"github.com/ndewijer/depotsync/internal/service"
)

// SystemHandler handles system-related HTTP requests
type SystemHandler struct {
	systemService *service.SystemService
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(systemService *service.SystemService) *SystemHandler {
	return &SystemHandler{
		systemService: systemService,
	}
}

// Health checks the health of the system and database connectivity
//
// Endpoint: GET /api/system/health
// Response: 200 OK with HealthStatus
// Error: 503 Service Unavailable if the database cannot be reached
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.systemService.CheckHealth(); err != nil {
		response.RespondJSON(w, http.StatusServiceUnavailable, model.HealthStatus{
			Status:   "unhealthy",
			Database: "disconnected",
			Error:    err.Error(),
		})
		return
	}

	status := model.HealthStatus{
		Status:   "healthy",
		Database: "connected",
	}
	if v, err := h.systemService.SchemaVersion(r.Context()); err == nil {
		status.SchemaVersion = v
	}
	response.RespondJSON(w, http.StatusOK, status)
}
