package handler

import (
	"context"
	"net/http"

	"github.com/medsupply/medsupply-backend/internal/inventory/service"
	"github.com/medsupply/medsupply-backend/pkg/httputil"
	"github.com/medsupply/medsupply-backend/pkg/logger"
)

// DashboardSource provides the expiry dashboard
type DashboardSource interface {
	Dashboard(ctx context.Context) (*service.Dashboard, error)
	Refresh(ctx context.Context) (*service.Dashboard, error)
}

// DashboardHandler handles dashboard endpoints
type DashboardHandler struct {
	source DashboardSource
	logger *logger.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(source DashboardSource, log *logger.Logger) *DashboardHandler {
	return &DashboardHandler{
		source: source,
		logger: log,
	}
}

// Get returns the cached expiry dashboard; refresh=true recomputes it
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	get := h.source.Dashboard
	if r.URL.Query().Get("refresh") == "true" {
		get = h.source.Refresh
	}

	dashboard, err := get(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to compute expiry dashboard")
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, dashboard)
}
