package main

import (
	"database/sql"
	"net/http"
	"time"

	"callflow-platform/internal/dtmf"
	"callflow-platform/internal/hints"
	"callflow-platform/internal/httpapi"
	"callflow-platform/internal/notify"
	"callflow-platform/internal/rbac"
	"callflow-platform/internal/reconcile"
	"callflow-platform/internal/reporting"
	"callflow-platform/internal/telephony"
	"callflow-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type routeDeps struct {
	AuthMW     gin.HandlerFunc
	DB         *sql.DB
	Reconciler *reconcile.Service
	Input      *dtmf.Engine
	Hints      *hints.Detector
	Queue      *notify.Queue
	Reporting  *reporting.Service
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), deps.DB, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider webhooks (public).
	// NOTE: These endpoints should be protected by provider signature validation in production.
	{
		h := telephony.WebhookHandlers{
			Reconciler: deps.Reconciler,
			Input:      deps.Input,
			Hints:      deps.Hints,
		}
		r.POST("/webhooks/provider/status", h.HandleStatusCallback)
		r.POST("/webhooks/provider/digits", h.HandleDigitsCallback)
	}

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(deps.AuthMW)
	{
		h := httpapi.Handlers{
			Input:     deps.Input,
			Queue:     deps.Queue,
			Reporting: deps.Reporting,
		}

		// CALLS routes
		calls := v1.Group("/calls")
		calls.Use(rbac.RequireAnyRole(rbac.RoleOperator))
		{
			calls.POST("/:call_id/input-flow", h.StartInputFlow)
			calls.GET("/:call_id/input-flow", h.InputFlowSnapshot)
		}

		// ADMIN routes
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAnalyst))
		{
			admin.GET("/notifications/stats", h.NotificationStats)
			admin.GET("/calls/summary", h.CallsSummary)
		}
	}
}
