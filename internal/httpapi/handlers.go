package httpapi

import (
	"errors"
	"net/http"
	"time"

	"callflow-platform/internal/dtmf"
	"callflow-platform/internal/notify"
	"callflow-platform/internal/reporting"
	"callflow-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups operator-facing HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Input     *dtmf.Engine
	Queue     *notify.Queue
	Reporting *reporting.Service
}

type startFlowRequest struct {
	Stages []dtmf.StageDefinition `json:"stages"`
}

// StartInputFlow installs the digit-collection stages for a call and returns
// the first stage for prompting.
func (h Handlers) StartInputFlow(c *gin.Context) {
	if h.Input == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "input engine not configured"})
		return
	}
	callID := c.Param("call_id")
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}

	var req startFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	first, err := h.Input.StartFlow(callID, req.Stages)
	if err != nil {
		if errors.Is(err, dtmf.ErrInvalidStages) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.FromGin(c).Error("start flow failed", "call_id", callID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "start flow failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"first_stage": first})
}

// InputFlowSnapshot returns the audit view of a call's input flow. Sensitive
// stages come back masked.
func (h Handlers) InputFlowSnapshot(c *gin.Context) {
	if h.Input == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "input engine not configured"})
		return
	}
	callID := c.Param("call_id")
	snap, ok := h.Input.Snapshot(callID)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no active flow"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stages": snap})
}

// NotificationStats exposes the dispatch queue counters for health checks.
func (h Handlers) NotificationStats(c *gin.Context) {
	if h.Queue == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "queue not configured"})
		return
	}
	c.JSON(http.StatusOK, h.Queue.Stats())
}

// CallsSummary aggregates sessions over a time range. Bounds come in as
// RFC3339 "from" and "to" query parameters.
func (h Handlers) CallsSummary(c *gin.Context) {
	if h.Reporting == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
		return
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
		return
	}

	req := reporting.CallsSummaryRequest{Range: reporting.TimeRange{From: from, To: to}}
	out, err := h.Reporting.CallsSummary(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from/to range required"})
			return
		}
		logger.FromGin(c).Error("calls summary failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}
