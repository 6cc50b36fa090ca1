package telephony

import (
	"errors"
	"net/http"

	"callflow-platform/internal/dtmf"
	"callflow-platform/internal/hints"
	"callflow-platform/internal/metrics"
	"callflow-platform/internal/reconcile"
	"callflow-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// WebhookHandlers converts provider callbacks to internal types and delegates
// to the reconciler and input engine.
//
// Boundary rule: the provider is always acknowledged with 200 once the form
// parses, even when internal processing fails. Propagating storage errors to
// the provider as delivery failures would trigger provider-side retry storms;
// failures are logged and the event is recoverable from provider logs.
type WebhookHandlers struct {
	Reconciler *reconcile.Service
	Input      *dtmf.Engine
	Hints      *hints.Detector
}

// HandleStatusCallback ingests a call status event.
func (h WebhookHandlers) HandleStatusCallback(c *gin.Context) {
	log := logger.FromGin(c)
	metrics.WebhookEventsTotal.Inc()

	form, err := ParseStatusCallback(c.Request)
	if err != nil {
		log.Warn("status callback parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	if form.CallSid == "" || form.CallStatus == "" {
		log.Warn("status callback missing CallSid or CallStatus")
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "CallSid and CallStatus required"})
		return
	}

	// The notification destination rides on the callback URL, configured when
	// the call is placed.
	res, err := h.Reconciler.Ingest(c.Request.Context(), reconcile.IngestRequest{
		CallID:            form.CallSid,
		RawStatus:         form.CallStatus,
		AnsweredBy:        form.AnsweredBy,
		FailureReason:     form.FailureReason(),
		NotifyDestination: c.Query("destination"),
		RawPayload:        form.RawJSON(),
	})
	if err != nil {
		log.Error("status ingest failed", "call_id", form.CallSid, "err", err)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	if !res.Accepted {
		metrics.WebhookEventsDuplicateTotal.Inc()
	}

	c.JSON(http.StatusOK, res)
}

// HandleDigitsCallback processes one keypad submission.
func (h WebhookHandlers) HandleDigitsCallback(c *gin.Context) {
	log := logger.FromGin(c)
	metrics.DTMFSubmissionsTotal.Inc()

	form, err := ParseDigitsCallback(c.Request)
	if err != nil {
		log.Warn("digits callback parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	if form.CallSid == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "CallSid required"})
		return
	}

	h.Hints.OnKeypad(c.Request.Context(), form.CallSid)

	res, err := h.Input.Submit(form.CallSid, form.Digits)
	if err != nil {
		if errors.Is(err, dtmf.ErrNoActiveFlow) {
			log.Debug("digits received with no active flow", "call_id", form.CallSid)
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		log.Error("digit submission failed", "call_id", form.CallSid, "err", err)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	c.JSON(http.StatusOK, res)
}
