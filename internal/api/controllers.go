package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"alert-executor/internal/alert"
	"alert-executor/internal/execution"
	"alert-executor/internal/ledger"
	"alert-executor/pkg/exchanges/common"
)

type listAlertsQuery struct {
	Status   string `form:"status"`
	Exchange string `form:"exchange"`
	Limit    int    `form:"limit"`
}

func (q *listAlertsQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
	q.Status = strings.ToLower(strings.TrimSpace(q.Status))
	q.Exchange = strings.ToLower(strings.TrimSpace(q.Exchange))
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// respondExecutionError maps pipeline sentinels onto HTTP answers.
func (s *Server) respondExecutionError(c *gin.Context, a alert.Alert, err error) {
	switch {
	case errors.Is(err, execution.ErrNotTradingAlert):
		respondError(c, http.StatusBadRequest, "NOT_TRADING_ALERT", err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		respondError(c, http.StatusNotFound, "ALERT_NOT_FOUND", "alert not found")
	case errors.Is(err, execution.ErrAlreadyProcessed):
		c.JSON(http.StatusConflict, gin.H{"code": "ALREADY_PROCESSED", "error": err.Error(), "alert": a})
	case errors.Is(err, execution.ErrInFlight):
		respondError(c, http.StatusConflict, "IN_FLIGHT", err.Error())
	case common.IsValidation(err):
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	default:
		s.log.Error("alert request failed", zap.String("alert_id", a.ID),
			zap.String("request_id", c.GetString("RequestID")), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

// receiveAlert is the foreground entry point: the outcome is in the response.
func (s *Server) receiveAlert(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid request payload")
		return
	}
	a, err := s.Pipeline.Handle(c.Request.Context(), payload, alert.SourceForeground)
	if errors.Is(err, ledger.ErrDuplicate) {
		c.JSON(http.StatusOK, gin.H{"duplicate": true, "alert": a})
		return
	}
	if err != nil {
		s.respondExecutionError(c, a, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"duplicate": false, "alert": a})
}

// webhook is the background entry point: payloads are queued and acknowledged.
func (s *Server) webhook(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid request payload")
		return
	}
	// Acknowledge non-trading messages so the transport does not redeliver them.
	if !alert.IsTradingAlert(payload) {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	if s.Workers == nil {
		respondError(c, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "background queue not configured")
		return
	}
	switch err := s.Workers.Submit(payload); {
	case errors.Is(err, execution.ErrQueueFull):
		s.log.Warn("webhook rejected, queue full", zap.Int("queued", s.Workers.Pending()))
		respondError(c, http.StatusServiceUnavailable, "QUEUE_FULL", err.Error())
	case errors.Is(err, execution.ErrQueueClosed):
		respondError(c, http.StatusServiceUnavailable, "SHUTTING_DOWN", err.Error())
	case err != nil:
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	default:
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
	}
}

func (s *Server) listAlerts(c *gin.Context) {
	var q listAlertsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid query parameters")
		return
	}
	q.normalize()
	status := alert.Status(q.Status)
	if status != "" && !status.Valid() {
		respondError(c, http.StatusBadRequest, "INVALID_STATUS", "status must be pending, executed, ignored or failed")
		return
	}

	alerts, err := s.Ledger.List(c.Request.Context(), ledger.Filter{Status: status, Exchange: q.Exchange, Limit: q.Limit})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (s *Server) getAlert(c *gin.Context) {
	a, err := s.Ledger.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondExecutionError(c, a, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// executeAlert approves a pending alert in manual mode.
func (s *Server) executeAlert(c *gin.Context) {
	a, err := s.Pipeline.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondExecutionError(c, a, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// ignoreAlert dismisses a pending alert. The body is optional.
func (s *Server) ignoreAlert(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid request payload")
			return
		}
	}
	a, err := s.Pipeline.Dismiss(c.Request.Context(), c.Param("id"), strings.TrimSpace(req.Reason))
	if err != nil {
		s.respondExecutionError(c, a, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
