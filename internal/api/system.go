package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// listExchanges returns the capability table.
func (s *Server) listExchanges(c *gin.Context) {
	c.JSON(http.StatusOK, s.Registry.List())
}

// getGateways returns per-exchange health and circuit state.
func (s *Server) getGateways(c *gin.Context) {
	if s.Gateways == nil {
		respondError(c, http.StatusServiceUnavailable, "GATEWAYS_UNAVAILABLE", "gateway health tracking disabled")
		return
	}
	c.JSON(http.StatusOK, s.Gateways.Stats())
}

func (s *Server) getMetrics(c *gin.Context) {
	if s.Metrics == nil {
		respondError(c, http.StatusServiceUnavailable, "METRICS_UNAVAILABLE", "metrics not configured")
		return
	}
	c.JSON(http.StatusOK, s.Metrics.GetSnapshot())
}
