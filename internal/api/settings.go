package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"alert-executor/internal/events"
	"alert-executor/internal/settings"
	"alert-executor/pkg/exchanges/common"
)

type activateCredentialsRequest struct {
	Exchange string `json:"exchange" binding:"required"`
	APIKey   string `json:"apiKey" binding:"required"`
	Active   *bool  `json:"active"`
}

func (s *Server) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.Settings.Config())
}

// updateSettings merges the body onto the current config; absent fields keep
// their value.
func (s *Server) updateSettings(c *gin.Context) {
	cfg := s.Settings.Config()
	if err := c.ShouldBindJSON(&cfg); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid request payload")
		return
	}
	saved, err := s.Settings.UpdateConfig(c.Request.Context(), cfg)
	if err != nil {
		if common.IsValidation(err) {
			respondError(c, http.StatusBadRequest, "INVALID_SETTINGS", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if s.Bus != nil {
		s.Bus.Publish(events.EventSettingsUpdate, saved)
	}
	c.JSON(http.StatusOK, saved)
}

// listCredentials never returns secrets in clear.
func (s *Server) listCredentials(c *gin.Context) {
	creds := s.Settings.Credentials()
	out := make([]settings.ExchangeCredentials, 0, len(creds))
	for _, cr := range creds {
		out = append(out, cr.Masked())
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) upsertCredentials(c *gin.Context) {
	var req settings.ExchangeCredentials
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid request payload")
		return
	}
	exchange, ok := s.canonicalExchange(c, req.Exchange)
	if !ok {
		return
	}
	req.Exchange = exchange
	if err := s.Settings.UpsertCredentials(c.Request.Context(), req); err != nil {
		s.respondSettingsError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req.Masked())
}

func (s *Server) activateCredentials(c *gin.Context) {
	var req activateCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "exchange and apiKey are required")
		return
	}
	exchange, ok := s.canonicalExchange(c, req.Exchange)
	if !ok {
		return
	}
	active := req.Active == nil || *req.Active
	if err := s.Settings.SetActive(c.Request.Context(), exchange, req.APIKey, active); err != nil {
		s.respondSettingsError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exchange": exchange, "active": active})
}

func (s *Server) deleteCredentials(c *gin.Context) {
	exchange, ok := s.canonicalExchange(c, c.Param("exchange"))
	if !ok {
		return
	}
	if err := s.Settings.RemoveCredentials(c.Request.Context(), exchange, c.Param("apiKey")); err != nil {
		s.respondSettingsError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// canonicalExchange resolves aliases so credentials are stored under the
// name the pipeline looks them up by.
func (s *Server) canonicalExchange(c *gin.Context, name string) (string, bool) {
	adapter, err := s.Registry.Lookup(name)
	if err != nil {
		respondError(c, http.StatusBadRequest, "UNSUPPORTED_EXCHANGE", err.Error())
		return "", false
	}
	return adapter.Name, true
}

func (s *Server) respondSettingsError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, settings.ErrCredentialsNotFound):
		respondError(c, http.StatusNotFound, "CREDENTIALS_NOT_FOUND", err.Error())
	case common.IsValidation(err):
		respondError(c, http.StatusBadRequest, "INVALID_CREDENTIALS", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "STORE_ERROR", err.Error())
	}
}
