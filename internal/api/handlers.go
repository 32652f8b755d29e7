package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// handleHealth reports process and database liveness
func (s *Server) handleHealth(c *gin.Context) {
	if err := s.lots.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleLogin exchanges the admin password for a short-lived JWT
func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "password is required")
		return
	}

	token, err := s.authService.Login(req.Password)
	if err != nil {
		s.logger.Warn("Operator login failed", "remote", c.ClientIP())
		errorResponse(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	successResponse(c, gin.H{"token": token})
}

// ============================================================================
// CONTROL STATE
// ============================================================================

// handleGetControlState returns the full control record as a flat object.
// The trader's control client parses this body directly, so it stays
// unwrapped.
func (s *Server) handleGetControlState(c *gin.Context) {
	state, err := s.controls.GetControlState(c.Request.Context())
	if err != nil {
		s.logger.Error("Fetching control state failed", "error", err)
		errorResponse(c, http.StatusInternalServerError, "failed to fetch control state")
		return
	}
	c.JSON(http.StatusOK, state)
}

// handleGetSystemStatus returns whether trading is enabled
func (s *Server) handleGetSystemStatus(c *gin.Context) {
	state, err := s.controls.GetControlState(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to fetch control state")
		return
	}
	successResponse(c, gin.H{"enabled": state.Enabled})
}

// handleGetPriceLimit returns the maximum buy price
func (s *Server) handleGetPriceLimit(c *gin.Context) {
	state, err := s.controls.GetControlState(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to fetch control state")
		return
	}
	successResponse(c, gin.H{"price_limit": state.PriceCeiling})
}

// handleGetFakeBalance returns the deployable capital figure
func (s *Server) handleGetFakeBalance(c *gin.Context) {
	state, err := s.controls.GetControlState(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to fetch control state")
		return
	}
	successResponse(c, gin.H{"fake_balance": state.DeployableCapital})
}

// handleGetNumAvailableLots returns how many lot slots remain free
func (s *Server) handleGetNumAvailableLots(c *gin.Context) {
	ctx := c.Request.Context()
	state, err := s.controls.GetControlState(ctx)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to fetch control state")
		return
	}
	open, err := s.lots.CountOpenLots(ctx)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to count open lots")
		return
	}
	available := state.MaxOpenLots - open
	if available < 0 {
		available = 0
	}
	successResponse(c, gin.H{"num_available_lots": available})
}

// handleSetSystemStatus enables or disables trading
func (s *Server) handleSetSystemStatus(c *gin.Context) {
	enabled, err := strconv.ParseBool(c.Param("value"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "value must be true or false")
		return
	}
	if err := s.controls.SetEnabled(c.Request.Context(), enabled); err != nil {
		s.logger.Error("Updating system status failed", "error", err)
		errorResponse(c, http.StatusInternalServerError, "failed to update system status")
		return
	}
	s.logger.Info("System status updated", "enabled", enabled)
	successResponse(c, gin.H{"enabled": enabled})
}

// handleSetPriceLimit updates the maximum buy price
func (s *Server) handleSetPriceLimit(c *gin.Context) {
	limit, err := strconv.ParseFloat(c.Param("value"), 64)
	if err != nil || limit < 0 {
		errorResponse(c, http.StatusBadRequest, "value must be a non-negative number")
		return
	}
	if err := s.controls.SetPriceCeiling(c.Request.Context(), limit); err != nil {
		s.logger.Error("Updating price limit failed", "error", err)
		errorResponse(c, http.StatusInternalServerError, "failed to update price limit")
		return
	}
	s.logger.Info("Price limit updated", "price_limit", limit)
	successResponse(c, gin.H{"price_limit": limit})
}

// handleSetFakeBalance updates the deployable capital figure. The trader
// calls this after every completed sell; operators call it to fund or drain
// the pool. Last write wins.
func (s *Server) handleSetFakeBalance(c *gin.Context) {
	balance, err := strconv.ParseFloat(c.Param("value"), 64)
	if err != nil || balance < 0 {
		errorResponse(c, http.StatusBadRequest, "value must be a non-negative number")
		return
	}
	if err := s.controls.SetDeployableCapital(c.Request.Context(), balance); err != nil {
		s.logger.Error("Updating fake balance failed", "error", err)
		errorResponse(c, http.StatusInternalServerError, "failed to update fake balance")
		return
	}
	s.logger.Info("Fake balance updated", "fake_balance", balance)
	successResponse(c, gin.H{"fake_balance": balance})
}

// handleSetMaxNumLots updates the lot slot count
func (s *Server) handleSetMaxNumLots(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("value"))
	if err != nil || n < 1 {
		errorResponse(c, http.StatusBadRequest, "value must be a positive integer")
		return
	}
	if err := s.controls.SetMaxOpenLots(c.Request.Context(), n); err != nil {
		s.logger.Error("Updating max lots failed", "error", err)
		errorResponse(c, http.StatusInternalServerError, "failed to update max lots")
		return
	}
	s.logger.Info("Max open lots updated", "max_open_lots", n)
	successResponse(c, gin.H{"max_open_lots": n})
}

// ============================================================================
// LEDGER READS
// ============================================================================

// handleGetLots returns all open lots
func (s *Server) handleGetLots(c *gin.Context) {
	lots, err := s.lots.GetOpenLots(c.Request.Context())
	if err != nil {
		s.logger.Error("Fetching open lots failed", "error", err)
		errorResponse(c, http.StatusInternalServerError, "failed to fetch open lots")
		return
	}
	successResponse(c, lots)
}

// handleGetHistory returns executed trades, newest first
func (s *Server) handleGetHistory(c *gin.Context) {
	limit := 50
	offset := 0
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	entries, err := s.lots.GetHistory(c.Request.Context(), limit, offset)
	if err != nil {
		s.logger.Error("Fetching history failed", "error", err)
		errorResponse(c, http.StatusInternalServerError, "failed to fetch history")
		return
	}
	successResponse(c, entries)
}
