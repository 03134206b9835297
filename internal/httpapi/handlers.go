package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"voice-agent/internal/auth"
	"voice-agent/internal/campaign"
	"voice-agent/internal/leads"
	"voice-agent/internal/rbac"
	"voice-agent/internal/reporting"
	"voice-agent/internal/session"
	"voice-agent/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth     *auth.Manager
	Dialer   *campaign.Dialer
	Reports  *reporting.Service
	Registry *session.Registry

	// BaseCtx outlives individual requests; campaign runs hang off it.
	BaseCtx context.Context

	Clock func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now()
}

// --- Auth ---

type tokenRequest struct {
	OperatorKey string `json:"operator_key"`
	Subject     string `json:"subject"`
	Role        string `json:"role"`
}

// IssueToken exchanges the operator key for a JWT pair.
func (h Handlers) IssueToken(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Auth.CheckOperatorKey(req.OperatorKey); err != nil {
		logger.FromGin(c).Warn("operator key rejected", "client_ip", c.ClientIP())
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid operator key"})
		return
	}
	if req.Role == "" {
		req.Role = rbac.RoleOperator
	}
	if !rbac.Known(req.Role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}
	if req.Subject == "" {
		req.Subject = "operator"
	}
	pair, err := h.Auth.IssuePair(h.now(), req.Subject, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	Role         string `json:"role"`
}

// Refresh trades a refresh token for a new pair. Refresh tokens carry no
// role, so the caller restates it; it is capped at operator.
func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	claims, err := h.Auth.Verify(req.RefreshToken, auth.TokenTypeRefresh, h.now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	role := req.Role
	if role == "" || rbac.IsAdmin(role) || !rbac.Known(role) {
		role = rbac.RoleOperator
	}
	pair, err := h.Auth.IssuePair(h.now(), claims.Subject, role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

// --- Campaigns ---

// StartCampaign begins dialing a campaign in the background.
func (h Handlers) StartCampaign(c *gin.Context) {
	if h.Dialer == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dialer not configured"})
		return
	}
	id := c.Param("id")
	base := h.BaseCtx
	if base == nil {
		base = context.Background()
	}
	err := h.Dialer.Start(base, id)
	switch {
	case err == nil:
	case errors.Is(err, leads.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
		return
	case errors.Is(err, campaign.ErrAlreadyRunning):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "campaign already running"})
		return
	default:
		logger.FromGin(c).Error("campaign start failed", "campaign_id", id, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaign start failed"})
		return
	}
	subject, _ := auth.Subject(c.Request.Context())
	logger.FromGin(c).Info("campaign start requested", "campaign_id", id, "subject", subject)
	c.JSON(http.StatusAccepted, gin.H{"campaign_id": id, "status": "started"})
}

func (h Handlers) CampaignStats(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	stats, err := h.Reports.CampaignStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, leads.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "stats lookup failed"})
		return
	}
	if h.Dialer != nil {
		c.JSON(http.StatusOK, gin.H{"stats": stats, "dialing": h.Dialer.Running(stats.CampaignID)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// --- Calls ---

// CallsSummary aggregates call logs. from/to are RFC 3339 and default to the
// last 24 hours.
func (h Handlers) CallsSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	to := h.now()
	from := to.Add(-24 * time.Hour)
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC 3339"})
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC 3339"})
			return
		}
	}

	sum, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		Range:      reporting.TimeRange{From: from, To: to},
		CampaignID: c.Query("campaign_id"),
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// --- Sessions ---

func (h Handlers) ActiveSessions(c *gin.Context) {
	if h.Registry == nil {
		c.JSON(http.StatusOK, gin.H{"count": 0, "sessions": []session.Info{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": h.Registry.Len(), "sessions": h.Registry.Snapshot()})
}

// Routes mounts the /v1 API. authMW guards everything except token issuance.
func (h Handlers) Routes(r gin.IRouter, authMW gin.HandlerFunc) {
	v1 := r.Group("/v1")

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/token", h.IssueToken)
		authGroup.POST("/refresh", h.Refresh)
	}

	protected := v1.Group("")
	protected.Use(authMW)

	campaigns := protected.Group("/campaigns")
	{
		campaigns.POST("/:id/start", rbac.RequireAnyRole(rbac.RoleOperator), h.StartCampaign)
		campaigns.GET("/:id/stats", rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleViewer), h.CampaignStats)
	}

	protected.GET("/calls/summary", rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleViewer), h.CallsSummary)
	protected.GET("/sessions", rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleViewer), h.ActiveSessions)
}
