package main

import (
	"net/http"

	"comms-orchestrator/internal/auth"
	"comms-orchestrator/internal/channels"
	"comms-orchestrator/internal/config"
	"comms-orchestrator/internal/httpapi"
	"comms-orchestrator/internal/rbac"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, cfg config.Config, am *auth.Manager, svc *services) {
	h := httpapi.Handlers{
		Auth:         am,
		Orchestrator: svc.Orchestrator,
		History:      svc.History,
		Prefs:        svc.Prefs,
		Reports:      svc.Reports,
		BatchLimit:   cfg.Comms.BatchSize,
		SendTimeout:  sendBudget(cfg.Comms),
	}

	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if err := svc.Ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider webhooks. Signature checks are skipped only when no Twilio
	// token is configured.
	hooks := r.Group("/webhooks/twilio")
	hooks.Use(channels.RequireTwilioSignature(cfg.Twilio.AuthToken, cfg.Twilio.PublicBaseURL))
	{
		hooks.POST("/status", channels.StatusWebhookHandler{Updater: svc.History}.Handle)
		hooks.POST("/inbound", h.TwilioInbound)
	}

	if !cfg.IsProduction() {
		r.POST("/v1/auth/login", h.Login)
	}

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(am), rbac.RequireTenant())
	{
		v1.GET("/me", h.Me)
		v1.POST("/auth/refresh", h.Refresh)

		// Support may read; the hidden role is refused on writes.
		senders := rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RolePlanner, rbac.RoleService, rbac.RoleSupport)

		comms := v1.Group("/communications", senders)
		{
			comms.POST("", h.SendCommunication)
			comms.POST("/batch", h.SendBatch)
			comms.GET("", h.ListCommunications)
			comms.GET("/:id", h.GetCommunication)
		}

		v1.POST("/strategy/preview", senders, h.PreviewStrategy)

		prefs := v1.Group("/clients/:client_id/preferences", senders)
		{
			prefs.GET("", h.GetPreferences)
			prefs.PUT("", h.PutPreferences)
			prefs.POST("/opt-out", h.OptOut)
			prefs.POST("/opt-in", h.OptIn)
		}

		reports := v1.Group("/reports", rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RolePlanner, rbac.RoleSupport))
		{
			reports.GET("/delivery", h.DeliveryReport)
			reports.GET("/engagement", h.EngagementReport)
		}
	}
}
