package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"leadbridge/internal/auth"
	"leadbridge/internal/rbac"
	"leadbridge/internal/telephony"
	"leadbridge/pkg/logger"
)

// RouterDeps wires the HTTP surface together.
type RouterDeps struct {
	Log  *slog.Logger
	Auth *auth.Manager

	Handlers *Handlers
	Webhooks telephony.WebhookHandler

	// AgentStream upgrades telephony media-stream connections.
	AgentStream gin.HandlerFunc
}

// NewRouter builds the gin engine.
//
// Three trust zones:
//   - provider-facing routes (webhooks, TwiML, media stream) are
//     unauthenticated and must stay cheap;
//   - /v1 requires a bearer token; tokens are issued by the surrounding
//     identity service sharing the JWT secret;
//   - audit trails are admin-only.
func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(d.Log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/twiml/contact", d.Handlers.ContactTwiML)
	r.POST("/twiml/sales", d.Handlers.SalesTwiML)

	hooks := r.Group("/webhooks/voice")
	{
		hooks.POST("/status", d.Webhooks.HandleStatus)
		hooks.POST("/amd", d.Webhooks.HandleAMD)
		hooks.POST("/conference", d.Webhooks.HandleConference)
	}

	r.GET("/agent/stream", d.AgentStream)

	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(d.Auth))
	{
		v1.POST("/leads", rbac.RequireAnyRole(rbac.RoleOperator), d.Handlers.StartLead)
		v1.GET("/calls/:id", rbac.RequireAnyRole(rbac.RoleOperator), d.Handlers.GetCall)
		v1.GET("/leads/:id/snapshot", rbac.RequireAnyRole(rbac.RoleOperator), d.Handlers.GetSnapshot)
		v1.GET("/reports/summary", rbac.RequireAnyRole(rbac.RoleOperator), d.Handlers.OutcomeSummary)
		v1.GET("/leads/:id/audit", rbac.RequireAnyRole(), d.Handlers.LeadAuditTrail)
	}

	return r
}
