package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"comms-orchestrator/internal/auth"
	"comms-orchestrator/internal/history"
	"comms-orchestrator/internal/orchestrator"
	"comms-orchestrator/internal/rbac"
	"comms-orchestrator/internal/reporting"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth         *auth.Manager
	Orchestrator *orchestrator.Orchestrator
	History      history.Repository
	Prefs        history.PreferencesStore
	Reports      *reporting.Service

	// BatchLimit caps concurrent requests inside one batch call.
	BatchLimit int
	// MaxBatchSize caps requests per batch call.
	MaxBatchSize int
	// SendTimeout bounds a synchronous send or batch.
	SendTimeout time.Duration

	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func (h Handlers) prefs() history.PreferencesStore {
	if h.Prefs != nil {
		return h.Prefs
	}
	return h.History
}

func abortBadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

func abortNotConfigured(c *gin.Context, what string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": what + " not configured"})
}

// --- Auth ---

type loginRequest struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a development-only endpoint; it is not routed in production.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		abortNotConfigured(c, "auth")
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, "invalid json")
		return
	}
	if req.UserID == "" || req.TenantID == "" || req.Role == "" {
		abortBadRequest(c, "user_id, tenant_id, role required")
		return
	}
	if !rbac.IsKnownRole(req.Role) {
		abortBadRequest(c, "unknown role")
		return
	}
	pair, err := h.Auth.IssuePair(h.now(), req.UserID, req.TenantID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges the caller's refresh token for a new pair. The caller
// must still hold a valid access token; its role carries over.
func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil {
		abortNotConfigured(c, "auth")
		return
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil || userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	role, _ := auth.Role(c.Request.Context())

	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		abortBadRequest(c, "refresh_token required")
		return
	}
	pair, err := h.Auth.Refresh(h.now(), req.RefreshToken, userID, role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

// Me echoes the identity attached by the auth middleware.
func (h Handlers) Me(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	tid, _ := auth.TenantID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"user_id": uid, "tenant_id": tid, "role": role})
}

// --- query helpers ---

// parseRange reads from/to (RFC 3339) or days from the query string.
// Without either it defaults to the last 30 days.
func (h Handlers) parseRange(c *gin.Context) (reporting.TimeRange, bool) {
	from, to := strings.TrimSpace(c.Query("from")), strings.TrimSpace(c.Query("to"))
	if from == "" && to == "" {
		days := 30
		if raw := c.Query("days"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > 366 {
				abortBadRequest(c, "days must be between 1 and 366")
				return reporting.TimeRange{}, false
			}
			days = n
		}
		return reporting.LastDays(h.now(), days), true
	}

	var r reporting.TimeRange
	var err error
	if r.From, err = time.Parse(time.RFC3339, from); err != nil {
		abortBadRequest(c, "from must be RFC 3339")
		return reporting.TimeRange{}, false
	}
	if to == "" {
		r.To = h.now()
	} else if r.To, err = time.Parse(time.RFC3339, to); err != nil {
		abortBadRequest(c, "to must be RFC 3339")
		return reporting.TimeRange{}, false
	}
	return r, true
}

func parseLimit(c *gin.Context, def, max int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > max {
		abortBadRequest(c, "limit must be between 1 and "+strconv.Itoa(max))
		return 0, false
	}
	return n, true
}
