package httpapi

import (
	"errors"
	"net/http"

	"comms-orchestrator/internal/comms"
	"comms-orchestrator/internal/reporting"
	"comms-orchestrator/pkg/logger"

	"github.com/gin-gonic/gin"
)

func (h Handlers) reportError(c *gin.Context, err error) {
	if errors.Is(err, reporting.ErrInvalidRequest) {
		abortBadRequest(c, "client_id or plan_id and a valid range required")
		return
	}
	logger.FromGin(c).Error("report failed", "err", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
}

// DeliveryReport: GET /v1/reports/delivery?client_id=&plan_id=&from=&to=
func (h Handlers) DeliveryReport(c *gin.Context) {
	if h.Reports == nil {
		abortNotConfigured(c, "reporting")
		return
	}
	r, ok := h.parseRange(c)
	if !ok {
		return
	}
	out, err := h.Reports.DeliverySummary(c.Request.Context(), reporting.DeliverySummaryRequest{
		ClientID: c.Query("client_id"),
		PlanID:   c.Query("plan_id"),
		Range:    r,
	})
	if err != nil {
		h.reportError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// EngagementReport: GET /v1/reports/engagement?client_id=&plan_id=&channel=
func (h Handlers) EngagementReport(c *gin.Context) {
	if h.Reports == nil {
		abortNotConfigured(c, "reporting")
		return
	}
	r, ok := h.parseRange(c)
	if !ok {
		return
	}
	req := reporting.EngagementRequest{ClientID: c.Query("client_id"), PlanID: c.Query("plan_id"), Range: r}
	if raw := c.Query("channel"); raw != "" {
		ch, err := comms.ParseChannel(raw)
		if err != nil {
			abortBadRequest(c, err.Error())
			return
		}
		req.Channel = ch
	}
	out, err := h.Reports.EngagementMetrics(c.Request.Context(), req)
	if err != nil {
		h.reportError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
