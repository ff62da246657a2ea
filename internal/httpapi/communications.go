package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"comms-orchestrator/internal/comms"
	"comms-orchestrator/internal/history"
	"comms-orchestrator/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	defaultMaxBatchSize = 100
	defaultSendTimeout  = 30 * time.Minute
)

// sendContext is detached from the client connection so a disconnect cannot
// stop a send between retries. SendTimeout bounds it instead.
func (h Handlers) sendContext(c *gin.Context) (context.Context, context.CancelFunc) {
	d := h.SendTimeout
	if d <= 0 {
		d = defaultSendTimeout
	}
	return context.WithTimeout(context.WithoutCancel(c.Request.Context()), d)
}

// communicationRequest is the wire form of comms.Request. Payload is decoded
// against MessageType.
type communicationRequest struct {
	PlanID           string             `json:"plan_id"`
	ClientID         string             `json:"client_id"`
	MessageType      comms.MessageType  `json:"message_type"`
	Urgency          comms.Urgency      `json:"urgency"`
	Context          map[string]string  `json:"context"`
	Payload          json.RawMessage    `json:"payload"`
	PreferredChannel string             `json:"preferred_channel"`
	Preferences      *comms.Preferences `json:"preferences"`
}

func (r communicationRequest) toRequest(now time.Time) (comms.Request, error) {
	payload, err := comms.DecodePayload(r.MessageType, r.Payload)
	if err != nil {
		return comms.Request{}, err
	}
	req, err := comms.NewRequest(r.PlanID, r.ClientID, r.MessageType, r.Urgency, r.Context, payload, now)
	if err != nil {
		return comms.Request{}, err
	}
	if r.PreferredChannel != "" {
		ch, err := comms.ParseChannel(r.PreferredChannel)
		if err != nil {
			return comms.Request{}, fmt.Errorf("%w: %v", comms.ErrInvalidRequest, err)
		}
		req = req.WithPreferredChannel(ch)
	}
	return req, nil
}

func (r communicationRequest) preferences() (*comms.Preferences, error) {
	if r.Preferences == nil {
		return nil, nil
	}
	p := *r.Preferences
	p.ClientID = r.ClientID
	if err := validatePreferences(p); err != nil {
		return nil, err
	}
	return &p, nil
}

func resultStatus(res comms.Result) int {
	if res.Status == comms.StatusQueued {
		return http.StatusAccepted
	}
	return http.StatusOK
}

// SendCommunication runs one request through the orchestrator. Delivery
// failures are reported in the result body, not as HTTP errors.
func (h Handlers) SendCommunication(c *gin.Context) {
	if h.Orchestrator == nil {
		abortNotConfigured(c, "orchestrator")
		return
	}
	var body communicationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abortBadRequest(c, "invalid json")
		return
	}
	req, err := body.toRequest(h.now())
	if err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	prefs, err := body.preferences()
	if err != nil {
		abortBadRequest(c, err.Error())
		return
	}

	ctx, cancel := h.sendContext(c)
	defer cancel()
	res := h.Orchestrator.ProcessRequest(ctx, req, prefs)
	logger.FromGin(c).Info("communication processed",
		"communication_id", res.CommunicationID, "client_id", req.ClientID, "status", res.Status, "channel", res.Channel)
	c.JSON(resultStatus(res), res)
}

type batchRequest struct {
	Requests []communicationRequest `json:"requests"`
}

// SendBatch processes independent requests concurrently. Results keep input
// order. One invalid request rejects the whole batch before anything is
// sent.
func (h Handlers) SendBatch(c *gin.Context) {
	if h.Orchestrator == nil {
		abortNotConfigured(c, "orchestrator")
		return
	}
	var body batchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abortBadRequest(c, "invalid json")
		return
	}
	maxSize := h.MaxBatchSize
	if maxSize <= 0 {
		maxSize = defaultMaxBatchSize
	}
	if len(body.Requests) == 0 || len(body.Requests) > maxSize {
		abortBadRequest(c, fmt.Sprintf("requests must contain 1 to %d items", maxSize))
		return
	}

	now := h.now()
	reqs := make([]comms.Request, 0, len(body.Requests))
	for i, r := range body.Requests {
		req, err := r.toRequest(now)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "index": i})
			return
		}
		reqs = append(reqs, req)
	}

	ctx, cancel := h.sendContext(c)
	defer cancel()
	results := h.Orchestrator.ProcessBatch(ctx, reqs, h.BatchLimit)
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// PreviewStrategy returns the delivery plan for a request without sending.
func (h Handlers) PreviewStrategy(c *gin.Context) {
	if h.Orchestrator == nil {
		abortNotConfigured(c, "orchestrator")
		return
	}
	var body communicationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abortBadRequest(c, "invalid json")
		return
	}
	req, err := body.toRequest(h.now())
	if err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	prefs, err := body.preferences()
	if err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, h.Orchestrator.Plan(c.Request.Context(), req, prefs))
}

func (h Handlers) GetCommunication(c *gin.Context) {
	if h.History == nil {
		abortNotConfigured(c, "history")
		return
	}
	rec, err := h.History.GetCommunication(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "communication not found"})
			return
		}
		logger.FromGin(c).Error("get communication failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ListCommunications lists history for a client or plan in creation order.
func (h Handlers) ListCommunications(c *gin.Context) {
	if h.History == nil {
		abortNotConfigured(c, "history")
		return
	}
	f := history.Filter{ClientID: c.Query("client_id"), PlanID: c.Query("plan_id")}
	if f.ClientID == "" && f.PlanID == "" {
		abortBadRequest(c, "client_id or plan_id required")
		return
	}
	r, ok := h.parseRange(c)
	if !ok {
		return
	}
	f.From, f.To = r.From, r.To
	if f.Limit, ok = parseLimit(c, 100, 1000); !ok {
		return
	}

	recs, err := h.History.ListCommunications(c.Request.Context(), f)
	if err != nil {
		logger.FromGin(c).Error("list communications failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	if recs == nil {
		recs = []comms.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"communications": recs})
}
