package channels

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"sort"
	"strings"
	"time"

	"comms-orchestrator/internal/comms"
	"comms-orchestrator/pkg/logger"

	"github.com/gin-gonic/gin"
)

// TwilioStatusForm is the subset of the message status callback we use.
// Twilio posts application/x-www-form-urlencoded.
type TwilioStatusForm struct {
	CommunicationID string
	MessageSid      string
	MessageStatus   string
	ErrorCode       string
	To              string
}

func ParseTwilioStatus(r *http.Request) (TwilioStatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioStatusForm{}, err
	}
	return TwilioStatusForm{
		CommunicationID: r.URL.Query().Get("communication_id"),
		MessageSid:      r.PostFormValue("MessageSid"),
		MessageStatus:   strings.ToLower(strings.TrimSpace(r.PostFormValue("MessageStatus"))),
		ErrorCode:       r.PostFormValue("ErrorCode"),
		To:              strings.TrimSpace(r.PostFormValue("To")),
	}, nil
}

// TwilioInboundForm is an inbound SMS/WhatsApp reply.
type TwilioInboundForm struct {
	MessageSid string
	From       string
	To         string
	Body       string
}

func ParseTwilioInbound(r *http.Request) (TwilioInboundForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioInboundForm{}, err
	}
	return TwilioInboundForm{
		MessageSid: r.PostFormValue("MessageSid"),
		From:       strings.TrimPrefix(strings.TrimSpace(r.PostFormValue("From")), "whatsapp:"),
		To:         strings.TrimPrefix(strings.TrimSpace(r.PostFormValue("To")), "whatsapp:"),
		Body:       r.PostFormValue("Body"),
	}, nil
}

// MapTwilioStatus translates a Twilio message status into a delivery status.
// The second return is false for statuses we do not record.
func MapTwilioStatus(s string) (comms.Status, bool) {
	switch s {
	case "queued", "accepted", "scheduled":
		return comms.StatusQueued, true
	case "sending", "sent":
		return comms.StatusSent, true
	case "delivered":
		return comms.StatusDelivered, true
	case "read":
		return comms.StatusOpened, true
	case "undelivered", "failed", "canceled":
		return comms.StatusFailed, true
	default:
		return "", false
	}
}

// ValidateTwilioSignature checks X-Twilio-Signature: base64(HMAC-SHA1(token,
// url + sorted key/value pairs)).
func ValidateTwilioSignature(authToken, fullURL string, params map[string][]string, signature string) bool {
	if authToken == "" || signature == "" {
		return false
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		for _, v := range params[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// RequireTwilioSignature rejects webhook calls without a valid signature.
// publicBaseURL is the externally visible scheme+host Twilio calls.
// An empty authToken disables the check (local environments).
func RequireTwilioSignature(authToken, publicBaseURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authToken == "" {
			c.Next()
			return
		}
		if err := c.Request.ParseForm(); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
			return
		}
		full := strings.TrimRight(publicBaseURL, "/") + c.Request.URL.RequestURI()
		if !ValidateTwilioSignature(authToken, full, c.Request.PostForm, c.GetHeader("X-Twilio-Signature")) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}
		c.Next()
	}
}

// StatusUpdater records a status transition for a communication.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, communicationID string, u comms.StatusUpdate) (bool, error)
}

// StatusWebhookHandler converts Twilio delivery receipts into status
// transitions. No business logic here.
type StatusWebhookHandler struct {
	Updater StatusUpdater
	Now     func() time.Time
}

func (h StatusWebhookHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)
	if h.Now == nil {
		h.Now = time.Now
	}
	if h.Updater == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "status updater not configured"})
		return
	}

	form, err := ParseTwilioStatus(c.Request)
	if err != nil {
		log.Warn("twilio status parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	if form.CommunicationID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "communication_id required"})
		return
	}
	status, ok := MapTwilioStatus(form.MessageStatus)
	if !ok {
		// Intermediate statuses are acknowledged so Twilio stops retrying.
		c.Status(http.StatusNoContent)
		return
	}

	u := comms.StatusUpdate{
		Status:   status,
		At:       h.Now().UTC(),
		Metadata: map[string]string{comms.MetaProviderMessageID: form.MessageSid},
	}
	if status == comms.StatusFailed && form.ErrorCode != "" {
		u.Error = "provider error " + form.ErrorCode
		u.Metadata[comms.MetaProviderErrorCode] = form.ErrorCode
	}

	found, err := h.Updater.UpdateStatus(c.Request.Context(), form.CommunicationID, u)
	if err != nil {
		log.Error("status update failed", "communication_id", form.CommunicationID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if !found {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown communication"})
		return
	}
	c.Status(http.StatusNoContent)
}
