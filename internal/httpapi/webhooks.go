package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"comms-orchestrator/internal/channels"
	"comms-orchestrator/internal/comms"
	"comms-orchestrator/internal/history"
	"comms-orchestrator/internal/orchestrator"
	"comms-orchestrator/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Replies sent back on the same thread, keyed by action. Actions without
// an entry get no reply.
var inboundReplies = map[orchestrator.Action]string{
	orchestrator.ActionHelp:   "Reply YES to confirm, NO to cancel, or the number of the option you want.",
	orchestrator.ActionReview: "Thanks, your planner will get back to you shortly.",
}

// TwilioInbound handles an SMS/WhatsApp reply: it finds the communication
// last sent to the sender, classifies the reply and records it on that
// communication. It always answers with TwiML so Twilio does not retry.
func (h Handlers) TwilioInbound(c *gin.Context) {
	log := logger.FromGin(c)
	if h.History == nil || h.Orchestrator == nil {
		abortNotConfigured(c, "inbound handling")
		return
	}
	form, err := channels.ParseTwilioInbound(c.Request)
	if err != nil {
		log.Warn("twilio inbound parse failed", "err", err)
		abortBadRequest(c, "invalid form")
		return
	}
	if form.From == "" {
		abortBadRequest(c, "From required")
		return
	}

	ctx := c.Request.Context()
	rec, err := h.History.FindLatestByRecipient(ctx, form.From)
	if err != nil {
		if !errors.Is(err, history.ErrNotFound) {
			log.Error("inbound lookup failed", "message_sid", form.MessageSid, "err", err)
		} else {
			log.Info("inbound reply from unknown sender", "message_sid", form.MessageSid)
		}
		writeTwiML(c, "")
		return
	}

	parsed := orchestrator.ParseIntent(form.Body)
	action := h.Orchestrator.HandleClientResponse(ctx, rec.PlanID, rec.ClientID, parsed)

	md := map[string]string{
		comms.MetaClientReply: form.Body,
		comms.MetaReplyIntent: string(parsed.Intent),
		comms.MetaReplyAction: string(action),
	}
	if parsed.Selection > 0 {
		md[comms.MetaReplySelection] = strconv.Itoa(parsed.Selection)
	}
	if _, err := h.History.UpdateStatus(ctx, rec.ID, comms.StatusUpdate{Metadata: md, At: h.now()}); err != nil {
		log.Error("recording client reply failed", "communication_id", rec.ID, "err", err)
	}
	writeTwiML(c, inboundReplies[action])
}

func writeTwiML(c *gin.Context, reply string) {
	body, err := channels.RenderMessagingTwiML(reply)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml render failed"})
		return
	}
	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(body))
}
