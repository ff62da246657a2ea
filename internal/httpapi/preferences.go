package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"comms-orchestrator/internal/comms"
	"comms-orchestrator/internal/strategy"
	"comms-orchestrator/pkg/logger"

	"github.com/gin-gonic/gin"
)

func validatePreferences(p comms.Preferences) error {
	if p.ClientID == "" {
		return fmt.Errorf("%w: client_id required", comms.ErrInvalidRequest)
	}
	for _, ch := range p.PreferredChannels {
		if !ch.Valid() {
			return fmt.Errorf("%w: unknown channel %q", comms.ErrInvalidRequest, ch)
		}
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", comms.ErrInvalidRequest, p.Timezone)
		}
	}
	for _, s := range []string{p.QuietHoursStart, p.QuietHoursEnd} {
		if s == "" {
			continue
		}
		if _, ok := strategy.ParseClock(s); !ok {
			return fmt.Errorf("%w: quiet hours must be HH:MM, got %q", comms.ErrInvalidRequest, s)
		}
	}
	return nil
}

// currentPreferences returns the stored preferences or the defaults.
func (h Handlers) currentPreferences(c *gin.Context, clientID string) (comms.Preferences, bool) {
	p, err := h.prefs().GetClientPreferences(c.Request.Context(), clientID)
	if err != nil {
		logger.FromGin(c).Error("preferences lookup failed", "client_id", clientID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "preferences lookup failed"})
		return comms.Preferences{}, false
	}
	if p == nil {
		return comms.DefaultPreferences(clientID), true
	}
	return *p, true
}

func (h Handlers) GetPreferences(c *gin.Context) {
	if h.prefs() == nil {
		abortNotConfigured(c, "preferences")
		return
	}
	p, ok := h.currentPreferences(c, c.Param("client_id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, p)
}

// PutPreferences replaces a client's preferences. Blank fields take the
// defaults.
func (h Handlers) PutPreferences(c *gin.Context) {
	if h.prefs() == nil {
		abortNotConfigured(c, "preferences")
		return
	}
	var p comms.Preferences
	if err := c.ShouldBindJSON(&p); err != nil {
		abortBadRequest(c, "invalid json")
		return
	}
	p.ClientID = c.Param("client_id")
	def := comms.DefaultPreferences(p.ClientID)
	if len(p.PreferredChannels) == 0 {
		p.PreferredChannels = def.PreferredChannels
	}
	if p.Timezone == "" {
		p.Timezone = def.Timezone
	}
	if p.QuietHoursStart == "" && p.QuietHoursEnd == "" {
		p.QuietHoursStart, p.QuietHoursEnd = def.QuietHoursStart, def.QuietHoursEnd
	}
	if p.Language == "" {
		p.Language = def.Language
	}
	if err := validatePreferences(p); err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	p.UpdatedAt = h.now()
	h.savePreferences(c, p)
}

type channelRequest struct {
	Channel string `json:"channel"`
}

func (h Handlers) OptOut(c *gin.Context) { h.setOptOut(c, true) }

func (h Handlers) OptIn(c *gin.Context) { h.setOptOut(c, false) }

func (h Handlers) setOptOut(c *gin.Context, out bool) {
	if h.prefs() == nil {
		abortNotConfigured(c, "preferences")
		return
	}
	var body channelRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abortBadRequest(c, "invalid json")
		return
	}
	ch, err := comms.ParseChannel(body.Channel)
	if err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	p, ok := h.currentPreferences(c, c.Param("client_id"))
	if !ok {
		return
	}
	if out {
		p = p.OptOut(ch, h.now())
	} else {
		p = p.OptIn(ch, h.now())
	}
	logger.FromGin(c).Info("channel opt-out changed", "client_id", p.ClientID, "channel", ch, "opted_out", out)
	h.savePreferences(c, p)
}

func (h Handlers) savePreferences(c *gin.Context, p comms.Preferences) {
	created, err := h.prefs().SaveClientPreferences(c.Request.Context(), p)
	if err != nil {
		logger.FromGin(c).Error("preferences save failed", "client_id", p.ClientID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "preferences save failed"})
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, p)
}
