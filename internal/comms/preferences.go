package comms

import "time"

// Preferences are the per-client delivery settings.
//
// QuietHoursStart/End are HH:MM in the client's timezone and may wrap midnight.
// Opt-outs are independent per channel and only change through OptOut/OptIn.
type Preferences struct {
	ClientID          string    `json:"client_id" db:"client_id"`
	PreferredChannels []Channel `json:"preferred_channels" db:"preferred_channels"`
	Timezone          string    `json:"timezone" db:"timezone"`
	QuietHoursStart   string    `json:"quiet_hours_start" db:"quiet_hours_start"`
	QuietHoursEnd     string    `json:"quiet_hours_end" db:"quiet_hours_end"`
	OptOutEmail       bool      `json:"opt_out_email" db:"opt_out_email"`
	OptOutSMS         bool      `json:"opt_out_sms" db:"opt_out_sms"`
	OptOutWhatsApp    bool      `json:"opt_out_whatsapp" db:"opt_out_whatsapp"`
	Language          string    `json:"language" db:"language"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultPreferences is used when a client has no stored preferences.
func DefaultPreferences(clientID string) Preferences {
	return Preferences{
		ClientID:          clientID,
		PreferredChannels: []Channel{ChannelEmail, ChannelWhatsApp},
		Timezone:          "UTC",
		QuietHoursStart:   "22:00",
		QuietHoursEnd:     "08:00",
		Language:          "en",
	}
}

func (p Preferences) IsOptedOut(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return p.OptOutEmail
	case ChannelSMS:
		return p.OptOutSMS
	case ChannelWhatsApp:
		return p.OptOutWhatsApp
	default:
		return false
	}
}

// AvailableChannels returns the preferred channels the client has not opted
// out of. If that is empty it returns every non-opted-out channel, and if the
// client opted out of everything it returns email. It never returns nil.
func (p Preferences) AvailableChannels() []Channel {
	out := make([]Channel, 0, 3)
	seen := map[Channel]bool{}
	for _, ch := range p.PreferredChannels {
		if !ch.Valid() || seen[ch] || p.IsOptedOut(ch) {
			continue
		}
		seen[ch] = true
		out = append(out, ch)
	}
	if len(out) > 0 {
		return out
	}
	for _, ch := range AllChannels() {
		if !p.IsOptedOut(ch) {
			out = append(out, ch)
		}
	}
	if len(out) > 0 {
		return out
	}
	return []Channel{ChannelEmail}
}

// OptOut returns a copy of p with ch opted out.
func (p Preferences) OptOut(ch Channel, now time.Time) Preferences {
	return p.setOptOut(ch, true, now)
}

// OptIn returns a copy of p with ch opted back in.
func (p Preferences) OptIn(ch Channel, now time.Time) Preferences {
	return p.setOptOut(ch, false, now)
}

func (p Preferences) setOptOut(ch Channel, v bool, now time.Time) Preferences {
	p.PreferredChannels = append([]Channel(nil), p.PreferredChannels...)
	switch ch {
	case ChannelEmail:
		p.OptOutEmail = v
	case ChannelSMS:
		p.OptOutSMS = v
	case ChannelWhatsApp:
		p.OptOutWhatsApp = v
	}
	p.UpdatedAt = now.UTC()
	return p
}
