package strategy

import (
	"strconv"
	"strings"
	"time"

	"comms-orchestrator/internal/comms"
)

// CalculateOptimalSendTime returns when a message should go out, in UTC.
//
// Critical messages ignore quiet hours and go immediately. Everything else is
// pushed past the client's quiet hours, then shaped by urgency: high waits a
// short delay, normal waits for business hours, low waits for the next morning.
func (t *Tool) CalculateOptimalSendTime(urgency comms.Urgency, prefs comms.Preferences, now time.Time) time.Time {
	if urgency == comms.UrgencyCritical {
		return now
	}

	loc := t.location(prefs.Timezone)
	local := now.In(loc)
	tod := clockOf(local)

	qStart := t.parseClock(prefs.QuietHoursStart)
	qEnd := t.parseClock(prefs.QuietHoursEnd)
	if inWindow(tod, qStart, qEnd) {
		end := atClock(local, qEnd, 0)
		if end.Before(local) {
			end = atClock(local, qEnd, 1)
		}
		return end.UTC()
	}

	bStart := t.parseClock(t.cfg.BusinessStart)
	bEnd := t.parseClock(t.cfg.BusinessEnd)

	switch urgency {
	case comms.UrgencyHigh:
		return now.Add(t.cfg.HighUrgencyDelay).UTC()
	case comms.UrgencyNormal:
		if tod >= bStart && tod <= bEnd {
			return now.UTC()
		}
		next := atClock(local, bStart, 0)
		if !next.After(local) {
			next = atClock(local, bStart, 1)
		}
		return next.UTC()
	case comms.UrgencyLow:
		next := atClock(local, bStart, 0)
		if !next.After(local) {
			next = atClock(local, bStart, 1)
		}
		return next.UTC()
	default:
		return now.UTC()
	}
}

// IsQuietHours reports whether now falls inside the client's quiet window.
func (t *Tool) IsQuietHours(prefs comms.Preferences, now time.Time) bool {
	local := now.In(t.location(prefs.Timezone))
	return inWindow(clockOf(local), t.parseClock(prefs.QuietHoursStart), t.parseClock(prefs.QuietHoursEnd))
}

func (t *Tool) location(tz string) *time.Location {
	if strings.TrimSpace(tz) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		t.log.Warn("invalid timezone, using UTC", "timezone", tz, "err", err)
		return time.UTC
	}
	return loc
}

// parseClock parses HH:MM into an offset from midnight. Invalid input is
// treated as midnight.
func (t *Tool) parseClock(s string) time.Duration {
	d, ok := ParseClock(s)
	if !ok {
		t.log.Warn("invalid HH:MM, using 00:00", "value", s)
	}
	return d
}

// ParseClock parses "HH:MM" (24h). The second return is false for malformed
// input, in which case the duration is zero.
func ParseClock(s string) (time.Duration, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, true
}

// inWindow is inclusive on both ends. A window with start >= end wraps midnight.
func inWindow(tod, start, end time.Duration) bool {
	if start < end {
		return tod >= start && tod <= end
	}
	return tod >= start || tod <= end
}

func clockOf(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}

// atClock returns the wall-clock time tod on local's date plus dayOffset days,
// in local's location.
func atClock(local time.Time, tod time.Duration, dayOffset int) time.Time {
	y, mo, d := local.Date()
	h := int(tod / time.Hour)
	m := int((tod % time.Hour) / time.Minute)
	return time.Date(y, mo, d+dayOffset, h, m, 0, 0, local.Location())
}
