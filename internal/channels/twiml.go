package channels

import (
	"bytes"
	"encoding/xml"
	"strings"
)

// Messaging TwiML for replies to inbound SMS/WhatsApp webhooks. Only the
// verbs we answer with are modelled.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlMessage struct {
	XMLName xml.Name `xml:"Message"`
	Body    string   `xml:",chardata"`
}

// RenderMessagingTwiML renders a <Response> that sends reply back to the
// sender. An empty reply yields an empty <Response/>, which Twilio treats
// as "no answer".
func RenderMessagingTwiML(reply string) (string, error) {
	var r twimlResponse
	if reply = strings.TrimSpace(reply); reply != "" {
		r.Verbs = append(r.Verbs, twimlMessage{Body: reply})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
