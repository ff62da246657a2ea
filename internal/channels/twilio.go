package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"comms-orchestrator/internal/comms"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

// TwilioConfig configures the Twilio Messages API client.
// AuthToken must not be logged.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string

	SMSFrom      string
	WhatsAppFrom string

	// StatusCallbackURL receives delivery receipts. The communication id is
	// appended as a query parameter so callbacks need no lookup.
	StatusCallbackURL string

	BaseURL string
	Timeout time.Duration
}

// TwilioClient posts messages to the Twilio REST API.
type TwilioClient struct {
	cfg  TwilioConfig
	http *http.Client
}

func NewTwilioClient(cfg TwilioConfig, httpClient *http.Client) (*TwilioClient, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("channels: twilio account sid and auth token required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTwilioBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &TwilioClient{cfg: cfg, http: httpClient}, nil
}

type twilioMessageResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *TwilioClient) sendMessage(ctx context.Context, from, to string, req SendRequest) (SendResponse, error) {
	form := url.Values{}
	form.Set("From", from)
	form.Set("To", to)
	form.Set("Body", req.Content)
	for _, a := range req.Attachments {
		if a.URL != "" {
			form.Add("MediaUrl", a.URL)
		}
	}
	if c.cfg.StatusCallbackURL != "" {
		form.Set("StatusCallback", statusCallback(c.cfg.StatusCallbackURL, req.CommunicationID))
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.AccountSID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return SendResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return SendResponse{}, fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return SendResponse{}, fmt.Errorf("twilio read response: %w", err)
	}
	var body twilioMessageResponse
	_ = json.Unmarshal(raw, &body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return SendResponse{Success: true, ProviderMessageID: body.SID}, nil
	}
	if resp.StatusCode >= 500 {
		return SendResponse{}, fmt.Errorf("twilio server error: status %d", resp.StatusCode)
	}

	code := strconv.Itoa(resp.StatusCode)
	if body.Code != 0 {
		code = strconv.Itoa(body.Code)
	}
	return SendResponse{
		Success:      false,
		ErrorMessage: twilioErrorMessage(resp.StatusCode, body.Message),
		ErrorCode:    code,
		HTTPStatus:   resp.StatusCode,
	}, nil
}

// twilioErrorMessage prefixes the HTTP class so keyword categorization still
// works when the provider message is terse.
func twilioErrorMessage(status int, msg string) string {
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch status {
	case http.StatusUnauthorized:
		return "unauthorized: " + msg
	case http.StatusForbidden:
		return "forbidden: " + msg
	case http.StatusTooManyRequests:
		return "too many requests: " + msg
	default:
		return msg
	}
}

func statusCallback(base, communicationID string) string {
	if communicationID == "" {
		return base
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("communication_id", communicationID)
	u.RawQuery = q.Encode()
	return u.String()
}

// TwilioSMSSender delivers SMS through the Messages API.
type TwilioSMSSender struct {
	client *TwilioClient
}

func NewTwilioSMSSender(client *TwilioClient) *TwilioSMSSender {
	return &TwilioSMSSender{client: client}
}

func (s *TwilioSMSSender) Channel() comms.Channel { return comms.ChannelSMS }

func (s *TwilioSMSSender) Send(ctx context.Context, req SendRequest) (SendResponse, error) {
	if req.Recipient == "" {
		return SendResponse{Success: false, ErrorMessage: "missing required recipient"}, nil
	}
	return s.client.sendMessage(ctx, s.client.cfg.SMSFrom, req.Recipient, req)
}

// TwilioWhatsAppSender delivers WhatsApp messages through the same API using
// whatsapp: prefixed addresses.
type TwilioWhatsAppSender struct {
	client *TwilioClient
}

func NewTwilioWhatsAppSender(client *TwilioClient) *TwilioWhatsAppSender {
	return &TwilioWhatsAppSender{client: client}
}

func (s *TwilioWhatsAppSender) Channel() comms.Channel { return comms.ChannelWhatsApp }

func (s *TwilioWhatsAppSender) Send(ctx context.Context, req SendRequest) (SendResponse, error) {
	if req.Recipient == "" {
		return SendResponse{Success: false, ErrorMessage: "missing required recipient"}, nil
	}
	return s.client.sendMessage(ctx, whatsappAddr(s.client.cfg.WhatsAppFrom), whatsappAddr(req.Recipient), req)
}

func whatsappAddr(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "whatsapp:") {
		return s
	}
	return "whatsapp:" + s
}
