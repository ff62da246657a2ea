package channels

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"comms-orchestrator/internal/comms"

	"github.com/gin-gonic/gin"
	"gopkg.in/gomail.v2"
)

type fakeDialer struct {
	err   error
	block chan struct{}
	sent  []*gomail.Message
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if d.block != nil {
		<-d.block
	}
	d.sent = append(d.sent, m...)
	return d.err
}

func newTestSMTP(d *fakeDialer) *SMTPSender {
	return &SMTPSender{cfg: SMTPConfig{Host: "smtp.example.com", Port: 587, FromAddress: "plans@example.com", FromName: "Planner"}, dialer: d}
}

func TestSMTPSender_BuildsMessage(t *testing.T) {
	s := newTestSMTP(&fakeDialer{})
	msg, id := s.buildMessage(SendRequest{
		CommunicationID: "c1",
		Recipient:       "client@example.com",
		Subject:         "Hi",
		Content:         "<p>hello</p>",
		Attachments:     []comms.Attachment{{Name: "blueprint.pdf", URL: "https://x/b.pdf"}},
	})
	if id != "<c1@smtp.example.com>" {
		t.Fatalf("unexpected message id %q", id)
	}

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Subject: Hi", "X-Communication-Id: c1", "client@example.com", "b.pdf"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in message:\n%s", want, out)
		}
	}
}

func TestSMTPSender_RejectionIsProviderFailure(t *testing.T) {
	s := newTestSMTP(&fakeDialer{err: errors.New("550 5.1.1 invalid email address")})
	resp, err := s.Send(context.Background(), SendRequest{CommunicationID: "c1", Recipient: "nobody@example.com", Subject: "x", Content: "y"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if resp.Success || resp.ErrorCode != "550" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSMTPSender_GomailWrappedBounceIsRejection(t *testing.T) {
	bounce := errors.New("gomail: could not send email 1: 550 5.1.1 <nobody@example.com>: Recipient address rejected: User unknown")
	s := newTestSMTP(&fakeDialer{err: bounce})
	resp, err := s.Send(context.Background(), SendRequest{CommunicationID: "c1", Recipient: "nobody@example.com", Subject: "x", Content: "y"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if resp.Success || resp.ErrorCode != "550" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	s = newTestSMTP(&fakeDialer{err: fmt.Errorf("gomail: could not send email 1: %w", &textproto.Error{Code: 554, Msg: "5.7.1 rejected"})})
	resp, err = s.Send(context.Background(), SendRequest{Recipient: "a@example.com"})
	if err != nil || resp.ErrorCode != "554" {
		t.Fatalf("unexpected response: %+v %v", resp, err)
	}
}

func TestSMTPCode(t *testing.T) {
	cases := []struct{ msg, want string }{
		{msg: "550 5.1.1 invalid email address", want: "550"},
		{msg: "gomail: could not send email 2: 552 mailbox full", want: "552"},
		{msg: "gomail: could not send email 1: 421-4.7.0 try again later", want: "421"},
		{msg: "dial tcp 10.0.0.5:587: connect: connection refused", want: ""},
		{msg: "gomail: could not send email 1: EOF", want: ""},
	}
	for _, tc := range cases {
		if got := smtpCode(errors.New(tc.msg)); got != tc.want {
			t.Fatalf("smtpCode(%q) = %q, want %q", tc.msg, got, tc.want)
		}
	}
}

func TestSMTPSender_TransportErrorReturned(t *testing.T) {
	s := newTestSMTP(&fakeDialer{err: errors.New("dial tcp: connection refused")})
	if _, err := s.Send(context.Background(), SendRequest{Recipient: "a@example.com"}); err == nil {
		t.Fatalf("expected transport error")
	}
}

func TestSMTPSender_RespectsContext(t *testing.T) {
	d := &fakeDialer{block: make(chan struct{})}
	defer close(d.block)
	s := newTestSMTP(d)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Send(ctx, SendRequest{Recipient: "a@example.com"})
	if err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestTwilioSender_SendsFormAndParsesSid(t *testing.T) {
	var (
		mu   sync.Mutex
		form url.Values
		user string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		_ = r.ParseForm()
		form = r.PostForm
		user, _, _ = r.BasicAuth()
		if r.URL.Path != "/2010-04-01/Accounts/AC1/Messages.json" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer srv.Close()

	client, err := NewTwilioClient(TwilioConfig{AccountSID: "AC1", AuthToken: "tok", WhatsAppFrom: "+15550000000", StatusCallbackURL: "https://hooks.example.com/webhooks/twilio/status", BaseURL: srv.URL}, srv.Client())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	wa := NewTwilioWhatsAppSender(client)

	resp, err := wa.Send(context.Background(), SendRequest{CommunicationID: "c9", Recipient: "+15551234567", Content: "hello"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !resp.Success || resp.ProviderMessageID != "SM123" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	mu.Lock()
	defer mu.Unlock()
	if user != "AC1" {
		t.Fatalf("expected basic auth user AC1, got %q", user)
	}
	if form.Get("To") != "whatsapp:+15551234567" || form.Get("From") != "whatsapp:+15550000000" {
		t.Fatalf("unexpected addresses: %v", form)
	}
	if !strings.Contains(form.Get("StatusCallback"), "communication_id=c9") {
		t.Fatalf("expected callback with communication id, got %q", form.Get("StatusCallback"))
	}
}

func TestTwilioSender_MapsErrors(t *testing.T) {
	cases := []struct {
		status   int
		body     string
		wantCode string
		wantMsg  string
	}{
		{http.StatusUnauthorized, `{"code":20003,"message":"Authenticate"}`, "20003", "unauthorized"},
		{http.StatusTooManyRequests, `{"code":20429,"message":"Too Many Requests"}`, "20429", "too many requests"},
		{http.StatusBadRequest, `{"code":21211,"message":"Invalid 'To' Phone Number"}`, "21211", "Invalid 'To' Phone Number"},
		{http.StatusNotFound, `{"code":20404,"message":"The requested resource was not found"}`, "20404", "not found"},
		{http.StatusBadRequest, `{}`, "400", "Bad Request"},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		}))
		client, _ := NewTwilioClient(TwilioConfig{AccountSID: "AC1", AuthToken: "tok", BaseURL: srv.URL}, srv.Client())
		resp, err := NewTwilioSMSSender(client).Send(context.Background(), SendRequest{Recipient: "+1555", Content: "x"})
		srv.Close()
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if resp.Success || resp.ErrorCode != tc.wantCode || resp.HTTPStatus != tc.status || !strings.Contains(resp.ErrorMessage, tc.wantMsg) {
			t.Fatalf("status %d: unexpected response %+v", tc.status, resp)
		}
	}
}

func TestTwilioSender_ServerErrorIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	client, _ := NewTwilioClient(TwilioConfig{AccountSID: "AC1", AuthToken: "tok", BaseURL: srv.URL}, srv.Client())
	if _, err := NewTwilioSMSSender(client).Send(context.Background(), SendRequest{Recipient: "+1555"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewLogSender(comms.ChannelSMS, nil), nil)
	if _, err := r.Get(comms.ChannelSMS); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if _, err := r.Get(comms.ChannelEmail); !errors.Is(err, ErrNoSender) {
		t.Fatalf("expected ErrNoSender, got %v", err)
	}
}

type memUpdater struct {
	id string
	u  comms.StatusUpdate
}

func (m *memUpdater) UpdateStatus(ctx context.Context, id string, u comms.StatusUpdate) (bool, error) {
	m.id, m.u = id, u
	return id == "c1", nil
}

func TestStatusWebhook_RecordsDelivery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	up := &memUpdater{}
	h := StatusWebhookHandler{Updater: up, Now: func() time.Time { return time.Unix(1700000000, 0).UTC() }}

	r := gin.New()
	r.POST("/webhooks/twilio/status", h.Handle)

	body := strings.NewReader("MessageSid=SM1&MessageStatus=delivered")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/status?communication_id=c1", body)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if up.id != "c1" || up.u.Status != comms.StatusDelivered {
		t.Fatalf("unexpected update: %s %+v", up.id, up.u)
	}

	body = strings.NewReader("MessageSid=SM2&MessageStatus=failed&ErrorCode=30003")
	req = httptest.NewRequest(http.MethodPost, "/webhooks/twilio/status?communication_id=missing", body)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestValidateTwilioSignature(t *testing.T) {
	params := map[string][]string{
		"MessageSid":    {"SM1"},
		"MessageStatus": {"delivered"},
		"AccountSid":    {"AC1"},
	}
	const u = "https://hooks.example.com/webhooks/twilio/status?communication_id=c1"

	mac := hmac.New(sha1.New, []byte("12345"))
	mac.Write([]byte(u + "AccountSidAC1" + "MessageSidSM1" + "MessageStatusdelivered"))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !ValidateTwilioSignature("12345", u, params, sig) {
		t.Fatalf("expected valid signature")
	}
	params["MessageStatus"] = []string{"failed"}
	if ValidateTwilioSignature("12345", u, params, sig) {
		t.Fatalf("expected tampered params to fail")
	}
	if ValidateTwilioSignature("", u, params, sig) {
		t.Fatalf("expected empty token to fail")
	}
}

func TestParseTwilioInbound_StripsWhatsAppPrefix(t *testing.T) {
	body := strings.NewReader("MessageSid=SM1&From=whatsapp%3A%2B15551234567&To=%2B15550000000&Body=YES")
	r := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/inbound", body)
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	f, err := ParseTwilioInbound(r)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if f.From != "+15551234567" || f.Body != "YES" {
		t.Fatalf("unexpected form: %+v", f)
	}
}
