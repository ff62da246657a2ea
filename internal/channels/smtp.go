package channels

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"regexp"
	"strconv"
	"strings"

	"comms-orchestrator/internal/comms"

	"gopkg.in/gomail.v2"
)

// SMTPConfig configures the email sender. Credentials must not be logged.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string

	FromAddress string
	FromName    string
}

type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender delivers email through an SMTP relay.
type SMTPSender struct {
	cfg    SMTPConfig
	dialer mailDialer
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, errors.New("channels: smtp host and port required")
	}
	if cfg.FromAddress == "" {
		return nil, errors.New("channels: smtp from address required")
	}
	return &SMTPSender{cfg: cfg, dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)}, nil
}

func (s *SMTPSender) Channel() comms.Channel { return comms.ChannelEmail }

// Send dials the relay for each message. gomail has no context support, so
// the dial runs in a goroutine and ctx only bounds how long we wait for it.
func (s *SMTPSender) Send(ctx context.Context, req SendRequest) (SendResponse, error) {
	if req.Recipient == "" {
		return SendResponse{Success: false, ErrorMessage: "missing required recipient"}, nil
	}
	msg, messageID := s.buildMessage(req)

	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(msg) }()

	select {
	case <-ctx.Done():
		return SendResponse{}, fmt.Errorf("smtp send timeout: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			if isSMTPRejection(err) {
				return SendResponse{Success: false, ErrorMessage: err.Error(), ErrorCode: smtpCode(err)}, nil
			}
			return SendResponse{}, fmt.Errorf("smtp send failed: %w", err)
		}
	}
	return SendResponse{Success: true, ProviderMessageID: messageID}, nil
}

func (s *SMTPSender) buildMessage(req SendRequest) (*gomail.Message, string) {
	msg := gomail.NewMessage()
	if s.cfg.FromName != "" {
		msg.SetAddressHeader("From", s.cfg.FromAddress, s.cfg.FromName)
	} else {
		msg.SetHeader("From", s.cfg.FromAddress)
	}
	msg.SetHeader("To", req.Recipient)
	msg.SetHeader("Subject", req.Subject)
	messageID := ""
	if req.CommunicationID != "" {
		messageID = fmt.Sprintf("<%s@%s>", req.CommunicationID, s.cfg.Host)
		msg.SetHeader("Message-ID", messageID)
		msg.SetHeader("X-Communication-Id", req.CommunicationID)
	}

	body := req.Content
	var links []string
	for _, a := range req.Attachments {
		if len(a.Data) > 0 {
			data := a.Data
			msg.Attach(a.Name, gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}))
			continue
		}
		if a.URL != "" {
			links = append(links, fmt.Sprintf(`<li><a href="%s">%s</a></li>`, a.URL, a.Name))
		}
	}
	if len(links) > 0 {
		body += "<ul>" + strings.Join(links, "") + "</ul>"
	}
	msg.SetBody("text/html", body)
	return msg, messageID
}

// 5xx replies are final rejections from the relay (mailbox unknown, policy).
func isSMTPRejection(err error) bool {
	c := smtpCode(err)
	return strings.HasPrefix(c, "5")
}

// gomail reports RCPT and DATA failures as
// "gomail: could not send email 1: 550 5.1.1 ...", formatting the reply
// with %v, so the textproto.Error is only reachable when unwrapped.
var smtpReplyCode = regexp.MustCompile(`(?:^|: )([2-5][0-9]{2})(?:[ -]|$)`)

func smtpCode(err error) string {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return strconv.Itoa(tpErr.Code)
	}
	if m := smtpReplyCode.FindStringSubmatch(strings.TrimSpace(err.Error())); m != nil {
		return m[1]
	}
	return ""
}
