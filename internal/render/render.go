package render

import (
	"bytes"
	"embed"
	"fmt"
	htmltmpl "html/template"
	"strings"
	texttmpl "text/template"

	"comms-orchestrator/internal/comms"
)

//go:embed templates
var templateFS embed.FS

// Content is a message rendered for one channel.
type Content struct {
	Subject     string
	Body        string
	Attachments []comms.Attachment
}

var subjects = map[comms.MessageType]string{
	comms.MessageWelcome:               "Welcome to your event planning",
	comms.MessageBudgetSummary:         "Your budget summary",
	comms.MessageVendorOptions:         "Vendor options for your event",
	comms.MessageSelectionConfirmation: "Please confirm your selection",
	comms.MessageBlueprintDelivery:     "Your event blueprint is ready",
	comms.MessageErrorNotification:     "Action needed on your event plan",
	comms.MessageReminder:              "Reminder",
}

// Renderer produces per-channel content from a request. Templates are parsed
// once at construction; Render is safe for concurrent use.
type Renderer struct {
	email map[comms.MessageType]*htmltmpl.Template
	text  map[comms.MessageType]*texttmpl.Template
}

func New() (*Renderer, error) {
	base, err := htmltmpl.New("base").Option("missingkey=zero").ParseFS(templateFS, "templates/email/base.html")
	if err != nil {
		return nil, fmt.Errorf("render: parse email base: %w", err)
	}

	r := &Renderer{
		email: map[comms.MessageType]*htmltmpl.Template{},
		text:  map[comms.MessageType]*texttmpl.Template{},
	}
	for mt := range subjects {
		clone, err := base.Clone()
		if err != nil {
			return nil, err
		}
		et, err := clone.ParseFS(templateFS, "templates/email/"+string(mt)+".html")
		if err != nil {
			return nil, fmt.Errorf("render: parse email %s: %w", mt, err)
		}
		r.email[mt] = et

		name := string(mt) + ".txt"
		tt, err := texttmpl.New(name).Option("missingkey=zero").ParseFS(templateFS, "templates/sms/"+name)
		if err != nil {
			return nil, fmt.Errorf("render: parse text %s: %w", mt, err)
		}
		r.text[mt] = tt
	}
	return r, nil
}

// Render builds the content for req on ch. Email gets HTML and a subject;
// SMS and WhatsApp get plain text.
func (r *Renderer) Render(ch comms.Channel, req comms.Request) (Content, error) {
	data := req.RenderData()
	out := Content{Attachments: attachmentsFor(req, data)}

	switch ch {
	case comms.ChannelEmail:
		out.Subject = subjectFor(req.MessageType, data)
		t, ok := r.email[req.MessageType]
		if !ok {
			return Content{}, fmt.Errorf("render: no email template for %q", req.MessageType)
		}
		var buf bytes.Buffer
		if err := t.ExecuteTemplate(&buf, "base", data); err != nil {
			return Content{}, fmt.Errorf("render: execute email template: %w", err)
		}
		out.Body = buf.String()
	case comms.ChannelSMS, comms.ChannelWhatsApp:
		t, ok := r.text[req.MessageType]
		if !ok {
			return Content{}, fmt.Errorf("render: no text template for %q", req.MessageType)
		}
		var buf bytes.Buffer
		if err := t.Execute(&buf, data); err != nil {
			return Content{}, fmt.Errorf("render: execute text template: %w", err)
		}
		out.Body = strings.TrimSpace(buf.String())
	default:
		return Content{}, fmt.Errorf("render: unsupported channel %q", ch)
	}
	return out, nil
}

func subjectFor(mt comms.MessageType, data map[string]string) string {
	if s := strings.TrimSpace(data[comms.CtxSubject]); s != "" {
		return s
	}
	if s, ok := subjects[mt]; ok {
		return s
	}
	return "Update on your event"
}

func attachmentsFor(req comms.Request, data map[string]string) []comms.Attachment {
	if req.MessageType != comms.MessageBlueprintDelivery {
		return nil
	}
	u := data["attachment_url"]
	if u == "" {
		return nil
	}
	return []comms.Attachment{{Name: "blueprint.pdf", ContentType: "application/pdf", URL: u}}
}
