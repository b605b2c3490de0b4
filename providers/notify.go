package providers

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/agmanagement/kyc-intake/interfaces"
)

// NotifierConfig carries the sender credentials. Any unset group disables
// the corresponding channel with a warning instead of failing the flow.
type NotifierConfig struct {
	SendGridKey string
	EmailFrom   string

	TwilioSID    string
	TwilioToken  string
	SMSFrom      string
	WhatsAppFrom string
}

// Notifier dispatches receipts over email, SMS, and WhatsApp. All methods
// are best-effort: unconfigured channels no-op with a warning, and send
// failures come back wrapped in ErrProvider for the caller to log.
type Notifier struct {
	cfg      NotifierConfig
	log      *slog.Logger
	sendgrid *sendgrid.Client
	twilio   *twilio.RestClient
}

// NewNotifier creates the notifier, initializing only the channels whose
// credentials are present.
func NewNotifier(cfg NotifierConfig, log *slog.Logger) *Notifier {
	n := &Notifier{cfg: cfg, log: log}

	if cfg.SendGridKey != "" && cfg.EmailFrom != "" {
		n.sendgrid = sendgrid.NewSendClient(cfg.SendGridKey)
	} else {
		log.Warn("SendGrid not configured - email receipts disabled")
	}

	if cfg.TwilioSID != "" && cfg.TwilioToken != "" {
		n.twilio = twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.TwilioSID,
			Password: cfg.TwilioToken,
		})
	} else {
		log.Warn("Twilio not configured - SMS and WhatsApp receipts disabled")
	}

	return n
}

// SendEmail sends a plain-text receipt, optionally attaching a PDF.
func (n *Notifier) SendEmail(ctx context.Context, to, subject, body string, attachment []byte, filename string) error {
	if n.sendgrid == nil {
		n.log.Warn("Skipping email receipt: SendGrid not configured")
		return nil
	}

	message := mail.NewSingleEmail(
		mail.NewEmail("", n.cfg.EmailFrom),
		subject,
		mail.NewEmail("", to),
		body,
		"",
	)
	if len(attachment) > 0 {
		att := mail.NewAttachment()
		att.SetContent(base64.StdEncoding.EncodeToString(attachment))
		att.SetType("application/pdf")
		if filename == "" {
			filename = "document.pdf"
		}
		att.SetFilename(filename)
		att.SetDisposition("attachment")
		message.AddAttachment(att)
	}

	resp, err := n.sendgrid.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("%w: sendgrid: %v", interfaces.ErrProvider, err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: sendgrid returned %d", interfaces.ErrProvider, resp.StatusCode)
	}

	n.log.Info("Sent email receipt", "to", to)
	return nil
}

// SendSMS sends a text receipt.
func (n *Notifier) SendSMS(ctx context.Context, to, body string) error {
	if n.twilio == nil || n.cfg.SMSFrom == "" {
		n.log.Warn("Skipping SMS receipt: Twilio SMS not configured")
		return nil
	}
	return n.sendMessage(to, n.cfg.SMSFrom, body)
}

// SendWhatsApp sends a WhatsApp receipt.
func (n *Notifier) SendWhatsApp(ctx context.Context, to, body string) error {
	if n.twilio == nil || n.cfg.WhatsAppFrom == "" {
		n.log.Warn("Skipping WhatsApp receipt: Twilio WhatsApp not configured")
		return nil
	}
	return n.sendMessage("whatsapp:"+to, n.cfg.WhatsAppFrom, body)
}

func (n *Notifier) sendMessage(to, from, body string) error {
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(body)

	if _, err := n.twilio.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("%w: twilio: %v", interfaces.ErrProvider, err)
	}

	n.log.Info("Sent message receipt", "to", to)
	return nil
}
