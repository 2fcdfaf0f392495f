package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wneessen/go-mail"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/cis-contact/internal/config"
	"github.com/tbourn/cis-contact/internal/domain"
)

// endpoint is a provider's submission host and port.
type endpoint struct {
	host string
	port int
}

// wellKnown maps EMAIL_SERVICE names to SMTP endpoints.
var wellKnown = map[string]endpoint{
	"gmail":      {"smtp.gmail.com", 465},
	"googlemail": {"smtp.gmail.com", 465},
	"outlook":    {"smtp-mail.outlook.com", 587},
	"hotmail":    {"smtp-mail.outlook.com", 587},
	"outlook365": {"smtp.office365.com", 587},
	"office365":  {"smtp.office365.com", 587},
	"yahoo":      {"smtp.mail.yahoo.com", 465},
	"icloud":     {"smtp.mail.me.com", 587},
	"zoho":       {"smtp.zoho.com", 465},
	"gmx":        {"mail.gmx.com", 587},
	"yandex":     {"smtp.yandex.ru", 465},
	"sendgrid":   {"smtp.sendgrid.net", 587},
	"mailgun":    {"smtp.mailgun.org", 465},
	"mailjet":    {"in-v3.mailjet.com", 587},
	"ses":        {"email-smtp.us-east-1.amazonaws.com", 465},
}

// resolveEndpoint picks host/port from cfg: explicit SMTP_HOST/SMTP_PORT win
// over the well-known service table.
func resolveEndpoint(cfg config.MailConfig) (endpoint, error) {
	ep := endpoint{}
	if svc := strings.ToLower(strings.TrimSpace(cfg.Service)); svc != "" {
		known, ok := wellKnown[strings.ReplaceAll(svc, " ", "")]
		if !ok && cfg.Host == "" {
			return ep, fmt.Errorf("unknown EMAIL_SERVICE %q; set SMTP_HOST instead", cfg.Service)
		}
		ep = known
	}
	if cfg.Host != "" {
		ep.host = cfg.Host
		if ep.port == 0 {
			ep.port = 587
		}
	}
	if cfg.Port > 0 {
		ep.port = cfg.Port
	}
	if ep.host == "" {
		return ep, errors.New("no SMTP host: set EMAIL_SERVICE or SMTP_HOST")
	}
	return ep, nil
}

// sender is the part of *mail.Client the notifier needs.
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPNotifier delivers notifications through an SMTP relay.
type SMTPNotifier struct {
	From string
	To   string

	client sender
}

// NewSMTP builds an SMTPNotifier from the mail configuration. Port 465 uses
// implicit TLS; any other port requires STARTTLS.
func NewSMTP(cfg config.MailConfig) (*SMTPNotifier, error) {
	ep, err := resolveEndpoint(cfg)
	if err != nil {
		return nil, err
	}

	opts := []mail.Option{mail.WithTimeout(cfg.Timeout)}
	if ep.port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	}
	if cfg.User != "" && cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.User),
			mail.WithPassword(cfg.Password),
		)
	}
	// Port last so TLS/SSL options cannot override it.
	opts = append(opts, mail.WithPort(ep.port))

	c, err := mail.NewClient(ep.host, opts...)
	if err != nil {
		return nil, err
	}

	to := cfg.Receiver
	if to == "" {
		to = cfg.User
	}
	return &SMTPNotifier{From: cfg.User, To: to, client: c}, nil
}

// Notify implements Notifier. It makes exactly one delivery attempt.
func (n *SMTPNotifier) Notify(ctx context.Context, sub domain.Submission) Result {
	tr := otel.Tracer("notify/SMTPNotifier")
	ctx, span := tr.Start(ctx, "Notify",
		trace.WithAttributes(attribute.Int64("submission.id", int64(sub.ID))),
	)
	defer span.End()

	start := time.Now()
	res := Result{SubmissionID: sub.ID, To: n.To}

	msg, err := toMsg(Compose(sub, n.From, n.To))
	if err == nil {
		err = n.client.DialAndSendWithContext(ctx, msg)
	}
	res.Elapsed = time.Since(start)
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", ErrDelivery, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
	}
	return res
}

// toMsg converts a Message into a go-mail message with a text/plain body and
// a text/html alternative.
func toMsg(m Message) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.From); err != nil {
		return nil, fmt.Errorf("sender address: %w", err)
	}
	if err := msg.To(m.To); err != nil {
		return nil, fmt.Errorf("recipient address: %w", err)
	}
	if m.ReplyTo != "" {
		// The visitor's address is not validated on intake; skip it if unusable.
		if err := msg.ReplyTo(m.ReplyTo); err != nil {
			log.Debug().Err(err).Msg("reply-to not set")
		}
	}
	msg.Subject(m.Subject)
	msg.SetBodyString(mail.TypeTextPlain, m.Text)
	if m.HTML != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, m.HTML)
	}
	return msg, nil
}
