package outreach

import (
	"context"
	"errors"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/resilience"
)

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender sends mail over SMTP with mandatory STARTTLS. Temporary SMTP
// replies (4xx) and network timeouts are retried.
type SMTPSender struct {
	cfg   config.MailConfig
	retry resilience.RetryConfig
	dial  func(ctx context.Context, m *mail.Msg) error
}

// NewSMTPSender builds a sender from mail settings.
func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	retry := resilience.DefaultRetryConfig()
	retry.ShouldRetry = isTemporarySMTP
	retry.OnRetry = resilience.RetryLogger("smtp", "send")
	s := &SMTPSender{cfg: cfg, retry: retry}
	s.dial = s.dialAndSend
	return s
}

// Send implements Sender.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := s.buildMsg(msg)
	if err != nil {
		return err
	}
	err = resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.dial(ctx, m)
	})
	if err != nil {
		return eris.Wrapf(err, "smtp: send to %s", msg.To)
	}
	zap.L().Info("smtp: email sent",
		zap.String("to", msg.To),
		zap.String("kind", string(msg.Kind)),
	)
	return nil
}

func (s *SMTPSender) buildMsg(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(s.cfg.FromAddress()); err != nil {
		return nil, eris.Wrap(err, "smtp: invalid from address")
	}
	if err := m.To(msg.To); err != nil {
		return nil, eris.Wrapf(err, "smtp: invalid recipient %q", msg.To)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

func isTemporarySMTP(err error) bool {
	var se *mail.SendError
	if errors.As(err, &se) {
		return se.IsTemp()
	}
	return resilience.IsTransient(err)
}

func (s *SMTPSender) dialAndSend(ctx context.Context, m *mail.Msg) error {
	client, err := mail.NewClient(s.cfg.Host,
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.Username),
		mail.WithPassword(s.cfg.Password),
	)
	if err != nil {
		return eris.Wrap(err, "smtp: new client")
	}
	return client.DialAndSendWithContext(ctx, m)
}

// DryRunSender logs messages instead of sending them and keeps a copy.
type DryRunSender struct {
	mu   sync.Mutex
	sent []Message
}

// Send implements Sender.
func (d *DryRunSender) Send(_ context.Context, msg Message) error {
	d.mu.Lock()
	d.sent = append(d.sent, msg)
	d.mu.Unlock()
	zap.L().Info("dry-run: email not sent",
		zap.String("to", msg.To),
		zap.String("kind", string(msg.Kind)),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// Sent returns the messages seen so far.
func (d *DryRunSender) Sent() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Message, len(d.sent))
	copy(out, d.sent)
	return out
}

// NewSender picks the dry-run or SMTP sender from cfg.
func NewSender(cfg config.MailConfig) Sender {
	if cfg.DryRun {
		return &DryRunSender{}
	}
	return NewSMTPSender(cfg)
}
