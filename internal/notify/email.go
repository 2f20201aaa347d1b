package notify

import (
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/finance-tracker/internal/config"
	"github.com/Dan9191/finance-tracker/internal/format"
	"github.com/Dan9191/finance-tracker/internal/models"
	"github.com/Dan9191/finance-tracker/internal/schedule"
)

// Mailer delivers a rendered message
type Mailer interface {
	Send(to, subject, body string) error
}

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

// Send delivers a plain-text email
func (s *Sender) Send(to, subject, body string) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = subject
	e.Text = []byte(body)

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}
	if err := e.Send(addr, auth); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", to, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", to, e.Subject)
	return nil
}

// reminderMessage renders the subject and body of a reminder
func reminderMessage(r models.DueReminder) (string, string) {
	status := schedule.StatusOf(r.DueDate, r.FireAt)
	amount := format.Money(r.Amount, r.CurrencyCode)

	var verb string
	switch r.Kind {
	case models.KindIncome:
		verb = "Expected income"
	case models.KindLoan:
		verb = "Loan payment"
	default:
		verb = "Payment"
	}

	subject := fmt.Sprintf("%s: %s %s", r.Title, verb, status)
	body := fmt.Sprintf(
		"%s of %s for %q is %s (%s).\n"+
			"This reminder was scheduled %s.\n",
		verb, amount, r.Title, status, r.DueDate.Format("2006-01-02"), r.Label,
	)
	return subject, body
}
