package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	extErrors "github.com/pkg/errors"
)

// SMTPSenderOptions provides initialization parameters for SMTPSender
type SMTPSenderOptions struct {
	Hostname string // host:port of the SMTP server
	From     string
	Auth     smtp.Auth
	SiteName string // shown in the subject line
}

// SMTPSender delivers reminders as plain-text emails
type SMTPSender struct {
	SMTPSenderOptions
}

var _ Sender = &SMTPSender{}

// NewSMTPSender returns a Sender delivering over SMTP
func NewSMTPSender(option SMTPSenderOptions) (*SMTPSender, error) {
	if len(option.Hostname) == 0 {
		return nil, fmt.Errorf("empty Hostname is invalid")
	}
	if len(option.From) == 0 {
		return nil, fmt.Errorf("empty From is invalid")
	}
	if option.Auth == nil {
		return nil, fmt.Errorf("nil Auth is invalid")
	}
	if len(option.SiteName) == 0 {
		option.SiteName = "Subscription Tracker"
	}
	return &SMTPSender{
		SMTPSenderOptions: option,
	}, nil
}

// Send composes and delivers one reminder email
func (s *SMTPSender) Send(ctx context.Context, reminder Reminder) error {
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\r\n", s.From)
	fmt.Fprintf(&b, "To: %s\r\n", reminder.To)
	fmt.Fprintf(&b, "Subject: %s: your %s subscription renews in %d day(s)\r\n",
		s.SiteName, reminder.SubscriptionName, reminder.DaysBefore)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")

	name := reminder.UserName
	if len(name) == 0 {
		name = "there"
	}
	fmt.Fprintf(&b, "Hi %s,\r\n\r\n", name)
	fmt.Fprintf(&b, "Your %s subscription (%.2f %s, billed %s) renews on %s.\r\n",
		reminder.SubscriptionName,
		reminder.Price,
		reminder.Currency,
		reminder.Frequency,
		reminder.RenewalDate.Format("Mon, 02 Jan 2006"),
	)
	fmt.Fprintf(&b, "Payment method on file: %s\r\n\r\n", reminder.PaymentMethod)
	b.WriteString("If you no longer need this subscription, cancel it before the renewal date.\r\n")

	if err := smtp.SendMail(s.Hostname, s.Auth, s.From, []string{reminder.To}, []byte(b.String())); err != nil {
		return extErrors.Wrap(err, "Cannot deliver reminder email")
	}
	return nil
}
