package alerts

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// SMTPSender sends alerts via email
type SMTPSender struct {
	host     string
	port     int
	user     string
	password string
	from     string
	to       []string
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender creates a new SMTP sender
func NewSMTPSender(host string, port int, user, password, from string, to []string) *SMTPSender {
	return &SMTPSender{
		host:     host,
		port:     port,
		user:     user,
		password: password,
		from:     from,
		to:       to,
		sendMail: smtp.SendMail,
	}
}

// Send sends the alert via email
func (s *SMTPSender) Send(ctx context.Context, payload *AlertPayload) error {
	if len(s.to) == 0 {
		return fmt.Errorf("send email: no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if s.user != "" {
		auth = smtp.PlainAuth("", s.user, s.password, s.host)
	}
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	if err := s.sendMail(addr, auth, s.from, s.to, s.buildMessage(payload)); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	return nil
}

func (s *SMTPSender) buildMessage(payload *AlertPayload) []byte {
	subject := fmt.Sprintf("[%s] %s", payload.Severity, payload.Title)
	if payload.AmountUSD > 0 {
		subject += fmt.Sprintf(": $%.2f", payload.AmountUSD)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(s.to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(buildEmailBody(payload))
	return []byte(b.String())
}

func buildEmailBody(payload *AlertPayload) string {
	var b strings.Builder
	line := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%-16s%s\n", label+":", value)
		}
	}

	fmt.Fprintf(&b, "WHALE TRACKER ALERT - %s\n", payload.Severity)
	b.WriteString("═══════════════════════════════════════\n\n")
	fmt.Fprintf(&b, "%s\n", payload.Title)
	if payload.Summary != "" {
		fmt.Fprintf(&b, "%s\n", payload.Summary)
	}
	b.WriteString("\nDETAILS\n")
	b.WriteString("─────────────────────────────────────\n")
	line("Kind", string(payload.Kind))
	line("Address", payload.Address)
	line("Token", payload.TokenSymbol)
	if payload.AmountUSD > 0 {
		line("Value", fmt.Sprintf("$%.2f", payload.AmountUSD))
	}
	line("Tier", string(payload.Tier))
	line("Impact", string(payload.Impact))
	line("Pattern", string(payload.InsightType))
	line("Signal", string(payload.Signal))
	line("Confidence", fmt.Sprintf("%d/100", payload.Confidence))
	line("Hash", payload.TransactionHash)
	line("Time", payload.Timestamp.UTC().Format(time.RFC3339))
	b.WriteString("\n═══════════════════════════════════════\n")
	fmt.Fprintf(&b, "Environment: %s\n", payload.Environment)
	b.WriteString("\nNote: whale activity is a signal, not a prediction.\n")

	return b.String()
}
