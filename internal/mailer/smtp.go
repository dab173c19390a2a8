package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPBackend delivers mail through a plain SMTP relay.
type SMTPBackend struct {
	addr   string
	auth   smtp.Auth
	sender string
}

// NewSMTPBackend configures a backend for the given relay. Auth is skipped
// when user is empty (local development relays).
func NewSMTPBackend(host string, port int, user, password, sender string) *SMTPBackend {
	var auth smtp.Auth
	if user != "" {
		auth = smtp.PlainAuth("", user, password, host)
	}
	return &SMTPBackend{
		addr:   fmt.Sprintf("%s:%d", host, port),
		auth:   auth,
		sender: sender,
	}
}

func (b *SMTPBackend) Send(_ context.Context, msg Message) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", b.sender)
	fmt.Fprintf(&sb, "To: %s\r\n", msg.To)
	fmt.Fprintf(&sb, "Subject: %s\r\n", msg.Subject)
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(msg.Body)

	return smtp.SendMail(b.addr, b.auth, b.sender, []string{msg.To}, []byte(sb.String()))
}
