// Package mail delivers transactional email over SMTP.
package mail

import (
	"errors"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
)

// SMTPMailer sends multipart text+html mail through one SMTP relay.
type SMTPMailer struct {
	addr string
	from string
	auth smtp.Auth
}

// NewSMTP builds a mailer for addr ("host:port"). Auth may be nil for an
// internal relay.
func NewSMTP(addr, from string, auth smtp.Auth) (*SMTPMailer, error) {
	if addr == "" || from == "" {
		return nil, errors.New("mail: addr and from are required")
	}
	return &SMTPMailer{addr: addr, from: from, auth: auth}, nil
}

const boundary = "kadra-mail-boundary"

func (m *SMTPMailer) Send(to, subject, html, text string) error {
	if to == "" {
		return errors.New("mail: recipient is required")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(text)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(html)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", boundary)

	return smtp.SendMail(m.addr, m.auth, m.from, []string{to}, []byte(b.String()))
}
