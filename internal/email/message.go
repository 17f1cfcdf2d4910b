package email

import (
	"bytes"
	"fmt"

	"github.com/wneessen/go-mail"
)

// newMailMsg converts msg into a go-mail message. A message with both
// bodies becomes multipart/alternative with the text part first.
func newMailMsg(senderName, senderAddress string, msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()

	var err error
	if senderName != "" {
		err = m.FromFormat(senderName, senderAddress)
	} else {
		err = m.From(senderAddress)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	m.Subject(msg.Subject)

	switch {
	case msg.TextBody != "" && msg.HTMLBody != "":
		m.SetBodyString(mail.TypeTextPlain, msg.TextBody)
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTMLBody)
	case msg.HTMLBody != "":
		m.SetBodyString(mail.TypeTextHTML, msg.HTMLBody)
	default:
		m.SetBodyString(mail.TypeTextPlain, msg.TextBody)
	}
	return m, nil
}

// rawMessage renders msg as an RFC 5322 message
func rawMessage(senderName, senderAddress string, msg Message) ([]byte, error) {
	m, err := newMailMsg(senderName, senderAddress, msg)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}
	return buf.Bytes(), nil
}
