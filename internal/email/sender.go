package email

import (
	"context"
	"errors"
	"fmt"
)

// ErrTransport matches every *TransportError
var ErrTransport = errors.New("email transport failed")

// Sender is the interface that all email providers must implement.
// This abstraction allows swapping email providers (SMTP, Gmail, etc.)
// without changing business logic.
type Sender interface {
	// Send sends an email to the specified recipient.
	Send(ctx context.Context, msg Message) error
}

// Message represents an email message to be sent.
type Message struct {
	To       string // recipient email address
	Subject  string // email subject
	HTMLBody string // HTML email body
	TextBody string // plain-text fallback body
}

// TransportError carries the provider's failure detail
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrTransport) match any TransportError
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func transportError(provider string, err error) error {
	return &TransportError{Provider: provider, Err: err}
}
