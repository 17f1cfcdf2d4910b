package email

import (
	"context"
	"errors"
)

// ErrNotConfigured is the cause of every send through an UnconfiguredSender
var ErrNotConfigured = errors.New("mail credentials are not configured")

// UnconfiguredSender is installed when no credentials are present.
// The application still starts; every delivery attempt fails.
type UnconfiguredSender struct {
	Provider string
}

// Send always fails with a TransportError
func (u UnconfiguredSender) Send(ctx context.Context, msg Message) error {
	return transportError(u.Provider, ErrNotConfigured)
}
