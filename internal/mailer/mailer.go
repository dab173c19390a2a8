// Package mailer delivers outbound email through a transport-agnostic
// backend.
package mailer

import (
	"context"

	"github.com/devsys-hq/apiserver/internal/apperr"
)

// Message is an outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Backend defines the transport-agnostic delivery operation.
type Backend interface {
	Send(ctx context.Context, msg Message) error
}

// Mailer wraps a backend with a stable API.
type Mailer struct {
	backend Backend
}

// New constructs a Mailer for the provided backend.
func New(backend Backend) *Mailer {
	return &Mailer{backend: backend}
}

// Send delivers the message. A transport failure is reported as a
// service-kind error wrapping the cause and the attempted message.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if err := m.backend.Send(ctx, msg); err != nil {
		return apperr.Service(
			"Unable to send the email.",
			"Check that the email service is available.",
			err,
			msg,
		)
	}
	return nil
}
