package email

import (
	"context"
	"errors"
	"strings"
)

// Message es un correo ya compuesto, listo para el proveedor.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender define la interfaz de entrega de correos.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var ErrMissingRecipient = errors.New("to email is required")

// From identifica al remitente de todos los proveedores.
type From struct {
	Address string
	Name    string
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) Send(_ context.Context, _ Message) error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}

func validateMessage(msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return ErrMissingRecipient
	}
	return nil
}
