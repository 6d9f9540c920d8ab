package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Feustey/Dazlng-sub004/internal/domain"
)

// ErrNotFound se devuelve cuando la fila pedida no existe, sin importar el backend.
var ErrNotFound = errors.New("record not found")

// OTPCodeRepository define el contrato de persistencia para codigos OTP.
type OTPCodeRepository interface {
	// Create inserta un codigo nuevo y marca como usados los activos del mismo email,
	// de forma atomica por email.
	Create(ctx context.Context, code domain.OTPCode) error
	InvalidateActive(ctx context.Context, email string) (int64, error)
	FindLatestActive(ctx context.Context, email, code string) (domain.OTPCode, error)
	// Consume marca el codigo como usado solo si seguia sin usar; reporta si lo cambio.
	Consume(ctx context.Context, id string) (bool, error)
	Expire(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// EmailTrackingRepository define el contrato de persistencia para el seguimiento por email.
type EmailTrackingRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.EmailTracking, error)
	// Create inserta solo si no existe; false indica que otra escritura gano.
	Create(ctx context.Context, tracking domain.EmailTracking) (bool, error)
	Touch(ctx context.Context, email string, seenAt time.Time) error
	// IncrementLogins suma un login de forma atomica y devuelve la fila resultante.
	IncrementLogins(ctx context.Context, email string, seenAt time.Time) (domain.EmailTracking, error)
	// UpdateStatus cambia el estado si el actual esta en from (vacio = sin condicion)
	// y agrega note al historial.
	UpdateStatus(ctx context.Context, email string, from []domain.ConversionStatus, to domain.ConversionStatus, note string) (bool, error)
}

func statusStrings(in []domain.ConversionStatus) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}
