package domain

import (
	"fmt"
	"strings"
	"time"
)

// ConversionStatus es la etapa del embudo guest -> cuenta permanente.
type ConversionStatus string

const (
	StatusNew                 ConversionStatus = "new"
	StatusOTPOnly             ConversionStatus = "otp_only"
	StatusConversionCandidate ConversionStatus = "conversion_candidate"
	StatusProposalSent        ConversionStatus = "proposal_sent"
	StatusConverted           ConversionStatus = "converted"
	// StatusError solo aparece en analisis fallidos; nunca se persiste.
	StatusError ConversionStatus = "error"
)

var statusRank = map[ConversionStatus]int{
	StatusNew:                 0,
	StatusOTPOnly:             1,
	StatusConversionCandidate: 2,
	StatusProposalSent:        3,
	StatusConverted:           4,
}

// ParseConversionStatus valida un valor leido del store.
func ParseConversionStatus(raw string) (ConversionStatus, error) {
	s := ConversionStatus(strings.TrimSpace(raw))
	if _, ok := statusRank[s]; !ok {
		return "", fmt.Errorf("unknown conversion status %q", raw)
	}
	return s, nil
}

// CanAdvanceTo reporta si next es un avance valido desde s.
// Solo se permiten movimientos hacia adelante; converted es terminal.
func (s ConversionStatus) CanAdvanceTo(next ConversionStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// EmailTracking es el agregado de engagement de larga vida por email.
type EmailTracking struct {
	Email            string           `json:"email"`
	FirstSeenAt      time.Time        `json:"first_seen_at"`
	LastSeenAt       time.Time        `json:"last_seen_at"`
	TotalLogins      int              `json:"total_logins"`
	ConversionStatus ConversionStatus `json:"conversion_status"`
	MarketingConsent bool             `json:"marketing_consent"`
	Source           string           `json:"source"`
	Notes            string           `json:"notes,omitempty"`
}

// DaysSinceFirstSeen devuelve los dias completos transcurridos desde el primer contacto.
func (t EmailTracking) DaysSinceFirstSeen(now time.Time) int {
	if t.FirstSeenAt.IsZero() || now.Before(t.FirstSeenAt) {
		return 0
	}
	return int(now.Sub(t.FirstSeenAt) / (24 * time.Hour))
}

// AppendNote agrega una linea fechada al historial de notas.
func AppendNote(notes, line string, at time.Time) string {
	entry := fmt.Sprintf("[%s] %s", at.UTC().Format(time.RFC3339), strings.TrimSpace(line))
	if strings.TrimSpace(notes) == "" {
		return entry
	}
	return notes + "\n" + entry
}
