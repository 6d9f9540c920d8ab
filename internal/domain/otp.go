package domain

import "time"

// OTPCode es un codigo de un solo uso emitido para un email.
type OTPCode struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Code      string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired indica si el codigo ya no puede validarse en el instante now.
func (c OTPCode) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// TrackingAction identifica el evento que actualiza el seguimiento de un email.
type TrackingAction string

const (
	ActionLoginAttempt    TrackingAction = "login_attempt"
	ActionSuccessfulLogin TrackingAction = "successful_login"
	ActionAccountCreation TrackingAction = "account_creation"
)

// ConversionAnalysis resume si conviene proponer una cuenta permanente.
type ConversionAnalysis struct {
	ShouldPromptForAccount bool             `json:"should_prompt_for_account"`
	LoginCount             int              `json:"login_count"`
	DaysSinceFirstLogin    int              `json:"days_since_first_login"`
	ConversionStatus       ConversionStatus `json:"conversion_status"`
}
