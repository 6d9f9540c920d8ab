package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Feustey/Dazlng-sub004/internal/domain"
	"github.com/Feustey/Dazlng-sub004/internal/repository"
)

const (
	promptMinLogins        = 3
	promptRecentMinLogins  = 2
	promptRecentMinDays    = 7
	promoteMinLogins       = 4
	promoteRecentMinLogins = 2
	promoteRecentMinDays   = 7
)

// AnalyzeForConversion relee el seguimiento y decide si proponer una cuenta.
// Nunca falla: ante errores devuelve un resultado negativo.
func (s *OTPService) AnalyzeForConversion(ctx context.Context, email string) domain.ConversionAnalysis {
	t, err := s.tracking.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.ConversionAnalysis{ConversionStatus: domain.StatusNew}
	}
	if err != nil {
		s.logger.Warn("conversion analysis read failed", zap.String("email", email), zap.Error(err))
		return domain.ConversionAnalysis{ConversionStatus: domain.StatusError}
	}
	return evaluateConversion(t, s.now())
}

// evaluateConversion exige otp_only y, o bien uso frecuente, o bien uso repetido
// espaciado en una semana.
func evaluateConversion(t domain.EmailTracking, now time.Time) domain.ConversionAnalysis {
	days := t.DaysSinceFirstSeen(now)
	logins := t.TotalLogins
	prompt := t.ConversionStatus == domain.StatusOTPOnly &&
		(logins >= promptMinLogins || (days >= promptRecentMinDays && logins >= promptRecentMinLogins))
	return domain.ConversionAnalysis{
		ShouldPromptForAccount: prompt,
		LoginCount:             logins,
		DaysSinceFirstLogin:    days,
		ConversionStatus:       t.ConversionStatus,
	}
}

// shouldPromote recibe el registro previo al incremento del login actual.
func shouldPromote(pre domain.EmailTracking, now time.Time) bool {
	if pre.TotalLogins >= promoteMinLogins {
		return true
	}
	return pre.TotalLogins >= promoteRecentMinLogins && pre.DaysSinceFirstSeen(now) >= promoteRecentMinDays
}
