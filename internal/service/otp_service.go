package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Feustey/Dazlng-sub004/internal/domain"
	"github.com/Feustey/Dazlng-sub004/internal/metrics"
	"github.com/Feustey/Dazlng-sub004/internal/repository"
)

const (
	DefaultOTPTTL = 15 * time.Minute
	DefaultSource = "login"
)

// OTPService emite y valida codigos de un solo uso y mantiene el seguimiento por email.
type OTPService struct {
	logger   *zap.Logger
	codes    repository.OTPCodeRepository
	tracking repository.EmailTrackingRepository
	limiter  OTPRateLimiter
	ttl      time.Duration

	now      func() time.Time
	generate func() (string, error)
}

func NewOTPService(
	logger *zap.Logger,
	codes repository.OTPCodeRepository,
	tracking repository.EmailTrackingRepository,
	limiter OTPRateLimiter,
	ttl time.Duration,
) *OTPService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = DefaultOTPTTL
	}
	return &OTPService{
		logger:   logger,
		codes:    codes,
		tracking: tracking,
		limiter:  limiter,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
		generate: generateOTP,
	}
}

// IssueResult contiene el codigo en claro para que el caller lo entregue por otro canal.
type IssueResult struct {
	Code      string
	ExpiresAt time.Time
	Warnings  []Warning
}

// VerifyResult nunca distingue por que un codigo fue rechazado.
type VerifyResult struct {
	IsValid            bool
	ConversionAnalysis *domain.ConversionAnalysis
	Warnings           []Warning
}

// CreateOTPAttempt invalida los codigos previos del email y emite uno nuevo.
// Solo falla si no se pudo persistir el codigo nuevo.
func (s *OTPService) CreateOTPAttempt(ctx context.Context, email, source string) (IssueResult, error) {
	email = normalizeEmail(email)
	if email == "" {
		return IssueResult{}, ErrInvalidEmail
	}
	source = strings.TrimSpace(source)
	if source == "" {
		source = DefaultSource
	}

	if s.limiter != nil && !s.limiter.Allow(ctx, email) {
		metrics.RecordIssuance("rate_limited")
		return IssueResult{}, ErrRateLimited
	}

	now := s.now()
	var warnings []Warning

	if _, err := s.codes.DeleteExpired(ctx, now); err != nil {
		warnings = s.warn(warnings, "cleanup_expired", email, err)
	}
	if _, err := s.codes.InvalidateActive(ctx, email); err != nil {
		warnings = s.warn(warnings, "invalidate_previous", email, err)
	}

	code, err := s.generate()
	if err != nil {
		metrics.RecordIssuance("failed")
		return IssueResult{}, fmt.Errorf("generate otp: %w", err)
	}

	otp := domain.OTPCode{
		ID:        uuid.NewString(),
		Email:     email,
		Code:      code,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.codes.Create(ctx, otp); err != nil {
		issErr := classifyIssuanceError(err)
		s.logger.Error("otp insert failed",
			zap.String("email", email),
			zap.String("kind", string(issErr.Kind)),
			zap.Error(err),
		)
		metrics.RecordIssuance("failed")
		return IssueResult{}, issErr
	}

	warnings = append(warnings, s.updateEmailTracking(ctx, email, source, domain.ActionLoginAttempt, "")...)

	metrics.RecordIssuance("issued")
	s.logger.Info("otp issued",
		zap.String("email", email),
		zap.String("code", maskCode(code)),
		zap.String("source", source),
		zap.Time("expires_at", otp.ExpiresAt),
	)
	return IssueResult{Code: code, ExpiresAt: otp.ExpiresAt, Warnings: warnings}, nil
}

// VerifyOTP valida y consume un codigo. Nunca devuelve error: cualquier falla es IsValid=false.
func (s *OTPService) VerifyOTP(ctx context.Context, email, code string) VerifyResult {
	email = normalizeEmail(email)
	code = normalizeCode(code)
	if email == "" || code == "" {
		metrics.RecordVerification("invalid")
		return VerifyResult{}
	}

	row, err := s.codes.FindLatestActive(ctx, email, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.RecordVerification("invalid")
		} else {
			s.logger.Error("otp lookup failed", zap.String("email", email), zap.Error(err))
			metrics.RecordVerification("error")
		}
		return VerifyResult{}
	}

	if row.IsExpired(s.now()) {
		var warnings []Warning
		if err := s.codes.Expire(ctx, row.ID); err != nil {
			warnings = s.warn(warnings, "expire_code", email, err)
		}
		metrics.RecordVerification("expired")
		return VerifyResult{Warnings: warnings}
	}

	consumed, err := s.codes.Consume(ctx, row.ID)
	if err != nil {
		s.logger.Error("otp consume failed", zap.String("email", email), zap.Error(err))
		metrics.RecordVerification("error")
		return VerifyResult{}
	}
	if !consumed {
		// Otra request consumio el mismo codigo primero.
		s.logger.Warn("otp already consumed concurrently", zap.String("email", email))
		metrics.RecordVerification("race")
		return VerifyResult{}
	}

	warnings := s.updateEmailTracking(ctx, email, "", domain.ActionSuccessfulLogin, "")
	analysis := s.AnalyzeForConversion(ctx, email)
	if analysis.ShouldPromptForAccount {
		metrics.RecordConversionPrompt()
		warnings = append(warnings, s.promoteCandidate(ctx, email, analysis)...)
	}

	metrics.RecordVerification("valid")
	return VerifyResult{IsValid: true, ConversionAnalysis: &analysis, Warnings: warnings}
}

// promoteCandidate saca al email de otp_only para que el aviso no se repita.
func (s *OTPService) promoteCandidate(ctx context.Context, email string, analysis domain.ConversionAnalysis) []Warning {
	note := domain.AppendNote("", fmt.Sprintf(
		"account prompt recommended after %d logins over %d days",
		analysis.LoginCount, analysis.DaysSinceFirstLogin,
	), s.now())
	_, err := s.tracking.UpdateStatus(ctx, email,
		[]domain.ConversionStatus{domain.StatusOTPOnly},
		domain.StatusConversionCandidate,
		note,
	)
	if err != nil {
		return s.warn(nil, "tracking_promote", email, err)
	}
	return nil
}

// MarkAsConverted fuerza el estado converted; es una senal externa autoritativa.
func (s *OTPService) MarkAsConverted(ctx context.Context, email, notes string) []Warning {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}
	line := "account created"
	if n := strings.TrimSpace(notes); n != "" {
		line += ": " + n
	}
	warnings := s.updateEmailTracking(ctx, email, "account", domain.ActionAccountCreation, line)
	if len(warnings) == 0 {
		s.logger.Info("email marked as converted", zap.String("email", email))
	}
	return warnings
}

// MarkProposalSent avanza a proposal_sent tras enviar la propuesta de cuenta.
func (s *OTPService) MarkProposalSent(ctx context.Context, email string) []Warning {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}
	note := domain.AppendNote("", "account proposal sent", s.now())
	applied, err := s.tracking.UpdateStatus(ctx, email,
		[]domain.ConversionStatus{domain.StatusOTPOnly, domain.StatusConversionCandidate},
		domain.StatusProposalSent,
		note,
	)
	if err != nil {
		return s.warn(nil, "tracking_proposal_sent", email, err)
	}
	if !applied {
		s.logger.Debug("proposal_sent transition skipped", zap.String("email", email))
	}
	return nil
}

// GetEmailStats devuelve la fila de seguimiento, o nil si no existe o falla la lectura.
func (s *OTPService) GetEmailStats(ctx context.Context, email string) *domain.EmailTracking {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}
	t, err := s.tracking.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("email stats read failed", zap.String("email", email), zap.Error(err))
		}
		return nil
	}
	return &t
}

// CleanupExpiredCodes borra los codigos vencidos. Es idempotente.
func (s *OTPService) CleanupExpiredCodes(ctx context.Context) int {
	n, err := s.codes.DeleteExpired(ctx, s.now())
	if err != nil {
		s.logger.Warn("otp cleanup failed", zap.Error(err))
		metrics.RecordBestEffortFailure("cleanup_expired")
		return 0
	}
	metrics.RecordCleanup(int(n))
	if n > 0 {
		s.logger.Info("expired otp codes removed", zap.Int64("removed", n))
	}
	return int(n)
}

// ClearOTPForEmail invalida todos los codigos activos del email.
func (s *OTPService) ClearOTPForEmail(ctx context.Context, email string) (int64, error) {
	email = normalizeEmail(email)
	if email == "" {
		return 0, ErrInvalidEmail
	}
	n, err := s.codes.InvalidateActive(ctx, email)
	if err != nil {
		s.logger.Warn("otp clear failed", zap.String("email", email), zap.Error(err))
		return 0, fmt.Errorf("clear otp for email: %w", err)
	}
	return n, nil
}

func (s *OTPService) warn(warnings []Warning, operation, email string, err error) []Warning {
	s.logger.Warn("best-effort write failed",
		zap.String("operation", operation),
		zap.String("email", email),
		zap.Error(err),
	)
	metrics.RecordBestEffortFailure(operation)
	return append(warnings, Warning{Operation: operation, Err: err})
}
