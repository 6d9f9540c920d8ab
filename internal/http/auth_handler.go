package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Feustey/Dazlng-sub004/internal/domain"
	"github.com/Feustey/Dazlng-sub004/internal/email"
	"github.com/Feustey/Dazlng-sub004/internal/service"
)

const (
	msgCodeUnavailable = "could not send code, try again"
	msgInvalidCode     = "invalid or expired code"
)

// AuthHandler expone el login por codigo y la sesion JWT.
type AuthHandler struct {
	logger  *zap.Logger
	otpServ *service.OTPService
	jwtServ *service.JWTService
	mailer  *email.ConversionMailer
}

func NewAuthHandler(logger *zap.Logger, otpServ *service.OTPService, jwtServ *service.JWTService, mailer *email.ConversionMailer) *AuthHandler {
	return &AuthHandler{
		logger:  logger,
		otpServ: otpServ,
		jwtServ: jwtServ,
		mailer:  mailer,
	}
}

// RequestOTP maneja POST /auth/otp/request.
func (h *AuthHandler) RequestOTP(c *gin.Context) {
	var req struct {
		Email  string `json:"email" binding:"required,email"`
		Source string `json:"source"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid otp request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	ctx := c.Request.Context()
	addr := canonicalEmail(req.Email)

	issued, err := h.otpServ.CreateOTPAttempt(ctx, addr, req.Source)
	if err != nil {
		var issErr *service.IssuanceError
		switch {
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		case errors.Is(err, service.ErrInvalidEmail):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		case errors.As(err, &issErr):
			h.logger.Error("otp issuance failed",
				zap.String("kind", string(issErr.Kind)),
				zap.String("hint", issErr.Message()),
				zap.Error(issErr.Err),
			)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgCodeUnavailable})
		default:
			h.logger.Error("request otp failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgCodeUnavailable})
		}
		return
	}

	if err := h.mailer.SendLoginCode(ctx, addr, issued.Code, issued.ExpiresAt); err != nil {
		h.logger.Error("otp delivery failed", zap.String("email", addr), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgCodeUnavailable})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "otp_sent", "expires_at": issued.ExpiresAt})
}

// VerifyOTP maneja POST /auth/otp/verify.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
		Code  string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid otp verify request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	ctx := c.Request.Context()
	addr := canonicalEmail(req.Email)

	result := h.otpServ.VerifyOTP(ctx, addr, req.Code)
	if !result.IsValid {
		c.JSON(http.StatusUnauthorized, gin.H{"error": msgInvalidCode})
		return
	}
	analysis := result.ConversionAnalysis

	status := domain.StatusOTPOnly
	if analysis != nil && analysis.ConversionStatus != domain.StatusError {
		status = analysis.ConversionStatus
	}
	tokens, err := h.jwtServ.GeneratePair(ctx, addr, status)
	if err != nil {
		h.logger.Error("jwt issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue tokens"})
		return
	}

	h.notifyAfterLogin(c, addr, analysis)
	c.JSON(http.StatusOK, gin.H{"tokens": tokens, "conversion_analysis": analysis})
}

// notifyAfterLogin aplica la politica de correos; sus fallas no afectan el login.
func (h *AuthHandler) notifyAfterLogin(c *gin.Context, addr string, analysis *domain.ConversionAnalysis) {
	if analysis == nil {
		return
	}
	ctx := c.Request.Context()
	if analysis.LoginCount == 1 {
		if err := h.mailer.SendWelcome(ctx, addr); err != nil {
			h.logger.Warn("welcome email failed", zap.String("email", addr), zap.Error(err))
		}
	}
	if !analysis.ShouldPromptForAccount {
		return
	}
	if err := h.mailer.SendAccountProposal(ctx, addr, analysis.LoginCount, analysis.DaysSinceFirstLogin); err != nil {
		h.logger.Warn("account proposal email failed", zap.String("email", addr), zap.Error(err))
		return
	}
	h.otpServ.MarkProposalSent(ctx, addr)
}

// ClearOTP maneja POST /auth/otp/clear.
func (h *AuthHandler) ClearOTP(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	n, err := h.otpServ.ClearOTPForEmail(c.Request.Context(), claims.Email)
	if err != nil {
		h.logger.Error("clear otp failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not clear codes"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": n})
}

// EmailStats maneja GET /auth/me/stats.
func (h *AuthHandler) EmailStats(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	stats := h.otpServ.GetEmailStats(c.Request.Context(), claims.Email)
	if stats == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no stats for this email"})
		return
	}
	// Las notas son de uso interno.
	stats.Notes = ""
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// RefreshToken maneja POST /auth/refresh.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid refresh request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	tokens, err := h.jwtServ.RefreshPair(c.Request.Context(), req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// Logout maneja POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid logout request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	_ = h.jwtServ.RevokeRefresh(c.Request.Context(), req.RefreshToken)
	c.Status(http.StatusNoContent)
}

// LogoutAll maneja POST /auth/logout/all.
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	if err := h.jwtServ.RevokeAllSessions(c.Request.Context(), claims.Email); err != nil {
		h.logger.Error("revoke sessions failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not revoke sessions"})
		return
	}
	c.Status(http.StatusNoContent)
}

// canonicalEmail unifica mayusculas antes de llegar al servicio, que compara tal cual.
func canonicalEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
