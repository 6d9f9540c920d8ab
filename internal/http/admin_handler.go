package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Feustey/Dazlng-sub004/internal/email"
	"github.com/Feustey/Dazlng-sub004/internal/service"
)

// AdminHandler atiende senales internas: conversiones y mantenimiento.
type AdminHandler struct {
	logger  *zap.Logger
	otpServ *service.OTPService
	mailer  *email.ConversionMailer
}

func NewAdminHandler(logger *zap.Logger, otpServ *service.OTPService, mailer *email.ConversionMailer) *AdminHandler {
	return &AdminHandler{logger: logger, otpServ: otpServ, mailer: mailer}
}

// MarkConverted maneja POST /internal/conversions.
func (h *AdminHandler) MarkConverted(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
		Notes string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid conversion request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	ctx := c.Request.Context()
	addr := canonicalEmail(req.Email)

	if warnings := h.otpServ.MarkAsConverted(ctx, addr, req.Notes); len(warnings) > 0 {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not record conversion"})
		return
	}
	if err := h.mailer.SendConversionSuccess(ctx, addr); err != nil {
		h.logger.Warn("conversion success email failed", zap.String("email", addr), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"status": "converted"})
}

// CleanupCodes maneja POST /internal/otp/cleanup.
func (h *AdminHandler) CleanupCodes(c *gin.Context) {
	removed := h.otpServ.CleanupExpiredCodes(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
