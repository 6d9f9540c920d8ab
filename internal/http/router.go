package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Feustey/Dazlng-sub004/internal/metrics"
	"github.com/Feustey/Dazlng-sub004/internal/service"
)

// RouterConfig agrupa los parametros HTTP que vienen de la configuracion.
type RouterConfig struct {
	AdminAPIKey      string
	CORSAllowOrigins []string
	RatePerSecond    int
	RateBurst        int
}

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	cfg RouterConfig,
	jwtSvc *service.JWTService,
	authH *AuthHandler,
	adminH *AdminHandler,
) *gin.Engine {
	r := gin.New()

	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), metricsMiddleware())
	if len(cfg.CORSAllowOrigins) > 0 {
		r.Use(corsMiddleware(cfg.CORSAllowOrigins))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	limiter := newIPRateLimiter(cfg.RatePerSecond, cfg.RateBurst)
	requireJWT := JWTAuthMiddleware(jwtSvc)

	auth := r.Group("/auth", jsonContentTypeMiddleware())
	auth.POST("/otp/request", limiter.Middleware(logger), authH.RequestOTP)
	auth.POST("/otp/verify", limiter.Middleware(logger), authH.VerifyOTP)
	auth.POST("/otp/clear", requireJWT, authH.ClearOTP)
	auth.POST("/refresh", authH.RefreshToken)
	auth.POST("/logout", authH.Logout)
	auth.POST("/logout/all", requireJWT, authH.LogoutAll)
	auth.GET("/me/stats", requireJWT, authH.EmailStats)

	internal := r.Group("/internal", jsonContentTypeMiddleware(), adminKeyMiddleware(cfg.AdminAPIKey))
	internal.POST("/conversions", adminH.MarkConverted)
	internal.POST("/otp/cleanup", adminH.CleanupCodes)

	return r
}
