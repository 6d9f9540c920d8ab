package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Feustey/Dazlng-sub004/internal/domain"
	"github.com/Feustey/Dazlng-sub004/internal/email"
	"github.com/Feustey/Dazlng-sub004/internal/repository"
	"github.com/Feustey/Dazlng-sub004/internal/service"
)

var sixDigits = regexp.MustCompile(`\b\d{6}\b`)

type mockEmailSender struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (m *mockEmailSender) Send(_ context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockEmailSender) subjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, msg := range m.sent {
		out = append(out, msg.Subject)
	}
	return out
}

func (m *mockEmailSender) lastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if code := sixDigits.FindString(m.sent[i].Text); code != "" {
			return code
		}
	}
	t.Fatalf("no login code delivered")
	return ""
}

type testServer struct {
	router   *gin.Engine
	sender   *mockEmailSender
	tracking *repository.MemoryEmailTrackingRepository
	codes    *repository.MemoryOTPCodeRepository
	jwt      *service.JWTService
}

func setupTestServer(t *testing.T, limiter service.OTPRateLimiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	codes := repository.NewMemoryOTPCodeRepository()
	tracking := repository.NewMemoryEmailTrackingRepository()
	otpSvc := service.NewOTPService(logger, codes, tracking, limiter, 15*time.Minute)
	jwtSvc := service.NewJWTServiceWithStore("secret", 15*time.Minute, time.Hour, service.NewMemoryRefreshTokenStore())

	sender := &mockEmailSender{}
	mailer, err := email.NewConversionMailer(sender, "DazNode", "https://dazno.de")
	if err != nil {
		t.Fatalf("new mailer: %v", err)
	}

	router := NewRouter(logger, RouterConfig{
		AdminAPIKey:   "admin-key",
		RatePerSecond: 1000,
		RateBurst:     1000,
	}, jwtSvc, NewAuthHandler(logger, otpSvc, jwtSvc, mailer), NewAdminHandler(logger, otpSvc, mailer))

	return &testServer{router: router, sender: sender, tracking: tracking, codes: codes, jwt: jwtSvc}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

type verifyResponse struct {
	Tokens             service.TokenPair          `json:"tokens"`
	ConversionAnalysis *domain.ConversionAnalysis `json:"conversion_analysis"`
}

func (s *testServer) login(t *testing.T, addr string) verifyResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/auth/otp/request", map[string]string{"email": addr}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("request otp: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = s.do(t, http.MethodPost, "/auth/otp/verify", map[string]string{
		"email": addr,
		"code":  s.sender.lastCode(t),
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify otp: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp verifyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode verify: %v", err)
	}
	return resp
}

func TestAuthHandler_RequestAndVerify(t *testing.T) {
	s := setupTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/auth/otp/request", map[string]string{"email": "Node@Example.com"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var reqResp struct {
		Status    string    `json:"status"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &reqResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reqResp.Status != "otp_sent" || reqResp.ExpiresAt.IsZero() {
		t.Fatalf("unexpected response: %+v", reqResp)
	}
	if s.sender.sent[0].To != "node@example.com" {
		t.Fatalf("expected lowercased recipient, got %q", s.sender.sent[0].To)
	}

	rec = s.do(t, http.MethodPost, "/auth/otp/verify", map[string]string{
		"email": "node@example.com",
		"code":  " " + s.sender.lastCode(t) + " ",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp verifyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode verify: %v", err)
	}
	if resp.Tokens.AccessToken == "" || resp.ConversionAnalysis == nil || resp.ConversionAnalysis.LoginCount != 1 {
		t.Fatalf("unexpected verify response: %s", rec.Body.String())
	}

	subjects := s.sender.subjects()
	if len(subjects) != 2 || !strings.HasPrefix(subjects[1], "Welcome") {
		t.Fatalf("expected login code then welcome mail, got %v", subjects)
	}
}

func TestAuthHandler_VerifyRejectsBadCode(t *testing.T) {
	s := setupTestServer(t, nil)
	s.do(t, http.MethodPost, "/auth/otp/request", map[string]string{"email": "node@example.com"}, nil)
	code := s.sender.lastCode(t)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	rec := s.do(t, http.MethodPost, "/auth/otp/verify", map[string]string{"email": "node@example.com", "code": wrong}, nil)
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), msgInvalidCode) {
		t.Fatalf("expected 401 with generic message, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/auth/otp/verify", map[string]string{"email": "node@example.com", "code": code}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected the real code to still work, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodPost, "/auth/otp/verify", map[string]string{"email": "node@example.com", "code": code}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected replay to fail, got %d", rec.Code)
	}
}

func TestAuthHandler_RequestValidationAndRateLimit(t *testing.T) {
	s := setupTestServer(t, service.NewMemoryOTPRateLimiter(time.Minute, 1))

	rec := s.do(t, http.MethodPost, "/auth/otp/request", map[string]string{"email": "not-an-email"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/auth/otp/request", map[string]string{"email": "node@example.com"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodPost, "/auth/otp/request", map[string]string{"email": "node@example.com"}, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestAuthHandler_DeliveryFailureIs503(t *testing.T) {
	s := setupTestServer(t, nil)
	s.sender.err = errors.New("smtp down")

	rec := s.do(t, http.MethodPost, "/auth/otp/request", map[string]string{"email": "node@example.com"}, nil)
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), msgCodeUnavailable) {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAuthHandler_ProposalSentOnPrompt(t *testing.T) {
	s := setupTestServer(t, nil)
	now := time.Now().UTC()
	s.tracking.Put(domain.EmailTracking{
		Email:            "node@example.com",
		FirstSeenAt:      now.Add(-2 * 24 * time.Hour),
		LastSeenAt:       now.Add(-24 * time.Hour),
		TotalLogins:      2,
		ConversionStatus: domain.StatusOTPOnly,
		Source:           "login",
	})

	resp := s.login(t, "node@example.com")
	if !resp.ConversionAnalysis.ShouldPromptForAccount {
		t.Fatalf("expected prompt on third login, got %+v", resp.ConversionAnalysis)
	}

	subjects := s.sender.subjects()
	if !strings.Contains(subjects[len(subjects)-1], "account") {
		t.Fatalf("expected account proposal mail last, got %v", subjects)
	}
	stored, err := s.tracking.GetByEmail(context.Background(), "node@example.com")
	if err != nil {
		t.Fatalf("get tracking: %v", err)
	}
	if stored.ConversionStatus != domain.StatusProposalSent {
		t.Fatalf("expected proposal_sent, got %q", stored.ConversionStatus)
	}
}

func TestAuthHandler_SessionEndpoints(t *testing.T) {
	s := setupTestServer(t, nil)
	resp := s.login(t, "node@example.com")
	bearer := map[string]string{"Authorization": "Bearer " + resp.Tokens.AccessToken}

	rec := s.do(t, http.MethodGet, "/auth/me/stats", nil, bearer)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", rec.Code)
	}
	var statsResp struct {
		Stats domain.EmailTracking `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &statsResp); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if statsResp.Stats.TotalLogins != 1 || statsResp.Stats.Notes != "" {
		t.Fatalf("unexpected stats: %+v", statsResp.Stats)
	}

	if rec := s.do(t, http.MethodGet, "/auth/me/stats", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("stats without token: expected 401, got %d", rec.Code)
	}

	s.do(t, http.MethodPost, "/auth/otp/request", map[string]string{"email": "node@example.com"}, nil)
	rec = s.do(t, http.MethodPost, "/auth/otp/clear", nil, bearer)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"cleared":1`) {
		t.Fatalf("clear: unexpected response %d: %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": resp.Tokens.RefreshToken}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", rec.Code)
	}
	var refreshed struct {
		Tokens service.TokenPair `json:"tokens"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &refreshed); err != nil {
		t.Fatalf("decode refresh: %v", err)
	}

	rec = s.do(t, http.MethodPost, "/auth/logout/all", nil, bearer)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout all: expected 204, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": refreshed.Tokens.RefreshToken}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout all: expected 401, got %d", rec.Code)
	}
}

func TestAuthHandler_LogoutRevokesRefresh(t *testing.T) {
	s := setupTestServer(t, nil)
	resp := s.login(t, "node@example.com")

	rec := s.do(t, http.MethodPost, "/auth/logout", map[string]string{"refresh_token": resp.Tokens.RefreshToken}, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": resp.Tokens.RefreshToken}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked refresh to fail, got %d", rec.Code)
	}
}
