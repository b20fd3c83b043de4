package handlers

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/account-guard/config"
	"github.com/oksasatya/account-guard/internal/application"
	"github.com/oksasatya/account-guard/internal/infrastructure/memory"
	"github.com/oksasatya/account-guard/internal/infrastructure/redisstore"
	"github.com/oksasatya/account-guard/internal/interface/middleware"
	"github.com/oksasatya/account-guard/pkg/helpers"
	"github.com/oksasatya/account-guard/pkg/mailer"
	"github.com/oksasatya/account-guard/pkg/validation"
)

type mailbox struct {
	mu   sync.Mutex
	jobs []mailer.EmailJob
}

func (m *mailbox) Enqueue(job mailer.EmailJob) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
	return true
}

// codeFor returns the newest code mailed to addr.
func (m *mailbox) codeFor(addr string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.jobs) - 1; i >= 0; i-- {
		if m.jobs[i].To == addr {
			if code, ok := m.jobs[i].Data["Code"].(string); ok && code != "" {
				return code
			}
		}
	}
	return ""
}

type server struct {
	engine *gin.Engine
	svc    *application.AccountService
	mail   *mailbox
	cfg    *config.Config
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validation.Init()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cfg := &config.Config{
		AppName:               "test",
		PendingAccountTTL:     time.Hour,
		PendingEmailTTL:       time.Hour,
		ResetCodeTTL:          time.Hour,
		MaxAgeYears:           120,
		GuardAddressThreshold: 20,
		GuardEmailThreshold:   3,
		GuardAddressTTL:       time.Hour,
		GuardEmailTTL:         time.Hour,
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	mail := &mailbox{}
	sessions := application.NewSessionService(redisstore.NewSessionStore(rdb),
		helpers.NewJWTManager("a", "r", time.Minute, time.Hour), logger)
	guard := application.NewAuthGuard(memory.NewTrackerStore(), application.GuardConfigFrom(cfg), nil, logger)
	svc := application.NewAccountService(memory.NewAccountStore(), guard, mail, nil, sessions, cfg, logger)
	svc.Start()
	t.Cleanup(func() { _ = svc.Stop(context.Background()) })

	accounts := NewAccountHandler(svc, logger)
	sess := NewSessionHandler(svc, sessions, logger, "", false)

	r := gin.New()
	api := r.Group("/api", middleware.RequestIDMiddleware(), middleware.RealIP())
	api.POST("/accounts", accounts.SignUp)
	api.POST("/accounts/activate", accounts.Activate)
	api.POST("/sessions", sess.SignIn)
	api.POST("/sessions/refresh", sess.Refresh)
	api.POST("/password/reset", accounts.RequestPasswordReset)
	api.POST("/password/reset/confirm", accounts.ResetPassword)

	auth := api.Group("/", middleware.Auth(sessions, logger))
	auth.DELETE("/sessions", sess.SignOut)
	auth.GET("/account", accounts.Get)
	auth.PUT("/account/profile", accounts.UpdateProfile)
	auth.PUT("/account/email", accounts.UpdateEmail)
	auth.POST("/account/email/confirm", accounts.ConfirmEmail)
	auth.DELETE("/account/message", accounts.ClearMessage)

	return &server{engine: r, svc: svc, mail: mail, cfg: cfg}
}

type envelope struct {
	Status  int             `json:"status"`
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

func (s *server) do(t *testing.T, method, path string, body any, cookies []*http.Cookie) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func hashHex(b byte) string { return hex.EncodeToString(bytes.Repeat([]byte{b}, 32)) }

func (s *server) signedIn(t *testing.T, email string) []*http.Cookie {
	t.Helper()
	w, _ := s.do(t, http.MethodPost, "/api/accounts", gin.H{"email": email, "date_of_birth": "1990-01-01"}, nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	w, _ = s.do(t, http.MethodPost, "/api/accounts/activate", gin.H{"email": email, "code": s.mail.codeFor(email), "password_hash": hashHex(1)}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodPost, "/api/sessions", gin.H{"email": email, "password_hash": hashHex(1)}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	return w.Result().Cookies()
}

func TestSignUp_SameAnswerForNewAndExisting(t *testing.T) {
	s := newServer(t)
	s.signedIn(t, "a@x.com")

	wExisting, envExisting := s.do(t, http.MethodPost, "/api/accounts", gin.H{"email": "a@x.com", "date_of_birth": "1990-01-01"}, nil)
	wNew, envNew := s.do(t, http.MethodPost, "/api/accounts", gin.H{"email": "b@x.com", "date_of_birth": "1990-01-01"}, nil)

	assert.Equal(t, http.StatusAccepted, wExisting.Code)
	assert.Equal(t, wNew.Code, wExisting.Code)
	assert.Equal(t, envNew.Message, envExisting.Message)
	assert.JSONEq(t, strings.Replace(string(envNew.Data), "b@x.com", "a@x.com", 1), string(envExisting.Data))
}

func TestSignUp_Validation(t *testing.T) {
	s := newServer(t)
	cases := []gin.H{
		{"email": "not-an-email", "date_of_birth": "1990-01-01"},
		{"email": "a@x.com", "date_of_birth": "01/01/1990"},
		{"email": "a@x.com", "date_of_birth": "1990-01-01", "gender": "robot"},
		{"email": "a@x.com", "date_of_birth": "2999-01-01"},
	}
	for _, body := range cases {
		w, env := s.do(t, http.MethodPost, "/api/accounts", body, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.False(t, env.Success)
	}
}

func TestSignUp_CapacityReached(t *testing.T) {
	s := newServer(t)
	s.cfg.AccountCapacity = 1
	s.signedIn(t, "a@x.com")

	w, env := s.do(t, http.MethodPost, "/api/accounts", gin.H{"email": "b@x.com", "date_of_birth": "1990-01-01"}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, env.Success)
}

func TestSignIn_FailureAndLockoutLookAlike(t *testing.T) {
	s := newServer(t)
	s.signedIn(t, "a@x.com")

	var last envelope
	for i := 0; i < s.cfg.GuardEmailThreshold; i++ {
		w, env := s.do(t, http.MethodPost, "/api/sessions", gin.H{"email": "a@x.com", "password_hash": hashHex(9)}, nil)
		require.Equal(t, http.StatusUnauthorized, w.Code)
		last = env
	}
	w, locked := s.do(t, http.MethodPost, "/api/sessions", gin.H{"email": "a@x.com", "password_hash": hashHex(1)}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, last.Message, locked.Message)
	assert.Empty(t, w.Result().Cookies())
}

func TestSignIn_RejectsMalformedHash(t *testing.T) {
	s := newServer(t)
	w, _ := s.do(t, http.MethodPost, "/api/sessions", gin.H{"email": "a@x.com", "password_hash": "xyz"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAccount_RequiresSession(t *testing.T) {
	s := newServer(t)
	w, _ := s.do(t, http.MethodGet, "/api/account", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	cookies := s.signedIn(t, "a@x.com")
	w, env := s.do(t, http.MethodGet, "/api/account", nil, cookies)
	require.Equal(t, http.StatusOK, w.Code)
	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "a@x.com", data["email"])

	w, _ = s.do(t, http.MethodDelete, "/api/sessions", nil, cookies)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodGet, "/api/account", nil, cookies)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProfileUpdate(t *testing.T) {
	s := newServer(t)
	cookies := s.signedIn(t, "a@x.com")

	w, env := s.do(t, http.MethodPut, "/api/account/profile", gin.H{"gender": "female", "date_of_birth": "1980-05-05", "email_alerts": true}, cookies)
	require.Equal(t, http.StatusOK, w.Code)
	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "female", data["gender"])
	assert.Equal(t, "1980-05-05", data["date_of_birth"])
	assert.Equal(t, true, data["email_alerts"])
}

func TestPasswordReset_Flow(t *testing.T) {
	s := newServer(t)
	cookies := s.signedIn(t, "a@x.com")

	for _, email := range []string{"a@x.com", "nobody@x.com"} {
		w, env := s.do(t, http.MethodPost, "/api/password/reset", gin.H{"email": email}, nil)
		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.True(t, env.Success)
	}

	w, _ := s.do(t, http.MethodPost, "/api/password/reset/confirm", gin.H{"email": "a@x.com", "code": "WRONGCODE9", "password_hash": hashHex(2)}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/password/reset/confirm", gin.H{"email": "a@x.com", "code": s.mail.codeFor("a@x.com"), "password_hash": hashHex(2)}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/account", nil, cookies)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "reset ends existing sessions")

	w, _ = s.do(t, http.MethodPost, "/api/sessions", gin.H{"email": "a@x.com", "password_hash": hashHex(2)}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEmailChange_Flow(t *testing.T) {
	s := newServer(t)
	cookies := s.signedIn(t, "a@x.com")
	other := s.signedIn(t, "b@x.com")

	w, _ := s.do(t, http.MethodPut, "/api/account/email", gin.H{"email": "new@x.com"}, cookies)
	require.Equal(t, http.StatusAccepted, w.Code)

	w, env := s.do(t, http.MethodPost, "/api/account/email/confirm", gin.H{
		"code":              s.mail.codeFor("new@x.com"),
		"old_password_hash": hashHex(1),
		"new_password_hash": hashHex(3),
	}, cookies)
	require.Equal(t, http.StatusOK, w.Code)
	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "new@x.com", data["email"])
	assert.NotNil(t, data["message"])

	w, _ = s.do(t, http.MethodGet, "/api/account", nil, cookies)
	assert.Equal(t, http.StatusOK, w.Code, "the confirming session survives")

	w, _ = s.do(t, http.MethodDelete, "/api/account/message", nil, cookies)
	require.Equal(t, http.StatusOK, w.Code)
	_, env = s.do(t, http.MethodGet, "/api/account", nil, cookies)
	data = nil
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Nil(t, data["message"])

	w, _ = s.do(t, http.MethodGet, "/api/account", nil, other)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEmailChange_TakenAddressLooksAccepted(t *testing.T) {
	s := newServer(t)
	cookies := s.signedIn(t, "a@x.com")
	s.signedIn(t, "b@x.com")

	wTaken, envTaken := s.do(t, http.MethodPut, "/api/account/email", gin.H{"email": "b@x.com"}, cookies)
	wFree, envFree := s.do(t, http.MethodPut, "/api/account/email", gin.H{"email": "c@x.com"}, cookies)
	assert.Equal(t, wFree.Code, wTaken.Code)
	assert.Equal(t, envFree.Message, envTaken.Message)
}

func TestRefresh(t *testing.T) {
	s := newServer(t)
	cookies := s.signedIn(t, "a@x.com")

	w, _ := s.do(t, http.MethodPost, "/api/sessions/refresh", nil, cookies)
	require.Equal(t, http.StatusOK, w.Code)
	fresh := w.Result().Cookies()
	require.Len(t, fresh, 2)

	w, _ = s.do(t, http.MethodPost, "/api/sessions/refresh", nil, cookies)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "spent refresh token")

	w, _ = s.do(t, http.MethodGet, "/api/account", nil, fresh)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/sessions/refresh", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

type fakeSearcher struct {
	events []map[string]any
	err    error
}

func (f fakeSearcher) Recent(context.Context, string, int) ([]map[string]any, error) {
	return f.events, f.err
}

func TestDebugHandler_RecentLockouts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	run := func(h *DebugHandler) int {
		r := gin.New()
		r.GET("/lockouts", h.RecentLockouts)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/lockouts?address=203.0.113.9", nil))
		return w.Code
	}

	assert.Equal(t, http.StatusOK, run(NewDebugHandler(fakeSearcher{events: []map[string]any{{"scope": "email"}}}, nil, logger)))
	assert.Equal(t, http.StatusBadGateway, run(NewDebugHandler(fakeSearcher{err: errors.New("down")}, nil, logger)))
	assert.Equal(t, http.StatusServiceUnavailable, run(NewDebugHandler(nil, nil, logger)))
}
