package modules

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	handlers "github.com/oksasatya/account-guard/internal/interface/http"
	"github.com/oksasatya/account-guard/internal/interface/middleware"
)

// AccountModule wires the account lifecycle and session routes.
// Public: sign-up, activation, sign-in, refresh, password reset.
// Protected: everything under /account plus sign-out.
type AccountModule struct {
	Accounts *handlers.AccountHandler
	Sessions *handlers.SessionHandler
	Auth     middleware.SessionValidator
	RDB      *redis.Client
	Logger   *logrus.Logger
}

func NewAccountModule(accounts *handlers.AccountHandler, sessions *handlers.SessionHandler, auth middleware.SessionValidator, rdb *redis.Client, logger *logrus.Logger) *AccountModule {
	return &AccountModule{Accounts: accounts, Sessions: sessions, Auth: auth, RDB: rdb, Logger: logger}
}

func (m *AccountModule) Register(rg *gin.RouterGroup) {
	// Request-rate caps sit in front of the failed-authentication guard
	signUpLimiter := middleware.RateLimit(m.RDB, 10, time.Minute, middleware.KeyByIP(), nil)
	credentialLimiter := middleware.RateLimit(m.RDB, 30, time.Minute, middleware.KeyByIPAndPath(), nil)
	resetLimiter := middleware.RateLimit(m.RDB, 5, time.Minute, middleware.KeyByIPAndPath(), nil)
	refreshLimiter := middleware.RateLimit(m.RDB, 60, time.Minute, middleware.KeyByIP(), nil)

	rg.POST("/accounts", signUpLimiter, m.Accounts.SignUp)
	rg.POST("/accounts/activate", credentialLimiter, m.Accounts.Activate)
	rg.POST("/sessions", credentialLimiter, m.Sessions.SignIn)
	rg.POST("/sessions/refresh", refreshLimiter, m.Sessions.Refresh)
	rg.POST("/password/reset", resetLimiter, m.Accounts.RequestPasswordReset)
	rg.POST("/password/reset/confirm", credentialLimiter, m.Accounts.ResetPassword)

	auth := rg.Group("/")
	auth.Use(middleware.Auth(m.Auth, m.Logger))
	auth.Use(middleware.RateLimit(m.RDB, 120, time.Minute, middleware.KeyByAccount(), nil))
	{
		auth.DELETE("/sessions", m.Sessions.SignOut)
		auth.GET("/account", m.Accounts.Get)
		auth.PUT("/account/profile", m.Accounts.UpdateProfile)
		auth.PUT("/account/email", m.Accounts.UpdateEmail)
		auth.POST("/account/email/confirm", m.Accounts.ConfirmEmail)
		auth.DELETE("/account/message", m.Accounts.ClearMessage)
	}
}
