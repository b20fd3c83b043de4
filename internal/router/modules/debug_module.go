package modules

import (
	"expvar"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	handlers "github.com/oksasatya/account-guard/internal/interface/http"
	"github.com/oksasatya/account-guard/internal/interface/middleware"
)

type DebugModule struct {
	Handler *handlers.DebugHandler
	RDB     *redis.Client
}

func NewDebugModule(h *handlers.DebugHandler, rdb *redis.Client) *DebugModule {
	return &DebugModule{Handler: h, RDB: rdb}
}

func (m *DebugModule) Register(rg *gin.RouterGroup) {
	// Public metrics endpoint (expvar), rate-limited per IP
	rl := middleware.RateLimit(m.RDB, 120, time.Minute, middleware.KeyByIP(), nil)
	rg.GET("/vars", rl, gin.WrapH(expvar.Handler()))
	// Lockout history names addresses and emails; internal callers only
	rg.GET("/lockouts", middleware.PrivateNetworkOnly(), m.Handler.RecentLockouts)
}
