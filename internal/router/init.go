package router

import (
	"github.com/oksasatya/account-guard/internal/container"
	handlers "github.com/oksasatya/account-guard/internal/interface/http"
	"github.com/oksasatya/account-guard/internal/router/modules"
)

func buildAccountModule() *modules.AccountModule {
	cfg := container.GetConfig()
	accounts := handlers.NewAccountHandler(container.GetAccountService(), container.GetLogger())
	sessions := handlers.NewSessionHandler(
		container.GetAccountService(),
		container.GetSessionService(),
		container.GetLogger(),
		cfg.CookieDomain,
		cfg.CookieSecure,
	)
	return modules.NewAccountModule(accounts, sessions, container.GetSessionService(), container.GetRedis(), container.GetLogger())
}

func buildDebugModule() *modules.DebugModule {
	var searcher handlers.LockoutSearcher
	if l := container.GetLockoutLog(); l != nil {
		searcher = l
	}
	h := handlers.NewDebugHandler(searcher, container.GetAuthGuard(), container.GetLogger())
	return modules.NewDebugModule(h, container.GetRedis())
}

// InitModules adds every module to the registry. Call once at startup,
// after the container is populated.
func InitModules(r *Registry) {
	r.Add(buildAccountModule())
	if container.GetConfig().DebugMetricsEnabled {
		r.Mount("/debug", buildDebugModule())
	}
}
