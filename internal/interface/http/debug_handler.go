package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-guard/internal/application"
	"github.com/oksasatya/account-guard/pkg/response"
)

// LockoutSearcher reads back indexed lockout events.
type LockoutSearcher interface {
	Recent(ctx context.Context, address string, size int) ([]map[string]any, error)
}

type DebugHandler struct {
	Lockouts LockoutSearcher
	Guard    *application.AuthGuard
	Logger   *logrus.Logger
}

func NewDebugHandler(lockouts LockoutSearcher, guard *application.AuthGuard, logger *logrus.Logger) *DebugHandler {
	return &DebugHandler{Lockouts: lockouts, Guard: guard, Logger: logger}
}

// RecentLockouts GET /debug/lockouts?address=&size=
func (h *DebugHandler) RecentLockouts(c *gin.Context) {
	if h.Lockouts == nil {
		response.Error[any](c, http.StatusServiceUnavailable, "lockout index disabled", nil)
		return
	}
	size, _ := strconv.Atoi(c.Query("size"))
	events, err := h.Lockouts.Recent(c.Request.Context(), c.Query("address"), size)
	if err != nil {
		h.Logger.WithError(err).Error("lockout search failed")
		response.Error[any](c, http.StatusBadGateway, "lockout search failed", nil)
		return
	}
	meta := map[string]any{"count": len(events)}
	if h.Guard != nil {
		meta["tracked_addresses"] = h.Guard.Tracked()
	}
	response.Success(c, http.StatusOK, events, "recent lockouts", meta)
}
