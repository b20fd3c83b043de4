package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-guard/internal/application"
	"github.com/oksasatya/account-guard/pkg/helpers"
	"github.com/oksasatya/account-guard/pkg/response"
)

const (
	CtxAccountIDKey = "accountID"
	CtxSessionIDKey = "sessionID"
)

// SessionValidator resolves an access token to a live session.
type SessionValidator interface {
	Validate(ctx context.Context, accessToken string) (int32, string, error)
}

// Auth validates the access token cookie and requires a live session.
// It sets accountID and sessionID in the Gin context on success.
func Auth(sessions SessionValidator, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(helpers.AccessCookie)
		if err != nil || token == "" {
			response.Error[any](c, http.StatusUnauthorized, "missing access token", nil)
			return
		}
		id, sid, err := sessions.Validate(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, application.ErrAuthFailed) && logger != nil {
				logger.WithError(err).Error("session lookup failed")
			}
			response.Error[any](c, http.StatusUnauthorized, "session not found", nil)
			return
		}
		c.Set(CtxAccountIDKey, id)
		c.Set(CtxSessionIDKey, sid)
		c.Next()
	}
}

// AccountID returns the authenticated account id set by Auth.
func AccountID(c *gin.Context) (int32, bool) {
	v, ok := c.Get(CtxAccountIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int32)
	return id, ok
}
