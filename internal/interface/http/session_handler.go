package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-guard/internal/application"
	"github.com/oksasatya/account-guard/internal/interface/middleware"
	"github.com/oksasatya/account-guard/pkg/helpers"
	"github.com/oksasatya/account-guard/pkg/response"
)

type SessionHandler struct {
	Accounts *application.AccountService
	Sessions *application.SessionService
	Logger   *logrus.Logger
	Cookies  *helpers.Manager
}

func NewSessionHandler(accounts *application.AccountService, sessions *application.SessionService, logger *logrus.Logger, cookieDomain string, cookieSecure bool) *SessionHandler {
	return &SessionHandler{Accounts: accounts, Sessions: sessions, Logger: logger, Cookies: helpers.NewCookie(cookieDomain, cookieSecure)}
}

type signInRequest struct {
	Email        string `json:"email" binding:"required,account_email"`
	PasswordHash string `json:"password_hash" binding:"required,pwhash"`
}

func tokenMeta(pair application.TokenPair) map[string]any {
	return map[string]any{"access_expires_at": pair.AccessTokenExpiry, "refresh_expires_at": pair.RefreshTokenExpiry}
}

// SignIn POST /api/sessions
func (h *SessionHandler) SignIn(c *gin.Context) {
	var req signInRequest
	if !bindJSON(c, &req) {
		return
	}
	hash, ok := passwordHash(c, "password_hash", req.PasswordHash)
	if !ok {
		return
	}
	a, err := h.Accounts.SignIn(req.Email, hash, middleware.ClientAddr(c))
	if err != nil {
		fail(c, h.Logger, err)
		return
	}
	pair, _, err := h.Sessions.Issue(c.Request.Context(), a.ID)
	if err != nil {
		fail(c, h.Logger, err)
		return
	}
	h.Cookies.SetPair(c, pair.AccessToken, pair.AccessTokenExpiry, pair.RefreshToken, pair.RefreshTokenExpiry)
	response.Success(c, http.StatusOK, accountData(a.View()), "signed in", tokenMeta(pair))
}

// Refresh POST /api/sessions/refresh
func (h *SessionHandler) Refresh(c *gin.Context) {
	refresh, err := c.Cookie(helpers.RefreshCookie)
	if err != nil || refresh == "" {
		response.Error[any](c, http.StatusUnauthorized, "missing refresh token", nil)
		return
	}
	pair, _, err := h.Sessions.Refresh(c.Request.Context(), refresh)
	if err != nil {
		h.Cookies.Clear(c)
		fail(c, h.Logger, err)
		return
	}
	h.Cookies.SetPair(c, pair.AccessToken, pair.AccessTokenExpiry, pair.RefreshToken, pair.RefreshTokenExpiry)
	response.Success[any](c, http.StatusOK, gin.H{"refreshed": true}, "token refreshed", tokenMeta(pair))
}

// SignOut DELETE /api/sessions
func (h *SessionHandler) SignOut(c *gin.Context) {
	id, _ := middleware.AccountID(c)
	if err := h.Sessions.Revoke(c.Request.Context(), id, c.GetString(middleware.CtxSessionIDKey)); err != nil {
		h.Logger.WithError(err).WithField("account_id", id).Error("revoke session failed")
	}
	h.Cookies.Clear(c)
	response.Success[any](c, http.StatusOK, gin.H{"signed_out": true}, "signed out", nil)
}
