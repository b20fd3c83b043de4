package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-guard/internal/application"
	"github.com/oksasatya/account-guard/internal/domain/entity"
	"github.com/oksasatya/account-guard/internal/interface/middleware"
	"github.com/oksasatya/account-guard/pkg/response"
	"github.com/oksasatya/account-guard/pkg/validation"
)

const dateLayout = "2006-01-02"

type AccountHandler struct {
	Svc    *application.AccountService
	Logger *logrus.Logger
}

func NewAccountHandler(svc *application.AccountService, logger *logrus.Logger) *AccountHandler {
	return &AccountHandler{Svc: svc, Logger: logger}
}

type signUpRequest struct {
	Email       string `json:"email" binding:"required,account_email"`
	Gender      string `json:"gender" binding:"omitempty,gender"`
	DateOfBirth string `json:"date_of_birth" binding:"required,datetime=2006-01-02"`
	EmailAlerts bool   `json:"email_alerts"`
}

type activateRequest struct {
	Email        string `json:"email" binding:"required,account_email"`
	Code         string `json:"code" binding:"required,len=10"`
	PasswordHash string `json:"password_hash" binding:"required,pwhash"`
}

type resetRequest struct {
	Email string `json:"email" binding:"required,account_email"`
}

type resetConfirmRequest struct {
	Email        string `json:"email" binding:"required,account_email"`
	Code         string `json:"code" binding:"required,len=10"`
	PasswordHash string `json:"password_hash" binding:"required,pwhash"`
}

type profileRequest struct {
	Gender      string `json:"gender" binding:"omitempty,gender"`
	DateOfBirth string `json:"date_of_birth" binding:"required,datetime=2006-01-02"`
	EmailAlerts bool   `json:"email_alerts"`
}

type updateEmailRequest struct {
	Email string `json:"email" binding:"required,account_email"`
}

type confirmEmailRequest struct {
	Code            string `json:"code" binding:"required,len=10"`
	OldPasswordHash string `json:"old_password_hash" binding:"required,pwhash"`
	NewPasswordHash string `json:"new_password_hash" binding:"required,pwhash"`
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return false
	}
	return true
}

func passwordHash(c *gin.Context, field, s string) ([]byte, bool) {
	b, err := validation.PasswordHash(s, entity.PasswordHashLen)
	if err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", map[string]string{field: "must be 64 hexadecimal characters"})
		return nil, false
	}
	return b, true
}

// profileFields parses the fields shared by sign-up and profile updates.
// Both are already syntax-checked by binding.
func profileFields(gender, dob string) (entity.Gender, time.Time) {
	g, _ := entity.ParseGender(gender)
	t, _ := time.Parse(dateLayout, dob)
	return g, t
}

// fail renders an operation error. Failed and TooManyAttempts share one
// response so a caller cannot tell a lockout from a wrong credential.
func fail(c *gin.Context, logger *logrus.Logger, err error) {
	if application.IsInputError(err) {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", map[string]string{"payload": err.Error()})
		return
	}
	if errors.Is(err, application.ErrAuthFailed) || errors.Is(err, application.ErrTooManyAttempts) {
		response.Error[any](c, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}
	switch application.OutcomeOf(err) {
	case application.OutcomeNotActivated:
		response.Error[any](c, http.StatusForbidden, "account not activated", nil)
	case application.OutcomeCapacityReached:
		response.Error[any](c, http.StatusServiceUnavailable, "registrations are closed", nil)
	default:
		logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		response.Error[any](c, http.StatusInternalServerError, "internal error", nil)
	}
}

func accountData(v entity.AccountView) gin.H {
	out := gin.H{
		"id":            v.ID,
		"email":         v.Email,
		"gender":        v.Gender.String(),
		"date_of_birth": v.DateOfBirth.Format(dateLayout),
		"email_alerts":  v.EmailAlerts,
		"created_at":    v.CreatedAt,
	}
	if v.PendingEmail != "" {
		out["pending_email"] = v.PendingEmail
	}
	if v.Message.Type != entity.MessageNone {
		typ := "info"
		if v.Message.Type == entity.MessageWarning {
			typ = "warning"
		}
		out["message"] = gin.H{"type": typ, "text": v.Message.Text, "time": v.Message.Time}
	}
	return out
}

// SignUp POST /api/accounts
func (h *AccountHandler) SignUp(c *gin.Context) {
	var req signUpRequest
	if !bindJSON(c, &req) {
		return
	}
	gender, dob := profileFields(req.Gender, req.DateOfBirth)
	res, _, err := h.Svc.SignUp(application.SignUpInput{
		Email:       req.Email,
		Gender:      gender,
		DateOfBirth: dob,
		EmailAlerts: req.EmailAlerts,
		Address:     middleware.ClientAddr(c),
	})
	if err != nil {
		fail(c, h.Logger, err)
		return
	}
	if res == application.SignUpCapacityReached {
		response.Error[any](c, http.StatusServiceUnavailable, "registrations are closed", nil)
		return
	}
	response.Success[any](c, http.StatusAccepted, gin.H{"email": req.Email}, "check your inbox to continue", nil)
}

// Activate POST /api/accounts/activate
func (h *AccountHandler) Activate(c *gin.Context) {
	var req activateRequest
	if !bindJSON(c, &req) {
		return
	}
	hash, ok := passwordHash(c, "password_hash", req.PasswordHash)
	if !ok {
		return
	}
	a, err := h.Svc.Activate(req.Email, req.Code, hash, middleware.ClientAddr(c))
	if err != nil {
		fail(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, accountData(a.View()), "account activated", nil)
}

// RequestPasswordReset POST /api/password/reset
// The answer is the same whatever the address.
func (h *AccountHandler) RequestPasswordReset(c *gin.Context) {
	var req resetRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.Svc.RequestPasswordReset(req.Email, middleware.ClientAddr(c)); err != nil {
		fail(c, h.Logger, err)
		return
	}
	response.Success[any](c, http.StatusAccepted, gin.H{"email": req.Email}, "check your inbox to continue", nil)
}

// ResetPassword POST /api/password/reset/confirm
func (h *AccountHandler) ResetPassword(c *gin.Context) {
	var req resetConfirmRequest
	if !bindJSON(c, &req) {
		return
	}
	hash, ok := passwordHash(c, "password_hash", req.PasswordHash)
	if !ok {
		return
	}
	if _, err := h.Svc.ResetPassword(c.Request.Context(), req.Email, req.Code, hash, middleware.ClientAddr(c)); err != nil {
		fail(c, h.Logger, err)
		return
	}
	response.Success[any](c, http.StatusOK, gin.H{"reset": true}, "password updated", nil)
}

// Get GET /api/account
func (h *AccountHandler) Get(c *gin.Context) {
	id, _ := middleware.AccountID(c)
	view, err := h.Svc.Profile(id)
	if err != nil {
		fail(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, accountData(view), "account", nil)
}

// UpdateProfile PUT /api/account/profile
func (h *AccountHandler) UpdateProfile(c *gin.Context) {
	var req profileRequest
	if !bindJSON(c, &req) {
		return
	}
	id, _ := middleware.AccountID(c)
	gender, dob := profileFields(req.Gender, req.DateOfBirth)
	if err := h.Svc.UpdateProfile(id, application.ProfileInput{Gender: gender, DateOfBirth: dob, EmailAlerts: req.EmailAlerts}); err != nil {
		fail(c, h.Logger, err)
		return
	}
	h.Get(c)
}

// UpdateEmail PUT /api/account/email
// The response never says whether the new address is taken.
func (h *AccountHandler) UpdateEmail(c *gin.Context) {
	var req updateEmailRequest
	if !bindJSON(c, &req) {
		return
	}
	id, _ := middleware.AccountID(c)
	if err := h.Svc.UpdateEmail(id, req.Email, middleware.ClientAddr(c)); err != nil {
		fail(c, h.Logger, err)
		return
	}
	response.Success[any](c, http.StatusAccepted, gin.H{"pending_email": req.Email}, "check the new inbox to confirm", nil)
}

// ConfirmEmail POST /api/account/email/confirm
func (h *AccountHandler) ConfirmEmail(c *gin.Context) {
	var req confirmEmailRequest
	if !bindJSON(c, &req) {
		return
	}
	oldHash, ok := passwordHash(c, "old_password_hash", req.OldPasswordHash)
	if !ok {
		return
	}
	newHash, ok := passwordHash(c, "new_password_hash", req.NewPasswordHash)
	if !ok {
		return
	}
	id, _ := middleware.AccountID(c)
	sid := c.GetString(middleware.CtxSessionIDKey)
	if err := h.Svc.ConfirmNewEmail(c.Request.Context(), id, sid, req.Code, oldHash, newHash, middleware.ClientAddr(c)); err != nil {
		fail(c, h.Logger, err)
		return
	}
	h.Get(c)
}

// ClearMessage DELETE /api/account/message
func (h *AccountHandler) ClearMessage(c *gin.Context) {
	id, _ := middleware.AccountID(c)
	if err := h.Svc.ClearMessage(id); err != nil {
		fail(c, h.Logger, err)
		return
	}
	response.Success[any](c, http.StatusOK, gin.H{"cleared": true}, "message cleared", nil)
}
