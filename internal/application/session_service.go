package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	repo "github.com/oksasatya/account-guard/internal/domain/repository"
	"github.com/oksasatya/account-guard/pkg/helpers"
)

type TokenPair struct {
	AccessToken        string
	AccessTokenExpiry  time.Time
	RefreshToken       string
	RefreshTokenExpiry time.Time
}

// SessionService issues JWT pairs bound to sessions kept in Store.
type SessionService struct {
	Store  repo.SessionStore
	JWT    *helpers.JWTManager
	Logger *logrus.Logger
}

func NewSessionService(store repo.SessionStore, jwt *helpers.JWTManager, logger *logrus.Logger) *SessionService {
	return &SessionService{Store: store, JWT: jwt, Logger: logger}
}

func (s *SessionService) pair(accountID int32, sid string) (TokenPair, error) {
	access, aexp, err := s.JWT.GenerateAccessToken(accountID, sid)
	if err != nil {
		s.Logger.WithError(err).WithField("account_id", accountID).Error("generate access token failed")
		return TokenPair{}, err
	}
	refresh, rexp, err := s.JWT.GenerateRefreshToken(accountID, sid)
	if err != nil {
		s.Logger.WithError(err).WithField("account_id", accountID).Error("generate refresh token failed")
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, AccessTokenExpiry: aexp, RefreshToken: refresh, RefreshTokenExpiry: rexp}, nil
}

// Issue opens a new session for a freshly authenticated account.
func (s *SessionService) Issue(ctx context.Context, accountID int32) (TokenPair, string, error) {
	sid := uuid.NewString()
	if err := s.Store.Create(ctx, accountID, sid, s.JWT.RefreshTTL); err != nil {
		return TokenPair{}, "", err
	}
	pair, err := s.pair(accountID, sid)
	if err != nil {
		_ = s.Store.Delete(ctx, accountID, sid)
		return TokenPair{}, "", err
	}
	return pair, sid, nil
}

// Validate resolves an access token to a live session.
func (s *SessionService) Validate(ctx context.Context, accessToken string) (int32, string, error) {
	claims, err := s.JWT.ParseAccessToken(accessToken)
	if err != nil {
		return 0, "", ErrAuthFailed
	}
	return s.live(ctx, claims)
}

func (s *SessionService) live(ctx context.Context, claims *helpers.Claims) (int32, string, error) {
	id, err := claims.AccountID()
	if err != nil {
		return 0, "", ErrAuthFailed
	}
	ok, err := s.Store.Exists(ctx, id, claims.SessionID)
	if err != nil {
		return 0, "", err
	}
	if !ok {
		return 0, "", ErrAuthFailed
	}
	return id, claims.SessionID, nil
}

// Refresh rotates the session id and returns a new pair.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (TokenPair, int32, error) {
	claims, err := s.JWT.ParseRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, 0, ErrAuthFailed
	}
	id, sid, err := s.live(ctx, claims)
	if err != nil {
		return TokenPair{}, 0, err
	}
	if err := s.Store.Delete(ctx, id, sid); err != nil {
		return TokenPair{}, 0, err
	}
	pair, _, err := s.Issue(ctx, id)
	return pair, id, err
}

// Revoke ends one session.
func (s *SessionService) Revoke(ctx context.Context, accountID int32, sid string) error {
	return s.Store.Delete(ctx, accountID, sid)
}

func (s *SessionService) InvalidateSessions(ctx context.Context, accountID int32, exceptID string) error {
	return s.Store.InvalidateSessions(ctx, accountID, exceptID)
}
