package application

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-guard/config"
	"github.com/oksasatya/account-guard/internal/domain/entity"
	repo "github.com/oksasatya/account-guard/internal/domain/repository"
	"github.com/oksasatya/account-guard/pkg/helpers"
	"github.com/oksasatya/account-guard/pkg/mailer"
	mailtpl "github.com/oksasatya/account-guard/pkg/mailer/templates"
	"github.com/oksasatya/account-guard/pkg/validation"
)

// Notifier accepts outbound notices without blocking.
type Notifier interface {
	Enqueue(job mailer.EmailJob) bool
}

// SessionInvalidator ends sign-in sessions after credential changes.
type SessionInvalidator interface {
	InvalidateSessions(ctx context.Context, accountID int32, exceptID string) error
}

type SignUpResult int

const (
	SignUpSuccess SignUpResult = iota
	SignUpEmailAlreadyExists
	SignUpCapacityReached
)

func (r SignUpResult) String() string {
	switch r {
	case SignUpSuccess:
		return "success"
	case SignUpEmailAlreadyExists:
		return "email_already_exists"
	default:
		return "capacity_reached"
	}
}

type SignUpInput struct {
	Email       string
	Gender      entity.Gender
	DateOfBirth time.Time
	EmailAlerts bool
	Address     netip.Addr
}

type ProfileInput struct {
	Gender      entity.Gender
	DateOfBirth time.Time
	EmailAlerts bool
}

// AccountService implements the account lifecycle. Every field access on an
// account happens under that account's lock; notices are queued after the
// lock is released.
type AccountService struct {
	Store    repo.AccountStore
	Guard    *AuthGuard
	Mail     Notifier
	Interest repo.InterestLog
	Sessions SessionInvalidator
	Logger   *logrus.Logger
	Cfg      *config.Config
	Now      func() time.Time

	background *helpers.TaskQueue
}

func NewAccountService(store repo.AccountStore, guard *AuthGuard, mail Notifier, interest repo.InterestLog, sessions SessionInvalidator, cfg *config.Config, logger *logrus.Logger) *AccountService {
	return &AccountService{
		Store:      store,
		Guard:      guard,
		Mail:       mail,
		Interest:   interest,
		Sessions:   sessions,
		Logger:     logger,
		Cfg:        cfg,
		Now:        time.Now,
		background: helpers.NewTaskQueue("account-background", 256, logger),
	}
}

// Start launches the worker for interest logging.
func (s *AccountService) Start() { s.background.Start() }

func (s *AccountService) Stop(ctx context.Context) error { return s.background.Stop(ctx) }

func (s *AccountService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AccountService) validateDateOfBirth(dob time.Time) error {
	now := s.now()
	if dob.IsZero() || dob.After(now) || dob.Before(now.AddDate(-s.Cfg.MaxAgeYears, 0, 0)) {
		return ErrInvalidDateOfBirth
	}
	return nil
}

func validateEmail(email string) error {
	if err := validation.Email(email); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}
	return nil
}

func validatePasswordHash(h []byte) error {
	if len(h) != entity.PasswordHashLen {
		return ErrInvalidPasswordHash
	}
	return nil
}

func validateCode(code string) error {
	if len(code) != helpers.ConfirmationCodeLen {
		return ErrInvalidCode
	}
	return nil
}

func equalCode(stored, given string) bool {
	return stored != "" && subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}

func equalHash(stored, given []byte) bool {
	return len(stored) == entity.PasswordHashLen && subtle.ConstantTimeCompare(stored, given) == 1
}

func cloneHash(h []byte) []byte {
	out := make([]byte, len(h))
	copy(out, h)
	return out
}

// notice builds a templated job for recipient. Codes only ever go to the
// address the holder already controls.
func (s *AccountService) notice(typ, recipient string, addr netip.Addr, opts ...mailtpl.Option) *mailer.EmailJob {
	opts = append(opts, mailtpl.WithTime(s.now()))
	if addr.IsValid() {
		opts = append(opts, mailtpl.WithIP(addr.String()))
	}
	return &mailer.EmailJob{
		To:       recipient,
		Template: mailtpl.Universal,
		Data:     mailtpl.NewNoticeData(s.Cfg, typ, recipient, opts...),
	}
}

func (s *AccountService) send(job *mailer.EmailJob) {
	if job == nil || s.Mail == nil {
		return
	}
	if !s.Mail.Enqueue(*job) {
		metricNoticesDropped.Add(1)
		s.Logger.WithField("type", job.Data["Type"]).Warn("notice dropped")
	}
}

// SignUp registers email or refreshes a pending registration for it.
// Success and EmailAlreadyExists must look the same to a remote caller.
func (s *AccountService) SignUp(in SignUpInput) (SignUpResult, *entity.Account, error) {
	email := strings.TrimSpace(in.Email)
	if err := validateEmail(email); err != nil {
		return 0, nil, err
	}
	if err := s.validateDateOfBirth(in.DateOfBirth); err != nil {
		return 0, nil, err
	}

	if limit := s.Cfg.AccountCapacity; limit > 0 && s.Store.ActiveCount() >= limit {
		metricSignUpsRejected.Add(1)
		s.Logger.WithField("active", s.Store.ActiveCount()).Warn("account capacity reached")
		if in.EmailAlerts {
			s.recordInterest(email, in.Address)
		}
		return SignUpCapacityReached, nil, nil
	}

	key := entity.NormalizeEmail(email)
	for {
		code, err := helpers.GenConfirmationCode()
		if err != nil {
			return 0, nil, err
		}
		now := s.now()

		existing := s.Store.GetByEmail(key)
		if existing == nil {
			a := entity.NewAccount(s.Store.NextID(), now)
			a.Lock()
			a.Email = email
			a.EmailCode = code
			a.EmailCodeUpdated = now
			a.Gender = in.Gender
			a.DateOfBirth = in.DateOfBirth
			a.EmailAlerts = in.EmailAlerts
			a.LastAddress = in.Address
			a.Unlock()

			s.Store.Insert(a)
			if _, inserted := s.Store.PutEmail(key, a); inserted {
				metricSignUps.Add(1)
				s.send(s.notice(mailtpl.ActivateAccount, email, in.Address,
					mailtpl.WithCode(code), mailtpl.WithExpiresAt(now.Add(s.Cfg.PendingAccountTTL))))
				return SignUpSuccess, a, nil
			}
			// a concurrent sign-up claimed the address first
			s.Store.Remove(a.ID, a)
			continue
		}

		existing.Lock()
		var job *mailer.EmailJob
		switch existing.State {
		case entity.Expired:
			existing.Unlock()
			continue
		case entity.NotActivated:
			// whoever controls the mailbox may take over an unconfirmed registration
			existing.EmailCode = code
			existing.EmailCodeUpdated = now
			existing.Gender = in.Gender
			existing.DateOfBirth = in.DateOfBirth
			existing.EmailAlerts = in.EmailAlerts
			existing.LastAddress = in.Address
			job = s.notice(mailtpl.ActivateAccount, existing.Email, in.Address,
				mailtpl.WithCode(code), mailtpl.WithExpiresAt(now.Add(s.Cfg.PendingAccountTTL)))
		default:
			typ := mailtpl.AccountExists
			if entity.NormalizeEmail(existing.Email) != key {
				typ = mailtpl.EmailSuperseded
			}
			job = s.notice(typ, email, in.Address)
		}
		existing.Unlock()

		s.send(job)
		return SignUpEmailAlreadyExists, existing, nil
	}
}

func (s *AccountService) recordInterest(email string, addr netip.Addr) {
	if s.Interest == nil {
		return
	}
	entry := repo.InterestEntry{Email: email, Address: addr, CreatedAt: s.now()}
	s.background.Submit(func(ctx context.Context) {
		if err := s.Interest.Record(ctx, entry); err != nil {
			s.Logger.WithError(err).Error("record sign-up interest failed")
		}
	})
}

// Activate confirms the sign-up code and installs the first password hash.
func (s *AccountService) Activate(email, code string, passwordHash []byte, addr netip.Addr) (*entity.Account, error) {
	if err := validatePasswordHash(passwordHash); err != nil {
		return nil, err
	}
	if err := validateCode(code); err != nil {
		return nil, err
	}
	key := entity.NormalizeEmail(email)

	var activated *entity.Account
	v := s.Guard.CheckAndRecord(addr, key, func() bool {
		a := s.Store.GetByEmail(key)
		if a == nil {
			return false
		}
		a.Lock()
		defer a.Unlock()
		if a.State != entity.NotActivated || !equalCode(a.EmailCode, code) {
			return false
		}
		a.EmailCode = ""
		a.PasswordHash = cloneHash(passwordHash)
		a.LastAddress = addr
		a.State = entity.Activated
		activated = a
		return true
	})
	if err := v.Err(); err != nil {
		metricAuthFailures.Add(1)
		return nil, err
	}
	metricActivations.Add(1)
	s.Logger.WithField("account_id", activated.ID).Info("account activated")
	return activated, nil
}

// SignIn authenticates with the current email only.
func (s *AccountService) SignIn(email string, passwordHash []byte, addr netip.Addr) (*entity.Account, error) {
	if err := validatePasswordHash(passwordHash); err != nil {
		return nil, err
	}
	key := entity.NormalizeEmail(email)

	var signedIn *entity.Account
	v := s.Guard.CheckAndRecord(addr, key, func() bool {
		a := s.Store.GetByEmail(key)
		if a == nil {
			return false
		}
		a.Lock()
		defer a.Unlock()
		if a.State != entity.Activated || entity.NormalizeEmail(a.Email) != key || !equalHash(a.PasswordHash, passwordHash) {
			return false
		}
		a.LastAddress = addr
		signedIn = a
		return true
	})
	if err := v.Err(); err != nil {
		metricAuthFailures.Add(1)
		return nil, err
	}
	metricSignIns.Add(1)
	return signedIn, nil
}

// RequestPasswordReset sends whichever notice fits the address. The caller
// learns nothing from the result.
func (s *AccountService) RequestPasswordReset(email string, addr netip.Addr) error {
	email = strings.TrimSpace(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	key := entity.NormalizeEmail(email)

	a := s.Store.GetByEmail(key)
	if a == nil {
		s.send(s.notice(mailtpl.ResetUnknown, email, addr))
		return nil
	}

	code, err := helpers.GenConfirmationCode()
	if err != nil {
		return err
	}
	now := s.now()

	var job *mailer.EmailJob
	a.Lock()
	switch {
	case a.State == entity.Expired:
		job = s.notice(mailtpl.ResetUnknown, email, addr)
	case a.State == entity.NotActivated:
		job = s.notice(mailtpl.ResetNotActivated, a.Email, addr,
			mailtpl.WithCode(a.EmailCode), mailtpl.WithExpiresAt(a.EmailCodeUpdated.Add(s.Cfg.PendingAccountTTL)))
	case entity.NormalizeEmail(a.Email) != key:
		job = s.notice(mailtpl.ResetWrongEmail, email, addr)
	case a.ResetCode != "" && now.Sub(a.ResetCodeUpdated) < s.Cfg.ResetCodeTTL:
		// a live code is resent, never replaced
		job = s.notice(mailtpl.ResetPassword, a.Email, addr,
			mailtpl.WithCode(a.ResetCode), mailtpl.WithExpiresAt(a.ResetCodeUpdated.Add(s.Cfg.ResetCodeTTL)))
	default:
		a.ResetCode = code
		a.ResetCodeUpdated = now
		job = s.notice(mailtpl.ResetPassword, a.Email, addr,
			mailtpl.WithCode(code), mailtpl.WithExpiresAt(now.Add(s.Cfg.ResetCodeTTL)))
	}
	a.Unlock()

	s.send(job)
	return nil
}

// ResetPassword installs a new hash using a reset code and ends every session.
func (s *AccountService) ResetPassword(ctx context.Context, email, code string, newHash []byte, addr netip.Addr) (*entity.Account, error) {
	if err := validatePasswordHash(newHash); err != nil {
		return nil, err
	}
	if err := validateCode(code); err != nil {
		return nil, err
	}
	key := entity.NormalizeEmail(email)

	var reset *entity.Account
	v := s.Guard.CheckAndRecord(addr, key, func() bool {
		a := s.Store.GetByEmail(key)
		if a == nil {
			return false
		}
		a.Lock()
		defer a.Unlock()
		now := s.now()
		if a.State != entity.Activated || entity.NormalizeEmail(a.Email) != key ||
			now.Sub(a.ResetCodeUpdated) >= s.Cfg.ResetCodeTTL || !equalCode(a.ResetCode, code) {
			return false
		}
		a.ResetCode = ""
		a.PasswordHash = cloneHash(newHash)
		a.LastAddress = addr
		a.Message = entity.Message{Type: entity.MessageWarning, Text: "Your password was reset.", Time: now}
		reset = a
		return true
	})
	if err := v.Err(); err != nil {
		metricAuthFailures.Add(1)
		return nil, err
	}
	metricPasswordResets.Add(1)
	s.invalidateSessions(ctx, reset.ID, "")
	return reset, nil
}

func (s *AccountService) invalidateSessions(ctx context.Context, accountID int32, except string) {
	if s.Sessions == nil {
		return
	}
	if err := s.Sessions.InvalidateSessions(ctx, accountID, except); err != nil {
		s.Logger.WithError(err).WithField("account_id", accountID).Error("invalidate sessions failed")
	}
}

func (s *AccountService) activatedAccount(id int32) (*entity.Account, error) {
	a := s.Store.GetByID(id)
	if a == nil {
		return nil, ErrAuthFailed
	}
	return a, nil
}

// UpdateEmail starts an email change for a signed-in account. If another
// account already owns newEmail the change is recorded but no code is ever
// issued, so it cannot complete and expires on its own.
func (s *AccountService) UpdateEmail(accountID int32, newEmail string, addr netip.Addr) error {
	newEmail = strings.TrimSpace(newEmail)
	if err := validateEmail(newEmail); err != nil {
		return err
	}
	a, err := s.activatedAccount(accountID)
	if err != nil {
		return err
	}
	code, err := helpers.GenConfirmationCode()
	if err != nil {
		return err
	}
	newKey := entity.NormalizeEmail(newEmail)
	now := s.now()

	var job *mailer.EmailJob
	a.Lock()
	if a.State != entity.Activated {
		a.Unlock()
		return ErrNotActivated
	}

	if a.PendingEmail != "" {
		pendingKey := entity.NormalizeEmail(a.PendingEmail)
		if pendingKey == newKey {
			a.PendingEmail = newEmail
			a.Unlock()
			return nil
		}
		// a pending address owned by someone else was never indexed here
		s.Store.RemoveEmail(pendingKey, a)
		a.PendingEmail = ""
		a.EmailCode = ""
		a.EmailCodeUpdated = time.Time{}
	}

	if entity.NormalizeEmail(a.Email) == newKey {
		a.Email = newEmail
		a.Unlock()
		return nil
	}

	owner, _ := s.Store.PutEmail(newKey, a)
	a.PendingEmail = newEmail
	a.EmailCodeUpdated = now
	if owner == a {
		a.EmailCode = code
		job = s.notice(mailtpl.ConfirmNewEmail, newEmail, addr,
			mailtpl.WithCode(code), mailtpl.WithExpiresAt(now.Add(s.Cfg.PendingEmailTTL)))
	} else {
		a.EmailCode = ""
	}
	a.Unlock()

	s.send(job)
	return nil
}

// ConfirmNewEmail promotes the pending email. The old hash proves the caller
// still knows the password; newHash replaces it because hashes are salted
// by email on the client. Other sessions are ended.
func (s *AccountService) ConfirmNewEmail(ctx context.Context, accountID int32, sessionID, code string, oldHash, newHash []byte, addr netip.Addr) error {
	if err := validatePasswordHash(oldHash); err != nil {
		return err
	}
	if err := validatePasswordHash(newHash); err != nil {
		return err
	}
	if err := validateCode(code); err != nil {
		return err
	}
	a, err := s.activatedAccount(accountID)
	if err != nil {
		return err
	}
	a.Lock()
	guardKey := entity.NormalizeEmail(a.Email)
	a.Unlock()

	v := s.Guard.CheckAndRecord(addr, guardKey, func() bool {
		a.Lock()
		defer a.Unlock()
		now := s.now()
		if a.State != entity.Activated || a.PendingEmail == "" ||
			now.Sub(a.EmailCodeUpdated) >= s.Cfg.PendingEmailTTL ||
			!equalCode(a.EmailCode, code) || !equalHash(a.PasswordHash, oldHash) {
			return false
		}
		if owner, _ := s.Store.PutEmail(entity.NormalizeEmail(a.PendingEmail), a); owner != a {
			return false
		}
		a.Email = a.PendingEmail
		a.PendingEmail = ""
		a.EmailCode = ""
		a.EmailCodeUpdated = time.Time{}
		a.PasswordHash = cloneHash(newHash)
		a.LastAddress = addr
		a.Message = entity.Message{Type: entity.MessageInfo, Text: "Your email address was changed to " + a.Email + ".", Time: now}
		return true
	})
	if err := v.Err(); err != nil {
		metricAuthFailures.Add(1)
		return err
	}
	metricEmailChanges.Add(1)
	s.invalidateSessions(ctx, accountID, sessionID)
	return nil
}

// UpdateProfile replaces the profile fields of a signed-in account.
func (s *AccountService) UpdateProfile(accountID int32, in ProfileInput) error {
	if err := s.validateDateOfBirth(in.DateOfBirth); err != nil {
		return err
	}
	a, err := s.activatedAccount(accountID)
	if err != nil {
		return err
	}
	a.Lock()
	defer a.Unlock()
	if a.State != entity.Activated {
		return ErrNotActivated
	}
	a.Gender = in.Gender
	a.DateOfBirth = in.DateOfBirth
	a.EmailAlerts = in.EmailAlerts
	return nil
}

// ClearMessage empties the inbox.
func (s *AccountService) ClearMessage(accountID int32) error {
	a, err := s.activatedAccount(accountID)
	if err != nil {
		return err
	}
	a.Lock()
	a.Message = entity.Message{}
	a.Unlock()
	return nil
}

// Profile returns a snapshot of a signed-in account.
func (s *AccountService) Profile(accountID int32) (entity.AccountView, error) {
	a, err := s.activatedAccount(accountID)
	if err != nil {
		return entity.AccountView{}, err
	}
	view := a.View()
	if view.State != entity.Activated {
		return entity.AccountView{}, ErrNotActivated
	}
	return view, nil
}
