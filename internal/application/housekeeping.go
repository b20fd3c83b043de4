package application

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-guard/config"
	"github.com/oksasatya/account-guard/internal/domain/entity"
	repo "github.com/oksasatya/account-guard/internal/domain/repository"
)

type SweepStats struct {
	ExpiredAccounts      int
	ExpiredPendingEmails int
	ExpiredResetCodes    int
}

// Housekeeper expires stale registrations, pending emails and reset codes.
type Housekeeper struct {
	Store  repo.AccountStore
	Cfg    *config.Config
	Logger *logrus.Logger
	Now    func() time.Time
}

func NewHousekeeper(store repo.AccountStore, cfg *config.Config, logger *logrus.Logger) *Housekeeper {
	return &Housekeeper{Store: store, Cfg: cfg, Logger: logger, Now: time.Now}
}

func (h *Housekeeper) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Run is the periodic entry point. Passes stop early once ctx is done.
func (h *Housekeeper) Run(ctx context.Context) error {
	st, err := h.Sweep(ctx)
	metricSweeps.Add(1)
	metricExpiredAccounts.Add(int64(st.ExpiredAccounts))
	metricExpiredPending.Add(int64(st.ExpiredPendingEmails))
	metricExpiredResets.Add(int64(st.ExpiredResetCodes))
	h.Logger.WithFields(logrus.Fields{
		"expired_accounts":       st.ExpiredAccounts,
		"expired_pending_emails": st.ExpiredPendingEmails,
		"expired_reset_codes":    st.ExpiredResetCodes,
	}).Debug("account housekeeping finished")
	return err
}

// Sweep runs the three passes in order.
func (h *Housekeeper) Sweep(ctx context.Context) (SweepStats, error) {
	var st SweepStats
	now := h.now()

	st.ExpiredAccounts = h.expireAccounts(now)
	if err := ctx.Err(); err != nil {
		return st, err
	}
	st.ExpiredPendingEmails = h.expirePendingEmails(now)
	if err := ctx.Err(); err != nil {
		return st, err
	}
	st.ExpiredResetCodes = h.expireResetCodes(now)
	return st, nil
}

// expireAccounts retires registrations never activated in time. The record
// stays reachable by id; only its email key goes, and only if the key still
// points at it.
func (h *Housekeeper) expireAccounts(now time.Time) int {
	n := 0
	h.Store.RangeAccounts(func(a *entity.Account) bool {
		a.Lock()
		defer a.Unlock()
		if a.State != entity.NotActivated || now.Sub(a.EmailCodeUpdated) < h.Cfg.PendingAccountTTL {
			return true
		}
		h.Store.RemoveEmail(entity.NormalizeEmail(a.Email), a)
		a.EmailCode = ""
		h.Store.MarkExpired(a)
		n++
		return true
	})
	return n
}

// expirePendingEmails walks the email index so a pending key is released
// together with the pending state. A pending email owned by another account
// has no code and no key of its own; it is cleared when any key of this
// account is visited.
func (h *Housekeeper) expirePendingEmails(now time.Time) int {
	n := 0
	h.Store.RangeEmails(func(key string, a *entity.Account) bool {
		a.Lock()
		defer a.Unlock()
		if a.PendingEmail == "" || now.Sub(a.EmailCodeUpdated) < h.Cfg.PendingEmailTTL {
			return true
		}
		switch {
		case key == entity.NormalizeEmail(a.PendingEmail):
			a.PendingEmail = ""
			a.EmailCode = ""
			a.EmailCodeUpdated = time.Time{}
			h.Store.RemoveEmail(key, a)
			n++
		case a.EmailCode == "":
			a.PendingEmail = ""
			a.EmailCodeUpdated = time.Time{}
			n++
		}
		return true
	})
	return n
}

func (h *Housekeeper) expireResetCodes(now time.Time) int {
	n := 0
	h.Store.RangeAccounts(func(a *entity.Account) bool {
		a.Lock()
		defer a.Unlock()
		if a.ResetCode != "" && now.Sub(a.ResetCodeUpdated) >= h.Cfg.ResetCodeTTL {
			a.ResetCode = ""
			a.ResetCodeUpdated = time.Time{}
			n++
		}
		return true
	})
	return n
}
