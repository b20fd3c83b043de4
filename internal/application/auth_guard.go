package application

import (
	"net/netip"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-guard/config"
	"github.com/oksasatya/account-guard/internal/domain/entity"
	repo "github.com/oksasatya/account-guard/internal/domain/repository"
)

type Verdict int

const (
	VerdictProceed Verdict = iota
	VerdictFailed
	VerdictLockedOut
)

// Err converts a verdict into the error returned by the guarded operation.
func (v Verdict) Err() error {
	switch v {
	case VerdictProceed:
		return nil
	case VerdictLockedOut:
		return ErrTooManyAttempts
	default:
		return ErrAuthFailed
	}
}

// LockoutScope names the threshold that tripped.
type LockoutScope string

const (
	LockoutAddress LockoutScope = "address"
	LockoutEmail   LockoutScope = "email"
)

// LockoutEvent is emitted once per threshold crossing.
type LockoutEvent struct {
	Address         netip.Addr
	Email           string
	Scope           LockoutScope
	AddressFailures int32
	EmailFailures   int32
	Time            time.Time
}

// LockoutObserver receives lockout events outside any lock.
type LockoutObserver interface {
	Lockout(ev LockoutEvent)
}

type GuardConfig struct {
	AddressThreshold int32
	EmailThreshold   int32
	AddressTTL       time.Duration
	EmailTTL         time.Duration
}

func GuardConfigFrom(cfg *config.Config) GuardConfig {
	return GuardConfig{
		AddressThreshold: int32(cfg.GuardAddressThreshold),
		EmailThreshold:   int32(cfg.GuardEmailThreshold),
		AddressTTL:       cfg.GuardAddressTTL,
		EmailTTL:         cfg.GuardEmailTTL,
	}
}

// AuthGuard throttles authentication attempts per source address and per
// (address, email) pair.
type AuthGuard struct {
	Trackers repo.AuthTrackerStore
	Cfg      GuardConfig
	Observer LockoutObserver
	Logger   *logrus.Logger
	Now      func() time.Time
}

func NewAuthGuard(trackers repo.AuthTrackerStore, cfg GuardConfig, observer LockoutObserver, logger *logrus.Logger) *AuthGuard {
	return &AuthGuard{Trackers: trackers, Cfg: cfg, Observer: observer, Logger: logger, Now: time.Now}
}

func (g *AuthGuard) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// CheckAndRecord runs attempt unless addr or (addr, email) is locked out.
// attempt runs under the tracker lock, so it may lock an account but must
// not touch the guard.
func (g *AuthGuard) CheckAndRecord(addr netip.Addr, email string, attempt func() bool) Verdict {
	for {
		t := g.Trackers.GetOrCreate(addr)
		t.Lock()
		if t.Retired() {
			// swept between lookup and lock
			t.Unlock()
			continue
		}
		v, ev := g.checkLocked(t, email, attempt)
		t.Unlock()

		if ev != nil {
			metricLockouts.Add(1)
			if g.Logger != nil {
				g.Logger.WithFields(logrus.Fields{
					"address":          ev.Address.String(),
					"scope":            ev.Scope,
					"address_failures": ev.AddressFailures,
					"email_failures":   ev.EmailFailures,
				}).Warn("authentication lockout")
			}
			if g.Observer != nil {
				g.Observer.Lockout(*ev)
			}
		}
		return v
	}
}

func (g *AuthGuard) checkLocked(t *entity.AuthTracker, email string, attempt func() bool) (Verdict, *LockoutEvent) {
	ef := t.PerEmail[email]
	if t.TotalFailures >= g.Cfg.AddressThreshold || (ef != nil && ef.Count >= g.Cfg.EmailThreshold) {
		return VerdictLockedOut, nil
	}

	if attempt() {
		delete(t.PerEmail, email)
		return VerdictProceed, nil
	}

	now := g.now()
	t.TotalFailures++
	if ef == nil {
		ef = &entity.EmailFailures{}
		t.PerEmail[email] = ef
	}
	ef.Count++
	ef.LastEvent = now

	var scope LockoutScope
	switch {
	case t.TotalFailures >= g.Cfg.AddressThreshold:
		scope = LockoutAddress
	case ef.Count >= g.Cfg.EmailThreshold:
		scope = LockoutEmail
	default:
		return VerdictFailed, nil
	}
	t.LastLockout = now
	return VerdictLockedOut, &LockoutEvent{
		Address:         t.Address,
		Email:           email,
		Scope:           scope,
		AddressFailures: t.TotalFailures,
		EmailFailures:   ef.Count,
		Time:            now,
	}
}

// Sweep ages out per-email counters, resets address counters whose lockout
// window has passed and drops trackers left empty. It returns the number of
// trackers removed.
func (g *AuthGuard) Sweep() int {
	now := g.now()
	removed := 0
	g.Trackers.Range(func(t *entity.AuthTracker) bool {
		t.Lock()
		defer t.Unlock()
		if t.Retired() {
			return true
		}
		for email, ef := range t.PerEmail {
			if now.Sub(ef.LastEvent) >= g.Cfg.EmailTTL {
				delete(t.PerEmail, email)
			}
		}
		if t.LastLockout.IsZero() || now.Sub(t.LastLockout) >= g.Cfg.AddressTTL {
			t.TotalFailures = 0
		}
		if t.Empty() {
			t.Retire()
			g.Trackers.Delete(t.Address, t)
			removed++
		}
		return true
	})
	metricTrackersRemoved.Add(int64(removed))
	return removed
}

// Tracked reports how many addresses currently have a tracker.
func (g *AuthGuard) Tracked() int { return g.Trackers.Len() }
