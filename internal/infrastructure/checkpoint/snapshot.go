package checkpoint

import (
	"fmt"

	"github.com/oksasatya/account-guard/internal/domain/entity"
	repo "github.com/oksasatya/account-guard/internal/domain/repository"
)

// Capture copies the live state one record lock at a time. Records changed
// while the capture runs may be seen before or after the change.
func Capture(accounts repo.AccountStore, trackers repo.AuthTrackerStore) *Snapshot {
	s := &Snapshot{LastID: accounts.LastID(), Emails: map[string]int32{}}
	accounts.RangeAccounts(func(a *entity.Account) bool {
		a.Lock()
		s.Accounts = append(s.Accounts, copyAccount(a))
		a.Unlock()
		return true
	})
	accounts.RangeEmails(func(key string, a *entity.Account) bool {
		s.Emails[key] = a.ID
		return true
	})
	if trackers != nil {
		trackers.Range(func(t *entity.AuthTracker) bool {
			t.Lock()
			if !t.Retired() && !t.Empty() {
				s.Trackers = append(s.Trackers, copyTracker(t))
			}
			t.Unlock()
			return true
		})
	}
	return s
}

func copyAccount(a *entity.Account) *entity.Account {
	c := &entity.Account{
		ID:               a.ID,
		CreatedAt:        a.CreatedAt,
		Email:            a.Email,
		PendingEmail:     a.PendingEmail,
		EmailCode:        a.EmailCode,
		EmailCodeUpdated: a.EmailCodeUpdated,
		ResetCode:        a.ResetCode,
		ResetCodeUpdated: a.ResetCodeUpdated,
		Gender:           a.Gender,
		DateOfBirth:      a.DateOfBirth,
		EmailAlerts:      a.EmailAlerts,
		LastAddress:      a.LastAddress,
		Message:          a.Message,
		State:            a.State,
	}
	if a.PasswordHash != nil {
		c.PasswordHash = append([]byte(nil), a.PasswordHash...)
	}
	return c
}

func copyTracker(t *entity.AuthTracker) *entity.AuthTracker {
	c := entity.NewAuthTracker(t.Address)
	c.TotalFailures = t.TotalFailures
	c.LastLockout = t.LastLockout
	for email, ef := range t.PerEmail {
		c.PerEmail[email] = &entity.EmailFailures{Count: ef.Count, LastEvent: ef.LastEvent}
	}
	return c
}

// Restore replaces the live state with the snapshot. Email keys naming an
// unknown id are skipped and counted.
func (s *Snapshot) Restore(accounts repo.AccountStore, trackers repo.AuthTrackerStore) (skipped int, err error) {
	byID := make(map[int32]*entity.Account, len(s.Accounts))
	for _, a := range s.Accounts {
		if _, dup := byID[a.ID]; dup {
			return 0, fmt.Errorf("%w: duplicate account id %d", ErrCorrupt, a.ID)
		}
		byID[a.ID] = a
	}
	emails := make(map[string]*entity.Account, len(s.Emails))
	for key, id := range s.Emails {
		a, ok := byID[id]
		if !ok {
			skipped++
			continue
		}
		emails[key] = a
	}
	accounts.Restore(s.Accounts, emails, s.LastID)
	if trackers != nil {
		trackers.Restore(s.Trackers)
	}
	return skipped, nil
}

// Counts summarises a snapshot for logs and the inspect command.
type Counts struct {
	NotActivated int
	Activated    int
	Expired      int
	EmailKeys    int
	Trackers     int
}

func (s *Snapshot) Counts() Counts {
	c := Counts{EmailKeys: len(s.Emails), Trackers: len(s.Trackers)}
	for _, a := range s.Accounts {
		switch a.State {
		case entity.NotActivated:
			c.NotActivated++
		case entity.Activated:
			c.Activated++
		case entity.Expired:
			c.Expired++
		}
	}
	return c
}
