// Package memory holds the in-process concurrent indexes behind the account
// lifecycle and the failed-authentication guard.
package memory

import (
	"sync"
	"sync/atomic"

	"github.com/oksasatya/account-guard/internal/domain/entity"
	"github.com/oksasatya/account-guard/internal/domain/repository"
)

// AccountStore indexes accounts by id and by normalized email.
// Insert-if-absent on the email index is what resolves concurrent sign-ups.
type AccountStore struct {
	byID    sync.Map // int32 -> *entity.Account
	byEmail sync.Map // string -> *entity.Account
	seq     atomic.Int32
	active  atomic.Int64
}

func NewAccountStore() *AccountStore {
	return &AccountStore{}
}

func (s *AccountStore) NextID() int32 {
	return s.seq.Add(1)
}

func (s *AccountStore) LastID() int32 {
	return s.seq.Load()
}

func (s *AccountStore) Insert(a *entity.Account) {
	if _, loaded := s.byID.LoadOrStore(a.ID, a); !loaded {
		s.active.Add(1)
	}
}

// Remove rolls back an Insert whose email claim lost a race.
func (s *AccountStore) Remove(id int32, expected *entity.Account) bool {
	if s.byID.CompareAndDelete(id, expected) {
		s.active.Add(-1)
		return true
	}
	return false
}

func (s *AccountStore) GetByID(id int32) *entity.Account {
	if v, ok := s.byID.Load(id); ok {
		return v.(*entity.Account)
	}
	return nil
}

func (s *AccountStore) GetByEmail(normalized string) *entity.Account {
	if v, ok := s.byEmail.Load(normalized); ok {
		return v.(*entity.Account)
	}
	return nil
}

func (s *AccountStore) PutEmail(normalized string, a *entity.Account) (*entity.Account, bool) {
	v, loaded := s.byEmail.LoadOrStore(normalized, a)
	return v.(*entity.Account), !loaded
}

func (s *AccountStore) RemoveEmail(normalized string, expected *entity.Account) bool {
	return s.byEmail.CompareAndDelete(normalized, expected)
}

func (s *AccountStore) MarkExpired(a *entity.Account) {
	if a.State == entity.Expired {
		return
	}
	a.State = entity.Expired
	s.active.Add(-1)
}

func (s *AccountStore) ActiveCount() int {
	return int(s.active.Load())
}

func (s *AccountStore) RangeAccounts(fn func(a *entity.Account) bool) {
	s.byID.Range(func(_, v any) bool {
		return fn(v.(*entity.Account))
	})
}

func (s *AccountStore) RangeEmails(fn func(normalized string, a *entity.Account) bool) {
	s.byEmail.Range(func(k, v any) bool {
		return fn(k.(string), v.(*entity.Account))
	})
}

// Restore is not safe against concurrent lifecycle traffic; call it before serving.
func (s *AccountStore) Restore(accounts []*entity.Account, emails map[string]*entity.Account, lastID int32) {
	s.byID.Clear()
	s.byEmail.Clear()

	var active int64
	maxID := int32(0)
	for _, a := range accounts {
		s.byID.Store(a.ID, a)
		if a.State != entity.Expired {
			active++
		}
		if a.ID > maxID {
			maxID = a.ID
		}
	}
	for k, a := range emails {
		s.byEmail.Store(k, a)
	}
	if lastID < maxID {
		lastID = maxID
	}
	s.active.Store(active)
	s.seq.Store(lastID)
}

var _ repository.AccountStore = (*AccountStore)(nil)
