package memory

import (
	"net/netip"
	"sync"

	"github.com/oksasatya/account-guard/internal/domain/entity"
	"github.com/oksasatya/account-guard/internal/domain/repository"
)

// TrackerStore maps source addresses to failed-authentication trackers.
type TrackerStore struct {
	m sync.Map // netip.Addr -> *entity.AuthTracker
}

func NewTrackerStore() *TrackerStore {
	return &TrackerStore{}
}

func (s *TrackerStore) GetOrCreate(addr netip.Addr) *entity.AuthTracker {
	if v, ok := s.m.Load(addr); ok {
		return v.(*entity.AuthTracker)
	}
	v, _ := s.m.LoadOrStore(addr, entity.NewAuthTracker(addr))
	return v.(*entity.AuthTracker)
}

func (s *TrackerStore) Delete(addr netip.Addr, expected *entity.AuthTracker) bool {
	return s.m.CompareAndDelete(addr, expected)
}

func (s *TrackerStore) Range(fn func(t *entity.AuthTracker) bool) {
	s.m.Range(func(_, v any) bool {
		return fn(v.(*entity.AuthTracker))
	})
}

func (s *TrackerStore) Len() int {
	n := 0
	s.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (s *TrackerStore) Restore(trackers []*entity.AuthTracker) {
	s.m.Clear()
	for _, t := range trackers {
		s.m.Store(t.Address, t)
	}
}

var _ repository.AuthTrackerStore = (*TrackerStore)(nil)
