package entity

import (
	"net/netip"
	"sync"
	"time"
)

// EmailFailures counts failed attempts against one email from one address.
type EmailFailures struct {
	Count     int32
	LastEvent time.Time
}

// AuthTracker records failed authentication attempts from one network address.
// Fields are guarded by the embedded mutex.
type AuthTracker struct {
	sync.Mutex

	Address       netip.Addr
	TotalFailures int32
	LastLockout   time.Time // zero when never locked out
	PerEmail      map[string]*EmailFailures

	retired bool
}

func NewAuthTracker(addr netip.Addr) *AuthTracker {
	return &AuthTracker{Address: addr, PerEmail: map[string]*EmailFailures{}}
}

// Empty reports whether housekeeping may drop the tracker.
func (t *AuthTracker) Empty() bool {
	return t.TotalFailures == 0 && len(t.PerEmail) == 0
}

// Retire marks a tracker removed from its map; holders must look it up again.
func (t *AuthTracker) Retire() { t.retired = true }

func (t *AuthTracker) Retired() bool { return t.retired }
