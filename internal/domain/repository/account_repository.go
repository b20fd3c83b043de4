package repository

import (
	"context"
	"net/netip"
	"time"

	"github.com/oksasatya/account-guard/internal/domain/entity"
)

// AccountStore holds every account by id and by normalized email.
// All methods are safe for concurrent use; none of them validate input.
type AccountStore interface {
	// NextID allocates the next account id.
	NextID() int32
	// LastID is the most recently allocated id.
	LastID() int32
	// Insert adds the account to the id index.
	Insert(a *entity.Account)
	// Remove drops id from the id index if it still maps to expected.
	Remove(id int32, expected *entity.Account) bool
	GetByID(id int32) *entity.Account
	GetByEmail(normalized string) *entity.Account
	// PutEmail maps normalized to a unless a mapping exists. It returns the
	// account the key maps to afterwards and whether this call inserted it.
	PutEmail(normalized string, a *entity.Account) (*entity.Account, bool)
	// RemoveEmail drops normalized only if it still maps to expected.
	RemoveEmail(normalized string, expected *entity.Account) bool
	// MarkExpired moves a to Expired; the caller holds a's lock.
	MarkExpired(a *entity.Account)
	// ActiveCount is the number of indexed accounts that are not Expired.
	ActiveCount() int
	RangeAccounts(fn func(a *entity.Account) bool)
	RangeEmails(fn func(normalized string, a *entity.Account) bool)
	// Restore replaces the whole state. Used only when loading a checkpoint.
	Restore(accounts []*entity.Account, emails map[string]*entity.Account, lastID int32)
}

// AuthTrackerStore maps network addresses to failed-authentication trackers.
type AuthTrackerStore interface {
	GetOrCreate(addr netip.Addr) *entity.AuthTracker
	// Delete removes addr only if it still maps to expected.
	Delete(addr netip.Addr, expected *entity.AuthTracker) bool
	Range(fn func(t *entity.AuthTracker) bool)
	Len() int
	Restore(trackers []*entity.AuthTracker)
}

// InterestEntry is a sign-up attempt turned away because the service was full.
type InterestEntry struct {
	Email     string
	Address   netip.Addr
	CreatedAt time.Time
}

// InterestLog persists sign-up interest for later notification.
type InterestLog interface {
	Record(ctx context.Context, e InterestEntry) error
}

// SessionStore tracks live sign-in sessions per account.
type SessionStore interface {
	Create(ctx context.Context, accountID int32, sessionID string, ttl time.Duration) error
	Exists(ctx context.Context, accountID int32, sessionID string) (bool, error)
	Delete(ctx context.Context, accountID int32, sessionID string) error
	// InvalidateSessions drops every session of the account except exceptID (if non-empty).
	InvalidateSessions(ctx context.Context, accountID int32, exceptID string) error
}
