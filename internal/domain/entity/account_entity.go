package entity

import (
	"net/netip"
	"strings"
	"sync"
	"time"
)

// PasswordHashLen is the length of the client-side password hash the server stores verbatim.
const PasswordHashLen = 32

type Gender byte

const (
	GenderUnspecified Gender = iota
	GenderMale
	GenderFemale
	GenderOther
)

// ParseGender maps the wire names used by the HTTP layer.
func ParseGender(s string) (Gender, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unspecified":
		return GenderUnspecified, true
	case "male":
		return GenderMale, true
	case "female":
		return GenderFemale, true
	case "other":
		return GenderOther, true
	}
	return GenderUnspecified, false
}

func (g Gender) String() string {
	switch g {
	case GenderMale:
		return "male"
	case GenderFemale:
		return "female"
	case GenderOther:
		return "other"
	default:
		return "unspecified"
	}
}

type ActivationState byte

const (
	NotActivated ActivationState = iota
	Activated
	Expired
)

func (s ActivationState) String() string {
	switch s {
	case NotActivated:
		return "not_activated"
	case Activated:
		return "activated"
	case Expired:
		return "expired"
	}
	return "unknown"
}

type MessageType byte

const (
	MessageNone MessageType = iota
	MessageInfo
	MessageWarning
)

// Message is the single pending inbox entry shown to the account holder.
type Message struct {
	Type MessageType
	Text string
	Time time.Time
}

// Account is the aggregate root for the account domain.
//
// Every read or write of the mutable fields requires holding the account lock.
// A NotActivated account has a nil PasswordHash. PendingEmail may name an address
// that is the current email of another account; in that case EmailCode is empty
// and the change can never be confirmed.
type Account struct {
	sync.Mutex

	ID        int32
	CreatedAt time.Time

	Email            string
	PendingEmail     string
	EmailCode        string
	EmailCodeUpdated time.Time

	PasswordHash     []byte
	ResetCode        string
	ResetCodeUpdated time.Time

	Gender      Gender
	DateOfBirth time.Time
	EmailAlerts bool

	LastAddress netip.Addr
	Message     Message

	State ActivationState
}

// NewAccount returns an unindexed NotActivated account.
func NewAccount(id int32, now time.Time) *Account {
	return &Account{ID: id, CreatedAt: now, State: NotActivated}
}

// AccountView is a lock-free copy of an account for presentation.
type AccountView struct {
	ID           int32
	Email        string
	PendingEmail string
	Gender       Gender
	DateOfBirth  time.Time
	EmailAlerts  bool
	Message      Message
	State        ActivationState
	CreatedAt    time.Time
}

// View copies the presentable fields under the account lock.
func (a *Account) View() AccountView {
	a.Lock()
	defer a.Unlock()
	return AccountView{
		ID:           a.ID,
		Email:        a.Email,
		PendingEmail: a.PendingEmail,
		Gender:       a.Gender,
		DateOfBirth:  a.DateOfBirth,
		EmailAlerts:  a.EmailAlerts,
		Message:      a.Message,
		State:        a.State,
		CreatedAt:    a.CreatedAt,
	}
}

// NormalizeEmail returns the index key for an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
