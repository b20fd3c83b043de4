package application

import (
	"bytes"
	"context"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-guard/config"
	"github.com/oksasatya/account-guard/internal/domain/entity"
	repo "github.com/oksasatya/account-guard/internal/domain/repository"
	"github.com/oksasatya/account-guard/internal/infrastructure/memory"
	"github.com/oksasatya/account-guard/pkg/mailer"
)

type recordingMail struct {
	mu   sync.Mutex
	jobs []mailer.EmailJob
	full bool
}

func (m *recordingMail) Enqueue(job mailer.EmailJob) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.full {
		return false
	}
	m.jobs = append(m.jobs, job)
	return true
}

func (m *recordingMail) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j.Data["Type"].(string))
	}
	return out
}

func (m *recordingMail) last() mailer.EmailJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[len(m.jobs)-1]
}

func (m *recordingMail) reset() {
	m.mu.Lock()
	m.jobs = nil
	m.mu.Unlock()
}

type invalidation struct {
	AccountID int32
	Except    string
}

type recordingSessions struct {
	mu    sync.Mutex
	calls []invalidation
}

func (s *recordingSessions) InvalidateSessions(_ context.Context, id int32, except string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, invalidation{id, except})
	return nil
}

type recordingInterest struct {
	mu      sync.Mutex
	entries []repo.InterestEntry
}

func (r *recordingInterest) Record(_ context.Context, e repo.InterestEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *recordingInterest) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

type recordingObserver struct {
	mu     sync.Mutex
	events []LockoutEvent
}

func (o *recordingObserver) Lockout(ev LockoutEvent) {
	o.mu.Lock()
	o.events = append(o.events, ev)
	o.mu.Unlock()
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc      *AccountService
	guard    *AuthGuard
	keeper   *Housekeeper
	store    *memory.AccountStore
	trackers *memory.TrackerStore
	mail     *recordingMail
	sessions *recordingSessions
	interest *recordingInterest
	observer *recordingObserver
	clock    *clock
	cfg      *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		AppName:               "test",
		PendingAccountTTL:     72 * time.Hour,
		PendingEmailTTL:       72 * time.Hour,
		ResetCodeTTL:          2 * time.Hour,
		MaxAgeYears:           120,
		GuardAddressThreshold: 10,
		GuardEmailThreshold:   3,
		GuardAddressTTL:       time.Hour,
		GuardEmailTTL:         24 * time.Hour,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	f := &fixture{
		store:    memory.NewAccountStore(),
		trackers: memory.NewTrackerStore(),
		mail:     &recordingMail{},
		sessions: &recordingSessions{},
		interest: &recordingInterest{},
		observer: &recordingObserver{},
		clock:    &clock{t: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)},
		cfg:      testConfig(),
	}
	f.guard = NewAuthGuard(f.trackers, GuardConfigFrom(f.cfg), f.observer, logger)
	f.guard.Now = f.clock.Now
	f.svc = NewAccountService(f.store, f.guard, f.mail, f.interest, f.sessions, f.cfg, logger)
	f.svc.Now = f.clock.Now
	f.svc.Start()
	t.Cleanup(func() { _ = f.svc.Stop(context.Background()) })
	f.keeper = NewHousekeeper(f.store, f.cfg, logger)
	f.keeper.Now = f.clock.Now
	return f
}

var (
	addr  = netip.MustParseAddr("198.51.100.1")
	addr2 = netip.MustParseAddr("198.51.100.2")
	dob   = time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
)

func pw(b byte) []byte { return bytes.Repeat([]byte{b}, entity.PasswordHashLen) }

func (f *fixture) signUp(t *testing.T, email string) *entity.Account {
	t.Helper()
	res, a, err := f.svc.SignUp(SignUpInput{Email: email, Gender: entity.GenderMale, DateOfBirth: dob, Address: addr})
	if err != nil || a == nil {
		t.Fatalf("sign up %s: %v %v", email, res, err)
	}
	return a
}

func (f *fixture) activationCode(a *entity.Account) string {
	a.Lock()
	defer a.Unlock()
	return a.EmailCode
}

// activeAccount signs up and activates email with password hash pw(1).
func (f *fixture) activeAccount(t *testing.T, email string) *entity.Account {
	t.Helper()
	a := f.signUp(t, email)
	if _, err := f.svc.Activate(email, f.activationCode(a), pw(1), addr); err != nil {
		t.Fatalf("activate %s: %v", email, err)
	}
	return a
}
