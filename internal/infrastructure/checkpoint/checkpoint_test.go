package checkpoint

import (
	"bytes"
	"context"
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/account-guard/internal/domain/entity"
	"github.com/oksasatya/account-guard/internal/infrastructure/memory"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func hash(b byte) []byte { return bytes.Repeat([]byte{b}, entity.PasswordHashLen) }

// seed builds a store covering every optional field of the record format.
func seed(t *testing.T) (*memory.AccountStore, *memory.TrackerStore) {
	t.Helper()
	accounts := memory.NewAccountStore()

	active := entity.NewAccount(accounts.NextID(), base)
	active.Email = "Active@Example.com"
	active.PasswordHash = hash(7)
	active.ResetCode = "RESETCODE1"
	active.ResetCodeUpdated = base.Add(time.Minute)
	active.Gender = entity.GenderFemale
	active.DateOfBirth = time.Date(1960, 5, 4, 0, 0, 0, 0, time.UTC)
	active.EmailAlerts = true
	active.LastAddress = netip.MustParseAddr("2001:db8::1")
	active.Message = entity.Message{Type: entity.MessageInfo, Text: "hello", Time: base}
	active.PendingEmail = "taken@example.com"
	active.EmailCodeUpdated = base.Add(2 * time.Minute)
	active.State = entity.Activated
	accounts.Insert(active)
	accounts.PutEmail("active@example.com", active)
	accounts.PutEmail("old@example.com", active)

	pending := entity.NewAccount(accounts.NextID(), base)
	pending.Email = "new@example.com"
	pending.EmailCode = "ACTIVATE22"
	pending.EmailCodeUpdated = base
	pending.LastAddress = netip.MustParseAddr("198.51.100.7")
	accounts.Insert(pending)
	accounts.PutEmail("new@example.com", pending)

	expired := entity.NewAccount(accounts.NextID(), base)
	expired.Email = "gone@example.com"
	expired.State = entity.Expired
	accounts.Insert(expired)

	trackers := memory.NewTrackerStore()
	tr := trackers.GetOrCreate(netip.MustParseAddr("203.0.113.5"))
	tr.TotalFailures = 9
	tr.LastLockout = base
	tr.PerEmail["active@example.com"] = &entity.EmailFailures{Count: 3, LastEvent: base}
	trackers.GetOrCreate(netip.MustParseAddr("203.0.113.6")) // empty, not persisted

	return accounts, trackers
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	accounts, trackers := seed(t)
	snap := Capture(accounts, trackers)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, snap))
	got, err := Decode(&buf)
	require.NoError(t, err)

	assert.Equal(t, int32(3), got.LastID)
	require.Len(t, got.Accounts, 3)
	assert.Equal(t, map[string]int32{"active@example.com": 1, "old@example.com": 1, "new@example.com": 2}, got.Emails)
	require.Len(t, got.Trackers, 1)

	byID := map[int32]*entity.Account{}
	for _, a := range got.Accounts {
		byID[a.ID] = a
	}
	a := byID[1]
	assert.Equal(t, "Active@Example.com", a.Email)
	assert.Equal(t, hash(7), a.PasswordHash)
	assert.Equal(t, "RESETCODE1", a.ResetCode)
	assert.True(t, a.ResetCodeUpdated.Equal(base.Add(time.Minute)))
	assert.Equal(t, entity.GenderFemale, a.Gender)
	assert.True(t, a.DateOfBirth.Equal(time.Date(1960, 5, 4, 0, 0, 0, 0, time.UTC)))
	assert.True(t, a.EmailAlerts)
	assert.Equal(t, netip.MustParseAddr("2001:db8::1"), a.LastAddress)
	assert.Equal(t, "hello", a.Message.Text)
	assert.Equal(t, entity.Activated, a.State)
	// pending email owned elsewhere: no code, timestamp kept
	assert.Equal(t, "taken@example.com", a.PendingEmail)
	assert.Empty(t, a.EmailCode)
	assert.True(t, a.EmailCodeUpdated.Equal(base.Add(2*time.Minute)))

	p := byID[2]
	assert.Nil(t, p.PasswordHash)
	assert.Equal(t, "ACTIVATE22", p.EmailCode)
	assert.Equal(t, netip.MustParseAddr("198.51.100.7"), p.LastAddress)
	assert.Equal(t, entity.NotActivated, p.State)

	e := byID[3]
	assert.Equal(t, entity.Expired, e.State)
	assert.False(t, e.LastAddress.IsValid())
	assert.True(t, e.DateOfBirth.IsZero())

	tr := got.Trackers[0]
	assert.Equal(t, netip.MustParseAddr("203.0.113.5"), tr.Address)
	assert.Equal(t, int32(9), tr.TotalFailures)
	assert.Equal(t, int32(3), tr.PerEmail["active@example.com"].Count)
}

func TestDecode_RejectsCorruptInput(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("NOPE")))
	assert.ErrorIs(t, err, ErrCorrupt)

	accounts, trackers := seed(t)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Capture(accounts, trackers)))
	_, err = Decode(bytes.NewReader(buf.Bytes()[:buf.Len()/2]))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestSnapshot_RestoreRebuildsStores(t *testing.T) {
	accounts, trackers := seed(t)
	snap := Capture(accounts, trackers)
	snap.Emails["orphan@example.com"] = 99

	restored := memory.NewAccountStore()
	restoredTrackers := memory.NewTrackerStore()
	skipped, err := snap.Restore(restored, restoredTrackers)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)

	assert.Same(t, restored.GetByEmail("active@example.com"), restored.GetByEmail("old@example.com"))
	assert.Same(t, restored.GetByID(2), restored.GetByEmail("new@example.com"))
	assert.NotNil(t, restored.GetByID(3))
	assert.Equal(t, 2, restored.ActiveCount())
	assert.Equal(t, int32(4), restored.NextID())
	assert.Equal(t, 1, restoredTrackers.Len())
}

func TestFileStore(t *testing.T) {
	fs := FileStore{Path: filepath.Join(t.TempDir(), "nested", "accounts.ckpt")}
	_, err := fs.Get(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, fs.Put(context.Background(), []byte("one")))
	require.NoError(t, fs.Put(context.Background(), []byte("two")))
	b, err := fs.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "two", string(b))

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(fs.Path), "*.tmp"))
	assert.Empty(t, matches)
}

type memBlob struct{ data []byte }

func (m *memBlob) Put(_ context.Context, data []byte) error {
	m.data = append([]byte(nil), data...)
	return nil
}

func (m *memBlob) Get(context.Context) ([]byte, error) {
	if m.data == nil {
		return nil, ErrNotFound
	}
	return m.data, nil
}

func (m *memBlob) String() string { return "mem" }

func TestCheckpointer_SaveThenLoad(t *testing.T) {
	accounts, trackers := seed(t)
	primary, mirror := &memBlob{}, &memBlob{}
	require.NoError(t, NewCheckpointer(accounts, trackers, primary, mirror, quiet()).Save(context.Background()))
	assert.Equal(t, primary.data, mirror.data)

	restored := memory.NewAccountStore()
	ok, err := NewCheckpointer(restored, memory.NewTrackerStore(), primary, nil, quiet()).Load(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotNil(t, restored.GetByEmail("new@example.com"))
}

func TestCheckpointer_LoadFallsBackToMirror(t *testing.T) {
	accounts, trackers := seed(t)
	mirror := &memBlob{}
	require.NoError(t, NewCheckpointer(accounts, trackers, mirror, nil, quiet()).Save(context.Background()))

	restored := memory.NewAccountStore()
	ok, err := NewCheckpointer(restored, nil, &memBlob{}, mirror, quiet()).Load(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, restored.ActiveCount())
}

func TestCheckpointer_LoadWithNothingSaved(t *testing.T) {
	ok, err := NewCheckpointer(memory.NewAccountStore(), nil, &memBlob{}, nil, quiet()).Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
