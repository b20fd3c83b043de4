package checkpoint

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net/netip"
	"time"

	"github.com/oksasatya/account-guard/internal/domain/entity"
)

const (
	magic   = "AGCK"
	version = uint16(1)

	endOfRecords   = int32(-1)
	endOfTrackers  = byte(0xFF)
	maxStringBytes = math.MaxUint16
)

var ErrCorrupt = errors.New("checkpoint corrupt")

// Snapshot is a detached copy of the account and guard state. The email
// index refers to accounts by id.
type Snapshot struct {
	LastID   int32
	Accounts []*entity.Account
	Emails   map[string]int32
	Trackers []*entity.AuthTracker
}

type writer struct {
	w   *bufio.Writer
	err error
}

func (w *writer) put(v any) {
	if w.err == nil {
		w.err = binary.Write(w.w, binary.BigEndian, v)
	}
}

func (w *writer) bytes(b []byte) {
	if w.err == nil {
		_, w.err = w.w.Write(b)
	}
}

func (w *writer) str(s string) {
	if len(s) > maxStringBytes {
		w.err = fmt.Errorf("string of %d bytes too long", len(s))
		return
	}
	w.put(uint16(len(s)))
	w.bytes([]byte(s))
}

func (w *writer) flag(b bool) {
	if b {
		w.put(uint8(1))
	} else {
		w.put(uint8(0))
	}
}

func (w *writer) time(t time.Time) {
	if t.IsZero() {
		w.put(int64(math.MinInt64))
		return
	}
	w.put(t.UnixMilli())
}

func (w *writer) addr(a netip.Addr) {
	if !a.IsValid() {
		w.put(uint8(0))
		return
	}
	b := a.AsSlice()
	w.put(uint8(len(b)))
	w.bytes(b)
}

// Encode writes s in the checkpoint format.
func Encode(out io.Writer, s *Snapshot) error {
	w := &writer{w: bufio.NewWriter(out)}
	w.bytes([]byte(magic))
	w.put(version)
	w.put(s.LastID)

	for _, a := range s.Accounts {
		encodeAccount(w, a)
	}
	w.put(endOfRecords)

	for email, id := range s.Emails {
		w.put(id)
		w.str(email)
	}
	w.put(endOfRecords)

	for _, t := range s.Trackers {
		encodeTracker(w, t)
	}
	w.put(endOfTrackers)

	if w.err != nil {
		return w.err
	}
	return w.w.Flush()
}

func encodeAccount(w *writer, a *entity.Account) {
	w.put(a.ID)
	w.str(a.Email)

	w.flag(a.PendingEmail != "")
	if a.PendingEmail != "" {
		w.str(a.PendingEmail)
	}
	// a pending email claimed elsewhere keeps its timestamp without a code
	hasCode := a.EmailCode != "" || !a.EmailCodeUpdated.IsZero()
	w.flag(hasCode)
	if hasCode {
		w.str(a.EmailCode)
		w.time(a.EmailCodeUpdated)
	}
	hasHash := len(a.PasswordHash) == entity.PasswordHashLen
	w.flag(hasHash)
	if hasHash {
		w.bytes(a.PasswordHash)
	}
	w.flag(a.ResetCode != "")
	if a.ResetCode != "" {
		w.str(a.ResetCode)
		w.time(a.ResetCodeUpdated)
	}

	w.put(uint8(a.Gender))
	w.time(a.DateOfBirth)
	w.flag(a.EmailAlerts)

	w.put(uint8(a.Message.Type))
	if a.Message.Type != entity.MessageNone {
		w.str(a.Message.Text)
		w.time(a.Message.Time)
	}

	w.addr(a.LastAddress)
	w.put(uint8(a.State))
	w.time(a.CreatedAt)
}

func encodeTracker(w *writer, t *entity.AuthTracker) {
	w.addr(t.Address)
	w.put(t.TotalFailures)
	w.time(t.LastLockout)
	w.put(int32(len(t.PerEmail)))
	for email, ef := range t.PerEmail {
		w.str(email)
		w.put(ef.Count)
		w.time(ef.LastEvent)
	}
}

type reader struct {
	r   *bufio.Reader
	err error
}

func (r *reader) get(v any) {
	if r.err == nil {
		r.err = binary.Read(r.r, binary.BigEndian, v)
	}
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	b := make([]byte, n)
	_, r.err = io.ReadFull(r.r, b)
	return b
}

func (r *reader) u8() uint8 {
	var v uint8
	r.get(&v)
	return v
}

func (r *reader) i32() int32 {
	var v int32
	r.get(&v)
	return v
}

func (r *reader) str() string {
	var n uint16
	r.get(&n)
	return string(r.bytes(int(n)))
}

func (r *reader) flag() bool { return r.u8() != 0 }

func (r *reader) time() time.Time {
	var ms int64
	r.get(&ms)
	if ms == math.MinInt64 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func (r *reader) addrOfLen(n uint8) netip.Addr {
	if n == 0 {
		return netip.Addr{}
	}
	if n != 4 && n != 16 {
		r.fail("address length %d", n)
		return netip.Addr{}
	}
	a, _ := netip.AddrFromSlice(r.bytes(int(n)))
	return a
}

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: "+format, append([]any{ErrCorrupt}, args...)...)
	}
}

// Decode reads a checkpoint written by Encode.
func Decode(in io.Reader) (*Snapshot, error) {
	r := &reader{r: bufio.NewReader(in)}
	if string(r.bytes(len(magic))) != magic {
		r.fail("bad magic")
	}
	var v uint16
	r.get(&v)
	if r.err == nil && v != version {
		r.fail("unsupported version %d", v)
	}
	s := &Snapshot{Emails: map[string]int32{}}
	s.LastID = r.i32()

	for r.err == nil {
		id := r.i32()
		if id == endOfRecords {
			break
		}
		s.Accounts = append(s.Accounts, decodeAccount(r, id))
	}
	for r.err == nil {
		id := r.i32()
		if id == endOfRecords {
			break
		}
		s.Emails[r.str()] = id
	}
	for r.err == nil {
		n := r.u8()
		if n == endOfTrackers {
			break
		}
		s.Trackers = append(s.Trackers, decodeTracker(r, n))
	}
	if r.err != nil {
		if errors.Is(r.err, io.EOF) || errors.Is(r.err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated", ErrCorrupt)
		}
		return nil, r.err
	}
	return s, nil
}

func decodeAccount(r *reader, id int32) *entity.Account {
	a := &entity.Account{ID: id}
	a.Email = r.str()
	if r.flag() {
		a.PendingEmail = r.str()
	}
	if r.flag() {
		a.EmailCode = r.str()
		a.EmailCodeUpdated = r.time()
	}
	if r.flag() {
		a.PasswordHash = r.bytes(entity.PasswordHashLen)
	}
	if r.flag() {
		a.ResetCode = r.str()
		a.ResetCodeUpdated = r.time()
	}
	a.Gender = entity.Gender(r.u8())
	a.DateOfBirth = r.time()
	a.EmailAlerts = r.flag()

	a.Message.Type = entity.MessageType(r.u8())
	if a.Message.Type != entity.MessageNone {
		a.Message.Text = r.str()
		a.Message.Time = r.time()
	}

	a.LastAddress = r.addrOfLen(r.u8())
	a.State = entity.ActivationState(r.u8())
	if a.State > entity.Expired {
		r.fail("account %d has state %d", id, a.State)
	}
	a.CreatedAt = r.time()
	return a
}

func decodeTracker(r *reader, addrLen uint8) *entity.AuthTracker {
	t := entity.NewAuthTracker(r.addrOfLen(addrLen))
	t.TotalFailures = r.i32()
	t.LastLockout = r.time()
	n := r.i32()
	if n < 0 {
		r.fail("negative email count")
		return t
	}
	for i := int32(0); i < n && r.err == nil; i++ {
		email := r.str()
		ef := &entity.EmailFailures{Count: r.i32(), LastEvent: r.time()}
		t.PerEmail[email] = ef
	}
	return t
}
