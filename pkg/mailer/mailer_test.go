package mailer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/account-guard/config"
	mailtpl "github.com/oksasatya/account-guard/pkg/mailer/templates"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
	html []string
}

func (s *recordingSender) Send(_ context.Context, to, subject, text, html string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, to+"|"+subject+"|"+text)
	s.html = append(s.html, html)
	return nil
}

type fixedGeo struct{ g mailtpl.Geo }

func (f fixedGeo) Lookup(context.Context, string) (mailtpl.Geo, error) { return f.g, nil }

func testConfig() *config.Config {
	return &config.Config{AppName: "Guard", CompanyName: "Guard Inc", ActivateURL: "https://x/activate", ResetURL: "https://x/reset"}
}

func TestRender_EveryNoticeType(t *testing.T) {
	cfg := testConfig()
	for _, typ := range []string{
		mailtpl.ActivateAccount, mailtpl.AccountExists, mailtpl.EmailSuperseded,
		mailtpl.ResetPassword, mailtpl.ResetWrongEmail, mailtpl.ResetNotActivated,
		mailtpl.ResetUnknown, mailtpl.ConfirmNewEmail,
	} {
		t.Run(typ, func(t *testing.T) {
			job := EmailJob{
				To:       "a@b.c",
				Template: mailtpl.Universal,
				Data:     mailtpl.NewNoticeData(cfg, typ, "a@b.c", mailtpl.WithCode("ABCDEFGHJK")),
			}
			subject, text, html, err := Render(context.Background(), nil, job)
			require.NoError(t, err)
			assert.Equal(t, mailtpl.Subject(typ), subject)
			assert.Contains(t, text, "a@b.c")
			assert.Contains(t, html, "a@b.c")
			assert.NotContains(t, text, "<no value>")
		})
	}
}

func TestRender_CodeAndLink(t *testing.T) {
	job := EmailJob{
		To:       "a@b.c",
		Template: mailtpl.Universal,
		Data:     mailtpl.NewNoticeData(testConfig(), mailtpl.ResetPassword, "a@b.c", mailtpl.WithCode("QWERTYUPAS")),
	}
	_, text, html, err := Render(context.Background(), nil, job)
	require.NoError(t, err)
	assert.Contains(t, text, "QWERTYUPAS")
	assert.Contains(t, text, "https://x/reset")
	assert.Contains(t, html, "QWERTYUPAS")
}

func TestRender_PlainJobPassesThrough(t *testing.T) {
	s, tx, h, err := Render(context.Background(), nil, EmailJob{Subject: "s", Text: "t", HTML: "h"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s", "t", "h"}, []string{s, tx, h})
}

func TestLocalizeTimes(t *testing.T) {
	at := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	data := mailtpl.NewNoticeData(testConfig(), mailtpl.ResetPassword, "a@b.c",
		mailtpl.WithIP("203.0.113.9"), mailtpl.WithTime(at), mailtpl.WithExpiresAt(at.Add(2*time.Hour)))

	LocalizeTimes(context.Background(), fixedGeo{mailtpl.Geo{City: "Jakarta", Country: "Indonesia", Timezone: "Asia/Jakarta"}}, data)

	assert.Equal(t, "Jakarta, Indonesia", data["Location"])
	assert.Contains(t, data["Time"], "17:00")
	assert.Contains(t, data["ExpiresAtText"], "19:00")
}

func TestEnsureRecipientAndEmail(t *testing.T) {
	job := EmailJob{To: "x@y.z"}
	EnsureRecipientAndEmail(&job)
	assert.Equal(t, "x@y.z", job.Data["Email"])
	assert.Equal(t, "x@y.z", job.Data["RecipientEmail"])
}

type failingTransport struct{}

func (failingTransport) Deliver(context.Context, EmailJob) error { return errors.New("smtp down") }

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestDispatcher_DeliversThroughTransport(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(DirectTransport{Sender: sender}, 8, quiet())
	d.Start()

	job := EmailJob{To: "a@b.c", Template: mailtpl.Universal, Data: mailtpl.NewNoticeData(testConfig(), mailtpl.AccountExists, "a@b.c")}
	require.True(t, d.Enqueue(job))
	require.NoError(t, d.Stop(context.Background()))

	assert.Equal(t, int64(1), d.Sent())
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0], "You already have an account")
}

func TestDispatcher_CountsFailures(t *testing.T) {
	d := NewDispatcher(failingTransport{}, 8, quiet())
	d.Start()
	require.True(t, d.Enqueue(EmailJob{To: "a@b.c"}))
	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, int64(1), d.Failed())
	assert.Equal(t, int64(0), d.Sent())
}

func TestLogTransport(t *testing.T) {
	assert.NoError(t, LogTransport{Logger: quiet()}.Deliver(context.Background(), EmailJob{To: "a@b.c"}))
}

type jobRecorder struct {
	mu   sync.Mutex
	jobs []EmailJob
}

func (r *jobRecorder) Deliver(_ context.Context, job EmailJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return nil
}

func TestDispatcher_AssignsJobIDs(t *testing.T) {
	rec := &jobRecorder{}
	d := NewDispatcher(rec, 8, quiet())
	d.Start()
	require.True(t, d.Enqueue(EmailJob{To: "a@b.c"}))
	require.True(t, d.Enqueue(EmailJob{ID: "fixed", To: "a@b.c"}))
	require.NoError(t, d.Stop(context.Background()))

	require.Len(t, rec.jobs, 2)
	ids := []string{rec.jobs[0].ID, rec.jobs[1].ID}
	assert.Contains(t, ids, "fixed")
	for _, id := range ids {
		assert.NotEmpty(t, id)
	}
}
