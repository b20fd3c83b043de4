package templates

import (
	"context"
	"strings"
	"time"

	"github.com/oksasatya/account-guard/config"
)

// Option pattern
type Option func(*EmailData)

func WithIP(ip string) Option { return func(d *EmailData) { d.IP = ip } }
func WithTime(t time.Time) Option {
	return func(d *EmailData) {
		utc := t.UTC()
		d.TimeAt = utc
		d.Time = utc.Format("02 January 2006, 15:04")
	}
}
func WithCode(code string) Option     { return func(d *EmailData) { d.Code = code } }
func WithActionURL(url string) Option { return func(d *EmailData) { d.ActionURL = url } }

func setLocation(d *EmailData, loc string) {
	if s := strings.TrimSpace(loc); s != "" {
		d.Location = s
	}
}

func WithGeoFromIP(ctx context.Context, r GeoResolver, ip string) Option {
	return func(d *EmailData) {
		if r == nil || strings.TrimSpace(ip) == "" {
			return
		}
		if g, err := r.Lookup(ctx, ip); err == nil {
			setLocation(d, FormatGeo(g))
		}
	}
}

func WithExpiresAt(t time.Time) Option {
	return func(d *EmailData) {
		utc := t.UTC()
		d.ExpiresAt = utc
		d.ExpiresAtText = utc.Format("02 January 2006, 15:04")
	}
}

// actionURLFor picks the landing page a notice type links to.
func actionURLFor(cfg *config.Config, typ string) string {
	switch typ {
	case ActivateAccount, ResetNotActivated:
		return cfg.ActivateURL
	case ResetPassword:
		return cfg.ResetURL
	case ConfirmNewEmail:
		return cfg.ConfirmURL
	}
	return ""
}

// NewNoticeData fills the common fields from config, then applies the options.
func NewNoticeData(cfg *config.Config, typ, recipient string, opts ...Option) map[string]any {
	d := EmailData{
		Email:          recipient,
		RecipientEmail: recipient,
		Type:           typ,

		CompanyName:    cfg.CompanyName,
		CompanyAddress: cfg.CompanyAddress,
		AppName:        cfg.AppName,

		LogoURL:        cfg.LogoURL,
		SupportURL:     cfg.SupportURL,
		PrivacyURL:     cfg.PrivacyURL,
		UnsubscribeURL: cfg.UnsubscribeURL,

		ActionURL: actionURLFor(cfg, typ),
	}
	for _, opt := range opts {
		opt(&d)
	}
	return ToMap(d)
}
