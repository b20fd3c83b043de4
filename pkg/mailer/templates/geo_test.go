package templates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatGeo(t *testing.T) {
	assert.Equal(t, "Bandung, West Java, Indonesia", FormatGeo(Geo{City: "Bandung", Region: "West Java", Country: "Indonesia"}))
	assert.Equal(t, "Indonesia", FormatGeo(Geo{City: " ", Country: "Indonesia"}))
	assert.Empty(t, FormatGeo(Geo{}))
}

func TestIPAPIResolver_SkipsNonPublic(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	r := IPAPIResolver{Client: srv.Client(), BaseURL: srv.URL}
	for _, ip := range []string{"", "nope", "10.0.0.1", "127.0.0.1", "::1", "::ffff:192.168.0.2", "fe80::1"} {
		_, err := r.Lookup(context.Background(), ip)
		assert.ErrorIs(t, err, ErrNoGeo, ip)
	}
	assert.Zero(t, calls.Load())
}

func TestIPAPIResolver_Lookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/203.0.113.9"):
			_, _ = w.Write([]byte(`{"status":"success","country":"Indonesia","regionName":"Bali","city":"Denpasar","timezone":"Asia/Makassar"}`))
		case strings.HasSuffix(r.URL.Path, "/203.0.113.10"):
			_, _ = w.Write([]byte(`{"status":"fail","message":"reserved range"}`))
		default:
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	defer srv.Close()
	r := IPAPIResolver{Client: srv.Client(), BaseURL: srv.URL}

	g, err := r.Lookup(context.Background(), "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, Geo{City: "Denpasar", Region: "Bali", Country: "Indonesia", Timezone: "Asia/Makassar"}, g)

	_, err = r.Lookup(context.Background(), "203.0.113.10")
	assert.ErrorContains(t, err, "reserved range")

	_, err = r.Lookup(context.Background(), "203.0.113.11")
	assert.ErrorContains(t, err, "status 429")
}

type countingResolver struct {
	calls atomic.Int32
	geo   Geo
	err   error
}

func (c *countingResolver) Lookup(context.Context, string) (Geo, error) {
	c.calls.Add(1)
	return c.geo, c.err
}

func TestCachedResolver(t *testing.T) {
	ok := &countingResolver{geo: Geo{Country: "Indonesia"}}
	r := NewCachedResolver(ok, time.Hour)
	for i := 0; i < 3; i++ {
		g, err := r.Lookup(context.Background(), "203.0.113.9")
		require.NoError(t, err)
		assert.Equal(t, "Indonesia", g.Country)
	}
	assert.Equal(t, int32(1), ok.calls.Load())

	_, _ = r.Lookup(context.Background(), "203.0.113.10")
	assert.Equal(t, int32(2), ok.calls.Load(), "keyed per address")

	failing := &countingResolver{err: ErrNoGeo}
	r = NewCachedResolver(failing, time.Hour)
	for i := 0; i < 2; i++ {
		_, err := r.Lookup(context.Background(), "10.0.0.1")
		assert.ErrorIs(t, err, ErrNoGeo)
	}
	assert.Equal(t, int32(1), failing.calls.Load(), "failures are cached too")
}
