package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-guard/internal/application"
	"github.com/oksasatya/account-guard/pkg/helpers"
)

// LockoutLog indexes guard lockouts for later review. Indexing happens on
// its own queue; a slow cluster never delays authentication.
type LockoutLog struct {
	client *es.Client
	index  string
	queue  *helpers.TaskQueue
	logger *logrus.Logger
}

func NewLockoutLog(client *es.Client, index string, logger *logrus.Logger) *LockoutLog {
	return &LockoutLog{
		client: client,
		index:  index,
		queue:  helpers.NewTaskQueue("lockout-log", 512, logger),
		logger: logger,
	}
}

func (l *LockoutLog) Start() { l.queue.Start() }

func (l *LockoutLog) Stop(ctx context.Context) error { return l.queue.Stop(ctx) }

// Lockout implements application.LockoutObserver.
func (l *LockoutLog) Lockout(ev application.LockoutEvent) {
	l.queue.Submit(func(ctx context.Context) {
		if err := l.indexEvent(ctx, ev); err != nil {
			l.logger.WithError(err).Warn("es index lockout failed")
		}
	})
}

type lockoutDoc struct {
	Address         string `json:"address"`
	Email           string `json:"email"`
	Scope           string `json:"scope"`
	AddressFailures int32  `json:"address_failures"`
	EmailFailures   int32  `json:"email_failures"`
	Time            string `json:"@timestamp"`
}

func (l *LockoutLog) indexEvent(ctx context.Context, ev application.LockoutEvent) error {
	b, err := json.Marshal(lockoutDoc{
		Address:         ev.Address.String(),
		Email:           ev.Email,
		Scope:           string(ev.Scope),
		AddressFailures: ev.AddressFailures,
		EmailFailures:   ev.EmailFailures,
		Time:            ev.Time.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{Index: l.index, Body: bytes.NewReader(b), Refresh: "false"}
	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := req.Do(c, l.client)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return fmt.Errorf("es index response: %s", res.Status())
	}
	return nil
}

// Recent returns the newest lockouts, optionally for one address.
func (l *LockoutLog) Recent(ctx context.Context, address string, size int) ([]map[string]any, error) {
	if size <= 0 || size > 100 {
		size = 20
	}
	query := map[string]any{
		"sort": []any{map[string]any{"@timestamp": map[string]any{"order": "desc"}}},
		"size": size,
	}
	if address != "" {
		query["query"] = map[string]any{"term": map[string]any{"address": address}}
	}
	b, _ := json.Marshal(query)

	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := l.client.Search(
		l.client.Search.WithContext(c),
		l.client.Search.WithIndex(l.index),
		l.client.Search.WithBody(bytes.NewReader(b)),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return nil, fmt.Errorf("es search response: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}

var _ application.LockoutObserver = (*LockoutLog)(nil)
