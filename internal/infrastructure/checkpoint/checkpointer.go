package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	repo "github.com/oksasatya/account-guard/internal/domain/repository"
)

// Checkpointer saves and loads the account and guard state. Mirror is
// optional and only read when Primary has nothing.
type Checkpointer struct {
	Accounts repo.AccountStore
	Trackers repo.AuthTrackerStore
	Primary  BlobStore
	Mirror   BlobStore
	Logger   *logrus.Logger
}

func NewCheckpointer(accounts repo.AccountStore, trackers repo.AuthTrackerStore, primary, mirror BlobStore, logger *logrus.Logger) *Checkpointer {
	return &Checkpointer{Accounts: accounts, Trackers: trackers, Primary: primary, Mirror: mirror, Logger: logger}
}

// Save writes a fresh snapshot to the primary store, then the mirror.
// A mirror failure is logged but does not fail the save.
func (c *Checkpointer) Save(ctx context.Context) error {
	start := time.Now()
	snap := Capture(c.Accounts, c.Trackers)
	var buf bytes.Buffer
	if err := Encode(&buf, snap); err != nil {
		return err
	}
	if err := c.Primary.Put(ctx, buf.Bytes()); err != nil {
		return err
	}
	if c.Mirror != nil {
		if err := c.Mirror.Put(ctx, buf.Bytes()); err != nil {
			c.Logger.WithError(err).WithField("store", c.Mirror.String()).Warn("checkpoint mirror failed")
		}
	}
	counts := snap.Counts()
	c.Logger.WithFields(logrus.Fields{
		"store":    c.Primary.String(),
		"bytes":    buf.Len(),
		"accounts": len(snap.Accounts),
		"trackers": counts.Trackers,
		"took":     time.Since(start),
	}).Info("checkpoint saved")
	return nil
}

// Load restores the newest available checkpoint. It reports false when no
// checkpoint exists anywhere.
func (c *Checkpointer) Load(ctx context.Context) (bool, error) {
	data, src, err := c.read(ctx)
	if errors.Is(err, ErrNotFound) {
		c.Logger.Info("no checkpoint found, starting empty")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	snap, err := Decode(bytes.NewReader(data))
	if err != nil {
		return false, err
	}
	skipped, err := snap.Restore(c.Accounts, c.Trackers)
	if err != nil {
		return false, err
	}
	counts := snap.Counts()
	c.Logger.WithFields(logrus.Fields{
		"store":         src,
		"activated":     counts.Activated,
		"not_activated": counts.NotActivated,
		"expired":       counts.Expired,
		"email_keys":    counts.EmailKeys,
		"trackers":      counts.Trackers,
		"skipped_keys":  skipped,
	}).Info("checkpoint loaded")
	return true, nil
}

func (c *Checkpointer) read(ctx context.Context) ([]byte, string, error) {
	data, err := c.Primary.Get(ctx)
	if err == nil {
		return data, c.Primary.String(), nil
	}
	if !errors.Is(err, ErrNotFound) || c.Mirror == nil {
		return nil, "", err
	}
	data, err = c.Mirror.Get(ctx)
	if err != nil {
		return nil, "", err
	}
	return data, c.Mirror.String(), nil
}
