package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"

	"github.com/oksasatya/account-guard/pkg/helpers"
)

// ErrNotFound means no checkpoint has been written yet.
var ErrNotFound = errors.New("checkpoint not found")

// BlobStore holds one checkpoint blob.
type BlobStore interface {
	Put(ctx context.Context, data []byte) error
	Get(ctx context.Context) ([]byte, error)
	String() string
}

// FileStore writes to a temp file and renames it over Path, so a crash
// mid-write leaves the previous checkpoint intact.
type FileStore struct {
	Path string
}

func (f FileStore) Put(_ context.Context, data []byte) error {
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.Path)
}

func (f FileStore) Get(_ context.Context) ([]byte, error) {
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

func (f FileStore) String() string { return "file:" + f.Path }

// GCSStore keeps the checkpoint as a single object.
type GCSStore struct {
	Client *storage.Client
	Bucket string
	Object string
}

func (g GCSStore) Put(ctx context.Context, data []byte) error {
	return helpers.UploadObject(ctx, g.Client, g.Bucket, g.Object, "application/octet-stream", data)
}

func (g GCSStore) Get(ctx context.Context) ([]byte, error) {
	b, err := helpers.DownloadObject(ctx, g.Client, g.Bucket, g.Object)
	if errors.Is(err, helpers.ErrObjectNotFound) {
		return nil, ErrNotFound
	}
	return b, err
}

func (g GCSStore) String() string { return fmt.Sprintf("gs://%s/%s", g.Bucket, g.Object) }
