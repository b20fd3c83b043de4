package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/oksasatya/account-guard/config"
	"github.com/oksasatya/account-guard/internal/infrastructure/checkpoint"
	"github.com/oksasatya/account-guard/pkg/helpers"
)

// inspect prints a summary of a checkpoint without starting the service.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	path := flag.String("file", cfg.CheckpointPath, "checkpoint file to read")
	fromGCS := flag.Bool("gcs", false, "read the GCS mirror instead of the local file")
	flag.Parse()

	logger := helpers.NewLogger(cfg.AppName+"-inspect", cfg.Env, cfg.LogLevel)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var store checkpoint.BlobStore = checkpoint.FileStore{Path: *path}
	if *fromGCS {
		if cfg.GCSBucket == "" || cfg.CheckpointGCSObject == "" {
			logger.Fatal("GCS_BUCKET and CHECKPOINT_GCS_OBJECT are required with -gcs")
		}
		client, err := helpers.NewGCSClient(ctx, cfg.GCSCredentialsJSONPath)
		if err != nil {
			logger.Fatalf("failed to init GCS client: %v", err)
		}
		defer func() { _ = client.Close() }()
		store = checkpoint.GCSStore{Client: client, Bucket: cfg.GCSBucket, Object: cfg.CheckpointGCSObject}
	}

	data, err := store.Get(ctx)
	if err != nil {
		logger.Fatalf("read %s: %v", store, err)
	}
	snap, err := checkpoint.Decode(bytes.NewReader(data))
	if err != nil {
		logger.Fatalf("decode %s: %v", store, err)
	}

	c := snap.Counts()
	w := os.Stdout
	fmt.Fprintf(w, "source         %s (%d bytes)\n", store, len(data))
	fmt.Fprintf(w, "last id        %d\n", snap.LastID)
	fmt.Fprintf(w, "accounts       %d\n", len(snap.Accounts))
	fmt.Fprintf(w, "  activated    %d\n", c.Activated)
	fmt.Fprintf(w, "  pending      %d\n", c.NotActivated)
	fmt.Fprintf(w, "  expired      %d\n", c.Expired)
	fmt.Fprintf(w, "email keys     %d\n", c.EmailKeys)
	fmt.Fprintf(w, "trackers       %d\n", c.Trackers)
}
