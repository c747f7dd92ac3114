package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/CineHub/internal/config"
	"github.com/JustinTDCT/CineHub/internal/memstore"
	"github.com/JustinTDCT/CineHub/internal/storage"
)

func memoryConfig(t *testing.T) *config.Config {
	return &config.Config{
		StoreDriver:           "memory",
		FileStore:             "local",
		DataDir:               t.TempDir(),
		TMDBBaseURL:           "http://localhost",
		IngestMaxFailureRatio: 0.5,
		IngestMinSamples:      2,
	}
}

func TestOpen_Memory(t *testing.T) {
	cfg := memoryConfig(t)
	rt, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer rt.Close()

	assert.IsType(t, &memstore.Store{}, rt.Store)
	assert.IsType(t, &storage.LocalStore{}, rt.Files)
	assert.NotNil(t, rt.Reconciler)
	assert.NotNil(t, rt.Pipeline)
	assert.NotNil(t, rt.Orchestrator(nil))
	assert.Equal(t, cfg.DataDir, rt.StorageRoot())
	assert.Empty(t, rt.Health)
	assert.Nil(t, rt.Notifier)
}

func TestOpen_RejectsUnknownDrivers(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.StoreDriver = "sqlite"
	_, err := Open(context.Background(), cfg)
	assert.Error(t, err)

	cfg = memoryConfig(t)
	cfg.FileStore = "ftp"
	_, err = Open(context.Background(), cfg)
	assert.Error(t, err)

	cfg = memoryConfig(t)
	cfg.FileStore = "s3"
	cfg.S3.Bucket = ""
	_, err = Open(context.Background(), cfg)
	assert.Error(t, err)
}

func TestOpen_Webhook(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.IngestWebhookURL = "http://hooks.local/ingest"
	cfg.IngestWebhookChannel = "slack"
	rt, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer rt.Close()
	assert.NotNil(t, rt.Notifier)

	cfg = memoryConfig(t)
	cfg.IngestWebhookURL = "http://hooks.local/ingest"
	cfg.IngestWebhookChannel = "pager"
	_, err = Open(context.Background(), cfg)
	assert.Error(t, err)
}
