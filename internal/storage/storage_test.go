package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AniruddhAgrahari/smartstock/internal/config"
	"github.com/AniruddhAgrahari/smartstock/internal/domain"
)

func TestPlanArchive(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	archive := NewPlanArchive(store, "/archive/")

	res := &domain.PlanResult{
		RunID:     "run-1",
		CreatedAt: time.Date(2024, 5, 6, 7, 0, 0, 0, time.UTC),
		Horizon:   7,
		Plan: &domain.ReplenishmentPlan{
			Lines:        []domain.PlanLine{{SKU: "A", Quantity: 12, UnitCost: decimal.NewFromInt(3), LineCost: decimal.NewFromInt(36)}},
			TotalCost:    decimal.NewFromInt(36),
			SolverStatus: domain.StatusOptimal,
		},
	}
	key, err := archive.Save(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, "archive/2024/05/06/run-1.json", key)

	got, err := archive.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 12.0, got.Plan.Quantity("A"))
	assert.True(t, got.Plan.TotalCost.Equal(decimal.NewFromInt(36)))

	objects, err := archive.List(ctx)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, key, objects[0].Key)
	assert.Positive(t, objects[0].Size)

	_, err = archive.Load(ctx, "archive/missing.json")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	assert.Equal(t, "plans/2024/05/06/run-1.json", NewPlanArchive(store, "").Key(res))
}

func TestMemoryStorageDownload(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	require.NoError(t, store.UploadObject(ctx, "history/a.csv", []byte("sku,timestamp,quantity\n")))

	dest := filepath.Join(t.TempDir(), "nested", "a.csv")
	require.NoError(t, store.DownloadObject(ctx, "history/a.csv", dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "sku,timestamp,quantity\n", string(data))
}

func TestNewMinioClient(t *testing.T) {
	_, err := NewMinioClient(config.StorageConfig{})
	assert.Error(t, err)
	_, err = NewMinioClient(config.StorageConfig{Endpoint: "s3.local", Bucket: "b"})
	assert.ErrorContains(t, err, "credentials")

	c, err := NewMinioClient(config.StorageConfig{Endpoint: "https://s3.example.com/", AccessKey: "k", SecretKey: "s", Bucket: "plans"})
	require.NoError(t, err)
	assert.Equal(t, "plans", c.bucket)
	assert.Equal(t, "s3.example.com", c.client.EndpointURL().Host)
	assert.Equal(t, "https", c.client.EndpointURL().Scheme)
}

func TestEndpointHost(t *testing.T) {
	tests := []struct {
		in     string
		useSSL bool
		host   string
		secure bool
	}{
		{"https://s3.example.com", false, "s3.example.com", true},
		{"http://minio:9000/", true, "minio:9000", false},
		{"minio:9000", true, "minio:9000", true},
		{"//minio:9000", false, "minio:9000", false},
	}
	for _, tt := range tests {
		host, secure := endpointHost(tt.in, tt.useSSL)
		assert.Equal(t, tt.host, host, tt.in)
		assert.Equal(t, tt.secure, secure, tt.in)
	}
}
