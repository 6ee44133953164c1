package local_test

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageAdapter "github.com/tigerroll/provisioner/pkg/provision/adapter/storage"
	"github.com/tigerroll/provisioner/pkg/provision/adapter/storage/gcs"
	"github.com/tigerroll/provisioner/pkg/provision/adapter/storage/local"
	coreConfig "github.com/tigerroll/provisioner/pkg/provision/core/config"
)

func newConfig(baseDir string) *coreConfig.Config {
	cfg := coreConfig.NewConfig()
	cfg.Provisioner.StorageConfigs = map[string]interface{}{
		"reports": map[string]interface{}{"type": "local", "base_dir": baseDir, "bucket_name": "provisioning"},
		"cloud":   map[string]interface{}{"type": "gcs"},
		"broken":  "not a map",
	}
	return cfg
}

func TestLocalAdapter_RoundTrip(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	provider := local.NewLocalProvider(newConfig(base))

	conn, err := provider.GetConnection("reports")
	require.NoError(t, err)
	assert.Equal(t, "local", conn.Type())

	require.NoError(t, conn.Upload(ctx, "", "dt=2026-01-02/batch_a.parquet", bytes.NewReader([]byte("one")), "application/octet-stream"))
	require.NoError(t, conn.Upload(ctx, "", "dt=2026-01-03/batch_b.parquet", bytes.NewReader([]byte("two")), "application/octet-stream"))
	assert.FileExists(t, filepath.Join(base, "provisioning", "dt=2026-01-02", "batch_a.parquet"))

	rc, err := conn.Download(ctx, "", "dt=2026-01-02/batch_a.parquet")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))

	var names []string
	require.NoError(t, conn.ListObjects(ctx, "", "dt=2026-01", func(name string) error {
		names = append(names, name)
		return nil
	}))
	sort.Strings(names)
	assert.Equal(t, []string{"dt=2026-01-02/batch_a.parquet", "dt=2026-01-03/batch_b.parquet"}, names)

	require.NoError(t, conn.DeleteObject(ctx, "", "dt=2026-01-02/batch_a.parquet"))
	require.NoError(t, conn.DeleteObject(ctx, "", "dt=2026-01-02/batch_a.parquet"))
	_, err = conn.Download(ctx, "", "dt=2026-01-02/batch_a.parquet")
	assert.Error(t, err)
}

func TestLocalAdapter_RejectsEscapingPaths(t *testing.T) {
	conn, err := local.NewLocalProvider(newConfig(t.TempDir())).GetConnection("reports")
	require.NoError(t, err)

	err = conn.Upload(context.Background(), "", "../../outside.txt", bytes.NewReader(nil), "text/plain")
	assert.ErrorContains(t, err, "outside of BaseDir")
}

func TestLocalProvider_Caching(t *testing.T) {
	provider := local.NewLocalProvider(newConfig(t.TempDir()))

	first, err := provider.GetConnection("reports")
	require.NoError(t, err)
	second, err := provider.GetConnection("reports")
	require.NoError(t, err)
	assert.Same(t, first, second)

	reconnected, err := provider.ForceReconnect("reports")
	require.NoError(t, err)
	assert.NotSame(t, first, reconnected)
	assert.NoError(t, provider.CloseAll())
}

func TestLocalProvider_ConfigErrors(t *testing.T) {
	provider := local.NewLocalProvider(newConfig(t.TempDir()))

	_, err := provider.GetConnection("missing")
	assert.ErrorContains(t, err, "not found")
	_, err = provider.GetConnection("cloud")
	assert.ErrorContains(t, err, "type mismatch")
	_, err = provider.GetConnection("broken")
	assert.ErrorContains(t, err, "invalid storage configuration format")
}

func TestConnectionResolver(t *testing.T) {
	cfg := newConfig(t.TempDir())
	resolver := storageAdapter.NewConnectionResolver(storageAdapter.ResolverParams{
		Providers: []storageAdapter.StorageProvider{local.NewLocalProvider(cfg), gcs.NewGCSProvider(cfg)},
		Cfg:       cfg,
	})

	conn, err := resolver.ResolveStorageConnection(context.Background(), "reports")
	require.NoError(t, err)
	assert.Equal(t, "reports", conn.Name())

	// The gcs entry has no bucket, so the provider refuses it before creating a client.
	_, err = resolver.ResolveStorageConnection(context.Background(), "cloud")
	assert.ErrorContains(t, err, "bucket_name must be specified")

	resolver.CloseAll()
}
