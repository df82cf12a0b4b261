package app_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/qepting91/wb-harvester/internal/app"
	"github.com/qepting91/wb-harvester/internal/config"
	"github.com/qepting91/wb-harvester/internal/harvest"
	"github.com/qepting91/wb-harvester/internal/storage"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mockCategory = "https://www.wildberries.ru/catalog/dom-i-dacha/vannaya/aksessuary"

func mockConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("COLLECTOR_MODE", "mock")
	t.Setenv("PAGE_DELAY", "0s")
	t.Setenv("MAX_PAGES", "2")
	cfg, err := config.Load(config.New())
	require.NoError(t, err)
	return cfg
}

func TestHarvestAll_MockMode(t *testing.T) {
	fs := afero.NewMemMapFs()
	a, err := app.New(mockConfig(t), fs, nil)
	require.NoError(t, err)

	results := a.HarvestAll(context.Background(), []string{mockCategory, "https://www.wildberries.ru/catalog/x/y/z"}, 2)
	require.Len(t, results, 2)

	ok := results[0]
	require.NoError(t, ok.Err)
	assert.Equal(t, mockCategory, ok.URL)
	assert.NotEqual(t, harvest.ReasonNotFound, ok.Outcome.Reason)
	assert.Equal(t, harvest.StateDone, ok.Outcome.State())

	assert.Equal(t, harvest.ReasonNotFound, results[1].Outcome.Reason)

	require.NoError(t, a.Close())
	records, err := storage.ReadHistory(fs, a.HistoryPath(), 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestBatch_MockMode(t *testing.T) {
	fs := afero.NewMemMapFs()
	a, err := app.New(mockConfig(t), fs, nil)
	require.NoError(t, err)
	defer a.Close()

	out, err := a.Batch.Run(context.Background())
	require.NoError(t, err)
	assert.Positive(t, out.Keywords)
}

func TestSubscribers_DefaultsToMemory(t *testing.T) {
	a, err := app.New(mockConfig(t), afero.NewMemMapFs(), nil)
	require.NoError(t, err)
	defer a.Close()

	store, err := a.Subscribers(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &storage.MemorySubscribers{}, store)
}

func TestHarvestAll_CancelledContext(t *testing.T) {
	a, err := app.New(mockConfig(t), afero.NewMemMapFs(), nil)
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := a.HarvestAll(ctx, []string{mockCategory}, 1)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
}

func TestParseLevel(t *testing.T) {
	lvl, err := app.ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	lvl, err = app.ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)

	_, err = app.ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNewLogger_WritesFile(t *testing.T) {
	dir := t.TempDir()
	log, closeFn, err := app.NewLogger("info", dir)
	require.NoError(t, err)

	log.Info("hello", "k", "v")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(filepath.Join(dir, app.LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
