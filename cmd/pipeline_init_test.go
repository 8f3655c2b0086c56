package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spendshield/internal/config"
	"github.com/sells-group/spendshield/internal/extract"
	"github.com/sells-group/spendshield/internal/model"
	"github.com/sells-group/spendshield/internal/reference"
	"github.com/sells-group/spendshield/internal/store"
)

// withConfig swaps the package config for the duration of a test.
func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func baseConfig(t *testing.T) *config.Config {
	return &config.Config{
		Server:     config.ServerConfig{Port: 8000},
		Store:      config.StoreConfig{Driver: "memory"},
		Upload:     config.UploadConfig{Dir: t.TempDir(), MaxBytes: 1 << 20},
		Extraction: config.ExtractionConfig{Provider: "mock"},
		OCR:        config.OCRConfig{Provider: "local"},
		Rules:      config.RulesConfig{PriceInflationThreshold: 0.2, HighValueThreshold: 25000, NewVendorDays: 180, NewVendorAmount: 50000, VendorRiskThreshold: 0.7, VendorRiskMultiplier: 1},
		Pipeline:   config.PipelineConfig{MaxConcurrentRuns: 2},
		Circuit:    config.CircuitConfig{FailureThreshold: 3, ResetTimeoutSecs: 60},
	}
}

func TestInitStore(t *testing.T) {
	c := baseConfig(t)
	withConfig(t, c)

	st, err := initStore(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryStore{}, st)

	c.Store.Driver = "sqlite"
	c.Store.SQLitePath = filepath.Join(t.TempDir(), "runs.db")
	st, err = initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	assert.IsType(t, &store.SQLiteStore{}, st)

	c.Store.Driver = "mongo"
	_, err = initStore(context.Background())
	assert.Error(t, err)
}

func TestInitReference_Static(t *testing.T) {
	withConfig(t, baseConfig(t))

	refs, closeFn, err := initReference(context.Background(), store.NewMemory(0), false)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &reference.Static{}, refs)

	v, ok, err := refs.VendorByID(context.Background(), "VND001")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, v.Name)
}

func TestInitReference_SharesSQLite(t *testing.T) {
	c := baseConfig(t)
	c.Store.Driver = "sqlite"
	c.Store.SQLitePath = filepath.Join(t.TempDir(), "spendshield.db")
	withConfig(t, c)

	ctx := context.Background()
	st, err := initStore(ctx)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	refs, closeFn, err := initReference(ctx, st, false)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &reference.SQLite{}, refs)

	counts, err := refs.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, counts.Vendors)
	assert.Equal(t, 5, counts.Expenditures)

	// A second init finds the data and leaves it alone.
	_, closeAgain, err := initReference(ctx, st, false)
	require.NoError(t, err)
	closeAgain()
	counts, err = refs.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, counts.Vendors)
}

func TestInitExtractor(t *testing.T) {
	c := baseConfig(t)
	withConfig(t, c)

	ext, err := initExtractor()
	require.NoError(t, err)
	assert.Equal(t, "mock", ext.Name())

	c.Extraction.Provider = "anthropic"
	ext, err = initExtractor()
	require.NoError(t, err)
	fb, ok := ext.(*extract.Fallback)
	require.True(t, ok)
	assert.True(t, fb.MockOnly())

	c.OCR.Provider = "tesseract"
	_, err = initExtractor()
	assert.Error(t, err)
}

func TestInitApp_EndToEnd(t *testing.T) {
	withConfig(t, baseConfig(t))

	env, err := initApp(context.Background(), "analyze")
	require.NoError(t, err)
	defer env.Close()

	run, err := env.Pipeline.Submit(context.Background(), model.RunInput{Filename: "invoice.png", MIMEType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.True(t, run.MockMode)
}

func TestInitApp_InvalidConfig(t *testing.T) {
	c := baseConfig(t)
	c.Extraction.Provider = "gemini"
	withConfig(t, c)

	_, err := initApp(context.Background(), "analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extraction.provider")
}
