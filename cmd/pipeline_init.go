package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spendshield/internal/extract"
	"github.com/sells-group/spendshield/internal/ocr"
	"github.com/sells-group/spendshield/internal/pipeline"
	"github.com/sells-group/spendshield/internal/reference"
	"github.com/sells-group/spendshield/internal/store"
)

// appEnv holds the stores, extractor and pipeline needed by the serve and
// analyze commands.
type appEnv struct {
	Store     store.Store
	Refs      reference.Store
	Extractor extract.Extractor
	Pipeline  *pipeline.Pipeline

	closers []func()
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// initApp validates config for mode, opens and migrates the stores, seeds
// reference data when empty and builds the pipeline. Callers should defer
// env.Close().
func initApp(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &appEnv{}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env.Store = st
	env.closers = append(env.closers, func() { _ = st.Close() })

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	refs, closeRefs, err := initReference(ctx, st, false)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Refs = refs
	env.closers = append(env.closers, closeRefs)

	ext, err := initExtractor()
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Extractor = ext

	env.Pipeline = pipeline.New(st, refs, ext, cfg.Rules, cfg.Pipeline)
	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return store.NewMemory(time.Duration(cfg.Store.MemoryTTLHours) * time.Hour), nil
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{MaxConns: cfg.Store.MaxConns})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initReference opens the reference store for the configured driver,
// sharing the run store's connection when the drivers match. Database
// drivers are migrated and seeded; force replaces existing rows.
func initReference(ctx context.Context, st store.Store, force bool) (reference.Store, func(), error) {
	noop := func() {}

	seed, err := reference.LoadSeed(cfg.Reference.SeedPath)
	if err != nil {
		return nil, noop, err
	}

	var (
		refs    reference.Store
		closeFn = noop
	)
	switch driver := cfg.ReferenceDriver(); driver {
	case "static":
		return reference.NewStatic(seed), noop, nil
	case "sqlite":
		sq, ok := st.(*store.SQLiteStore)
		if !ok {
			sq, err = store.NewSQLite(cfg.Store.SQLitePath)
			if err != nil {
				return nil, noop, err
			}
			closeFn = func() { _ = sq.Close() }
		}
		refs = reference.NewSQLite(sq.DB())
	case "postgres":
		pg, ok := st.(*store.PostgresStore)
		if !ok {
			pg, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{MaxConns: cfg.Store.MaxConns})
			if err != nil {
				return nil, noop, err
			}
			closeFn = func() { _ = pg.Close() }
		}
		refs = reference.NewPostgres(pg.Pool())
	default:
		return nil, noop, eris.Errorf("unsupported reference driver: %s", driver)
	}

	seeder := refs.(reference.Seeder)
	if err := seeder.Migrate(ctx); err != nil {
		closeFn()
		return nil, noop, eris.Wrap(err, "migrate reference data")
	}
	seeded, err := seeder.Seed(ctx, seed, force)
	if err != nil {
		closeFn()
		return nil, noop, eris.Wrap(err, "seed reference data")
	}
	if seeded {
		zap.L().Info("reference data seeded",
			zap.Int("vendors", len(seed.Vendors)),
			zap.Int("expenditures", len(seed.Expenditures)),
		)
	}
	return refs, closeFn, nil
}

func initExtractor() (extract.Extractor, error) {
	reader, err := ocr.NewReader(cfg.OCR)
	if err != nil {
		return nil, eris.Wrap(err, "init ocr")
	}
	ext, err := extract.New(cfg, reader)
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{zap.String("provider", ext.Name())}
	if fb, ok := ext.(*extract.Fallback); ok && fb.MockOnly() {
		zap.L().Warn("extraction provider has no credential, serving mock extractions", fields...)
	} else {
		zap.L().Info("extraction provider ready", fields...)
	}
	return ext, nil
}
