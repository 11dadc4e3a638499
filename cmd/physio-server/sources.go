package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/physio/internal/config"
	"github.com/ehr/physio/internal/domain/evolution"
	"github.com/ehr/physio/internal/platform/blobstore"
	"github.com/ehr/physio/internal/platform/db"
	"github.com/ehr/physio/internal/platform/source"
	"github.com/ehr/physio/internal/platform/sqlitestore"
)

// sourceStack is the configured record source behind the snapshot cache,
// plus whatever handles it holds open.
type sourceStack struct {
	cache   *source.CachedSource
	pool    *pgxpool.Pool
	closers []func()
}

func (s *sourceStack) Records(ctx context.Context) ([]evolution.PatientRecord, error) {
	return s.cache.Records(ctx)
}

func (s *sourceStack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func buildSource(ctx context.Context, cfg *config.Config, logger zerolog.Logger, obs source.Observer) (*sourceStack, error) {
	stack := &sourceStack{}
	var upstream evolution.RecordSource

	switch cfg.DataSource {
	case config.SourceSheet:
		sheet, err := newSheetSource(cfg, logger)
		if err != nil {
			return nil, err
		}
		sheet.SetObserver(obs)
		upstream = sheet

	case config.SourceBlob:
		store, err := openBlobStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		blob := source.NewBlobSource(store, cfg.BlobKey, cfg.DateLayouts, logger)
		blob.SetObserver(obs)
		upstream = blob

	case config.SourcePostgres:
		pool, err := openPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		stack.pool = pool
		stack.closers = append(stack.closers, pool.Close)
		upstream = source.Observed(config.SourcePostgres, evolution.NewRecordRepoPG(pool), obs)

	case config.SourceSQLite:
		store, err := sqlitestore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		stack.closers = append(stack.closers, func() { store.Close() })
		upstream = source.Observed(config.SourceSQLite, store, obs)

	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.DataSource)
	}

	stack.cache = source.NewCachedSource(upstream, cfg.SourceCacheTTL, logger)
	stack.cache.SetObserver(obs)
	logger.Info().Str("data_source", cfg.DataSource).Dur("cache_ttl", cfg.SourceCacheTTL).Msg("record source ready")
	return stack, nil
}

func newSheetSource(cfg *config.Config, logger zerolog.Logger) (*source.SheetSource, error) {
	return source.NewSheetSource(source.SheetConfig{
		BaseURL:     cfg.SheetBaseURL,
		SheetID:     cfg.SheetID,
		SheetName:   cfg.SheetName,
		MaxRetries:  cfg.SourceMaxRetries,
		DateLayouts: cfg.DateLayouts,
		Timeout:     cfg.SourceTimeout,
	}, logger)
}

func openBlobStore(ctx context.Context, cfg *config.Config) (blobstore.Store, error) {
	switch cfg.BlobDriver {
	case config.BlobDriverS3:
		return blobstore.NewS3Store(ctx, blobstore.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
	case config.BlobDriverFile:
		return blobstore.NewFileStore(cfg.BlobDir)
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.BlobDriver)
	}
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return db.NewPool(ctx, db.PoolOptions{
		URL:            cfg.DatabaseURL,
		MaxConns:       cfg.DBMaxConns,
		MinConns:       cfg.DBMinConns,
		ConnectTimeout: 10 * time.Second,
	})
}

// openRepository opens the persistent store named by target for the import
// command.
func openRepository(ctx context.Context, cfg *config.Config, target string) (evolution.RecordRepository, func(), error) {
	switch target {
	case config.SourcePostgres:
		pool, err := openPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return evolution.NewRecordRepoPG(pool), pool.Close, nil
	case config.SourceSQLite:
		if cfg.SQLitePath == "" {
			return nil, nil, fmt.Errorf("SQLITE_PATH is required")
		}
		store, err := sqlitestore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("import target must be %q or %q, got %q", config.SourcePostgres, config.SourceSQLite, target)
	}
}

// loadTaxonomy returns the taxonomy file when configured, else the built-in
// physiotherapy taxonomy.
func loadTaxonomy(cfg *config.Config) (evolution.Taxonomy, error) {
	if cfg.TaxonomyFile == "" {
		return evolution.DefaultTaxonomy(), nil
	}
	return evolution.LoadTaxonomyFile(cfg.TaxonomyFile)
}
