package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/propimentel/flr-wb/internal/cache"
	"github.com/propimentel/flr-wb/internal/config"
	"github.com/propimentel/flr-wb/internal/repository"
	"github.com/propimentel/flr-wb/internal/service"
	"github.com/propimentel/flr-wb/internal/storage/blobstore"
	"github.com/propimentel/flr-wb/internal/storage/blobstore/bucket"
	"github.com/propimentel/flr-wb/internal/storage/blobstore/local"
	"github.com/propimentel/flr-wb/internal/storage/blobstore/s3blob"
	"github.com/propimentel/flr-wb/internal/storage/docstore"
	"github.com/propimentel/flr-wb/internal/storage/docstore/memory"
	"github.com/propimentel/flr-wb/internal/storage/docstore/mongodb"
	"github.com/propimentel/flr-wb/internal/storage/docstore/postgres"
)

// namedBlobStore — blob-хранилище с именем для /upload/health.
type namedBlobStore interface {
	blobstore.Store
	Name() string
}

// app — собранные хранилища и сервисы, общие для serve и sweep.
type app struct {
	docs    docstore.Store
	blobs   namedBlobStore
	pgPool  *pgxpool.Pool
	upload  *service.UploadService
	access  *service.FileAccessService
	sweeper *service.Sweeper
	closers []func()
	logger  *slog.Logger
}

// newApp подключает хранилища по конфигурации и создаёт сервисы.
// При ошибке уже открытые подключения закрываются.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := a.openMetadata(ctx, cfg); err != nil {
		return nil, err
	}
	if err := a.openBlobs(ctx, cfg); err != nil {
		return nil, err
	}
	recordCache, err := a.openCache(ctx, cfg)
	if err != nil {
		return nil, err
	}

	files := repository.NewFileRepository(a.docs, recordCache, logger)
	boards := repository.NewBoardRepository(a.docs)

	a.upload = service.NewUploadService(service.UploadConfig{
		MaxFileSize:      cfg.MaxFileSize,
		MaxFilesPerOwner: cfg.MaxFilesPerOwner,
		AllowedMIMETypes: cfg.AllowedMIMETypes,
		PublicBaseURL:    cfg.PublicBaseURL,
		DownloadPath:     strings.TrimSuffix(cfg.APIPrefix, "/") + "/files",
	}, files, a.blobs, logger)
	a.access = service.NewFileAccessService(files, a.blobs, logger)
	a.sweeper = service.NewSweeper(files, boards, a.blobs, cfg.RetentionPeriod, cfg.SweepInterval, logger)

	return a, nil
}

// openMetadata подключает хранилище метаданных.
func (a *app) openMetadata(ctx context.Context, cfg *config.Config) error {
	switch cfg.MetadataBackend {
	case config.MetadataMemory:
		a.logger.Warn("Метаданные хранятся в памяти и теряются при перезапуске")
		a.docs = memory.New(a.logger)

	case config.MetadataPostgres:
		a.logger.Info("Применение миграций БД...")
		if err := postgres.Migrate(cfg.MigrateURL(), a.logger); err != nil {
			return fmt.Errorf("миграции БД: %w", err)
		}
		pool, err := postgres.Connect(ctx, cfg.DatabaseDSN(), a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pool.Close)
		a.pgPool = pool
		a.docs = postgres.New(pool, a.logger)

	case config.MetadataMongo:
		client, err := mongodb.Connect(ctx, cfg.MongoURI, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = client.Disconnect(context.Background()) })
		store := mongodb.New(client.Database(cfg.MongoDatabase), a.logger)
		if err := store.EnsureIndexes(ctx); err != nil {
			return err
		}
		a.docs = store

	default:
		return fmt.Errorf("неизвестный бэкенд метаданных: %s", cfg.MetadataBackend)
	}
	return nil
}

// openBlobs подключает blob-хранилище.
func (a *app) openBlobs(ctx context.Context, cfg *config.Config) error {
	switch cfg.BlobBackend {
	case config.BlobLocal:
		store, err := local.New(cfg.DataDir, a.logger)
		if err != nil {
			return err
		}
		a.blobs = store

	case config.BlobBucket:
		store, err := bucket.Open(ctx, cfg.BucketURL, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		a.blobs = store

	case config.BlobS3:
		store, err := s3blob.Open(s3blob.Options{
			Bucket:         cfg.S3Bucket,
			Region:         cfg.S3Region,
			Endpoint:       cfg.S3Endpoint,
			ForcePathStyle: cfg.S3ForcePathStyle,
		}, a.logger)
		if err != nil {
			return err
		}
		a.blobs = store

	default:
		return fmt.Errorf("неизвестный бэкенд blob-хранилища: %s", cfg.BlobBackend)
	}

	a.logger.Info("Blob-хранилище подключено", slog.String("name", a.blobs.Name()))
	return nil
}

// openCache создаёт кэш FileRecord.
func (a *app) openCache(ctx context.Context, cfg *config.Config) (cache.RecordCache, error) {
	switch cfg.CacheBackend {
	case config.CacheLRU:
		return cache.NewLRU(cfg.CacheSize, cfg.CacheTTL), nil

	case config.CacheRedis:
		client, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		return cache.NewRedis(client, cfg.CacheTTL, a.logger), nil

	case config.CacheNone:
		return cache.Noop{}, nil

	default:
		return nil, fmt.Errorf("неизвестный бэкенд кэша: %s", cfg.CacheBackend)
	}
}

// Close закрывает подключения в обратном порядке.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
