package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/adapters/hdf5store"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/adapters/opendap"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/catalog"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/clickhouse"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/config"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/export"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/extraction"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/logging"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/storage"
)

// app holds configuration and lazily opened connections shared by commands.
type app struct {
	stderr io.Writer

	cfg       *config.Config
	openStore func(cfg *config.Config) extraction.ArrayStore

	clickhouse *clickhouse.Client
	catalog    *catalog.Store
	closers    []func() error
}

type appOption func(*app)

// withStore replaces the array store chosen from configuration.
func withStore(store extraction.ArrayStore) appOption {
	return func(a *app) {
		a.openStore = func(*config.Config) extraction.ArrayStore { return store }
	}
}

func newApp(stderr io.Writer, opts ...appOption) *app {
	a := &app{stderr: stderr, openStore: openStore}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// setup loads configuration and configures the global logger.
func (a *app) setup() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	slog.SetDefault(logging.New(a.stderr, cfg.LogFormat, cfg.LogLevel))
	return nil
}

// openStore reads local netCDF4 files when a path template is configured and
// the remote OPeNDAP server otherwise.
func openStore(cfg *config.Config) extraction.ArrayStore {
	if cfg.Local.PathTemplate != "" {
		slog.Info("using local array store", "path_template", cfg.Local.PathTemplate)
		return hdf5store.NewStore(cfg.Local.PathTemplate)
	}
	return opendap.NewClient(cfg.Remote.URLTemplate, cfg.Remote.MaxRetries, cfg.Remote.RequestsPerSecond)
}

func (a *app) extractor() *extraction.Service {
	return extraction.NewService(a.openStore(a.cfg), extraction.WithTimeout(a.cfg.Remote.RequestTimeout))
}

func (a *app) clickhouseClient(ctx context.Context) (*clickhouse.Client, error) {
	if a.clickhouse != nil {
		return a.clickhouse, nil
	}

	ch := a.cfg.ClickHouse
	client, err := clickhouse.NewClient(clickhouse.Config{
		Host:     ch.Host,
		Port:     ch.Port,
		User:     ch.User,
		Password: ch.Password,
		Database: ch.Database,
	}, slog.Default())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)

	if err := client.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	a.clickhouse = client
	return client, nil
}

func (a *app) catalogStore(ctx context.Context) (*catalog.Store, error) {
	if a.catalog != nil {
		return a.catalog, nil
	}

	store, err := catalog.Open(ctx, catalog.Dialect(a.cfg.Catalog.Driver), a.cfg.Catalog.DSN)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)

	a.catalog = store
	return store, nil
}

// exportService wires the publishers enabled in configuration.
func (a *app) exportService(ctx context.Context) (*export.Service, error) {
	var opts []export.Option

	if a.cfg.MinIO.Enabled() {
		minioClient, err := storage.NewMinIOClient(ctx, storage.MinIOConfig{
			Endpoint:  a.cfg.MinIO.Endpoint,
			AccessKey: a.cfg.MinIO.AccessKey,
			SecretKey: a.cfg.MinIO.SecretKey,
			Bucket:    a.cfg.MinIO.Bucket,
			UseSSL:    a.cfg.MinIO.UseSSL,
		})
		if err != nil {
			return nil, &export.PublishError{Target: "object storage", Err: err}
		}
		opts = append(opts, export.WithObjectStorage(minioClient))
	}

	if a.cfg.ClickHouse.Enabled() {
		client, err := a.clickhouseClient(ctx)
		if err != nil {
			return nil, &export.PublishError{Target: "clickhouse", Err: err}
		}
		opts = append(opts, export.WithValueLoader(client))
	}

	if a.cfg.Catalog.Enabled() {
		store, err := a.catalogStore(ctx)
		if err != nil {
			return nil, &export.PublishError{Target: "catalog", Err: err}
		}
		opts = append(opts, export.WithCatalog(store))
	}

	return export.NewService(a.extractor(), opts...), nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("failed to close connection", "error", err)
		}
	}
}
