// Package export implements the disk-writing accessor: extract, encode to a
// file and optionally publish the result.
package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/catalog"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/clickhouse"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/extraction"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/model"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/output"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/storage"
)

// Extractor runs the extraction pipeline for validated params.
type Extractor interface {
	Extract(ctx context.Context, params extraction.Params) (*extraction.Result, error)
}

// ObjectStorage writes data streams to object storage.
type ObjectStorage interface {
	Put(ctx context.Context, key string, data io.Reader, size int64, contentType string) error
}

// ValueLoader stores reduced values for point lookups.
type ValueLoader interface {
	InsertValues(ctx context.Context, rows []clickhouse.Row) error
}

// Catalog records published extractions.
type Catalog interface {
	Insert(ctx context.Context, rec catalog.Record) error
}

// PublishError is returned when the file was encoded but a publisher failed.
// The local file is not kept in that case.
type PublishError struct {
	Target string
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s: %v", e.Target, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// WriteResult describes a completed write.
type WriteResult struct {
	Path      string             `json:"path"`
	RunID     model.RunID        `json:"run_id"`
	CatalogID uuid.UUID          `json:"catalog_id"`
	ObjectKey string             `json:"object_key,omitempty"`
	Rows      int                `json:"rows,omitempty"`
	Result    *extraction.Result `json:"-"`
}

// Service orchestrates a write: validate, extract, encode, publish.
type Service struct {
	extractor Extractor
	storage   ObjectStorage
	values    ValueLoader
	catalog   Catalog
	now       func() time.Time
}

type Option func(*Service)

func WithObjectStorage(storage ObjectStorage) Option {
	return func(s *Service) { s.storage = storage }
}

func WithValueLoader(values ValueLoader) Option {
	return func(s *Service) { s.values = values }
}

func WithCatalog(catalog Catalog) Option {
	return func(s *Service) { s.catalog = catalog }
}

func NewService(extractor Extractor, opts ...Option) *Service {
	s := &Service{extractor: extractor, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Write extracts req and writes <Folder>/<Filename>.csv for a time series or
// <Folder>/<Filename>.tif for a map. An empty runID gets a fresh UUIDv7.
// Nothing is left at the destination when any step fails.
func (s *Service) Write(ctx context.Context, req extraction.Request, runID model.RunID) (*WriteResult, error) {
	params, err := extraction.Validate(ctx, extraction.WriteEntryPoint, req)
	if err != nil {
		return nil, err
	}

	if runID == "" {
		if runID, err = model.NewRunID(); err != nil {
			return nil, err
		}
	} else if err := runID.Validate(); err != nil {
		return nil, err
	}

	ext, err := output.Extension(params.Aggregation)
	if err != nil {
		return nil, err
	}

	result, err := s.extractor.Extract(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	catalogID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate catalog id: %w", err)
	}

	written := &WriteResult{
		Path:      filepath.Join(req.Folder, req.Filename+"."+ext),
		RunID:     runID,
		CatalogID: catalogID,
		Result:    result,
	}

	slog.DebugContext(ctx, "write started", "path", written.Path, "run_id", runID, "catalog_id", catalogID)

	tmp, err := encodeTemp(req.Folder, req.Filename, result)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp)

	if err := s.publish(ctx, tmp, ext, params, written); err != nil {
		return nil, err
	}

	if err := os.Rename(tmp, written.Path); err != nil {
		return nil, fmt.Errorf("move output into place: %w", err)
	}

	slog.InfoContext(ctx, "write complete", "path", written.Path, "run_id", runID, "object_key", written.ObjectKey)
	return written, nil
}

// encodeTemp writes result to a temporary file next to its destination and
// returns its path.
func encodeTemp(folder, filename string, result *extraction.Result) (string, error) {
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", fmt.Errorf("create output folder: %w", err)
	}

	f, err := os.CreateTemp(folder, "."+filename+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create output file: %w", err)
	}

	if err := output.Encode(f, result); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("encode: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close output file: %w", err)
	}
	return f.Name(), nil
}

func (s *Service) publish(ctx context.Context, path, ext string, params extraction.Params, written *WriteResult) error {
	if s.storage != nil {
		start, end := params.Bounds.TimeWindow()
		key := storage.ObjectKey{
			Variable:    params.Variable,
			Aggregation: params.Aggregation,
			Start:       start,
			End:         end,
			RunID:       written.RunID,
			Extension:   ext,
		}
		if err := s.upload(ctx, path, key.Key(), output.ContentType(ext)); err != nil {
			return &PublishError{Target: "object storage", Err: err}
		}
		written.ObjectKey = key.Key()
	}

	if s.values != nil {
		rows := clickhouse.BuildRows(written.Result, written.CatalogID)
		if err := s.values.InsertValues(ctx, rows); err != nil {
			return &PublishError{Target: "clickhouse", Err: err}
		}
		written.Rows = len(rows)
	}

	if s.catalog != nil {
		rec := catalog.Record{
			CatalogID:   written.CatalogID,
			RunID:       written.RunID,
			Variable:    params.Variable,
			Aggregation: params.Aggregation,
			Bounds:      params.Bounds,
			ObjectKey:   written.ObjectKey,
			CreatedAt:   s.now().UTC(),
		}
		if err := s.catalog.Insert(ctx, rec); err != nil {
			return &PublishError{Target: "catalog", Err: err}
		}
	}

	return nil
}

func (s *Service) upload(ctx context.Context, path, key, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return s.storage.Put(ctx, key, f, info.Size(), contentType)
}
