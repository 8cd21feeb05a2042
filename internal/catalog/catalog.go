// Package catalog records completed extractions in a SQL database.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/model"
)

var ErrRecordNotFound = errors.New("catalog record not found")

// Dialect names the database driver. Both dialects share one schema.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS extractions (
	catalog_id  TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	variable    TEXT NOT NULL,
	aggregation TEXT NOT NULL,
	lat_min     DOUBLE PRECISION NOT NULL,
	lat_max     DOUBLE PRECISION NOT NULL,
	lon_min     DOUBLE PRECISION NOT NULL,
	lon_max     DOUBLE PRECISION NOT NULL,
	year_start  INTEGER NOT NULL,
	year_end    INTEGER NOT NULL,
	month_start INTEGER NOT NULL,
	month_end   INTEGER NOT NULL,
	object_key  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL
)`

const columns = `catalog_id, run_id, variable, aggregation,
	lat_min, lat_max, lon_min, lon_max,
	year_start, year_end, month_start, month_end,
	object_key, created_at`

// Record describes one published extraction.
type Record struct {
	CatalogID   uuid.UUID           `json:"catalog_id"`
	RunID       model.RunID         `json:"run_id"`
	Variable    model.Variable      `json:"variable"`
	Aggregation model.Aggregation   `json:"aggregation"`
	Bounds      model.GeoTimeBounds `json:"bounds"`
	ObjectKey   string              `json:"object_key,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

type Store struct {
	db *sqlx.DB
}

// New wraps an open database. Queries are written with ? placeholders and
// rebound to the dialect's bindvar.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: sqlx.NewDb(db, driverName(dialect))}
}

// driverName maps a dialect to the name sqlx knows its bindvar by. The
// modernc driver registers as "sqlite", which sqlx does not list.
func driverName(d Dialect) string {
	if d == DialectSQLite {
		return "sqlite3"
	}
	return string(d)
}

// Open connects to the catalog database and creates its table.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	switch dialect {
	case DialectPostgres, DialectSQLite:
	default:
		return nil, fmt.Errorf("unsupported catalog driver %q", dialect)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping catalog database: %w", err)
	}

	s := New(db, dialect)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create extractions table: %w", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, rec Record) error {
	b := rec.Bounds
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO extractions (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.CatalogID.String(), rec.RunID.String(), rec.Variable.String(), rec.Aggregation.String(),
		b.Lat.Lower, b.Lat.Upper, b.Lon.Lower, b.Lon.Upper,
		b.Years.Lower, b.Years.Upper, b.Months.Lower, b.Months.Upper,
		rec.ObjectKey, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert catalog record %s: %w", rec.CatalogID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	var r row
	err := s.db.GetContext(ctx, &r,
		s.db.Rebind(`SELECT `+columns+` FROM extractions WHERE catalog_id = ?`),
		id.String(),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get catalog record %s: %w", id, err)
	}
	return r.record()
}

// List returns the most recent records of variable, newest first.
func (s *Store) List(ctx context.Context, variable model.Variable, limit int) ([]Record, error) {
	var rows []row
	err := s.db.SelectContext(ctx, &rows,
		s.db.Rebind(`SELECT `+columns+` FROM extractions WHERE variable = ? ORDER BY created_at DESC LIMIT ?`),
		variable.String(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list catalog records: %w", err)
	}

	records := make([]Record, 0, len(rows))
	for _, r := range rows {
		rec, err := r.record()
		if err != nil {
			return nil, fmt.Errorf("scan catalog record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// row is the flat column layout of the extractions table.
type row struct {
	CatalogID   string    `db:"catalog_id"`
	RunID       string    `db:"run_id"`
	Variable    string    `db:"variable"`
	Aggregation string    `db:"aggregation"`
	LatMin      float64   `db:"lat_min"`
	LatMax      float64   `db:"lat_max"`
	LonMin      float64   `db:"lon_min"`
	LonMax      float64   `db:"lon_max"`
	YearStart   int       `db:"year_start"`
	YearEnd     int       `db:"year_end"`
	MonthStart  int       `db:"month_start"`
	MonthEnd    int       `db:"month_end"`
	ObjectKey   string    `db:"object_key"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r row) record() (*Record, error) {
	rec := Record{
		RunID:     model.RunID(r.RunID),
		ObjectKey: r.ObjectKey,
		CreatedAt: r.CreatedAt,
		Bounds: model.GeoTimeBounds{
			Lat:    model.Range[float64]{Lower: r.LatMin, Upper: r.LatMax},
			Lon:    model.Range[float64]{Lower: r.LonMin, Upper: r.LonMax},
			Years:  model.Range[int]{Lower: r.YearStart, Upper: r.YearEnd},
			Months: model.Range[int]{Lower: r.MonthStart, Upper: r.MonthEnd},
		},
	}

	var err error
	if rec.CatalogID, err = uuid.Parse(r.CatalogID); err != nil {
		return nil, fmt.Errorf("parse catalog_id: %w", err)
	}
	if rec.Variable, err = model.ParseVariable(r.Variable); err != nil {
		return nil, err
	}
	if rec.Aggregation, err = model.ParseAggregation(r.Aggregation); err != nil {
		return nil, err
	}
	return &rec, nil
}
