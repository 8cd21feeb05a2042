package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/lookup"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS terraclimate_values (
    catalog_id  UUID,
    variable    LowCardinality(String),
    aggregation LowCardinality(String),
    timestamp   DateTime,
    lat         Float32,
    lon         Float32,
    value       Float32,
    unit        LowCardinality(String),
    inserted_at DateTime DEFAULT now()
) ENGINE = ReplacingMergeTree(inserted_at)
ORDER BY (variable, aggregation, timestamp, lat, lon)
`

type Client struct {
	conn driver.Conn
}

type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Logger: logger,
		Settings: clickhouse.Settings{
			"max_execution_time": 15,
		},
	})

	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &Client{conn: conn}, nil
}

// EnsureSchema creates the values table if it does not exist yet.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if err := c.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create terraclimate_values: %w", err)
	}
	return nil
}

// InsertValues loads rows in a single batch.
func (c *Client) InsertValues(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO terraclimate_values (catalog_id, variable, aggregation, timestamp, lat, lon, value, unit)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, row := range rows {
		if err := batch.Append(row.CatalogID, row.Variable, row.Aggregation, row.Timestamp, row.Lat, row.Lon, row.Value, row.Unit); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	slog.DebugContext(ctx, "clickhouse batch sent", "rows", len(rows))
	return nil
}

// cellReach is how far a stored cell centre may lie from a queried point and
// still contain it: half the grid spacing plus float32 rounding.
const cellReach = model.GridSpacing/2 + 1e-5

// NearestCell returns the cell of q.Aggregation containing (q.Lat, q.Lon) for
// the latest month not after q.Month. The month is chosen among cells around
// the point only, so a later extraction elsewhere does not hide it.
func (c *Client) NearestCell(ctx context.Context, q lookup.CellQuery) (*lookup.Cell, error) {
	var result lookup.Cell

	err := c.conn.QueryRow(
		ctx,
		`
		SELECT value, unit, lat, lon, catalog_id, timestamp
        FROM terraclimate_values FINAL
        WHERE variable = @variable
          AND aggregation = @aggregation
          AND abs(lat - @lat) <= @reach AND abs(lon - @lon) <= @reach
          AND timestamp = (
            SELECT max(timestamp) FROM terraclimate_values FINAL
            WHERE variable = @variable
              AND aggregation = @aggregation
              AND abs(lat - @lat) <= @reach AND abs(lon - @lon) <= @reach
              AND timestamp <= @timestamp
          )
        ORDER BY (lat - @lat) * (lat - @lat) + (lon - @lon) * (lon - @lon)
        LIMIT 1
        `,
		clickhouse.Named("variable", q.Variable.String()),
		clickhouse.Named("aggregation", q.Aggregation.String()),
		clickhouse.Named("timestamp", q.Month),
		clickhouse.Named("lat", q.Lat),
		clickhouse.Named("lon", q.Lon),
		clickhouse.Named("reach", float32(cellReach)),
	).Scan(&result.Value, &result.Unit, &result.Lat, &result.Lon, &result.CatalogID, &result.Month)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, lookup.ErrNoCell
	}

	if err != nil {
		return nil, err
	}

	return &result, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
