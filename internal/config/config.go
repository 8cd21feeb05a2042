package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v9"
	"hermannm.dev/wrap"
)

// Config holds application configuration. Optional integrations are enabled by
// setting their first variable (MINIO_ENDPOINT, CLICKHOUSE_HOST,
// CATALOG_DRIVER); the rest of the group then becomes required.
type Config struct {
	BaseConfig
	MinIO      MinIO
	ClickHouse ClickHouse
	Catalog    Catalog
}

type BaseConfig struct {
	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat LogFormat  `env:"LOG_FORMAT" envDefault:"json"`
	Port      string     `env:"PORT" envDefault:"8080"`

	Remote Remote
	Local  Local
}

// Remote configures the OPeNDAP array store.
type Remote struct {
	URLTemplate       string        `env:"TERRACLIMATE_URL_TEMPLATE" envDefault:"http://thredds.northwestknowledge.net:8080/thredds/dodsC/agg_terraclimate_%s_1958_CurrentYear_GLOBE.nc"`
	MaxRetries        int           `env:"MAX_RETRIES" envDefault:"3"`
	RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND" envDefault:"4"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5m"`
}

// Local selects the netCDF4 array store instead of the remote one when set.
type Local struct {
	PathTemplate string `env:"TERRACLIMATE_LOCAL_PATH_TEMPLATE"`
}

type MinIO struct {
	Endpoint  string `env:"MINIO_ENDPOINT"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Bucket    string `env:"MINIO_BUCKET" envDefault:"terraclimate"`
	UseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`
}

type ClickHouse struct {
	Host     string `env:"CLICKHOUSE_HOST"`
	Port     string `env:"CLICKHOUSE_PORT" envDefault:"9000"`
	User     string `env:"CLICKHOUSE_USER" envDefault:"default"`
	Password string `env:"CLICKHOUSE_PASSWORD" envDefault:""`
	Database string `env:"CLICKHOUSE_DATABASE" envDefault:"terraclimate"`
}

type Catalog struct {
	Driver CatalogDriver `env:"CATALOG_DRIVER"`
	DSN    string        `env:"CATALOG_DSN"`
}

type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatDev  LogFormat = "dev"
)

type CatalogDriver string

const (
	CatalogPostgres CatalogDriver = "postgres"
	CatalogSQLite   CatalogDriver = "sqlite"
)

func (m MinIO) Enabled() bool      { return m.Endpoint != "" }
func (c ClickHouse) Enabled() bool { return c.Host != "" }
func (c Catalog) Enabled() bool    { return c.Driver != "" }

// ErrInvalid is wrapped by every configuration error other than
// ErrMissingRequiredEnvVar.
var ErrInvalid = errors.New("invalid configuration")

type ErrMissingRequiredEnvVar struct {
	Name string
}

func (e *ErrMissingRequiredEnvVar) Error() string {
	return fmt.Sprintf("required environment variable %q is not set", e.Name)
}

// Load reads configuration from environment variables.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	var config Config

	if err := env.Parse(&config.BaseConfig); err != nil {
		return nil, translate(err)
	}
	switch config.LogFormat {
	case LogFormatJSON, LogFormatDev:
	default:
		err := fmt.Errorf("%w: must be one of: '%s', '%s'", ErrInvalid, LogFormatJSON, LogFormatDev)
		return nil, wrap.Errorf(err, "unsupported value '%s' for LOG_FORMAT in env", config.LogFormat)
	}

	required := env.Options{RequiredIfNoDef: true}

	if os.Getenv("MINIO_ENDPOINT") != "" {
		if err := env.ParseWithOptions(&config.MinIO, required); err != nil {
			return nil, translate(err)
		}
	}

	if os.Getenv("CLICKHOUSE_HOST") != "" {
		if err := env.ParseWithOptions(&config.ClickHouse, required); err != nil {
			return nil, translate(err)
		}
	}

	if os.Getenv("CATALOG_DRIVER") != "" {
		if err := env.ParseWithOptions(&config.Catalog, required); err != nil {
			return nil, translate(err)
		}
		switch config.Catalog.Driver {
		case CatalogPostgres, CatalogSQLite:
		default:
			err := fmt.Errorf("%w: must be one of: '%s', '%s'", ErrInvalid, CatalogPostgres, CatalogSQLite)
			return nil, wrap.Errorf(err, "unsupported value '%s' for CATALOG_DRIVER in env", config.Catalog.Driver)
		}
	}

	return &config, nil
}

// translate reports the first unset required variable as
// ErrMissingRequiredEnvVar and wraps anything else.
func translate(err error) error {
	var aggregate env.AggregateError
	if errors.As(err, &aggregate) {
		for _, e := range aggregate.Errors {
			var notSet env.EnvVarIsNotSetError
			if errors.As(e, &notSet) {
				return &ErrMissingRequiredEnvVar{Name: notSet.Key}
			}
		}
	}
	return fmt.Errorf("%w: %w", ErrInvalid, err)
}
