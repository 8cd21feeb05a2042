package exitcode

import (
	"context"
	"errors"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/adapters/hdf5store"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/adapters/opendap"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/config"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/export"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/extraction"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/model"
)

// Exit codes for the terraclimate CLI.
// Schedulers can use these to decide retry strategy.
const (
	// Success - extraction completed successfully
	Success = 0

	// ConfigError - missing or invalid configuration
	// Don't retry: fix the config first
	ConfigError = 1

	// NetworkError - transient network failure (timeout, DNS, 5xx after retries)
	// Retry with backoff
	NetworkError = 2

	// APIError - the data server rejected the request or answered with
	// something that is not a DAP2 response
	// Check logs, may need manual intervention
	APIError = 3

	// StorageError - failed to write the output file or publish it
	// Retry with backoff
	StorageError = 4

	// DataError - the dataset has no data for the request or is malformed
	// Don't retry: investigate the data
	DataError = 5

	// ValidationError - the request arguments are invalid
	// Don't retry: fix the arguments
	ValidationError = 6

	// ApplicationError - anything not covered above
	ApplicationError = 7

	// Interrupted - the run was cancelled (SIGINT/SIGTERM)
	// Same value a shell reports for a process killed by SIGINT
	Interrupted = 130
)

// FromError maps an error returned by the extraction pipeline to an exit code.
func FromError(err error) int {
	if err == nil {
		return Success
	}

	var (
		missingVar  *config.ErrMissingRequiredEnvVar
		validation  *extraction.ValidationError
		unsupported *model.UnsupportedValueError
		aggregation *extraction.UnsupportedAggregationError
		empty       *extraction.EmptySelectionError
		blockSize   *extraction.BlockSizeError
		notFound    *hdf5store.DatasetNotFoundError
		publish     *export.PublishError
		client      *opendap.ClientError
	)

	switch {
	case errors.As(err, &missingVar), errors.Is(err, config.ErrInvalid):
		return ConfigError
	case errors.As(err, &validation), errors.As(err, &unsupported), errors.As(err, &aggregation):
		return ValidationError
	case errors.As(err, &empty), errors.As(err, &blockSize), errors.As(err, &notFound):
		return DataError
	case errors.As(err, &publish):
		return StorageError
	case errors.Is(err, context.Canceled):
		return Interrupted
	case errors.Is(err, context.DeadlineExceeded):
		return NetworkError
	case errors.As(err, &client):
		if client.Retryable() {
			return NetworkError
		}
		return APIError
	default:
		return ApplicationError
	}
}
