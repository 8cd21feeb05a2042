package opendap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/time/rate"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/extraction"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/model"
)

// DefaultURLTemplate locates the aggregated TerraClimate dataset of a variable
// on the Northwest Knowledge Network THREDDS server.
const DefaultURLTemplate = "http://thredds.northwestknowledge.net:8080/thredds/dodsC/agg_terraclimate_%s_1958_CurrentYear_GLOBE.nc"

// Client reads TerraClimate arrays over DAP2. It implements extraction.ArrayStore.
// Axes and attributes are read fresh on every call: the aggregated datasets
// grow a month at a time.
type Client struct {
	urlTemplate string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxRetries  uint64

	// Retry configuration (internal)
	retryInterval time.Duration
}

// NewClient creates a DAP2 client. urlTemplate takes the variable name as its
// only verb. Requests are paced to requestsPerSecond (unlimited when <= 0) and
// transient failures are retried up to maxRetries times. Requests have no
// deadline of their own; callers bound them through the context.
func NewClient(urlTemplate string, maxRetries int, requestsPerSecond float64) *Client {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &Client{
		urlTemplate:   urlTemplate,
		limiter:       rate.NewLimiter(limit, 1),
		maxRetries:    uint64(maxRetries),
		retryInterval: 500 * time.Millisecond,
		httpClient:    &http.Client{},
	}
}

// DatasetURL returns the DAP2 endpoint of variable, without suffix.
func (c *Client) DatasetURL(variable model.Variable) string {
	return fmt.Sprintf(c.urlTemplate, variable.String())
}

// ReadAxis fetches the full coordinate vector of axis.
func (c *Client) ReadAxis(ctx context.Context, variable model.Variable, axis extraction.Axis) ([]float64, error) {
	slog.DebugContext(ctx, "fetching axis", "variable", variable.String(), "axis", axis)

	body, err := c.get(ctx, c.DatasetURL(variable)+".dods?"+string(axis))
	if err != nil {
		return nil, toClientError(err, fmt.Sprintf("failed to read %s axis", axis))
	}
	_, values, err := decodeDODS(body)
	if err != nil {
		return nil, toClientError(err, fmt.Sprintf("failed to decode %s axis", axis))
	}
	return values, nil
}

// ReadHyperslab fetches the selected block of variable in one request and
// unpacks it to physical values.
func (c *Client) ReadHyperslab(ctx context.Context, variable model.Variable, sel extraction.Hyperslab) ([]float64, error) {
	attrs, err := c.attributes(ctx, variable)
	if err != nil {
		return nil, err
	}

	name := variable.String()
	query := fmt.Sprintf("%s.%s%s", name, name, escapeConstraint(sel.Constraint()))

	slog.InfoContext(ctx, "requesting hyperslab", "variable", name, "constraint", sel.Constraint(), "values", sel.Len())

	body, err := c.get(ctx, c.DatasetURL(variable)+".dods?"+query)
	if err != nil {
		return nil, toClientError(err, "failed to read hyperslab")
	}
	decl, values, err := decodeDODS(body)
	if err != nil {
		return nil, toClientError(err, "failed to decode hyperslab")
	}
	if len(values) != sel.Len() {
		return nil, toClientError(&formatError{Message: fmt.Sprintf("got %d values of %s, requested %d", len(values), decl.Name, sel.Len())}, "failed to decode hyperslab")
	}

	attrs.Unpack(values)
	return values, nil
}

// attributes fetches the packing attributes of variable.
func (c *Client) attributes(ctx context.Context, variable model.Variable) (extraction.Packing, error) {
	body, err := c.get(ctx, c.DatasetURL(variable)+".das")
	if err != nil {
		return extraction.Packing{}, toClientError(err, "failed to read attributes")
	}
	attrs := parseDAS(string(body), variable.String())

	slog.DebugContext(ctx, "attributes loaded",
		"variable", variable.String(),
		"missing", attrs.Missing,
		"scale_factor", attrs.ScaleFactor,
		"add_offset", attrs.AddOffset,
	)

	return attrs, nil
}

// get performs a paced GET, retrying transient failures with exponential backoff.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval

	var body []byte
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		var err error
		body, err = c.doRequest(ctx, url)
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.RetryNotify(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx),
		func(err error, d time.Duration) {
			slog.WarnContext(ctx, "request failed, retrying", "url", url, "error", err, "retry_in", d)
		},
	)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) doRequest(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	response, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}

	if response.StatusCode != http.StatusOK {
		message := "request failed"
		if msg, ok := serverErrorMessage(body); ok {
			message = msg
		}
		return nil, &apiError{StatusCode: response.StatusCode, Message: message}
	}

	return body, nil
}

var constraintEscaper = strings.NewReplacer("[", "%5B", "]", "%5D")

// escapeConstraint percent-encodes the brackets of an index constraint;
// servers behind strict proxies reject them raw.
func escapeConstraint(constraint string) string {
	return constraintEscaper.Replace(constraint)
}
