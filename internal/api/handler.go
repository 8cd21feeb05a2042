package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/catalog"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/exitcode"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/extraction"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/lookup"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/model"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/output"
)

const (
	defaultCatalogLimit = 20
	maxCatalogLimit     = 100

	// statusClientClosedRequest is logged when the caller went away before
	// the extraction finished.
	statusClientClosedRequest = 499
)

type Extractor interface {
	Fetch(ctx context.Context, req extraction.Request) (*extraction.Result, error)
}

type ValueLookup interface {
	Lookup(ctx context.Context, q lookup.Query) ([]lookup.Value, error)
}

type CatalogLister interface {
	List(ctx context.Context, variable model.Variable, limit int) ([]catalog.Record, error)
}

// Handler holds shared dependencies for all HTTP handlers.
type Handler struct {
	extractor Extractor
	lookup    ValueLookup
	catalog   CatalogLister
}

type Option func(*Handler)

// WithLookup enables GET /v1/values.
func WithLookup(lookup ValueLookup) Option {
	return func(h *Handler) { h.lookup = lookup }
}

// WithCatalog enables GET /v1/catalog.
func WithCatalog(catalog CatalogLister) Option {
	return func(h *Handler) { h.catalog = catalog }
}

// NewHandler creates a new Handler.
func NewHandler(extractor Extractor, opts ...Option) *Handler {
	h := &Handler{extractor: extractor}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes attaches all routes to the provided mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /v1/extract", h.handleExtract)
	if h.lookup != nil {
		mux.HandleFunc("GET /v1/values", h.handleValues)
	}
	if h.catalog != nil {
		mux.HandleFunc("GET /v1/catalog", h.handleCatalog)
	}
}

// handleHealth returns 204 No Content for liveness checks.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// handleExtract runs the in-memory accessor. Bounds are comma-separated pairs:
// ?lat=50,51.5&lon=-75.5,-74.5&years=2000,2000&months=1,1&variable=ppt
func (h *Handler) handleExtract(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var req extraction.Request
	var err error
	if req.LatBounds, err = extraction.ParseFloatList("lat", query.Get("lat")); err != nil {
		sendError(w, "", http.StatusBadRequest, err)
		return
	}
	if req.LonBounds, err = extraction.ParseFloatList("lon", query.Get("lon")); err != nil {
		sendError(w, "", http.StatusBadRequest, err)
		return
	}
	if req.YearBounds, err = extraction.ParseIntList("years", query.Get("years")); err != nil {
		sendError(w, "", http.StatusBadRequest, err)
		return
	}
	if req.MonthBounds, err = extraction.ParseIntList("months", query.Get("months")); err != nil {
		sendError(w, "", http.StatusBadRequest, err)
		return
	}
	req.Variable = query.Get("variable")
	req.Aggregation = query.Get("aggregation")

	result, err := h.extractor.Fetch(r.Context(), req)
	if err != nil {
		sendError(w, "extraction failed", statusFor(err), err)
		return
	}

	sendJSON(w, output.NewDocument(result))
}

// handleValues looks up stored cell values at a point:
// ?time=2000-01&lat=50.75&lon=-75&variables=ppt,tmax[&aggregation=none]
func (h *Handler) handleValues(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	ts, err := parseTime(query.Get("time"))
	if err != nil {
		sendError(w, "invalid query parameter 'time'", http.StatusBadRequest, err)
		return
	}
	lat, err := strconv.ParseFloat(query.Get("lat"), 32)
	if err != nil {
		sendError(w, "invalid query parameter 'lat'", http.StatusBadRequest, err)
		return
	}
	lon, err := strconv.ParseFloat(query.Get("lon"), 32)
	if err != nil {
		sendError(w, "invalid query parameter 'lon'", http.StatusBadRequest, err)
		return
	}
	if query.Get("variables") == "" {
		sendError(w, "missing query parameter 'variables'", http.StatusBadRequest, nil)
		return
	}
	var vars []model.Variable
	for _, name := range strings.Split(query.Get("variables"), ",") {
		v, err := model.ParseVariable(name)
		if err != nil {
			sendError(w, "", http.StatusBadRequest, err)
			return
		}
		vars = append(vars, v)
	}
	q := lookup.Query{Month: ts, Lat: float32(lat), Lon: float32(lon), Variables: vars}
	if raw := query.Get("aggregation"); raw != "" {
		if q.Aggregation, err = model.ParseAggregation(raw); err != nil {
			sendError(w, "", http.StatusBadRequest, err)
			return
		}
	}

	results, err := h.lookup.Lookup(r.Context(), q)
	if err != nil {
		var noValue *lookup.NoValueError
		if errors.As(err, &noValue) {
			sendError(w, "", http.StatusNotFound, err)
			return
		}
		var unsupported *model.UnsupportedValueError
		if errors.As(err, &unsupported) {
			sendError(w, "", http.StatusBadRequest, err)
			return
		}
		sendError(w, "lookup failed", http.StatusInternalServerError, err)
		return
	}

	sendJSON(w, results)
}

// handleCatalog lists recent extractions of a variable:
// ?variable=ppt&limit=20
func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	variable, err := model.ParseVariable(query.Get("variable"))
	if err != nil {
		sendError(w, "", http.StatusBadRequest, err)
		return
	}
	limit := defaultCatalogLimit
	if raw := query.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxCatalogLimit {
			sendError(w, fmt.Sprintf("query parameter 'limit' must be an integer between 1 and %d", maxCatalogLimit), http.StatusBadRequest, nil)
			return
		}
	}

	records, err := h.catalog.List(r.Context(), variable, limit)
	if err != nil {
		sendError(w, "failed to list catalog", http.StatusInternalServerError, err)
		return
	}
	if records == nil {
		records = []catalog.Record{}
	}

	sendJSON(w, records)
}

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	switch exitcode.FromError(err) {
	case exitcode.ValidationError:
		return http.StatusBadRequest
	case exitcode.Interrupted:
		return statusClientClosedRequest
	case exitcode.DataError:
		return http.StatusNotFound
	case exitcode.APIError, exitcode.NetworkError:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func parseTime(raw string) (time.Time, error) {
	for _, layout := range []string{"2006-01", output.DateLayout, time.RFC3339} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not YYYY-MM, YYYY-MM-DD or RFC 3339", raw)
}
