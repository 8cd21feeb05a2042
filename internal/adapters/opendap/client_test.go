package opendap

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/extraction"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/model"
)

const testDAS = `Attributes {
    lat {
        String units "degrees_north";
    }
    ppt {
        String units "mm";
        Int16 _FillValue -32768;
        Int16 missing_value -32768;
        Float64 scale_factor 0.1;
        Float64 add_offset 0.0;
    }
    NC_GLOBAL {
        String title "TerraClimate";
    }
}
`

// float64Response encodes a one-dimensional Float64 array as a .dods body.
func float64Response(name string, values []float64) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Dataset {\n    Float64 %s[%s = %d];\n} agg_terraclimate;\nData:\n", name, name, len(values))
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(values)))
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(values)))
	for _, v := range values {
		_ = binary.Write(&buf, binary.BigEndian, v)
	}
	return buf.Bytes()
}

// int16GridResponse encodes a time, lat, lon Int16 array the way THREDDS
// answers a "<v>.<v>[...]" constraint.
func int16GridResponse(name string, dims [3]int, values []int16) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Dataset {\n    Structure {\n        Int16 %s[time = %d][lat = %d][lon = %d];\n    } %s;\n} agg_terraclimate;\nData:\n",
		name, dims[0], dims[1], dims[2], name)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(values)))
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(values)))
	for _, v := range values {
		_ = binary.Write(&buf, binary.BigEndian, int32(v))
	}
	return buf.Bytes()
}

func newTestClient(serverURL string, maxRetries int) *Client {
	client := NewClient(serverURL+"/agg_terraclimate_%s.nc", maxRetries, 0)
	client.retryInterval = 0
	return client
}

func TestClient_ReadAxis(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/agg_terraclimate_ppt.nc.dods" || r.URL.RawQuery != "lat" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(float64Response("lat", []float64{52, 51.5, 51}))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 0)

	for range 2 {
		values, err := client.ReadAxis(context.Background(), model.VariablePPT, extraction.AxisLat)
		if err != nil {
			t.Fatalf("ReadAxis() error = %v", err)
		}
		if len(values) != 3 || values[0] != 52 || values[2] != 51 {
			t.Errorf("ReadAxis() = %v", values)
		}
	}
	if calls.Load() != 2 {
		t.Errorf("expected every call to reach the server, server saw %d requests", calls.Load())
	}
}

// TestClient_SeesNewlyPublishedMonths runs two extractions through one client
// while the server appends a month to its time axis in between.
func TestClient_SeesNewlyPublishedMonths(t *testing.T) {
	var mu sync.Mutex
	times := []float64{model.TimeToDays(time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC))}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, ".das"):
			_, _ = w.Write([]byte(testDAS))
		case r.URL.RawQuery == "lat":
			_, _ = w.Write(float64Response("lat", []float64{51}))
		case r.URL.RawQuery == "lon":
			_, _ = w.Write(float64Response("lon", []float64{-75}))
		case r.URL.RawQuery == "time":
			mu.Lock()
			defer mu.Unlock()
			_, _ = w.Write(float64Response("time", times))
		default:
			_, _ = w.Write(int16GridResponse("ppt", [3]int{1, 1, 1}, []int16{420}))
		}
	}))
	defer server.Close()

	svc := extraction.NewService(newTestClient(server.URL, 0))
	request := func(month int) extraction.Request {
		return extraction.Request{
			LatBounds:   []float64{50, 52},
			LonBounds:   []float64{-76, -74},
			YearBounds:  []int{2000, 2000},
			MonthBounds: []int{month, month},
			Variable:    "ppt",
			Aggregation: "timeseries",
		}
	}

	if _, err := svc.Fetch(context.Background(), request(1)); err != nil {
		t.Fatalf("Fetch(January) error = %v", err)
	}

	mu.Lock()
	times = append(times, model.TimeToDays(time.Date(2000, time.February, 1, 0, 0, 0, 0, time.UTC)))
	mu.Unlock()

	result, err := svc.Fetch(context.Background(), request(2))
	if err != nil {
		t.Fatalf("Fetch(February) error = %v", err)
	}
	if len(result.Series.Values) != 1 || math.Abs(result.Series.Values[0]-42) > 1e-9 {
		t.Errorf("February series = %v, want [42]", result.Series.Values)
	}
}

func TestClient_SlowResponseWithinContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(300 * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		_, _ = w.Write(float64Response("lat", []float64{51}))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 0)
	if client.httpClient.Timeout != 0 {
		t.Errorf("http client timeout = %v, want none", client.httpClient.Timeout)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.ReadAxis(ctx, model.VariablePPT, extraction.AxisLat); err != nil {
		t.Fatalf("ReadAxis() error = %v", err)
	}
}

func TestClient_ContextDeadlineIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
			return
		}
		_, _ = w.Write(float64Response("lat", []float64{51}))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 3)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.ReadAxis(ctx, model.VariablePPT, extraction.AxisLat)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("server saw %d requests, want 1", calls.Load())
	}
}

func TestClient_ReadHyperslab(t *testing.T) {
	var gotConstraint string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/agg_terraclimate_ppt.nc.das":
			_, _ = w.Write([]byte(testDAS))
		case "/agg_terraclimate_ppt.nc.dods":
			gotConstraint, _ = url.QueryUnescape(r.URL.RawQuery)
			_, _ = w.Write(int16GridResponse("ppt", [3]int{1, 2, 2}, []int16{10, -32768, 255, 0}))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL, 0)
	sel := extraction.Hyperslab{Start: [3]int{5, 10, 20}, Count: [3]int{1, 2, 2}, Stride: [3]int{1, 1, 1}}

	values, err := client.ReadHyperslab(context.Background(), model.VariablePPT, sel)
	if err != nil {
		t.Fatalf("ReadHyperslab() error = %v", err)
	}

	if want := "ppt.ppt[5:1:5][10:1:11][20:1:21]"; gotConstraint != want {
		t.Errorf("constraint = %q, want %q", gotConstraint, want)
	}
	want := []float64{1, math.NaN(), 25.5, 0}
	for i := range want {
		if math.IsNaN(want[i]) {
			if !math.IsNaN(values[i]) {
				t.Errorf("values[%d] = %v, want NaN", i, values[i])
			}
			continue
		}
		if math.Abs(values[i]-want[i]) > 1e-9 {
			t.Errorf("values[%d] = %v, want %v", i, values[i], want[i])
		}
	}
}

func TestClient_ReadHyperslabSizeMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".das") {
			_, _ = w.Write([]byte(testDAS))
			return
		}
		_, _ = w.Write(int16GridResponse("ppt", [3]int{1, 1, 1}, []int16{1}))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 0)
	sel := extraction.Hyperslab{Count: [3]int{1, 2, 2}, Stride: [3]int{1, 1, 1}}

	_, err := client.ReadHyperslab(context.Background(), model.VariablePPT, sel)

	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("expected ClientError, got %v", err)
	}
	if clientErr.Retryable() {
		t.Errorf("a malformed response should not be retryable")
	}
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(float64Response("lon", []float64{-76, -75.5}))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 3)

	values, err := client.ReadAxis(context.Background(), model.VariablePPT, extraction.AxisLon)
	if err != nil {
		t.Fatalf("ReadAxis() error = %v", err)
	}
	if len(values) != 2 {
		t.Errorf("ReadAxis() = %v", values)
	}
	if calls.Load() != 3 {
		t.Errorf("server saw %d requests, want 3", calls.Load())
	}
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 2)

	_, err := client.ReadAxis(context.Background(), model.VariablePPT, extraction.AxisTime)

	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("expected ClientError, got %v", err)
	}
	if !clientErr.Retryable() || clientErr.StatusCode != http.StatusBadGateway {
		t.Errorf("unexpected error: %+v", clientErr)
	}
	if calls.Load() != 3 {
		t.Errorf("server saw %d requests, want 3", calls.Load())
	}
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`Error {
    code = 400;
    message = "Invalid constraint";
};`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 5)

	_, err := client.ReadAxis(context.Background(), model.VariablePPT, extraction.AxisLat)

	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("expected ClientError, got %v", err)
	}
	if clientErr.Retryable() {
		t.Errorf("400 should not be retryable")
	}
	if !strings.Contains(clientErr.Error(), "Invalid constraint") {
		t.Errorf("expected server message in error, got %q", clientErr.Error())
	}
	if calls.Load() != 1 {
		t.Errorf("server saw %d requests, want 1", calls.Load())
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(float64Response("lat", []float64{1}))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ReadAxis(ctx, model.VariablePPT, extraction.AxisLat)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestClient_DatasetURL(t *testing.T) {
	client := NewClient(DefaultURLTemplate, 0, 0)

	got := client.DatasetURL(model.VariablePDSI)
	want := "http://thredds.northwestknowledge.net:8080/thredds/dodsC/agg_terraclimate_PDSI_1958_CurrentYear_GLOBE.nc"
	if got != want {
		t.Errorf("DatasetURL() = %s, want %s", got, want)
	}
}
