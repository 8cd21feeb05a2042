package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/exitcode"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/extraction"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/model"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/output"
)

// gridStore serves a 2x2 grid over January and February 2000 where every
// value is 100k+10j+i for time k, lat j and lon i.
type gridStore struct {
	calls atomic.Int32
}

func (s *gridStore) ReadAxis(ctx context.Context, variable model.Variable, axis extraction.Axis) ([]float64, error) {
	s.calls.Add(1)
	switch axis {
	case extraction.AxisLat:
		return []float64{51, 50.5}, nil
	case extraction.AxisLon:
		return []float64{-75, -74.5}, nil
	default:
		return []float64{
			model.TimeToDays(time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)),
			model.TimeToDays(time.Date(2000, time.February, 1, 0, 0, 0, 0, time.UTC)),
		}, nil
	}
}

func (s *gridStore) ReadHyperslab(ctx context.Context, variable model.Variable, sel extraction.Hyperslab) ([]float64, error) {
	s.calls.Add(1)
	var out []float64
	for k := sel.Start[0]; k < sel.Start[0]+sel.Count[0]; k++ {
		for j := sel.Start[1]; j < sel.Start[1]+sel.Count[1]; j++ {
			for i := sel.Start[2]; i < sel.Start[2]+sel.Count[2]; i++ {
				out = append(out, float64(100*k+10*j+i))
			}
		}
	}
	return out, nil
}

var boxArgs = []string{"--lat", "50,51.5", "--lon", "-75.5,-74.5", "--years", "2000,2000", "--months", "1,2"}

func TestRun_FetchTimeseries(t *testing.T) {
	var stdout, stderr bytes.Buffer
	args := append([]string{"fetch", "--variable", "ppt", "--aggregation", "timeseries"}, boxArgs...)

	code := run(t.Context(), args, &stdout, &stderr, withStore(&gridStore{}))
	if code != exitcode.Success {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr.String())
	}

	var doc struct {
		Aggregation string    `json:"aggregation"`
		Times       []string  `json:"times"`
		Values      []float64 `json:"values"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &doc); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, stdout.String())
	}
	if doc.Aggregation != "timeseries" || len(doc.Values) != 2 {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if math.Abs(doc.Values[0]-5.5) > 1e-9 || math.Abs(doc.Values[1]-105.5) > 1e-9 {
		t.Errorf("values = %v, want [5.5 105.5]", doc.Values)
	}
}

func TestRun_FetchSeveralVariables(t *testing.T) {
	var stdout, stderr bytes.Buffer
	args := append([]string{"fetch", "--variable", "tmax,tmin", "--aggregation", "spatial"}, boxArgs...)

	code := run(t.Context(), args, &stdout, &stderr, withStore(&gridStore{}))
	if code != exitcode.Success {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr.String())
	}

	var docs []struct {
		Variable string `json:"variable"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &docs); err != nil {
		t.Fatalf("stdout is not a JSON array: %v", err)
	}
	if len(docs) != 2 || docs[0].Variable != "tmax" || docs[1].Variable != "tmin" {
		t.Errorf("unexpected documents: %+v", docs)
	}
}

func TestRun_FetchValidationError(t *testing.T) {
	store := &gridStore{}
	var stdout, stderr bytes.Buffer
	args := []string{"fetch", "--variable", "ppt", "--lat", "51.5,50", "--lon", "-75.5,-74.5", "--years", "2000,2000", "--months", "1,2"}

	code := run(t.Context(), args, &stdout, &stderr, withStore(store))

	if code != exitcode.ValidationError {
		t.Fatalf("exit code = %d, want %d", code, exitcode.ValidationError)
	}
	if n := store.calls.Load(); n != 0 {
		t.Errorf("store accessed %d times for an invalid request", n)
	}
}

func TestRun_WriteTimeseries(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	args := append([]string{"write", dir, "ppt_box", "--variable", "ppt", "--run-id", "01890c24-905b-7122-b170-b60814e6ee06"}, boxArgs...)

	code := run(t.Context(), args, &stdout, &stderr, withStore(&gridStore{}))
	if code != exitcode.Success {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr.String())
	}

	content, err := os.ReadFile(filepath.Join(dir, "ppt_box.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "time,value\n2000-01-01,5.5\n2000-02-01,105.5\n" {
		t.Errorf("file content = %q", content)
	}
	if !strings.Contains(stdout.String(), `"run_id": "01890c24-905b-7122-b170-b60814e6ee06"`) {
		t.Errorf("unexpected stdout: %s", stdout.String())
	}
}

func TestRun_WriteMissingDestination(t *testing.T) {
	var stdout, stderr bytes.Buffer
	args := append([]string{"write", "--variable", "ppt"}, boxArgs...)

	if code := run(t.Context(), args, &stdout, &stderr, withStore(&gridStore{})); code != exitcode.ValidationError {
		t.Errorf("exit code = %d, want %d", code, exitcode.ValidationError)
	}
}

func TestRun_Inspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.tif")
	m := &extraction.Map{Lat: []float64{51, 50.5}, Lon: []float64{-75, -74.5}, Values: [][]float64{{1, 2}, {3, 4}}}
	var buf bytes.Buffer
	if err := output.WriteGeoTIFF(&buf, m, model.Extent{West: -75.5, South: 50, East: -74.5, North: 51.5}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	code := run(t.Context(), []string{"inspect", path}, &stdout, &stderr)
	if code != exitcode.Success {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr.String())
	}

	var info output.GeoTIFFInfo
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info.EPSG != 4326 || info.Width != 2 || info.Height != 2 {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestRun_UsageErrors(t *testing.T) {
	tests := [][]string{
		{"inspect"},
		{"fetch", "--lat", "fifty,51"},
		{"fetch", "--no-such-flag"},
		{"serve", "extra"},
	}

	for _, args := range tests {
		var stdout, stderr bytes.Buffer
		if code := run(t.Context(), args, &stdout, &stderr, withStore(&gridStore{})); code != exitcode.ConfigError {
			t.Errorf("run(%v) exit code = %d, want %d", args, code, exitcode.ConfigError)
		}
	}
}
