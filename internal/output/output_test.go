package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/extraction"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/model"
)

func TestWriteSeriesCSV(t *testing.T) {
	series := &extraction.Series{
		Time: []time.Time{
			time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2000, time.February, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2000, time.March, 1, 0, 0, 0, 0, time.UTC),
		},
		Values: []float64{61.25, math.NaN(), 0},
	}

	var buf bytes.Buffer
	if err := WriteSeriesCSV(&buf, series); err != nil {
		t.Fatalf("WriteSeriesCSV() error = %v", err)
	}

	want := "time,value\n2000-01-01,61.25\n2000-02-01,NaN\n2000-03-01,0\n"
	if buf.String() != want {
		t.Errorf("WriteSeriesCSV() =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestWriteSeriesCSV_LengthMismatch(t *testing.T) {
	series := &extraction.Series{Time: []time.Time{{}}, Values: nil}

	if err := WriteSeriesCSV(&bytes.Buffer{}, series); err == nil {
		t.Fatal("expected an error")
	}
}

func TestWriteGeoTIFF_Georeferencing(t *testing.T) {
	tests := []struct {
		name   string
		extent model.Extent
		rows   int
		cols   int
	}{
		{"small box", model.Extent{West: -75.5, South: 50, East: -74.5, North: 51.5}, 4, 3},
		{"single cell", model.Extent{West: 10, South: 20, East: 10.5, North: 20.5}, 1, 1},
		{"wide strip", model.Extent{West: -180, South: -10, East: 180, North: 10}, 2, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &extraction.Map{Lat: make([]float64, tt.rows), Lon: make([]float64, tt.cols), Values: make([][]float64, tt.rows)}
			for j := range m.Values {
				m.Lat[j] = float64(tt.rows - j) // north-up
				m.Values[j] = make([]float64, tt.cols)
			}

			var buf bytes.Buffer
			if err := WriteGeoTIFF(&buf, m, tt.extent); err != nil {
				t.Fatalf("WriteGeoTIFF() error = %v", err)
			}

			info, err := ReadGeoTIFFInfo(bytes.NewReader(buf.Bytes()))
			if err != nil {
				t.Fatalf("ReadGeoTIFFInfo() error = %v", err)
			}
			if info.Width != tt.cols || info.Height != tt.rows {
				t.Errorf("size = %dx%d, want %dx%d", info.Width, info.Height, tt.cols, tt.rows)
			}
			if info.EPSG != 4326 {
				t.Errorf("EPSG = %d, want 4326", info.EPSG)
			}
			if info.NoData != "nan" {
				t.Errorf("NoData = %q, want nan", info.NoData)
			}
			if info.Tiepoint[3] != tt.extent.West || info.Tiepoint[4] != tt.extent.North {
				t.Errorf("tiepoint = %v, want (%v, %v)", info.Tiepoint, tt.extent.West, tt.extent.North)
			}

			const eps = 1e-9
			got := info.Extent
			if math.Abs(got.West-tt.extent.West) > eps || math.Abs(got.East-tt.extent.East) > eps ||
				math.Abs(got.North-tt.extent.North) > eps || math.Abs(got.South-tt.extent.South) > eps {
				t.Errorf("extent = %+v, want %+v", got, tt.extent)
			}
		})
	}
}

func TestWriteGeoTIFF_RowsNorthToSouth(t *testing.T) {
	// Ascending latitude: row 0 is the southern row.
	m := &extraction.Map{
		Lat:    []float64{50, 51},
		Lon:    []float64{0, 1, 2},
		Values: [][]float64{{1, 2, 3}, {4, math.NaN(), 6}},
	}

	var buf bytes.Buffer
	if err := WriteGeoTIFF(&buf, m, model.Extent{West: 0, South: 50, East: 3, North: 52}); err != nil {
		t.Fatal(err)
	}

	raster, err := ReadGeoTIFF(&buf)
	if err != nil {
		t.Fatalf("ReadGeoTIFF() error = %v", err)
	}

	if raster.Values[0][0] != 4 || raster.Values[0][2] != 6 || !math.IsNaN(raster.Values[0][1]) {
		t.Errorf("first row = %v, want the northern row [4 NaN 6]", raster.Values[0])
	}
	if raster.Values[1][0] != 1 || raster.Values[1][2] != 3 {
		t.Errorf("second row = %v, want [1 2 3]", raster.Values[1])
	}
	if m.Lat[0] != 50 {
		t.Errorf("WriteGeoTIFF modified its input")
	}
}

func TestWriteGeoTIFF_SinglePointBounds(t *testing.T) {
	m := &extraction.Map{Lat: []float64{50}, Lon: []float64{-75}, Values: [][]float64{{3}}}
	point := model.Extent{West: -75, South: 50, East: -75, North: 50}

	var buf bytes.Buffer
	if err := WriteGeoTIFF(&buf, m, point); err != nil {
		t.Fatalf("WriteGeoTIFF() error = %v", err)
	}

	info, err := ReadGeoTIFFInfo(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}

	const eps = 1e-9
	if math.Abs(info.PixelScale[0]-model.GridSpacing) > eps || math.Abs(info.PixelScale[1]-model.GridSpacing) > eps {
		t.Errorf("pixel scale = %v, want the grid spacing", info.PixelScale)
	}
	half := model.GridSpacing / 2
	want := model.Extent{West: -75 - half, South: 50 - half, East: -75 + half, North: 50 + half}
	got := info.Extent
	if math.Abs(got.West-want.West) > eps || math.Abs(got.East-want.East) > eps ||
		math.Abs(got.North-want.North) > eps || math.Abs(got.South-want.South) > eps {
		t.Errorf("extent = %+v, want %+v", got, want)
	}
}

func TestWriteGeoTIFF_SinglePointLongitude(t *testing.T) {
	m := &extraction.Map{Lat: []float64{51, 50.5, 50}, Lon: []float64{-75}, Values: [][]float64{{1}, {2}, {3}}}
	extent := model.Extent{West: -75, South: 49.75, East: -75, North: 51.25}

	var buf bytes.Buffer
	if err := WriteGeoTIFF(&buf, m, extent); err != nil {
		t.Fatal(err)
	}
	info, err := ReadGeoTIFFInfo(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}

	if math.Abs(info.PixelScale[1]-0.5) > 1e-9 {
		t.Errorf("latitude scale = %v, want 0.5 from the requested bounds", info.PixelScale[1])
	}
	if info.PixelScale[0] <= 0 {
		t.Errorf("longitude scale = %v, want a positive cell width", info.PixelScale[0])
	}
}

func TestWriteGeoTIFF_Empty(t *testing.T) {
	err := WriteGeoTIFF(&bytes.Buffer{}, &extraction.Map{}, model.Extent{})
	if err == nil {
		t.Fatal("expected an error for an empty map")
	}
}

func TestReadGeoTIFFInfo_RejectsOtherFiles(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("PK\x03\x04zipfile"), []byte("II\x2b\x00\x08\x00\x00\x00")} {
		_, err := ReadGeoTIFFInfo(bytes.NewReader(data))
		if !errors.Is(err, ErrNotGeoTIFF) {
			t.Errorf("ReadGeoTIFFInfo(%q) error = %v, want ErrNotGeoTIFF", data, err)
		}
	}
}

func TestEncode(t *testing.T) {
	bounds := model.GeoTimeBounds{
		Lat: model.Range[float64]{Lower: 0, Upper: 1},
		Lon: model.Range[float64]{Lower: 0, Upper: 1},
	}
	series := &extraction.Result{
		Aggregation: model.AggregationTimeseries,
		Bounds:      bounds,
		Series:      &extraction.Series{Time: []time.Time{time.Date(2001, 5, 1, 0, 0, 0, 0, time.UTC)}, Values: []float64{2}},
	}
	spatial := &extraction.Result{
		Aggregation: model.AggregationSpatial,
		Bounds:      bounds,
		Map:         &extraction.Map{Lat: []float64{0.5}, Lon: []float64{0.5}, Values: [][]float64{{7}}},
	}

	var csvBuf, tifBuf bytes.Buffer
	if err := Encode(&csvBuf, series); err != nil {
		t.Fatal(err)
	}
	if err := Encode(&tifBuf, spatial); err != nil {
		t.Fatal(err)
	}
	if csvBuf.String() != "time,value\n2001-05-01,2\n" {
		t.Errorf("csv = %q", csvBuf.String())
	}
	if !bytes.HasPrefix(tifBuf.Bytes(), []byte("II*\x00")) {
		t.Errorf("tif does not start with a TIFF header")
	}

	cube := &extraction.Result{Aggregation: model.AggregationNone, Cube: &extraction.Cube{}}
	var unsupported *extraction.UnsupportedAggregationError
	if err := Encode(&bytes.Buffer{}, cube); !errors.As(err, &unsupported) {
		t.Errorf("Encode(cube) error = %v, want UnsupportedAggregationError", err)
	}
}

func TestExtension(t *testing.T) {
	if ext, _ := Extension(model.AggregationTimeseries); ext != "csv" {
		t.Errorf("timeseries extension = %q", ext)
	}
	if ext, _ := Extension(model.AggregationSpatial); ext != "tif" {
		t.Errorf("spatial extension = %q", ext)
	}
	if _, err := Extension(model.AggregationNone); err == nil {
		t.Errorf("expected an error for none")
	}
}

func TestNewDocument(t *testing.T) {
	result := &extraction.Result{
		Variable:    model.VariablePPT,
		Aggregation: model.AggregationTimeseries,
		Series: &extraction.Series{
			Time:   []time.Time{time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2000, 2, 1, 0, 0, 0, 0, time.UTC)},
			Values: []float64{1.5, math.NaN()},
		},
	}

	body, err := json.Marshal(NewDocument(result))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	for _, want := range []string{`"variable":"ppt"`, `"unit":"mm"`, `"times":["2000-01-01","2000-02-01"]`, `"values":[1.5,null]`} {
		if !strings.Contains(string(body), want) {
			t.Errorf("document %s does not contain %s", body, want)
		}
	}
	if strings.Contains(string(body), `"lat"`+":[") {
		t.Errorf("series document should not carry coordinates: %s", body)
	}
}
